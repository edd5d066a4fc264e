package license

import (
	"context"
	"errors"
)

// Type is the license tier sold for a design.
type Type string

const (
	TypeStandard   Type = "STANDARD"
	TypeCommercial Type = "COMMERCIAL"
	TypeExclusive  Type = "EXCLUSIVE"
)

func (t Type) Valid() bool {
	switch t {
	case TypeStandard, TypeCommercial, TypeExclusive:
		return true
	}
	return false
}

// ErrNotFound is returned by a Reader when the buyer holds no license on the design.
var ErrNotFound = errors.New("license: not found")

// License is a buyer's right on a design.
type License struct {
	DesignID      string
	BuyerID       string
	Type          Type
	Active        bool
	ExclusivePaid bool
}

// Reader loads the active license a buyer holds on a design.
type Reader interface {
	ActiveLicense(ctx context.Context, designID, buyerID string) (License, error)
}
