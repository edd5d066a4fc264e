package workflow

import (
	"context"
	"errors"
	"time"

	"archmarket.io/internal/license"
)

var (
	ErrNotFound        = errors.New("workflow: not found")
	ErrStaleStatus     = errors.New("workflow: status changed concurrently")
	ErrLicenseRequired = errors.New("workflow: an active license on the design is required")
	ErrInvalidInput    = errors.New("workflow: invalid input")
	ErrDesignNotFound  = errors.New("workflow: design not found")
)

// ModificationRequest is a buyer's paid change order on a licensed design.
// ProposedPrice is in minor currency units.
type ModificationRequest struct {
	ID                string
	DesignID          string
	BuyerID           string
	ArchitectID       string
	LicenseType       license.Type
	Description       string
	ScopeTags         []string
	Status            Status
	ProposedPrice     int64
	DeliveryTimeDays  int
	RevisionsIncluded int
	ArchitectNote     string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Store persists requests. CompareAndSwap writes next only while the stored
// status still equals expected, and returns ErrStaleStatus otherwise.
type Store interface {
	Create(ctx context.Context, r ModificationRequest) error
	Get(ctx context.Context, id string) (ModificationRequest, error)
	CompareAndSwap(ctx context.Context, expected Status, next ModificationRequest) error
}

// DesignDirectory resolves the architect who owns a design.
type DesignDirectory interface {
	ArchitectForDesign(ctx context.Context, designID string) (string, error)
}

// Event describes a committed change to a request.
type Event struct {
	Type        string    `json:"type"`
	RequestID   string    `json:"request_id"`
	DesignID    string    `json:"design_id"`
	BuyerID     string    `json:"buyer_id"`
	ArchitectID string    `json:"architect_id"`
	From        Status    `json:"from,omitempty"`
	To          Status    `json:"to"`
	Amount      int64     `json:"amount,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

const (
	EventCreated      = "modification_request.created"
	EventTransitioned = "modification_request.transitioned"
)

// Publisher receives events after they commit. Publish must not block.
type Publisher interface {
	Publish(evt Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(Event) {}
