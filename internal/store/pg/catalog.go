package pg

import (
	"context"
	"database/sql"
	"errors"

	"archmarket.io/internal/license"
	"archmarket.io/internal/workflow"
)

func (s *Store) ArchitectForDesign(ctx context.Context, designID string) (string, error) {
	var architectID string
	err := s.db.QueryRowContext(ctx, `select architect_id from designs where id=$1`, designID).Scan(&architectID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", workflow.ErrDesignNotFound
	}
	if err != nil {
		return "", err
	}
	return architectID, nil
}

func (s *Store) ActiveLicense(ctx context.Context, designID, buyerID string) (license.License, error) {
	l := license.License{DesignID: designID, BuyerID: buyerID}
	var typ string
	err := s.db.QueryRowContext(ctx, `
		select type, active, exclusive_paid
		from licenses
		where design_id=$1 and buyer_id=$2 and active
	`, designID, buyerID).Scan(&typ, &l.Active, &l.ExclusivePaid)
	if errors.Is(err, sql.ErrNoRows) {
		return license.License{}, license.ErrNotFound
	}
	if err != nil {
		return license.License{}, err
	}
	l.Type = licenseType(typ)
	return l, nil
}

// licenseType maps unknown stored values to the empty type, which grants nothing.
func licenseType(raw string) license.Type {
	t := license.Type(raw)
	if !t.Valid() {
		return ""
	}
	return t
}
