package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"archmarket.io/internal/workflow"
)

const requestColumns = `id, design_id, buyer_id, architect_id, license_type, description, scope_tags,
	status, proposed_price, delivery_time_days, revisions_included, architect_note, created_at, updated_at`

func (s *Store) Create(ctx context.Context, r workflow.ModificationRequest) error {
	tags, err := marshalTags(r.ScopeTags)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into modification_requests (`+requestColumns+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, r.ID, r.DesignID, r.BuyerID, r.ArchitectID, string(r.LicenseType), r.Description, tags,
		string(r.Status), r.ProposedPrice, r.DeliveryTimeDays, r.RevisionsIncluded, r.ArchitectNote, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return fmt.Errorf("%w: duplicate request id", workflow.ErrInvalidInput)
			case pgErrForeignKeyViolation:
				return workflow.ErrDesignNotFound
			}
		}
		return err
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (workflow.ModificationRequest, error) {
	var (
		r       workflow.ModificationRequest
		licType string
		status  string
		rawTags []byte
	)
	err := s.db.QueryRowContext(ctx, `select `+requestColumns+` from modification_requests where id=$1`, id).Scan(
		&r.ID, &r.DesignID, &r.BuyerID, &r.ArchitectID, &licType, &r.Description, &rawTags,
		&status, &r.ProposedPrice, &r.DeliveryTimeDays, &r.RevisionsIncluded, &r.ArchitectNote, &r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return workflow.ModificationRequest{}, workflow.ErrNotFound
	}
	if err != nil {
		return workflow.ModificationRequest{}, err
	}
	r.LicenseType = licenseType(licType)
	r.Status = workflow.Status(status)
	if len(rawTags) > 0 {
		if err := json.Unmarshal(rawTags, &r.ScopeTags); err != nil {
			return workflow.ModificationRequest{}, fmt.Errorf("decode scope tags: %w", err)
		}
	}
	return r, nil
}

// CompareAndSwap updates the mutable columns only while status still equals expected.
func (s *Store) CompareAndSwap(ctx context.Context, expected workflow.Status, next workflow.ModificationRequest) error {
	res, err := s.db.ExecContext(ctx, `
		update modification_requests
		set status=$3, proposed_price=$4, delivery_time_days=$5, revisions_included=$6,
		    architect_note=$7, updated_at=$8
		where id=$1 and status=$2
	`, next.ID, string(expected), string(next.Status), next.ProposedPrice, next.DeliveryTimeDays,
		next.RevisionsIncluded, next.ArchitectNote, next.UpdatedAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx, `select exists(select 1 from modification_requests where id=$1)`, next.ID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return workflow.ErrNotFound
	}
	return workflow.ErrStaleStatus
}

func marshalTags(tags []string) ([]byte, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("encode scope tags: %w", err)
	}
	return b, nil
}
