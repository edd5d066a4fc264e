package pg

import (
	"context"
	"fmt"

	"archmarket.io/internal/audit"
	"archmarket.io/internal/contact"
)

// CreateUnlock inserts the unlock and its audit entry in one transaction.
func (s *Store) CreateUnlock(ctx context.Context, evt contact.UnlockEvent, entry audit.Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		insert into contact_unlocks (id, design_id, buyer_id, architect_id, reason, created_at)
		values ($1,$2,$3,$4,$5,$6)
	`, evt.ID, evt.DesignID, evt.BuyerID, evt.ArchitectID, evt.Reason, evt.CreatedAt)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
		return contact.ErrAlreadyUnlocked
	}
	if err != nil {
		return err
	}
	if err := insertAudit(ctx, tx, audit.Stamp(ctx, entry)); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return tx.Commit()
}
