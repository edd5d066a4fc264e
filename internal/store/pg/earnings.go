package pg

import (
	"context"
	"database/sql"
	"errors"

	"archmarket.io/internal/earnings"
)

func (s *Store) PendingEarningForRequest(ctx context.Context, requestID string) (earnings.Earning, error) {
	var (
		e      earnings.Earning
		status string
	)
	err := s.db.QueryRowContext(ctx, `
		select id, request_id, architect_id, amount, status, created_at
		from earnings
		where request_id=$1 and status='PENDING'
		order by created_at
		limit 1
	`, requestID).Scan(&e.ID, &e.RequestID, &e.ArchitectID, &e.Amount, &status, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return earnings.Earning{}, earnings.ErrNotFound
	}
	if err != nil {
		return earnings.Earning{}, err
	}
	e.Status = earnings.Status(status)
	return e, nil
}
