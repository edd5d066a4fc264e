package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"archmarket.io/internal/audit"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Record appends to audit_log. The table has no update or delete path.
func (s *Store) Record(ctx context.Context, e audit.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	return insertAudit(ctx, s.db, audit.Stamp(ctx, e))
}

func insertAudit(ctx context.Context, db execer, e audit.Entry) error {
	md := e.Metadata
	if md == nil {
		md = map[string]string{}
	}
	raw, err := json.Marshal(md)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		insert into audit_log (id, actor_id, action, target_id, metadata, request_id, occurred_at)
		values ($1,$2,$3,$4,$5,$6,$7)
	`, e.ID, e.ActorID, e.Action, e.TargetID, raw, e.RequestID, e.OccurredAt)
	return err
}
