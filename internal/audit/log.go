package audit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"archmarket.io/internal/obs"
)

// Entry is an append-only audit record.
type Entry struct {
	ID         string            `json:"id"`
	ActorID    string            `json:"actor_id"`
	Action     string            `json:"action"`
	TargetID   string            `json:"target_id"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
	RequestID  string            `json:"request_id,omitempty"`
}

// Recorder appends audit entries. There is no update or delete.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

var ErrInvalidEntry = errors.New("audit: invalid entry")

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the audit request id from context if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// Validate checks required fields.
func (e Entry) Validate() error {
	switch {
	case strings.TrimSpace(e.Action) == "":
		return errors.New("audit: action is required")
	case strings.TrimSpace(e.ActorID) == "":
		return errors.New("audit: actor is required")
	case e.OccurredAt.IsZero():
		return errors.New("audit: timestamp is required")
	}
	return nil
}

// Stamp fills the request id from ctx and copies metadata so later changes by
// the caller cannot alter a recorded entry.
func Stamp(ctx context.Context, e Entry) Entry {
	if e.RequestID == "" {
		e.RequestID = RequestIDFromContext(ctx)
	}
	if len(e.Metadata) > 0 {
		md := make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			md[k] = v
		}
		e.Metadata = md
	}
	return e
}

// LogRecorder writes each entry as one JSON line.
type LogRecorder struct {
	mu  sync.Mutex
	out io.Writer
}

// NewLogRecorder writes to w; a nil w sends entries to the shared structured logger.
func NewLogRecorder(w io.Writer) *LogRecorder {
	return &LogRecorder{out: w}
}

func (r *LogRecorder) Record(ctx context.Context, e Entry) error {
	if err := e.Validate(); err != nil {
		return errors.Join(ErrInvalidEntry, err)
	}
	e = Stamp(ctx, e)
	if r.out == nil {
		obs.Logger().Info("audit",
			"type", "audit",
			"event", e.Action,
			"id", e.ID,
			"actor_id", e.ActorID,
			"target_id", e.TargetID,
			"request_id", e.RequestID,
			"occurred_at", e.OccurredAt.UTC().Format(time.RFC3339Nano),
			"metadata", e.Metadata,
		)
		return nil
	}
	line := struct {
		Type string `json:"type"`
		Entry
	}{Type: "audit", Entry: e}
	data, err := json.Marshal(line)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err = r.out.Write(data)
	return err
}

// Multi records to every recorder and joins their errors.
type Multi []Recorder

func (m Multi) Record(ctx context.Context, e Entry) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
