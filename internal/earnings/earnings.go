// Package earnings follows up on completed modification requests. Payout
// release is handled elsewhere; this package only confirms the pending
// earning exists and leaves it PENDING.
package earnings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"archmarket.io/internal/obs"
	"archmarket.io/internal/stream"
	"archmarket.io/internal/workflow"
)

type Status string

const StatusPending Status = "PENDING"

var ErrNotFound = errors.New("earnings: not found")

// Earning is the architect's share of a paid request.
type Earning struct {
	ID          string
	RequestID   string
	ArchitectID string
	Amount      int64
	Status      Status
	CreatedAt   time.Time
}

// Lookup finds the pending earning tied to a request.
type Lookup interface {
	PendingEarningForRequest(ctx context.Context, requestID string) (Earning, error)
}

// Watcher consumes completion events. Its failures go to Errors, the log and a
// counter, never back to the workflow.
type Watcher struct {
	lookup  Lookup
	logger  *slog.Logger
	errs    chan error
	timeout time.Duration
}

type WatcherOption func(*Watcher)

func WithLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithLookupTimeout bounds each lookup.
func WithLookupTimeout(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.timeout = d
		}
	}
}

func NewWatcher(lookup Lookup, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		lookup:  lookup,
		errs:    make(chan error, 32),
		timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = obs.ResolveLogger(w.logger)
	return w
}

// Errors delivers follow-up failures. Errors are dropped when nobody drains it.
func (w *Watcher) Errors() <-chan error { return w.errs }

// Run handles events from s until ctx ends.
func (w *Watcher) Run(ctx context.Context, s *stream.Stream) {
	for evt := range s.Subscribe(ctx) {
		_ = w.Handle(ctx, evt)
	}
}

// Handle processes one event. Only COMPLETED transitions are acted on.
func (w *Watcher) Handle(ctx context.Context, evt workflow.Event) error {
	if evt.Type != workflow.EventTransitioned || evt.To != workflow.StatusCompleted {
		return nil
	}
	lctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	e, err := w.lookup.PendingEarningForRequest(lctx, evt.RequestID)
	if errors.Is(err, ErrNotFound) {
		w.logger.Info("no pending earning for completed request", "event", "earning_missing",
			"module", "earnings", "request_id", evt.RequestID)
		return nil
	}
	if err != nil {
		err = fmt.Errorf("earnings follow-up for %s: %w", evt.RequestID, err)
		w.report(evt, err)
		return err
	}
	if e.Status != StatusPending {
		w.logger.Warn("earning for completed request is not pending", "event", "earning_unexpected_status",
			"module", "earnings", "request_id", evt.RequestID, "earning_id", e.ID, "status", string(e.Status))
		return nil
	}
	w.logger.Info("earning left pending", "event", "earning_pending", "module", "earnings",
		"request_id", evt.RequestID, "earning_id", e.ID, "architect_id", e.ArchitectID, "amount", e.Amount)
	return nil
}

func (w *Watcher) report(evt workflow.Event, err error) {
	obs.EarningsFollowUpFailures.Inc()
	w.logger.Error("earnings follow-up failed", "event", "earning_followup_failed",
		"module", "earnings", "request_id", evt.RequestID, "error", err.Error())
	select {
	case w.errs <- err:
	default:
	}
}
