package earnings

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"archmarket.io/internal/stream"
	"archmarket.io/internal/workflow"
)

type lookupFunc func(ctx context.Context, requestID string) (Earning, error)

func (f lookupFunc) PendingEarningForRequest(ctx context.Context, requestID string) (Earning, error) {
	return f(ctx, requestID)
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)) }

func completed(id string) workflow.Event {
	return workflow.Event{Type: workflow.EventTransitioned, RequestID: id, From: workflow.StatusDelivered, To: workflow.StatusCompleted}
}

func TestHandleIgnoresOtherTransitions(t *testing.T) {
	calls := 0
	w := NewWatcher(lookupFunc(func(context.Context, string) (Earning, error) {
		calls++
		return Earning{}, nil
	}), WithLogger(quiet()))

	_ = w.Handle(context.Background(), workflow.Event{Type: workflow.EventTransitioned, To: workflow.StatusDelivered})
	_ = w.Handle(context.Background(), workflow.Event{Type: workflow.EventCreated, To: workflow.StatusRequested})
	if calls != 0 {
		t.Fatalf("expected no lookups, got %d", calls)
	}
}

func TestHandleLeavesPendingEarning(t *testing.T) {
	var seen string
	w := NewWatcher(lookupFunc(func(_ context.Context, id string) (Earning, error) {
		seen = id
		return Earning{ID: "e-1", RequestID: id, Status: StatusPending, Amount: 5000}, nil
	}), WithLogger(quiet()))

	if err := w.Handle(context.Background(), completed("mr-1")); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if seen != "mr-1" {
		t.Fatalf("lookup called with %q", seen)
	}
	if err := w.Handle(context.Background(), completed("mr-2")); err != nil {
		t.Fatalf("Handle: %v", err)
	}
}

func TestHandleReportsFailuresOnOwnChannel(t *testing.T) {
	boom := errors.New("payout db down")
	w := NewWatcher(lookupFunc(func(context.Context, string) (Earning, error) {
		return Earning{}, boom
	}), WithLogger(quiet()))

	err := w.Handle(context.Background(), completed("mr-3"))
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped failure, got %v", err)
	}
	select {
	case got := <-w.Errors():
		if !errors.Is(got, boom) {
			t.Fatalf("unexpected error on channel: %v", got)
		}
	default:
		t.Fatal("failure not reported on error channel")
	}

	missing := NewWatcher(lookupFunc(func(context.Context, string) (Earning, error) {
		return Earning{}, ErrNotFound
	}), WithLogger(quiet()))
	if err := missing.Handle(context.Background(), completed("mr-4")); err != nil {
		t.Fatalf("missing earning is not a failure: %v", err)
	}
}

func TestRunConsumesStream(t *testing.T) {
	got := make(chan string, 1)
	w := NewWatcher(lookupFunc(func(_ context.Context, id string) (Earning, error) {
		got <- id
		return Earning{Status: StatusPending}, nil
	}), WithLogger(quiet()))

	s := stream.New(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx, s)
	for s.Subscribers() == 0 {
		time.Sleep(time.Millisecond)
	}
	s.Publish(completed("mr-5"))

	select {
	case id := <-got:
		if id != "mr-5" {
			t.Fatalf("unexpected request id %q", id)
		}
	case <-time.After(time.Second):
		t.Fatal("watcher did not handle event")
	}
}
