package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"archmarket.io/internal/audit"
	"archmarket.io/internal/contact"
	"archmarket.io/internal/workflow"
)

func TestCompareAndSwapAllowsOneWinner(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.Create(ctx, workflow.ModificationRequest{ID: "mr-1", Status: workflow.StatusRequested}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	var wins, stale int32
	var wg sync.WaitGroup
	for _, to := range []workflow.Status{workflow.StatusPriced, workflow.StatusDeclined, workflow.StatusPriced, workflow.StatusDeclined} {
		wg.Add(1)
		go func(to workflow.Status) {
			defer wg.Done()
			err := s.CompareAndSwap(ctx, workflow.StatusRequested, workflow.ModificationRequest{ID: "mr-1", Status: to})
			switch {
			case err == nil:
				atomic.AddInt32(&wins, 1)
			case errors.Is(err, workflow.ErrStaleStatus):
				atomic.AddInt32(&stale, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(to)
	}
	wg.Wait()
	if wins != 1 || stale != 3 {
		t.Fatalf("expected 1 winner and 3 stale, got %d/%d", wins, stale)
	}
	if err := s.CompareAndSwap(ctx, workflow.StatusRequested, workflow.ModificationRequest{ID: "missing"}); !errors.Is(err, workflow.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.Create(ctx, workflow.ModificationRequest{ID: "mr-1", ScopeTags: []string{"kitchen"}})
	r, _ := s.Get(ctx, "mr-1")
	r.ScopeTags[0] = "mutated"
	again, _ := s.Get(ctx, "mr-1")
	if again.ScopeTags[0] != "kitchen" {
		t.Fatal("stored request was mutated through a returned copy")
	}
}

func TestCreateUnlockStoresAuditEntry(t *testing.T) {
	s := New()
	ctx := audit.WithRequestID(context.Background(), "req-3")
	evt := contact.UnlockEvent{ID: "u-1", DesignID: "d-1", BuyerID: "b-1", ArchitectID: "a-1", Reason: contact.ReasonExclusivePurchase}
	entry := audit.Entry{ID: "au-1", ActorID: "b-1", Action: contact.AuditActionUnlocked, TargetID: "d-1", OccurredAt: time.Now()}

	if err := s.CreateUnlock(ctx, evt, audit.Entry{ActorID: "b-1"}); err == nil {
		t.Fatal("expected invalid audit entry to be rejected")
	}
	if len(s.AuditEntries()) != 0 {
		t.Fatal("rejected unlock left an audit entry")
	}
	if err := s.CreateUnlock(ctx, evt, entry); err != nil {
		t.Fatalf("CreateUnlock: %v", err)
	}
	if err := s.CreateUnlock(ctx, evt, entry); !errors.Is(err, contact.ErrAlreadyUnlocked) {
		t.Fatalf("expected ErrAlreadyUnlocked, got %v", err)
	}
	got := s.AuditEntries()
	if len(got) != 1 || got[0].RequestID != "req-3" {
		t.Fatalf("expected one stamped audit entry, got %+v", got)
	}
}
