package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"archmarket.io/internal/workflow"
)

func TestSubscribeReceivesAndClosesOnCancel(t *testing.T) {
	s := New(4)
	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Subscribe(ctx)

	s.Publish(workflow.Event{RequestID: "mr-1", To: workflow.StatusPriced})
	select {
	case evt := <-ch:
		if evt.RequestID != "mr-1" {
			t.Fatalf("unexpected event: %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	s := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_ = s.Subscribe(ctx)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			s.Publish(workflow.Event{RequestID: "mr"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

type fakeChannel struct {
	mu        sync.Mutex
	declared  string
	keys      []string
	published []amqp.Publishing
	failNext  bool
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	f.declared = name + "/" + kind
	return nil
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return errors.New("channel closed")
	}
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.keys)
}

func TestAMQPForwarder(t *testing.T) {
	ch := &fakeChannel{failNext: true}
	fwd, err := NewAMQPForwarder(ch, "", nil)
	if err != nil {
		t.Fatalf("NewAMQPForwarder: %v", err)
	}
	if ch.declared != DefaultExchange+"/topic" {
		t.Fatalf("unexpected exchange declaration %q", ch.declared)
	}

	s := New(8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		fwd.Run(ctx, s)
		close(done)
	}()
	for s.Subscribers() == 0 {
		time.Sleep(time.Millisecond)
	}

	s.Publish(workflow.Event{Type: workflow.EventTransitioned, RequestID: "mr-0", To: workflow.StatusPriced})
	s.Publish(workflow.Event{Type: workflow.EventTransitioned, RequestID: "mr-1", To: workflow.StatusCompleted})

	deadline := time.After(time.Second)
	for ch.count() < 1 {
		select {
		case <-deadline:
			t.Fatal("event not forwarded")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	cancel()
	<-done

	if ch.keys[0] != "modification_request.transitioned.completed" {
		t.Fatalf("unexpected routing key %q", ch.keys[0])
	}
	if ch.published[0].ContentType != "application/json" || ch.published[0].DeliveryMode != amqp.Persistent {
		t.Fatalf("unexpected publishing: %+v", ch.published[0])
	}
}
