package stream

import (
	"context"
	"sync"

	"archmarket.io/internal/obs"
	"archmarket.io/internal/workflow"
)

const defaultBuffer = 64

// Stream fan-outs committed workflow events to in-process subscribers.
type Stream struct {
	mu     sync.RWMutex
	subs   map[int]chan workflow.Event
	next   int
	buffer int
}

// New initialises an empty stream. buffer <= 0 selects the default per-subscriber buffer.
func New(buffer int) *Stream {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Stream{
		subs:   make(map[int]chan workflow.Event),
		buffer: buffer,
	}
}

// Subscribe registers a subscriber and returns a channel which will receive events.
// The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan workflow.Event {
	ch := make(chan workflow.Event, s.buffer)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers without blocking the caller.
func (s *Stream) Publish(evt workflow.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			obs.StreamDropped.Inc()
		}
	}
}

// Subscribers returns the number of active subscribers.
func (s *Stream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
