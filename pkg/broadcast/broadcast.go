// Package broadcast implements the publish -> subscribers fan-out channel:
// a multi-consumer, lossy-for-slow-consumers broadcast, generalized from the
// teacher's single-type event broker into a generic publisher/subscriber
// pair so it can carry ingest messages without an interface-boxing cost.
package broadcast

import (
	"context"
	"sync"
)

// DefaultCapacity is the per-subscriber channel capacity.
const DefaultCapacity = 20000

// Publisher fans a stream of values out to any number of Subscribers. A
// subscriber that falls behind does not back-pressure the publisher: its
// oldest buffered item is dropped to make room, and the drop count is
// surfaced to the subscriber once as a Lagged value.
type Publisher[T any] struct {
	mu     sync.RWMutex
	subs   map[*Subscriber[T]]struct{}
	closed bool
	cap    int
}

// NewPublisher creates a Publisher with the given per-subscriber capacity.
// A capacity <= 0 uses DefaultCapacity.
func NewPublisher[T any](capacity int) *Publisher[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Publisher[T]{
		subs: make(map[*Subscriber[T]]struct{}),
		cap:  capacity,
	}
}

// Subscriber receives values published after it subscribed. It is not
// notified of anything published before Subscribe returned.
type Subscriber[T any] struct {
	ch     chan T
	lagged chan struct{} // signaled (non-blocking) whenever a drop occurs
	mu     sync.Mutex
	lag    uint64
	closed bool
}

// Subscribe registers a new subscriber.
func (p *Publisher[T]) Subscribe() *Subscriber[T] {
	s := &Subscriber[T]{
		ch:     make(chan T, p.cap),
		lagged: make(chan struct{}, 1),
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		close(s.ch)
		s.closed = true
		return s
	}
	p.subs[s] = struct{}{}
	return s
}

// Unsubscribe removes a subscriber. Safe to call more than once.
func (p *Publisher[T]) Unsubscribe(s *Subscriber[T]) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.subs[s]; ok {
		delete(p.subs, s)
	}
}

// Publish delivers v to every current subscriber. A subscriber whose
// channel is full has its oldest buffered value dropped to make room; the
// new value is never dropped in favor of an old one.
func (p *Publisher[T]) Publish(v T) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for s := range p.subs {
		s.send(v)
	}
}

func (s *Subscriber[T]) send(v T) {
	select {
	case s.ch <- v:
		return
	default:
	}
	// Full: drop the oldest buffered value and retry once.
	select {
	case <-s.ch:
		s.mu.Lock()
		s.lag++
		s.mu.Unlock()
		select {
		case s.lagged <- struct{}{}:
		default:
		}
	default:
	}
	select {
	case s.ch <- v:
	default:
		// Another producer raced us to the freed slot; count this as lag
		// too rather than blocking the publisher.
		s.mu.Lock()
		s.lag++
		s.mu.Unlock()
		select {
		case s.lagged <- struct{}{}:
		default:
		}
	}
}

// Close closes every current subscriber's channel, causing their next Recv
// to return closed=true.
func (p *Publisher[T]) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for s := range p.subs {
		close(s.ch)
		s.closed = true
	}
	p.subs = make(map[*Subscriber[T]]struct{})
}

// Recv blocks until a value is available, the publisher closes (closed=true),
// or the accumulated lag counter has a fresh non-zero value to surface
// (lagged>0, value and closed are both zero values — callers should check
// lagged first). The subscriber resumes live delivery on the next call;
// missed values are never backfilled.
func (s *Subscriber[T]) Recv() (v T, lagged uint64, closed bool) {
	s.mu.Lock()
	pending := s.lag
	s.lag = 0
	s.mu.Unlock()
	if pending > 0 {
		return v, pending, false
	}
	val, ok := <-s.ch
	if !ok {
		return v, 0, true
	}
	return val, 0, false
}

// Chan exposes the underlying channel for use in a caller-driven select
// alongside other readiness signals (e.g. a subscription's client-closed
// signal). Lag accounting must still go through Recv for correctness when
// used this way; direct channel reads bypass the lag counter.
func (s *Subscriber[T]) Chan() <-chan T {
	return s.ch
}

// RecvCtx behaves like Recv, but the wait for the next value is a true
// select against ctx alongside the channel, so a caller parked here is
// interrupted the moment ctx is done instead of only noticing between
// calls. cancelled reports that ctx ended the wait; v, lagged and closed
// are unset in that case.
func (s *Subscriber[T]) RecvCtx(ctx context.Context) (v T, lagged uint64, closed bool, cancelled bool) {
	s.mu.Lock()
	pending := s.lag
	s.lag = 0
	s.mu.Unlock()
	if pending > 0 {
		return v, pending, false, false
	}
	select {
	case <-ctx.Done():
		return v, 0, false, true
	case val, ok := <-s.Chan():
		if !ok {
			return v, 0, true, false
		}
		return val, 0, false, false
	}
}
