package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

// DefaultQueueCapacity matches the line retention of the web viewer
const DefaultQueueCapacity = 5000

// ErrClosed is returned by Next once the subscriber has been removed
var ErrClosed = errors.New("subscriber closed")

// Subscriber is one live viewer. The broadcaster fills its queue; the owner
// drains it with Next.
type Subscriber struct {
	id uint64

	mu      sync.Mutex
	queue   *ring
	closed  bool
	dropped int64

	notify chan struct{} // capacity 1, signalled on push
	done   chan struct{} // closed exactly once on removal
}

func newSubscriber(id uint64, capacity int) *Subscriber {
	return &Subscriber{
		id:     id,
		queue:  newRing(capacity),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// ID returns the subscriber's identifier, unique per broadcaster
func (s *Subscriber) ID() uint64 {
	return s.id
}

// push enqueues l, dropping the oldest line if the queue is full
func (s *Subscriber) push(l Line) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.queue.push(l) {
		s.dropped++
	}
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Next blocks until a line is available, the subscriber is closed, or ctx
// is done. Lines still queued at close time are discarded.
func (s *Subscriber) Next(ctx context.Context) (Line, error) {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return Line{}, ErrClosed
		}
		if l, ok := s.queue.pop(); ok {
			s.mu.Unlock()
			return l, nil
		}
		s.mu.Unlock()

		select {
		case <-s.notify:
		case <-s.done:
		case <-ctx.Done():
			return Line{}, ctx.Err()
		}
	}
}

// Done is closed when the subscriber is removed
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

// Len returns the number of queued lines
func (s *Subscriber) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.len()
}

// Dropped returns how many lines were discarded because the queue was full
func (s *Subscriber) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// close marks the subscriber closed. Returns false if it already was.
func (s *Subscriber) close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	s.queue = newRing(1)
	close(s.done)
	return true
}

// Broadcaster fans one line producer out to any number of subscribers.
// Publish never blocks on a slow subscriber.
type Broadcaster struct {
	capacity int
	logger   *slog.Logger

	mu      sync.RWMutex
	clients map[uint64]*Subscriber
	closed  bool

	nextID    atomic.Uint64
	published atomic.Int64
}

// NewBroadcaster creates a broadcaster whose subscribers buffer up to
// capacity lines each
func NewBroadcaster(capacity int, logger *slog.Logger) *Broadcaster {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		capacity: capacity,
		logger:   logger,
		clients:  make(map[uint64]*Subscriber),
	}
}

// Subscribe registers a new subscriber with an empty queue. After Close the
// returned subscriber is already closed.
func (b *Broadcaster) Subscribe() *Subscriber {
	sub := newSubscriber(b.nextID.Add(1), b.capacity)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		sub.close()
		return sub
	}
	b.clients[sub.id] = sub

	b.logger.Debug("Subscriber registered", "subscriber", sub.id, "clients", len(b.clients))
	return sub
}

// Unsubscribe removes and closes sub. Safe to call more than once and
// concurrently with Publish.
func (b *Broadcaster) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	if cur, ok := b.clients[sub.id]; ok && cur == sub {
		delete(b.clients, sub.id)
	}
	remaining := len(b.clients)
	b.mu.Unlock()

	if sub.close() {
		b.logger.Debug("Subscriber removed",
			"subscriber", sub.id,
			"dropped", sub.Dropped(),
			"clients", remaining)
	}
}

// Publish delivers l to every current subscriber
func (b *Broadcaster) Publish(l Line) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, sub := range b.clients {
		sub.push(l)
	}
	b.published.Add(1)
}

// Count returns the number of connected subscribers
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Published returns the number of lines published so far
func (b *Broadcaster) Published() int64 {
	return b.published.Load()
}

// Close removes every subscriber. Later publishes are ignored.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	clients := b.clients
	b.clients = make(map[uint64]*Subscriber)
	b.closed = true
	b.mu.Unlock()

	for _, sub := range clients {
		sub.close()
	}
	b.logger.Debug("Broadcaster closed", "clients", len(clients))
}
