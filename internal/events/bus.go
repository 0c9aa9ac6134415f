// Package events fans the orchestrator event stream out to subscribers
// without letting a slow consumer stall capture or hotkey handling.
package events

import (
	"sync"

	"voicesnap/internal/domain"
)

const defaultBuffer = 128

// Bus is a bounded, best-effort event fan-out. Publish never blocks: each
// subscriber owns a fixed-capacity queue drained by its own goroutine. When a
// queue is full, advisory events are dropped first; ordering of the retained
// events is preserved per subscriber.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]*subscriber
	nextID int
	closed bool
}

type subscriber struct {
	mu    sync.Mutex
	queue []domain.Event

	capacity int
	wake     chan struct{}
	out      chan domain.Event
	done     chan struct{}
	once     sync.Once
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]*subscriber)}
}

// Subscribe registers a consumer. The returned cancel func detaches it and
// closes its channel. A buffer of 0 uses the default capacity.
func (b *Bus) Subscribe(buffer int) (<-chan domain.Event, func()) {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	sub := &subscriber{
		capacity: buffer,
		wake:     make(chan struct{}, 1),
		out:      make(chan domain.Event),
		done:     make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.out)
		return sub.out, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	go sub.pump()

	cancel := func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		sub.stop()
	}
	return sub.out, cancel
}

// Publish enqueues the event for every subscriber and returns immediately.
func (b *Bus) Publish(ev domain.Event) {
	b.mu.Lock()
	subs := make([]*subscriber, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		sub.enqueue(ev)
	}
}

// Close detaches every subscriber and closes their channels.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[int]*subscriber)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
}

func (s *subscriber) enqueue(ev domain.Event) {
	s.mu.Lock()
	if len(s.queue) >= s.capacity {
		if ev.Advisory() {
			s.mu.Unlock()
			return
		}
		if !s.dropOldestAdvisory() {
			// Queue holds only non-advisory events; shed the oldest so the
			// terminal event for the newest session is never the one lost.
			s.queue = s.queue[1:]
		}
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) dropOldestAdvisory() bool {
	for i, queued := range s.queue {
		if queued.Advisory() {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return true
		}
	}
	return false
}

func (s *subscriber) pump() {
	for {
		s.mu.Lock()
		var next domain.Event
		ok := len(s.queue) > 0
		if ok {
			next = s.queue[0]
			s.queue = s.queue[1:]
		}
		s.mu.Unlock()

		if !ok {
			select {
			case <-s.wake:
				continue
			case <-s.done:
				close(s.out)
				return
			}
		}

		select {
		case s.out <- next:
		case <-s.done:
			close(s.out)
			return
		}
	}
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}
