package http

import (
	"sync"
	"time"
)

// Event is one outbound payload seen by the session controller
type Event struct {
	Seq         uint64    `json:"seq"`
	Timestamp   time.Time `json:"timestamp"`
	Destination string    `json:"destination"`
	Payload     string    `json:"payload"`
}

// EventLog keeps the most recent events in a ring and fans new ones out
// to subscribers. Slow subscribers miss events rather than block the
// controller.
type EventLog struct {
	mu      sync.Mutex
	entries []Event
	head    int
	size    int
	seq     uint64
	subs    map[chan Event]struct{}
	closed  bool
	now     func() time.Time
}

// NewEventLog creates a log holding up to capacity events
func NewEventLog(capacity int) *EventLog {
	if capacity <= 0 {
		capacity = 1
	}
	return &EventLog{
		entries: make([]Event, capacity),
		subs:    make(map[chan Event]struct{}),
		now:     time.Now,
	}
}

// Record appends an event. Its signature matches session.Observer.
func (l *EventLog) Record(destination, payload string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	ev := Event{
		Seq:         l.seq,
		Timestamp:   l.now(),
		Destination: destination,
		Payload:     payload,
	}
	l.entries[l.head] = ev
	l.head = (l.head + 1) % len(l.entries)
	if l.size < len(l.entries) {
		l.size++
	}

	for ch := range l.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Recent returns up to limit events, newest first. A non-positive limit
// returns everything held.
func (l *EventLog) Recent(limit int) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	if limit <= 0 || limit > l.size {
		limit = l.size
	}
	out := make([]Event, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (l.head - 1 - i + len(l.entries)) % len(l.entries)
		out = append(out, l.entries[idx])
	}
	return out
}

// Subscribe returns a channel receiving every later event and a cancel
// func that closes it. The channel is closed immediately once the log
// is closed.
func (l *EventLog) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, max(buffer, 1))

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	l.subs[ch] = struct{}{}
	l.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if _, ok := l.subs[ch]; ok {
				delete(l.subs, ch)
				close(ch)
			}
		})
	}
}

// Subscribers returns the number of live subscriptions
func (l *EventLog) Subscribers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs)
}

// Close ends every subscription. Recording continues to fill the ring.
func (l *EventLog) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	for ch := range l.subs {
		delete(l.subs, ch)
		close(ch)
	}
}
