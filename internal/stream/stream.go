// Package stream fans evaluated punches out to subscribed reviewers (the
// admin dashboard's live feed over SSE).
package stream

import (
	"sync"
	"time"
)

// PunchEvent describes one evaluated punch for the live feed.
type PunchEvent struct {
	PunchID   string    `json:"punch_id"`
	UserID    string    `json:"user_id"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	Score     float64   `json:"score"`
	Timestamp time.Time `json:"timestamp"`
}

const subscriberBuffer = 16

// Stream fan-outs punch events to all active subscribers.
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan PunchEvent
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan PunchEvent)}
}

// Subscribe registers a listener. The returned cancel func must be called
// when the client disconnects.
func (s *Stream) Subscribe() (<-chan PunchEvent, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.next
	s.next++
	ch := make(chan PunchEvent, subscriberBuffer)
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber. Slow subscribers with a
// full buffer are skipped rather than blocking the punch request.
func (s *Stream) Publish(event PunchEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribers returns the number of active listeners.
func (s *Stream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
