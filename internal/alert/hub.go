// Package alert routes face-detection alerts to the one exam session they belong to.
//
// Frames are analysed on whichever API instance received them, so alerts travel
// through Redis: the Publisher writes to the session's channel and every
// instance runs a Relay that feeds its local Hub. The Hub is a registry keyed by
// session id; an alert is only ever delivered to subscribers of its own session.
package alert

import (
	"sync"
	"time"
)

// Alert is a status update produced for one proctoring session.
type Alert struct {
	SessionID      string    `json:"session_id"`
	Type           string    `json:"type"`
	Message        string    `json:"message"`
	FaceCount      int       `json:"face_count"`
	Classification string    `json:"classification"`
	At             time.Time `json:"at"`
}

type subscription struct {
	ch   chan Alert
	once sync.Once
}

// Hub is the in-process session-keyed subscription registry.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscription]struct{}
	buffer int
}

// NewHub creates a Hub whose subscriber channels hold up to buffer pending alerts.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{subs: make(map[string]map[*subscription]struct{}), buffer: buffer}
}

// Subscribe registers a sink for one session. The returned cancel func removes
// it and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe(sessionID string) (<-chan Alert, func()) {
	sub := &subscription{ch: make(chan Alert, h.buffer)}

	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[*subscription]struct{})
	}
	h.subs[sessionID][sub] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		sub.once.Do(func() {
			h.mu.Lock()
			if set, ok := h.subs[sessionID]; ok {
				delete(set, sub)
				if len(set) == 0 {
					delete(h.subs, sessionID)
				}
			}
			close(sub.ch)
			h.mu.Unlock()
		})
	}
	return sub.ch, cancel
}

// Dispatch delivers the alert to the subscribers of a.SessionID and returns how
// many received it. Slow subscribers whose buffer is full miss the alert.
func (h *Hub) Dispatch(a Alert) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for sub := range h.subs[a.SessionID] {
		select {
		case sub.ch <- a:
			delivered++
		default:
		}
	}
	return delivered
}

// Subscribers returns the number of live subscribers of a session.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}
