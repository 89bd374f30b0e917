// Package feed streams committed turns to professors watching an assignment.
package feed

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/casecoach/internal/domain"
	"github.com/ashureev/casecoach/internal/metrics"
)

// DefaultBuffer is the per-subscriber event buffer.
const DefaultBuffer = 32

// Event is one committed turn as seen by the live feed.
type Event struct {
	Type                string                `json:"type"`
	AssignmentID        string                `json:"assignment_id"`
	SessionID           string                `json:"session_id"`
	StudentMessage      string                `json:"student_message"`
	Phase               domain.Phase          `json:"phase"`
	Content             string                `json:"content"`
	Intent              domain.Intent         `json:"intent,omitempty"`
	FinalRecommendation domain.Recommendation `json:"final_recommendation,omitempty"`
	CreditsRemaining    int                   `json:"credits_remaining"`
	At                  time.Time             `json:"at"`
}

// Subscription receives events for one assignment until cancelled.
type Subscription struct {
	C            <-chan Event
	ch           chan Event
	assignmentID string
	dropped      int
}

// Hub fans events out to per-assignment subscribers. Publishing never blocks:
// a subscriber whose buffer is full misses the event.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	buffer int
	logger *slog.Logger
}

// NewHub creates a Hub. buffer <= 0 selects DefaultBuffer.
func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a subscriber for an assignment.
func (h *Hub) Subscribe(assignmentID string) *Subscription {
	ch := make(chan Event, h.buffer)
	sub := &Subscription{C: ch, ch: ch, assignmentID: assignmentID}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[assignmentID]; !ok {
		h.subs[assignmentID] = make(map[*Subscription]struct{})
	}
	h.subs[assignmentID][sub] = struct{}{}
	metrics.FeedSubscribers.Inc()
	h.logger.Info("Feed subscriber registered", "assignment_id", assignmentID)
	return sub
}

// Unsubscribe removes a subscriber and closes its channel. It is safe to call
// more than once.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.subs[sub.assignmentID]
	if !ok {
		return
	}
	if _, exists := subs[sub]; !exists {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.subs, sub.assignmentID)
	}
	close(sub.ch)
	metrics.FeedSubscribers.Dec()
	h.logger.Info("Feed subscriber unregistered", "assignment_id", sub.assignmentID, "dropped", sub.dropped)
}

// Publish delivers ev to every subscriber of its assignment.
func (h *Hub) Publish(ev Event) {
	if ev.Type == "" {
		ev.Type = "turn"
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[ev.AssignmentID] {
		select {
		case sub.ch <- ev:
		default:
			sub.dropped++
			h.logger.Debug("Feed subscriber slow, event dropped", "assignment_id", ev.AssignmentID)
		}
	}
}

// Subscribers returns the number of subscribers for an assignment.
func (h *Hub) Subscribers(assignmentID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[assignmentID])
}

// Close unsubscribes everyone.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, subs := range h.subs {
		for sub := range subs {
			close(sub.ch)
			metrics.FeedSubscribers.Dec()
		}
		delete(h.subs, id)
	}
}
