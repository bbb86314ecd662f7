package notify

import (
	"context"
	"sync"
	"time"
)

// Notification is an in-app message for one user.
type Notification struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Type      string            `json:"type"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Read      bool              `json:"read"`
	CreatedAt time.Time         `json:"created_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Notification types.
const (
	TypeCoachApproved        = "coach_approved"
	TypeCoachRejected        = "coach_rejected"
	TypeCorrectionsRequested = "corrections_requested"
	TypeContractIssued       = "contract_issued"
	TypeOnboardingSubmitted  = "onboarding_submitted"
)

// Hub fan-outs notifications to the live subscribers of each user (SSE clients).
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[int]chan Notification
	next int
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[int]chan Notification)}
}

// Subscribe registers a subscriber for userID. The channel is closed when ctx ends.
func (h *Hub) Subscribe(ctx context.Context, userID string) <-chan Notification {
	ch := make(chan Notification, 16)

	h.mu.Lock()
	id := h.next
	h.next++
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[int]chan Notification)
	}
	h.subs[userID][id] = ch
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs[userID], id)
		if len(h.subs[userID]) == 0 {
			delete(h.subs, userID)
		}
		close(ch)
		h.mu.Unlock()
	}()

	return ch
}

// Publish delivers n to every subscriber of n.UserID.
func (h *Hub) Publish(n Notification) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs[n.UserID] {
		select {
		case ch <- n:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}

// Subscribers returns the number of live subscribers for userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}
