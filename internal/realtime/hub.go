// Package realtime fans committed goal snapshots out to websocket
// subscribers. It is a notification mechanism only: every invariant is
// established inside a store transaction before the hub hears about it.
package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pactlog/internal/db"
)

const sendBuffer = 8

// Subscription is one listener on a single goal's document.
type Subscription struct {
	ID     uuid.UUID
	GoalID string
	C      chan []byte
}

// Hub tracks subscriptions per goal id.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]bool
	log  *zap.SugaredLogger
}

// NewHub constructs an empty hub.
func NewHub(log *zap.SugaredLogger) *Hub {
	return &Hub{
		subs: make(map[string]map[*Subscription]bool),
		log:  log,
	}
}

// Subscribe registers a listener for the goal.
func (h *Hub) Subscribe(goalID string) *Subscription {
	sub := &Subscription{
		ID:     uuid.New(),
		GoalID: goalID,
		C:      make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	if _, ok := h.subs[goalID]; !ok {
		h.subs[goalID] = make(map[*Subscription]bool)
	}
	h.subs[goalID][sub] = true
	h.mu.Unlock()

	return sub
}

// Unsubscribe removes the listener and closes its channel.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if listeners, ok := h.subs[sub.GoalID]; ok {
		if listeners[sub] {
			delete(listeners, sub)
			close(sub.C)
		}
		if len(listeners) == 0 {
			delete(h.subs, sub.GoalID)
		}
	}
}

// GoalUpdated pushes a fresh snapshot to every listener of the goal.
// Slow listeners are dropped rather than blocking the caller.
func (h *Hub) GoalUpdated(goal *db.Goal) {
	if goal == nil {
		return
	}

	raw, err := json.Marshal(Snapshot(goal))
	if err != nil {
		h.log.Warnw("marshal goal snapshot", "goal_id", goal.ID, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	listeners, ok := h.subs[goal.ID]
	if !ok {
		return
	}
	for sub := range listeners {
		select {
		case sub.C <- raw:
		default:
			delete(listeners, sub)
			close(sub.C)
			h.log.Warnw("dropped slow subscriber", "goal_id", goal.ID, "subscription", sub.ID)
		}
	}
	if len(listeners) == 0 {
		delete(h.subs, goal.ID)
	}
}

// GoalSnapshot is the wire shape streamed to subscribers.
type GoalSnapshot struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	Title           string     `json:"title"`
	WeekStart       *time.Time `json:"week_start,omitempty"`
	WeeklyCount     int        `json:"weekly_count"`
	IsWeekCompleted bool       `json:"is_week_completed"`
	CurrentCount    int        `json:"current_count"`
	TargetCount     int        `json:"target_count"`
	SessionsPerWeek int        `json:"sessions_per_week"`
	ApprovalStatus  string     `json:"approval_status"`
	IsCompleted     bool       `json:"is_completed"`
	IsFinished      bool       `json:"is_finished"`
	IsUnlocked      bool       `json:"is_unlocked"`
	CouponCode      *string    `json:"coupon_code,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Snapshot projects a goal row into its streaming shape.
func Snapshot(goal *db.Goal) GoalSnapshot {
	return GoalSnapshot{
		ID:              goal.ID,
		UserID:          goal.UserID,
		Title:           goal.Title,
		WeekStart:       goal.WeekStart,
		WeeklyCount:     goal.WeeklyCount,
		IsWeekCompleted: goal.IsWeekCompleted,
		CurrentCount:    goal.CurrentCount,
		TargetCount:     goal.TargetCount,
		SessionsPerWeek: goal.SessionsPerWeek,
		ApprovalStatus:  goal.ApprovalStatus,
		IsCompleted:     goal.IsCompleted,
		IsFinished:      goal.IsFinished,
		IsUnlocked:      goal.IsUnlocked,
		CouponCode:      goal.CouponCode,
		UpdatedAt:       goal.UpdatedAt,
	}
}
