// Package event carries progress notifications out of the engine.
// Delivery is fire-and-forget: a failed publish never rolls back the
// transaction that produced the event.
package event

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Type enumerates the closed set of event variants.
type Type string

const (
	TypeSessionLogged       Type = "session_logged"
	TypeWeekCompleted       Type = "week_completed"
	TypeGoalCompleted       Type = "goal_completed"
	TypeGoalApproved        Type = "goal_approved"
	TypeGoalChangeSuggested Type = "goal_change_suggested"
)

// Event is a single progress notification. Consumers dedupe on
// (GoalID, Type, SessionNumber); delivery is at-least-once.
type Event struct {
	Type          Type      `json:"type"`
	GoalID        string    `json:"goal_id"`
	UserID        string    `json:"user_id"`
	ActorID       string    `json:"actor_id,omitempty"`
	SessionNumber int       `json:"session_number,omitempty"`
	Message       string    `json:"message,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Publisher dispatches events to the notification/feed collaborator.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// LogPublisher writes every event to the structured log. It is the
// default sink when no broker is configured and never fails.
type LogPublisher struct {
	log *zap.SugaredLogger
}

// NewLogPublisher constructs a LogPublisher.
func NewLogPublisher(log *zap.SugaredLogger) *LogPublisher {
	return &LogPublisher{log: log}
}

// Publish logs the event and always succeeds.
func (p *LogPublisher) Publish(_ context.Context, evt Event) error {
	p.log.Infow("goal event",
		"type", string(evt.Type),
		"goal_id", evt.GoalID,
		"user_id", evt.UserID,
		"actor_id", evt.ActorID,
		"session_number", evt.SessionNumber,
		"occurred_at", evt.OccurredAt,
	)
	return nil
}

// Recorder captures events in memory for tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder constructs an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Publish appends the event.
func (r *Recorder) Publish(_ context.Context, evt Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
