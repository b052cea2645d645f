package status

import (
	"errors"
	"fmt"
)

// Status tracks where a conversation is in its lifecycle. A conversation is
// active while a response run is in flight, parks in waiting_reply when the
// agent explicitly asked the user to answer, and lands in one of the terminal
// states when a run ends. Any state can be reactivated by a new inbound email.
type Status string

const (
	// StatusActive means a response run is in progress or queued.
	StatusActive Status = "active"
	// StatusWaitingReply means the agent halted and is waiting for the user's
	// next email; the history is preserved for resumption.
	StatusWaitingReply Status = "waiting_reply"
	// StatusCompleted means the last run finished its task.
	StatusCompleted Status = "completed"
	// StatusFailed means the last run ended with a fatal error.
	StatusFailed Status = "failed"
	// StatusCycleLimited means the last run stopped at the cycle limit.
	StatusCycleLimited Status = "cycle_limited"
)

// ErrInvalidTransition is returned when a state change is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// ValidTransitions defines the allowed state changes. Every non-active state
// can transition back to active because a new inbound email resumes or
// reactivates the conversation.
var ValidTransitions = map[Status][]Status{
	StatusActive:       {StatusWaitingReply, StatusCompleted, StatusFailed, StatusCycleLimited},
	StatusWaitingReply: {StatusActive},
	StatusCompleted:    {StatusActive},
	StatusFailed:       {StatusActive},
	StatusCycleLimited: {StatusActive},
}

// Parse validates a status string against the known lifecycle states.
func Parse(s string) (Status, error) {
	switch Status(s) {
	case StatusActive, StatusWaitingReply, StatusCompleted, StatusFailed, StatusCycleLimited:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// IsTerminal reports whether the last run reached a final outcome.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCycleLimited:
		return true
	default:
		return false
	}
}

// IsRunning reports whether a response run is currently in flight or queued.
func (s Status) IsRunning() bool {
	return s == StatusActive
}

// CanTransitionTo reports whether the change to target is allowed.
func (s Status) CanTransitionTo(target Status) bool {
	for _, allowed := range ValidTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// TransitionTo validates and performs the state change.
func (s Status) TransitionTo(target Status) (Status, error) {
	if !s.CanTransitionTo(target) {
		return s, ErrInvalidTransition
	}
	return target, nil
}
