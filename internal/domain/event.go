package domain

import (
	"time"

	"github.com/google/uuid"
)

// Outcome is the terminal state of a cycle.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial" // persisted, but some rows were skipped
	OutcomeFailed  Outcome = "failed"
)

// CycleEvent is the structured record emitted once per cycle.
type CycleEvent struct {
	ID          string        `json:"id"`
	Source      string        `json:"source"`
	Destination string        `json:"destination"`
	Stage       Stage         `json:"stage"` // last stage reached
	Outcome     Outcome       `json:"outcome"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration_ns"`
	Bytes       int           `json:"bytes"`
	Rows        int           `json:"rows"`
	SkippedRows int           `json:"skipped_rows"`
	StatusCode  int           `json:"status_code,omitempty"`
	Missing     []string      `json:"missing_columns,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// NewCycleEvent starts an event for a cycle beginning at startedAt.
func NewCycleEvent(source, destination string, startedAt time.Time) CycleEvent {
	return CycleEvent{
		ID:          uuid.NewString(),
		Source:      source,
		Destination: destination,
		Stage:       StageFetch,
		StartedAt:   startedAt.UTC(),
	}
}
