package model

import "time"

// Invocation status constants. They mirror the lifecycle states of an
// invocation.
const (
	StatusReady     = "ready"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Event kinds recorded for an invocation.
const (
	EventState     = "state"
	EventMessage   = "message"
	EventStart     = "start"
	EventStatus    = "status"
	EventFailure   = "failure"
	EventException = "exception"
	EventFinally   = "finally"
	EventCancel    = "cancel"
)

// validTransitions maps each status to the set of statuses it may transition to.
var validTransitions = map[string]map[string]bool{
	StatusReady: {
		StatusRunning: true,
		StatusFailed:  true,
	},
	StatusRunning: {
		StatusSucceeded: true,
		StatusFailed:    true,
	},
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Terminal reports whether status is final.
func Terminal(status string) bool {
	return status == StatusSucceeded || status == StatusFailed
}

// Event is a single persisted lifecycle event of an invocation.
type Event struct {
	ID           int64     `json:"id"`
	InvocationID string    `json:"invocation_id"`
	Seq          int       `json:"seq"`
	Kind         string    `json:"kind"`
	Data         string    `json:"data"`
	CreatedAt    time.Time `json:"created_at"`
}

// Invocation is the history record of one service invocation.
type Invocation struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Target     string     `json:"target,omitempty"`
	Status     string     `json:"status"`
	StatusCode *int       `json:"status_code,omitempty"`
	Message    string     `json:"message,omitempty"`
	Error      string     `json:"error,omitempty"`
	DelayMS    int        `json:"delay_ms"`
	Simulated  bool       `json:"simulate_failure"`
	Cancelled  bool       `json:"cancelled"`
	DurationMS *int       `json:"duration_ms,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
