package state

import "errors"

// Status is a lifecycle state of a build job
type Status string

// Build job lifecycle states. Transitions run started -> progress -> one of
// the terminal states and never reverse.
const (
	StatusStarted  Status = "started"
	StatusProgress Status = "progress"
	StatusFinished Status = "finished"
	StatusKilled   Status = "killed"
	StatusFailed   Status = "failed"
)

// Statuses lists every lifecycle state in order
var Statuses = []Status{
	StatusStarted,
	StatusProgress,
	StatusFinished,
	StatusKilled,
	StatusFailed,
}

// Terminal reports whether the status accepts no further transitions
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusKilled || s == StatusFailed
}

// Known reports whether s is one of the defined lifecycle states
func (s Status) Known() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

var (
	// ErrJobNotFound is returned when a build id is not in the registry
	ErrJobNotFound = errors.New("job not found")

	// ErrJobExists is returned when adding a job whose id is already registered
	ErrJobExists = errors.New("job already exists")

	// ErrJobTerminal is returned when updating a job that already reached a terminal state
	ErrJobTerminal = errors.New("job already in a terminal state")

	// ErrUnknownStatus is returned for a status outside the lifecycle
	ErrUnknownStatus = errors.New("unknown job status")
)
