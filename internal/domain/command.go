package domain

import "time"

// ExecutionCommand is one inbound request to compile and execute a source submission.
// It is created by the caller and never mutated by the worker.
type ExecutionCommand struct {
	ExecutionID   string
	ClientID      string
	Source        string
	Submitted     time.Time
	TimeoutPeriod time.Duration

	// RawID is the internal Stream ID from Redis (e.g. 1700000-0).
	// We need this to Acknowledge the message later.
	RawID string
}

// Age returns how long the command has waited since it was submitted.
func (c ExecutionCommand) Age(now time.Time) time.Duration {
	return now.Sub(c.Submitted)
}

// IsStale reports whether the caller's own deadline already elapsed before processing began.
func (c ExecutionCommand) IsStale(now time.Time) bool {
	return c.Age(now) > c.TimeoutPeriod
}

// WorkerResult is the durable outbound record describing the complete outcome of one command.
type WorkerResult struct {
	ExecutionID string
	ClientID    string
	StartTime   time.Time
	StopTime    time.Time
	RunDuration time.Duration

	ExecutionResult

	// Diagnostics is only populated when the outcome is a compile failure.
	Diagnostics []Diagnostic
}
