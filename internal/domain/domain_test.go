package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExecutionCommandIsStale(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		submitted time.Time
		timeout   time.Duration
		stale     bool
	}{
		{"fresh", now.Add(-time.Second), 5 * time.Second, false},
		{"exactly at budget", now.Add(-5 * time.Second), 5 * time.Second, false},
		{"past budget", now.Add(-10 * time.Second), 5 * time.Second, true},
		{"submitted in the future", now.Add(time.Minute), time.Second, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := ExecutionCommand{Submitted: tt.submitted, TimeoutPeriod: tt.timeout}
			assert.Equal(t, tt.stale, cmd.IsStale(now))
		})
	}
}

func TestCompiledUnitExecutable(t *testing.T) {
	var nilUnit *CompiledUnit
	assert.False(t, nilUnit.Executable())

	assert.False(t, (&CompiledUnit{}).Executable(), "no artifact")

	warn := []Diagnostic{{Line: 1, Column: 1, Message: "source is empty", Severity: SeverityWarning}}
	assert.True(t, (&CompiledUnit{Artifact: struct{}{}, Diagnostics: warn}).Executable())

	errs := append(warn, Diagnostic{Line: 2, Column: 3, Message: "Unexpected token", Severity: SeverityError})
	assert.False(t, (&CompiledUnit{Artifact: struct{}{}, Diagnostics: errs}).Executable())
}

func TestOutcomeRender(t *testing.T) {
	assert.Equal(t, "2", ValueOutcome("2").Render())
	assert.Equal(t, TimeoutMarker, TimeoutOutcome().Render())
	assert.Equal(t, CompileFailureMarker, CompileFailureOutcome().Render())
	assert.Equal(t, "TypeError: boom", ExceptionOutcome("TypeError: boom").Render())
	assert.Equal(t, "[execution failed: runner missing]", InternalErrorOutcome(errors.New("runner missing")).Render())
}

func TestParseOutcomeKind(t *testing.T) {
	k, err := ParseOutcomeKind("timeout")
	assert.NoError(t, err)
	assert.Equal(t, OutcomeTimeout, k)

	_, err = ParseOutcomeKind("bogus")
	assert.Error(t, err)
}
