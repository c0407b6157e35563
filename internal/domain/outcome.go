package domain

import "fmt"

// OutcomeKind is the structured classification of how a command ended.
type OutcomeKind string

const (
	OutcomeValue          OutcomeKind = "value"
	OutcomeTimeout        OutcomeKind = "timeout"
	OutcomeException      OutcomeKind = "exception"
	OutcomeCompileFailure OutcomeKind = "compile_failure"
	OutcomeInternalError  OutcomeKind = "internal_error"
)

// Fixed markers rendered into the outbound Result text.
const (
	TimeoutMarker        = "[execution timed out]"
	CompileFailureMarker = "[compiling of code failed]"
)

// Outcome is the ResultValue of an execution kept as a (kind, detail) pair.
// It is rendered to text only at the outbound boundary.
type Outcome struct {
	Kind   OutcomeKind
	Detail string
}

// ValueOutcome wraps the string form of a computed value.
func ValueOutcome(v string) Outcome { return Outcome{Kind: OutcomeValue, Detail: v} }

// TimeoutOutcome marks a run that was forcibly terminated.
func TimeoutOutcome() Outcome { return Outcome{Kind: OutcomeTimeout} }

// ExceptionOutcome carries a summary of a runtime failure inside the executed code.
func ExceptionOutcome(summary string) Outcome {
	return Outcome{Kind: OutcomeException, Detail: summary}
}

// CompileFailureOutcome marks a submission that never reached the sandbox.
func CompileFailureOutcome() Outcome { return Outcome{Kind: OutcomeCompileFailure} }

// InternalErrorOutcome marks a failure of the execution infrastructure, not of the submitted code.
func InternalErrorOutcome(err error) Outcome {
	return Outcome{Kind: OutcomeInternalError, Detail: err.Error()}
}

// Render returns the text sent to callers in the Result field.
func (o Outcome) Render() string {
	switch o.Kind {
	case OutcomeValue, OutcomeException:
		return o.Detail
	case OutcomeTimeout:
		return TimeoutMarker
	case OutcomeCompileFailure:
		return CompileFailureMarker
	case OutcomeInternalError:
		return fmt.Sprintf("[execution failed: %s]", o.Detail)
	default:
		return o.Detail
	}
}

// ParseOutcomeKind validates a kind received over the wire.
func ParseOutcomeKind(s string) (OutcomeKind, error) {
	switch k := OutcomeKind(s); k {
	case OutcomeValue, OutcomeTimeout, OutcomeException, OutcomeCompileFailure, OutcomeInternalError:
		return k, nil
	}
	return "", fmt.Errorf("unknown outcome kind %q", s)
}
