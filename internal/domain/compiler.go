package domain

// Severity classifies a Diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic is a compiler-produced error or warning tied to a source location.
// Line and Column are 1-based and relative to the submitted text.
type Diagnostic struct {
	Line     int      `json:"line"`
	Column   int      `json:"column"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// CompiledUnit pairs an opaque executable artifact with the diagnostics produced while building it.
type CompiledUnit struct {
	Source      string
	Diagnostics []Diagnostic

	// Artifact is backend specific and nil when compilation failed.
	Artifact any
}

// Executable reports whether the unit may be handed to a Sandbox.
func (u *CompiledUnit) Executable() bool {
	return u != nil && u.Artifact != nil && !HasErrors(u.Diagnostics)
}

// HasErrors reports whether any diagnostic has error severity.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Compiler turns source text into a CompiledUnit. It must only parse and compile, never execute,
// and must be safe for concurrent use.
type Compiler interface {
	Compile(source string) *CompiledUnit
}
