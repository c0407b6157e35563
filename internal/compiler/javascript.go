// Package compiler turns submitted JavaScript into executable goja programs
// or into positioned diagnostics, without running anything.
package compiler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dop251/goja"
	"github.com/dop251/goja/parser"

	"github.com/dontdude/goxec-eval/internal/domain"
)

const (
	// The submitted text is a function body so that a top-level return is legal.
	// The header sits on its own line; diagnostics are shifted back by one line.
	wrapperHeader = "(function() {\n"
	wrapperFooter = "\n})()"
	headerLines   = 1

	fileName = "submission.js"

	// DefaultMaxSourceBytes applies when NewJavaScript is given a non-positive limit.
	DefaultMaxSourceBytes = 64 * 1024
)

// JavaScript compiles submissions with goja. It holds no mutable state and is safe
// for concurrent use.
type JavaScript struct {
	maxSourceBytes int
}

var _ domain.Compiler = (*JavaScript)(nil)

// NewJavaScript returns a compiler rejecting sources larger than maxSourceBytes.
func NewJavaScript(maxSourceBytes int) *JavaScript {
	if maxSourceBytes <= 0 {
		maxSourceBytes = DefaultMaxSourceBytes
	}
	return &JavaScript{maxSourceBytes: maxSourceBytes}
}

// Compile parses and compiles source. On success the unit's Artifact is a *goja.Program.
func (c *JavaScript) Compile(source string) (unit *domain.CompiledUnit) {
	unit = &domain.CompiledUnit{Source: source}

	if len(source) > c.maxSourceBytes {
		unit.Diagnostics = append(unit.Diagnostics, domain.Diagnostic{
			Line:     1,
			Column:   1,
			Message:  fmt.Sprintf("source is %d bytes, limit is %d", len(source), c.maxSourceBytes),
			Severity: domain.SeverityError,
		})
		return unit
	}

	if strings.TrimSpace(source) == "" {
		unit.Diagnostics = append(unit.Diagnostics, domain.Diagnostic{
			Line:     1,
			Column:   1,
			Message:  "source is empty",
			Severity: domain.SeverityWarning,
		})
	}

	defer func() {
		if r := recover(); r != nil {
			unit.Artifact = nil
			unit.Diagnostics = append(unit.Diagnostics, domain.Diagnostic{
				Line:     1,
				Column:   1,
				Message:  fmt.Sprintf("internal compiler error: %v", r),
				Severity: domain.SeverityError,
			})
		}
	}()

	wrapped := Wrap(source)
	lines := strings.Count(source, "\n") + 1

	ast, err := parser.ParseFile(nil, fileName, wrapped, 0)
	if err != nil {
		unit.Diagnostics = append(unit.Diagnostics, parseDiagnostics(err, lines)...)
		return unit
	}

	prog, err := goja.CompileAST(ast, false)
	if err != nil {
		unit.Diagnostics = append(unit.Diagnostics, compileDiagnostic(err, lines))
		return unit
	}

	unit.Artifact = prog
	return unit
}

// Wrap returns the text goja actually compiles for a submission.
func Wrap(source string) string {
	return wrapperHeader + source + wrapperFooter
}

// Program extracts the compiled goja program from a unit built by this package.
func Program(unit *domain.CompiledUnit) (*goja.Program, bool) {
	if unit == nil {
		return nil, false
	}
	p, ok := unit.Artifact.(*goja.Program)
	return p, ok && p != nil
}

func parseDiagnostics(err error, lines int) []domain.Diagnostic {
	var list parser.ErrorList
	if errors.As(err, &list) {
		diags := make([]domain.Diagnostic, 0, len(list))
		for _, e := range list {
			diags = append(diags, errorDiagnostic(e.Position.Line, e.Position.Column, e.Message, lines))
		}
		return diags
	}
	var single *parser.Error
	if errors.As(err, &single) {
		return []domain.Diagnostic{errorDiagnostic(single.Position.Line, single.Position.Column, single.Message, lines)}
	}
	return []domain.Diagnostic{errorDiagnostic(0, 0, err.Error(), lines)}
}

func compileDiagnostic(err error, lines int) domain.Diagnostic {
	var syntaxErr *goja.CompilerSyntaxError
	if errors.As(err, &syntaxErr) && syntaxErr.File != nil {
		pos := syntaxErr.File.Position(syntaxErr.Offset)
		return errorDiagnostic(pos.Line, pos.Column, syntaxErr.Message, lines)
	}
	var refErr *goja.CompilerReferenceError
	if errors.As(err, &refErr) && refErr.File != nil {
		pos := refErr.File.Position(refErr.Offset)
		return errorDiagnostic(pos.Line, pos.Column, refErr.Message, lines)
	}
	return errorDiagnostic(0, 0, err.Error(), lines)
}

// errorDiagnostic maps a position in the wrapped text back onto the submission.
func errorDiagnostic(line, column int, msg string, lines int) domain.Diagnostic {
	line -= headerLines
	if line < 1 {
		line, column = 1, 1
	}
	if line > lines {
		line = lines
	}
	if column < 1 {
		column = 1
	}
	return domain.Diagnostic{
		Line:     line,
		Column:   column,
		Message:  msg,
		Severity: domain.SeverityError,
	}
}
