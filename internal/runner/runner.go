// Package runner is the child side of the process sandbox. It reads one request,
// hardens its own process, evaluates the submission and reports on stderr.
package runner

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/dop251/goja"

	"github.com/dontdude/goxec-eval/internal/compiler"
	"github.com/dontdude/goxec-eval/internal/protocol"
)

// Arg is the command-line argument that switches a worker binary into runner mode.
const Arg = "sandbox-runner"

// StackOverflowSummary is reported when the submission exceeds the call stack limit.
const StackOverflowSummary = "RangeError: Maximum call stack size exceeded"

// Exit codes of Main.
const (
	ExitOK         = 0
	ExitSetupError = 2
	ExitReport     = 3
)

// Main runs one request end to end. Console output goes to stdout; the response is
// the last line written to stderr.
func Main(stdin io.Reader, stdout, stderr io.Writer) int {
	req, err := protocol.DecodeRequest(stdin)
	if err != nil {
		return reportSetupError(stderr, err)
	}

	if err := harden(req); err != nil {
		return reportSetupError(stderr, err)
	}

	resp := Evaluate(req, stdout)
	resp.CPUTimeNS = cpuTime().Nanoseconds()

	if err := protocol.EncodeResponse(stderr, resp); err != nil {
		return ExitReport
	}
	return ExitOK
}

func reportSetupError(stderr io.Writer, err error) int {
	_ = protocol.EncodeResponse(stderr, &protocol.Response{
		Status: protocol.StatusSetupError,
		Error:  err.Error(),
	})
	return ExitSetupError
}

// Evaluate compiles and runs the request's source in a fresh goja runtime.
// Nothing escapes as a panic: failures of the code become exception responses.
func Evaluate(req *protocol.Request, console io.Writer) (resp *protocol.Response) {
	resp = &protocol.Response{Protocol: protocol.Version}

	var before runtime.MemStats
	runtime.ReadMemStats(&before)

	defer func() {
		if r := recover(); r != nil {
			resp.Status = protocol.StatusException
			resp.Value = ""
			resp.Error = fmt.Sprintf("InternalError: %v", r)
		}
		var after runtime.MemStats
		runtime.ReadMemStats(&after)
		resp.TotalAlloc = after.TotalAlloc - before.TotalAlloc
	}()

	unit := compiler.NewJavaScript(len(req.Source) + 1).Compile(req.Source)
	prog, ok := compiler.Program(unit)
	if !ok || !unit.Executable() {
		resp.Status = protocol.StatusException
		resp.Error = "SyntaxError"
		if len(unit.Diagnostics) > 0 {
			resp.Error = "SyntaxError: " + unit.Diagnostics[0].Message
		}
		return resp
	}

	vm := goja.New()
	if req.MaxCallStack > 0 {
		vm.SetMaxCallStackSize(req.MaxCallStack)
	}
	installConsole(vm, console)

	v, err := vm.RunProgram(prog)
	if err != nil {
		resp.Status = protocol.StatusException
		resp.Error = summarize(err)
		return resp
	}

	resp.Status = protocol.StatusOK
	resp.Value = render(v)
	return resp
}

// installConsole exposes the only capability the code gets: writing lines to stdout.
func installConsole(vm *goja.Runtime, w io.Writer) {
	write := func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = render(arg)
		}
		_, _ = io.WriteString(w, strings.Join(parts, " ")+"\n")
		return goja.Undefined()
	}

	console := vm.NewObject()
	for _, name := range []string{"log", "info", "warn", "error", "debug"} {
		_ = console.Set(name, write)
	}
	_ = vm.Set("console", console)
}

func render(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if goja.IsNull(v) {
		return "null"
	}
	if obj, ok := v.(*goja.Object); ok {
		switch obj.ClassName() {
		case "Object", "Array":
			if b, err := json.Marshal(obj); err == nil {
				return string(b)
			}
		}
	}
	return v.String()
}

func summarize(err error) string {
	// StackOverflowError carries no value and its message is only the top frame.
	var overflow *goja.StackOverflowError
	if errors.As(err, &overflow) {
		return StackOverflowSummary
	}
	var ex *goja.Exception
	if errors.As(err, &ex) {
		if val := ex.Value(); val != nil && !goja.IsUndefined(val) {
			return val.String()
		}
		return ex.Error()
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return "InterruptedError: " + interrupted.Error()
	}
	return err.Error()
}
