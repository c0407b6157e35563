package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dontdude/goxec-eval/internal/domain"
)

// ErrSerialize marks failures to turn a value into its wire form. Such failures
// reproduce identically on retry.
var ErrSerialize = errors.New("serialization failed")

// EncodeCommand serializes a command for the inbound stream.
func EncodeCommand(cmd domain.ExecutionCommand) ([]byte, error) {
	if cmd.ExecutionID == "" {
		return nil, fmt.Errorf("%w: command missing execution_id", ErrSerialize)
	}
	data, err := json.Marshal(Command{
		ExecutionID: cmd.ExecutionID,
		ClientID:    cmd.ClientID,
		Source:      cmd.Source,
		Submitted:   cmd.Submitted.UTC(),
		TimeoutMS:   cmd.TimeoutPeriod.Milliseconds(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialize, err)
	}
	return data, nil
}

// DecodeCommand parses and validates a command read from the inbound stream.
func DecodeCommand(data []byte) (domain.ExecutionCommand, error) {
	var c Command
	if err := json.Unmarshal(data, &c); err != nil {
		return domain.ExecutionCommand{}, fmt.Errorf("failed to decode command: %w", err)
	}
	if c.ExecutionID == "" {
		return domain.ExecutionCommand{}, fmt.Errorf("command missing required field: execution_id")
	}
	if c.TimeoutMS <= 0 {
		return domain.ExecutionCommand{}, fmt.Errorf("command %s has non-positive timeout_ms %d", c.ExecutionID, c.TimeoutMS)
	}
	if c.Submitted.IsZero() {
		return domain.ExecutionCommand{}, fmt.Errorf("command %s missing required field: submitted", c.ExecutionID)
	}
	return domain.ExecutionCommand{
		ExecutionID:   c.ExecutionID,
		ClientID:      c.ClientID,
		Source:        c.Source,
		Submitted:     c.Submitted.UTC(),
		TimeoutPeriod: time.Duration(c.TimeoutMS) * time.Millisecond,
	}, nil
}

// EncodeResult renders the Outcome to text and serializes the WorkerResult.
func EncodeResult(r domain.WorkerResult) ([]byte, error) {
	if r.ExecutionID == "" {
		return nil, fmt.Errorf("%w: result missing execution_id", ErrSerialize)
	}
	if _, err := domain.ParseOutcomeKind(string(r.Outcome.Kind)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialize, err)
	}
	data, err := json.Marshal(ResultFromDomain(r))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialize, err)
	}
	return data, nil
}

// ResultFromDomain converts to the wire form.
func ResultFromDomain(r domain.WorkerResult) Result {
	return Result{
		ExecutionID:          r.ExecutionID,
		ClientID:             r.ClientID,
		StartTime:            r.StartTime.UTC(),
		StopTime:             r.StopTime.UTC(),
		RunDurationMS:        durationMS(r.RunDuration),
		ProcessorTimeMS:      durationMS(r.ProcessorTime),
		TotalMemoryAllocated: r.TotalMemoryAllocated,
		ConsoleOutput:        r.ConsoleOutput,
		OutputTruncated:      r.OutputTruncated,
		Result:               r.Outcome.Render(),
		Outcome:              string(r.Outcome.Kind),
		Detail:               r.Outcome.Detail,
		Diagnostics:          r.Diagnostics,
	}
}

// DecodeResult parses a serialized result back into its domain form.
func DecodeResult(data []byte) (domain.WorkerResult, error) {
	var w Result
	if err := json.Unmarshal(data, &w); err != nil {
		return domain.WorkerResult{}, fmt.Errorf("failed to decode result: %w", err)
	}
	kind, err := domain.ParseOutcomeKind(w.Outcome)
	if err != nil {
		return domain.WorkerResult{}, err
	}
	return domain.WorkerResult{
		ExecutionID: w.ExecutionID,
		ClientID:    w.ClientID,
		StartTime:   w.StartTime,
		StopTime:    w.StopTime,
		RunDuration: msDuration(w.RunDurationMS),
		ExecutionResult: domain.ExecutionResult{
			ConsoleOutput:        w.ConsoleOutput,
			Outcome:              domain.Outcome{Kind: kind, Detail: w.Detail},
			ProcessorTime:        msDuration(w.ProcessorTimeMS),
			TotalMemoryAllocated: w.TotalMemoryAllocated,
			OutputTruncated:      w.OutputTruncated,
		},
		Diagnostics: w.Diagnostics,
	}, nil
}

func durationMS(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

func msDuration(ms float64) time.Duration { return time.Duration(ms * float64(time.Millisecond)) }

// EncodeRequest serializes a Request to JSON and writes it to w.
func EncodeRequest(w io.Writer, req *Request) error {
	if req.Protocol != Version {
		return fmt.Errorf("unsupported protocol version: %d", req.Protocol)
	}
	if err := json.NewEncoder(w).Encode(req); err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	return nil
}

// DecodeRequest reads a Request from r.
func DecodeRequest(r io.Reader) (*Request, error) {
	var req Request
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		return nil, fmt.Errorf("failed to decode request: %w", err)
	}
	if req.Protocol != Version {
		return nil, fmt.Errorf("unsupported protocol version: %d", req.Protocol)
	}
	return &req, nil
}

// EncodeResponse writes resp as a single JSON line.
func EncodeResponse(w io.Writer, resp *Response) error {
	resp.Protocol = Version
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	return nil
}

// DecodeResponseLenient scans the runner's stderr for the last line that decodes as a
// valid Response. Anything else on stderr (runtime crash traces, warnings) is returned
// as diagnostics with the response line removed.
func DecodeResponseLenient(stderr []byte) (*Response, []byte, error) {
	if len(bytes.TrimSpace(stderr)) == 0 {
		return nil, stderr, fmt.Errorf("runner produced no output on stderr")
	}

	var (
		found     *Response
		foundLine []byte
	)
	scanner := bufio.NewScanner(bytes.NewReader(stderr))
	scanner.Buffer(make([]byte, 0, 64*1024), len(stderr)+1)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var resp Response
		if err := json.Unmarshal(line, &resp); err != nil {
			continue
		}
		if resp.Protocol != Version || !validStatus(resp.Status) {
			continue
		}
		found = &resp
		foundLine = append(foundLine[:0], scanner.Bytes()...)
	}

	if found == nil {
		return nil, stderr, fmt.Errorf("runner produced no response line")
	}
	idx := bytes.LastIndex(stderr, foundLine)
	rest := append(append([]byte(nil), stderr[:idx]...), bytes.TrimPrefix(stderr[idx+len(foundLine):], []byte("\n"))...)
	return found, rest, nil
}

func validStatus(s string) bool {
	return s == StatusOK || s == StatusException || s == StatusSetupError
}
