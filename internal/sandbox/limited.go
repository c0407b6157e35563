package sandbox

import (
	"bytes"
	"sync"
)

// LimitedWriter keeps the first max bytes written to it and silently discards the
// rest, so a chatty submission can never block on a full pipe.
type LimitedWriter struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	max       int
	truncated bool
}

// NewLimitedWriter returns a writer capped at max bytes. A non-positive max keeps nothing.
func NewLimitedWriter(max int) *LimitedWriter {
	return &LimitedWriter{max: max}
}

// Write always reports the full length as written.
func (w *LimitedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	room := w.max - w.buf.Len()
	if room <= 0 {
		if len(p) > 0 {
			w.truncated = true
		}
		return len(p), nil
	}
	if len(p) > room {
		w.buf.Write(p[:room])
		w.truncated = true
		return len(p), nil
	}
	w.buf.Write(p)
	return len(p), nil
}

func (w *LimitedWriter) Bytes() []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return bytes.Clone(w.buf.Bytes())
}

func (w *LimitedWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

// Truncated reports whether anything was discarded.
func (w *LimitedWriter) Truncated() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.truncated
}
