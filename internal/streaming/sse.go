package streaming

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/satriahrh/audiolens/domain/entities"
)

// ErrStreamClosed is returned for writes after the terminal frame
var ErrStreamClosed = errors.New("stream already terminated")

// SetEventStreamHeaders prepares a response for Server-Sent Events with
// caching and proxy buffering disabled
func SetEventStreamHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// FrameWriter writes relay frames as `data: <json>\n\n` and flushes after
// each one. At most one terminal frame is ever written.
type FrameWriter struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
	closed  bool
}

// NewFrameWriter wraps w. Flushing is skipped when w is not an http.Flusher.
func NewFrameWriter(w io.Writer) *FrameWriter {
	fw := &FrameWriter{w: w}
	if f, ok := w.(http.Flusher); ok {
		fw.flusher = f
	}
	return fw
}

// Content writes one non-terminal increment
func (fw *FrameWriter) Content(content string) error {
	return fw.Write(entities.ContentFrame(content))
}

// Done writes the terminal success frame
func (fw *FrameWriter) Done() error {
	return fw.Write(entities.DoneFrame())
}

// Error writes the terminal error frame
func (fw *FrameWriter) Error(msg string) error {
	return fw.Write(entities.ErrorFrame(msg))
}

// Write emits any frame
func (fw *FrameWriter) Write(frame entities.StreamFrame) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.closed {
		return ErrStreamClosed
	}
	if frame.IsTerminal() {
		fw.closed = true
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	if _, err := fmt.Fprintf(fw.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	if fw.flusher != nil {
		fw.flusher.Flush()
	}
	return nil
}

// Closed reports whether the terminal frame was written
func (fw *FrameWriter) Closed() bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.closed
}
