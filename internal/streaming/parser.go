// Package streaming turns line-delimited model output into content
// increments and writes relay frames as Server-Sent Events.
package streaming

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

const (
	doneSentinel = "[DONE]"
	dataPrefix   = "data:"
)

// FrameError is reported by a frame parser that read an error frame
type FrameError struct {
	Message string
}

func (e *FrameError) Error() string {
	return e.Message
}

// decodeFunc turns one payload into an increment. terminal ends the stream.
type decodeFunc func(p *Parser, payload string) (increment string, terminal bool)

// Parser converts a byte stream into content increments. A Parser belongs to
// exactly one exchange and is not safe for concurrent use.
type Parser struct {
	buf      []byte
	answer   strings.Builder
	done     bool
	onChunk  func(string)
	decode   decodeFunc
	frameErr error
}

// NewParser creates a parser for upstream model output
func NewParser(onChunk func(string)) *Parser {
	return &Parser{onChunk: onChunk, decode: decodeUpstream}
}

// NewFrameParser creates a parser for the relay's own SSE frames
func NewFrameParser(onChunk func(string)) *Parser {
	return &Parser{onChunk: onChunk, decode: decodeFrame}
}

// Feed appends p to the buffer and processes every complete line. The
// trailing partial line stays buffered. It reports whether the stream is done.
func (p *Parser) Feed(b []byte) bool {
	if p.done {
		return true
	}
	p.buf = append(p.buf, b...)

	for !p.done {
		i := bytes.IndexByte(p.buf, '\n')
		if i < 0 {
			break
		}
		line := p.buf[:i]
		p.buf = p.buf[i+1:]
		p.processLine(line)
	}
	if p.done {
		p.buf = nil
	}
	return p.done
}

// Flush decodes the remaining partial line at end of transport
func (p *Parser) Flush() bool {
	if p.done {
		return true
	}
	rest := p.buf
	p.buf = nil
	p.processLine(rest)
	return p.done
}

// Done reports whether the stream reached its terminal signal
func (p *Parser) Done() bool {
	return p.done
}

// Answer is the concatenation of every increment so far
func (p *Parser) Answer() string {
	return p.answer.String()
}

// FrameError returns the error carried by an error frame, if one was read
func (p *Parser) FrameError() error {
	return p.frameErr
}

func (p *Parser) processLine(raw []byte) {
	line := strings.TrimSpace(string(raw))
	if line == "" {
		return
	}
	if strings.HasPrefix(line, dataPrefix) {
		line = strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
	}
	if line == doneSentinel {
		p.done = true
		return
	}
	if line == "" {
		return
	}

	increment, terminal := p.decode(p, line)
	if increment != "" {
		p.answer.WriteString(increment)
		if p.onChunk != nil {
			p.onChunk(increment)
		}
	}
	if terminal {
		p.done = true
	}
}

func decodeUpstream(_ *Parser, payload string) (string, bool) {
	content, ok := ExtractContent([]byte(payload))
	if !ok {
		return payload, false
	}
	return content, false
}

type wireFrame struct {
	Content *string `json:"content"`
	Error   *string `json:"error"`
	Done    *bool   `json:"done"`
}

func decodeFrame(p *Parser, payload string) (string, bool) {
	var f wireFrame
	if err := json.Unmarshal([]byte(payload), &f); err != nil {
		return payload, false
	}
	if f.Content == nil && f.Error == nil && f.Done == nil {
		return payload, false
	}
	if f.Error != nil {
		msg := *f.Error
		if msg == "" {
			msg = "Unknown error"
		}
		p.frameErr = &FrameError{Message: msg}
		return "", true
	}
	var content string
	if f.Content != nil {
		content = *f.Content
	}
	return content, f.Done != nil && *f.Done
}

// IsFrameError reports whether err came from a relay error frame
func IsFrameError(err error) bool {
	var fe *FrameError
	return errors.As(err, &fe)
}
