package entities

import "encoding/json"

// StreamFrame is one SSE event sent from the relay to the browser. Error
// frames are always terminal.
type StreamFrame struct {
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
	Done    bool   `json:"done"`
}

// ContentFrame builds a non-terminal frame carrying one increment
func ContentFrame(content string) StreamFrame {
	return StreamFrame{Content: content}
}

// DoneFrame builds the terminal frame of a successful stream
func DoneFrame() StreamFrame {
	return StreamFrame{Done: true}
}

// ErrorFrame builds the terminal frame of a failed stream
func ErrorFrame(msg string) StreamFrame {
	if msg == "" {
		msg = "Unknown error"
	}
	return StreamFrame{Error: msg, Done: true}
}

// IsTerminal reports whether the frame ends the stream
func (f StreamFrame) IsTerminal() bool {
	return f.Done || f.Error != ""
}

// MarshalJSON drops the content field on error frames.
func (f StreamFrame) MarshalJSON() ([]byte, error) {
	if f.Error != "" {
		return json.Marshal(struct {
			Error string `json:"error"`
			Done  bool   `json:"done"`
		}{Error: f.Error, Done: true})
	}
	type plain StreamFrame
	return json.Marshal(plain(f))
}
