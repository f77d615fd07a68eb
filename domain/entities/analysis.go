package entities

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// analysisSections are the result sections the analysis backend produces.
// Normalize guarantees they are present so the model can tell "missing"
// from "not sent".
var analysisSections = []string{
	"audio",
	"transcription",
	"diarization",
	"diarization_with_text",
	"paralinguistics",
	"audio_events",
}

// AnalysisPayload is the opaque analysis record produced by the external
// audio pipeline. It is never interpreted beyond locating the results object;
// every field is forwarded to the model as-is.
type AnalysisPayload struct {
	raw json.RawMessage
}

// NewAnalysisPayload wraps raw JSON. The bytes are copied so later mutation
// by the caller does not leak into the payload.
func NewAnalysisPayload(raw []byte) AnalysisPayload {
	cp := make([]byte, len(raw))
	copy(cp, raw)
	return AnalysisPayload{raw: bytes.TrimSpace(cp)}
}

// IsEmpty reports whether the payload counts as absent. Falsy JSON scalars
// are treated like a missing field.
func (p AnalysisPayload) IsEmpty() bool {
	switch string(p.raw) {
	case "", "null", "false", "0", `""`:
		return true
	}
	return false
}

// Raw returns a copy of the payload bytes.
func (p AnalysisPayload) Raw() json.RawMessage {
	cp := make([]byte, len(p.raw))
	copy(cp, p.raw)
	return cp
}

// MarshalJSON implements json.Marshaler.
func (p AnalysisPayload) MarshalJSON() ([]byte, error) {
	if len(p.raw) == 0 {
		return []byte("null"), nil
	}
	return p.Raw(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *AnalysisPayload) UnmarshalJSON(data []byte) error {
	*p = NewAnalysisPayload(data)
	return nil
}

// Normalize returns the analysis results object. A full process-audio
// response ({session_id, results, ...}) is unwrapped to its results; any
// other object gets the known sections filled with null when missing.
// Non-object payloads are returned unchanged.
func (p AnalysisPayload) Normalize() (AnalysisPayload, error) {
	if p.IsEmpty() {
		return p, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(p.raw, &fields); err != nil {
		// Arrays and scalars are forwarded untouched.
		return p, nil
	}

	if results, ok := fields["results"]; ok && !NewAnalysisPayload(results).IsEmpty() {
		return NewAnalysisPayload(results).Normalize()
	}

	for _, section := range analysisSections {
		if _, ok := fields[section]; !ok {
			fields[section] = json.RawMessage("null")
		}
	}

	out, err := json.Marshal(fields)
	if err != nil {
		return AnalysisPayload{}, fmt.Errorf("failed to re-encode analysis payload: %w", err)
	}
	return NewAnalysisPayload(out), nil
}

// Indented renders the payload as 2-space indented JSON for prompts.
func (p AnalysisPayload) Indented() (string, error) {
	if len(p.raw) == 0 {
		return "null", nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, p.raw, "", "  "); err != nil {
		return "", fmt.Errorf("analysis payload is not valid JSON: %w", err)
	}
	return buf.String(), nil
}

// ContentHash is the sha256 of the compacted payload, used to recognise a
// re-uploaded analysis.
func (p AnalysisPayload) ContentHash() string {
	var buf bytes.Buffer
	data := []byte(p.raw)
	if err := json.Compact(&buf, p.raw); err == nil {
		data = buf.Bytes()
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
