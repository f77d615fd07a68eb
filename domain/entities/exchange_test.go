package entities

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestNewExchangeRejectsBlankQuestion(t *testing.T) {
	if _, err := NewExchange("   \n\t"); !errors.Is(err, ErrEmptyQuestion) {
		t.Errorf("Expected ErrEmptyQuestion, got %v", err)
	}

	ex, err := NewExchange("  who spoke first?  ")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if ex.Question() != "who spoke first?" {
		t.Errorf("Expected trimmed question, got %q", ex.Question())
	}
	if ex.Snapshot().State != ExchangeStateIdle {
		t.Errorf("Expected idle state, got %s", ex.Snapshot().State)
	}
}

func TestExchangeHappyPath(t *testing.T) {
	ex, _ := NewExchange("q")

	if err := ex.Begin(); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	for _, chunk := range []string{"Hel", "lo"} {
		if err := ex.Append(chunk); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	if ex.Snapshot().State != ExchangeStateStreaming {
		t.Errorf("Expected streaming state, got %s", ex.Snapshot().State)
	}
	if err := ex.Complete("ministral-3:3b"); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	snap := ex.Snapshot()
	if snap.Answer != "Hello" {
		t.Errorf("Expected answer Hello, got %q", snap.Answer)
	}
	if snap.ModelUsed == nil || *snap.ModelUsed != "ministral-3:3b" {
		t.Errorf("Expected model_used to be set, got %v", snap.ModelUsed)
	}
	if snap.FinishedAt == nil {
		t.Error("Expected FinishedAt to be set")
	}
	if !ex.IsFinal() {
		t.Error("Completed exchange should be final")
	}

	if err := ex.Append("more"); !errors.Is(err, ErrExchangeFinalized) {
		t.Errorf("Expected ErrExchangeFinalized after completion, got %v", err)
	}
	if ex.Snapshot().Answer != "Hello" {
		t.Error("Answer must not change after completion")
	}
}

func TestExchangeFallbackReplacesPartialAnswer(t *testing.T) {
	ex, _ := NewExchange("q")
	_ = ex.Begin()
	_ = ex.Append("partial")
	_ = ex.Fail(errors.New("connection reset"))

	if ex.IsFinal() {
		t.Error("Failed exchange should still allow one fallback")
	}
	if snap := ex.Snapshot(); snap.Error == nil || *snap.Error != "connection reset" {
		t.Errorf("Expected error to be recorded, got %v", snap.Error)
	}

	if err := ex.Begin(); err != nil {
		t.Fatalf("Fallback Begin failed: %v", err)
	}
	if err := ex.ReplaceAnswer("full answer"); err != nil {
		t.Fatalf("ReplaceAnswer failed: %v", err)
	}
	_ = ex.Complete("")

	snap := ex.Snapshot()
	if snap.Answer != "full answer" {
		t.Errorf("Expected replaced answer, got %q", snap.Answer)
	}
	if snap.Error != nil {
		t.Errorf("Expected error to be cleared, got %v", *snap.Error)
	}
	if !snap.FellBack {
		t.Error("Expected FellBack to be true")
	}
}

func TestExchangeFallbackOnlyOnce(t *testing.T) {
	ex, _ := NewExchange("q")
	_ = ex.Begin()
	_ = ex.Fail(errors.New("first"))
	_ = ex.Begin()
	_ = ex.Fail(errors.New("second"))

	if !ex.IsFinal() {
		t.Error("Exchange should be final after the fallback failed")
	}
	if err := ex.Begin(); !errors.Is(err, ErrExchangeFinalized) {
		t.Errorf("Expected ErrExchangeFinalized on third send, got %v", err)
	}
}

func TestExchangeBeginTwiceFails(t *testing.T) {
	ex, _ := NewExchange("q")
	_ = ex.Begin()
	if err := ex.Begin(); err == nil {
		t.Error("Begin on a sending exchange should fail")
	}
}

func TestStreamFrameJSON(t *testing.T) {
	cases := []struct {
		frame StreamFrame
		want  string
	}{
		{ContentFrame("Hel"), `{"content":"Hel","done":false}`},
		{DoneFrame(), `{"content":"","done":true}`},
		{ErrorFrame("upstream down"), `{"error":"upstream down","done":true}`},
		{ErrorFrame(""), `{"error":"Unknown error","done":true}`},
	}

	for _, tc := range cases {
		got, err := json.Marshal(tc.frame)
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}
		if string(got) != tc.want {
			t.Errorf("Expected %s, got %s", tc.want, got)
		}
	}

	if ContentFrame("x").IsTerminal() {
		t.Error("Content frame must not be terminal")
	}
	if !ErrorFrame("x").IsTerminal() || !DoneFrame().IsTerminal() {
		t.Error("Done and error frames must be terminal")
	}
}

func TestAnalysisPayloadNormalize(t *testing.T) {
	t.Run("unwraps process-audio response", func(t *testing.T) {
		p := NewAnalysisPayload([]byte(`{"session_id":"s1","results":{"transcription":{"original_text":"hi"},"extra":1}}`))
		norm, err := p.Normalize()
		if err != nil {
			t.Fatalf("Normalize failed: %v", err)
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(norm.Raw(), &fields); err != nil {
			t.Fatalf("Invalid JSON: %v", err)
		}
		if _, ok := fields["session_id"]; ok {
			t.Error("Expected session_id to be dropped with the wrapper")
		}
		if string(fields["extra"]) != "1" {
			t.Errorf("Expected extra field to be kept, got %s", fields["extra"])
		}
		if string(fields["audio_events"]) != "null" {
			t.Errorf("Expected missing section to be null, got %s", fields["audio_events"])
		}
	})

	t.Run("keeps every field of a results object", func(t *testing.T) {
		p := NewAnalysisPayload([]byte(`{"audio":{"duration_s":3.5},"custom":{"k":"v"}}`))
		norm, _ := p.Normalize()
		if !strings.Contains(string(norm.Raw()), `"custom":{"k":"v"}`) {
			t.Errorf("Expected custom field to survive, got %s", norm.Raw())
		}
		if !strings.Contains(string(norm.Raw()), `"duration_s":3.5`) {
			t.Errorf("Expected audio field to survive, got %s", norm.Raw())
		}
	})

	t.Run("leaves non-objects alone", func(t *testing.T) {
		p := NewAnalysisPayload([]byte(`[1,2,3]`))
		norm, _ := p.Normalize()
		if string(norm.Raw()) != `[1,2,3]` {
			t.Errorf("Expected array to be unchanged, got %s", norm.Raw())
		}
	})
}

func TestAnalysisPayloadIsEmpty(t *testing.T) {
	for _, raw := range []string{"", "null", "false", "0", `""`, "  null  "} {
		if !NewAnalysisPayload([]byte(raw)).IsEmpty() {
			t.Errorf("Expected %q to count as empty", raw)
		}
	}
	for _, raw := range []string{"{}", `{"audio":null}`, "[]", `"x"`} {
		if NewAnalysisPayload([]byte(raw)).IsEmpty() {
			t.Errorf("Expected %q to count as present", raw)
		}
	}
}

func TestAnalysisPayloadContentHashIgnoresWhitespace(t *testing.T) {
	a := NewAnalysisPayload([]byte(`{"a": 1, "b": [1, 2]}`))
	b := NewAnalysisPayload([]byte(`{"a":1,"b":[1,2]}`))
	if a.ContentHash() != b.ContentHash() {
		t.Error("Expected equal hashes for the same compacted JSON")
	}
}

func TestAnalysisPayloadIndented(t *testing.T) {
	p := NewAnalysisPayload([]byte(`{"a":{"b":1}}`))
	got, err := p.Indented()
	if err != nil {
		t.Fatalf("Indented failed: %v", err)
	}
	want := "{\n  \"a\": {\n    \"b\": 1\n  }\n}"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}
