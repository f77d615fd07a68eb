package streaming

import "encoding/json"

// Extractor pulls a content increment out of one decoded upstream JSON
// value. found reports whether the field exists as a string at all, even
// when it is empty.
type Extractor struct {
	Name    string
	Extract func(v any) (content string, found bool)
}

// extractors are tried in order; the first non-empty match wins.
var extractors = []Extractor{
	{Name: "message.content", Extract: path("message", "content")},
	{Name: "choices[0].delta.content", Extract: firstChoice("delta")},
	{Name: "choices[0].message.content", Extract: firstChoice("message")},
	{Name: "response", Extract: path("response")},
	{Name: "text", Extract: path("text")},
	{Name: "content", Extract: path("content")},
}

// Extractors returns the extractor names in priority order
func Extractors() []string {
	names := make([]string, len(extractors))
	for i, e := range extractors {
		names[i] = e.Name
	}
	return names
}

// ExtractContent decodes payload as JSON and runs the extractor chain.
// ok is false when payload is not JSON or holds none of the known fields,
// in which case callers treat the raw payload as literal text.
func ExtractContent(payload []byte) (content string, ok bool) {
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return "", false
	}
	return extract(v)
}

func extract(v any) (string, bool) {
	matched := false
	for _, e := range extractors {
		content, found := e.Extract(v)
		if content != "" {
			return content, true
		}
		matched = matched || found
	}
	// A known field that is present but empty (Ollama's final "done" line)
	// carries no increment.
	return "", matched
}

func path(keys ...string) func(any) (string, bool) {
	return func(v any) (string, bool) {
		for _, k := range keys {
			obj, ok := v.(map[string]any)
			if !ok {
				return "", false
			}
			if v, ok = obj[k]; !ok {
				return "", false
			}
		}
		s, ok := v.(string)
		return s, ok
	}
}

func firstChoice(field string) func(any) (string, bool) {
	inner := path(field, "content")
	return func(v any) (string, bool) {
		obj, ok := v.(map[string]any)
		if !ok {
			return "", false
		}
		choices, ok := obj["choices"].([]any)
		if !ok || len(choices) == 0 {
			return "", false
		}
		return inner(choices[0])
	}
}
