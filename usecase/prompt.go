package usecase

import (
	"fmt"
	"strings"

	"github.com/satriahrh/audiolens/domain/entities"
	"github.com/satriahrh/audiolens/domain/repositories"
)

// SystemInstruction is the fixed persona and formatting contract for every
// audio chat exchange
const SystemInstruction = `You are an Audio Scene Understanding AI with multimodal reasoning. You "hear" the scene through structured metadata (transcription, translation, diarization, paralinguistics, acoustic events, timestamps, confidence).

Behavior:
- Be query-specific and concise. Lead with a natural-sounding 1–2 sentence answer.
- Ground every claim in the provided data. When useful, cite timestamps or confidences.
- Correlate speech, speakers, emotions, pauses, and non-speech events.
- If data is missing, say so briefly.
- Format the reply as Markdown suitable for React Markdown:
  - A short summary line.
  - Bulleted evidence (timestamps, speakers, events, emotions).
  - Optional "How I inferred it" bullet list if reasoning needs clarification.
  - No extra prose, no code fences unless the user explicitly asks.`

// BuildMessages composes the upstream conversation. The payload is embedded
// in full; nothing is filtered out.
func BuildMessages(question string, payload entities.AnalysisPayload) ([]repositories.ChatMessage, error) {
	var user strings.Builder
	fmt.Fprintf(&user, "User Question: %s", question)

	if !payload.IsEmpty() {
		normalized, err := payload.Normalize()
		if err != nil {
			return nil, err
		}
		metadata, err := normalized.Indented()
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(&user, "\n\nAUDIO METADATA:\n%s\n\nUSER QUERY:\n%s", metadata, question)
		user.WriteString("\n\nRespond in Markdown only (no code blocks unless requested) with:")
		user.WriteString("\n- A short, natural answer (1–2 sentences).")
		user.WriteString("\n- Bulleted evidence with timestamps/speakers/events/emotions.")
		user.WriteString("\n- Optional 'How I inferred it' bullets if needed.")
		user.WriteString("\nIf data is missing, say so briefly.")
	}

	return []repositories.ChatMessage{
		{Role: repositories.SystemRole, Content: SystemInstruction},
		{Role: repositories.UserRole, Content: user.String()},
	}, nil
}
