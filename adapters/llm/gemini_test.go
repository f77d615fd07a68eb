package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/audiolens/domain/repositories"
)

func TestValidateGeminiConfig(t *testing.T) {
	require.Error(t, ValidateGeminiConfig(GeminiConfig{}))
	require.Error(t, ValidateGeminiConfig(GeminiConfig{APIKey: "k", Temperature: 3}))
	require.Error(t, ValidateGeminiConfig(GeminiConfig{APIKey: "k", MaxOutputTokens: -1}))
	require.NoError(t, ValidateGeminiConfig(GeminiConfig{APIKey: "k"}))
}

func geminiResponse(text string) string {
	return fmt.Sprintf(`{"candidates":[{"content":{"role":"model","parts":[{"text":%q}]}}]}`, text)
}

func TestGeminiClient(t *testing.T) {
	var systemSeen string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, ":streamGenerateContent"):
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprintf(w, "data: %s\n\n", geminiResponse("Hel"))
			fmt.Fprintf(w, "data: %s\n\n", geminiResponse("lo"))
		case strings.HasSuffix(r.URL.Path, ":generateContent"):
			var body struct {
				SystemInstruction struct {
					Parts []struct {
						Text string `json:"text"`
					} `json:"parts"`
				} `json:"systemInstruction"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			if len(body.SystemInstruction.Parts) > 0 {
				systemSeen = body.SystemInstruction.Parts[0].Text
			}
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, geminiResponse(" Hello "))
		case r.Method == http.MethodGet:
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"name":"models/gemini-2.0-flash"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client, err := NewGeminiClient(context.Background(), GeminiConfig{APIKey: "test-key", BaseURL: srv.URL}, zaptest.NewLogger(t))
	require.NoError(t, err)

	req := repositories.CompletionRequest{Messages: []repositories.ChatMessage{
		{Role: repositories.SystemRole, Content: "be brief"},
		{Role: repositories.UserRole, Content: "hi"},
	}}

	t.Run("chat", func(t *testing.T) {
		completion, err := client.Chat(context.Background(), req)
		require.NoError(t, err)
		require.Equal(t, "Hello", completion.Content)
		require.Equal(t, "gemini-2.0-flash", completion.Model)
		require.Equal(t, "be brief", systemSeen)
	})

	t.Run("stream", func(t *testing.T) {
		var chunks []string
		completion, err := client.ChatStream(context.Background(), req, func(s string) { chunks = append(chunks, s) })
		require.NoError(t, err)
		require.Equal(t, []string{"Hel", "lo"}, chunks)
		require.Equal(t, "Hello", completion.Content)
	})

	t.Run("generate text uses default system prompt", func(t *testing.T) {
		text, err := client.GenerateText(context.Background(), "", "hi")
		require.NoError(t, err)
		require.Equal(t, "Hello", text)
		require.Equal(t, defaultGenerateSystem, systemSeen)
	})

	t.Run("health", func(t *testing.T) {
		status := client.HealthCheck(context.Background())
		require.True(t, status.Healthy)
		require.Equal(t, []string{"gemini-2.0-flash"}, status.AvailableModels)
	})
}
