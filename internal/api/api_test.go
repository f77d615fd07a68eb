package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/audiolens/adapters"
	"github.com/satriahrh/audiolens/adapters/llm"
	"github.com/satriahrh/audiolens/domain/repositories"
	"github.com/satriahrh/audiolens/internal/streaming"
	"github.com/satriahrh/audiolens/usecase"
)

const testResults = `{"transcription":{"original_text":"halo semua"},"diarization":[{"speaker":"A","start":0.5}]}`

func newTestServer(t *testing.T, model repositories.ModelEndpoint, generator repositories.TextGenerator) *echo.Echo {
	t.Helper()
	logger := zaptest.NewLogger(t)
	analyses := usecase.NewAnalysisService(adapters.NewMemoryAnalysisRepository(), logger)
	chat := usecase.NewChatService(model, analyses, usecase.ChatConfig{UpstreamTimeout: 5 * time.Second}, logger)

	e := echo.New()
	UseMiddleware(e, nil, logger)
	InitRoutes(e, NewHandler(chat, analyses, generator, logger), nil, logger)
	return e
}

func do(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

// readFrames parses an SSE body the way a client would
func readFrames(t *testing.T, body string) (chunks []string, parser *streaming.Parser) {
	t.Helper()
	parser = streaming.NewFrameParser(func(s string) { chunks = append(chunks, s) })
	parser.Feed([]byte(body))
	parser.Flush()
	return chunks, parser
}

func TestChatValidation(t *testing.T) {
	e := newTestServer(t, llm.NewMockModel(), nil)

	tests := []struct {
		name   string
		body   string
		status int
		error  string
	}{
		{"missing question", `{"audioResults":` + testResults + `}`, http.StatusBadRequest, usecase.MessageMissingPrompt},
		{"blank prompt", `{"prompt":"   ","audioResults":` + testResults + `}`, http.StatusBadRequest, usecase.MessageMissingPrompt},
		{"blank prompt shadows question", `{"prompt":" ","question":"q","audioResults":` + testResults + `}`, http.StatusBadRequest, usecase.MessageMissingPrompt},
		{"missing payload", `{"prompt":"who spoke?"}`, http.StatusBadRequest, usecase.MessageMissingAudioContext},
		{"null payload", `{"prompt":"who spoke?","audioResults":null}`, http.StatusBadRequest, usecase.MessageMissingAudioContext},
		{"unknown session", `{"prompt":"who spoke?","session_id":"nope"}`, http.StatusNotFound, "Session ID not found: nope"},
		{"malformed body", `{"prompt":`, http.StatusBadRequest, "Invalid request format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(e, http.MethodPost, "/chat", tt.body)
			require.Equal(t, tt.status, rec.Code)

			var resp ErrorResponse
			decode(t, rec, &resp)
			assert.Equal(t, tt.error, resp.Error)
		})
	}

	t.Run("streaming request is validated before the stream opens", func(t *testing.T) {
		rec := do(e, http.MethodPost, "/chat?stream=true", `{"audioResults":`+testResults+`}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON)
	})
}

func TestChatNonStreaming(t *testing.T) {
	e := newTestServer(t, llm.NewMockModel(), nil)

	for _, path := range []string{"/chat", "/api/chat"} {
		rec := do(e, http.MethodPost, path, `{"question":"who spoke?","audioData":`+testResults+`}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp ChatResponse
		decode(t, rec, &resp)
		assert.Equal(t, "who spoke?", resp.Question)
		assert.Contains(t, resp.Answer, "who spoke?")
		require.NotNil(t, resp.ModelUsed)
		assert.Nil(t, resp.Error)
	}
}

func TestChatNonStreamingUpstreamFailure(t *testing.T) {
	e := newTestServer(t, &llm.MockModel{Err: errors.New("connection refused")}, nil)

	rec := do(e, http.MethodPost, "/chat", `{"prompt":"who spoke?","audioResults":`+testResults+`}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	decode(t, rec, &resp)
	assert.Equal(t, "who spoke?", resp["question"])
	assert.Equal(t, "", resp["answer"])
	assert.Equal(t, "connection refused", resp["error"])
	assert.Contains(t, resp, "model_used")
}

func TestChatStreaming(t *testing.T) {
	e := newTestServer(t, llm.NewMockModel(), nil)
	body := `{"prompt":"what happened at 00:12?","audioResults":` + testResults + `}`

	whole := do(e, http.MethodPost, "/chat", body)
	require.Equal(t, http.StatusOK, whole.Code)
	var expected ChatResponse
	decode(t, whole, &expected)

	for name, rec := range map[string]*httptest.ResponseRecorder{
		"query flag": do(e, http.MethodPost, "/chat?stream=true", body),
		"body flag":  do(e, http.MethodPost, "/api/chat", `{"stream":true,`+body[1:]),
	} {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
			assert.Equal(t, "no-cache, no-transform", rec.Header().Get("Cache-Control"))
			assert.Equal(t, "keep-alive", rec.Header().Get("Connection"))
			assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))

			chunks, parser := readFrames(t, rec.Body.String())
			assert.True(t, parser.Done())
			assert.NoError(t, parser.FrameError())
			assert.Greater(t, len(chunks), 1)
			assert.Equal(t, expected.Answer, parser.Answer())

			frames := strings.Split(strings.TrimSpace(rec.Body.String()), "\n\n")
			assert.Equal(t, `data: {"content":"","done":true}`, frames[len(frames)-1])
			assert.Equal(t, 1, strings.Count(rec.Body.String(), `"done":true`))
		})
	}

	t.Run("stream given as string does not count", func(t *testing.T) {
		rec := do(e, http.MethodPost, "/chat", `{"stream":"true",`+body[1:])
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON)
	})
}

func TestChatStreamingUpstreamFailure(t *testing.T) {
	e := newTestServer(t, &llm.MockModel{Err: errors.New("connection refused")}, nil)

	rec := do(e, http.MethodPost, "/chat?stream=true", `{"prompt":"q","audioResults":`+testResults+`}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "data: {\"error\":\"connection refused\",\"done\":true}\n\n", rec.Body.String())

	_, parser := readFrames(t, rec.Body.String())
	assert.True(t, parser.Done())
	assert.True(t, streaming.IsFrameError(parser.FrameError()))
}

func TestSessions(t *testing.T) {
	e := newTestServer(t, llm.NewMockModel(), nil)

	rec := do(e, http.MethodPost, "/sessions", `{"session_id":"backend-id","filename":"meeting.wav","results":`+testResults+`,"cached":false}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created SessionResponse
	decode(t, rec, &created)
	require.NotEmpty(t, created.SessionID)
	assert.NotEqual(t, "backend-id", created.SessionID)
	assert.Equal(t, "meeting.wav", created.Filename)
	assert.False(t, created.Cached)

	rec = do(e, http.MethodPost, "/sessions", `{"filename":"again.wav","results":`+testResults+`}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var again SessionResponse
	decode(t, rec, &again)
	assert.True(t, again.Cached)
	assert.Equal(t, created.SessionID, again.SessionID)

	rec = do(e, http.MethodGet, "/sessions/"+created.SessionID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"halo semua"`)

	rec = do(e, http.MethodPost, "/chat", `{"prompt":"who spoke?","session_id":"`+created.SessionID+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var chat ChatResponse
	decode(t, rec, &chat)
	assert.Nil(t, chat.Error)

	rec = do(e, http.MethodDelete, "/session/"+created.SessionID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var deleted MessageResponse
	decode(t, rec, &deleted)
	assert.Equal(t, "Session "+created.SessionID+" deleted successfully", deleted.Message)

	rec = do(e, http.MethodDelete, "/sessions/"+created.SessionID, "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(e, http.MethodPost, "/sessions", `{"filename":"empty.wav"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	e := newTestServer(t, llm.NewMockModel(), nil)

	rec := do(e, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = do(e, http.MethodGet, "/api/chat/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status repositories.HealthStatus
	decode(t, rec, &status)
	assert.True(t, status.Healthy)
	assert.True(t, status.ModelLoaded)

	down := newTestServer(t, &llm.MockModel{Err: errors.New("down")}, nil)
	rec = do(down, http.MethodGet, "/api/chat/health", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	decode(t, rec, &status)
	assert.False(t, status.Healthy)
	assert.Equal(t, "down", status.Error)
}

func TestPullUnsupported(t *testing.T) {
	e := newTestServer(t, llm.NewMockModel(), nil)

	rec := do(e, http.MethodPost, "/api/chat/pull", `{"model":"llama3"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp PullResponse
	decode(t, rec, &resp)
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)
}

func TestGenerate(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		e := newTestServer(t, llm.NewMockModel(), nil)
		rec := do(e, http.MethodPost, "/api/generate", `{"prompt":"hi"}`)
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "AI service not configured")
	})

	generator := &llm.MockModel{Answer: "generated"}
	e := newTestServer(t, llm.NewMockModel(), generator)

	t.Run("missing prompt", func(t *testing.T) {
		rec := do(e, http.MethodPost, "/api/generate", `{"systemPrompt":"be brief"}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		var resp ErrorResponse
		decode(t, rec, &resp)
		assert.Equal(t, "Prompt is required", resp.Error)
	})

	t.Run("success", func(t *testing.T) {
		rec := do(e, http.MethodPost, "/api/generate", `{"prompt":"hi","systemPrompt":"be brief"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		var resp GenerateResponse
		decode(t, rec, &resp)
		assert.Equal(t, "generated", resp.Text)
	})

	t.Run("failure", func(t *testing.T) {
		failing := newTestServer(t, llm.NewMockModel(), &llm.MockModel{Err: errors.New("quota")})
		rec := do(failing, http.MethodPost, "/api/generate", `{"prompt":"hi"}`)
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		var resp ErrorResponse
		decode(t, rec, &resp)
		assert.Equal(t, "Failed to generate text", resp.Error)
		assert.Equal(t, "quota", resp.Details)
	})
}
