package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/audiolens/domain/repositories"
	"github.com/satriahrh/audiolens/internal/config"
)

func newTestOllama(t *testing.T, handler http.HandlerFunc) (*OllamaClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger := zaptest.NewLogger(t)
	holder := config.NewStaticHolder(config.EndpointConfig{
		BaseURL:   srv.URL,
		ModelName: "ministral-3:3b",
		APIPath:   "/api/chat",
		Headers:   map[string]string{"Content-Type": "application/json", "X-Test": "yes"},
	}, logger)
	return NewOllamaClient(holder, logger, WithHTTPClient(srv.Client())), srv
}

func testRequest() repositories.CompletionRequest {
	return repositories.CompletionRequest{Messages: []repositories.ChatMessage{
		{Role: repositories.SystemRole, Content: "sys"},
		{Role: repositories.UserRole, Content: "who spoke?"},
	}}
}

func TestOllamaChat_SendsExpectedBody(t *testing.T) {
	var got ollamaChatRequest
	client, _ := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/chat", r.URL.Path)
		require.Equal(t, "yes", r.Header.Get("X-Test"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"model":"ministral-3:3b","message":{"role":"assistant","content":"  Speaker A.  "},"done":true}`)
	})

	completion, err := client.Chat(context.Background(), testRequest())
	require.NoError(t, err)
	require.Equal(t, "Speaker A.", completion.Content)
	require.Equal(t, "ministral-3:3b", completion.Model)

	require.Equal(t, "ministral-3:3b", got.Model)
	require.False(t, got.Stream)
	require.Equal(t, 0.7, got.Options.Temperature)
	require.Equal(t, 512, got.Options.NumPredict)
	require.Len(t, got.Messages, 2)
	require.Equal(t, repositories.SystemRole, got.Messages[0].Role)
}

func TestOllamaChat_OpenAIShape(t *testing.T) {
	client, _ := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"compatible"}}]}`)
	})

	completion, err := client.Chat(context.Background(), testRequest())
	require.NoError(t, err)
	require.Equal(t, "compatible", completion.Content)
}

func TestOllamaChat_BadStatus(t *testing.T) {
	client, srv := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	})

	_, err := client.Chat(context.Background(), testRequest())
	var statusErr *HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusNotFound, statusErr.HTTPStatusCode())
	require.Equal(t, srv.URL+"/api/chat", statusErr.URL)
	require.Equal(t, "model not found", statusErr.Body)
}

func TestOllamaChatStream(t *testing.T) {
	client, _ := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
		var body ollamaChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.True(t, body.Stream)
		require.Equal(t, "text/event-stream", r.Header.Get("Accept"))

		flusher := w.(http.Flusher)
		for _, line := range []string{
			`{"message":{"content":"Hel"}}` + "\n",
			`{"message":{"con`,
			`tent":"lo"}}` + "\n",
			`{"message":{"content":""},"done":true}` + "\n",
		} {
			fmt.Fprint(w, line)
			flusher.Flush()
		}
	})

	var chunks []string
	completion, err := client.ChatStream(context.Background(), testRequest(), func(s string) {
		chunks = append(chunks, s)
	})
	require.NoError(t, err)
	require.Equal(t, []string{"Hel", "lo"}, chunks)
	require.Equal(t, "Hello", completion.Content)
}

func TestOllamaChatStream_SSEWithDone(t *testing.T) {
	client, _ := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
		fmt.Fprint(w, "data: ignored\n\n")
	})

	completion, err := client.ChatStream(context.Background(), testRequest(), nil)
	require.NoError(t, err)
	require.Equal(t, "ab", completion.Content)
}

func TestOllamaChatStream_TrailingLineWithoutNewline(t *testing.T) {
	client, _ := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "plain text tail")
	})

	completion, err := client.ChatStream(context.Background(), testRequest(), nil)
	require.NoError(t, err)
	require.Equal(t, "plain text tail", completion.Content)
}

func TestOllamaChatStream_Timeout(t *testing.T) {
	client, _ := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"response":"partial"}`+"\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	completion, err := client.ChatStream(ctx, testRequest(), nil)
	require.Error(t, err)
	require.Equal(t, "partial", completion.Content)
}

func TestOllamaHealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		client, _ := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/api/tags", r.URL.Path)
			fmt.Fprint(w, `{"models":[{"name":"llama3:8b"},{"name":"ministral-3:3b-instruct"}]}`)
		})

		status := client.HealthCheck(context.Background())
		require.True(t, status.Healthy)
		require.True(t, status.ModelLoaded)
		require.Equal(t, []string{"llama3:8b", "ministral-3:3b-instruct"}, status.AvailableModels)
	})

	t.Run("model missing", func(t *testing.T) {
		client, _ := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"models":[]}`)
		})

		status := client.HealthCheck(context.Background())
		require.True(t, status.Healthy)
		require.False(t, status.ModelLoaded)
		require.Empty(t, status.AvailableModels)

		body, err := json.Marshal(status)
		require.NoError(t, err)
		require.Contains(t, string(body), `"availableModels":[]`)
	})

	t.Run("unreachable", func(t *testing.T) {
		client, srv := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {})
		srv.Close()

		status := client.HealthCheck(context.Background())
		require.False(t, status.Healthy)
		require.NotEmpty(t, status.Error)
		require.Equal(t, unreachableMessage, status.Message)
	})
}

func TestOllamaPullModel(t *testing.T) {
	var pulled map[string]any
	client, _ := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/pull", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&pulled))
		fmt.Fprint(w, `{"status":"success"}`)
	})

	name, err := client.PullModel(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, "ministral-3:3b", name)
	require.Equal(t, "ministral-3:3b", pulled["name"])
}

func TestMockModel(t *testing.T) {
	m := NewMockModel()
	req := repositories.CompletionRequest{Messages: []repositories.ChatMessage{
		{Role: repositories.UserRole, Content: "User Question: who laughed?\n\nAUDIO METADATA:\n{}"},
	}}

	var chunks []string
	streamed, err := m.ChatStream(context.Background(), req, func(s string) { chunks = append(chunks, s) })
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	require.Equal(t, strings.Join(chunks, ""), streamed.Content)
	require.Contains(t, streamed.Content, "who laughed?")

	whole, err := m.Chat(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, whole.Content, streamed.Content)

	m.Err = errors.New("offline")
	require.False(t, m.HealthCheck(context.Background()).Healthy)
}
