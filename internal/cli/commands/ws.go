package commands

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/satriahrh/audiolens/internal/cli/ui"
)

var wsCmd = &cobra.Command{
	Use:   "ws <question>",
	Short: "ask a question over the WebSocket relay",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runWS,
}

func init() {
	addSessionFlags(wsCmd)
}

type wsChat struct {
	Type         string          `json:"type"`
	ExchangeID   string          `json:"exchange_id"`
	Question     string          `json:"question"`
	SessionID    string          `json:"session_id,omitempty"`
	AudioResults json.RawMessage `json:"audioResults,omitempty"`
}

type wsReply struct {
	Type       string  `json:"type"`
	ExchangeID string  `json:"exchange_id"`
	Content    string  `json:"content"`
	Answer     string  `json:"answer"`
	ModelUsed  *string `json:"model_used"`
	Code       string  `json:"error_code"`
	Message    string  `json:"message"`
}

// websocketURL turns a relay base URL into its /ws/chat endpoint
func websocketURL(base string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path += "/ws/chat"
	return u.String(), nil
}

func runWS(cmd *cobra.Command, args []string) error {
	session, err := resolveSession(cmd)
	if err != nil {
		return err
	}

	servers := viper.GetStringSlice("servers")
	if len(servers) == 0 {
		return fmt.Errorf("no server configured")
	}
	wsURL, err := websocketURL(servers[0])
	if err != nil {
		return err
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(cmd.Context(), wsURL, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("WebSocket connection failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("WebSocket connection failed: %w", err)
	}
	defer conn.Close()

	msg := wsChat{
		Type:       "chat",
		ExchangeID: uuid.New().String(),
		Question:   strings.Join(args, " "),
		SessionID:  session.ID,
	}
	if session.ID == "" {
		msg.AudioResults = session.Payload.Raw()
	}
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to send question: %w", err)
	}

	timeout := viper.GetDuration("timeout")
	for {
		conn.SetReadDeadline(time.Now().Add(timeout))
		var reply wsReply
		if err := conn.ReadJSON(&reply); err != nil {
			return fmt.Errorf("failed to read reply: %w", err)
		}
		if reply.ExchangeID != "" && reply.ExchangeID != msg.ExchangeID {
			continue
		}

		switch reply.Type {
		case "chat_chunk":
			ui.PrintChunk(reply.Content)
		case "chat_done":
			ui.EndAnswer()
			if reply.ModelUsed != nil {
				ui.PrintInfo("model: %s", *reply.ModelUsed)
			}
			return nil
		case "error":
			ui.PrintError("%s: %s", reply.Code, reply.Message)
			return fmt.Errorf("chat request failed")
		}
	}
}
