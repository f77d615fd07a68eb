package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/audiolens/domain/entities"
	"github.com/satriahrh/audiolens/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Inline analyses can be large.
	maxMessageSize = 4 * 1024 * 1024
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// ChatRelay is the part of the chat service the hub drives
type ChatRelay interface {
	Prepare(ctx context.Context, in usecase.ChatInput) (usecase.ChatRequest, error)
	AskStream(ctx context.Context, req usecase.ChatRequest, onChunk func(string)) (entities.ChatExchange, error)
}

// Hub maintains the set of active clients
type Hub struct {
	// Registered clients.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Closed when Run returns.
	done chan struct{}

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	chat      ChatRelay
	validator *MessageValidator

	logger *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(chat ChatRelay, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		chat:       chat,
		validator:  NewMessageValidator(),
		logger:     logger,
	}
}

// Run starts the hub's main loop. When ctx ends every connection is closed.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()
			h.logger.Info("Client registered", zap.String("clientID", client.id))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("Client unregistered", zap.String("clientID", client.id))

		case <-ctx.Done():
			h.mu.Lock()
			for id, client := range h.clients {
				client.cancel()
				_ = client.conn.Close()
				delete(h.clients, id)
			}
			h.mu.Unlock()
			h.logger.Info("Hub stopped")
			return
		}
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages. Only the write pump touches conn
	// for writing.
	send chan WriteData

	id string

	// Cancelled when the connection goes away; stops in-flight exchanges.
	ctx    context.Context
	cancel context.CancelFunc

	// In-flight exchanges.
	exchanges sync.WaitGroup

	logger *zap.Logger
}

// HandleWebSocket handles websocket requests from the peer.
func HandleWebSocket(hub *Hub, c echo.Context, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.New().String()
	client := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan WriteData, 256),
		id:     id,
		ctx:    ctx,
		cancel: cancel,
		logger: logger.With(zap.String("clientID", id), zap.String("remote", conn.RemoteAddr().String())),
	}

	select {
	case client.hub.register <- client:
	case <-client.hub.done:
		cancel()
		_ = conn.Close()
		return nil
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	return nil
}

// readPump pumps messages from the websocket connection to the hub.
func (c *Client) readPump() {
	defer func() {
		c.cancel()
		c.exchanges.Wait()
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			c.processMessage(message)
		default:
			c.logger.Warn("Received unsupported message type", zap.Int("type", messageType))
			c.enqueue(CreateErrorMessage("", ErrorCodeInvalidMessage, "only text messages are supported", ""))
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// processMessage dispatches one incoming text message
func (c *Client) processMessage(message []byte) {
	parsed, err := c.hub.validator.ValidateMessage(message)
	if err != nil {
		c.logger.Warn("Invalid message", zap.Error(err))
		c.enqueue(CreateErrorMessage("", ErrorCodeInvalidMessage, err.Error(), ""))
		return
	}

	switch msg := parsed.(type) {
	case *ChatMessage:
		c.exchanges.Add(1)
		go func() {
			defer c.exchanges.Done()
			c.runExchange(msg)
		}()
	case *PingMessage:
		c.enqueue(CreatePongMessage(msg.Data))
	}
}

// runExchange relays one chat exchange. Exchanges on the same connection run
// concurrently and are told apart by exchange_id.
func (c *Client) runExchange(msg *ChatMessage) {
	logger := c.logger.With(zap.String("exchange_id", msg.ExchangeID))

	req, err := c.hub.chat.Prepare(c.ctx, usecase.ChatInput{
		Question:  msg.Question,
		Payload:   entities.NewAnalysisPayload(msg.AudioResults),
		SessionID: msg.SessionID,
	})
	if err != nil {
		logger.Info("Chat message rejected", zap.Error(err))
		c.enqueue(CreateErrorMessage(msg.ExchangeID, string(usecase.CodeOf(err)), usecase.MessageOf(err), ""))
		return
	}

	exchange, err := c.hub.chat.AskStream(c.ctx, req, func(chunk string) {
		c.enqueue(CreateChunkMessage(msg.ExchangeID, chunk))
	})
	if err != nil {
		logger.Warn("Chat exchange failed", zap.Error(err))
		c.enqueue(CreateErrorMessage(msg.ExchangeID, string(usecase.CodeOf(err)), usecase.MessageOf(err), ""))
		return
	}

	c.enqueue(CreateDoneMessage(msg.ExchangeID, exchange.Answer, exchange.ModelUsed))
}

// enqueue hands a message to the write pump. It gives up once the connection
// is gone.
func (c *Client) enqueue(msg interface{}) {
	payload, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("Failed to encode message", zap.Error(err))
		return
	}

	select {
	case c.send <- WriteData{Type: websocket.TextMessage, Payload: payload}:
	case <-c.ctx.Done():
	}
}
