package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"marshmallow-backend/internal/middleware"
	"marshmallow-backend/internal/models"
	"marshmallow-backend/internal/services"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Native clients send no Origin
	},
}

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type      string                 `json:"type"`
	MessageID string                 `json:"message_id,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Code      string                 `json:"code,omitempty"`
	Send      *services.MessageInput `json:"send,omitempty"`
	Data      interface{}            `json:"data,omitempty"`
}

// WebSocketHandler streams live message snapshots and accepts writes
type WebSocketHandler struct {
	live    *services.LiveHub
	pairing *services.PairingService
	events  *services.EventService
	tokens  middleware.TokenValidator
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(
	live *services.LiveHub,
	pairing *services.PairingService,
	events *services.EventService,
	tokens middleware.TokenValidator,
) *WebSocketHandler {
	return &WebSocketHandler{
		live:    live,
		pairing: pairing,
		events:  events,
		tokens:  tokens,
	}
}

// wsConn serializes writes; gorilla allows a single concurrent writer
type wsConn struct {
	conn   *websocket.Conn
	userID string
	mu     sync.Mutex

	subMu       sync.Mutex
	unsubscribe func()
}

func (c *wsConn) send(msg WSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (c *wsConn) sendError(code, message string) {
	if err := c.send(WSMessage{Type: "error", Code: code, Message: message}); err != nil {
		log.Debug().Err(err).Str("user_id", c.userID).Msg("Failed to send error")
	}
}

func (c *wsConn) setSubscription(unsubscribe func()) {
	c.subMu.Lock()
	prev := c.unsubscribe
	c.unsubscribe = unsubscribe
	c.subMu.Unlock()
	if prev != nil {
		prev()
	}
}

// HandleWebSocket handles GET /ws?token=...
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.ValidateWebSocketToken(r.URL.Query().Get("token"), h.tokens)
	if err != nil {
		respondError(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()

	c := &wsConn{conn: conn, userID: userID}
	defer c.setSubscription(nil)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	log.Info().Str("user_id", userID).Msg("WebSocket connection established")

	h.subscribe(ctx, c)
	go h.keepAlive(ctx, c)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Str("user_id", userID).Msg("WebSocket error")
			}
			break
		}

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError("invalid_format", "Invalid message format")
			continue
		}
		h.handleMessage(ctx, c, msg)
	}

	log.Info().Str("user_id", userID).Msg("WebSocket connection closed")
}

func (h *WebSocketHandler) keepAlive(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}

// subscribe starts the live view of the user's couple on this connection
func (h *WebSocketHandler) subscribe(ctx context.Context, c *wsConn) {
	couple, err := h.pairing.CoupleForUser(ctx, c.userID)
	if err != nil {
		if errors.Is(err, models.ErrNotPaired) {
			c.send(WSMessage{Type: "pair_status", Data: map[string]interface{}{"has_pair": false}})
			return
		}
		log.Error().Err(err).Str("user_id", c.userID).Msg("Failed to load couple")
		c.sendError("unavailable", "couldn't load, please try again")
		return
	}

	unsubscribe, err := h.live.Subscribe(ctx, couple.ID,
		func(snapshot models.MessageSnapshot) {
			if err := c.send(WSMessage{Type: "snapshot", Data: snapshot}); err != nil {
				log.Debug().Err(err).Str("user_id", c.userID).Msg("Failed to send snapshot")
			}
		},
		func(err error) {
			c.sendError("subscription_ended", "live updates stopped, send subscribe to resume")
		},
	)
	if err != nil {
		log.Error().Err(err).Str("couple_id", couple.ID).Msg("Failed to subscribe")
		c.sendError("subscription_failed", "couldn't load, please try again")
		return
	}
	c.setSubscription(unsubscribe)

	c.send(WSMessage{Type: "pair_status", Data: map[string]interface{}{"has_pair": true, "couple_id": couple.ID}})
}

// handleMessage processes incoming WebSocket messages
func (h *WebSocketHandler) handleMessage(ctx context.Context, c *wsConn, msg WSMessage) {
	switch msg.Type {
	case "subscribe":
		h.subscribe(ctx, c)
	case "send_message":
		if msg.Send == nil {
			c.sendError("validation", "send is required")
			return
		}
		created, err := h.events.AppendMessage(ctx, c.userID, *msg.Send)
		if err != nil {
			c.sendError("send_failed", userMessage(err))
			return
		}
		c.send(WSMessage{Type: "message_sent", MessageID: created.ID, Data: created})
	case "mark_read":
		if err := h.events.MarkMessageRead(ctx, c.userID, msg.MessageID); err != nil {
			c.sendError("mark_read_failed", userMessage(err))
		}
	default:
		c.sendError("unknown_type", "Unknown message type")
	}
}

// userMessage returns the text a client may show for a failed write
func userMessage(err error) string {
	var opErr *models.OpError
	if errors.As(err, &opErr) {
		return opErr.Message
	}
	return err.Error()
}
