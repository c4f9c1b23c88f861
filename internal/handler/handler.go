// Package handler implements the WebSocket Connection Handler: it accepts
// one connection per browser tab, parses the session/user query
// parameters, drives the dialog state machine through an fsm.Driver, and
// serializes outbound envelope events back to the client. goa codegen is
// not used here; the transport is a raw gorilla/websocket upgrade, matching
// the teacher's hand-rolled streaming endpoints where codegen doesn't fit.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/deckforge/orchestrator/internal/envelope"
	"github.com/deckforge/orchestrator/internal/fsm"
	"github.com/deckforge/orchestrator/internal/session"
	"github.com/deckforge/orchestrator/internal/telemetry"
)

// historyReplayDelay is the inter-message pause during history restoration,
// giving clients room to render incrementally (spec: "≤100ms").
const historyReplayDelay = 75 * time.Millisecond

// inboundFrame is the wire shape of a client-submitted message.
type inboundFrame struct {
	Type string `json:"type"`
	Data struct {
		Text          string `json:"text"`
		SkipHistory   bool   `json:"skip_history"`
		LastMessageID string `json:"last_message_id"`
	} `json:"data"`
}

const (
	inboundUserMessage = "user_message"
	inboundSyncRequest = "sync_request"
)

// Hub tracks live connections by session_id so a server-side event (e.g., a
// Stage-6 status_update pushed from outside the request/response cycle)
// could reach the right socket without the driver knowing about transport.
type Hub struct {
	mu    sync.Mutex
	conns map[string]*connection
}

// NewHub constructs an empty Hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[string]*connection)}
}

func (h *Hub) register(sessionID string, c *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[sessionID] = c
}

func (h *Hub) unregister(sessionID string, c *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[sessionID] == c {
		delete(h.conns, sessionID)
	}
}

// Push sends an event to sessionID's live connection, if any. It is a no-op
// if the session has no open connection.
func (h *Hub) Push(sessionID string, event envelope.Event) {
	h.mu.Lock()
	c := h.conns[sessionID]
	h.mu.Unlock()
	if c == nil {
		return
	}
	c.send(event)
}

// Handler upgrades HTTP connections to WebSocket and drives each one through
// driver and store.
type Handler struct {
	driver   fsm.Driver
	store    session.Store
	hub      *Hub
	logger   telemetry.Logger
	upgrader websocket.Upgrader
}

// New constructs a Handler. hub may be nil; a private Hub is created if so.
func New(driver fsm.Driver, store session.Store, hub *Hub, logger telemetry.Logger) *Handler {
	if hub == nil {
		hub = NewHub()
	}
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Handler{
		driver: driver,
		store:  store,
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP implements http.Handler; mount it at the session WebSocket path.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sessionID := q.Get("session_id")
	userID := q.Get("user_id")
	if sessionID == "" || userID == "" {
		http.Error(w, "session_id and user_id are required", http.StatusBadRequest)
		return
	}
	skipHistory := q.Get("skip_history") == "true"

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(r.Context(), "websocket upgrade failed", "session_id", sessionID, "error", err.Error())
		return
	}

	conn := &connection{ws: ws, logger: h.logger, sessionID: sessionID}
	h.hub.register(sessionID, conn)
	defer func() {
		h.hub.unregister(sessionID, conn)
		h.driver.Cancel(sessionID)
		ws.Close()
	}()

	ctx := r.Context()
	h.onConnect(ctx, conn, sessionID, userID, skipHistory)
	h.readLoop(ctx, conn, sessionID, userID)
}

// onConnect runs the accept-time work: greeting for a brand new session,
// sync_response if the client asked to skip history, or full history
// restoration otherwise.
func (h *Handler) onConnect(ctx context.Context, conn *connection, sessionID, userID string, skipHistory bool) {
	events, err := h.driver.Connect(ctx, sessionID, userID)
	if err != nil {
		h.logger.Error(ctx, "connect failed", "session_id", sessionID, "error", err.Error())
		conn.send(envelope.NewChatMessage(sessionID, session.RoleAssistant, "Something went wrong starting your session."))
		return
	}
	if len(events) > 0 {
		conn.sendAll(events)
		return
	}

	if skipHistory {
		conn.send(envelope.NewSyncResponse(sessionID, "skip_history"))
		return
	}

	sess, err := h.store.GetOrCreate(ctx, sessionID, userID)
	if err != nil {
		h.logger.Error(ctx, "load session for restoration failed", "session_id", sessionID, "error", err.Error())
		return
	}
	for _, e := range envelope.Reconstruct(sess) {
		conn.send(e)
		time.Sleep(historyReplayDelay)
	}
}

// readLoop reads inbound frames until the client disconnects, feeding each
// user_message through the driver and sync_request through a direct
// sync_response.
func (h *Handler) readLoop(ctx context.Context, conn *connection, sessionID, userID string) {
	for {
		_, raw, err := conn.ws.ReadMessage()
		if err != nil {
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			h.logger.Warn(ctx, "malformed inbound frame", "session_id", sessionID, "error", err.Error())
			continue
		}

		h.logger.Debug(ctx, "inbound frame", "session_id", sessionID, "type", frame.Type)

		switch frame.Type {
		case inboundSyncRequest:
			conn.send(envelope.NewSyncResponse(sessionID, "ack"))
		case inboundUserMessage:
			h.handleUserMessage(ctx, conn, sessionID, userID, frame.Data.Text)
		default:
			h.logger.Warn(ctx, "unknown inbound frame type", "session_id", sessionID, "type", frame.Type)
		}
	}
}

func (h *Handler) handleUserMessage(ctx context.Context, conn *connection, sessionID, userID, text string) {
	events, err := h.driver.Submit(ctx, sessionID, userID, text)
	if err != nil {
		h.logger.Error(ctx, "submit failed", "session_id", sessionID, "error", err.Error())
		conn.send(envelope.NewChatMessage(sessionID, session.RoleAssistant, "I ran into a problem processing that; please try again."))
		return
	}
	conn.sendAll(events)
}

// connection wraps one live *websocket.Conn with a write mutex; gorilla's
// Conn permits only one concurrent writer.
type connection struct {
	mu        sync.Mutex
	ws        *websocket.Conn
	logger    telemetry.Logger
	sessionID string
}

func (c *connection) send(e envelope.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ws.WriteJSON(envelope.ToFrame(e)); err != nil {
		c.logger.Warn(context.Background(), "write failed", "session_id", c.sessionID, "error", err.Error())
	}
}

func (c *connection) sendAll(events []envelope.Event) {
	for _, e := range events {
		c.send(e)
	}
}
