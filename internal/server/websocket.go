package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/livetemplate/pagebuilder"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = maxRequestBodySize
)

// client is one open socket. gorilla connections allow a single concurrent
// writer, so every write goes through mu.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *client) writeJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.write(data)
}

// deadline returns the context deadline, or writeWait from now.
func deadline(ctx context.Context) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Now().Add(writeWait)
}

// WebSocketHandler carries action envelopes from one tab to the editor and
// sends back the rendered view.
type WebSocketHandler struct {
	server   *Server
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWebSocketHandler creates a socket handler for s.
func NewWebSocketHandler(s *Server) *WebSocketHandler {
	h := &WebSocketHandler{
		server: s,
		logger: s.logger.Named("ws"),
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

// checkOrigin accepts same-host origins and the configured CORS origins.
func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err == nil && u.Host == r.Host {
		return true
	}
	for _, allowed := range h.server.config.API.GetCORSOrigins() {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// ServeHTTP handles WebSocket upgrade and message routing.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxMessageSize)

	c := &client{conn: conn}
	h.server.registerConnection(c)
	defer func() {
		h.server.unregisterConnection(c)
		conn.Close()
	}()

	h.logger.Debug("client connected", zap.String("remote", conn.RemoteAddr().String()))

	// The page may be stale by the time the socket opens.
	if resp, err := h.server.router.View("connected", pagebuilder.FocusNone); err == nil {
		_ = c.writeJSON(resp)
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("unexpected close", zap.Error(err))
			}
			return
		}
		h.handleMessage(c, message)
	}
}

func (h *WebSocketHandler) handleMessage(c *client, message []byte) {
	var env pagebuilder.MessageEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		h.logger.Warn("invalid message", zap.Error(err))
		_ = c.writeJSON(&pagebuilder.ResponseEnvelope{
			Meta: map[string]interface{}{"success": false, "error": "invalid message: " + err.Error()},
		})
		return
	}

	resp, err := h.server.apply(&env, c)
	if resp == nil {
		// Rendering failed after the action was applied; apply has logged it.
		resp = &pagebuilder.ResponseEnvelope{
			Action: env.Action,
			Meta:   map[string]interface{}{"success": false, "error": err.Error()},
		}
	}
	if err := c.writeJSON(resp); err != nil {
		h.logger.Debug("write response failed", zap.Error(err))
	}
}
