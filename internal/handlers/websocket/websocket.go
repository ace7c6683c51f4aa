// internal/handlers/websocket/websocket.go
package handlers

import (
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"tainment-service/internal/pkg/response"
	ws "tainment-service/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// bearerProtocol lets browsers pass the token as Sec-WebSocket-Protocol
// "bearer, <token>" instead of in the URL.
const bearerProtocol = "bearer"

type WebSocketHandler struct {
	hub      *ws.Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWebSocketHandler accepts connections from allowedOrigins (host names).
// An empty list accepts any origin.
func NewWebSocketHandler(hub *ws.Hub, allowedOrigins []string, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			HandshakeTimeout: 10 * time.Second,
			Subprotocols:     []string{bearerProtocol},
			CheckOrigin:      originChecker(allowedOrigins),
		},
		logger: logger,
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return slices.Contains(allowed, u.Hostname())
	}
}

// HandleConnection authenticates the token and upgrades the connection
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	token := extractToken(c.Request)
	if token == "" {
		response.Error(c, http.StatusUnauthorized, "missing authentication token", nil)
		return
	}

	auth, err := h.hub.Authenticate(token)
	if err != nil {
		h.logger.Warn("websocket authentication failed",
			zap.Error(err),
			zap.String("ip", c.ClientIP()),
		)
		response.Error(c, http.StatusUnauthorized, "authentication failed", nil)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already answered the client.
		h.logger.Warn("websocket upgrade failed",
			zap.Error(err),
			zap.Int64("account_id", auth.AccountID),
		)
		return
	}

	client := ws.NewClient(h.hub, conn, auth)
	h.hub.Register(client)

	h.logger.Info("websocket client connected",
		zap.Int64("account_id", auth.AccountID),
		zap.String("session_id", auth.SessionID),
	)

	go client.WritePump()
	go client.ReadPump()
}

func extractToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	if protocols := websocket.Subprotocols(r); len(protocols) == 2 && protocols[0] == bearerProtocol {
		return protocols[1]
	}
	if scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}

// GetStats returns hub connection statistics
func (h *WebSocketHandler) GetStats(c *gin.Context) {
	response.Success(c, http.StatusOK, "websocket stats", gin.H{
		"stats":     h.hub.Stats(),
		"timestamp": time.Now().UTC(),
	})
}
