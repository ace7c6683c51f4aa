// internal/websocket/hub.go
package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	wstypes "tainment-service/internal/domain/websocket"
	"tainment-service/internal/pkg/jwt"

	"go.uber.org/zap"
)

var (
	// ErrUnauthorized means the hub has no verifier and accepts no one.
	ErrUnauthorized = errors.New("websocket authentication unavailable")
	ErrInvalidToken = errors.New("invalid websocket token")
)

// MessageHandler serves client-initiated events of one area, such as the inbox.
type MessageHandler interface {
	HandleMessage(ctx context.Context, client *Client, msg *wstypes.WSMessage) error
	SupportedEvents() []wstypes.EventType
}

// Hub tracks live connections per account. Delivery never blocks the
// caller: a client that cannot keep up is dropped.
type Hub struct {
	clients map[int64]map[*Client]bool
	mu      sync.RWMutex

	handlers map[wstypes.EventType]MessageHandler

	verifier *jwt.Verifier
	logger   *zap.Logger

	delivered atomic.Int64
	dropped   atomic.Int64
}

// Stats is the admin view of the hub.
type Stats struct {
	TotalConnections int   `json:"total_connections"`
	Accounts         int   `json:"accounts"`
	Delivered        int64 `json:"delivered"`
	Dropped          int64 `json:"dropped"`
}

func NewHub(verifier *jwt.Verifier, logger *zap.Logger) *Hub {
	return &Hub{
		clients:  make(map[int64]map[*Client]bool),
		handlers: make(map[wstypes.EventType]MessageHandler),
		verifier: verifier,
		logger:   logger,
	}
}

// Authenticate validates an access token for a new connection.
func (h *Hub) Authenticate(token string) (*ClientAuth, error) {
	if h.verifier == nil {
		return nil, ErrUnauthorized
	}
	claims, err := h.verifier.VerifyAccessToken(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return &ClientAuth{
		AccountID: claims.IdentityID,
		SessionID: claims.ID,
		Roles:     claims.Roles,
	}, nil
}

func (h *Hub) RegisterHandler(handler MessageHandler) {
	for _, eventType := range handler.SupportedEvents() {
		h.handlers[eventType] = handler
	}
}

func (h *Hub) dispatch(ctx context.Context, client *Client, msg *wstypes.WSMessage) (bool, error) {
	handler, ok := h.handlers[msg.Type]
	if !ok {
		return false, nil
	}
	return true, handler.HandleMessage(ctx, client, msg)
}

// Run closes every connection once ctx is done.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.shutdown()
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	if h.clients[client.accountID] == nil {
		h.clients[client.accountID] = make(map[*Client]bool)
	}
	h.clients[client.accountID][client] = true
	total := h.totalLocked()
	h.mu.Unlock()

	h.logger.Info("websocket client connected",
		zap.Int64("account_id", client.accountID),
		zap.String("session_id", client.sessionID),
		zap.Int("total", total),
	)

	client.SendMessage(wstypes.NewMessage(wstypes.EventTypeConnected, map[string]interface{}{
		"account_id": client.accountID,
		"session_id": client.sessionID,
		"roles":      client.roles,
	}))
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	clients, ok := h.clients[client.accountID]
	if !ok || !clients[client] {
		h.mu.Unlock()
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.clients, client.accountID)
	}
	total := h.totalLocked()
	h.mu.Unlock()

	client.Close()
	h.logger.Info("websocket client disconnected",
		zap.Int64("account_id", client.accountID),
		zap.String("session_id", client.sessionID),
		zap.Int("total", total),
	)
}

// Send delivers msg to every connection of accountID listening on channel
// and returns how many accepted it.
func (h *Hub) Send(accountID int64, channel wstypes.ChannelType, msg *wstypes.WSMessage) int {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients[accountID]))
	for c := range h.clients[accountID] {
		if c.IsSubscribed(channel) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range targets {
		if c.SendMessage(msg) {
			sent++
		} else {
			h.dropped.Add(1)
		}
	}
	h.delivered.Add(int64(sent))
	return sent
}

func (h *Hub) PushNotification(accountID int64, data *wstypes.NotificationData) int {
	return h.Send(accountID, wstypes.ChannelNotifications, wstypes.NewMessage(wstypes.EventTypeNotification, data))
}

func (h *Hub) PushUnreadCount(accountID int64, count int64) int {
	return h.Send(accountID, wstypes.ChannelNotifications, wstypes.NewMessage(wstypes.EventTypeNotificationCount, map[string]interface{}{
		"unread_count": count,
	}))
}

func (h *Hub) PushSubscriptionEvent(accountID int64, data *wstypes.SubscriptionEventData) int {
	return h.Send(accountID, wstypes.ChannelSubscription, wstypes.NewMessage(wstypes.EventTypeSubscription, data))
}

func (h *Hub) Connections(accountID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[accountID])
}

func (h *Hub) TotalClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalLocked()
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Stats{
		TotalConnections: h.totalLocked(),
		Accounts:         len(h.clients),
		Delivered:        h.delivered.Load(),
		Dropped:          h.dropped.Load(),
	}
}

func (h *Hub) totalLocked() int {
	total := 0
	for _, clients := range h.clients {
		total += len(clients)
	}
	return total
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	all := make([]*Client, 0)
	for _, clients := range h.clients {
		for c := range clients {
			all = append(all, c)
		}
	}
	h.clients = make(map[int64]map[*Client]bool)
	h.mu.Unlock()

	for _, c := range all {
		c.Close()
	}
	h.logger.Info("websocket hub stopped", zap.Int("closed", len(all)))
}
