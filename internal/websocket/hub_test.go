package websocket

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tainment-service/internal/domain/notification"
	wstypes "tainment-service/internal/domain/websocket"
	"tainment-service/internal/pkg/jwt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countHandler struct{}

func (countHandler) SupportedEvents() []wstypes.EventType {
	return []wstypes.EventType{wstypes.EventTypeNotificationCount}
}

func (countHandler) HandleMessage(_ context.Context, c *Client, _ *wstypes.WSMessage) error {
	c.SendMessage(wstypes.NewMessage(wstypes.EventTypeNotificationCount, map[string]interface{}{"unread_count": 4}))
	return nil
}

func serve(t *testing.T, hub *Hub, accountID int64) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(hub, conn, &ClientAuth{AccountID: accountID, SessionID: "s1"})
		hub.Register(client)
		go client.WritePump()
		go client.ReadPump()
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) *wstypes.WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	msg, err := wstypes.ParseMessage(data)
	require.NoError(t, err)
	return msg
}

func TestHubPushesToAccountConnections(t *testing.T) {
	hub := NewHub(nil, zap.NewNop())
	conn := serve(t, hub, 7)

	assert.Equal(t, wstypes.EventTypeConnected, readMessage(t, conn).Type)
	assert.Equal(t, 1, hub.Connections(7))

	sent := hub.PushSubscriptionEvent(7, &wstypes.SubscriptionEventData{
		EventID: "e1",
		Kind:    string(notification.KindDowngraded),
	})
	assert.Equal(t, 1, sent)
	assert.Equal(t, 0, hub.PushSubscriptionEvent(8, &wstypes.SubscriptionEventData{EventID: "e2"}))

	msg := readMessage(t, conn)
	assert.Equal(t, wstypes.EventTypeSubscription, msg.Type)
	data, ok := msg.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "downgraded", data["kind"])

	stats := hub.Stats()
	assert.Equal(t, 1, stats.TotalConnections)
	assert.Equal(t, int64(1), stats.Delivered)
}

func TestClientChannelsAndHandlers(t *testing.T) {
	hub := NewHub(nil, zap.NewNop())
	hub.RegisterHandler(countHandler{})
	conn := serve(t, hub, 3)
	readMessage(t, conn)

	unsubscribe := wstypes.NewMessage(wstypes.EventTypeUnsubscribe, wstypes.UnsubscribeRequest{
		Channels: []wstypes.ChannelType{wstypes.ChannelSubscription},
	})
	require.NoError(t, conn.WriteJSON(unsubscribe))
	assert.Equal(t, wstypes.EventTypeUnsubscribe, readMessage(t, conn).Type)
	assert.Equal(t, 0, hub.PushSubscriptionEvent(3, &wstypes.SubscriptionEventData{EventID: "e"}))

	require.NoError(t, conn.WriteJSON(wstypes.NewMessage(wstypes.EventTypeNotificationCount, nil)))
	msg := readMessage(t, conn)
	assert.Equal(t, wstypes.EventTypeNotificationCount, msg.Type)

	require.NoError(t, conn.WriteJSON(wstypes.NewMessage("bogus", nil)))
	assert.Equal(t, wstypes.EventTypeError, readMessage(t, conn).Type)
}

func TestHubShutdownClosesClients(t *testing.T) {
	hub := NewHub(nil, zap.NewNop())
	conn := serve(t, hub, 1)
	readMessage(t, conn)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	assert.Equal(t, 0, hub.TotalClients())
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestAuthenticate(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	gen := jwt.NewGenerator(key, "identity", "tainment", "", time.Hour)
	hub := NewHub(jwt.NewVerifier(&key.PublicKey, "identity", "tainment"), zap.NewNop())

	token, jti, err := gen.GenerateAccessToken(11, "", []string{"user"})
	require.NoError(t, err)
	auth, err := hub.Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, int64(11), auth.AccountID)
	assert.Equal(t, jti, auth.SessionID)

	_, err = hub.Authenticate("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewHub(nil, zap.NewNop()).Authenticate(token)
	assert.ErrorIs(t, err, ErrUnauthorized)
}
