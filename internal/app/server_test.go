package app

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tainment-service/internal/config"
	"tainment-service/internal/pkg/jwt"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type harness struct {
	t       *testing.T
	handler http.Handler
	gen     *jwt.Generator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	cfg := config.AppConfig{
		StoreDriver:           config.StoreMemory,
		TransitionMaxAttempts: 3,
		CacheTTL:              time.Minute,
		Payment: config.PaymentConfig{
			CheckoutTimeout: 30 * time.Minute,
			Currency:        "USD",
			Method:          "mock_gateway",
			MockSuccessRate: 1,
			MockVerifyRate:  1,
			MockSeed:        7,
		},
	}
	logger := zap.NewNop()
	srv := Assemble(cfg, logger, MemoryInfra(cfg, logger), jwt.NewVerifier(&key.PublicKey, "identity-service", "tainment-users"))

	return &harness{
		t:       t,
		handler: srv.Handler(),
		gen:     jwt.NewGenerator(key, "identity-service", "tainment-users", "test", time.Hour),
	}
}

func (h *harness) token(id int64, roles ...string) string {
	tok, _, err := h.gen.GenerateAccessToken(id, "", roles)
	require.NoError(h.t, err)
	return tok
}

func (h *harness) do(method, path, token string, body interface{}) (int, envelope) {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(h.t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w.Code, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

type statusData struct {
	State         string `json:"state"`
	EffectiveTier string `json:"effective_tier"`
	DaysRemaining int    `json:"days_remaining"`
}

func TestTiersArePublic(t *testing.T) {
	h := newHarness(t)

	code, env := h.do(http.MethodGet, "/api/v1/tiers", "", nil)
	require.Equal(t, http.StatusOK, code)
	tiers := decode[[]map[string]interface{}](t, env.Data)
	assert.Len(t, tiers, 3)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	h := newHarness(t)

	code, _ := h.do(http.MethodGet, "/api/v1/subscriptions/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestCheckoutFlow(t *testing.T) {
	h := newHarness(t)
	user := h.token(7)

	code, env := h.do(http.MethodGet, "/api/v1/subscriptions/me", user, nil)
	require.Equal(t, http.StatusOK, code)
	status := decode[statusData](t, env.Data)
	assert.Equal(t, "basic", status.State)
	assert.Equal(t, "Basic", status.EffectiveTier)

	code, env = h.do(http.MethodPost, "/api/v1/checkout", user, map[string]interface{}{"tier": "Basic", "months": 1})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, env.Success)

	code, env = h.do(http.MethodPost, "/api/v1/checkout", user, map[string]interface{}{"tier": "premium", "months": 3})
	require.Equal(t, http.StatusCreated, code, env.Message)
	session := decode[map[string]interface{}](t, env.Data)
	txID, _ := session["transaction_id"].(string)
	require.NotEmpty(t, txID)

	// Another account cannot see or confirm it.
	code, _ = h.do(http.MethodGet, "/api/v1/checkout/"+txID, h.token(8), nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, env = h.do(http.MethodPost, "/api/v1/checkout/"+txID+"/confirm", user, nil)
	require.Equal(t, http.StatusOK, code, env.Message)
	assert.Equal(t, "payment completed", env.Message)

	code, env = h.do(http.MethodGet, "/api/v1/subscriptions/me", user, nil)
	require.Equal(t, http.StatusOK, code)
	status = decode[statusData](t, env.Data)
	assert.Equal(t, "active", status.State)
	assert.Equal(t, "Premium", status.EffectiveTier)
	assert.Equal(t, 90, status.DaysRemaining)

	// Confirming again is a replay.
	code, env = h.do(http.MethodPost, "/api/v1/checkout/"+txID+"/confirm", user, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "payment already processed", env.Message)

	// Downgrade through self-service is refused.
	code, env = h.do(http.MethodPost, "/api/v1/checkout", user, map[string]interface{}{"tier": "Basic", "months": 1})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, env.Message, "admin support")

	code, env = h.do(http.MethodGet, "/api/v1/payments/history", user, nil)
	require.Equal(t, http.StatusOK, code)
	history := decode[map[string]interface{}](t, env.Data)
	assert.EqualValues(t, 1, history["count"])

	code, env = h.do(http.MethodGet, "/api/v1/notifications", user, nil)
	require.Equal(t, http.StatusOK, code)
	inbox := decode[map[string]interface{}](t, env.Data)
	assert.GreaterOrEqual(t, inbox["total"], float64(1))

	code, env = h.do(http.MethodGet, "/api/v1/notifications/unread-count", user, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, inbox["total"], decode[map[string]interface{}](t, env.Data)["unread_count"])

	code, _ = h.do(http.MethodPut, "/api/v1/notifications/abc/read", user, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = h.do(http.MethodGet, "/api/v1/subscriptions/access?tier=Pro", user, nil)
	require.Equal(t, http.StatusOK, code)
	access := decode[map[string]interface{}](t, env.Data)
	assert.Equal(t, false, access["has_access"])
}

func TestGatewayCallback(t *testing.T) {
	h := newHarness(t)
	user := h.token(11)
	gateway := h.token(900, jwt.RoleGateway)

	code, env := h.do(http.MethodPost, "/api/v1/checkout", user, map[string]interface{}{"tier": "Pro", "months": 1})
	require.Equal(t, http.StatusCreated, code)
	txID := decode[map[string]interface{}](t, env.Data)["transaction_id"].(string)

	body := map[string]interface{}{"transaction_id": txID, "status": "completed"}

	code, _ = h.do(http.MethodPost, "/api/v1/payments/callback", user, body)
	assert.Equal(t, http.StatusForbidden, code)

	code, env = h.do(http.MethodPost, "/api/v1/payments/callback", gateway, body)
	require.Equal(t, http.StatusOK, code, env.Message)
	outcome := decode[map[string]interface{}](t, env.Data)
	assert.Equal(t, false, outcome["replayed"])

	code, env = h.do(http.MethodPost, "/api/v1/payments/callback", gateway, body)
	require.Equal(t, http.StatusOK, code)
	outcome = decode[map[string]interface{}](t, env.Data)
	assert.Equal(t, true, outcome["replayed"])

	code, env = h.do(http.MethodGet, "/api/v1/subscriptions/me", user, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Pro", decode[statusData](t, env.Data).EffectiveTier)
}

func TestAdminRoutes(t *testing.T) {
	h := newHarness(t)
	admin := h.token(1, jwt.RoleAdmin)

	code, _ := h.do(http.MethodGet, "/api/v1/admin/reports/metrics", h.token(2), nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, env := h.do(http.MethodPost, "/api/v1/admin/accounts/42/upgrade", admin, map[string]interface{}{"tier": "Pro", "duration_days": 10})
	require.Equal(t, http.StatusOK, code, env.Message)

	code, env = h.do(http.MethodPost, "/api/v1/admin/accounts/42/extend", admin, map[string]interface{}{"days": 5})
	require.Equal(t, http.StatusOK, code, env.Message)

	code, env = h.do(http.MethodGet, "/api/v1/admin/accounts/42/history", admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 3, decode[map[string]interface{}](t, env.Data)["count"])

	code, env = h.do(http.MethodGet, "/api/v1/admin/subscribers?tier=Pro", admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, decode[map[string]interface{}](t, env.Data)["count"])

	code, env = h.do(http.MethodGet, "/api/v1/admin/reports/metrics?days=7", admin, nil)
	require.Equal(t, http.StatusOK, code)
	m := decode[map[string]interface{}](t, env.Data)
	assert.EqualValues(t, 1, m["new_subscribers"])
	assert.EqualValues(t, 1, m["upgrades"])
	assert.EqualValues(t, 1, m["extensions"])

	code, _ = h.do(http.MethodPost, "/api/v1/admin/scanner/run", admin, map[string]interface{}{"sweep": "grace"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = h.do(http.MethodPost, "/api/v1/admin/scanner/run", admin, map[string]interface{}{"sweep": "expiry"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "sweep completed", env.Message)

	code, _ = h.do(http.MethodGet, "/api/v1/admin/ws/stats", admin, nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t)
	h.do(http.MethodGet, "/api/v1/tiers", "", nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}
