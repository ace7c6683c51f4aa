package payment

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"tainment-service/internal/domain/payment"
)

// MockGateway simulates a payment provider. ProcessPayment succeeds with
// successRate and Verify confirms with verifyRate; a transaction the mock
// saw fail is never verified.
type MockGateway struct {
	mu          sync.Mutex
	rnd         *rand.Rand
	successRate float64
	verifyRate  float64
	outcomes    map[string]payment.GatewayStatus
	logger      *zap.Logger
}

func NewMockGateway(successRate, verifyRate float64, seed int64, logger *zap.Logger) *MockGateway {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &MockGateway{
		rnd:         rand.New(rand.NewSource(seed)),
		successRate: successRate,
		verifyRate:  verifyRate,
		outcomes:    make(map[string]payment.GatewayStatus),
		logger:      logger,
	}
}

func (g *MockGateway) CreateSession(_ context.Context, session *payment.CheckoutSession) (string, error) {
	g.logger.Info("gateway session created",
		zap.String("transaction_id", session.TransactionID),
		zap.Float64("amount", session.Price),
	)
	return "mock_" + session.TransactionID, nil
}

func (g *MockGateway) ProcessPayment(ctx context.Context, session *payment.CheckoutSession) (payment.GatewayResult, error) {
	if err := ctx.Err(); err != nil {
		return payment.GatewayResult{}, err
	}

	g.mu.Lock()
	ok := g.rnd.Float64() < g.successRate
	result := payment.GatewayResult{Status: payment.GatewayCompleted}
	if !ok {
		result = payment.GatewayResult{Status: payment.GatewayFailed, Reason: "payment declined by card issuer"}
	}
	g.outcomes[session.TransactionID] = result.Status
	g.mu.Unlock()

	g.logger.Info("gateway processed payment",
		zap.String("transaction_id", session.TransactionID),
		zap.String("status", string(result.Status)),
	)
	return result, nil
}

func (g *MockGateway) Verify(ctx context.Context, transactionID string) (payment.Verification, error) {
	if err := ctx.Err(); err != nil {
		return payment.Unverified, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.outcomes[transactionID] == payment.GatewayFailed {
		return payment.Unverified, nil
	}
	if g.rnd.Float64() < g.verifyRate {
		return payment.Verified, nil
	}
	g.logger.Warn("gateway could not verify payment", zap.String("transaction_id", transactionID))
	return payment.Unverified, nil
}
