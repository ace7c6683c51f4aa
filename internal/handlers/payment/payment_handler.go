// internal/handlers/payment/payment_handler.go
package payment

import (
	"net/http"

	"tainment-service/internal/domain/payment"
	"tainment-service/internal/domain/subscription"
	"tainment-service/internal/middleware"
	xerrors "tainment-service/internal/pkg/errors"
	"tainment-service/internal/pkg/response"
	service "tainment-service/internal/service/payment"

	"github.com/gin-gonic/gin"
)

type PaymentHandler struct {
	paymentService *service.PaymentService
}

func NewPaymentHandler(paymentService *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
	}
}

// CreateCheckout opens a checkout session for a paid tier
func (h *PaymentHandler) CreateCheckout(c *gin.Context) {
	accountID := middleware.MustGetIdentityID(c)

	var req payment.CreateCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}
	tier, ok := subscription.ParseTier(req.Tier)
	if !ok {
		response.FromError(c, xerrors.Validation("unknown tier; choose Premium or Pro", "tier", req.Tier))
		return
	}

	session, err := h.paymentService.CreateCheckoutSession(c.Request.Context(), accountID, tier, req.Months)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, "checkout session created", session)
}

// RenewCheckout opens a checkout for the caller's current paid tier
func (h *PaymentHandler) RenewCheckout(c *gin.Context) {
	accountID := middleware.MustGetIdentityID(c)

	var req payment.RenewCheckoutRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, http.StatusBadRequest, "invalid request", err)
			return
		}
	}

	session, err := h.paymentService.RenewCheckout(c.Request.Context(), accountID, req.Months)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, "renewal checkout created", session)
}

// GetCheckout returns a pending session owned by the caller
func (h *PaymentHandler) GetCheckout(c *gin.Context) {
	accountID := middleware.MustGetIdentityID(c)

	session, err := h.paymentService.GetSession(c.Request.Context(), accountID, c.Param("transaction_id"))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "checkout session retrieved", session)
}

// ConfirmCheckout charges the session and applies the result
func (h *PaymentHandler) ConfirmCheckout(c *gin.Context) {
	accountID := middleware.MustGetIdentityID(c)

	outcome, err := h.paymentService.ConfirmCheckout(c.Request.Context(), accountID, c.Param("transaction_id"))
	if err != nil {
		response.FromError(c, err)
		return
	}

	message := "payment completed"
	if outcome.Replayed {
		message = "payment already processed"
	}
	response.Success(c, http.StatusOK, message, outcome)
}

// CancelCheckout discards a pending session
func (h *PaymentHandler) CancelCheckout(c *gin.Context) {
	accountID := middleware.MustGetIdentityID(c)

	if err := h.paymentService.CancelCheckout(c.Request.Context(), accountID, c.Param("transaction_id")); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "checkout cancelled", nil)
}

// GetPaymentHistory lists the caller's recent payments
func (h *PaymentHandler) GetPaymentHistory(c *gin.Context) {
	accountID := middleware.MustGetIdentityID(c)

	var q payment.PaymentHistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid query parameters", err)
		return
	}

	txs, err := h.paymentService.PaymentHistory(c.Request.Context(), accountID, q.Limit)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "payment history retrieved", gin.H{
		"transactions": txs,
		"count":        len(txs),
	})
}

// Callback receives the gateway's terminal result. Replays are acknowledged
// with 200 so the gateway stops retrying.
func (h *PaymentHandler) Callback(c *gin.Context) {
	var req payment.CallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	outcome, err := h.paymentService.ApplyPaymentResult(c.Request.Context(), req.TransactionID, payment.GatewayResult{
		Status: req.Status,
		Reason: req.Reason,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "payment result applied", outcome)
}
