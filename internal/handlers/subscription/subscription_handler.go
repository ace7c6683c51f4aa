// internal/handlers/subscription/subscription_handler.go
package subscription

import (
	"net/http"

	"tainment-service/internal/domain/subscription"
	"tainment-service/internal/middleware"
	xerrors "tainment-service/internal/pkg/errors"
	"tainment-service/internal/pkg/response"
	service "tainment-service/internal/service/subscription"

	"github.com/gin-gonic/gin"
)

type SubscriptionHandler struct {
	subscriptionService *service.SubscriptionService
}

func NewSubscriptionHandler(subscriptionService *service.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptionService: subscriptionService,
	}
}

// ListTiers returns the tier catalog
func (h *SubscriptionHandler) ListTiers(c *gin.Context) {
	response.Success(c, http.StatusOK, "tiers retrieved", h.subscriptionService.Tiers())
}

// GetMySubscription returns the caller's subscription, creating the account on first use
func (h *SubscriptionHandler) GetMySubscription(c *gin.Context) {
	accountID := middleware.MustGetIdentityID(c)

	view, err := h.subscriptionService.GetStatus(c.Request.Context(), accountID, middleware.GetDisplayName(c))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "subscription retrieved", view)
}

// GetMyHistory returns the caller's recent transitions
func (h *SubscriptionHandler) GetMyHistory(c *gin.Context) {
	accountID := middleware.MustGetIdentityID(c)

	var q subscription.HistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid query parameters", err)
		return
	}

	history, err := h.subscriptionService.History(c.Request.Context(), accountID, q.Limit)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "history retrieved", gin.H{
		"history": history,
		"count":   len(history),
	})
}

// CheckAccess reports whether the caller's effective tier covers ?tier=
func (h *SubscriptionHandler) CheckAccess(c *gin.Context) {
	accountID := middleware.MustGetIdentityID(c)

	tier, ok := parseTierQuery(c)
	if !ok {
		return
	}

	result, err := h.subscriptionService.CheckAccess(c.Request.Context(), accountID, tier)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "access checked", result)
}

// SimulateUpgrade previews price and feature changes for ?tier=
func (h *SubscriptionHandler) SimulateUpgrade(c *gin.Context) {
	accountID := middleware.MustGetIdentityID(c)

	tier, ok := parseTierQuery(c)
	if !ok {
		return
	}

	sim, err := h.subscriptionService.SimulateUpgrade(c.Request.Context(), accountID, tier)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "upgrade simulated", sim)
}

func parseTierQuery(c *gin.Context) (subscription.Tier, bool) {
	tier, ok := subscription.ParseTier(c.Query("tier"))
	if !ok {
		response.FromError(c, xerrors.Validation("unknown tier; choose Basic, Premium or Pro", "tier", c.Query("tier")))
		return "", false
	}
	return tier, true
}
