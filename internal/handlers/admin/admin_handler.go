// internal/handlers/admin/admin_handler.go
package admin

import (
	"context"
	"net/http"
	"strconv"

	"tainment-service/internal/domain/subscription"
	"tainment-service/internal/middleware"
	xerrors "tainment-service/internal/pkg/errors"
	"tainment-service/internal/pkg/response"
	"tainment-service/internal/service/scanner"
	service "tainment-service/internal/service/subscription"

	"github.com/gin-gonic/gin"
)

// SweepRunner triggers one scanner sweep on demand.
type SweepRunner interface {
	RunSweep(ctx context.Context, sweep scanner.Sweep) (*scanner.Report, error)
}

type AdminHandler struct {
	subscriptionService *service.SubscriptionService
	sweeps              SweepRunner
}

func NewAdminHandler(subscriptionService *service.SubscriptionService, sweeps SweepRunner) *AdminHandler {
	return &AdminHandler{
		subscriptionService: subscriptionService,
		sweeps:              sweeps,
	}
}

type subscribersQuery struct {
	Tier   string `form:"tier"`
	Active *bool  `form:"active"`
	Limit  int    `form:"limit"`
}

type sweepRequest struct {
	Sweep string `json:"sweep" binding:"required"`
}

// ListSubscribers lists subscription records filtered by tier and active flag
func (h *AdminHandler) ListSubscribers(c *gin.Context) {
	var q subscribersQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid query parameters", err)
		return
	}

	filters := &subscription.SubscriberFilters{ActiveOnly: true, Limit: q.Limit}
	if q.Active != nil {
		filters.ActiveOnly = *q.Active
	}
	if q.Tier != "" {
		tier, ok := subscription.ParseTier(q.Tier)
		if !ok {
			response.FromError(c, xerrors.Validation("unknown tier filter", "tier", q.Tier))
			return
		}
		filters.Tier = &tier
	}

	subs, err := h.subscriptionService.ListSubscribers(c.Request.Context(), filters)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "subscribers retrieved", gin.H{
		"subscribers": subs,
		"count":       len(subs),
	})
}

// GetAccountSubscription shows an account's subscription with its recent history
func (h *AdminHandler) GetAccountSubscription(c *gin.Context) {
	accountID, ok := parseAccountID(c)
	if !ok {
		return
	}

	view, err := h.subscriptionService.GetStatus(c.Request.Context(), accountID, "")
	if err != nil {
		response.FromError(c, err)
		return
	}
	history, err := h.subscriptionService.History(c.Request.Context(), accountID, 0)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "account subscription retrieved", gin.H{
		"status":  view,
		"history": history,
	})
}

// GetAccountHistory lists an account's transitions
func (h *AdminHandler) GetAccountHistory(c *gin.Context) {
	accountID, ok := parseAccountID(c)
	if !ok {
		return
	}

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

// UpgradeAccount sets any tier for any duration
func (h *AdminHandler) UpgradeAccount(c *gin.Context) {
	adminID := middleware.MustGetIdentityID(c)
	accountID, ok := parseAccountID(c)
	if !ok {
		return
	}

	var req subscription.AdminUpgradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	sub, err := h.subscriptionService.AdminUpgrade(c.Request.Context(), adminID, accountID, &req)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "subscription updated", sub)
}

// ExtendAccount adds days to an account's paid subscription
func (h *AdminHandler) ExtendAccount(c *gin.Context) {
	adminID := middleware.MustGetIdentityID(c)
	accountID, ok := parseAccountID(c)
	if !ok {
		return
	}

	var req subscription.AdminExtendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	sub, err := h.subscriptionService.AdminExtend(c.Request.Context(), adminID, accountID, &req)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "subscription extended", sub)
}

// GetMetrics reports subscription activity over ?days=
func (h *AdminHandler) GetMetrics(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", "30"))
	if err != nil {
		response.FromError(c, xerrors.Validation("days must be a number", "days", c.Query("days")))
		return
	}

	m, err := h.subscriptionService.GetMetrics(c.Request.Context(), days)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "metrics retrieved", m)
}

// RunSweep triggers a notice or expiry sweep now
func (h *AdminHandler) RunSweep(c *gin.Context) {
	var req sweepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}
	sweep, err := scanner.ParseSweep(req.Sweep)
	if err != nil {
		response.FromError(c, err)
		return
	}

	report, err := h.sweeps.RunSweep(c.Request.Context(), sweep)
	if err != nil {
		response.FromError(c, err)
		return
	}

	message := "sweep completed"
	if report.Skipped {
		message = "sweep already running"
	}
	response.Success(c, http.StatusOK, message, report)
}

func parseAccountID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, http.StatusBadRequest, "invalid account ID", err)
		return 0, false
	}
	return id, true
}
