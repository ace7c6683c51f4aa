// internal/app/router.go
package app

import (
	"net/http"

	adminHandler "tainment-service/internal/handlers/admin"
	notifyHandler "tainment-service/internal/handlers/notification"
	paymentHandler "tainment-service/internal/handlers/payment"
	subscriptionHandler "tainment-service/internal/handlers/subscription"
	wsHandler "tainment-service/internal/handlers/websocket"
	"tainment-service/internal/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handlers struct {
	SubscriptionHandler *subscriptionHandler.SubscriptionHandler
	PaymentHandler      *paymentHandler.PaymentHandler
	AdminHandler        *adminHandler.AdminHandler
	NotifHandler        *notifyHandler.NotificationHandler
	WSHandler           *wsHandler.WebSocketHandler
	AuthMiddleware      *middleware.AuthMiddleware
	RateLimit           gin.HandlerFunc
	Metrics             http.Handler
}

func SetupRouter(r *gin.Engine, logger *zap.Logger, h *Handlers) {
	api := r.Group("/api/v1")

	// ==================== Health Check ====================
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "version": "1.0.0"})
	})

	// ==================== Metrics ====================
	if h.Metrics != nil {
		r.GET("/metrics", gin.WrapH(h.Metrics))
	}

	// ==================== WebSocket ====================
	if h.WSHandler != nil {
		r.GET("/ws", h.WSHandler.HandleConnection)
	}

	// ==================== Public Routes ====================
	api.GET("/tiers", h.SubscriptionHandler.ListTiers)

	// ==================== Subscriber Routes ====================
	protected := api.Group("")
	protected.Use(h.AuthMiddleware.Auth())
	if h.RateLimit != nil {
		protected.Use(h.RateLimit)
	}
	{
		subs := protected.Group("/subscriptions")
		{
			subs.GET("/me", h.SubscriptionHandler.GetMySubscription)
			subs.GET("/me/history", h.SubscriptionHandler.GetMyHistory)
			subs.GET("/access", h.SubscriptionHandler.CheckAccess)
			subs.GET("/simulate", h.SubscriptionHandler.SimulateUpgrade)
		}

		checkout := protected.Group("/checkout")
		{
			checkout.POST("", h.PaymentHandler.CreateCheckout)
			checkout.POST("/renew", h.PaymentHandler.RenewCheckout)
			checkout.GET("/:transaction_id", h.PaymentHandler.GetCheckout)
			checkout.POST("/:transaction_id/confirm", h.PaymentHandler.ConfirmCheckout)
			checkout.DELETE("/:transaction_id", h.PaymentHandler.CancelCheckout)
		}

		protected.GET("/payments/history", h.PaymentHandler.GetPaymentHistory)

		notifications := protected.Group("/notifications")
		{
			notifications.GET("", h.NotifHandler.GetNotifications)
			notifications.GET("/unread-count", h.NotifHandler.GetUnreadCount)
			notifications.PUT("/:id/read", h.NotifHandler.MarkAsRead)
		}
	}

	// ==================== Gateway Routes ====================
	gateway := api.Group("/payments")
	gateway.Use(h.AuthMiddleware.GatewayOnly()...)
	{
		gateway.POST("/callback", h.PaymentHandler.Callback)
	}

	// ==================== Admin Routes ====================
	admin := api.Group("/admin")
	admin.Use(h.AuthMiddleware.AdminOnly()...)
	{
		admin.GET("/subscribers", h.AdminHandler.ListSubscribers)
		admin.GET("/accounts/:id/subscription", h.AdminHandler.GetAccountSubscription)
		admin.GET("/accounts/:id/history", h.AdminHandler.GetAccountHistory)
		admin.POST("/accounts/:id/upgrade", h.AdminHandler.UpgradeAccount)
		admin.POST("/accounts/:id/extend", h.AdminHandler.ExtendAccount)
		admin.GET("/reports/metrics", h.AdminHandler.GetMetrics)
		admin.POST("/scanner/run", h.AdminHandler.RunSweep)
		if h.WSHandler != nil {
			admin.GET("/ws/stats", h.WSHandler.GetStats)
		}
	}

	logger.Info("routes registered", zap.Int("count", len(r.Routes())))
}
