package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tainment-service/internal/pkg/response"
)

// APILimiter counts requests per identity and endpoint.
type APILimiter interface {
	CheckAPIRateLimit(ctx context.Context, identityID int64, endpoint string, maxRequests int64, window time.Duration) (bool, error)
}

// RateLimit caps authenticated requests per identity per route. It must run
// after Auth. A limiter failure lets the request through.
func RateLimit(limiter APILimiter, maxRequests int64, window time.Duration, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		identityID, ok := GetIdentityID(c)
		if !ok || maxRequests <= 0 {
			c.Next()
			return
		}

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = c.Request.URL.Path
		}

		allowed, err := limiter.CheckAPIRateLimit(c.Request.Context(), identityID, c.Request.Method+" "+endpoint, maxRequests, window)
		if err != nil {
			logger.Warn("rate limit check failed", zap.Int64("identity_id", identityID), zap.Error(err))
			c.Next()
			return
		}
		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(window.Seconds())))
			response.Error(c, http.StatusTooManyRequests, "too many requests, please slow down", nil)
			return
		}
		c.Next()
	}
}
