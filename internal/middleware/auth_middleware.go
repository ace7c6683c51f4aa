// internal/middleware/auth_middleware.go
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"tainment-service/internal/pkg/jwt"
	"tainment-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

const claimsKey = "auth_claims"

// TokenVerifier validates access tokens issued by the identity provider.
type TokenVerifier interface {
	VerifyAccessToken(token string) (*jwt.Claims, error)
}

type AuthMiddleware struct {
	verifier TokenVerifier
}

func NewAuthMiddleware(verifier TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

// Auth rejects requests without a valid access token and stores its claims
// on the context.
func (m *AuthMiddleware) Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			response.Error(c, http.StatusUnauthorized, "missing authorization token", nil)
			return
		}

		claims, err := m.verifier.VerifyAccessToken(token)
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			response.Error(c, http.StatusUnauthorized, "token expired, please sign in again", nil)
			return
		case err != nil:
			response.Error(c, http.StatusUnauthorized, "invalid token", nil)
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// RequireRole passes when the caller holds any of roles. It must run after Auth.
func (m *AuthMiddleware) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := GetClaims(c)
		if !ok {
			response.Error(c, http.StatusForbidden, "authentication required", nil)
			return
		}
		for _, role := range roles {
			if claims.HasRole(role) {
				c.Next()
				return
			}
		}
		response.Error(c, http.StatusForbidden, "insufficient permissions", nil, gin.H{
			"required_roles": roles,
		})
	}
}

// AdminOnly is Auth plus an admin or super admin role.
func (m *AuthMiddleware) AdminOnly() []gin.HandlerFunc {
	return []gin.HandlerFunc{m.Auth(), m.RequireRole(jwt.RoleAdmin, jwt.RoleSuperAdmin)}
}

// GatewayOnly guards the payment result callback.
func (m *AuthMiddleware) GatewayOnly() []gin.HandlerFunc {
	return []gin.HandlerFunc{m.Auth(), m.RequireRole(jwt.RoleGateway)}
}

// extractToken reads a Bearer header, falling back to ?token= since
// websocket clients cannot set headers.
func extractToken(c *gin.Context) string {
	if scheme, token, ok := strings.Cut(c.GetHeader("Authorization"), " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return c.Query("token")
}
