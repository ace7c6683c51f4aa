// internal/middleware/helpers.go
package middleware

import (
	"tainment-service/internal/pkg/jwt"

	"github.com/gin-gonic/gin"
)

// GetClaims returns the verified token claims set by Auth.
func GetClaims(c *gin.Context) (*jwt.Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*jwt.Claims)
	return claims, ok
}

func GetIdentityID(c *gin.Context) (int64, bool) {
	claims, ok := GetClaims(c)
	if !ok {
		return 0, false
	}
	return claims.IdentityID, true
}

// MustGetIdentityID panics outside an Auth-guarded route.
func MustGetIdentityID(c *gin.Context) int64 {
	id, ok := GetIdentityID(c)
	if !ok {
		panic("identity_id not found in context")
	}
	return id
}

// GetDisplayName returns the name claim, empty when absent.
func GetDisplayName(c *gin.Context) string {
	if claims, ok := GetClaims(c); ok {
		return claims.Name
	}
	return ""
}

func IsAdmin(c *gin.Context) bool {
	claims, ok := GetClaims(c)
	return ok && claims.IsAdmin()
}
