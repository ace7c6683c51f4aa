// internal/pkg/jwt/claims.go
package jwt

import (
	"slices"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
	// RoleGateway marks the payment gateway's service token.
	RoleGateway = "gateway"
)

const purposeAccess = "access"

// Claims carried by access tokens. IdentityID is the account id.
type Claims struct {
	IdentityID     int64    `json:"identity_id"`
	Name           string   `json:"name,omitempty"`
	Roles          []string `json:"roles,omitempty"`
	SessionPurpose string   `json:"session_purpose"`
	jwt.RegisteredClaims
}

func (c *Claims) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

// IsAdmin is true for admins and super admins.
func (c *Claims) IsAdmin() bool {
	return c.HasRole(RoleAdmin) || c.HasRole(RoleSuperAdmin)
}
