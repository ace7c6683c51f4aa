// internal/pkg/jwt/generator.go
package jwt

import (
	"crypto/rsa"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
)

// Generator signs access tokens. Production tokens come from the identity
// provider; the generator serves local development and tests.
type Generator struct {
	priv     *rsa.PrivateKey
	issuer   string
	audience string
	kid      string
	ttl      time.Duration
}

func NewGenerator(priv *rsa.PrivateKey, issuer, audience, kid string, ttl time.Duration) *Generator {
	return &Generator{priv: priv, issuer: issuer, audience: audience, kid: kid, ttl: ttl}
}

// GenerateAccessToken returns the signed token and its jti.
func (g *Generator) GenerateAccessToken(identityID int64, name string, roles []string) (string, string, error) {
	if g.priv == nil {
		return "", "", errors.New("jwt generator has no private key")
	}

	now := time.Now()
	jti := ulid.Make().String()
	claims := &Claims{
		IdentityID:     identityID,
		Name:           name,
		Roles:          roles,
		SessionPurpose: purposeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    g.issuer,
			Subject:   strconv.FormatInt(identityID, 10),
			Audience:  jwt.ClaimStrings{g.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(g.ttl)),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if g.kid != "" {
		tok.Header["kid"] = g.kid
	}
	signed, err := tok.SignedString(g.priv)
	if err != nil {
		return "", "", err
	}
	return signed, jti, nil
}
