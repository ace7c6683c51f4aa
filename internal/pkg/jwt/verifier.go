// internal/pkg/jwt/verifier.go
package jwt

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrNotAccess    = errors.New("token is not an access token")
)

// clockSkew tolerated between the identity provider and this service.
const clockSkew = 30 * time.Second

// Verifier checks RS256 tokens from the identity provider. Tokens carrying
// a kid are checked against that key only; tokens without one against the
// primary key.
type Verifier struct {
	primary *rsa.PublicKey
	keys    map[string]*rsa.PublicKey
	parser  *jwt.Parser
}

func NewVerifier(pub *rsa.PublicKey, issuer, audience string) *Verifier {
	return &Verifier{
		primary: pub,
		keys:    map[string]*rsa.PublicKey{},
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithAudience(audience),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(clockSkew),
		),
	}
}

// AddKey registers an additional public key under kid, used during key rotation.
func (v *Verifier) AddKey(kid string, pub *rsa.PublicKey) {
	v.keys[kid] = pub
}

func (v *Verifier) keyFor(token *jwt.Token) (interface{}, error) {
	if kid, ok := token.Header["kid"].(string); ok && kid != "" {
		if key, found := v.keys[kid]; found {
			return key, nil
		}
	}
	if v.primary == nil {
		return nil, fmt.Errorf("no verification key configured")
	}
	return v.primary, nil
}

// Verify parses the token and checks signature, issuer, audience and expiry.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	if _, err := v.parser.ParseWithClaims(tokenString, claims, v.keyFor); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// VerifyAccessToken additionally requires an access-purpose token bound to an identity.
func (v *Verifier) VerifyAccessToken(tokenString string) (*Claims, error) {
	claims, err := v.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	switch {
	case claims.SessionPurpose != purposeAccess:
		return nil, ErrNotAccess
	case claims.IdentityID <= 0:
		return nil, fmt.Errorf("%w: no identity", ErrInvalidToken)
	}
	return claims, nil
}
