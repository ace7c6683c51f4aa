// internal/pkg/jwt/loader.go
package jwt

import (
	"fmt"
	"time"
)

type Config struct {
	PrivPath string        `env:"JWT_PRIVATE_KEY_PATH"`
	PubPath  string        `env:"JWT_PUBLIC_KEY_PATH" envDefault:"/app/secrets/jwt_public.pem"`
	Issuer   string        `env:"JWT_ISSUER" envDefault:"identity-service"`
	Audience string        `env:"JWT_AUDIENCE" envDefault:"tainment-users"`
	TTL      time.Duration `env:"JWT_TTL" envDefault:"720h"`
	KID      string        `env:"JWT_KID" envDefault:"tainment-key"`

	// Key still accepted while tokens signed before a rotation expire.
	PreviousPubPath string `env:"JWT_PREVIOUS_PUBLIC_KEY_PATH"`
	PreviousKID     string `env:"JWT_PREVIOUS_KID"`
}

type Manager struct {
	// Generator is nil unless a private key path is configured.
	Generator *Generator
	Verifier  *Verifier
}

func LoadAndBuild(cfg Config) (*Manager, error) {
	pub, err := LoadRSAPublicKeyFromPEM(cfg.PubPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load public key: %w", err)
	}
	verifier := NewVerifier(pub, cfg.Issuer, cfg.Audience)
	if cfg.KID != "" {
		verifier.AddKey(cfg.KID, pub)
	}

	if cfg.PreviousPubPath != "" {
		if cfg.PreviousKID == "" {
			return nil, fmt.Errorf("JWT_PREVIOUS_KID is required with JWT_PREVIOUS_PUBLIC_KEY_PATH")
		}
		prev, err := LoadRSAPublicKeyFromPEM(cfg.PreviousPubPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load previous public key: %w", err)
		}
		verifier.AddKey(cfg.PreviousKID, prev)
	}

	m := &Manager{Verifier: verifier}
	if cfg.PrivPath != "" {
		priv, err := LoadRSAPrivateKeyFromPEM(cfg.PrivPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load private key: %w", err)
		}
		m.Generator = NewGenerator(priv, cfg.Issuer, cfg.Audience, cfg.KID, cfg.TTL)
	}
	return m, nil
}
