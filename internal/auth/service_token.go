// Package auth mints the short-lived service tokens used to authenticate
// against the session management API.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ServiceTokenExpiry is how long a minted service token is valid. Tokens
// are minted per call, so a short expiry costs nothing.
const ServiceTokenExpiry = 5 * time.Minute

// ServiceTokenClaims are the claims carried by a service token.
type ServiceTokenClaims struct {
	jwt.RegisteredClaims
}

// ServiceTokenIssuer signs service-to-service tokens with HS256.
type ServiceTokenIssuer struct {
	signingKey []byte
	issuer     string
	audience   string
}

// ServiceTokenConfig holds configuration for the issuer.
type ServiceTokenConfig struct {
	// SigningKey is the shared secret used to sign tokens.
	SigningKey string

	// Issuer is the issuer claim (e.g. "oblivio-worker").
	Issuer string

	// Audience is the audience claim (e.g. "session-api").
	Audience string
}

// NewServiceTokenIssuer creates a new issuer.
func NewServiceTokenIssuer(cfg ServiceTokenConfig) *ServiceTokenIssuer {
	return &ServiceTokenIssuer{
		signingKey: []byte(cfg.SigningKey),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
	}
}

// Mint creates a signed token with the given subject.
func (s *ServiceTokenIssuer) Mint(subject string) (string, error) {
	now := time.Now()
	claims := ServiceTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ServiceTokenExpiry)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign service token: %w", err)
	}
	return signed, nil
}
