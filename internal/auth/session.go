// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Roles carried in a session.
const (
	RoleHost   = "host"
	RolePlayer = "player"
)

// Session identifies the bearer of a host or player id inside one lobby.
type Session struct {
	Subject string // host or player id
	Code    string
	Role    string
}

type sessionClaims struct {
	Code string `json:"code"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies EdDSA session tokens.
type Issuer struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	ttl        time.Duration
	now        func() time.Time
}

// NewIssuer generates a fresh ed25519 key pair. Tokens signed by a previous
// process are rejected after a restart; clients then fall back to sending
// their ids in the request body. ttl <= 0 means tokens never expire.
func NewIssuer(ttl time.Duration) (*Issuer, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	return &Issuer{privateKey: priv, publicKey: pub, ttl: ttl, now: time.Now}, nil
}

// NewIssuerFromKey builds an Issuer around an existing key so that several
// instances can verify each other's tokens.
func NewIssuerFromKey(priv ed25519.PrivateKey, ttl time.Duration) *Issuer {
	return &Issuer{
		privateKey: priv,
		publicKey:  priv.Public().(ed25519.PublicKey),
		ttl:        ttl,
		now:        time.Now,
	}
}

// Issue signs a token for s.
func (i *Issuer) Issue(s Session) (string, error) {
	now := i.now()
	claims := sessionClaims{
		Code: s.Code,
		Role: s.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  s.Subject,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if i.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(i.ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(i.privateKey)
}

// Parse verifies tokenString and returns its session.
func (i *Issuer) Parse(tokenString string) (Session, error) {
	var claims sessionClaims
	t, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.publicKey, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		return Session{}, fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return Session{}, errors.New("invalid token")
	}
	if claims.Subject == "" || claims.Code == "" {
		return Session{}, errors.New("incomplete session claims")
	}
	if claims.Role != RoleHost && claims.Role != RolePlayer {
		return Session{}, fmt.Errorf("unknown session role %q", claims.Role)
	}
	return Session{Subject: claims.Subject, Code: claims.Code, Role: claims.Role}, nil
}
