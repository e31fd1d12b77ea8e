// Package auth verifies the credential a client presents in the socket
// handshake and mints tokens for local testing.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned when a credential cannot be verified.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the JWT payload accepted by the relay.
type Claims struct {
	UserID   string `json:"user"`
	UserName string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Identity is who a verified credential belongs to.
type Identity struct {
	UserID   string
	UserName string
}

// Verifier turns a credential into an Identity.
type Verifier interface {
	Verify(token string) (Identity, error)
}

// NewVerifier returns an HS256 verifier for secret. An empty secret yields a
// development verifier that accepts any non-empty token as the user ID.
func NewVerifier(secret string) Verifier {
	if secret == "" {
		return opaqueVerifier{}
	}
	return &jwtVerifier{key: []byte(secret)}
}

type opaqueVerifier struct{}

func (opaqueVerifier) Verify(token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: token}, nil
}

type jwtVerifier struct {
	key []byte
}

func (v *jwtVerifier) Verify(token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.key, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}
	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return Identity{}, fmt.Errorf("%w: no user", ErrInvalidToken)
	}
	return Identity{UserID: userID, UserName: claims.UserName}, nil
}

// Mint signs a token for userID valid for ttl. A zero ttl never expires.
func Mint(secret, userID, userName string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("mint: empty secret")
	}
	now := time.Now()
	claims := Claims{
		UserID:   userID,
		UserName: userName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "chatsocket",
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
