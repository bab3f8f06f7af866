// Package auth provides the session sources the guards evaluate: signed
// bearer tokens for the HTTP API and a reactive in-memory session store.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tacklebox-studio/tacklebox/pkg/models"
)

// Issuer is the iss claim on every token.
const Issuer = "tacklebox"

// ErrInvalidToken wraps every token parse failure.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the token payload: the registered claims plus the user record.
// Subject carries the user ID.
type Claims struct {
	jwt.RegisteredClaims
	Role  string `json:"role"`
	Level *int   `json:"lvl,omitempty"`
}

// Record returns the user record embedded in the claims.
func (c *Claims) Record() models.UserRecord {
	return models.UserRecord{ID: c.Subject, Role: c.Role, Level: c.Level}
}

// IssueToken signs an HS256 token for the user valid for ttl.
func IssueToken(secret []byte, user models.User, ttl time.Duration) (string, error) {
	if user == nil {
		return "", fmt.Errorf("sign token: user is nil")
	}
	rec := models.RecordFromUser(user)
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    Issuer,
			Subject:   rec.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role:  rec.Role,
		Level: rec.Level,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseToken validates an HS256 token and returns its claims. Algorithm,
// expiry and issuer are always enforced.
func ParseToken(tokenStr string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(_ *jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(Issuer),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return claims, nil
}

// SessionFromToken resolves a bearer token into a session. An empty token
// is an anonymous session without error. A token that fails to parse, or
// names an unknown role, yields an anonymous session and the error.
func SessionFromToken(tokenStr string, secret []byte) (models.Session, error) {
	if tokenStr == "" {
		return models.AnonymousSession(), nil
	}
	claims, err := ParseToken(tokenStr, secret)
	if err != nil {
		return models.AnonymousSession(), err
	}
	user, err := claims.Record().ToUser()
	if err != nil {
		return models.AnonymousSession(), fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return models.AuthenticatedSession(user), nil
}
