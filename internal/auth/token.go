package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const cookieIssuer = "worker-portal"

// TokenManager signs and validates the portal session cookie. The cookie
// only carries the portal session id; the upstream token stays server side.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenManager builds a new manager.
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl}
}

// Claims describes the cookie payload.
type Claims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// NewSessionID returns a fresh random portal session id.
func NewSessionID() string {
	return uuid.NewString()
}

// GenerateToken signs a cookie value for sessionID.
func (tm *TokenManager) GenerateToken(sessionID string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(tm.ttl)
	claims := &Claims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cookieIssuer,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// ParseToken validates a cookie value and returns the session id it carries.
func (tm *TokenManager) ParseToken(tokenStr string) (string, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secret, nil
	}, jwt.WithIssuer(cookieIssuer))
	if err != nil {
		return "", err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.SessionID == "" {
		return "", errors.New("invalid session claims")
	}
	return claims.SessionID, nil
}

// TTL reports the cookie lifetime.
func (tm *TokenManager) TTL() time.Duration {
	return tm.ttl
}
