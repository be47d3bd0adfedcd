package auth

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/worker-portal/internal/domain"
)

const principalKey = "auth_principal"

// Principal is the worker behind a request.
type Principal struct {
	SessionID string
	Session   *domain.Session
}

// SessionCookie reads and writes the signed portal session cookie.
type SessionCookie struct {
	tokens *TokenManager
	name   string
	secure bool
}

// NewSessionCookie constructs the cookie helper.
func NewSessionCookie(tokens *TokenManager, name string, secure bool) *SessionCookie {
	if name == "" {
		name = "portal_session"
	}
	return &SessionCookie{tokens: tokens, name: name, secure: secure}
}

// Read returns the session id carried by the request cookie. A missing,
// forged or expired cookie yields false.
func (s *SessionCookie) Read(c *fiber.Ctx) (string, bool) {
	raw := c.Cookies(s.name)
	if raw == "" {
		return "", false
	}
	sid, err := s.tokens.ParseToken(raw)
	if err != nil {
		return "", false
	}
	return sid, true
}

// Issue binds sessionID to the browser.
func (s *SessionCookie) Issue(c *fiber.Ctx, sessionID string) error {
	value, expiresAt, err := s.tokens.GenerateToken(sessionID)
	if err != nil {
		return err
	}
	c.Cookie(&fiber.Cookie{
		Name:     s.name,
		Value:    value,
		Path:     "/",
		Expires:  expiresAt,
		HTTPOnly: true,
		Secure:   s.secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return nil
}

// Clear expires the cookie in the browser.
func (s *SessionCookie) Clear(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     s.name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HTTPOnly: true,
		Secure:   s.secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// SetPrincipal attaches the resolved worker to the request.
func SetPrincipal(c *fiber.Ctx, p *Principal) {
	c.Locals(principalKey, p)
}

// PrincipalFromContext retrieves the authenticated worker.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok && principal.Session != nil
}
