package http

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/worker-portal/internal/auth"
	"github.com/spec-kit/worker-portal/internal/session"
	apperrors "github.com/spec-kit/worker-portal/pkg/util/errorutil"
)

// SessionMiddleware guards the protected views.
type SessionMiddleware struct {
	guard   *session.Guard
	cookies *auth.SessionCookie
	logger  *zap.Logger
}

// NewSessionMiddleware constructs middleware.
func NewSessionMiddleware(guard *session.Guard, cookies *auth.SessionCookie, logger *zap.Logger) *SessionMiddleware {
	return &SessionMiddleware{guard: guard, cookies: cookies, logger: logger}
}

// Handle resolves the browser's session and applies the guard's decision.
// A session the complaint API rejects while the view is being built ends in
// a redirect to the login page.
func (m *SessionMiddleware) Handle(c *fiber.Ctx) error {
	sid, hasCookie := m.cookies.Read(c)

	decision := session.DecisionRedirectToLogin
	var principal *auth.Principal
	if hasCookie {
		current, loading := m.guard.Resolve(c.UserContext(), sid)
		decision = session.RequireSession(current, loading)
		principal = &auth.Principal{SessionID: sid, Session: current}
	}

	switch decision {
	case session.DecisionWait:
		c.Set(fiber.HeaderRetryAfter, "1")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"decision": decision})
	case session.DecisionRedirectToLogin:
		return m.toLogin(c, hasCookie)
	}

	auth.SetPrincipal(c, principal)
	err := c.Next()
	if apperrors.IsUnauthorized(err) {
		m.logger.Info("session rejected upstream", zap.String("session_id", sid), zap.String("path", c.Path()))
		return m.toLogin(c, true)
	}
	return err
}

func (m *SessionMiddleware) toLogin(c *fiber.Ctx, clearCookie bool) error {
	if clearCookie {
		m.cookies.Clear(c)
	}
	return c.Redirect(session.LoginPath, fiber.StatusSeeOther)
}
