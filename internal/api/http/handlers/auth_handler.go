package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/worker-portal/internal/api/dto"
	"github.com/spec-kit/worker-portal/internal/auth"
	"github.com/spec-kit/worker-portal/internal/session"
	apperrors "github.com/spec-kit/worker-portal/pkg/util/errorutil"
)

// AuthHandler exposes login, logout and the session probe.
type AuthHandler struct {
	guard   *session.Guard
	cookies *auth.SessionCookie
	logger  *zap.Logger
}

// NewAuthHandler constructs handler.
func NewAuthHandler(guard *session.Guard, cookies *auth.SessionCookie, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{guard: guard, cookies: cookies, logger: logger}
}

// Login handles POST /login. Every successful login gets a fresh portal
// session id.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		return apperrors.NewValidationError("username and password required", nil)
	}

	sid := auth.NewSessionID()
	if _, err := h.guard.Login(c.UserContext(), sid, req.Username, req.Password); err != nil {
		return err
	}
	if err := h.cookies.Issue(c, sid); err != nil {
		h.guard.Expire(c.UserContext(), sid)
		return apperrors.NewInternalError(err)
	}
	return seeOther(c, session.DashboardPath)
}

// Logout handles POST /logout. It always ends on the login page.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	next := session.LoginPath
	if sid, ok := h.cookies.Read(c); ok {
		next = h.guard.Logout(c.UserContext(), sid)
	}
	h.cookies.Clear(c)
	return seeOther(c, next)
}

// Session handles GET /session and reports what a protected view would do.
func (h *AuthHandler) Session(c *fiber.Ctx) error {
	view := dto.SessionView{Decision: string(session.DecisionRedirectToLogin)}
	if sid, ok := h.cookies.Read(c); ok {
		current, loading := h.guard.Resolve(c.UserContext(), sid)
		view.Decision = string(session.RequireSession(current, loading))
		if current != nil {
			profile := dto.NewProfileView(current.Profile)
			view.Worker = &profile
		}
	}
	return c.JSON(fiber.Map{"data": view})
}

// seeOther redirects a browser and tells script clients where to go.
func seeOther(c *fiber.Ctx, path string) error {
	c.Location(path)
	return c.Status(fiber.StatusSeeOther).JSON(dto.RedirectResponse{Redirect: path})
}
