package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/worker-portal/internal/auth"
	"github.com/spec-kit/worker-portal/internal/service"
	apperrors "github.com/spec-kit/worker-portal/pkg/util/errorutil"
)

// WorkerAPIFactory binds the complaint API to one worker session.
type WorkerAPIFactory func(sessionID, token string) service.WorkerAPI

// DashboardHandler serves the dashboard view.
type DashboardHandler struct {
	service *service.DashboardService
	api     WorkerAPIFactory
}

// NewDashboardHandler constructs handler.
func NewDashboardHandler(dashboardService *service.DashboardService, api WorkerAPIFactory) *DashboardHandler {
	return &DashboardHandler{service: dashboardService, api: api}
}

// Overview GET /dashboard.
func (h *DashboardHandler) Overview(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("session required")
	}
	view, err := h.service.Overview(c.UserContext(), workerAPI(h.api, principal), principal.Session.Profile)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": view})
}

func workerAPI(factory WorkerAPIFactory, p *auth.Principal) service.WorkerAPI {
	return factory(p.SessionID, p.Session.Token)
}
