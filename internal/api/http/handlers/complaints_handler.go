package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/worker-portal/internal/api/dto"
	"github.com/spec-kit/worker-portal/internal/apiclient"
	"github.com/spec-kit/worker-portal/internal/auth"
	"github.com/spec-kit/worker-portal/internal/service"
	"github.com/spec-kit/worker-portal/internal/sla"
	apperrors "github.com/spec-kit/worker-portal/pkg/util/errorutil"
)

const completionImageField = "completion_image"

// ComplaintsHandler serves the complaint lists, the detail page and the
// completion form.
type ComplaintsHandler struct {
	service *service.ComplaintService
	api     WorkerAPIFactory
}

// NewComplaintsHandler constructs handler.
func NewComplaintsHandler(complaintService *service.ComplaintService, api WorkerAPIFactory) *ComplaintsHandler {
	return &ComplaintsHandler{service: complaintService, api: api}
}

// List GET /complaints/:bucket.
func (h *ComplaintsHandler) List(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("session required")
	}
	bucket, err := sla.ParseBucket(c.Params("bucket"))
	if err != nil {
		return apperrors.NewNotFound("complaint list", map[string]any{"bucket": c.Params("bucket")})
	}
	view, err := h.service.List(c.UserContext(), workerAPI(h.api, principal), bucket)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": view})
}

// Detail GET /complaints/detail/:id.
func (h *ComplaintsHandler) Detail(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("session required")
	}
	view, err := h.service.Detail(c.UserContext(), workerAPI(h.api, principal), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": view})
}

// Complete POST /complaints/detail/:id/complete. Accepts a multipart form
// with completion_note and an optional completion_image, or a JSON body
// with the note only.
func (h *ComplaintsHandler) Complete(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("session required")
	}
	var req dto.CompleteRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	in := service.CompleteInput{
		SessionID: principal.SessionID,
		WorkerID:  principal.Session.Profile.ID.String(),
		Note:      req.CompletionNote,
	}

	if isMultipart(c) {
		if fh, err := c.FormFile(completionImageField); err == nil {
			f, err := fh.Open()
			if err != nil {
				return apperrors.NewValidationError("unreadable completion image", nil)
			}
			defer f.Close()
			in.Image = &apiclient.Upload{
				Filename:    fh.Filename,
				ContentType: fh.Header.Get(fiber.HeaderContentType),
				Data:        f,
			}
		}
	}

	view, err := h.service.Complete(c.UserContext(), workerAPI(h.api, principal), c.Params("id"), in)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": view})
}

func isMultipart(c *fiber.Ctx) bool {
	return strings.HasPrefix(string(c.Request().Header.ContentType()), fiber.MIMEMultipartForm)
}
