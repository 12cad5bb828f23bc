package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-portal/internal/middleware"
	"github.com/noah-isme/gema-portal/internal/service"
	"github.com/noah-isme/gema-portal/internal/utils"
)

// PreviewHandler serves inline previews of stored submissions.
type PreviewHandler struct {
	service service.PreviewService
	logger  zerolog.Logger
}

// NewPreviewHandler constructs the handler.
func NewPreviewHandler(service service.PreviewService, logger zerolog.Logger) *PreviewHandler {
	return &PreviewHandler{
		service: service,
		logger:  logger.With().Str("component", "preview_handler").Logger(),
	}
}

// Register attaches preview routes.
func (h *PreviewHandler) Register(router fiber.Router) {
	authenticated := middleware.AuthOptions{Role: middleware.AuthRoleAny, RequireUser: true}
	router.Get("/submissions/:id/preview", middleware.WithAuth(h.preview, authenticated))
	router.Get("/submissions/:id/thumbnail", middleware.WithAuth(h.thumbnail, authenticated))
}

func (h *PreviewHandler) preview(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	preview, err := h.service.Preview(c.UserContext(), id, actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to render preview")
	}
	return utils.SendSuccess(c, "preview rendered", preview)
}

func (h *PreviewHandler) thumbnail(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	width, err := parseQueryInt(c, "width")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	thumb, err := h.service.Thumbnail(c.UserContext(), id, actorFromContext(c), width)
	if err != nil {
		return respondError(c, h.logger, err, "failed to render thumbnail")
	}
	return sendDownload(c, thumb, true)
}
