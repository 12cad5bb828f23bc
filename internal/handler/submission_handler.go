package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/noah-isme/gema-portal/internal/dto"
	"github.com/noah-isme/gema-portal/internal/middleware"
	"github.com/noah-isme/gema-portal/internal/service"
	"github.com/noah-isme/gema-portal/internal/utils"
)

// SubmissionHandler manages submission intake, queries and downloads.
type SubmissionHandler struct {
	service service.SubmissionService
	logger  zerolog.Logger
}

// NewSubmissionHandler builds a submission handler instance.
func NewSubmissionHandler(service service.SubmissionService, logger zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		service: service,
		logger:  logger.With().Str("component", "submission_handler").Logger(),
	}
}

// Register attaches the routes to the provided API group. Intake is open to
// guests; every read requires an identified caller.
func (h *SubmissionHandler) Register(router fiber.Router) {
	authenticated := middleware.AuthOptions{Role: middleware.AuthRoleAny, RequireUser: true}

	submissions := router.Group("/submissions")
	submissions.Post("", h.create)
	submissions.Get("", middleware.WithAuth(h.list, middleware.AuthOptions{Role: middleware.AuthRoleStaff}))
	submissions.Get("/:id", middleware.WithAuth(h.get, authenticated))
	submissions.Get("/:id/file", middleware.WithAuth(h.file, authenticated))
	submissions.Get("/:id/report", middleware.WithAuth(h.report, authenticated))

	router.Get("/students/:id/submissions", middleware.WithAuth(h.listForStudent, authenticated))
}

func (h *SubmissionHandler) create(c *fiber.Ctx) error {
	var payload dto.SubmissionCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid form data")
	}

	file, err := c.FormFile("file")
	if err != nil {
		if !errors.Is(err, fasthttp.ErrMissingFile) && !errors.Is(err, fasthttp.ErrNoMultipartForm) {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid file upload")
		}
		file = nil
	}

	receipt, err := h.service.Submit(c.UserContext(), payload, file, actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to process submission")
	}

	message := "submission received"
	if len(receipt.Degraded) > 0 {
		message = "submission received; some analysis steps were unavailable"
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, message, receipt)
}

func (h *SubmissionHandler) list(c *fiber.Ctx) error {
	filter, err := parseSubmissionFilter(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	return h.respondList(c, filter)
}

func (h *SubmissionHandler) listForStudent(c *fiber.Ctx) error {
	studentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	filter, err := parseSubmissionFilter(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	filter.StudentID = &studentID
	return h.respondList(c, filter)
}

func (h *SubmissionHandler) respondList(c *fiber.Ctx, filter dto.SubmissionFilter) error {
	result, err := h.service.List(c.UserContext(), filter, actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to list submissions")
	}

	meta := fiber.Map{"page": result.Page, "page_size": result.PageSize, "total": result.Total}
	return utils.OK(c, result.Items, "submissions retrieved", meta)
}

func (h *SubmissionHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	submission, err := h.service.Get(c.UserContext(), id, actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to load submission")
	}
	return utils.SendSuccess(c, "submission retrieved", submission)
}

func (h *SubmissionHandler) file(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	download, err := h.service.OpenFile(c.UserContext(), id, actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to open submission file")
	}
	return sendDownload(c, download, false)
}

func (h *SubmissionHandler) report(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	download, err := h.service.OpenReport(c.UserContext(), id, actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to open report")
	}
	return sendDownload(c, download, true)
}

func parseSubmissionFilter(c *fiber.Ctx) (dto.SubmissionFilter, error) {
	var (
		filter dto.SubmissionFilter
		err    error
	)
	if filter.AssignmentID, err = parseQueryUint(c, "assignment_id"); err != nil {
		return filter, err
	}
	if filter.StudentID, err = parseQueryUint(c, "student_id"); err != nil {
		return filter, err
	}
	if filter.Late, err = parseQueryBool(c, "late"); err != nil {
		return filter, err
	}
	if filter.Flagged, err = parseQueryBool(c, "flagged"); err != nil {
		return filter, err
	}
	if filter.Page, err = parseQueryInt(c, "page"); err != nil {
		return filter, err
	}
	if filter.PageSize, err = parseQueryInt(c, "page_size"); err != nil {
		return filter, err
	}
	filter.RegNo = c.Query("reg_no")
	return filter, nil
}
