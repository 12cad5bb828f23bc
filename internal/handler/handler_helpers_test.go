package handler_test

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-portal/internal/capability"
	"github.com/noah-isme/gema-portal/internal/config"
	"github.com/noah-isme/gema-portal/internal/handler"
	"github.com/noah-isme/gema-portal/internal/intake"
	"github.com/noah-isme/gema-portal/internal/middleware"
	"github.com/noah-isme/gema-portal/internal/models"
	"github.com/noah-isme/gema-portal/internal/notify"
	"github.com/noah-isme/gema-portal/internal/pipeline"
	"github.com/noah-isme/gema-portal/internal/report"
	"github.com/noah-isme/gema-portal/internal/repository"
	"github.com/noah-isme/gema-portal/internal/router"
	"github.com/noah-isme/gema-portal/internal/service"
	"github.com/noah-isme/gema-portal/internal/storage"
	"github.com/noah-isme/gema-portal/pkg/plagiarism"
)

const (
	testSecret = "secret"
	// portalBodyLimit leaves room for the 4 KiB upload ceiling plus form fields.
	portalBodyLimit = 8 * 1024
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    json.RawMessage `json:"meta"`
	Details json.RawMessage `json:"details"`
}

type portalFixture struct {
	app        *fiber.App
	db         *gorm.DB
	assignment models.Assignment
	student    models.Student
}

// newPortalApp assembles the full HTTP stack over an in-memory database and
// filesystem. Uploads are limited to 4 KiB and request bodies to 8 KiB.
func newPortalApp(t *testing.T, available ...capability.Capability) *portalFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Teacher{}, &models.Student{}, &models.Assignment{}, &models.Submission{}))

	teacher := models.Teacher{Name: "Bu Sari", Email: "sari@school.test"}
	require.NoError(t, db.Create(&teacher).Error)
	assignment := models.Assignment{Title: "Ecosystem Report", DueDate: time.Now().Add(48 * time.Hour), TeacherID: teacher.ID}
	require.NoError(t, db.Create(&assignment).Error)
	student := models.Student{Name: "Dewi", RegNo: "2024-07", Email: "dewi@student.test"}
	require.NoError(t, db.Create(&student).Error)

	logger := zerolog.New(io.Discard)
	validate := validator.New(validator.WithRequiredStructEnabled())
	fs := afero.NewMemMapFs()
	content, err := storage.NewLocalStore(fs, "uploads", logger)
	require.NoError(t, err)
	reports := report.NewGenerator(fs, "reports", logger)
	require.NoError(t, reports.Ready())

	registry := capability.Static(available...)
	assignments := repository.NewAssignmentRepository(db)
	submissions := repository.NewSubmissionRepository(db)
	dispatcher := notify.NewDispatcher(notify.Config{}, service.NewTeacherDirectory(repository.NewTeacherRepository(db)), logger, notify.NewLogChannel(logger))

	orchestrator := pipeline.New(pipeline.Dependencies{
		Capabilities: registry,
		Validator:    intake.NewValidator(4096),
		Assignments:  assignments,
		Content:      content,
		Submissions:  submissions,
		Plagiarism:   pipeline.NewCorpusAnalyzer(plagiarism.NewChecker(fs, plagiarism.Config{ScratchDir: "scratch"}, logger), submissions),
		Reports:      reports,
		Notifier:     dispatcher,
	}, pipeline.Options{Logger: logger})

	analytics := service.NewAnalyticsService(submissions, nil, 0, 50, logger)
	submissionService := service.NewSubmissionService(orchestrator, submissions, repository.NewStudentRepository(db), content, reports, analytics, validate, 50, logger)
	gradingService := service.NewGradingService(submissions, dispatcher, registry, analytics, 0, validate, logger)
	previewService := service.NewPreviewService(submissions, content, registry, 4096, logger)

	app := fiber.New(fiber.Config{BodyLimit: portalBodyLimit, ErrorHandler: handler.ErrorHandler(logger)})
	router.Register(app, config.Config{AppName: "GEMA Test", AppEnv: "test"}, router.Dependencies{
		Capabilities:      registry,
		AssignmentHandler: handler.NewAssignmentHandler(service.NewAssignmentService(assignments, logger), logger),
		SubmissionHandler: handler.NewSubmissionHandler(submissionService, logger),
		GradingHandler:    handler.NewGradingHandler(gradingService, logger),
		PreviewHandler:    handler.NewPreviewHandler(previewService, logger),
		AnalyticsHandler:  handler.NewAnalyticsHandler(analytics, logger),
		JWTMiddleware:     middleware.OptionalJWT(testSecret),
	})

	return &portalFixture{app: app, db: db, assignment: assignment, student: student}
}

func bearer(t *testing.T, id uint, role string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  strconv.FormatUint(uint64(id), 10),
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + token
}

type formFile struct {
	name    string
	content []byte
}

func submissionForm(t *testing.T, fields map[string]string, file *formFile) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	if file != nil {
		part, err := writer.CreateFormFile("file", file.name)
		require.NoError(t, err)
		_, err = part.Write(file.content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func (f *portalFixture) submit(t *testing.T, auth string, fields map[string]string, file *formFile) *http.Response {
	t.Helper()
	if _, ok := fields["assignment_id"]; !ok {
		fields["assignment_id"] = strconv.FormatUint(uint64(f.assignment.ID), 10)
	}
	body, contentType := submissionForm(t, fields, file)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/submissions", body)
	req.Header.Set("Content-Type", contentType)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func (f *portalFixture) do(t *testing.T, method, path, auth string, payload interface{}) *http.Response {
	t.Helper()
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeEnvelope(t *testing.T, resp *http.Response, data interface{}) envelope {
	t.Helper()
	defer resp.Body.Close()
	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	if data != nil && len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

func idPath(format string, id uint) string {
	return "/api/v1/" + format + "/" + strconv.FormatUint(uint64(id), 10)
}
