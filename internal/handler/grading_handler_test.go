package handler_test

import (
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-portal/internal/capability"
	"github.com/noah-isme/gema-portal/internal/dto"
	"github.com/noah-isme/gema-portal/internal/models"
)

func (f *portalFixture) textSubmission(t *testing.T, regNo, text string) uint {
	t.Helper()
	resp := f.submit(t, "", map[string]string{"student_name": "Writer " + regNo, "reg_no": regNo, "text_data": text}, nil)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var receipt dto.SubmissionReceipt
	decodeEnvelope(t, resp, &receipt)
	return receipt.Submission.ID
}

func TestGradingHandlerGrade(t *testing.T) {
	f := newPortalApp(t, capability.Notification)
	id := f.textSubmission(t, "A-1", "Decomposers return nutrients to the soil.")
	teacher := bearer(t, 1, "teacher")

	resp := f.do(t, http.MethodPut, idPath("submissions", id)+"/grade", teacher, map[string]interface{}{"grade": "A", "feedback": "Clear and concise"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var graded dto.SubmissionResponse
	decodeEnvelope(t, resp, &graded)
	require.Equal(t, "A", *graded.Grade)
	require.Equal(t, "Clear and concise", *graded.Feedback)

	var stored models.Submission
	require.NoError(t, f.db.First(&stored, id).Error)
	require.Equal(t, "A", *stored.Grade)

	resp = f.do(t, http.MethodPut, idPath("submissions", id)+"/grade", teacher, map[string]interface{}{"grade": "ABCDEFGHIJKL"})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	env := decodeEnvelope(t, resp, nil)
	require.Contains(t, string(env.Details), "Grade")

	resp = f.do(t, http.MethodPut, idPath("submissions", id+10)+"/grade", teacher, map[string]interface{}{"grade": "B"})
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp = f.do(t, http.MethodPut, idPath("submissions", id)+"/grade", bearer(t, f.student.ID, "student"), map[string]interface{}{"grade": "A+"})
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp = f.do(t, http.MethodPut, idPath("submissions", id)+"/grade", "", map[string]interface{}{"grade": "A+"})
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestGradingHandlerBulkGrade(t *testing.T) {
	f := newPortalApp(t)
	first := f.textSubmission(t, "B-1", "Energy flows through trophic levels.")
	second := f.textSubmission(t, "B-2", "Only ten percent of energy moves upward.")

	resp := f.do(t, http.MethodPost, "/api/v1/submissions/bulk-grade", bearer(t, 9, "admin"), map[string]interface{}{
		"submission_ids": []uint{first, second, 404},
		"grade":          "B",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var result dto.BulkGradeResponse
	decodeEnvelope(t, resp, &result)
	require.Equal(t, int64(2), result.Updated)
	require.Equal(t, []uint{404}, result.Missing)

	resp = f.do(t, http.MethodPost, "/api/v1/submissions/bulk-grade", bearer(t, 9, "admin"), map[string]interface{}{
		"submission_ids": []uint{},
		"grade":          "B",
	})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestAnalyticsHandlerOverview(t *testing.T) {
	f := newPortalApp(t)
	f.textSubmission(t, "C-1", "Biomes differ by climate.")
	f.textSubmission(t, "C-2", "Tundra has permafrost.")

	resp := f.do(t, http.MethodGet, "/api/v1/analytics/overview", bearer(t, 1, "teacher"), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var overview dto.AnalyticsOverviewResponse
	decodeEnvelope(t, resp, &overview)
	require.Equal(t, int64(1), overview.TotalAssignments)
	require.Equal(t, int64(2), overview.TotalSubmissions)
	require.Equal(t, 100.0, overview.OnTimeRate)

	resp = f.do(t, http.MethodGet, "/api/v1/analytics/overview", bearer(t, f.student.ID, "student"), nil)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}
