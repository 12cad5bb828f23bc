package handler_test

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-portal/internal/capability"
	"github.com/noah-isme/gema-portal/internal/dto"
)

func TestSubmissionHandlerGuestTextSubmission(t *testing.T) {
	f := newPortalApp(t, capability.Plagiarism, capability.Reporting)

	resp := f.submit(t, "", map[string]string{
		"student_name": "Guest Writer",
		"reg_no":       "G-100",
		"text_data":    "Producers convert sunlight into chemical energy.",
	}, nil)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var receipt dto.SubmissionReceipt
	env := decodeEnvelope(t, resp, &receipt)
	require.True(t, env.Success)
	require.Equal(t, "submission received", env.Message)
	require.NotZero(t, receipt.Submission.ID)
	require.Nil(t, receipt.Submission.StudentID)
	require.False(t, receipt.Submission.IsLate)
	require.True(t, receipt.Submission.HasReport)
	require.Equal(t, "G-100", receipt.Submission.RegNo)

	// guests cannot read back submissions
	resp = f.do(t, http.MethodGet, idPath("submissions", receipt.Submission.ID), "", nil)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	teacher := bearer(t, 1, "teacher")
	resp = f.do(t, http.MethodGet, "/api/v1/submissions?assignment_id="+strconv.FormatUint(uint64(f.assignment.ID), 10), teacher, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var items []dto.SubmissionResponse
	env = decodeEnvelope(t, resp, &items)
	require.Len(t, items, 1)
	require.Contains(t, string(env.Meta), `"total":1`)
}

func TestSubmissionHandlerRejections(t *testing.T) {
	f := newPortalApp(t)

	cases := []struct {
		name   string
		fields map[string]string
		file   *formFile
		status int
	}{
		{
			name:   "unsupported extension",
			fields: map[string]string{"student_name": "Dewi", "reg_no": "2024-07"},
			file:   &formFile{name: "setup.exe", content: []byte("MZ")},
			status: fiber.StatusUnsupportedMediaType,
		},
		{
			name:   "file too large",
			fields: map[string]string{"student_name": "Dewi", "reg_no": "2024-07"},
			file:   &formFile{name: "essay.txt", content: []byte(strings.Repeat("a", 5000))},
			status: fiber.StatusRequestEntityTooLarge,
		},
		{
			name:   "neither file nor text",
			fields: map[string]string{"student_name": "Dewi", "reg_no": "2024-07"},
			status: fiber.StatusBadRequest,
		},
		{
			name:   "missing student name",
			fields: map[string]string{"reg_no": "2024-07", "text_data": "hello"},
			status: fiber.StatusBadRequest,
		},
		{
			name:   "unknown assignment",
			fields: map[string]string{"assignment_id": "999", "student_name": "Dewi", "reg_no": "2024-07", "text_data": "hello"},
			status: fiber.StatusNotFound,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := f.submit(t, "", tc.fields, tc.file)
			require.Equal(t, tc.status, resp.StatusCode)
			env := decodeEnvelope(t, resp, nil)
			require.False(t, env.Success)
		})
	}

	var count int64
	require.NoError(t, f.db.Table("submissions").Count(&count).Error)
	require.Zero(t, count)
}

func TestSubmissionHandlerOversizedBodyUsesEnvelope(t *testing.T) {
	f := newPortalApp(t)

	resp := f.submit(t, "", map[string]string{"student_name": "Dewi", "reg_no": "2024-07"},
		&formFile{name: "thesis.pdf", content: []byte(strings.Repeat("x", 3*portalBodyLimit))})
	require.Equal(t, fiber.StatusRequestEntityTooLarge, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "application/json")

	env := decodeEnvelope(t, resp, nil)
	require.False(t, env.Success)
	require.JSONEq(t, `{"kind":"file_too_large"}`, string(env.Details))

	var count int64
	require.NoError(t, f.db.Table("submissions").Count(&count).Error)
	require.Zero(t, count)
}

func TestSubmissionHandlerStudentOwnership(t *testing.T) {
	f := newPortalApp(t, capability.Reporting)
	student := bearer(t, f.student.ID, "student")

	resp := f.submit(t, student, map[string]string{
		"student_name": "Dewi",
		"reg_no":       "2024-07",
		"email":        "dewi@student.test",
	}, &formFile{name: "food web.txt", content: []byte("grass rabbit fox")})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var receipt dto.SubmissionReceipt
	decodeEnvelope(t, resp, &receipt)
	require.NotNil(t, receipt.Submission.StudentID)
	require.Equal(t, f.student.ID, *receipt.Submission.StudentID)
	require.Equal(t, "txt", receipt.Submission.FileExt)
	id := receipt.Submission.ID

	resp = f.do(t, http.MethodGet, idPath("submissions", id), student, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var got dto.SubmissionResponse
	decodeEnvelope(t, resp, &got)
	require.Equal(t, "Ecosystem Report", got.Assignment.Title)

	resp = f.do(t, http.MethodGet, idPath("submissions", id)+"/file", student, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Disposition"), "attachment")
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "grass rabbit fox", string(body))

	resp = f.do(t, http.MethodGet, idPath("submissions", id)+"/report", student, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))

	resp = f.do(t, http.MethodGet, idPath("students", f.student.ID)+"/submissions", student, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var own []dto.SubmissionResponse
	decodeEnvelope(t, resp, &own)
	require.Len(t, own, 1)

	resp = f.do(t, http.MethodGet, idPath("students", f.student.ID+1)+"/submissions", student, nil)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	other := bearer(t, f.student.ID+1, "student")
	resp = f.do(t, http.MethodGet, idPath("submissions", id), other, nil)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	// listing everything is staff only
	resp = f.do(t, http.MethodGet, "/api/v1/submissions", student, nil)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp = f.do(t, http.MethodGet, idPath("submissions", id+50), bearer(t, 1, "admin"), nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestSubmissionHandlerRejectsForgedToken(t *testing.T) {
	f := newPortalApp(t)

	resp := f.submit(t, "Bearer not-a-token", map[string]string{
		"student_name": "Dewi",
		"reg_no":       "2024-07",
		"text_data":    "hello",
	}, nil)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestAssignmentHandlerListsAssignments(t *testing.T) {
	f := newPortalApp(t)

	resp := f.do(t, http.MethodGet, "/api/v1/assignments", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var assignments []dto.AssignmentResponse
	decodeEnvelope(t, resp, &assignments)
	require.Len(t, assignments, 1)
	require.False(t, assignments[0].PastDue)

	resp = f.do(t, http.MethodGet, idPath("assignments", 77), "", nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
