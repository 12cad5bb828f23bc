package service

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-portal/internal/capability"
	"github.com/noah-isme/gema-portal/internal/models"
	"github.com/noah-isme/gema-portal/internal/repository"
	"github.com/noah-isme/gema-portal/internal/storage"
)

func newPreviewFixture(t *testing.T, caps capability.Checker) (PreviewService, *storage.LocalStore, models.Assignment, func(models.Submission) models.Submission) {
	t.Helper()
	db := setupServiceDB(t)
	content, err := storage.NewLocalStore(afero.NewMemMapFs(), "uploads", testLogger())
	require.NoError(t, err)
	assignment := seedAssignment(t, db)

	svc := NewPreviewService(repository.NewSubmissionRepository(db), content, caps, 0, testLogger())
	seed := func(sub models.Submission) models.Submission {
		sub.AssignmentID = assignment.ID
		return seedSubmission(t, db, sub)
	}
	return svc, content, assignment, seed
}

func TestPreviewServiceEscapesInlineText(t *testing.T) {
	svc, _, _, seed := newPreviewFixture(t, capability.Static(capability.Preview))
	sub := seed(models.Submission{StudentName: "Rina", RegNo: "1", TextContent: "<script>alert(1)</script> leaves & roots"})

	preview, err := svc.Preview(context.Background(), sub.ID, Actor{Role: RoleTeacher})
	require.NoError(t, err)
	require.NotContains(t, preview.HTML, "<script>")
	require.Contains(t, preview.HTML, "&lt;script&gt;")
	require.Contains(t, preview.HTML, "leaves &amp; roots")
	require.Equal(t, "text/plain", preview.MimeType)
	require.False(t, preview.Truncated)
}

func TestPreviewServiceTruncatesStoredText(t *testing.T) {
	svc, content, _, seed := newPreviewFixture(t, capability.Static(capability.Preview))
	long := strings.Repeat("photosynthesis ", 400)
	path, err := content.Save(context.Background(), "1_R_notes.txt", strings.NewReader(long), int64(len(long)))
	require.NoError(t, err)
	sub := seed(models.Submission{StudentName: "Rina", RegNo: "R", FilePath: path, FileExt: "txt", MimeType: "text/plain"})

	preview, err := svc.Preview(context.Background(), sub.ID, Actor{Role: RoleAdmin})
	require.NoError(t, err)
	require.True(t, preview.Truncated)
	require.Equal(t, "1_R_notes.txt", preview.FileName)
	require.True(t, strings.HasPrefix(preview.HTML, "<pre>photosynthesis"))
}

func TestPreviewServiceThumbnail(t *testing.T) {
	svc, content, _, seed := newPreviewFixture(t, capability.Static(capability.Preview))

	img := image.NewRGBA(image.Rect(0, 0, 400, 200))
	for x := 0; x < 400; x++ {
		for y := 0; y < 200; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 255), G: 120, B: 40, A: 255})
		}
	}
	var encoded bytes.Buffer
	require.NoError(t, png.Encode(&encoded, img))
	path, err := content.Save(context.Background(), "1_R_leaf.png", bytes.NewReader(encoded.Bytes()), int64(encoded.Len()))
	require.NoError(t, err)
	sub := seed(models.Submission{StudentName: "Rina", RegNo: "R", FilePath: path, FileExt: "png", MimeType: "image/png"})

	thumb, err := svc.Thumbnail(context.Background(), sub.ID, Actor{Role: RoleTeacher}, 100)
	require.NoError(t, err)
	defer thumb.Body.Close()
	require.Equal(t, "image/jpeg", thumb.ContentType)
	require.Equal(t, "1_R_leaf_thumb.jpg", thumb.Name)

	decoded, err := jpeg.Decode(thumb.Body)
	require.NoError(t, err)
	require.Equal(t, 100, decoded.Bounds().Dx())
	require.Equal(t, 50, decoded.Bounds().Dy())

	preview, err := svc.Preview(context.Background(), sub.ID, Actor{Role: RoleTeacher})
	require.NoError(t, err)
	require.Contains(t, preview.HTML, "/thumbnail")
}

func TestPreviewServiceUnavailable(t *testing.T) {
	svc, _, _, seed := newPreviewFixture(t, capability.Static())
	sub := seed(models.Submission{StudentName: "Rina", RegNo: "R", TextContent: "hi"})

	_, err := svc.Preview(context.Background(), sub.ID, Actor{Role: RoleTeacher})
	require.ErrorIs(t, err, ErrPreviewUnavailable)
}

func TestPreviewServiceUnsupportedAndForbidden(t *testing.T) {
	svc, _, _, seed := newPreviewFixture(t, capability.Static(capability.Preview))
	textOnly := seed(models.Submission{StudentName: "Rina", RegNo: "R", TextContent: "hi"})

	_, err := svc.Thumbnail(context.Background(), textOnly.ID, Actor{Role: RoleTeacher}, 0)
	require.ErrorIs(t, err, ErrPreviewUnsupported)

	_, err = svc.Preview(context.Background(), textOnly.ID, Actor{ID: 3, Role: RoleStudent})
	require.ErrorIs(t, err, ErrForbidden)
}
