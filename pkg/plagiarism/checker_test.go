package plagiarism

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const source = "The mitochondria is the powerhouse of the cell and produces energy for every living organism."

func newTestChecker(fs afero.Fs) *Checker {
	return NewChecker(fs, Config{ShingleSize: 3, ScratchDir: "scratch"}, zerolog.Nop())
}

func TestAnalyzeIdenticalTextScoresHundred(t *testing.T) {
	fs := afero.NewMemMapFs()
	checker := newTestChecker(fs)

	result, err := checker.Analyze(context.Background(), Input{
		Text:   source,
		Corpus: []Document{{ID: "12", Label: "Submission #12", Text: source}},
		Key:    "3_A1",
	})
	require.NoError(t, err)
	require.Equal(t, 100, result.Score)
	require.Equal(t, "12", result.SourceID)
	require.Equal(t, "scratch/highlight_3_A1.pdf", result.HighlightPath)
	require.Len(t, result.Passages, 1)
	require.True(t, Exists(fs, result.HighlightPath))

	data, err := afero.ReadFile(fs, result.HighlightPath)
	require.NoError(t, err)
	require.Equal(t, "%PDF", string(data[:4]))
}

func TestAnalyzePicksBestDocumentAndStaysInRange(t *testing.T) {
	checker := newTestChecker(afero.NewMemMapFs())

	partial := "The mitochondria is the powerhouse of the cell. Photosynthesis happens in leaves under sunlight."
	result, err := checker.Analyze(context.Background(), Input{
		Text: partial,
		Corpus: []Document{
			{ID: "1", Text: "Completely unrelated essay about volcanic islands."},
			{ID: "2", Text: source},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "2", result.SourceID)
	require.Greater(t, result.Score, 0)
	require.Less(t, result.Score, 100)
	require.Equal(t, []string{"the mitochondria is the powerhouse of the cell"}, result.Passages)
	require.NotEmpty(t, result.HighlightPath)
}

func TestAnalyzeWithoutOverlapWritesNothing(t *testing.T) {
	fs := afero.NewMemMapFs()
	checker := newTestChecker(fs)

	result, err := checker.Analyze(context.Background(), Input{
		Text:   "Rivers carve canyons over millions of years.",
		Corpus: []Document{{ID: "1", Text: source}},
	})
	require.NoError(t, err)
	require.Equal(t, Result{}, result)

	exists, err := afero.DirExists(fs, "scratch")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestAnalyzeEmptyTextOrCorpus(t *testing.T) {
	checker := newTestChecker(afero.NewMemMapFs())

	result, err := checker.Analyze(context.Background(), Input{Text: "  ", Corpus: []Document{{ID: "1", Text: source}}})
	require.NoError(t, err)
	require.Zero(t, result.Score)

	result, err = checker.Analyze(context.Background(), Input{Text: source})
	require.NoError(t, err)
	require.Zero(t, result.Score)
}

func TestAnalyzeHonoursCancellation(t *testing.T) {
	checker := newTestChecker(afero.NewMemMapFs())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := checker.Analyze(ctx, Input{Text: source, Corpus: []Document{{ID: "1", Text: source}}})
	require.ErrorIs(t, err, context.Canceled)
}

func TestAnalyzeKeepsScoreWhenArtifactFails(t *testing.T) {
	checker := newTestChecker(afero.NewReadOnlyFs(afero.NewMemMapFs()))

	result, err := checker.Analyze(context.Background(), Input{Text: source, Corpus: []Document{{ID: "1", Text: source}}})
	require.NoError(t, err)
	require.Equal(t, 100, result.Score)
	require.Empty(t, result.HighlightPath)
}

func TestShingles(t *testing.T) {
	require.Nil(t, Shingles(nil, 3))
	require.Equal(t, []string{"one two"}, Shingles([]string{"one", "two"}, 3))
	require.Equal(t, []string{"a b c", "b c d"}, Shingles([]string{"a", "b", "c", "d"}, 3))
	require.Equal(t, []string{"ujian", "akhir", "2024"}, Tokenize("Ujian-AKHIR, 2024!"))
}
