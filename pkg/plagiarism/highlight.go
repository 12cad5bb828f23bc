package plagiarism

import (
	"fmt"
	"path/filepath"

	"github.com/go-pdf/fpdf"
	"github.com/spf13/afero"
)

const maxHighlightPassages = 50

func (c *Checker) writeHighlight(key string, result Result, source Document) (path string, err error) {
	if err := c.fs.MkdirAll(c.scratchDir, 0o755); err != nil {
		return "", fmt.Errorf("prepare scratch dir: %w", err)
	}

	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetCreationDate(c.now())
	doc.SetTitle("Plagiarism Highlights", false)
	tr := doc.UnicodeTranslatorFromDescriptor("")

	doc.AddPage()
	doc.SetFont("Helvetica", "B", 16)
	doc.Cell(0, 10, "Plagiarism Highlights")
	doc.Ln(12)

	doc.SetFont("Helvetica", "", 11)
	doc.Cell(0, 7, fmt.Sprintf("Similarity score: %d%%", result.Score))
	doc.Ln(7)
	label := source.Label
	if label == "" {
		label = source.ID
	}
	doc.Cell(0, 7, tr(fmt.Sprintf("Closest source: %s", label)))
	doc.Ln(10)

	doc.SetFont("Helvetica", "B", 12)
	doc.Cell(0, 8, "Overlapping passages")
	doc.Ln(9)

	doc.SetFont("Helvetica", "", 10)
	doc.SetFillColor(255, 241, 118)
	shown := result.Passages
	if len(shown) > maxHighlightPassages {
		shown = shown[:maxHighlightPassages]
	}
	for _, passage := range shown {
		doc.MultiCell(0, 6, tr(passage), "", "L", true)
		doc.Ln(2)
	}
	if len(result.Passages) > len(shown) {
		doc.Cell(0, 6, fmt.Sprintf("%d more passages omitted", len(result.Passages)-len(shown)))
	}

	if doc.Err() {
		return "", fmt.Errorf("render highlight: %w", doc.Error())
	}

	path = filepath.Join(c.scratchDir, fmt.Sprintf("highlight_%s.pdf", key))
	file, err := c.fs.Create(path)
	if err != nil {
		return "", fmt.Errorf("create highlight: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close highlight: %w", closeErr)
		}
		if err != nil {
			_ = c.fs.Remove(path)
			path = ""
		}
	}()

	if err := doc.Output(file); err != nil {
		return "", fmt.Errorf("write highlight: %w", err)
	}
	return path, nil
}

// Exists reports whether a highlight artifact is still present.
func Exists(fs afero.Fs, path string) bool {
	if path == "" {
		return false
	}
	ok, err := afero.Exists(fs, path)
	return err == nil && ok
}
