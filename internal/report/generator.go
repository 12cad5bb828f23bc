// Package report produces the permanent analysis report of a submission.
package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/noah-isme/gema-portal/internal/intake"
)

// ErrUnavailable signals that no report could be produced.
var ErrUnavailable = errors.New("report unavailable")

// Source records how the final artifact was obtained.
type Source string

const (
	SourceHighlight Source = "highlight"
	SourceFallback  Source = "fallback"
	SourceNone      Source = "none"
)

// TimestampLayout formats the submission instant in fallback reports.
const TimestampLayout = "2006-01-02 15:04:05"

// Input carries the submission metadata rendered into reports.
type Input struct {
	AssignmentID    uint
	SubmissionID    uint
	AssignmentTitle string
	StudentName     string
	StudentEmail    string
	RegNo           string
	SubmittedAt     time.Time
	IsLate          bool
	Plagiarism      int
	AIDetected      bool
	HighlightPath   string
}

// Outcome is the result of one generation.
type Outcome struct {
	Path   string
	Source Source
}

// Generator writes reports into a single directory of fs.
type Generator struct {
	fs     afero.Fs
	dir    string
	logger zerolog.Logger
	now    func() time.Time
}

// NewGenerator builds a generator rooted at dir.
func NewGenerator(fs afero.Fs, dir string, logger zerolog.Logger) *Generator {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Generator{
		fs:     fs,
		dir:    filepath.Clean(dir),
		logger: logger.With().Str("component", "report_generator").Logger(),
		now:    time.Now,
	}
}

// Ready checks that the report directory can be used.
func (g *Generator) Ready() error {
	return g.fs.MkdirAll(g.dir, 0o755)
}

// Path returns the deterministic report location for a submission.
func (g *Generator) Path(assignmentID, submissionID uint, regNo string) string {
	return filepath.Join(g.dir, fmt.Sprintf("report_%d_%d_%s.pdf", assignmentID, submissionID, intake.SecureName(regNo)))
}

// Open returns the report stored at path when it lives in the report directory.
func (g *Generator) Open(path string) (io.ReadCloser, error) {
	cleaned := filepath.Clean(path)
	if filepath.Dir(cleaned) != g.dir {
		return nil, ErrUnavailable
	}
	file, err := g.fs.Open(cleaned)
	if err != nil {
		return nil, ErrUnavailable
	}
	return file, nil
}

// Generate relocates the highlight artifact when it exists, otherwise
// synthesises a fallback report when allowed. Both overwrite the previous
// report of the same submission.
func (g *Generator) Generate(ctx context.Context, in Input, allowFallback bool) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{Source: SourceNone}, err
	}
	if err := g.Ready(); err != nil {
		return Outcome{Source: SourceNone}, fmt.Errorf("prepare report dir: %w", err)
	}

	target := g.Path(in.AssignmentID, in.SubmissionID, in.RegNo)

	if in.HighlightPath != "" {
		exists, err := afero.Exists(g.fs, in.HighlightPath)
		if err != nil || !exists {
			g.logger.Debug().Str("highlight", in.HighlightPath).Msg("highlight artifact missing")
		} else {
			err := g.relocate(in.HighlightPath, target)
			if err == nil {
				return Outcome{Path: target, Source: SourceHighlight}, nil
			}
			g.logger.Warn().Err(err).Str("highlight", in.HighlightPath).Msg("highlight relocation failed")
		}
	}

	if !allowFallback {
		return Outcome{Source: SourceNone}, nil
	}

	if err := g.writeFallback(in, target); err != nil {
		return Outcome{Source: SourceNone}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return Outcome{Path: target, Source: SourceFallback}, nil
}

func (g *Generator) relocate(src, dst string) error {
	if err := g.fs.Rename(src, dst); err == nil {
		return nil
	}

	// rename fails across devices; copy into the report dir then swap
	in, err := g.fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := g.atomicWrite(dst, func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	}); err != nil {
		return err
	}

	if err := g.fs.Remove(src); err != nil {
		g.logger.Debug().Err(err).Str("highlight", src).Msg("highlight source not removed")
	}
	return nil
}

func (g *Generator) writeFallback(in Input, target string) error {
	doc := fpdf.New("P", "pt", "Letter", "")
	doc.SetCreationDate(g.now())
	doc.SetTitle("Plagiarism Report", false)
	tr := doc.UnicodeTranslatorFromDescriptor("")

	doc.AddPage()
	doc.SetFont("Helvetica", "B", 16)
	doc.SetXY(100, 40)
	doc.Cell(0, 20, "Plagiarism Report")

	doc.SetFont("Helvetica", "", 12)
	y := 90.0
	for _, line := range Lines(in) {
		doc.SetXY(50, y)
		doc.Cell(0, 14, tr(line))
		y += 20
	}

	if doc.Err() {
		return doc.Error()
	}

	return g.atomicWrite(target, doc.Output)
}

// atomicWrite fills a temporary file in the report dir and renames it over target.
func (g *Generator) atomicWrite(target string, fill func(io.Writer) error) error {
	tmp, err := afero.TempFile(g.fs, g.dir, ".report-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	fillErr := fill(tmp)
	closeErr := tmp.Close()
	if fillErr != nil || closeErr != nil {
		_ = g.fs.Remove(tmpName)
		return errors.Join(fillErr, closeErr)
	}

	if err := g.fs.Rename(tmpName, target); err != nil {
		_ = g.fs.Remove(tmpName)
		return err
	}
	return nil
}

// Lines returns the body lines of the fallback report.
func Lines(in Input) []string {
	return []string{
		fmt.Sprintf("Student: %s (%s)", in.StudentName, in.RegNo),
		fmt.Sprintf("Email: %s", in.StudentEmail),
		fmt.Sprintf("Assignment: %s", in.AssignmentTitle),
		fmt.Sprintf("Submitted at: %s", in.SubmittedAt.Format(TimestampLayout)),
		fmt.Sprintf("Late: %s", yesNo(in.IsLate)),
		fmt.Sprintf("Plagiarism Score: %d%%", in.Plagiarism),
		fmt.Sprintf("AI Detected: %s", yesNo(in.AIDetected)),
	}
}

func yesNo(value bool) string {
	if value {
		return "Yes"
	}
	return "No"
}
