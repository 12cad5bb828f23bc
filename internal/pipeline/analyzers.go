package pipeline

import (
	"context"
	"fmt"
	"strconv"

	"github.com/noah-isme/gema-portal/internal/models"
	"github.com/noah-isme/gema-portal/pkg/plagiarism"
)

// PlagiarismInput is what the orchestrator hands to the plagiarism analyzer.
type PlagiarismInput struct {
	AssignmentID uint
	RegNo        string
	Text         string
	Key          string
}

// PlagiarismResult is the analyzer verdict. HighlightPath may be empty.
type PlagiarismResult struct {
	Score         int
	HighlightPath string
}

// PlagiarismAnalyzer scores a submission text.
type PlagiarismAnalyzer interface {
	Analyze(ctx context.Context, in PlagiarismInput) (PlagiarismResult, error)
}

// CorpusSource lists earlier submissions of an assignment.
type CorpusSource interface {
	Corpus(ctx context.Context, assignmentID uint, excludeRegNo string) ([]models.Submission, error)
}

// CorpusAnalyzer compares a submission with every earlier submission of the
// same assignment from other students.
type CorpusAnalyzer struct {
	checker *plagiarism.Checker
	corpus  CorpusSource
}

// NewCorpusAnalyzer binds the checker to the submission store.
func NewCorpusAnalyzer(checker *plagiarism.Checker, corpus CorpusSource) *CorpusAnalyzer {
	return &CorpusAnalyzer{checker: checker, corpus: corpus}
}

func (a *CorpusAnalyzer) Analyze(ctx context.Context, in PlagiarismInput) (PlagiarismResult, error) {
	earlier, err := a.corpus.Corpus(ctx, in.AssignmentID, in.RegNo)
	if err != nil {
		return PlagiarismResult{}, fmt.Errorf("load corpus: %w", err)
	}

	docs := make([]plagiarism.Document, 0, len(earlier))
	for _, sub := range earlier {
		text := sub.AnalyzedText
		if text == "" {
			text = sub.TextContent
		}
		docs = append(docs, plagiarism.Document{
			ID:    strconv.FormatUint(uint64(sub.ID), 10),
			Label: fmt.Sprintf("Submission #%d by %s (%s)", sub.ID, sub.StudentName, sub.RegNo),
			Text:  text,
		})
	}

	result, err := a.checker.Analyze(ctx, plagiarism.Input{Text: in.Text, Corpus: docs, Key: in.Key})
	if err != nil {
		return PlagiarismResult{}, err
	}
	return PlagiarismResult{Score: result.Score, HighlightPath: result.HighlightPath}, nil
}
