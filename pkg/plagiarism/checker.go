// Package plagiarism scores a text against a corpus of earlier documents using
// word shingles and renders the overlapping passages as a highlight PDF.
package plagiarism

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// DefaultShingleSize is the number of words per shingle.
const DefaultShingleSize = 3

// Document is one entry of the comparison corpus.
type Document struct {
	ID    string
	Label string
	Text  string
}

// Input describes one analysis request.
type Input struct {
	Text   string
	Corpus []Document
	// Key names the highlight artifact; a random key is used when empty.
	Key string
}

// Result is the outcome of an analysis. Score is always within 0..100.
type Result struct {
	Score         int
	SourceID      string
	Passages      []string
	HighlightPath string
}

// Config tunes the checker.
type Config struct {
	ShingleSize int
	ScratchDir  string
}

// Checker compares texts against a corpus.
type Checker struct {
	fs          afero.Fs
	scratchDir  string
	shingleSize int
	logger      zerolog.Logger
	now         func() time.Time
}

// NewChecker builds a checker writing highlight artifacts into cfg.ScratchDir on fs.
func NewChecker(fs afero.Fs, cfg Config, logger zerolog.Logger) *Checker {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	size := cfg.ShingleSize
	if size <= 0 {
		size = DefaultShingleSize
	}
	scratch := cfg.ScratchDir
	if strings.TrimSpace(scratch) == "" {
		scratch = filepath.Join(afero.GetTempDir(fs, ""), "gema-highlights")
	}

	return &Checker{
		fs:          fs,
		scratchDir:  scratch,
		shingleSize: size,
		logger:      logger.With().Str("component", "plagiarism_checker").Logger(),
		now:         time.Now,
	}
}

// Ready verifies that highlight artifacts can be written.
func (c *Checker) Ready() error {
	if err := c.fs.MkdirAll(c.scratchDir, 0o755); err != nil {
		return fmt.Errorf("prepare scratch dir: %w", err)
	}
	return nil
}

// Analyze scores in.Text against every corpus document and keeps the best match.
// Empty text scores 0 without touching the corpus.
func (c *Checker) Analyze(ctx context.Context, in Input) (Result, error) {
	words := Tokenize(in.Text)
	if len(words) == 0 {
		return Result{}, nil
	}
	shingles := Shingles(words, c.shingleSize)

	var (
		best        float64
		bestDoc     Document
		bestMatches map[string]struct{}
	)
	for _, doc := range in.Corpus {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		other := shingleSet(Shingles(Tokenize(doc.Text), c.shingleSize))
		similarity, matches := containment(shingles, other)
		if similarity > best {
			best = similarity
			bestDoc = doc
			bestMatches = matches
		}
	}

	score := clampScore(best)
	if score == 0 {
		return Result{}, nil
	}

	result := Result{
		Score:    score,
		SourceID: bestDoc.ID,
		Passages: passages(words, c.shingleSize, bestMatches),
	}

	key := strings.TrimSpace(in.Key)
	if key == "" {
		key = uuid.NewString()
	}
	path, err := c.writeHighlight(key, result, bestDoc)
	if err != nil {
		// the score stands even when the artifact cannot be written
		c.logger.Warn().Err(err).Str("key", key).Msg("highlight artifact not written")
		return result, nil
	}
	result.HighlightPath = path

	c.logger.Debug().Int("score", score).Str("source", bestDoc.ID).Int("passages", len(result.Passages)).Msg("plagiarism analysed")
	return result, nil
}

// Tokenize lower-cases text and splits it into words of letters and digits.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// Shingles returns the overlapping n-word windows of words. Texts shorter
// than n produce a single shingle.
func Shingles(words []string, n int) []string {
	if len(words) == 0 {
		return nil
	}
	if n <= 0 {
		n = DefaultShingleSize
	}
	if len(words) <= n {
		return []string{strings.Join(words, " ")}
	}

	out := make([]string, len(words)-n+1)
	for i := range out {
		out[i] = strings.Join(words[i:i+n], " ")
	}
	return out
}

func shingleSet(shingles []string) map[string]struct{} {
	set := make(map[string]struct{}, len(shingles))
	for _, s := range shingles {
		set[s] = struct{}{}
	}
	return set
}

// containment is the share of the submission's distinct shingles found in other.
func containment(shingles []string, other map[string]struct{}) (float64, map[string]struct{}) {
	own := shingleSet(shingles)
	if len(own) == 0 || len(other) == 0 {
		return 0, nil
	}

	matches := make(map[string]struct{})
	for s := range own {
		if _, ok := other[s]; ok {
			matches[s] = struct{}{}
		}
	}
	return float64(len(matches)) / float64(len(own)), matches
}

func clampScore(similarity float64) int {
	score := int(math.Round(similarity * 100))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// passages merges the words covered by matching shingles into contiguous runs.
func passages(words []string, n int, matches map[string]struct{}) []string {
	if len(matches) == 0 {
		return nil
	}

	covered := make([]bool, len(words))
	for i, s := range Shingles(words, n) {
		if _, ok := matches[s]; !ok {
			continue
		}
		end := i + n
		if end > len(words) {
			end = len(words)
		}
		for j := i; j < end; j++ {
			covered[j] = true
		}
	}

	var (
		out []string
		run []string
	)
	for i, word := range words {
		if covered[i] {
			run = append(run, word)
			continue
		}
		if len(run) > 0 {
			out = append(out, strings.Join(run, " "))
			run = nil
		}
	}
	if len(run) > 0 {
		out = append(out, strings.Join(run, " "))
	}
	return out
}
