package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	aiDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gema",
		Subsystem: "ai",
		Name:      "detection_duration_seconds",
		Help:      "Duration of AI content detection requests",
	}, []string{"model"})

	aiFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gema",
		Subsystem: "ai",
		Name:      "detection_failures_total",
		Help:      "Number of AI content detection failures",
	}, []string{"model"})
)

const (
	verdictSchemaURL = "mem://gema/ai-verdict.schema.json"
	verdictSchema    = `{
  "type": "object",
  "required": ["ai_generated", "confidence"],
  "properties": {
    "ai_generated": {"type": "boolean"},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "reason": {"type": "string"}
  }
}`
	// DefaultMaxChars bounds how much of a submission is sent to the model.
	DefaultMaxChars = 12000
)

// OpenAIConfig defines configuration options for the OpenAI detector.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	MaxChars    int
	Temperature float32
	// Threshold is the minimum confidence for a positive verdict.
	Threshold float64
	Logger    zerolog.Logger
}

// OpenAIDetector implements Detector against the OpenAI chat completion API.
type OpenAIDetector struct {
	client *openai.Client
	cfg    OpenAIConfig
	schema *jsonschema.Schema
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIDetector builds a new detector using the provided configuration.
func NewOpenAIDetector(cfg OpenAIConfig) (*OpenAIDetector, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 256
	}

	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultMaxChars
	}

	if cfg.Threshold <= 0 || cfg.Threshold > 1 {
		cfg.Threshold = 0.7
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(verdictSchemaURL, strings.NewReader(verdictSchema)); err != nil {
		return nil, fmt.Errorf("load verdict schema: %w", err)
	}
	schema, err := compiler.Compile(verdictSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile verdict schema: %w", err)
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	return &OpenAIDetector{
		client: openai.NewClientWithConfig(config),
		cfg:    cfg,
		schema: schema,
		tracer: otel.Tracer("github.com/noah-isme/gema-portal/pkg/ai/openai"),
		logger: cfg.Logger.With().Str("component", "ai_detector").Logger(),
	}, nil
}

// Detect returns true when the model flags the text with enough confidence.
// Blank text is never sent and yields false.
func (d *OpenAIDetector) Detect(ctx context.Context, text string) (bool, error) {
	if strings.TrimSpace(text) == "" {
		return false, nil
	}

	verdict, err := d.Classify(ctx, text)
	if err != nil {
		return false, err
	}

	flagged := verdict.AIGenerated && verdict.Confidence >= d.cfg.Threshold
	d.logger.Debug().
		Bool("ai_generated", verdict.AIGenerated).
		Float64("confidence", verdict.Confidence).
		Bool("flagged", flagged).
		Msg("ai detection completed")

	return flagged, nil
}

// Classify sends the text to OpenAI and returns the validated verdict.
func (d *OpenAIDetector) Classify(parent context.Context, text string) (Verdict, error) {
	ctx, span := d.tracer.Start(parent, "openai.detect", trace.WithAttributes(
		attribute.String("model", d.cfg.Model),
		attribute.Int("text.chars", utf8.RuneCountInString(text)),
	))
	defer span.End()

	start := time.Now()
	request := openai.ChatCompletionRequest{
		Model:       d.cfg.Model,
		MaxTokens:   d.cfg.MaxTokens,
		Temperature: d.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: detectorSystemPrompt(),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: truncate(text, d.cfg.MaxChars),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	resp, err := d.client.CreateChatCompletion(ctx, request)
	aiDuration.WithLabelValues(d.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		return Verdict{}, d.fail(span, fmt.Errorf("openai detect: %w", err))
	}

	if len(resp.Choices) == 0 {
		return Verdict{}, d.fail(span, fmt.Errorf("no choices returned from openai"))
	}

	verdict, err := d.parseVerdict(strings.TrimSpace(resp.Choices[0].Message.Content))
	if err != nil {
		return Verdict{}, d.fail(span, err)
	}

	span.SetAttributes(attribute.Float64("verdict.confidence", verdict.Confidence))
	return verdict, nil
}

func (d *OpenAIDetector) fail(span trace.Span, err error) error {
	aiFailures.WithLabelValues(d.cfg.Model).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func (d *OpenAIDetector) parseVerdict(content string) (Verdict, error) {
	var raw interface{}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return Verdict{}, fmt.Errorf("parse verdict json: %w", err)
	}
	if err := d.schema.Validate(raw); err != nil {
		return Verdict{}, fmt.Errorf("verdict does not match schema: %w", err)
	}

	var verdict Verdict
	if err := json.Unmarshal([]byte(content), &verdict); err != nil {
		return Verdict{}, fmt.Errorf("decode verdict: %w", err)
	}
	return verdict, nil
}

func detectorSystemPrompt() string {
	return "You review student submissions for an assignment portal. Decide whether the text was written by a language model. " +
		"Respond with a JSON object containing ai_generated (boolean), confidence (0-1) and a short reason."
}

func truncate(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit])
}
