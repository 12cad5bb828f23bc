package ai

import "context"

// Verdict is the structured classification returned by a detector model.
type Verdict struct {
	AIGenerated bool    `json:"ai_generated"`
	Confidence  float64 `json:"confidence"`
	Reason      string  `json:"reason"`
}

// Detector decides whether text was likely produced by a language model.
type Detector interface {
	Detect(ctx context.Context, text string) (bool, error)
}
