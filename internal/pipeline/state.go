// Package pipeline turns a raw upload into a persisted, analysed submission.
//
// Runs move strictly forward through RECEIVED, VALIDATED, STORED, ANALYZED,
// REPORTED, PERSISTED, NOTIFIED and DONE. Only validation (to REJECTED) and
// persistence can abort a run; every analysis, report and notification stage
// degrades to a safe default instead.
package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/noah-isme/gema-portal/internal/models"
	"github.com/noah-isme/gema-portal/internal/report"
)

// State is a pipeline position.
type State string

const (
	StateReceived  State = "RECEIVED"
	StateValidated State = "VALIDATED"
	StateStored    State = "STORED"
	StateAnalyzed  State = "ANALYZED"
	StateReported  State = "REPORTED"
	StatePersisted State = "PERSISTED"
	StateNotified  State = "NOTIFIED"
	StateDone      State = "DONE"
	StateRejected  State = "REJECTED"
)

// Outcome classifies the result of one stage.
type Outcome string

const (
	OutcomeOK       Outcome = "ok"
	OutcomeDegraded Outcome = "degraded"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFatal    Outcome = "fatal"
)

// StageResult is one entry of a run trace.
type StageResult struct {
	State    State         `json:"state"`
	Step     string        `json:"step,omitempty"`
	Outcome  Outcome       `json:"outcome"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Label names the stage for metrics and logs.
func (r StageResult) Label() string {
	if r.Step != "" {
		return r.Step
	}
	return string(r.State)
}

// Run is the complete account of one pipeline invocation.
type Run struct {
	Submission   models.Submission
	State        State
	Stages       []StageResult
	ReportSource report.Source
}

// Degraded returns the stages that fell back to a default.
func (r Run) Degraded() []StageResult {
	var out []StageResult
	for _, stage := range r.Stages {
		if stage.Outcome == OutcomeDegraded {
			out = append(out, stage)
		}
	}
	return out
}

var (
	// ErrPersistence marks failures that prevented the submission from being kept.
	ErrPersistence = errors.New("submission could not be persisted")
	// ErrAssignmentNotFound indicates the target assignment does not exist.
	ErrAssignmentNotFound = errors.New("assignment not found")
	// ErrCapabilityPanic wraps a recovered panic from an optional collaborator.
	ErrCapabilityPanic = errors.New("capability panicked")
)

// PersistenceError is the fatal error surfaced when storing the upload or the
// record fails. It matches ErrPersistence and the underlying cause.
type PersistenceError struct {
	Stage State
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s at %s: %v", ErrPersistence.Error(), e.Stage, e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}
