package models

import (
	"time"

	"github.com/google/uuid"
)

// RunOrigin identifies what triggered a classification run
type RunOrigin string

const (
	OriginImport RunOrigin = "import"
	OriginEdit   RunOrigin = "edit"
	OriginRunNow RunOrigin = "run-now"
)

// LineFailure records one line that could not be classified this run.
// The line's prior classification fields are left untouched.
type LineFailure struct {
	LineID string `json:"line_id"`
	Stage  string `json:"stage"` // "fetch", "context", "apply"
	Error  string `json:"error"`
}

// BatchResult is the outcome of one classification pass. A batch always
// reports counts plus a failure list, never an all-or-nothing error.
type BatchResult struct {
	RunID      uuid.UUID     `json:"run_id"`
	Scope      RuleScope     `json:"scope"`
	Origin     RunOrigin     `json:"origin"`
	Classified int           `json:"classified"`
	Failed     int           `json:"failed"`
	Failures   []LineFailure `json:"failures,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
}

// RuleAppliedEvent is emitted per line when a rule's outputs are committed
type RuleAppliedEvent struct {
	EventID uuid.UUID `json:"event_id"`
	RuleID  string    `json:"rule_id"`
	LineID  string    `json:"line_id"`
	Origin  RunOrigin `json:"origin"`
	Summary string    `json:"summary"`
	At      time.Time `json:"at"`
}

// RunRulesRequest is the caller-facing bulk reclassification request
type RunRulesRequest struct {
	LineIDs []string  `json:"line_ids" binding:"required,min=1"`
	Scope   RuleScope `json:"scope"`
}

// DebugEvaluation is the read-only result of EvaluateForDebug
type DebugEvaluation struct {
	Context *EvaluationContext `json:"context"`
	Trace   *EvaluationTrace   `json:"trace"`
}
