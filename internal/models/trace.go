package models

import (
	"time"
)

// ConditionCheck records one declared condition's evaluation against the
// context, for audit and debugging only
type ConditionCheck struct {
	Field     string `json:"field"`
	Expected  string `json:"expected"`
	Actual    string `json:"actual"`
	Satisfied bool   `json:"satisfied"`
}

// RuleTrace records one rule's evaluation. Conditions lists every declared
// (non-wildcard) condition in evaluation order.
type RuleTrace struct {
	RuleID     string           `json:"rule_id"`
	Priority   int              `json:"priority"`
	Enabled    bool             `json:"enabled"`
	InScope    bool             `json:"in_scope"`
	Matched    bool             `json:"matched"`
	Conditions []ConditionCheck `json:"conditions,omitempty"`
}

// EvaluationTrace is the ordered audit record of one evaluation run. Entries
// terminate at the winning rule unless the evaluation ran in diagnostic mode,
// in which case every considered rule is recorded.
type EvaluationTrace struct {
	LineID      string      `json:"line_id"`
	Scope       RuleScope   `json:"scope"`
	EvaluatedAt time.Time   `json:"evaluated_at"`
	WinnerID    string      `json:"winner_id,omitempty"`
	Entries     []RuleTrace `json:"entries"`
}

// Winner returns the trace entry of the winning rule, or nil when no rule matched
func (t *EvaluationTrace) Winner() *RuleTrace {
	if t.WinnerID == "" {
		return nil
	}
	for i := range t.Entries {
		if t.Entries[i].RuleID == t.WinnerID && t.Entries[i].Matched {
			return &t.Entries[i]
		}
	}
	return nil
}
