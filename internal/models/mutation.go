package models

import (
	"time"
)

// LineMutation is the immutable result of applying a winning rule's outputs
// to one target line. Each field carries an explicit Set flag so that a
// partial overwrite and a write-to-null are distinguishable: only fields
// flagged Set are written, and a Set field with a nil value clears the
// column. The caller merges and persists mutations; the applier never
// touches a stored line directly.
type LineMutation struct {
	LineID string `json:"line_id"`
	RuleID string `json:"rule_id"`

	SetActionID bool `json:"set_action_id,omitempty"`
	ActionID    *int `json:"action_id,omitempty"`

	SetActionStatus bool    `json:"set_action_status,omitempty"`
	ActionStatus    *string `json:"action_status,omitempty"`

	SetActionDate bool       `json:"set_action_date,omitempty"`
	ActionDate    *time.Time `json:"action_date,omitempty"`

	SetKpiID bool `json:"set_kpi_id,omitempty"`
	KpiID    *int `json:"kpi_id,omitempty"`

	SetIncidentTypeID bool `json:"set_incident_type_id,omitempty"`
	IncidentTypeID    *int `json:"incident_type_id,omitempty"`

	SetRiskyItem bool  `json:"set_risky_item,omitempty"`
	RiskyItem    *bool `json:"risky_item,omitempty"`

	SetReasonNonRiskyID bool `json:"set_reason_non_risky_id,omitempty"`
	ReasonNonRiskyID    *int `json:"reason_non_risky_id,omitempty"`

	SetToRemind bool `json:"set_to_remind,omitempty"`
	ToRemind    bool `json:"to_remind,omitempty"`

	SetToRemindDate bool       `json:"set_to_remind_date,omitempty"`
	ToRemindDate    *time.Time `json:"to_remind_date,omitempty"`

	SetFirstClaimDate bool       `json:"set_first_claim_date,omitempty"`
	FirstClaimDate    *time.Time `json:"first_claim_date,omitempty"`
}

// IsEmpty reports whether the mutation writes no fields
func (m *LineMutation) IsEmpty() bool {
	return !m.SetActionID && !m.SetActionStatus && !m.SetActionDate &&
		!m.SetKpiID && !m.SetIncidentTypeID && !m.SetRiskyItem &&
		!m.SetReasonNonRiskyID && !m.SetToRemind && !m.SetToRemindDate &&
		!m.SetFirstClaimDate
}

// MergeInto merges the mutation into an in-memory line, mirroring exactly
// what the repository persists
func (m *LineMutation) MergeInto(line *ReconciliationLine) {
	if m.SetActionID {
		line.ActionID = m.ActionID
	}
	if m.SetActionStatus {
		line.ActionStatus = m.ActionStatus
	}
	if m.SetActionDate {
		line.ActionDate = m.ActionDate
	}
	if m.SetKpiID {
		line.KpiID = m.KpiID
	}
	if m.SetIncidentTypeID {
		line.IncidentTypeID = m.IncidentTypeID
	}
	if m.SetRiskyItem {
		line.RiskyItem = m.RiskyItem
	}
	if m.SetReasonNonRiskyID {
		line.ReasonNonRiskyID = m.ReasonNonRiskyID
	}
	if m.SetToRemind {
		line.ToRemind = m.ToRemind
	}
	if m.SetToRemindDate {
		line.ToRemindDate = m.ToRemindDate
	}
	if m.SetFirstClaimDate {
		line.FirstClaimDate = m.FirstClaimDate
	}
}
