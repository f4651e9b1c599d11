package engine

import (
	"time"

	"go.uber.org/zap"

	"recon-rules/internal/models"
)

// Applier translates a winning rule's outputs into line mutations. It is
// pure: it returns immutable mutation records and never touches a stored or
// displayed line itself. Only outputs the rule actually sets produce writes.
type Applier struct {
	logger *zap.Logger
}

// NewApplier creates a new output applier
func NewApplier(logger *zap.Logger) *Applier {
	return &Applier{logger: logger}
}

// Apply builds the mutations for the rule's target line(s). A counterpart
// target on a line without a counterpart yields no mutations; that is a
// no-op, not a failure.
func (a *Applier) Apply(rule *models.Rule, ectx *models.EvaluationContext, refs *models.Referentials, now time.Time) []models.LineMutation {
	var targets []string

	switch rule.ApplyTo {
	case models.ApplyToSelf:
		targets = []string{ectx.LineID}
	case models.ApplyToCounterpart:
		if ectx.HasCounterpart() {
			targets = []string{ectx.CounterpartID}
		}
	case models.ApplyToBoth:
		targets = []string{ectx.LineID}
		if ectx.HasCounterpart() {
			targets = append(targets, ectx.CounterpartID)
		}
	}

	if len(targets) == 0 {
		a.logger.Debug("rule targets no lines",
			zap.String("rule_id", rule.ID),
			zap.String("line_id", ectx.LineID),
			zap.String("apply_to", string(rule.ApplyTo)))
		return nil
	}

	mutations := make([]models.LineMutation, 0, len(targets))
	for _, target := range targets {
		m := buildMutation(rule, target, refs, now)
		if !m.IsEmpty() {
			mutations = append(mutations, m)
		}
	}

	return mutations
}

// buildMutation maps one output set onto one target line
func buildMutation(rule *models.Rule, lineID string, refs *models.Referentials, now time.Time) models.LineMutation {
	out := rule.Outputs
	m := models.LineMutation{
		LineID: lineID,
		RuleID: rule.ID,
	}

	if out.ActionID != nil {
		actionID := *out.ActionID
		m.SetActionID = true
		m.ActionID = &actionID
		m.SetActionStatus = true
		m.SetActionDate = true

		if refs.IsNAAction(actionID) {
			// "Nothing to do" must not carry forward a stale pending/done
			// status: clear both status and date
			m.ActionStatus = nil
			m.ActionDate = nil
		} else {
			status := models.ActionStatusPending
			date := now
			m.ActionStatus = &status
			m.ActionDate = &date
		}
	}

	if out.KpiID != nil {
		v := *out.KpiID
		m.SetKpiID = true
		m.KpiID = &v
	}

	if out.IncidentTypeID != nil {
		v := *out.IncidentTypeID
		m.SetIncidentTypeID = true
		m.IncidentTypeID = &v
	}

	if out.RiskyItem != nil {
		v := *out.RiskyItem
		m.SetRiskyItem = true
		m.RiskyItem = &v
	}

	if out.ReasonNonRiskyID != nil {
		v := *out.ReasonNonRiskyID
		m.SetReasonNonRiskyID = true
		m.ReasonNonRiskyID = &v
	}

	switch {
	case out.ToRemindDays != nil:
		// A relative reminder implies ToRemind and anchors the date on the
		// evaluation instant
		date := now.AddDate(0, 0, *out.ToRemindDays)
		m.SetToRemind = true
		m.ToRemind = true
		m.SetToRemindDate = true
		m.ToRemindDate = &date
	case out.ToRemind != nil:
		m.SetToRemind = true
		m.ToRemind = *out.ToRemind
		if !*out.ToRemind {
			m.SetToRemindDate = true
			m.ToRemindDate = nil
		}
	}

	if out.FirstClaimToday != nil {
		m.SetFirstClaimDate = true
		if *out.FirstClaimToday {
			date := now
			m.FirstClaimDate = &date
		} else {
			m.FirstClaimDate = nil
		}
	}

	return m
}
