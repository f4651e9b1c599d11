package repository

import (
	"recon-rules/internal/models"
)

// Well-known action identifiers referenced by the default decision table.
// The catalogs themselves live in the referential store; these identifiers
// match the seed data shipped with it.
const (
	ActionNA          = 0
	ActionDefault     = 1
	ActionMatch       = 2
	ActionInvestigate = 7
	ActionRequest     = 8
	ActionRemind      = 9
)

// DefaultRules returns the starter decision table seeded into empty storage.
// Rules are evaluated priority ascending; the catch-all default sits last.
func DefaultRules() []models.Rule {
	return []models.Rule{
		{
			ID:            "matched-pair-clear",
			Message:       "Cleanly matched pair with offsetting amounts: nothing left to do",
			Enabled:       true,
			Priority:      5,
			Scope:         models.ScopeBoth,
			IsGrouped:     models.BoolEquals(true),
			IsAmountMatch: models.BoolEquals(true),
			Outputs: models.RuleOutputs{
				ActionID:  intPtr(ActionNA),
				RiskyItem: boolPtr(false),
				ToRemind:  boolPtr(false),
			},
			ApplyTo:   models.ApplyToBoth,
			AutoApply: true,
		},
		{
			ID:            "grouped-amount-mismatch",
			Message:       "Grouped pair whose amounts do not offset needs investigation",
			Enabled:       true,
			Priority:      10,
			Scope:         models.ScopeBoth,
			IsGrouped:     models.BoolEquals(true),
			IsAmountMatch: models.BoolEquals(false),
			Outputs: models.RuleOutputs{
				ActionID:  intPtr(ActionInvestigate),
				RiskyItem: boolPtr(true),
			},
			ApplyTo:   models.ApplyToBoth,
			AutoApply: true,
		},
		{
			ID:            "pivot-unlinked",
			Message:       "Pivot line with no DWINGS link must be investigated",
			Enabled:       true,
			Priority:      20,
			Scope:         models.ScopeBoth,
			AccountSide:   models.StringCondition(models.SidePivot),
			HasDwingsLink: models.BoolEquals(false),
			Outputs: models.RuleOutputs{
				ActionID:  intPtr(ActionInvestigate),
				RiskyItem: boolPtr(true),
			},
			ApplyTo:   models.ApplyToSelf,
			AutoApply: true,
		},
		{
			ID:                "receivable-first-request",
			Message:           "Receivable awaiting its first payment request",
			Enabled:           true,
			Priority:          30,
			Scope:             models.ScopeBoth,
			AccountSide:       models.StringCondition(models.SideReceivable),
			HasDwingsLink:     models.BoolEquals(true),
			IsFirstRequest:    models.BoolEquals(true),
			TriggerDateIsNull: models.BoolEquals(false),
			DaysSinceTrigger:  models.AtMost(14),
			Outputs: models.RuleOutputs{
				ActionID:        intPtr(ActionRequest),
				FirstClaimToday: boolPtr(true),
				ToRemindDays:    intPtr(14),
			},
			ApplyTo:   models.ApplyToSelf,
			AutoApply: true,
		},
		{
			ID:                "receivable-trigger-aged",
			Message:           "Receivable past the trigger grace period: escalate with reminder",
			Enabled:           true,
			Priority:          40,
			Scope:             models.ScopeBoth,
			AccountSide:       models.StringCondition(models.SideReceivable),
			HasDwingsLink:     models.BoolEquals(true),
			TriggerDateIsNull: models.BoolEquals(false),
			DaysSinceTrigger:  models.AtLeast(15),
			Outputs: models.RuleOutputs{
				ActionID:     intPtr(ActionRemind),
				RiskyItem:    boolPtr(true),
				ToRemindDays: intPtr(7),
			},
			ApplyTo:   models.ApplyToSelf,
			AutoApply: true,
		},
		{
			ID:             "edit-manual-match",
			Message:        "Manually matched during an edit: mark the pair reconciled",
			Enabled:        true,
			Priority:       50,
			Scope:          models.ScopeEdit,
			HasManualMatch: models.BoolEquals(true),
			Outputs: models.RuleOutputs{
				ActionID:  intPtr(ActionMatch),
				RiskyItem: boolPtr(false),
			},
			ApplyTo:   models.ApplyToBoth,
			AutoApply: true,
		},
		{
			ID:       "default-catch-all",
			Message:  "No specific rule applied",
			Enabled:  true,
			Priority: 1000,
			Scope:    models.ScopeBoth,
			Outputs: models.RuleOutputs{
				ActionID: intPtr(ActionDefault),
			},
			ApplyTo:   models.ApplyToSelf,
			AutoApply: true,
		},
	}
}

func intPtr(v int) *int {
	return &v
}

func boolPtr(v bool) *bool {
	return &v
}
