package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"recon-rules/internal/models"
)

func intPtr(v int) *int { return &v }

func pivotContext() *models.EvaluationContext {
	return &models.EvaluationContext{
		LineID:      "l-1",
		CountryID:   "FR",
		AccountSide: "P",
		Sign:        "C",
		EvaluatedAt: testNow,
	}
}

func investigateRule() models.Rule {
	return models.Rule{
		ID:            "pivot-unlinked",
		Enabled:       true,
		Priority:      5,
		Scope:         models.ScopeImport,
		AccountSide:   models.StringCondition("P"),
		HasDwingsLink: models.BoolEquals(false),
		Outputs:       models.RuleOutputs{ActionID: intPtr(7)},
		ApplyTo:       models.ApplyToSelf,
		AutoApply:     true,
	}
}

func catchAllRule() models.Rule {
	return models.Rule{
		ID:        "default-catch-all",
		Enabled:   true,
		Priority:  50,
		Scope:     models.ScopeBoth,
		Outputs:   models.RuleOutputs{ActionID: intPtr(1)},
		ApplyTo:   models.ApplyToSelf,
		AutoApply: true,
	}
}

func TestEvaluateFirstFullMatchWins(t *testing.T) {
	e := NewEvaluator(zap.NewNop())

	rules := []models.Rule{catchAllRule(), investigateRule()}

	result := e.Evaluate(pivotContext(), rules, models.ScopeImport)
	require.True(t, result.Matched())

	// Both rules match; only the lower priority number may win
	assert.Equal(t, "pivot-unlinked", result.Rule.ID)
	assert.Equal(t, 7, *result.Rule.Outputs.ActionID)
	assert.Equal(t, "pivot-unlinked", result.Trace.WinnerID)
}

func TestEvaluatePrioritySwapChangesWinner(t *testing.T) {
	e := NewEvaluator(zap.NewNop())

	a := investigateRule()
	b := catchAllRule()
	a.Priority = 50
	b.Priority = 5

	result := e.Evaluate(pivotContext(), []models.Rule{a, b}, models.ScopeImport)
	require.True(t, result.Matched())
	assert.Equal(t, "default-catch-all", result.Rule.ID)
	assert.Equal(t, 1, *result.Rule.Outputs.ActionID)
}

func TestEvaluatePriorityTieBrokenByID(t *testing.T) {
	e := NewEvaluator(zap.NewNop())

	a := catchAllRule()
	a.ID = "bbb"
	b := catchAllRule()
	b.ID = "aaa"

	// Load order must not matter
	result := e.Evaluate(pivotContext(), []models.Rule{a, b}, models.ScopeImport)
	require.True(t, result.Matched())
	assert.Equal(t, "aaa", result.Rule.ID)

	result = e.Evaluate(pivotContext(), []models.Rule{b, a}, models.ScopeImport)
	require.True(t, result.Matched())
	assert.Equal(t, "aaa", result.Rule.ID)
}

func TestEvaluatePartialMatchDoesNotWin(t *testing.T) {
	e := NewEvaluator(zap.NewNop())

	rule := investigateRule()
	rule.Sign = models.StringCondition("D") // context has "C"

	result := e.Evaluate(pivotContext(), []models.Rule{rule}, models.ScopeImport)
	assert.False(t, result.Matched())
	assert.Empty(t, result.Trace.WinnerID)
}

func TestEvaluateDisabledRuleSkipped(t *testing.T) {
	e := NewEvaluator(zap.NewNop())

	disabled := investigateRule()
	disabled.Enabled = false

	result := e.Evaluate(pivotContext(), []models.Rule{disabled, catchAllRule()}, models.ScopeImport)
	require.True(t, result.Matched())
	assert.Equal(t, "default-catch-all", result.Rule.ID)

	// The disabled rule still appears in the trace, unevaluated
	require.Len(t, result.Trace.Entries, 2)
	assert.Equal(t, "pivot-unlinked", result.Trace.Entries[0].RuleID)
	assert.False(t, result.Trace.Entries[0].Enabled)
	assert.Empty(t, result.Trace.Entries[0].Conditions)
}

func TestEvaluateScopeFilter(t *testing.T) {
	e := NewEvaluator(zap.NewNop())

	editOnly := investigateRule()
	editOnly.Scope = models.ScopeEdit

	result := e.Evaluate(pivotContext(), []models.Rule{editOnly}, models.ScopeImport)
	assert.False(t, result.Matched())

	result = e.Evaluate(pivotContext(), []models.Rule{editOnly}, models.ScopeEdit)
	assert.True(t, result.Matched())
}

func TestEvaluateRangeConditionOnMissingFact(t *testing.T) {
	e := NewEvaluator(zap.NewNop())

	aged := catchAllRule()
	aged.ID = "trigger-aged"
	aged.DaysSinceTrigger = models.AtLeast(11)

	// Context has no trigger date, so no day count
	ectx := pivotContext()
	result := e.Evaluate(ectx, []models.Rule{aged}, models.ScopeImport)
	assert.False(t, result.Matched())

	ectx.DaysSinceTrigger = intPtr(30)
	result = e.Evaluate(ectx, []models.Rule{aged}, models.ScopeImport)
	assert.True(t, result.Matched())
}

func TestEvaluateCurrentActionCondition(t *testing.T) {
	e := NewEvaluator(zap.NewNop())

	rule := catchAllRule()
	rule.CurrentActionID = intPtr(8)

	ectx := pivotContext()
	result := e.Evaluate(ectx, []models.Rule{rule}, models.ScopeImport)
	assert.False(t, result.Matched())

	ectx.CurrentActionID = intPtr(8)
	result = e.Evaluate(ectx, []models.Rule{rule}, models.ScopeImport)
	assert.True(t, result.Matched())
}

func TestEvaluateTraceRecordsConditions(t *testing.T) {
	e := NewEvaluator(zap.NewNop())

	result := e.Evaluate(pivotContext(), []models.Rule{investigateRule()}, models.ScopeImport)
	require.True(t, result.Matched())

	require.Len(t, result.Trace.Entries, 1)
	entry := result.Trace.Entries[0]
	assert.True(t, entry.Matched)
	require.Len(t, entry.Conditions, 2)

	byField := make(map[string]models.ConditionCheck)
	for _, check := range entry.Conditions {
		byField[check.Field] = check
	}

	side := byField["account_side"]
	assert.Equal(t, "P", side.Expected)
	assert.Equal(t, "P", side.Actual)
	assert.True(t, side.Satisfied)

	link := byField["has_dwings_link"]
	assert.Equal(t, "false", link.Expected)
	assert.Equal(t, "false", link.Actual)
	assert.True(t, link.Satisfied)
}

func TestEvaluateStopsAtWinner(t *testing.T) {
	e := NewEvaluator(zap.NewNop())

	rules := []models.Rule{investigateRule(), catchAllRule()}

	result := e.Evaluate(pivotContext(), rules, models.ScopeImport)
	require.True(t, result.Matched())

	// Non-diagnostic evaluation does not look past the winner
	require.Len(t, result.Trace.Entries, 1)
	assert.Equal(t, "pivot-unlinked", result.Trace.Entries[0].RuleID)
}

func TestEvaluateDiagnosticCoversAllRules(t *testing.T) {
	e := NewEvaluator(zap.NewNop())

	rules := []models.Rule{investigateRule(), catchAllRule()}

	result := e.EvaluateDiagnostic(pivotContext(), rules, models.ScopeImport)
	require.True(t, result.Matched())
	assert.Equal(t, "pivot-unlinked", result.Rule.ID)

	// Diagnostic mode evaluates past the winner
	require.Len(t, result.Trace.Entries, 2)
	assert.True(t, result.Trace.Entries[0].Matched)
	assert.True(t, result.Trace.Entries[1].Matched)
	assert.Equal(t, "pivot-unlinked", result.Trace.WinnerID)
}

func TestEvaluateDeterministic(t *testing.T) {
	e := NewEvaluator(zap.NewNop())

	rules := []models.Rule{catchAllRule(), investigateRule()}
	ectx := pivotContext()

	first := e.Evaluate(ectx, rules, models.ScopeImport)
	for i := 0; i < 10; i++ {
		again := e.Evaluate(ectx, rules, models.ScopeImport)
		assert.Equal(t, first.Rule.ID, again.Rule.ID)
		assert.Equal(t, first.Trace, again.Trace)
	}
}

func TestEvaluateEmptyRuleSet(t *testing.T) {
	e := NewEvaluator(zap.NewNop())

	result := e.Evaluate(pivotContext(), nil, models.ScopeImport)
	assert.False(t, result.Matched())
	assert.Empty(t, result.Trace.Entries)
}
