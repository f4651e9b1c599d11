package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"recon-rules/internal/models"
)

func boolPtr(v bool) *bool { return &v }

func TestApplyPartialOutputsOnlyTouchDeclaredFields(t *testing.T) {
	a := NewApplier(zap.NewNop())

	rule := investigateRule()
	rule.Outputs = models.RuleOutputs{KpiID: intPtr(3)}

	mutations := a.Apply(&rule, pivotContext(), testRefs(), testNow)
	require.Len(t, mutations, 1)

	m := mutations[0]
	assert.Equal(t, "l-1", m.LineID)
	assert.Equal(t, rule.ID, m.RuleID)
	assert.True(t, m.SetKpiID)
	assert.Equal(t, 3, *m.KpiID)

	// Everything the rule does not set stays untouched
	assert.False(t, m.SetActionID)
	assert.False(t, m.SetActionStatus)
	assert.False(t, m.SetActionDate)
	assert.False(t, m.SetIncidentTypeID)
	assert.False(t, m.SetRiskyItem)
	assert.False(t, m.SetToRemind)
	assert.False(t, m.SetToRemindDate)
	assert.False(t, m.SetFirstClaimDate)
}

func TestApplyActionSetsPendingStatus(t *testing.T) {
	a := NewApplier(zap.NewNop())

	rule := investigateRule()

	mutations := a.Apply(&rule, pivotContext(), testRefs(), testNow)
	require.Len(t, mutations, 1)

	m := mutations[0]
	require.True(t, m.SetActionID)
	assert.Equal(t, 7, *m.ActionID)
	require.True(t, m.SetActionStatus)
	assert.Equal(t, models.ActionStatusPending, *m.ActionStatus)
	require.True(t, m.SetActionDate)
	assert.Equal(t, testNow, *m.ActionDate)
}

func TestApplyNAActionClearsStatus(t *testing.T) {
	a := NewApplier(zap.NewNop())

	rule := investigateRule()
	rule.Outputs = models.RuleOutputs{ActionID: intPtr(0)} // N/A sentinel

	mutations := a.Apply(&rule, pivotContext(), testRefs(), testNow)
	require.Len(t, mutations, 1)

	m := mutations[0]
	require.True(t, m.SetActionID)
	assert.Equal(t, 0, *m.ActionID)

	// Status and date are written to null, not left alone
	assert.True(t, m.SetActionStatus)
	assert.Nil(t, m.ActionStatus)
	assert.True(t, m.SetActionDate)
	assert.Nil(t, m.ActionDate)
}

func TestApplyToRemindDays(t *testing.T) {
	a := NewApplier(zap.NewNop())

	rule := investigateRule()
	rule.Outputs = models.RuleOutputs{ToRemindDays: intPtr(14)}

	mutations := a.Apply(&rule, pivotContext(), testRefs(), testNow)
	require.Len(t, mutations, 1)

	m := mutations[0]
	require.True(t, m.SetToRemind)
	assert.True(t, m.ToRemind)
	require.True(t, m.SetToRemindDate)
	assert.Equal(t, testNow.AddDate(0, 0, 14), *m.ToRemindDate)
}

func TestApplyToRemindFalseClearsDate(t *testing.T) {
	a := NewApplier(zap.NewNop())

	rule := investigateRule()
	rule.Outputs = models.RuleOutputs{ToRemind: boolPtr(false)}

	mutations := a.Apply(&rule, pivotContext(), testRefs(), testNow)
	require.Len(t, mutations, 1)

	m := mutations[0]
	require.True(t, m.SetToRemind)
	assert.False(t, m.ToRemind)
	assert.True(t, m.SetToRemindDate)
	assert.Nil(t, m.ToRemindDate)
}

func TestApplyFirstClaimToday(t *testing.T) {
	a := NewApplier(zap.NewNop())

	rule := investigateRule()
	rule.Outputs = models.RuleOutputs{FirstClaimToday: boolPtr(true)}

	mutations := a.Apply(&rule, pivotContext(), testRefs(), testNow)
	require.Len(t, mutations, 1)

	m := mutations[0]
	require.True(t, m.SetFirstClaimDate)
	assert.Equal(t, testNow, *m.FirstClaimDate)
}

func TestApplyCounterpartTargets(t *testing.T) {
	a := NewApplier(zap.NewNop())

	ectx := pivotContext()
	ectx.CounterpartID = "l-2"

	rule := investigateRule()
	rule.ApplyTo = models.ApplyToCounterpart

	mutations := a.Apply(&rule, ectx, testRefs(), testNow)
	require.Len(t, mutations, 1)
	assert.Equal(t, "l-2", mutations[0].LineID)

	rule.ApplyTo = models.ApplyToBoth
	mutations = a.Apply(&rule, ectx, testRefs(), testNow)
	require.Len(t, mutations, 2)
	assert.Equal(t, "l-1", mutations[0].LineID)
	assert.Equal(t, "l-2", mutations[1].LineID)
}

func TestApplyCounterpartWithoutCounterpartIsNoOp(t *testing.T) {
	a := NewApplier(zap.NewNop())

	rule := investigateRule()
	rule.ApplyTo = models.ApplyToCounterpart

	mutations := a.Apply(&rule, pivotContext(), testRefs(), testNow)
	assert.Empty(t, mutations)

	// Both degrades to self-only
	rule.ApplyTo = models.ApplyToBoth
	mutations = a.Apply(&rule, pivotContext(), testRefs(), testNow)
	require.Len(t, mutations, 1)
	assert.Equal(t, "l-1", mutations[0].LineID)
}

func TestApplyEmptyOutputsProduceNoMutations(t *testing.T) {
	a := NewApplier(zap.NewNop())

	rule := investigateRule()
	rule.Outputs = models.RuleOutputs{}

	mutations := a.Apply(&rule, pivotContext(), testRefs(), testNow)
	assert.Empty(t, mutations)
}

func TestMutationMergePreservesUntouchedFields(t *testing.T) {
	a := NewApplier(zap.NewNop())

	existingKpi := 9
	risky := true
	line := models.ReconciliationLine{
		ID:        "l-1",
		KpiID:     &existingKpi,
		RiskyItem: &risky,
	}

	rule := investigateRule()
	mutations := a.Apply(&rule, pivotContext(), testRefs(), testNow)
	require.Len(t, mutations, 1)

	mutations[0].MergeInto(&line)

	require.NotNil(t, line.ActionID)
	assert.Equal(t, 7, *line.ActionID)
	// Prior classification fields the rule did not set survive
	require.NotNil(t, line.KpiID)
	assert.Equal(t, 9, *line.KpiID)
	require.NotNil(t, line.RiskyItem)
	assert.True(t, *line.RiskyItem)
}
