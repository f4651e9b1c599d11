package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringConditionWildcard(t *testing.T) {
	assert.True(t, StringCondition("").Matches("anything"))
	assert.True(t, StringCondition("*").Matches("anything"))
	assert.True(t, StringCondition("").Matches(""))
	assert.True(t, StringCondition("").IsWildcard())
	assert.True(t, StringCondition("*").IsWildcard())
	assert.False(t, StringCondition("P").IsWildcard())
}

func TestStringConditionCaseInsensitive(t *testing.T) {
	cond := StringCondition("reissuance")

	assert.True(t, cond.Matches("REISSUANCE"))
	assert.True(t, cond.Matches("Reissuance"))
	assert.True(t, cond.Matches("reissuance"))
	assert.False(t, cond.Matches("issuance"))
	assert.False(t, cond.Matches(""))
}

func TestBoolConditionTriState(t *testing.T) {
	unset := BoolCondition{}
	assert.True(t, unset.Matches(true))
	assert.True(t, unset.Matches(false))

	wantTrue := BoolEquals(true)
	assert.True(t, wantTrue.Matches(true))
	assert.False(t, wantTrue.Matches(false))

	wantFalse := BoolEquals(false)
	assert.False(t, wantFalse.Matches(true))
	assert.True(t, wantFalse.Matches(false))
}

func TestBoolConditionJSON(t *testing.T) {
	tests := []struct {
		name string
		cond BoolCondition
		json string
	}{
		{"unset", BoolCondition{}, "null"},
		{"true", BoolEquals(true), "true"},
		{"false", BoolEquals(false), "false"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.cond)
			require.NoError(t, err)
			assert.Equal(t, tt.json, string(data))

			var decoded BoolCondition
			require.NoError(t, json.Unmarshal([]byte(tt.json), &decoded))
			assert.Equal(t, tt.cond, decoded)
		})
	}
}

func TestBoolConditionScan(t *testing.T) {
	var cond BoolCondition
	require.NoError(t, cond.Scan(nil))
	assert.True(t, cond.IsWildcard())

	require.NoError(t, cond.Scan(true))
	assert.Equal(t, BoolEquals(true), cond)

	v, err := cond.Value()
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = BoolCondition{}.Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestIntRangeInclusiveBounds(t *testing.T) {
	r := Between(5, 10)

	five := 5
	ten := 10
	four := 4
	eleven := 11

	assert.True(t, r.Matches(&five))
	assert.True(t, r.Matches(&ten))
	assert.False(t, r.Matches(&four))
	assert.False(t, r.Matches(&eleven))
}

func TestIntRangeOpenBounds(t *testing.T) {
	big := 100000
	negative := -5
	zero := 0

	atLeast := AtLeast(11)
	assert.True(t, atLeast.Matches(&big))
	assert.False(t, atLeast.Matches(&zero))

	atMost := AtMost(0)
	assert.True(t, atMost.Matches(&negative))
	assert.True(t, atMost.Matches(&zero))
	assert.False(t, atMost.Matches(&big))
}

func TestIntRangeMissingFactNeverMatches(t *testing.T) {
	// A bounded condition cannot be proven true for missing data
	assert.False(t, Between(5, 10).Matches(nil))
	assert.False(t, AtLeast(0).Matches(nil))
	assert.False(t, AtMost(100).Matches(nil))

	// An unbounded range is no condition at all
	assert.True(t, IntRange{}.Matches(nil))
}

func TestRuleValidate(t *testing.T) {
	valid := Rule{
		ID:      "r-1",
		Scope:   ScopeImport,
		ApplyTo: ApplyToSelf,
	}
	assert.NoError(t, valid.Validate())

	noID := valid
	noID.ID = ""
	assert.Error(t, noID.Validate())

	badScope := valid
	badScope.Scope = "always"
	assert.Error(t, badScope.Validate())

	badTarget := valid
	badTarget.ApplyTo = "other"
	assert.Error(t, badTarget.Validate())
}

func TestRuleInScope(t *testing.T) {
	importRule := Rule{Scope: ScopeImport}
	editRule := Rule{Scope: ScopeEdit}
	bothRule := Rule{Scope: ScopeBoth}

	assert.True(t, importRule.InScope(ScopeImport))
	assert.False(t, importRule.InScope(ScopeEdit))
	assert.False(t, editRule.InScope(ScopeImport))
	assert.True(t, editRule.InScope(ScopeEdit))
	assert.True(t, bothRule.InScope(ScopeImport))
	assert.True(t, bothRule.InScope(ScopeEdit))
}

func TestRuleOutputsSummary(t *testing.T) {
	refs := &Referentials{
		Actions:       map[int]string{7: "INVESTIGATE"},
		Kpis:          map[int]string{3: "IT_ISSUES"},
		IncidentTypes: map[int]string{},
		NAActionID:    0,
	}

	action := 7
	kpi := 3
	days := 14
	out := RuleOutputs{
		ActionID:     &action,
		KpiID:        &kpi,
		ToRemindDays: &days,
	}

	summary := out.Summary(refs)
	assert.Contains(t, summary, "action=INVESTIGATE")
	assert.Contains(t, summary, "kpi=IT_ISSUES")
	assert.Contains(t, summary, "remind_in=14d")

	assert.Equal(t, "no outputs", RuleOutputs{}.Summary(refs))
	assert.True(t, RuleOutputs{}.IsEmpty())
	assert.False(t, out.IsEmpty())
}

func TestRuleJSONRoundTrip(t *testing.T) {
	action := 2
	rule := Rule{
		ID:            "matched-pair-clear",
		Enabled:       true,
		Priority:      5,
		Scope:         ScopeBoth,
		AccountSide:   StringCondition("P"),
		IsMatched:     BoolEquals(true),
		IsAmountMatch: BoolEquals(true),
		Outputs:       RuleOutputs{ActionID: &action},
		ApplyTo:       ApplyToBoth,
		AutoApply:     true,
	}

	data, err := json.Marshal(rule)
	require.NoError(t, err)

	var decoded Rule
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, rule.ID, decoded.ID)
	assert.Equal(t, rule.Priority, decoded.Priority)
	assert.Equal(t, rule.IsMatched, decoded.IsMatched)
	// Unset boolean conditions survive as wildcards, not as false
	assert.True(t, decoded.HasDwingsLink.IsWildcard())
	require.NotNil(t, decoded.Outputs.ActionID)
	assert.Equal(t, action, *decoded.Outputs.ActionID)
}
