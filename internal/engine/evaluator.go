package engine

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"recon-rules/internal/models"
)

// Evaluator finds the single winning rule for a context using
// first-full-match semantics: rules are considered in ascending priority
// (ties broken by identifier), a rule matches only when every declared
// condition is satisfied, and the first match wins. Later rules are never
// merged in, even if they would also match. Evaluation is a pure function
// of (context, rules, scope): no hidden state, no randomness.
type Evaluator struct {
	logger *zap.Logger
}

// NewEvaluator creates a new evaluator
func NewEvaluator(logger *zap.Logger) *Evaluator {
	return &Evaluator{logger: logger}
}

// EvalResult carries the winning rule (nil when the line stays unclassified)
// and the audit trace. Whether to clear or keep prior outputs on a
// no-match is the caller's policy, not the evaluator's.
type EvalResult struct {
	Rule  *models.Rule
	Trace models.EvaluationTrace
}

// Matched reports whether a rule won
func (r *EvalResult) Matched() bool {
	return r.Rule != nil
}

// Evaluate finds the winning rule, recording the trace up to and including
// the winner
func (e *Evaluator) Evaluate(ectx *models.EvaluationContext, rules []models.Rule, scope models.RuleScope) *EvalResult {
	return e.run(ectx, rules, scope, false)
}

// EvaluateDiagnostic evaluates every eligible rule even after a winner is
// found, so the full decision table can be inspected for one line
func (e *Evaluator) EvaluateDiagnostic(ectx *models.EvaluationContext, rules []models.Rule, scope models.RuleScope) *EvalResult {
	return e.run(ectx, rules, scope, true)
}

func (e *Evaluator) run(ectx *models.EvaluationContext, rules []models.Rule, scope models.RuleScope, diagnostic bool) *EvalResult {
	start := time.Now()
	defer func() {
		e.logger.Debug("evaluation completed",
			zap.Duration("duration", time.Since(start)),
			zap.String("line_id", ectx.LineID),
			zap.String("scope", string(scope)))
	}()

	result := &EvalResult{
		Trace: models.EvaluationTrace{
			LineID:      ectx.LineID,
			Scope:       scope,
			EvaluatedAt: ectx.EvaluatedAt,
		},
	}

	ordered := orderRules(rules)

	for i := range ordered {
		rule := &ordered[i]

		entry := models.RuleTrace{
			RuleID:   rule.ID,
			Priority: rule.Priority,
			Enabled:  rule.Enabled,
			InScope:  rule.InScope(scope),
		}

		if !rule.Enabled || !entry.InScope {
			result.Trace.Entries = append(result.Trace.Entries, entry)
			continue
		}

		entry.Matched, entry.Conditions = checkRule(rule, ectx)
		result.Trace.Entries = append(result.Trace.Entries, entry)

		if !entry.Matched {
			continue
		}

		if result.Rule == nil {
			result.Rule = rule
			result.Trace.WinnerID = rule.ID
			if !diagnostic {
				break
			}
			continue
		}

		// Defensive: with strict first-match ordering a second winner cannot
		// decide anything, but a same-priority double match is a data
		// quality signal worth surfacing
		if diagnostic && rule.Priority == result.Rule.Priority {
			e.logger.Warn("multiple rules match at the same priority",
				zap.String("line_id", ectx.LineID),
				zap.String("winner", result.Rule.ID),
				zap.String("also_matched", rule.ID),
				zap.Int("priority", rule.Priority))
		}
	}

	return result
}

// orderRules returns the rules sorted by priority ascending, with ties
// broken by identifier so evaluation order never depends on load order
func orderRules(rules []models.Rule) []models.Rule {
	ordered := make([]models.Rule, len(rules))
	copy(ordered, rules)

	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority < ordered[j].Priority
		}
		return ordered[i].ID < ordered[j].ID
	})

	return ordered
}

// checkRule evaluates every declared condition field-by-field. Wildcard and
// unset conditions are skipped; the rule matches only when all declared
// conditions hold.
func checkRule(rule *models.Rule, ectx *models.EvaluationContext) (bool, []models.ConditionCheck) {
	var checks []models.ConditionCheck
	matched := true

	record := func(field, expected, actual string, satisfied bool) {
		checks = append(checks, models.ConditionCheck{
			Field:     field,
			Expected:  expected,
			Actual:    actual,
			Satisfied: satisfied,
		})
		if !satisfied {
			matched = false
		}
	}

	checkString := func(field string, cond models.StringCondition, actual string) {
		if cond.IsWildcard() {
			return
		}
		record(field, cond.String(), actual, cond.Matches(actual))
	}

	checkBool := func(field string, cond models.BoolCondition, actual bool) {
		if cond.IsWildcard() {
			return
		}
		record(field, cond.String(), fmt.Sprintf("%t", actual), cond.Matches(actual))
	}

	checkRange := func(field string, cond models.IntRange, actual *int) {
		if cond.IsWildcard() {
			return
		}
		record(field, cond.String(), formatNullableInt(actual), cond.Matches(actual))
	}

	checkString("account_side", rule.AccountSide, ectx.AccountSide)
	checkString("guarantee_type", rule.GuaranteeType, ectx.GuaranteeType)
	checkString("transaction_type", rule.TransactionType, ectx.TransactionType)
	checkString("sign", rule.Sign, ectx.Sign)

	checkBool("has_dwings_link", rule.HasDwingsLink, ectx.HasDwingsLink)
	checkBool("is_grouped", rule.IsGrouped, ectx.IsGrouped)
	checkBool("is_amount_match", rule.IsAmountMatch, ectx.IsAmountMatch)
	checkBool("mt_status_acked", rule.MTStatusAcked, ectx.MTStatusAcked)
	checkBool("comm_id_email", rule.CommIDEmail, ectx.CommIDEmail)
	checkBool("bgi_status_initiated", rule.BgiStatusInitiated, ectx.BgiStatusInitiated)
	checkBool("trigger_date_is_null", rule.TriggerDateIsNull, ectx.TriggerDateIsNull)
	checkBool("is_transitory", rule.IsTransitory, ectx.IsTransitory)
	checkBool("is_matched", rule.IsMatched, ectx.IsMatched)
	checkBool("has_manual_match", rule.HasManualMatch, ectx.HasManualMatch)
	checkBool("is_first_request", rule.IsFirstRequest, ectx.IsFirstRequest)

	checkRange("days_since_trigger", rule.DaysSinceTrigger, ectx.DaysSinceTrigger)
	checkRange("operation_days_ago", rule.OperationDaysAgo, ectx.OperationDaysAgo)
	checkRange("days_since_reminder", rule.DaysSinceReminder, ectx.DaysSinceReminder)

	if rule.CurrentActionID != nil {
		satisfied := ectx.CurrentActionID != nil && *ectx.CurrentActionID == *rule.CurrentActionID
		record("current_action_id",
			fmt.Sprintf("%d", *rule.CurrentActionID),
			formatNullableInt(ectx.CurrentActionID),
			satisfied)
	}

	if rule.PaymentRequestStatus != nil {
		cond := models.StringCondition(*rule.PaymentRequestStatus)
		if !cond.IsWildcard() {
			record("payment_request_status", cond.String(), ectx.PaymentRequestStatus,
				cond.Matches(ectx.PaymentRequestStatus))
		}
	}

	return matched, checks
}

func formatNullableInt(v *int) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%d", *v)
}
