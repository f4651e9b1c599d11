package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RuleScope determines when a rule is eligible to fire
type RuleScope string

const (
	ScopeImport RuleScope = "import"
	ScopeEdit   RuleScope = "edit"
	ScopeBoth   RuleScope = "both"
)

// Valid reports whether the scope is one of the known values
func (s RuleScope) Valid() bool {
	switch s {
	case ScopeImport, ScopeEdit, ScopeBoth:
		return true
	}
	return false
}

// ApplyTarget determines which line(s) of a matched pair receive a winning
// rule's outputs
type ApplyTarget string

const (
	ApplyToSelf        ApplyTarget = "self"
	ApplyToCounterpart ApplyTarget = "counterpart"
	ApplyToBoth        ApplyTarget = "both"
)

// Account sides of the reconciliation
const (
	SidePivot      = "P"
	SideReceivable = "R"
)

// Wildcard is the explicit "don't care" marker for string conditions
const Wildcard = "*"

// StringCondition matches a string fact exactly (case-insensitive), or
// anything when empty or set to the wildcard marker.
type StringCondition string

// IsWildcard reports whether the condition matches any value
func (c StringCondition) IsWildcard() bool {
	return c == "" || c == Wildcard
}

// Matches reports whether the actual value satisfies the condition
func (c StringCondition) Matches(actual string) bool {
	if c.IsWildcard() {
		return true
	}
	return strings.EqualFold(string(c), actual)
}

// String returns the stored condition value, or the wildcard marker
func (c StringCondition) String() string {
	if c.IsWildcard() {
		return Wildcard
	}
	return string(c)
}

// BoolCondition is a tri-state match condition on a boolean fact.
// An unset condition matches any value.
type BoolCondition struct {
	Set  bool
	Want bool
}

// BoolEquals builds a concrete boolean condition
func BoolEquals(want bool) BoolCondition {
	return BoolCondition{Set: true, Want: want}
}

// IsWildcard reports whether the condition matches any value
func (c BoolCondition) IsWildcard() bool {
	return !c.Set
}

// Matches reports whether the actual value satisfies the condition
func (c BoolCondition) Matches(actual bool) bool {
	return !c.Set || c.Want == actual
}

// String renders the condition for traces and summaries
func (c BoolCondition) String() string {
	if !c.Set {
		return Wildcard
	}
	return fmt.Sprintf("%t", c.Want)
}

// MarshalJSON encodes the condition as true, false, or null
func (c BoolCondition) MarshalJSON() ([]byte, error) {
	if !c.Set {
		return []byte("null"), nil
	}
	return json.Marshal(c.Want)
}

// UnmarshalJSON decodes true, false, or null
func (c *BoolCondition) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*c = BoolCondition{}
		return nil
	}
	var v bool
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*c = BoolCondition{Set: true, Want: v}
	return nil
}

// Scan implements sql.Scanner for nullable boolean columns
func (c *BoolCondition) Scan(src interface{}) error {
	if src == nil {
		*c = BoolCondition{}
		return nil
	}
	v, ok := src.(bool)
	if !ok {
		return fmt.Errorf("cannot scan %T into BoolCondition", src)
	}
	*c = BoolCondition{Set: true, Want: v}
	return nil
}

// Value implements driver.Valuer for nullable boolean columns
func (c BoolCondition) Value() (driver.Value, error) {
	if !c.Set {
		return nil, nil
	}
	return c.Want, nil
}

// IntRange bounds an integer fact inclusively. A nil bound is open on that
// side; a range with both bounds unset matches any value. A range with any
// bound set never matches a missing fact.
type IntRange struct {
	Min *int `json:"min,omitempty"`
	Max *int `json:"max,omitempty"`
}

// Between builds a fully bounded range
func Between(min, max int) IntRange {
	return IntRange{Min: &min, Max: &max}
}

// AtLeast builds a range open on the upper side
func AtLeast(min int) IntRange {
	return IntRange{Min: &min}
}

// AtMost builds a range open on the lower side
func AtMost(max int) IntRange {
	return IntRange{Max: &max}
}

// IsWildcard reports whether the range matches any value
func (r IntRange) IsWildcard() bool {
	return r.Min == nil && r.Max == nil
}

// Matches reports whether the actual value satisfies the range. A bounded
// range cannot be proven for a missing value, so nil never matches.
func (r IntRange) Matches(actual *int) bool {
	if r.IsWildcard() {
		return true
	}
	if actual == nil {
		return false
	}
	if r.Min != nil && *actual < *r.Min {
		return false
	}
	if r.Max != nil && *actual > *r.Max {
		return false
	}
	return true
}

// String renders the range for traces and summaries
func (r IntRange) String() string {
	if r.IsWildcard() {
		return Wildcard
	}
	lo, hi := "-inf", "+inf"
	if r.Min != nil {
		lo = fmt.Sprintf("%d", *r.Min)
	}
	if r.Max != nil {
		hi = fmt.Sprintf("%d", *r.Max)
	}
	return fmt.Sprintf("[%s, %s]", lo, hi)
}

// Rule is one row of the reconciliation decision table: a prioritized set of
// match conditions plus the outputs applied when every declared condition is
// satisfied. The first enabled, in-scope rule whose conditions all hold wins;
// later rules are never merged in.
type Rule struct {
	ID       string    `json:"id"`
	Message  string    `json:"message,omitempty"`
	Enabled  bool      `json:"enabled"`
	Priority int       `json:"priority"` // lower evaluates first
	Scope    RuleScope `json:"scope"`

	// Exact-match conditions
	AccountSide     StringCondition `json:"account_side"`
	GuaranteeType   StringCondition `json:"guarantee_type"`
	TransactionType StringCondition `json:"transaction_type"`
	Sign            StringCondition `json:"sign"`

	// Boolean conditions
	HasDwingsLink      BoolCondition `json:"has_dwings_link"`
	IsGrouped          BoolCondition `json:"is_grouped"`
	IsAmountMatch      BoolCondition `json:"is_amount_match"`
	MTStatusAcked      BoolCondition `json:"mt_status_acked"`
	CommIDEmail        BoolCondition `json:"comm_id_email"`
	BgiStatusInitiated BoolCondition `json:"bgi_status_initiated"`
	TriggerDateIsNull  BoolCondition `json:"trigger_date_is_null"`
	IsTransitory       BoolCondition `json:"is_transitory"`
	IsMatched          BoolCondition `json:"is_matched"`
	HasManualMatch     BoolCondition `json:"has_manual_match"`
	IsFirstRequest     BoolCondition `json:"is_first_request"`

	// Numeric range conditions
	DaysSinceTrigger  IntRange `json:"days_since_trigger"`
	OperationDaysAgo  IntRange `json:"operation_days_ago"`
	DaysSinceReminder IntRange `json:"days_since_reminder"`

	// Reference conditions
	CurrentActionID      *int    `json:"current_action_id,omitempty"`
	PaymentRequestStatus *string `json:"payment_request_status,omitempty"`

	Outputs RuleOutputs `json:"outputs"`

	ApplyTo   ApplyTarget `json:"apply_to"`
	AutoApply bool        `json:"auto_apply"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the administrative invariants of a rule
func (r *Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("rule id is required")
	}
	if !r.Scope.Valid() {
		return fmt.Errorf("invalid rule scope: %q", r.Scope)
	}
	switch r.ApplyTo {
	case ApplyToSelf, ApplyToCounterpart, ApplyToBoth:
	default:
		return fmt.Errorf("invalid apply_to target: %q", r.ApplyTo)
	}
	return nil
}

// InScope reports whether the rule may fire for the requested scope
func (r *Rule) InScope(scope RuleScope) bool {
	return r.Scope == ScopeBoth || r.Scope == scope
}

// RuleOutputs holds the optional field writes a matched rule performs.
// Unset outputs leave the corresponding line field untouched.
type RuleOutputs struct {
	ActionID         *int  `json:"action_id,omitempty"`
	KpiID            *int  `json:"kpi_id,omitempty"`
	IncidentTypeID   *int  `json:"incident_type_id,omitempty"`
	RiskyItem        *bool `json:"risky_item,omitempty"`
	ReasonNonRiskyID *int  `json:"reason_non_risky_id,omitempty"`
	ToRemind         *bool `json:"to_remind,omitempty"`
	ToRemindDays     *int  `json:"to_remind_days,omitempty"`
	FirstClaimToday  *bool `json:"first_claim_today,omitempty"`
}

// IsEmpty reports whether the rule sets no outputs at all
func (o RuleOutputs) IsEmpty() bool {
	return o.ActionID == nil && o.KpiID == nil && o.IncidentTypeID == nil &&
		o.RiskyItem == nil && o.ReasonNonRiskyID == nil && o.ToRemind == nil &&
		o.ToRemindDays == nil && o.FirstClaimToday == nil
}

// Summary renders a compact human-readable description of the outputs,
// resolving referential identifiers to display names where possible
func (o RuleOutputs) Summary(refs *Referentials) string {
	var parts []string
	if o.ActionID != nil {
		parts = append(parts, fmt.Sprintf("action=%s", refs.ActionName(*o.ActionID)))
	}
	if o.KpiID != nil {
		parts = append(parts, fmt.Sprintf("kpi=%s", refs.KpiName(*o.KpiID)))
	}
	if o.IncidentTypeID != nil {
		parts = append(parts, fmt.Sprintf("incident=%s", refs.IncidentTypeName(*o.IncidentTypeID)))
	}
	if o.RiskyItem != nil {
		parts = append(parts, fmt.Sprintf("risky=%t", *o.RiskyItem))
	}
	if o.ReasonNonRiskyID != nil {
		parts = append(parts, fmt.Sprintf("reason_non_risky=%d", *o.ReasonNonRiskyID))
	}
	if o.ToRemindDays != nil {
		parts = append(parts, fmt.Sprintf("remind_in=%dd", *o.ToRemindDays))
	} else if o.ToRemind != nil {
		parts = append(parts, fmt.Sprintf("to_remind=%t", *o.ToRemind))
	}
	if o.FirstClaimToday != nil && *o.FirstClaimToday {
		parts = append(parts, "first_claim=today")
	}
	if len(parts) == 0 {
		return "no outputs"
	}
	return strings.Join(parts, ", ")
}
