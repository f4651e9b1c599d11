package models

import (
	"time"
)

// EvaluationContext is the read-only fact set derived for one line. It is
// built once per line per run and never mutated afterwards; every fact is
// derived against the single batch evaluation instant so that repeated
// evaluation within one run is reproducible.
type EvaluationContext struct {
	LineID    string `json:"line_id"`
	CountryID string `json:"country_id"`

	AccountSide     string `json:"account_side"` // "P", "R"
	GuaranteeType   string `json:"guarantee_type"`
	TransactionType string `json:"transaction_type"`
	Sign            string `json:"sign"`

	HasDwingsLink      bool `json:"has_dwings_link"`
	IsGrouped          bool `json:"is_grouped"`
	IsAmountMatch      bool `json:"is_amount_match"`
	MTStatusAcked      bool `json:"mt_status_acked"`
	CommIDEmail        bool `json:"comm_id_email"`
	BgiStatusInitiated bool `json:"bgi_status_initiated"`
	TriggerDateIsNull  bool `json:"trigger_date_is_null"`
	IsTransitory       bool `json:"is_transitory"`
	IsMatched          bool `json:"is_matched"`
	HasManualMatch     bool `json:"has_manual_match"`
	IsFirstRequest     bool `json:"is_first_request"`

	// Day-count facts; nil when the underlying timestamp is absent
	DaysSinceTrigger  *int `json:"days_since_trigger,omitempty"`
	OperationDaysAgo  *int `json:"operation_days_ago,omitempty"`
	DaysSinceReminder *int `json:"days_since_reminder,omitempty"`

	CurrentActionID      *int   `json:"current_action_id,omitempty"`
	PaymentRequestStatus string `json:"payment_request_status"`

	// Backward reference for counterpart output application; "" when the
	// line has no cleanly matched counterpart
	CounterpartID string `json:"counterpart_id"`

	EvaluatedAt time.Time `json:"evaluated_at"`
}

// HasCounterpart reports whether outputs can propagate to a counterpart line
func (c *EvaluationContext) HasCounterpart() bool {
	return c.CounterpartID != ""
}
