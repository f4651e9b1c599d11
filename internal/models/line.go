package models

import (
	"time"
)

// ReconciliationLine is one accounting line as consumed from the
// persistence/import collaborator, including its current classification state
type ReconciliationLine struct {
	ID        string  `json:"id" db:"id"`
	CountryID string  `json:"country_id" db:"country_id"`
	AccountID string  `json:"account_id" db:"account_id"`
	Amount    float64 `json:"amount" db:"amount"` // signed
	Currency  string  `json:"currency" db:"currency"`
	Sign      string  `json:"sign" db:"sign"` // "C" credit, "D" debit

	OperationDate  *time.Time `json:"operation_date,omitempty" db:"operation_date"`
	TriggerDate    *time.Time `json:"trigger_date,omitempty" db:"trigger_date"`
	LastReminderAt *time.Time `json:"last_reminder_at,omitempty" db:"last_reminder_at"`

	// DWINGS identifiers; any one present links the line
	GuaranteeID  *string `json:"guarantee_id,omitempty" db:"guarantee_id"`
	InvoiceID    *string `json:"invoice_id,omitempty" db:"invoice_id"`
	CommissionID *string `json:"commission_id,omitempty" db:"commission_id"`

	TransactionType *string `json:"transaction_type,omitempty" db:"transaction_type"`
	IsTransitory    bool    `json:"is_transitory" db:"is_transitory"`
	HasManualMatch  bool    `json:"has_manual_match" db:"has_manual_match"`

	// Current classification state
	ActionID         *int       `json:"action_id,omitempty" db:"action_id"`
	ActionStatus     *string    `json:"action_status,omitempty" db:"action_status"`
	ActionDate       *time.Time `json:"action_date,omitempty" db:"action_date"`
	KpiID            *int       `json:"kpi_id,omitempty" db:"kpi_id"`
	IncidentTypeID   *int       `json:"incident_type_id,omitempty" db:"incident_type_id"`
	RiskyItem        *bool      `json:"risky_item,omitempty" db:"risky_item"`
	ReasonNonRiskyID *int       `json:"reason_non_risky_id,omitempty" db:"reason_non_risky_id"`
	ToRemind         bool       `json:"to_remind" db:"to_remind"`
	ToRemindDate     *time.Time `json:"to_remind_date,omitempty" db:"to_remind_date"`
	FirstClaimDate   *time.Time `json:"first_claim_date,omitempty" db:"first_claim_date"`

	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ActionStatusPending marks a line whose assigned action is awaiting handling
const ActionStatusPending = "PENDING"

// HasDwingsLink reports whether any guarantee, invoice, or commission
// identifier links the line to DWINGS
func (l *ReconciliationLine) HasDwingsLink() bool {
	return (l.GuaranteeID != nil && *l.GuaranteeID != "") ||
		(l.InvoiceID != nil && *l.InvoiceID != "") ||
		(l.CommissionID != nil && *l.CommissionID != "")
}

// Guarantee is the related DWINGS guarantee record, when resolvable
type Guarantee struct {
	ID            string     `json:"id" db:"id"`
	GuaranteeType string     `json:"guarantee_type" db:"guarantee_type"`
	MTStatus      *string    `json:"mt_status,omitempty" db:"mt_status"`
	IssueDate     *time.Time `json:"issue_date,omitempty" db:"issue_date"`
}

// MT status value that counts as acknowledged
const MTStatusAcked = "ACKED"

// Invoice is the related DWINGS invoice/payment-request record, when resolvable
type Invoice struct {
	ID                   string  `json:"id" db:"id"`
	PaymentRequestStatus *string `json:"payment_request_status,omitempty" db:"payment_request_status"`
	CommunicationChannel *string `json:"communication_channel,omitempty" db:"communication_channel"`
	BgiStatus            *string `json:"bgi_status,omitempty" db:"bgi_status"`
	IsFirstRequest       bool    `json:"is_first_request" db:"is_first_request"`
}

// Invoice status and channel values the context builder recognizes
const (
	CommChannelEmail   = "EMAIL"
	BgiStatusInitiated = "INITIATED"
)

// GroupingFact is the precomputed cross-ledger matching result supplied by
// the grouping collaborator. It is consumed as-is, never recomputed here.
type GroupingFact struct {
	LineID            string   `json:"line_id" db:"line_id"`
	CounterpartID     *string  `json:"counterpart_id,omitempty" db:"counterpart_id"`
	CounterpartAmount *float64 `json:"counterpart_amount,omitempty" db:"counterpart_amount"`
	CounterpartCount  int      `json:"counterpart_count" db:"counterpart_count"`
	IsMatched         bool     `json:"is_matched" db:"is_matched"`
	AmountMatch       bool     `json:"amount_match" db:"amount_match"`
}

// LineBundle joins one line with the related records the context builder
// needs. Secondary records are nil when they could not be resolved; that is
// not an error.
type LineBundle struct {
	Line      ReconciliationLine
	Guarantee *Guarantee
	Invoice   *Invoice
	Grouping  *GroupingFact
}

// CountryAccounts configures which account plays which ledger role for a country
type CountryAccounts struct {
	CountryID           string `json:"country_id" db:"country_id"`
	PivotAccountID      string `json:"pivot_account_id" db:"pivot_account_id"`
	ReceivableAccountID string `json:"receivable_account_id" db:"receivable_account_id"`
}

// Referentials holds the reference catalogs injected into the context builder
// and output applier. Catalogs are passed explicitly, never read from
// process-wide state.
type Referentials struct {
	CountryAccounts map[string]CountryAccounts `json:"country_accounts"`
	Actions         map[int]string             `json:"actions"`
	NAActionID      int                        `json:"na_action_id"`
	Kpis            map[int]string             `json:"kpis"`
	IncidentTypes   map[int]string             `json:"incident_types"`
}

// AccountSide resolves which ledger side an account plays for a country.
// Returns "" when the account is neither the pivot nor the receivable account.
func (r *Referentials) AccountSide(countryID, accountID string) string {
	ca, ok := r.CountryAccounts[countryID]
	if !ok {
		return ""
	}
	switch accountID {
	case ca.PivotAccountID:
		return SidePivot
	case ca.ReceivableAccountID:
		return SideReceivable
	}
	return ""
}

// HasCountry reports whether the country's ledger roles are configured
func (r *Referentials) HasCountry(countryID string) bool {
	_, ok := r.CountryAccounts[countryID]
	return ok
}

// IsNAAction reports whether the action identifier is the "N/A" sentinel
func (r *Referentials) IsNAAction(actionID int) bool {
	return actionID == r.NAActionID
}

// ActionName resolves an action identifier to its display name
func (r *Referentials) ActionName(id int) string {
	if name, ok := r.Actions[id]; ok {
		return name
	}
	return "unknown"
}

// KpiName resolves a KPI identifier to its display name
func (r *Referentials) KpiName(id int) string {
	if name, ok := r.Kpis[id]; ok {
		return name
	}
	return "unknown"
}

// IncidentTypeName resolves an incident type identifier to its display name
func (r *Referentials) IncidentTypeName(id int) string {
	if name, ok := r.IncidentTypes[id]; ok {
		return name
	}
	return "unknown"
}
