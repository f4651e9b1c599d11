package engine

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats/scalar"

	"recon-rules/internal/config"
	"recon-rules/internal/models"
)

// ErrContextResolution marks a line whose core facts could not be resolved.
// Missing secondary records (guarantee, invoice) never trigger it; only a
// line that cannot be placed on either ledger side does.
var ErrContextResolution = errors.New("context resolution failed")

// ContextBuilder derives an immutable evaluation context for one line. It is
// a pure function of the bundle, the injected referentials, and the batch
// evaluation instant: no I/O, no mutation, no hidden state.
type ContextBuilder struct {
	amountTolerance float64
	logger          *zap.Logger
}

// NewContextBuilder creates a new context builder
func NewContextBuilder(cfg *config.Config, logger *zap.Logger) *ContextBuilder {
	return &ContextBuilder{
		amountTolerance: cfg.Engine.AmountTolerance,
		logger:          logger,
	}
}

// Build derives the fact set for one line. All day-count facts are computed
// against the supplied instant so every line in a batch shares one "now".
func (b *ContextBuilder) Build(bundle *models.LineBundle, refs *models.Referentials, now time.Time) (*models.EvaluationContext, error) {
	line := &bundle.Line

	if line.ID == "" {
		return nil, fmt.Errorf("%w: line has no identifier", ErrContextResolution)
	}
	if !refs.HasCountry(line.CountryID) {
		return nil, fmt.Errorf("%w: no ledger roles configured for country %q", ErrContextResolution, line.CountryID)
	}

	side := refs.AccountSide(line.CountryID, line.AccountID)
	if side == "" {
		return nil, fmt.Errorf("%w: account %q is neither pivot nor receivable for country %q",
			ErrContextResolution, line.AccountID, line.CountryID)
	}

	ectx := &models.EvaluationContext{
		LineID:            line.ID,
		CountryID:         line.CountryID,
		AccountSide:       side,
		Sign:              line.Sign,
		HasDwingsLink:     line.HasDwingsLink(),
		TriggerDateIsNull: line.TriggerDate == nil,
		IsTransitory:      line.IsTransitory,
		HasManualMatch:    line.HasManualMatch,
		CurrentActionID:   line.ActionID,
		EvaluatedAt:       now,
	}

	if line.TransactionType != nil {
		ectx.TransactionType = *line.TransactionType
	}

	// Facts from the guarantee record; an unresolvable guarantee leaves them
	// at their zero values rather than failing the line
	if g := bundle.Guarantee; g != nil {
		ectx.GuaranteeType = g.GuaranteeType
		ectx.MTStatusAcked = g.MTStatus != nil && *g.MTStatus == models.MTStatusAcked
	}

	// Facts from the invoice record
	if inv := bundle.Invoice; inv != nil {
		ectx.CommIDEmail = inv.CommunicationChannel != nil && *inv.CommunicationChannel == models.CommChannelEmail
		ectx.BgiStatusInitiated = inv.BgiStatus != nil && *inv.BgiStatus == models.BgiStatusInitiated
		ectx.IsFirstRequest = inv.IsFirstRequest
		if inv.PaymentRequestStatus != nil {
			ectx.PaymentRequestStatus = *inv.PaymentRequestStatus
		}
	}

	b.resolveGrouping(ectx, bundle)

	ectx.DaysSinceTrigger = daysSince(line.TriggerDate, now)
	ectx.OperationDaysAgo = daysSince(line.OperationDate, now)
	ectx.DaysSinceReminder = daysSince(line.LastReminderAt, now)

	return ectx, nil
}

// resolveGrouping consumes the external matching result. An ambiguous 1:N
// grouping counts as not cleanly matched.
func (b *ContextBuilder) resolveGrouping(ectx *models.EvaluationContext, bundle *models.LineBundle) {
	g := bundle.Grouping
	if g == nil {
		return
	}

	if g.CounterpartCount > 1 {
		b.logger.Debug("ambiguous grouping treated as unmatched",
			zap.String("line_id", ectx.LineID),
			zap.Int("counterpart_count", g.CounterpartCount))
		return
	}

	ectx.IsMatched = g.IsMatched

	if g.CounterpartID == nil || *g.CounterpartID == "" {
		return
	}

	ectx.IsGrouped = true
	ectx.CounterpartID = *g.CounterpartID

	// Prefer comparing the actual signed amounts; fall back to the grouping
	// collaborator's precomputed flag when the counterpart amount was not
	// loaded alongside
	if g.CounterpartAmount != nil {
		ectx.IsAmountMatch = scalar.EqualWithinAbs(bundle.Line.Amount+*g.CounterpartAmount, 0, b.amountTolerance)
	} else {
		ectx.IsAmountMatch = g.AmountMatch
	}
}

// daysSince returns the whole-day count from t to now at civil-day
// granularity, or nil when the timestamp is absent
func daysSince(t *time.Time, now time.Time) *int {
	if t == nil {
		return nil
	}
	days := int(civilDay(now).Sub(civilDay(*t)).Hours() / 24)
	return &days
}

func civilDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
