package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"recon-rules/internal/models"
)

// LinesRepository reads reconciliation lines with their related DWINGS and
// grouping records, and persists classification mutations
type LinesRepository struct {
	db      *pgxpool.Pool
	metrics QueryRecorder
	logger  *zap.Logger
}

// NewLinesRepository creates a new lines repository
func NewLinesRepository(db *pgxpool.Pool, metrics QueryRecorder, logger *zap.Logger) *LinesRepository {
	return &LinesRepository{
		db:      db,
		metrics: metrics,
		logger:  logger,
	}
}

const lineColumns = `
	id, country_id, account_id, amount, currency, sign,
	operation_date, trigger_date, last_reminder_at,
	guarantee_id, invoice_id, commission_id,
	transaction_type, is_transitory, has_manual_match,
	action_id, action_status, action_date, kpi_id, incident_type_id,
	risky_item, reason_non_risky_id, to_remind, to_remind_date,
	first_claim_date, updated_at`

// FetchBundle loads one line together with its related guarantee, invoice,
// and grouping records. A missing secondary record yields a nil member, not
// an error; only a missing line fails.
func (r *LinesRepository) FetchBundle(ctx context.Context, lineID string) (_ *models.LineBundle, err error) {
	start := time.Now()
	defer func() {
		observeQuery(r.metrics, "lines_fetch_bundle", start, err)
		r.logger.Debug("line bundle fetch completed",
			zap.Duration("duration", time.Since(start)),
			zap.String("line_id", lineID))
	}()

	line, err := r.fetchLine(ctx, lineID)
	if err != nil {
		return nil, err
	}

	bundle := &models.LineBundle{Line: *line}

	if line.GuaranteeID != nil && *line.GuaranteeID != "" {
		bundle.Guarantee, err = r.fetchGuarantee(ctx, *line.GuaranteeID)
		if err != nil {
			return nil, err
		}
	}

	if line.InvoiceID != nil && *line.InvoiceID != "" {
		bundle.Invoice, err = r.fetchInvoice(ctx, *line.InvoiceID)
		if err != nil {
			return nil, err
		}
	}

	bundle.Grouping, err = r.fetchGrouping(ctx, lineID)
	if err != nil {
		return nil, err
	}

	return bundle, nil
}

func (r *LinesRepository) fetchLine(ctx context.Context, lineID string) (*models.ReconciliationLine, error) {
	query := fmt.Sprintf(`SELECT %s FROM recon_lines WHERE id = $1`, lineColumns)

	var l models.ReconciliationLine
	err := r.db.QueryRow(ctx, query, lineID).Scan(
		&l.ID, &l.CountryID, &l.AccountID, &l.Amount, &l.Currency, &l.Sign,
		&l.OperationDate, &l.TriggerDate, &l.LastReminderAt,
		&l.GuaranteeID, &l.InvoiceID, &l.CommissionID,
		&l.TransactionType, &l.IsTransitory, &l.HasManualMatch,
		&l.ActionID, &l.ActionStatus, &l.ActionDate, &l.KpiID, &l.IncidentTypeID,
		&l.RiskyItem, &l.ReasonNonRiskyID, &l.ToRemind, &l.ToRemindDate,
		&l.FirstClaimDate, &l.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		r.logger.Error("failed to fetch line",
			zap.Error(err),
			zap.String("line_id", lineID))
		return nil, fmt.Errorf("failed to fetch line %s: %w", lineID, err)
	}

	return &l, nil
}

func (r *LinesRepository) fetchGuarantee(ctx context.Context, guaranteeID string) (*models.Guarantee, error) {
	query := `
		SELECT id, guarantee_type, mt_status, issue_date
		FROM dwings_guarantees
		WHERE id = $1`

	var g models.Guarantee
	err := r.db.QueryRow(ctx, query, guaranteeID).Scan(
		&g.ID, &g.GuaranteeType, &g.MTStatus, &g.IssueDate,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil // unresolvable secondary record is not an error
		}
		r.logger.Error("failed to fetch guarantee",
			zap.Error(err),
			zap.String("guarantee_id", guaranteeID))
		return nil, fmt.Errorf("failed to fetch guarantee %s: %w", guaranteeID, err)
	}

	return &g, nil
}

func (r *LinesRepository) fetchInvoice(ctx context.Context, invoiceID string) (*models.Invoice, error) {
	query := `
		SELECT id, payment_request_status, communication_channel, bgi_status, is_first_request
		FROM dwings_invoices
		WHERE id = $1`

	var inv models.Invoice
	err := r.db.QueryRow(ctx, query, invoiceID).Scan(
		&inv.ID, &inv.PaymentRequestStatus, &inv.CommunicationChannel,
		&inv.BgiStatus, &inv.IsFirstRequest,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		r.logger.Error("failed to fetch invoice",
			zap.Error(err),
			zap.String("invoice_id", invoiceID))
		return nil, fmt.Errorf("failed to fetch invoice %s: %w", invoiceID, err)
	}

	return &inv, nil
}

func (r *LinesRepository) fetchGrouping(ctx context.Context, lineID string) (*models.GroupingFact, error) {
	// The counterpart amount rides along so amount matching does not need a
	// second line fetch
	query := `
		SELECT g.line_id, g.counterpart_id, c.amount, g.counterpart_count,
		       g.is_matched, g.amount_match
		FROM recon_groupings g
		LEFT JOIN recon_lines c ON c.id = g.counterpart_id
		WHERE g.line_id = $1`

	var f models.GroupingFact
	err := r.db.QueryRow(ctx, query, lineID).Scan(
		&f.LineID, &f.CounterpartID, &f.CounterpartAmount,
		&f.CounterpartCount, &f.IsMatched, &f.AmountMatch,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil // ungrouped line
		}
		r.logger.Error("failed to fetch grouping",
			zap.Error(err),
			zap.String("line_id", lineID))
		return nil, fmt.Errorf("failed to fetch grouping for %s: %w", lineID, err)
	}

	return &f, nil
}

// ApplyMutations persists one classification's mutations in a single
// transaction. Either every mutation lands or none does; a failed line is
// retried as a whole unit on the next run.
func (r *LinesRepository) ApplyMutations(ctx context.Context, mutations []models.LineMutation) (err error) {
	if len(mutations) == 0 {
		return nil
	}

	start := time.Now()
	defer func() {
		observeQuery(r.metrics, "lines_apply_mutations", start, err)
		r.logger.Debug("mutations applied",
			zap.Duration("duration", time.Since(start)),
			zap.Int("count", len(mutations)))
	}()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for i := range mutations {
		if err := r.applyMutation(ctx, tx, &mutations[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit mutations: %w", err)
	}

	return nil
}

func (r *LinesRepository) applyMutation(ctx context.Context, tx pgx.Tx, m *models.LineMutation) error {
	if m.IsEmpty() {
		return nil
	}

	// Build dynamic update from the fields the mutation actually sets
	var setParts []string
	var args []interface{}
	argCount := 1

	add := func(column string, value interface{}) {
		setParts = append(setParts, fmt.Sprintf("%s = $%d", column, argCount))
		args = append(args, value)
		argCount++
	}

	if m.SetActionID {
		add("action_id", m.ActionID)
	}
	if m.SetActionStatus {
		add("action_status", m.ActionStatus)
	}
	if m.SetActionDate {
		add("action_date", m.ActionDate)
	}
	if m.SetKpiID {
		add("kpi_id", m.KpiID)
	}
	if m.SetIncidentTypeID {
		add("incident_type_id", m.IncidentTypeID)
	}
	if m.SetRiskyItem {
		add("risky_item", m.RiskyItem)
	}
	if m.SetReasonNonRiskyID {
		add("reason_non_risky_id", m.ReasonNonRiskyID)
	}
	if m.SetToRemind {
		add("to_remind", m.ToRemind)
	}
	if m.SetToRemindDate {
		add("to_remind_date", m.ToRemindDate)
	}
	if m.SetFirstClaimDate {
		add("first_claim_date", m.FirstClaimDate)
	}

	setParts = append(setParts, "updated_at = NOW()")
	args = append(args, m.LineID)

	query := fmt.Sprintf(
		`UPDATE recon_lines SET %s WHERE id = $%d`,
		strings.Join(setParts, ", "), argCount,
	)

	result, err := tx.Exec(ctx, query, args...)
	if err != nil {
		r.logger.Error("failed to apply mutation",
			zap.Error(err),
			zap.String("line_id", m.LineID),
			zap.String("rule_id", m.RuleID))
		return fmt.Errorf("failed to apply mutation to line %s: %w", m.LineID, err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("apply mutation: %w: line %s", ErrNotFound, m.LineID)
	}

	return nil
}

// HealthCheck performs a basic health check on the database connection
func (r *LinesRepository) HealthCheck(ctx context.Context) error {
	var result int
	if err := r.db.QueryRow(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}
