package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"recon-rules/internal/models"
)

// RulesRepository persists the reconciliation decision table. Each rule field
// maps 1:1 to a named column, so schema changes must stay additive.
type RulesRepository struct {
	db      *pgxpool.Pool
	metrics QueryRecorder
	logger  *zap.Logger
}

// NewRulesRepository creates a new rules repository
func NewRulesRepository(db *pgxpool.Pool, metrics QueryRecorder, logger *zap.Logger) *RulesRepository {
	return &RulesRepository{
		db:      db,
		metrics: metrics,
		logger:  logger,
	}
}

const rulesSchema = `
	CREATE TABLE IF NOT EXISTS recon_rules (
		id                      TEXT PRIMARY KEY,
		message                 TEXT NOT NULL DEFAULT '',
		enabled                 BOOLEAN NOT NULL DEFAULT true,
		priority                INTEGER NOT NULL DEFAULT 100,
		scope                   TEXT NOT NULL DEFAULT 'both',
		account_side            TEXT NOT NULL DEFAULT '*',
		guarantee_type          TEXT NOT NULL DEFAULT '*',
		transaction_type        TEXT NOT NULL DEFAULT '*',
		sign                    TEXT NOT NULL DEFAULT '*',
		has_dwings_link         BOOLEAN,
		is_grouped              BOOLEAN,
		is_amount_match         BOOLEAN,
		mt_status_acked         BOOLEAN,
		comm_id_email           BOOLEAN,
		bgi_status_initiated    BOOLEAN,
		trigger_date_is_null    BOOLEAN,
		is_transitory           BOOLEAN,
		is_matched              BOOLEAN,
		has_manual_match        BOOLEAN,
		is_first_request        BOOLEAN,
		days_since_trigger_min  INTEGER,
		days_since_trigger_max  INTEGER,
		operation_days_ago_min  INTEGER,
		operation_days_ago_max  INTEGER,
		days_since_reminder_min INTEGER,
		days_since_reminder_max INTEGER,
		current_action_id       INTEGER,
		payment_request_status  TEXT,
		out_action_id           INTEGER,
		out_kpi_id              INTEGER,
		out_incident_type_id    INTEGER,
		out_risky_item          BOOLEAN,
		out_reason_non_risky_id INTEGER,
		out_to_remind           BOOLEAN,
		out_to_remind_days      INTEGER,
		out_first_claim_today   BOOLEAN,
		apply_to                TEXT NOT NULL DEFAULT 'self',
		auto_apply              BOOLEAN NOT NULL DEFAULT true,
		created_at              TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at              TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_recon_rules_priority ON recon_rules (priority, id);`

const ruleColumns = `
	id, message, enabled, priority, scope,
	account_side, guarantee_type, transaction_type, sign,
	has_dwings_link, is_grouped, is_amount_match, mt_status_acked,
	comm_id_email, bgi_status_initiated, trigger_date_is_null,
	is_transitory, is_matched, has_manual_match, is_first_request,
	days_since_trigger_min, days_since_trigger_max,
	operation_days_ago_min, operation_days_ago_max,
	days_since_reminder_min, days_since_reminder_max,
	current_action_id, payment_request_status,
	out_action_id, out_kpi_id, out_incident_type_id, out_risky_item,
	out_reason_non_risky_id, out_to_remind, out_to_remind_days,
	out_first_claim_today,
	apply_to, auto_apply, created_at, updated_at`

// EnsureSchema creates the rule storage when it does not exist yet
func (r *RulesRepository) EnsureSchema(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { observeQuery(r.metrics, "rules_ensure_schema", start, err) }()

	if _, err := r.db.Exec(ctx, rulesSchema); err != nil {
		r.logger.Error("failed to ensure rules schema", zap.Error(err))
		return fmt.Errorf("%w: ensure schema: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// Load returns the full decision table ordered by priority ascending, ties
// broken by rule identifier for deterministic evaluation
func (r *RulesRepository) Load(ctx context.Context) (_ []models.Rule, err error) {
	start := time.Now()
	defer func() {
		observeQuery(r.metrics, "rules_load", start, err)
		r.logger.Debug("rules load completed",
			zap.Duration("duration", time.Since(start)))
	}()

	query := fmt.Sprintf(`SELECT %s FROM recon_rules ORDER BY priority ASC, id ASC`, ruleColumns)

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		r.logger.Error("failed to load rules", zap.Error(err))
		return nil, fmt.Errorf("%w: load rules: %v", ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var rules []models.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			r.logger.Error("failed to scan rule", zap.Error(err))
			return nil, fmt.Errorf("%w: scan rule: %v", ErrStorageUnavailable, err)
		}
		rules = append(rules, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate rules: %v", ErrStorageUnavailable, err)
	}

	return rules, nil
}

// Get returns a single rule by identifier
func (r *RulesRepository) Get(ctx context.Context, ruleID string) (_ *models.Rule, err error) {
	start := time.Now()
	defer func() { observeQuery(r.metrics, "rules_get", start, err) }()

	query := fmt.Sprintf(`SELECT %s FROM recon_rules WHERE id = $1`, ruleColumns)

	rule, err := scanRule(r.db.QueryRow(ctx, query, ruleID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		r.logger.Error("failed to get rule",
			zap.Error(err),
			zap.String("rule_id", ruleID))
		return nil, fmt.Errorf("%w: get rule: %v", ErrStorageUnavailable, err)
	}

	return rule, nil
}

// Upsert inserts or fully replaces a rule by identifier
func (r *RulesRepository) Upsert(ctx context.Context, rule *models.Rule) (err error) {
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	start := time.Now()
	defer func() { observeQuery(r.metrics, "rules_upsert", start, err) }()

	query := `
		INSERT INTO recon_rules (
			id, message, enabled, priority, scope,
			account_side, guarantee_type, transaction_type, sign,
			has_dwings_link, is_grouped, is_amount_match, mt_status_acked,
			comm_id_email, bgi_status_initiated, trigger_date_is_null,
			is_transitory, is_matched, has_manual_match, is_first_request,
			days_since_trigger_min, days_since_trigger_max,
			operation_days_ago_min, operation_days_ago_max,
			days_since_reminder_min, days_since_reminder_max,
			current_action_id, payment_request_status,
			out_action_id, out_kpi_id, out_incident_type_id, out_risky_item,
			out_reason_non_risky_id, out_to_remind, out_to_remind_days,
			out_first_claim_today,
			apply_to, auto_apply, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
			$21, $22, $23, $24, $25, $26, $27, $28, $29, $30,
			$31, $32, $33, $34, $35, $36, $37, $38, NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			message = EXCLUDED.message,
			enabled = EXCLUDED.enabled,
			priority = EXCLUDED.priority,
			scope = EXCLUDED.scope,
			account_side = EXCLUDED.account_side,
			guarantee_type = EXCLUDED.guarantee_type,
			transaction_type = EXCLUDED.transaction_type,
			sign = EXCLUDED.sign,
			has_dwings_link = EXCLUDED.has_dwings_link,
			is_grouped = EXCLUDED.is_grouped,
			is_amount_match = EXCLUDED.is_amount_match,
			mt_status_acked = EXCLUDED.mt_status_acked,
			comm_id_email = EXCLUDED.comm_id_email,
			bgi_status_initiated = EXCLUDED.bgi_status_initiated,
			trigger_date_is_null = EXCLUDED.trigger_date_is_null,
			is_transitory = EXCLUDED.is_transitory,
			is_matched = EXCLUDED.is_matched,
			has_manual_match = EXCLUDED.has_manual_match,
			is_first_request = EXCLUDED.is_first_request,
			days_since_trigger_min = EXCLUDED.days_since_trigger_min,
			days_since_trigger_max = EXCLUDED.days_since_trigger_max,
			operation_days_ago_min = EXCLUDED.operation_days_ago_min,
			operation_days_ago_max = EXCLUDED.operation_days_ago_max,
			days_since_reminder_min = EXCLUDED.days_since_reminder_min,
			days_since_reminder_max = EXCLUDED.days_since_reminder_max,
			current_action_id = EXCLUDED.current_action_id,
			payment_request_status = EXCLUDED.payment_request_status,
			out_action_id = EXCLUDED.out_action_id,
			out_kpi_id = EXCLUDED.out_kpi_id,
			out_incident_type_id = EXCLUDED.out_incident_type_id,
			out_risky_item = EXCLUDED.out_risky_item,
			out_reason_non_risky_id = EXCLUDED.out_reason_non_risky_id,
			out_to_remind = EXCLUDED.out_to_remind,
			out_to_remind_days = EXCLUDED.out_to_remind_days,
			out_first_claim_today = EXCLUDED.out_first_claim_today,
			apply_to = EXCLUDED.apply_to,
			auto_apply = EXCLUDED.auto_apply,
			updated_at = NOW()`

	_, err = r.db.Exec(ctx, query,
		rule.ID, rule.Message, rule.Enabled, rule.Priority, rule.Scope,
		rule.AccountSide.String(), rule.GuaranteeType.String(),
		rule.TransactionType.String(), rule.Sign.String(),
		rule.HasDwingsLink, rule.IsGrouped, rule.IsAmountMatch, rule.MTStatusAcked,
		rule.CommIDEmail, rule.BgiStatusInitiated, rule.TriggerDateIsNull,
		rule.IsTransitory, rule.IsMatched, rule.HasManualMatch, rule.IsFirstRequest,
		rule.DaysSinceTrigger.Min, rule.DaysSinceTrigger.Max,
		rule.OperationDaysAgo.Min, rule.OperationDaysAgo.Max,
		rule.DaysSinceReminder.Min, rule.DaysSinceReminder.Max,
		rule.CurrentActionID, rule.PaymentRequestStatus,
		rule.Outputs.ActionID, rule.Outputs.KpiID, rule.Outputs.IncidentTypeID,
		rule.Outputs.RiskyItem, rule.Outputs.ReasonNonRiskyID,
		rule.Outputs.ToRemind, rule.Outputs.ToRemindDays,
		rule.Outputs.FirstClaimToday,
		rule.ApplyTo, rule.AutoApply,
	)
	if err != nil {
		r.logger.Error("failed to upsert rule",
			zap.Error(err),
			zap.String("rule_id", rule.ID))
		return fmt.Errorf("%w: upsert rule %s: %v", ErrStorageUnavailable, rule.ID, err)
	}

	r.logger.Info("rule upserted",
		zap.String("rule_id", rule.ID),
		zap.Int("priority", rule.Priority),
		zap.String("scope", string(rule.Scope)))

	return nil
}

// Delete removes a rule by identifier and returns the count removed
func (r *RulesRepository) Delete(ctx context.Context, ruleID string) (_ int, err error) {
	start := time.Now()
	defer func() { observeQuery(r.metrics, "rules_delete", start, err) }()

	result, err := r.db.Exec(ctx, `DELETE FROM recon_rules WHERE id = $1`, ruleID)
	if err != nil {
		r.logger.Error("failed to delete rule",
			zap.Error(err),
			zap.String("rule_id", ruleID))
		return 0, fmt.Errorf("%w: delete rule %s: %v", ErrStorageUnavailable, ruleID, err)
	}

	count := int(result.RowsAffected())
	if count > 0 {
		r.logger.Info("rule deleted", zap.String("rule_id", ruleID))
	}

	return count, nil
}

// SeedDefaults upserts the default decision table and returns the count written
func (r *RulesRepository) SeedDefaults(ctx context.Context) (int, error) {
	defaults := DefaultRules()

	count := 0
	for i := range defaults {
		if err := r.Upsert(ctx, &defaults[i]); err != nil {
			return count, fmt.Errorf("seed default rule %s: %w", defaults[i].ID, err)
		}
		count++
	}

	r.logger.Info("default rules seeded", zap.Int("count", count))
	return count, nil
}

// HealthCheck performs a basic health check on the database connection
func (r *RulesRepository) HealthCheck(ctx context.Context) error {
	var result int
	if err := r.db.QueryRow(ctx, "SELECT 1").Scan(&result); err != nil {
		r.logger.Error("database health check failed", zap.Error(err))
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// scanRule reads one rule row in ruleColumns order
func scanRule(row pgx.Row) (*models.Rule, error) {
	var rule models.Rule
	var accountSide, guaranteeType, transactionType, sign string

	err := row.Scan(
		&rule.ID, &rule.Message, &rule.Enabled, &rule.Priority, &rule.Scope,
		&accountSide, &guaranteeType, &transactionType, &sign,
		&rule.HasDwingsLink, &rule.IsGrouped, &rule.IsAmountMatch, &rule.MTStatusAcked,
		&rule.CommIDEmail, &rule.BgiStatusInitiated, &rule.TriggerDateIsNull,
		&rule.IsTransitory, &rule.IsMatched, &rule.HasManualMatch, &rule.IsFirstRequest,
		&rule.DaysSinceTrigger.Min, &rule.DaysSinceTrigger.Max,
		&rule.OperationDaysAgo.Min, &rule.OperationDaysAgo.Max,
		&rule.DaysSinceReminder.Min, &rule.DaysSinceReminder.Max,
		&rule.CurrentActionID, &rule.PaymentRequestStatus,
		&rule.Outputs.ActionID, &rule.Outputs.KpiID, &rule.Outputs.IncidentTypeID,
		&rule.Outputs.RiskyItem, &rule.Outputs.ReasonNonRiskyID,
		&rule.Outputs.ToRemind, &rule.Outputs.ToRemindDays,
		&rule.Outputs.FirstClaimToday,
		&rule.ApplyTo, &rule.AutoApply, &rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rule.AccountSide = models.StringCondition(accountSide)
	rule.GuaranteeType = models.StringCondition(guaranteeType)
	rule.TransactionType = models.StringCondition(transactionType)
	rule.Sign = models.StringCondition(sign)

	return &rule, nil
}
