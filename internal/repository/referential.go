package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"recon-rules/internal/models"
)

// ReferentialRepository loads the reference catalogs: per-country ledger
// roles and the action/KPI/incident-type catalogs
type ReferentialRepository struct {
	db      *pgxpool.Pool
	metrics QueryRecorder
	logger  *zap.Logger
}

// NewReferentialRepository creates a new referential repository
func NewReferentialRepository(db *pgxpool.Pool, metrics QueryRecorder, logger *zap.Logger) *ReferentialRepository {
	return &ReferentialRepository{
		db:      db,
		metrics: metrics,
		logger:  logger,
	}
}

// Load reads every referential catalog in one pass
func (r *ReferentialRepository) Load(ctx context.Context) (_ *models.Referentials, err error) {
	start := time.Now()
	defer func() {
		observeQuery(r.metrics, "referentials_load", start, err)
		r.logger.Debug("referentials load completed",
			zap.Duration("duration", time.Since(start)))
	}()

	refs := &models.Referentials{
		CountryAccounts: make(map[string]models.CountryAccounts),
		Actions:         make(map[int]string),
		Kpis:            make(map[int]string),
		IncidentTypes:   make(map[int]string),
	}

	if err := r.loadCountryAccounts(ctx, refs); err != nil {
		return nil, err
	}
	if err := r.loadActions(ctx, refs); err != nil {
		return nil, err
	}
	if err := r.loadCatalog(ctx, "ref_kpis", refs.Kpis); err != nil {
		return nil, err
	}
	if err := r.loadCatalog(ctx, "ref_incident_types", refs.IncidentTypes); err != nil {
		return nil, err
	}

	return refs, nil
}

func (r *ReferentialRepository) loadCountryAccounts(ctx context.Context, refs *models.Referentials) error {
	rows, err := r.db.Query(ctx, `
		SELECT country_id, pivot_account_id, receivable_account_id
		FROM country_accounts`)
	if err != nil {
		return fmt.Errorf("failed to load country accounts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ca models.CountryAccounts
		if err := rows.Scan(&ca.CountryID, &ca.PivotAccountID, &ca.ReceivableAccountID); err != nil {
			return fmt.Errorf("failed to scan country accounts: %w", err)
		}
		refs.CountryAccounts[ca.CountryID] = ca
	}

	return rows.Err()
}

func (r *ReferentialRepository) loadActions(ctx context.Context, refs *models.Referentials) error {
	rows, err := r.db.Query(ctx, `SELECT id, name, is_na FROM ref_actions`)
	if err != nil {
		return fmt.Errorf("failed to load actions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int
		var name string
		var isNA bool
		if err := rows.Scan(&id, &name, &isNA); err != nil {
			return fmt.Errorf("failed to scan action: %w", err)
		}
		refs.Actions[id] = name
		if isNA {
			refs.NAActionID = id
		}
	}

	return rows.Err()
}

func (r *ReferentialRepository) loadCatalog(ctx context.Context, table string, into map[int]string) error {
	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT id, name FROM %s`, table))
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return fmt.Errorf("failed to scan %s row: %w", table, err)
		}
		into[id] = name
	}

	return rows.Err()
}
