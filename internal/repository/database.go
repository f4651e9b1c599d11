package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"recon-rules/internal/config"
)

// QueryRecorder counts storage queries for the metrics exporter. A nil
// recorder disables counting.
type QueryRecorder interface {
	RecordDBQuery(operation, result string, duration time.Duration)
}

// observeQuery reports one query's outcome and latency
func observeQuery(rec QueryRecorder, operation string, start time.Time, err error) {
	if rec == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	rec.RecordDBQuery(operation, result, time.Since(start))
}

// NewPostgresDB opens the pgx pool shared by the rule, line, and referential
// repositories. Fails fast when the database is unreachable.
func NewPostgresDB(cfg *config.Config, logger *zap.Logger) (*pgxpool.Pool, error) {
	db := cfg.Database

	dsn := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		db.Host, db.Port, db.Database, db.Username, db.Password, db.SSLMode,
	)

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	poolCfg.MaxConns = int32(db.MaxConnections)
	poolCfg.MinConns = int32(db.MaxIdleConns)
	poolCfg.MaxConnLifetime = db.ConnMaxLifetime
	poolCfg.MaxConnIdleTime = db.ConnMaxIdleTime

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	logger.Info("postgres pool ready",
		zap.String("host", db.Host),
		zap.Int("port", db.Port),
		zap.String("database", db.Database),
		zap.Int32("max_conns", poolCfg.MaxConns))

	return pool, nil
}
