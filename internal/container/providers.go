// Package container wires configuration into the validation engine, the
// optional history store and the services built on them.
package container

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-qc/internal/config"
	"github.com/garyjia/invoice-qc/internal/repository"
	"github.com/garyjia/invoice-qc/internal/rules"
	"github.com/garyjia/invoice-qc/internal/validator"
	"github.com/garyjia/invoice-qc/pkg/database"
)

// ProvidePolicy converts validation settings into rule thresholds. now
// may be nil to use the wall clock.
func ProvidePolicy(cfg config.ValidationConfig, now func() time.Time) rules.Policy {
	p := rules.DefaultPolicy()
	if now != nil {
		p.Now = now
	}
	p.Tolerance = decimal.NewFromFloat(cfg.Tolerance)
	p.MaxQuantity = decimal.NewFromFloat(cfg.MaxQuantity)
	p.MaxAgeYears = cfg.MaxAgeYears
	p.FutureGraceDays = cfg.FutureGraceDays
	p.DuplicateWindowMonths = cfg.DuplicateWindowMonths
	p.MinAnomalySamples = int64(cfg.MinAnomalySamples)
	p.AnomalySigma = cfg.AnomalySigma
	return p
}

// ProvideEngine builds the validation engine
func ProvideEngine(cfg config.ValidationConfig, policy rules.Policy, logger *zap.Logger) (*validator.Engine, error) {
	engine, err := validator.NewEngine(validator.Options{
		Policy:        policy,
		DisabledRules: cfg.DisabledRules,
		TopErrorCodes: cfg.TopErrorCodes,
		Logger:        logger.Named("validator"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	return engine, nil
}

// ProvideDatabase opens the history database. It returns nil when no path
// is configured.
func ProvideDatabase(cfg config.DatabaseConfig, logger *zap.Logger) (*database.DB, error) {
	if cfg.Path == "" {
		return nil, nil
	}
	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger.Named("database"))
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	return db, nil
}

// ProvideHistoryRepository wraps db, or returns nil when db is nil
func ProvideHistoryRepository(db *database.DB, logger *zap.Logger) *repository.HistoryRepository {
	if db == nil {
		return nil
	}
	return repository.NewHistoryRepository(db, logger.Named("history"))
}
