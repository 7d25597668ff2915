package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/invoice-qc/internal/application/port"
	"github.com/garyjia/invoice-qc/internal/history"
	"github.com/garyjia/invoice-qc/internal/models"
	"github.com/garyjia/invoice-qc/internal/validator"
)

// ValidationService validates invoices, optionally against persisted history
type ValidationService interface {
	ValidateOne(ctx context.Context, rec *models.InvoiceRecord) (models.ValidationVerdict, error)
	ValidateBatch(ctx context.Context, records []models.InvoiceRecord) (models.BatchReport, error)
	Persistent() bool
}

type validationServiceImpl struct {
	engine    *validator.Engine
	store     port.HistoryStore
	retention func() time.Time
	logger    *zap.Logger

	// serializes load, validate, save so concurrent requests never lose
	// each other's history updates
	mu sync.Mutex
}

// NewValidationService creates a new ValidationService. store may be nil,
// in which case every call starts from an empty tracker. retention returns
// the cutoff for pruning duplicate keys before a save; nil disables pruning.
func NewValidationService(
	engine *validator.Engine,
	store port.HistoryStore,
	retention func() time.Time,
	logger *zap.Logger,
) ValidationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &validationServiceImpl{
		engine:    engine,
		store:     store,
		retention: retention,
		logger:    logger,
	}
}

// Persistent reports whether history survives between calls
func (s *validationServiceImpl) Persistent() bool {
	return s.store != nil
}

// ValidateOne validates a single invoice
func (s *validationServiceImpl) ValidateOne(ctx context.Context, rec *models.InvoiceRecord) (models.ValidationVerdict, error) {
	var verdict models.ValidationVerdict
	err := s.withTracker(ctx, func(tracker *history.Tracker) {
		verdict = s.engine.ValidateOne(rec, tracker)
	})
	if err != nil {
		return models.ValidationVerdict{}, err
	}
	return verdict, nil
}

// ValidateBatch validates records in input order and summarizes the run
func (s *validationServiceImpl) ValidateBatch(ctx context.Context, records []models.InvoiceRecord) (models.BatchReport, error) {
	var report models.BatchReport
	err := s.withTracker(ctx, func(tracker *history.Tracker) {
		report = s.engine.ValidateBatchWithTracker(records, tracker)
	})
	if err != nil {
		return models.BatchReport{}, err
	}
	return report, nil
}

// withTracker hands fn a tracker seeded from the store and persists the
// result. Nothing is saved if loading fails.
func (s *validationServiceImpl) withTracker(ctx context.Context, fn func(*history.Tracker)) error {
	if s.store == nil {
		fn(history.New())
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.store.Load(ctx)
	if err != nil {
		s.logger.Error("Failed to load history", zap.Error(err))
		return fmt.Errorf("failed to load history: %w", err)
	}

	tracker := history.New()
	if err := tracker.Seed(snap); err != nil {
		s.logger.Error("Stored history rejected", zap.Error(err))
		return fmt.Errorf("failed to seed tracker: %w", err)
	}

	fn(tracker)

	if s.retention != nil {
		if removed := tracker.Prune(s.retention()); removed > 0 {
			s.logger.Debug("Pruned expired duplicate keys", zap.Int("removed", removed))
		}
	}

	if err := s.store.Save(ctx, tracker.Snapshot()); err != nil {
		s.logger.Error("Failed to save history", zap.Error(err))
		return fmt.Errorf("failed to save history: %w", err)
	}
	s.logger.Debug("History saved",
		zap.Int("suppliers", tracker.SupplierCount()),
		zap.Int("duplicate_keys", tracker.KeyCount()))
	return nil
}
