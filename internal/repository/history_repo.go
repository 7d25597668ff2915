package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/invoice-qc/internal/history"
	"github.com/garyjia/invoice-qc/pkg/database"
)

// ErrSnapshotCorrupt is returned when stored state cannot seed a tracker
var ErrSnapshotCorrupt = errors.New("stored history snapshot is corrupt")

// HistoryRepository persists tracker snapshots so anomaly and duplicate
// detection can extend across process restarts. The engine never calls it:
// callers load a snapshot, seed a tracker, run, and save.
type HistoryRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *database.DB, logger *zap.Logger) *HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Load reads the stored snapshot. An empty store yields an empty snapshot.
func (r *HistoryRepository) Load(ctx context.Context) (history.Snapshot, error) {
	snap := history.Snapshot{Suppliers: make(map[string]history.SupplierStats)}

	rows, err := r.db.QueryContext(ctx, `
		SELECT supplier_key, sample_count, mean, m2
		FROM supplier_stats
	`)
	if err != nil {
		r.logger.Error("Failed to load supplier statistics", zap.Error(err))
		return history.Snapshot{}, fmt.Errorf("failed to load supplier stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var s history.SupplierStats
		if err := rows.Scan(&key, &s.N, &s.Mean, &s.M2); err != nil {
			return history.Snapshot{}, fmt.Errorf("failed to scan supplier stats: %w", err)
		}
		snap.Suppliers[key] = s
	}
	if err := rows.Err(); err != nil {
		return history.Snapshot{}, err
	}

	keyRows, err := r.db.QueryContext(ctx, `
		SELECT invoice_number, supplier_tax_id, invoice_date, last_seen
		FROM duplicate_keys
		ORDER BY supplier_tax_id, invoice_number, invoice_date
	`)
	if err != nil {
		r.logger.Error("Failed to load duplicate keys", zap.Error(err))
		return history.Snapshot{}, fmt.Errorf("failed to load duplicate keys: %w", err)
	}
	defer keyRows.Close()

	for keyRows.Next() {
		var e history.KeyEntry
		if err := keyRows.Scan(&e.InvoiceNumber, &e.SupplierTaxID, &e.InvoiceDate, &e.LastSeen); err != nil {
			return history.Snapshot{}, fmt.Errorf("failed to scan duplicate key: %w", err)
		}
		snap.Keys = append(snap.Keys, e)
	}
	if err := keyRows.Err(); err != nil {
		return history.Snapshot{}, err
	}

	r.logger.Debug("History snapshot loaded",
		zap.Int("suppliers", len(snap.Suppliers)),
		zap.Int("duplicate_keys", len(snap.Keys)))

	return snap, nil
}

// Save replaces the stored state with snap in one transaction
func (r *HistoryRepository) Save(ctx context.Context, snap history.Snapshot) error {
	err := r.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM supplier_stats`); err != nil {
			return fmt.Errorf("failed to clear supplier stats: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM duplicate_keys`); err != nil {
			return fmt.Errorf("failed to clear duplicate keys: %w", err)
		}

		statsStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO supplier_stats (supplier_key, sample_count, mean, m2)
			VALUES (?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare supplier stats insert: %w", err)
		}
		defer statsStmt.Close()

		for key, s := range snap.Suppliers {
			if _, err := statsStmt.ExecContext(ctx, key, s.N, s.Mean, s.M2); err != nil {
				return fmt.Errorf("failed to save stats for %s: %w", key, err)
			}
		}

		keyStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO duplicate_keys (invoice_number, supplier_tax_id, invoice_date, last_seen)
			VALUES (?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare duplicate key insert: %w", err)
		}
		defer keyStmt.Close()

		for _, e := range snap.Keys {
			if _, err := keyStmt.ExecContext(ctx, e.InvoiceNumber, e.SupplierTaxID, e.InvoiceDate, e.LastSeen); err != nil {
				return fmt.Errorf("failed to save duplicate key %s: %w", e.InvoiceNumber, err)
			}
		}
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to save history snapshot", zap.Error(err))
		return err
	}

	r.logger.Info("History snapshot saved",
		zap.Int("suppliers", len(snap.Suppliers)),
		zap.Int("duplicate_keys", len(snap.Keys)))
	return nil
}

// SeedTracker loads the stored snapshot into tracker
func (r *HistoryRepository) SeedTracker(ctx context.Context, tracker *history.Tracker) error {
	snap, err := r.Load(ctx)
	if err != nil {
		return err
	}
	if err := tracker.Seed(snap); err != nil {
		return fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}
	return nil
}
