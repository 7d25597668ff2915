// Package port defines the interfaces the application layer depends on.
package port

import (
	"context"

	"github.com/garyjia/invoice-qc/internal/history"
)

// HistoryStore persists tracker state between runs
type HistoryStore interface {
	Load(ctx context.Context) (history.Snapshot, error)
	Save(ctx context.Context, snap history.Snapshot) error
}
