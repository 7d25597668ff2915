// Package history tracks per-supplier amount statistics and seen duplicate
// keys across one validation run.
//
// A Tracker is owned by the caller and passed into every validation call.
// It is not safe for concurrent use: the anomaly checks of invoice N must see
// exactly the contributions of invoices 1..N-1, so a run is sequential by
// nature. Independent runs use independent trackers.
package history

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/garyjia/invoice-qc/internal/models"
)

// ErrInvalidSnapshot is returned when seeding from inconsistent state
var ErrInvalidSnapshot = errors.New("invalid tracker snapshot")

// SupplierStats is the Welford accumulator for one supplier's totals
type SupplierStats struct {
	N    int64   `json:"n"`
	Mean float64 `json:"mean"`
	M2   float64 `json:"m2"`
}

// Add folds one observation into the running mean and M2
func (s *SupplierStats) Add(x float64) {
	s.N++
	delta := x - s.Mean
	s.Mean += delta / float64(s.N)
	s.M2 += delta * (x - s.Mean)
}

// Merge combines two accumulators (Chan et al. parallel update)
func (s *SupplierStats) Merge(o SupplierStats) {
	if o.N == 0 {
		return
	}
	if s.N == 0 {
		*s = o
		return
	}
	n := s.N + o.N
	delta := o.Mean - s.Mean
	s.M2 += o.M2 + delta*delta*float64(s.N)*float64(o.N)/float64(n)
	s.Mean += delta * float64(o.N) / float64(n)
	s.N = n
}

// StdDev returns the sample standard deviation, false below two samples
func (s SupplierStats) StdDev() (float64, bool) {
	if s.N < 2 {
		return 0, false
	}
	return math.Sqrt(s.M2 / float64(s.N-1)), true
}

// DuplicateKey identifies an invoice for duplicate detection
type DuplicateKey struct {
	InvoiceNumber string `json:"invoice_number"`
	SupplierTaxID string `json:"supplier_tax_id"`
	InvoiceDate   string `json:"invoice_date"`
}

// KeyFor builds the duplicate key of rec. ok is false when any component is
// missing or the date is not a valid ISO date.
func KeyFor(rec *models.InvoiceRecord) (DuplicateKey, bool) {
	date, ok := rec.ParsedInvoiceDate()
	if !ok {
		return DuplicateKey{}, false
	}
	key := DuplicateKey{
		InvoiceNumber: models.NormalizeKey(rec.InvoiceNumber),
		SupplierTaxID: models.NormalizeKey(rec.SupplierTaxID),
		InvoiceDate:   date.Format(models.DateLayout),
	}
	if key.InvoiceNumber == "" || key.SupplierTaxID == "" {
		return DuplicateKey{}, false
	}
	return key, true
}

// SupplierKey is the statistics bucket for a supplier name
func SupplierKey(name string) string {
	return models.NormalizeKey(name)
}

// Tracker holds the state of one validation run
type Tracker struct {
	suppliers map[string]*SupplierStats
	seen      map[DuplicateKey]time.Time // last-seen invoice date
}

// New creates an empty tracker
func New() *Tracker {
	return &Tracker{
		suppliers: make(map[string]*SupplierStats),
		seen:      make(map[DuplicateKey]time.Time),
	}
}

// Stats returns the accumulated statistics for a supplier name
func (t *Tracker) Stats(supplierName string) SupplierStats {
	if s, ok := t.suppliers[SupplierKey(supplierName)]; ok {
		return *s
	}
	return SupplierStats{}
}

// LastSeen reports whether key was recorded with a date on or after since
func (t *Tracker) LastSeen(key DuplicateKey, since time.Time) (time.Time, bool) {
	last, ok := t.seen[key]
	if !ok || last.Before(since) {
		return time.Time{}, false
	}
	return last, true
}

// Record adds rec to the history. Whatever parts of rec are usable are
// recorded, whether or not rec passed validation. A total outside the
// float64 range is never folded into the statistics.
func (t *Tracker) Record(rec *models.InvoiceRecord) {
	if supplier := SupplierKey(rec.SupplierName); supplier != "" && rec.TotalAmount != nil {
		if x := rec.TotalAmount.InexactFloat64(); isFinite(x) {
			s, ok := t.suppliers[supplier]
			if !ok {
				s = &SupplierStats{}
				t.suppliers[supplier] = s
			}
			s.Add(x)
		}
	}

	if key, ok := KeyFor(rec); ok {
		date, _ := rec.ParsedInvoiceDate()
		t.markSeen(key, date)
	}
}

func isFinite(x float64) bool {
	return !math.IsInf(x, 0) && !math.IsNaN(x)
}

func (t *Tracker) markSeen(key DuplicateKey, date time.Time) {
	if last, ok := t.seen[key]; !ok || date.After(last) {
		t.seen[key] = date
	}
}

// Prune drops duplicate keys last seen before cutoff and returns how many
// were removed.
func (t *Tracker) Prune(cutoff time.Time) int {
	removed := 0
	for k, last := range t.seen {
		if last.Before(cutoff) {
			delete(t.seen, k)
			removed++
		}
	}
	return removed
}

// SupplierCount returns the number of suppliers with statistics
func (t *Tracker) SupplierCount() int { return len(t.suppliers) }

// KeyCount returns the number of recorded duplicate keys
func (t *Tracker) KeyCount() int { return len(t.seen) }

// KeyEntry is a duplicate key with its last-seen date, as persisted
type KeyEntry struct {
	DuplicateKey
	LastSeen string `json:"last_seen"`
}

// Snapshot is the serialisable state of a tracker
type Snapshot struct {
	Suppliers map[string]SupplierStats `json:"suppliers"`
	Keys      []KeyEntry               `json:"duplicate_keys"`
}

// Snapshot exports the tracker state with keys in a stable order
func (t *Tracker) Snapshot() Snapshot {
	snap := Snapshot{
		Suppliers: make(map[string]SupplierStats, len(t.suppliers)),
		Keys:      make([]KeyEntry, 0, len(t.seen)),
	}
	for k, s := range t.suppliers {
		snap.Suppliers[k] = *s
	}
	for k, last := range t.seen {
		snap.Keys = append(snap.Keys, KeyEntry{DuplicateKey: k, LastSeen: last.Format(models.DateLayout)})
	}
	sort.Slice(snap.Keys, func(i, j int) bool {
		a, b := snap.Keys[i], snap.Keys[j]
		if a.SupplierTaxID != b.SupplierTaxID {
			return a.SupplierTaxID < b.SupplierTaxID
		}
		if a.InvoiceNumber != b.InvoiceNumber {
			return a.InvoiceNumber < b.InvoiceNumber
		}
		return a.InvoiceDate < b.InvoiceDate
	})
	return snap
}

// Seed merges prior state into the tracker. This is the only way state
// crosses run boundaries. The snapshot is validated before anything is
// applied.
func (t *Tracker) Seed(snap Snapshot) error {
	dates := make([]time.Time, len(snap.Keys))
	for i, e := range snap.Keys {
		last, ok := models.ParseDate(e.LastSeen)
		if !ok {
			return fmt.Errorf("%w: key %d has invalid last_seen %q", ErrInvalidSnapshot, i, e.LastSeen)
		}
		if e.InvoiceNumber == "" || e.SupplierTaxID == "" {
			return fmt.Errorf("%w: key %d is incomplete", ErrInvalidSnapshot, i)
		}
		dates[i] = last
	}
	for name, s := range snap.Suppliers {
		if strings.TrimSpace(name) == "" || s.N < 0 || s.M2 < 0 || !isFinite(s.Mean) || !isFinite(s.M2) {
			return fmt.Errorf("%w: supplier %q has inconsistent statistics", ErrInvalidSnapshot, name)
		}
	}

	for name, s := range snap.Suppliers {
		cur, ok := t.suppliers[name]
		if !ok {
			cur = &SupplierStats{}
			t.suppliers[name] = cur
		}
		cur.Merge(s)
	}
	for i, e := range snap.Keys {
		t.markSeen(e.DuplicateKey, dates[i])
	}
	return nil
}
