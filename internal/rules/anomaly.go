package rules

import (
	"math"
	"strings"

	"github.com/garyjia/invoice-qc/internal/history"
	"github.com/garyjia/invoice-qc/internal/models"
)

// Anomaly rules only ever produce warnings: they flag invoices for review and
// never make an invoice invalid on their own.
func anomalyRules(p Policy) []Rule {
	return []Rule{
		{Name: "anomaly.duplicate", Category: models.CategoryAnomaly, RequiresComplete: true, Check: duplicateInvoice(p.DuplicateWindowMonths)},
		{Name: "anomaly.unusual_amount", Category: models.CategoryAnomaly, RequiresComplete: true, Check: unusualAmount(p.MinAnomalySamples, p.AnomalySigma)},
		{Name: "anomaly.future_dated", Category: models.CategoryAnomaly, RequiresComplete: true, Check: futureDated(p)},
	}
}

// duplicateInvoice looks the invoice's key up among keys recorded earlier in
// the run, within the trailing window of calendar months.
func duplicateInvoice(windowMonths int) CheckFunc {
	return func(rec *models.InvoiceRecord, tracker *history.Tracker) []models.ErrorToken {
		if tracker == nil {
			return nil
		}
		if strings.TrimSpace(rec.SupplierTaxID) == "" {
			return []models.ErrorToken{warningToken(models.CodeDuplicateCheckSkipped, "supplier_tax_id",
				"duplicate detection not evaluable: supplier_tax_id is absent")}
		}
		key, ok := history.KeyFor(rec)
		if !ok {
			return []models.ErrorToken{warningToken(models.CodeDuplicateCheckSkipped, "supplier_tax_id",
				"duplicate detection not evaluable: supplier_tax_id %q has no usable characters", rec.SupplierTaxID)}
		}
		date, _ := rec.ParsedInvoiceDate()
		since := date.AddDate(0, -windowMonths, 0)
		if _, seen := tracker.LastSeen(key, since); !seen {
			return nil
		}
		return []models.ErrorToken{warningToken(models.CodeDuplicateInvoice, "invoice_number",
			"invoice %s from supplier tax id %s dated %s was already submitted within the last %d months",
			rec.InvoiceNumber, rec.SupplierTaxID, rec.InvoiceDate, windowMonths)}
	}
}

// unusualAmount flags totals more than sigma standard deviations from the
// supplier's running mean, once enough prior invoices exist.
func unusualAmount(minSamples int64, sigma float64) CheckFunc {
	return func(rec *models.InvoiceRecord, tracker *history.Tracker) []models.ErrorToken {
		if tracker == nil {
			return nil
		}
		stats := tracker.Stats(rec.SupplierName)
		if stats.N < minSamples {
			return nil
		}
		sd, ok := stats.StdDev()
		if !ok {
			return nil
		}
		total := rec.TotalAmount.InexactFloat64()
		deviation := math.Abs(total - stats.Mean)
		if deviation <= sigma*sd {
			return nil
		}
		return []models.ErrorToken{warningToken(models.CodeUnusualAmount, "total_amount",
			"total_amount %.2f deviates from supplier mean %.2f by more than %.0f standard deviations (sd %.2f over %d invoices)",
			total, stats.Mean, sigma, sd, stats.N)}
	}
}

func futureDated(p Policy) CheckFunc {
	return func(rec *models.InvoiceRecord, _ *history.Tracker) []models.ErrorToken {
		date, ok := rec.ParsedInvoiceDate()
		if !ok {
			return nil
		}
		limit := p.today().AddDate(0, 0, p.FutureGraceDays)
		if !date.After(limit) {
			return nil
		}
		return []models.ErrorToken{warningToken(models.CodeFutureDatedInvoice, "invoice_date",
			"invoice date %s is more than %d days after the evaluation date", rec.InvoiceDate, p.FutureGraceDays)}
	}
}
