package validator

import (
	"sort"

	"github.com/garyjia/invoice-qc/internal/models"
)

// Summarize aggregates verdicts into a batch report. TopErrorCodes counts
// every token code, most frequent first, ties broken by first appearance.
func Summarize(verdicts []models.ValidationVerdict, topN int) models.BatchReport {
	report := models.BatchReport{
		Total:         len(verdicts),
		TopErrorCodes: []models.CodeCount{},
		Verdicts:      verdicts,
	}
	if report.Verdicts == nil {
		report.Verdicts = []models.ValidationVerdict{}
	}

	counts := make(map[string]int)
	var order []string
	for _, v := range verdicts {
		if v.IsValid {
			report.Valid++
		} else {
			report.Invalid++
		}
		for _, t := range v.Errors {
			if _, seen := counts[t.Code]; !seen {
				order = append(order, t.Code)
			}
			counts[t.Code]++
		}
	}

	ranked := make([]models.CodeCount, len(order))
	for i, code := range order {
		ranked[i] = models.CodeCount{Code: code, Count: counts[code]}
	}
	// order is first-seen, so a stable sort keeps that for equal counts
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Count > ranked[j].Count
	})
	if topN > 0 && len(ranked) > topN {
		ranked = ranked[:topN]
	}
	report.TopErrorCodes = append(report.TopErrorCodes, ranked...)
	return report
}
