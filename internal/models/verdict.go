package models

// Category groups error tokens by the kind of check that produced them
type Category string

const (
	CategoryCompleteness Category = "completeness"
	CategoryFormat       Category = "format"
	CategoryBusiness     Category = "business"
	CategoryAnomaly      Category = "anomaly"
	CategorySanity       Category = "sanity"
)

// Severity decides whether a token affects validity
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning" // review, not rejection
)

// Error token codes
const (
	CodeMissingField          = "MISSING_FIELD"
	CodeNoLineItems           = "NO_LINE_ITEMS"
	CodeLineItemIncomplete    = "LINE_ITEM_INCOMPLETE"
	CodeDateFormatInvalid     = "DATE_FORMAT_INVALID"
	CodeAmountFormatInvalid   = "AMOUNT_FORMAT_INVALID"
	CodeAmountPrecision       = "AMOUNT_PRECISION_INVALID"
	CodeCurrencyInvalid       = "CURRENCY_CODE_INVALID"
	CodeTaxIDFormatInvalid    = "TAX_ID_FORMAT_INVALID"
	CodeDateOrderInvalid      = "DATE_ORDER_INVALID"
	CodeAmountMismatch        = "AMOUNT_MISMATCH"
	CodeLineItemSumMismatch   = "LINE_ITEM_SUM_MISMATCH"
	CodeNegativeAmount        = "NEGATIVE_AMOUNT"
	CodeQuantityOutOfRange    = "QUANTITY_OUT_OF_RANGE"
	CodeDateOutOfRange        = "DATE_OUT_OF_RANGE"
	CodeDuplicateInvoice      = "DUPLICATE_INVOICE"
	CodeDuplicateCheckSkipped = "DUPLICATE_CHECK_SKIPPED"
	CodeUnusualAmount         = "UNUSUAL_AMOUNT"
	CodeFutureDatedInvoice    = "FUTURE_DATED_INVOICE"
)

// ErrorToken describes one failed check
type ErrorToken struct {
	Code     string   `json:"code"`
	Category Category `json:"category"`
	Field    string   `json:"field,omitempty"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// IsError reports whether the token makes an invoice invalid
func (t ErrorToken) IsError() bool {
	return t.Severity == SeverityError
}

// ValidationVerdict is the outcome for one invoice. Treat it as immutable.
type ValidationVerdict struct {
	InvoiceID string       `json:"invoice_id"`
	IsValid   bool         `json:"is_valid"`
	Errors    []ErrorToken `json:"errors"`
}

// NewVerdict derives validity from the tokens
func NewVerdict(invoiceID string, tokens []ErrorToken) ValidationVerdict {
	if tokens == nil {
		tokens = []ErrorToken{}
	}
	valid := true
	for _, t := range tokens {
		if t.IsError() {
			valid = false
			break
		}
	}
	return ValidationVerdict{InvoiceID: invoiceID, IsValid: valid, Errors: tokens}
}

// Warnings returns only warning-severity tokens
func (v ValidationVerdict) Warnings() []ErrorToken {
	var out []ErrorToken
	for _, t := range v.Errors {
		if !t.IsError() {
			out = append(out, t)
		}
	}
	return out
}

// HasCode reports whether any token carries code
func (v ValidationVerdict) HasCode(code string) bool {
	for _, t := range v.Errors {
		if t.Code == code {
			return true
		}
	}
	return false
}

// CodeCount is an error code with its number of occurrences in a batch
type CodeCount struct {
	Code  string `json:"code"`
	Count int    `json:"count"`
}

// BatchReport aggregates verdicts for a batch run
type BatchReport struct {
	Total         int                 `json:"total"`
	Valid         int                 `json:"valid"`
	Invalid       int                 `json:"invalid"`
	TopErrorCodes []CodeCount         `json:"top_error_codes"`
	Verdicts      []ValidationVerdict `json:"verdicts"`
}
