package quotation

import "orderflow/internal/core/numerator"

const (
	// NumeratorStrategy defines the numbering strategy for this document type.
	// Quotation numbers are customer facing, so gaps are avoided.
	NumeratorStrategy = numerator.StrategyStrict

	// DocumentType is the reference type written to ledger and audit records.
	DocumentType = "quotation"
)

// NumeratorConfig yields numbers like 2026.10.014.
var NumeratorConfig = numerator.DefaultConfig(DocumentType, "")
