package sales_order

import "orderflow/internal/core/numerator"

const (
	// DocumentType is used for numbering, notifications and audit records.
	DocumentType = "sales_order"

	NumeratorStrategy = numerator.StrategyStrict
)

// NumeratorConfig numbers sales orders as "SO-YYYY.MM.NNN".
var NumeratorConfig = numerator.DefaultConfig(DocumentType, "SO")
