package job_order

import (
	"orderflow/internal/core/id"
	"orderflow/internal/core/numerator"
)

const (
	// DocumentType is used for numbering, notifications and audit records.
	DocumentType = "job_order"
	// LineType identifies job order lines in ledger references and audit records.
	LineType = "job_order_line"

	NumeratorStrategy = numerator.StrategyStrict
)

// NumeratorConfig numbers job orders as "JO-YYYY.MM.NNN".
var NumeratorConfig = numerator.DefaultConfig(DocumentType, "JO")

// LineLockKey names the mutual-exclusion scope of one line.
func LineLockKey(lineID id.ID) string {
	return LineType + ":" + lineID.String()
}
