package measure

import (
	"fmt"
	"strconv"
)

// Report is the outcome of validating one batch of result rows.
type Report struct {
	Valid  bool     `json:"valid"`
	Issues []string `json:"issues,omitempty"`
}

// Validate gates a batch of result rows before they reach durable
// storage. It catches structural corruption (short rows, unparseable
// values) and the zero-valued rows a terminally failed measurement
// produces: a real Ls-Rs measurement always yields strictly positive
// inductance and resistance, so zero or negative readings are
// instrument or communication failures, never data. Validate never
// panics and always returns a complete report.
func Validate(rows [][]string) Report {
	var issues []string

	if len(rows) == 0 {
		return Report{Valid: false, Issues: []string{"no measurement data was collected"}}
	}

	for i, row := range rows {
		if len(row) < 5 {
			issues = append(issues, fmt.Sprintf("record %d: incomplete measurement data", i+1))
			continue
		}

		if primary, err := strconv.ParseFloat(row[3], 64); err != nil {
			issues = append(issues, fmt.Sprintf("record %d: unparseable inductance value %q", i+1, row[3]))
		} else if primary <= 0 {
			issues = append(issues, fmt.Sprintf("record %d: invalid inductance value %s (must be > 0)", i+1, row[3]))
		}

		if secondary, err := strconv.ParseFloat(row[4], 64); err != nil {
			issues = append(issues, fmt.Sprintf("record %d: unparseable resistance value %q", i+1, row[4]))
		} else if secondary <= 0 {
			issues = append(issues, fmt.Sprintf("record %d: invalid resistance value %s (must be > 0)", i+1, row[4]))
		}
	}

	return Report{Valid: len(issues) == 0, Issues: issues}
}
