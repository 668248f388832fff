package ingest

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/brickellbay/paysync/internal/database/repository"
)

// MergeKey derives the stable identifier of a bank transaction from its
// date, amount and raw description. Re-parsing the same statement line must
// yield the same bytes, so the formatting here cannot change: the date is
// rendered MM/DD/YYYY and the amount goes through FormatAmount. The stored
// multi-key separator is reserved and scrubbed from the description.
func MergeKey(date time.Time, amount float64, description string) string {
	description = strings.ReplaceAll(description, repository.PaymentKeySeparator, " ")
	return date.Format("01/02/2006") + FormatAmount(amount) + description
}

// FormatAmount renders the absolute amount with six decimals and strips
// trailing zeros, then a trailing dot: 4000.0 -> "4000", 178.85 -> "178.85".
func FormatAmount(amount float64) string {
	s := fmt.Sprintf("%f", math.Abs(amount))
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
