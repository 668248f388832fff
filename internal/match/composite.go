// Package match scores ledger candidates against a selection of bank rows
// and explains every score with a per-dimension breakdown.
package match

import (
	"errors"
	"strings"
	"time"

	"github.com/brickellbay/paysync/internal/ingest"
)

// Composite is the aggregate view of a selection of bank rows presented to
// the scorer. It is ephemeral per request.
type Composite struct {
	AmountTotal             float64     `json:"amount_total"`
	DateFrom                ingest.Date `json:"date_from"`
	DateTo                  ingest.Date `json:"date_to"`
	Direction               string      `json:"direction"` // empty when the selection disagrees
	ApartmentName           string      `json:"apartment_name"`
	ApartmentCandidates     []string    `json:"apartment_candidates"`
	TenantName              string      `json:"tenant_name"`
	TenantCandidates        []string    `json:"tenant_candidates"`
	PaymentMethodName       string      `json:"payment_method_name"`
	PaymentMethodCandidates []string    `json:"payment_method_candidates"`
	BankName                string      `json:"bank_name"`
	BankCandidates          []string    `json:"bank_candidates"`
	NotesCombined           string      `json:"notes_combined"`
	SelectedCount           int         `json:"selected_count"`
}

// ErrEmptySelection is returned when a composite is requested for zero rows.
var ErrEmptySelection = errors.New("empty selection")

// BuildComposite folds a selection of bank rows into one composite. Amounts
// sum; the date range spans the selection; the direction survives only when
// unanimous, which deliberately disables the scorer's direction filter for
// mixed selections. Candidate lists keep first-seen order.
func BuildComposite(rows []ingest.BankRow) (Composite, error) {
	if len(rows) == 0 {
		return Composite{}, ErrEmptySelection
	}

	var c Composite
	c.SelectedCount = len(rows)

	var notes []string
	direction := rows[0].Direction
	for _, row := range rows {
		c.AmountTotal += row.Amount

		d := row.Date.Time
		if c.DateFrom.IsZero() || d.Before(c.DateFrom.Time) {
			c.DateFrom = ingest.NewDate(d)
		}
		if c.DateTo.IsZero() || d.After(c.DateTo.Time) {
			c.DateTo = ingest.NewDate(d)
		}
		if row.Direction != direction {
			direction = ""
		}

		c.ApartmentCandidates = mergeUnique(c.ApartmentCandidates, row.ApartmentName)
		c.ApartmentCandidates = mergeUnique(c.ApartmentCandidates, row.ApartmentCandidates...)
		c.TenantCandidates = mergeUnique(c.TenantCandidates, row.TenantName)
		c.TenantCandidates = mergeUnique(c.TenantCandidates, row.TenantCandidates...)
		c.PaymentMethodCandidates = mergeUnique(c.PaymentMethodCandidates, row.PaymentMethodName)
		c.BankCandidates = mergeUnique(c.BankCandidates, row.BankName)

		if n := strings.TrimSpace(row.Notes); n != "" {
			notes = append(notes, n)
		}
	}
	c.Direction = direction
	c.NotesCombined = strings.Join(notes, " | ")

	if len(c.ApartmentCandidates) == 1 {
		c.ApartmentName = c.ApartmentCandidates[0]
	}
	if len(c.TenantCandidates) == 1 {
		c.TenantName = c.TenantCandidates[0]
	}
	if len(c.PaymentMethodCandidates) == 1 {
		c.PaymentMethodName = c.PaymentMethodCandidates[0]
	}
	if len(c.BankCandidates) == 1 {
		c.BankName = c.BankCandidates[0]
	}
	return c, nil
}

// DaysFromRange returns how many days d falls outside [from, to]; zero when
// inside.
func DaysFromRange(d, from, to time.Time) int {
	if d.Before(from) {
		return int(from.Sub(d).Hours() / 24)
	}
	if d.After(to) {
		return int(d.Sub(to).Hours() / 24)
	}
	return 0
}

func mergeUnique(list []string, values ...string) []string {
	for _, v := range values {
		if v == "" {
			continue
		}
		seen := false
		for _, existing := range list {
			if existing == v {
				seen = true
				break
			}
		}
		if !seen {
			list = append(list, v)
		}
	}
	return list
}
