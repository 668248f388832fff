// Package ingest parses the bank statement CSV export into normalized bank
// rows: amount and direction, best-guess dimension references, apartment and
// tenant candidates, and the stable merge key used for idempotent commits.
package ingest

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/brickellbay/paysync/internal/database/repository"
)

// BankRow is one transaction extracted from the CSV. Field names follow the
// wire format the reconciliation endpoints exchange with the operator UI.
type BankRow struct {
	RowID               string   `json:"id"`
	Date                Date     `json:"payment_date"`
	Amount              float64  `json:"amount"` // absolute value; see Direction
	Direction           string   `json:"payment_type_type"`
	Notes               string   `json:"notes"`
	PaymentTypeID       *int64   `json:"payment_type"`
	PaymentTypeName     string   `json:"payment_type_name,omitempty"`
	PaymentMethodID     *int64   `json:"payment_method"`
	PaymentMethodName   string   `json:"payment_method_name,omitempty"`
	BankID              *int64   `json:"bank"`
	BankName            string   `json:"bank_name,omitempty"`
	ApartmentID         *int64   `json:"apartment"`
	ApartmentName       string   `json:"apartment_name,omitempty"`
	TenantName          string   `json:"tenant_name,omitempty"`
	ApartmentCandidates []string `json:"apartment_candidates"`
	TenantCandidates    []string `json:"tenant_candidates"`
	MergeKey            string   `json:"merged_payment_key"`
	IsMerged            bool     `json:"is_merged"`
}

// Reference carries the dimension snapshots one parse run matches against.
// Snapshots are loaded once per request; the parser never touches the store.
type Reference struct {
	Methods     []repository.PaymentMethod
	Apartments  []repository.Apartment
	Types       []repository.PaymentType
	Bookings    []repository.Booking
	PrimaryBank string // bank name treated as the statement's own bank
}

// Result is the outcome of parsing one statement.
type Result struct {
	Rows      []BankRow
	StartDate time.Time
	EndDate   time.Time
	Warnings  []string
}

var (
	rowIDPattern = regexp.MustCompile(`@S3(\d+)`)
	// Greedy description, last two fields numeric-ish. Used when quoted-CSV
	// parsing cannot make sense of a line.
	looseRowPattern = regexp.MustCompile(`^([^,]+),(.+),("?\(?-?[0-9.,]+\)?"?),("?\(?-?[0-9.,]+\)?"?)\s*$`)
)

// ParseStatement reads the bank CSV export and returns normalized rows.
// Malformed or zero-amount rows are skipped with a warning; only a missing
// header is fatal.
func ParseStatement(r io.Reader, refs Reference) (Result, error) {
	var res Result

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return res, fmt.Errorf("read statement: %w", err)
	}

	start := headerIndex(lines)
	if start < 0 {
		return res, fmt.Errorf("statement does not contain the expected header")
	}

	bank := findStatementBank(refs)

	for i := start + 1; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		row, warn := parseLine(lines[i], i, refs, bank)
		if warn != "" {
			res.Warnings = append(res.Warnings, fmt.Sprintf("row %d: %s", i, warn))
			continue
		}
		res.Rows = append(res.Rows, row)
	}

	for _, row := range res.Rows {
		d := row.Date.Time
		if res.StartDate.IsZero() || d.Before(res.StartDate) {
			res.StartDate = d
		}
		if res.EndDate.IsZero() || d.After(res.EndDate) {
			res.EndDate = d
		}
	}
	return res, nil
}

// headerIndex finds the line whose lowercase, quote-stripped form starts the
// data section: "date,description,amount" plus a running-balance column.
func headerIndex(lines []string) int {
	for i, line := range lines {
		norm := strings.ToLower(strings.ReplaceAll(line, `"`, ""))
		norm = strings.TrimSpace(norm)
		if strings.HasPrefix(norm, "date,description,amount") && strings.Contains(norm, "running") {
			return i
		}
	}
	return -1
}

func parseLine(line string, idx int, refs Reference, bank *repository.PaymentMethod) (BankRow, string) {
	dateStr, desc, amountStr, ok := splitFields(line)
	if !ok {
		return BankRow{}, "cannot split fields"
	}

	date, err := time.Parse("01/02/2006", strings.TrimSpace(dateStr))
	if err != nil {
		return BankRow{}, fmt.Sprintf("bad date %q", strings.TrimSpace(dateStr))
	}

	amount, err := ParseAmount(amountStr)
	if err != nil {
		return BankRow{}, fmt.Sprintf("bad amount %q", strings.TrimSpace(amountStr))
	}
	if amount == 0 {
		return BankRow{}, "zero amount"
	}

	desc = strings.TrimSpace(desc)
	direction := repository.DirectionIn
	if amount < 0 {
		direction = repository.DirectionOut
	}

	row := BankRow{
		RowID:     rowID(desc, idx),
		Date:      NewDate(date),
		Amount:    absFloat(amount),
		Direction: direction,
		Notes:     desc,
		MergeKey:  MergeKey(date, amount, desc),
	}

	descLower := strings.ToLower(desc)

	if pt := matchPaymentType(descLower, direction, refs.Types); pt != nil {
		id := pt.ID
		row.PaymentTypeID = &id
		row.PaymentTypeName = fmt.Sprintf("%s (%s)", pt.Name, pt.Type)
	}
	if pm := matchPaymentMethod(descLower, refs.Methods); pm != nil {
		id := pm.ID
		row.PaymentMethodID = &id
		row.PaymentMethodName = pm.Name
	}
	if bank != nil {
		id := bank.ID
		row.BankID = &id
		row.BankName = bank.Name
	}

	if ap := matchApartment(descLower, refs.Apartments); ap != nil {
		id := ap.ID
		row.ApartmentID = &id
		row.ApartmentCandidates = appendUnique(row.ApartmentCandidates, ap.Name)
	}

	enrichFromBookings(&row, descLower, refs.Bookings)
	promoteSingles(&row)
	return row, ""
}

// ApplyBookings enriches already parsed rows against a booking snapshot and
// re-runs single-candidate promotion over the widened candidate sets. Callers
// use it when the booking window depends on the statement's date range, which
// is only known after parsing.
func ApplyBookings(rows []BankRow, bookings []repository.Booking) {
	for i := range rows {
		enrichFromBookings(&rows[i], strings.ToLower(rows[i].Notes), bookings)
		promoteSingles(&rows[i])
	}
}

// promoteSingles names the apartment and tenant when exactly one candidate
// remains, and clears a stale name otherwise.
func promoteSingles(row *BankRow) {
	row.ApartmentName = ""
	if len(row.ApartmentCandidates) == 1 {
		row.ApartmentName = row.ApartmentCandidates[0]
	}
	row.TenantName = ""
	if len(row.TenantCandidates) == 1 {
		row.TenantName = row.TenantCandidates[0]
	}
}

// splitFields tokenizes one data line: quoted-CSV first, loose regex second.
func splitFields(line string) (dateStr, desc, amountStr string, ok bool) {
	rec, err := csv.NewReader(strings.NewReader(line)).Read()
	if err == nil && len(rec) >= 4 {
		n := len(rec)
		return rec[0], strings.Join(rec[1:n-2], ","), rec[n-2], true
	}
	m := looseRowPattern.FindStringSubmatch(line)
	if m == nil {
		return "", "", "", false
	}
	return m[1], m[2], m[3], true
}

// ParseAmount normalizes a statement amount: wrapping quotes and thousands
// separators are stripped, and parenthesized values are negative.
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"`)
	s = strings.ReplaceAll(s, ",", "")
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if neg {
		f = -f
	}
	return f, nil
}

func rowID(desc string, idx int) string {
	if m := rowIDPattern.FindStringSubmatch(desc); m != nil {
		return m[1]
	}
	return fmt.Sprintf("id_%d", idx)
}

func matchPaymentMethod(descLower string, methods []repository.PaymentMethod) *repository.PaymentMethod {
	for i := range methods {
		if methods[i].Name != "" && strings.Contains(descLower, strings.ToLower(methods[i].Name)) {
			return &methods[i]
		}
	}
	if strings.Contains(descLower, "deposit *mobile") {
		for i := range methods {
			if methods[i].Name == "Check" {
				return &methods[i]
			}
		}
	}
	for i := range methods {
		if anyKeywordIn(methods[i].Keywords, descLower) {
			return &methods[i]
		}
	}
	return nil
}

func matchApartment(descLower string, apartments []repository.Apartment) *repository.Apartment {
	for i := range apartments {
		if apartments[i].Name != "" && strings.Contains(descLower, strings.ToLower(apartments[i].Name)) {
			return &apartments[i]
		}
	}
	for i := range apartments {
		if anyKeywordIn(apartments[i].Keywords, descLower) {
			return &apartments[i]
		}
	}
	return nil
}

// matchPaymentType picks the type whose name appears in the description,
// then the best keyword hit by (hit count, longest hit), then the "Other"
// type for the row's direction, then any type with the right direction.
func matchPaymentType(descLower, direction string, types []repository.PaymentType) *repository.PaymentType {
	for i := range types {
		if types[i].Type != direction {
			continue
		}
		if types[i].Name != "" && strings.Contains(descLower, strings.ToLower(types[i].Name)) {
			return &types[i]
		}
	}

	var best *repository.PaymentType
	bestHits, bestLongest := 0, 0
	for i := range types {
		if types[i].Type != direction {
			continue
		}
		hits, longest := keywordHits(types[i].Keywords, descLower)
		if hits > bestHits || (hits == bestHits && hits > 0 && longest > bestLongest) {
			best = &types[i]
			bestHits, bestLongest = hits, longest
		}
	}
	if best != nil {
		return best
	}

	for i := range types {
		if types[i].Type == direction && types[i].Name == "Other" {
			return &types[i]
		}
	}
	for i := range types {
		if types[i].Type == direction {
			return &types[i]
		}
	}
	return nil
}

// enrichFromBookings adds a booking's apartment and tenant to the row's
// candidate lists when the description mentions the tenant (full name or any
// name token of length >= 2) or any booking keyword.
func enrichFromBookings(row *BankRow, descLower string, bookings []repository.Booking) {
	for _, b := range bookings {
		if b.Tenant == nil || b.Apartment == nil {
			continue
		}
		hit := false
		full := strings.ToLower(strings.TrimSpace(b.Tenant.FullName))
		if full != "" && strings.Contains(descLower, full) {
			hit = true
		}
		if !hit {
			for _, tok := range strings.Fields(full) {
				if len(tok) >= 2 && strings.Contains(descLower, tok) {
					hit = true
					break
				}
			}
		}
		if !hit && anyKeywordIn(b.Keywords, descLower) {
			hit = true
		}
		if !hit {
			continue
		}
		row.ApartmentCandidates = appendUnique(row.ApartmentCandidates, b.Apartment.Name)
		row.TenantCandidates = appendUnique(row.TenantCandidates, b.Tenant.FullName)
	}
}

// findStatementBank resolves the fixed per-file bank: the Bank-typed method
// named like the configured primary bank, falling back to any Bank-typed
// method whose name mentions "bank of america".
func findStatementBank(refs Reference) *repository.PaymentMethod {
	for i := range refs.Methods {
		if refs.Methods[i].Type == "Bank" && strings.EqualFold(refs.Methods[i].Name, refs.PrimaryBank) {
			return &refs.Methods[i]
		}
	}
	for i := range refs.Methods {
		if refs.Methods[i].Type == "Bank" && strings.Contains(strings.ToLower(refs.Methods[i].Name), "bank of america") {
			return &refs.Methods[i]
		}
	}
	return nil
}

func anyKeywordIn(keywords, haystackLower string) bool {
	for _, kw := range splitKeywords(keywords) {
		if strings.Contains(haystackLower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func keywordHits(keywords, haystackLower string) (hits, longest int) {
	for _, kw := range splitKeywords(keywords) {
		if strings.Contains(haystackLower, strings.ToLower(kw)) {
			hits++
			if len(kw) > longest {
				longest = len(kw)
			}
		}
	}
	return hits, longest
}

func splitKeywords(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// appendUnique keeps first-seen order and case-sensitive uniqueness.
func appendUnique(list []string, v string) []string {
	if v == "" {
		return list
	}
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
