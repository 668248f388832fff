package match

import (
	"math"
	"sort"
	"strings"

	"github.com/brickellbay/paysync/internal/database/repository"
)

// Config carries the scoring knobs. Deltas widen linearly with the number of
// selected bank rows so multi-row composites keep a fair amount window.
type Config struct {
	AmountDelta    float64
	DateDelta      int
	PrimaryBank    string
	BankPenalty    float64
	MaxSuggestions int
}

// Point weights per dimension. Keywords dominate on purpose: curated keywords
// are the strongest operator signal we have.
const (
	amountPoints      = 20
	datePoints        = 20
	apartmentPoints   = 20
	tenantPoints      = 20
	typePoints        = 20
	typeOtherPoints   = 5
	methodPoints      = 5
	keywordPoints     = 50
	statusScoreFactor = 0.5
)

// Quality buckets over the final clamped score.
const (
	QualityHigh   = "high"
	QualityMedium = "medium"
	QualityLow    = "low"
	QualityNone   = "none"
)

// BreakdownDetail explains one scored dimension.
type BreakdownDetail struct {
	Field   string  `json:"field"`
	Label   string  `json:"label"`
	Value   string  `json:"value"`
	Score   float64 `json:"score"`
	Max     float64 `json:"max"`
	Matched bool    `json:"matched"`
}

// Penalty is a negative adjustment applied after the dimension sum.
type Penalty struct {
	Field string  `json:"field"`
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Suggestion is one ranked ledger candidate with its full scoring trail.
type Suggestion struct {
	DBPayment        Snapshot           `json:"db_payment"`
	Score            float64            `json:"score"`
	MatchType        string             `json:"match_type"`
	Criteria         string             `json:"criteria"`
	Breakdown        map[string]float64 `json:"breakdown"`
	BreakdownDetails []BreakdownDetail  `json:"breakdown_details"`
	Penalties        []Penalty          `json:"penalties"`
	MatchedKeywords  []string           `json:"matched_keywords"`
	Quality          string             `json:"quality"`
	StatusPenalty    bool               `json:"status_penalty"`
}

// Score evaluates one ledger payment against a composite. It returns nil when
// the candidate is filtered out entirely (opposite direction with a unanimous
// selection).
func Score(p repository.Payment, c Composite, cfg Config) *Suggestion {
	direction := ""
	if p.PaymentType != nil {
		direction = p.PaymentType.Type
	}
	if c.Direction != "" && direction != "" && direction != c.Direction {
		return nil
	}

	s := &Suggestion{
		DBPayment: SnapshotOf(p),
		MatchType: "manual",
		Breakdown: map[string]float64{},
	}

	// Amount window widens with the selection size.
	window := cfg.AmountDelta * math.Max(1, float64(c.SelectedCount))
	diff := math.Abs(math.Abs(p.Amount) - c.AmountTotal)
	s.addDetail("amount", "Amount", s.DBPayment.Amount, amountPoints, diff <= window)

	days := DaysFromRange(p.Date, c.DateFrom.Time, c.DateTo.Time)
	s.addDetail("date", "Date", s.DBPayment.PaymentDate, datePoints, days <= cfg.DateDelta)

	apt := p.ApartmentName()
	s.addDetail("apartment", "Apartment", apt, apartmentPoints,
		apt != "" && containsFold(c.ApartmentCandidates, apt))

	tenant := p.TenantName()
	tenantHit := tenant != "" && containsFold(c.TenantCandidates, tenant)
	if !tenantHit && tenant != "" {
		notes := strings.ToLower(c.NotesCombined)
		for _, tok := range tokens(tenant) {
			if strings.Contains(notes, tok) {
				tenantHit = true
				break
			}
		}
	}
	s.addDetail("tenant", "Tenant", tenant, tenantPoints, tenantHit)

	typeName, typeMax := "", float64(typePoints)
	typeHit := false
	if p.PaymentType != nil {
		typeName = p.PaymentType.Name
		if strings.EqualFold(typeName, "Other") {
			typeMax = typeOtherPoints
		}
		typeHit = c.Direction != "" && p.PaymentType.Type == c.Direction
	}
	s.addDetail("payment_type", "Payment type", typeName, typeMax, typeHit)

	method := ""
	methodHit := false
	if p.PaymentMethod != nil {
		method = p.PaymentMethod.Name
		methodHit = strings.EqualFold(method, c.PaymentMethodName) ||
			containsFold(c.PaymentMethodCandidates, method)
	}
	s.addDetail("payment_method", "Payment method", method, methodPoints, methodHit)

	notes := strings.ToLower(c.NotesCombined)
	for _, kw := range tokens(p.Keywords) {
		if strings.Contains(notes, kw) {
			s.MatchedKeywords = append(s.MatchedKeywords, kw)
		}
	}
	s.addDetail("keywords", "Keywords", strings.Join(s.MatchedKeywords, ", "),
		keywordPoints, len(s.MatchedKeywords) > 0)

	total := 0.0
	for _, d := range s.BreakdownDetails {
		total += d.Score
	}

	if p.Bank != nil && cfg.PrimaryBank != "" && !strings.EqualFold(p.Bank.Name, cfg.PrimaryBank) {
		pen := Penalty{Field: "bank", Label: "Bank mismatch", Score: -cfg.BankPenalty}
		s.Penalties = append(s.Penalties, pen)
		total += pen.Score
	}

	total = math.Min(100, math.Max(0, total))
	if p.Status == repository.StatusConfirmed || p.Status == repository.StatusMerged {
		total *= statusScoreFactor
		s.StatusPenalty = true
	}
	s.Score = total
	s.Quality = QualityOf(total)
	s.Criteria = s.criteria()
	return s
}

// Rank scores every candidate, drops direction-filtered ones, orders by score
// descending with a stable sort, and keeps the top cfg.MaxSuggestions.
func Rank(candidates []repository.Payment, c Composite, cfg Config) []Suggestion {
	out := make([]Suggestion, 0, len(candidates))
	for _, p := range candidates {
		if sg := Score(p, c, cfg); sg != nil {
			out = append(out, *sg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if cfg.MaxSuggestions > 0 && len(out) > cfg.MaxSuggestions {
		out = out[:cfg.MaxSuggestions]
	}
	return out
}

func (s *Suggestion) addDetail(field, label, value string, max float64, matched bool) {
	score := 0.0
	if matched {
		score = max
	}
	s.Breakdown[field] = score
	s.BreakdownDetails = append(s.BreakdownDetails, BreakdownDetail{
		Field: field, Label: label, Value: value,
		Score: score, Max: max, Matched: matched,
	})
}

func (s *Suggestion) criteria() string {
	var hit []string
	for _, d := range s.BreakdownDetails {
		if d.Matched {
			hit = append(hit, strings.ToLower(d.Label))
		}
	}
	if len(hit) == 0 {
		return "no criteria matched"
	}
	return "matched " + strings.Join(hit, ", ")
}

// QualityOf buckets a final score.
func QualityOf(score float64) string {
	switch {
	case score >= 70:
		return QualityHigh
	case score >= 40:
		return QualityMedium
	case score >= 20:
		return QualityLow
	default:
		return QualityNone
	}
}

// tokens splits on commas and whitespace and keeps lowercase tokens of three
// or more characters. Shorter tokens match too much noise in bank notes.
func tokens(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	out := fields[:0]
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if len(f) >= 3 {
			out = append(out, f)
		}
	}
	return out
}

func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}
