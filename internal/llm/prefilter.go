package llm

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"

	"github.com/brickellbay/paysync/internal/match"
)

// Prefilter trims the candidate list before it hits the model. Token-priced
// APIs make sending hundreds of ledger rows pointless, so we keep the max
// most plausible ones: amount-compatible rows of the right direction first,
// falling back to direction-only when the amount window filters everything.
func Prefilter(c match.Composite, candidates []match.Snapshot, amountDelta float64, max int) []match.Snapshot {
	if max <= 0 || len(candidates) <= max {
		return candidates
	}

	window := amountDelta * math.Max(1, float64(c.SelectedCount))
	compatible := make([]match.Snapshot, 0, len(candidates))
	for _, cand := range candidates {
		if directionOK(c, cand) && math.Abs(parseAmount(cand.Amount)-c.AmountTotal) <= window {
			compatible = append(compatible, cand)
		}
	}
	if len(compatible) == 0 {
		for _, cand := range candidates {
			if directionOK(c, cand) {
				compatible = append(compatible, cand)
			}
		}
	}
	if len(compatible) == 0 {
		compatible = candidates
	}

	sort.SliceStable(compatible, func(i, j int) bool {
		return affinity(c, compatible[i]) > affinity(c, compatible[j])
	})
	if len(compatible) > max {
		compatible = compatible[:max]
	}
	return compatible
}

// affinity is a cheap closeness estimate used only for prefilter ordering.
func affinity(c match.Composite, cand match.Snapshot) float64 {
	score := 0.0

	if c.AmountTotal > 0 {
		diff := math.Abs(parseAmount(cand.Amount) - c.AmountTotal)
		score += 40 * math.Max(0, 1-diff/c.AmountTotal)
	}

	if d, err := time.Parse("2006-01-02", cand.PaymentDate); err == nil && !c.DateFrom.IsZero() {
		days := match.DaysFromRange(d, c.DateFrom.Time, c.DateTo.Time)
		score += 20 * math.Max(0, 1-float64(days)/30)
	}

	if cand.ApartmentName != "" {
		for _, apt := range c.ApartmentCandidates {
			if strings.EqualFold(apt, cand.ApartmentName) {
				score += 25
				break
			}
		}
	}

	if cand.TenantName != "" && len(c.TenantCandidates) > 0 {
		best := 0.0
		for _, t := range c.TenantCandidates {
			if s := nameSimilarity(cand.TenantName, t); s > best {
				best = s
			}
		}
		score += 25 * best
	}

	notes := strings.ToLower(c.NotesCombined)
	for _, tok := range strings.Fields(strings.ToLower(cand.Keywords + " " + cand.Notes)) {
		if len(tok) >= 3 && strings.Contains(notes, tok) {
			score += 10
			break
		}
	}
	return score
}

// nameSimilarity is normalized edit distance over lowercased names, in [0,1].
func nameSimilarity(a, b string) float64 {
	a, b = strings.ToLower(strings.TrimSpace(a)), strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	d := levenshtein.ComputeDistance(a, b)
	return 1 - float64(d)/float64(longest)
}

func directionOK(c match.Composite, cand match.Snapshot) bool {
	return c.Direction == "" || cand.Direction == "" || cand.Direction == c.Direction
}

func parseAmount(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return math.Abs(v)
}
