package match

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brickellbay/paysync/internal/database/repository"
	"github.com/brickellbay/paysync/internal/ingest"
)

func testScorerConfig() Config {
	return Config{
		AmountDelta:    100,
		DateDelta:      4,
		PrimaryBank:    "BA",
		BankPenalty:    30,
		MaxSuggestions: 50,
	}
}

func ledgerPayment(id int64, amount float64, date string) repository.Payment {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		panic(err)
	}
	return repository.Payment{
		ID:          id,
		Amount:      amount,
		Date:        d,
		Status:      repository.StatusPending,
		PaymentType: &repository.PaymentType{ID: 10, Name: "Rent", Type: "In"},
	}
}

func rentComposite(t *testing.T) Composite {
	t.Helper()
	row := bankRow("1", 4000, "2025-11-28", "Zelle payment from DANIEL GRDADOLNIK for Rent")
	c, err := BuildComposite([]ingest.BankRow{row})
	require.NoError(t, err)
	return c
}

func TestScoreExactMatch(t *testing.T) {
	t.Parallel()

	p := ledgerPayment(42, 4000, "2025-11-28")
	p.Apartment = &repository.Apartment{ID: 20, Name: "630-205"}
	p.Booking = &repository.Booking{Tenant: &repository.Tenant{FullName: "Daniel Grdadolnik"}}
	p.Bank = &repository.PaymentMethod{Name: "BA", Type: "Bank"}
	p.Keywords = "Daniel,Grdadolnik"

	sg := Score(p, rentComposite(t), testScorerConfig())
	require.NotNil(t, sg)
	require.GreaterOrEqual(t, sg.Score, 90.0)
	require.Equal(t, QualityHigh, sg.Quality)
	require.Empty(t, sg.Penalties)
	require.False(t, sg.StatusPenalty)
	require.Equal(t, 20.0, sg.Breakdown["amount"])
	require.Equal(t, 20.0, sg.Breakdown["date"])
	require.Equal(t, 20.0, sg.Breakdown["tenant"])
	require.Equal(t, 50.0, sg.Breakdown["keywords"])
	require.ElementsMatch(t, []string{"daniel", "grdadolnik"}, sg.MatchedKeywords)
}

func TestScoreBankPenalty(t *testing.T) {
	t.Parallel()

	p := ledgerPayment(42, 4000, "2025-11-28")
	p.Booking = &repository.Booking{Tenant: &repository.Tenant{FullName: "Daniel Grdadolnik"}}
	p.Bank = &repository.PaymentMethod{Name: "Chase", Type: "Bank"}

	// No keywords, so the sum sits below the clamp ceiling and the penalty
	// is visible in the final score: amount+date+tenant+type = 80, minus 30.
	sg := Score(p, rentComposite(t), testScorerConfig())
	require.NotNil(t, sg)
	require.Len(t, sg.Penalties, 1)
	require.Equal(t, -30.0, sg.Penalties[0].Score)
	require.Equal(t, 50.0, sg.Score)
	require.Equal(t, QualityMedium, sg.Quality)

	// Case-insensitive primary bank comparison.
	for _, name := range []string{"ba", "BA", "Ba"} {
		p.Bank = &repository.PaymentMethod{Name: name, Type: "Bank"}
		sg := Score(p, rentComposite(t), testScorerConfig())
		require.NotNil(t, sg)
		require.Empty(t, sg.Penalties, name)
	}
}

func TestScoreCompositeOfTwoRows(t *testing.T) {
	t.Parallel()

	a := bankRow("a", 100, "2025-11-15", "transfer PH-402 first")
	a.ApartmentCandidates = []string{"PH-402"}
	b := bankRow("b", 250, "2025-11-16", "transfer PH-402 second")
	b.ApartmentCandidates = []string{"PH-402"}
	c, err := BuildComposite([]ingest.BankRow{a, b})
	require.NoError(t, err)

	p := ledgerPayment(7, 350, "2025-11-16")
	p.Apartment = &repository.Apartment{Name: "PH-402"}

	// Two selected rows double the amount window: delta 100 becomes 200.
	sg := Score(p, c, testScorerConfig())
	require.NotNil(t, sg)
	require.Equal(t, 20.0, sg.Breakdown["amount"])
	require.Equal(t, 20.0, sg.Breakdown["date"])
	require.Equal(t, 20.0, sg.Breakdown["apartment"])
}

func TestScoreDirectionFilter(t *testing.T) {
	t.Parallel()

	row := bankRow("1", -500, "2025-11-28", "outgoing wire")
	c, err := BuildComposite([]ingest.BankRow{row})
	require.NoError(t, err)

	p := ledgerPayment(1, 500, "2025-11-28") // payment type In
	require.Nil(t, Score(p, c, testScorerConfig()))
}

func TestScoreBoundariesInclusive(t *testing.T) {
	t.Parallel()

	c := rentComposite(t)
	cfg := testScorerConfig()

	// Amount difference of exactly amount_delta x selected_count still scores.
	p := ledgerPayment(1, 4100, "2025-11-28")
	sg := Score(p, c, cfg)
	require.NotNil(t, sg)
	require.Equal(t, 20.0, sg.Breakdown["amount"])

	p = ledgerPayment(2, 4100.01, "2025-11-28")
	sg = Score(p, c, cfg)
	require.NotNil(t, sg)
	require.Equal(t, 0.0, sg.Breakdown["amount"])

	// Date exactly date_delta days outside the range still scores.
	p = ledgerPayment(3, 4000, "2025-12-02")
	sg = Score(p, c, cfg)
	require.NotNil(t, sg)
	require.Equal(t, 20.0, sg.Breakdown["date"])

	p = ledgerPayment(4, 4000, "2025-12-03")
	sg = Score(p, c, cfg)
	require.NotNil(t, sg)
	require.Equal(t, 0.0, sg.Breakdown["date"])
}

func TestScoreStatusPenaltyHalves(t *testing.T) {
	t.Parallel()

	c := rentComposite(t)
	cfg := testScorerConfig()

	pending := ledgerPayment(1, 4000, "2025-11-28")
	merged := ledgerPayment(2, 4000, "2025-11-28")
	merged.Status = repository.StatusMerged

	base := Score(pending, c, cfg)
	halved := Score(merged, c, cfg)
	require.NotNil(t, base)
	require.NotNil(t, halved)
	require.False(t, base.StatusPenalty)
	require.True(t, halved.StatusPenalty)
	require.Equal(t, base.Score/2, halved.Score)
}

func TestScoreBreakdownSumsToScore(t *testing.T) {
	t.Parallel()

	p := ledgerPayment(42, 4000, "2025-11-28")
	p.Bank = &repository.PaymentMethod{Name: "Chase", Type: "Bank"}
	sg := Score(p, rentComposite(t), testScorerConfig())
	require.NotNil(t, sg)

	sum := 0.0
	for _, d := range sg.BreakdownDetails {
		sum += d.Score
	}
	for _, pen := range sg.Penalties {
		sum += pen.Score
	}
	if sum < 0 {
		sum = 0
	} else if sum > 100 {
		sum = 100
	}
	require.Equal(t, sum, sg.Score)
}

func TestRankOrdersAndCaps(t *testing.T) {
	t.Parallel()

	c := rentComposite(t)
	cfg := testScorerConfig()
	cfg.MaxSuggestions = 3

	var candidates []repository.Payment
	for i := 0; i < 6; i++ {
		// Increasing amounts drift away from the composite total, so later
		// candidates lose the amount score.
		p := ledgerPayment(int64(i+1), 4000+float64(i)*90, "2025-11-28")
		p.Notes = fmt.Sprintf("candidate %d", i)
		candidates = append(candidates, p)
	}

	ranked := Rank(candidates, c, cfg)
	require.Len(t, ranked, 3)
	for i := 1; i < len(ranked); i++ {
		require.GreaterOrEqual(t, ranked[i-1].Score, ranked[i].Score)
	}
	// Equal scores keep input order.
	require.Equal(t, int64(1), ranked[0].DBPayment.ID)
	require.Equal(t, int64(2), ranked[1].DBPayment.ID)
}
