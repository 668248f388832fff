package llm

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brickellbay/paysync/internal/match"
)

func snapshot(id int64, amount string, direction string) match.Snapshot {
	return match.Snapshot{
		ID:          id,
		Amount:      amount,
		PaymentDate: "2025-11-28",
		Direction:   direction,
	}
}

func TestPrefilterKeepsAmountCompatible(t *testing.T) {
	t.Parallel()

	c := match.Composite{AmountTotal: 4000, Direction: "In", SelectedCount: 1}
	candidates := []match.Snapshot{
		snapshot(1, "4000.00", "In"),
		snapshot(2, "9000.00", "In"), // out of window
		snapshot(3, "4050.00", "In"),
		snapshot(4, "4000.00", "Out"), // wrong direction
	}

	got := Prefilter(c, candidates, 100, 2)
	require.Len(t, got, 2)
	for _, s := range got {
		require.Contains(t, []int64{1, 3}, s.ID)
	}
}

func TestPrefilterFallsBackToDirectionOnly(t *testing.T) {
	t.Parallel()

	c := match.Composite{AmountTotal: 4000, Direction: "In", SelectedCount: 1}
	candidates := []match.Snapshot{
		snapshot(1, "9000.00", "In"),
		snapshot(2, "8000.00", "In"),
		snapshot(3, "7000.00", "Out"),
	}

	// Nothing passes the amount window, so direction-compatible rows stay.
	got := Prefilter(c, candidates, 100, 2)
	require.Len(t, got, 2)
	for _, s := range got {
		require.Equal(t, "In", s.Direction)
	}
}

func TestPrefilterNoCapNeeded(t *testing.T) {
	t.Parallel()

	candidates := []match.Snapshot{snapshot(1, "10.00", "In")}
	got := Prefilter(match.Composite{}, candidates, 100, 100)
	require.Equal(t, candidates, got)
}

func TestPrefilterPrefersCloserAmounts(t *testing.T) {
	t.Parallel()

	c := match.Composite{AmountTotal: 4000, Direction: "In", SelectedCount: 1}
	var candidates []match.Snapshot
	for i := 0; i < 10; i++ {
		candidates = append(candidates, snapshot(int64(i+1), fmt.Sprintf("%d.00", 4000+i*10), "In"))
	}

	got := Prefilter(c, candidates, 100, 3)
	require.Len(t, got, 3)
	require.Equal(t, int64(1), got[0].ID)
}

func TestParseRankingStrict(t *testing.T) {
	t.Parallel()

	candidates := []match.Snapshot{snapshot(1, "100.00", "In"), snapshot(2, "200.00", "In")}
	ranked, err := parseRanking(`[{"db_id":2,"score":80,"reasoning":"amount"},{"db_id":1,"score":40,"reasoning":"weak"}]`, candidates)
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	require.Equal(t, int64(2), ranked[0].DBID)
	require.Equal(t, 80.0, ranked[0].Score)
}

func TestParseRankingExtractsEmbeddedArray(t *testing.T) {
	t.Parallel()

	candidates := []match.Snapshot{snapshot(1, "100.00", "In")}
	content := "Here is my answer:\n```json\n[{\"db_id\":1,\"score\":120,\"reasoning\":\"x\"}]\n```"
	ranked, err := parseRanking(content, candidates)
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	require.Equal(t, 100.0, ranked[0].Score) // clamped
}

func TestParseRankingDropsUnknownIDs(t *testing.T) {
	t.Parallel()

	candidates := []match.Snapshot{snapshot(1, "100.00", "In")}
	ranked, err := parseRanking(`[{"db_id":99,"score":90},{"db_id":1,"score":-5}]`, candidates)
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	require.Equal(t, int64(1), ranked[0].DBID)
	require.Equal(t, 0.0, ranked[0].Score)
}

func TestParseRankingGarbage(t *testing.T) {
	t.Parallel()

	_, err := parseRanking("I cannot help with that.", nil)
	require.Error(t, err)
}
