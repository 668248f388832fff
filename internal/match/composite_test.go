package match

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brickellbay/paysync/internal/ingest"
)

func bankRow(id string, amount float64, date string, notes string) ingest.BankRow {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		panic(err)
	}
	direction := "In"
	if amount < 0 {
		direction = "Out"
		amount = -amount
	}
	return ingest.BankRow{
		RowID:     id,
		Date:      ingest.NewDate(d),
		Amount:    amount,
		Direction: direction,
		Notes:     notes,
		MergeKey:  ingest.MergeKey(d, amount, notes),
	}
}

func TestBuildCompositeEmpty(t *testing.T) {
	t.Parallel()

	_, err := BuildComposite(nil)
	require.ErrorIs(t, err, ErrEmptySelection)
}

func TestBuildCompositeSingleRow(t *testing.T) {
	t.Parallel()

	row := bankRow("1", 4000, "2025-11-28", "Zelle payment from DANIEL GRDADOLNIK for Rent")
	row.TenantCandidates = []string{"Daniel Grdadolnik"}
	row.ApartmentCandidates = []string{"630-205"}

	c, err := BuildComposite([]ingest.BankRow{row})
	require.NoError(t, err)
	require.Equal(t, 4000.0, c.AmountTotal)
	require.Equal(t, "In", c.Direction)
	require.Equal(t, 1, c.SelectedCount)
	require.Equal(t, row.Date.Time, c.DateFrom.Time)
	require.Equal(t, row.Date.Time, c.DateTo.Time)
	require.Equal(t, "630-205", c.ApartmentName)
	require.Equal(t, "Daniel Grdadolnik", c.TenantName)
	require.Equal(t, row.Notes, c.NotesCombined)
}

func TestBuildCompositeMergesRows(t *testing.T) {
	t.Parallel()

	a := bankRow("a", 100, "2025-11-15", "transfer PH-402 first")
	a.ApartmentCandidates = []string{"PH-402"}
	b := bankRow("b", 250, "2025-11-16", "transfer PH-402 second")
	b.ApartmentCandidates = []string{"PH-402"}
	b.TenantCandidates = []string{"Mike Shaw"}

	c, err := BuildComposite([]ingest.BankRow{a, b})
	require.NoError(t, err)
	require.Equal(t, 350.0, c.AmountTotal)
	require.Equal(t, 2, c.SelectedCount)
	require.Equal(t, "In", c.Direction)
	require.Equal(t, "2025-11-15", c.DateFrom.Format("2006-01-02"))
	require.Equal(t, "2025-11-16", c.DateTo.Format("2006-01-02"))
	require.Equal(t, []string{"PH-402"}, c.ApartmentCandidates)
	require.Equal(t, "transfer PH-402 first | transfer PH-402 second", c.NotesCombined)
}

func TestBuildCompositeMixedDirection(t *testing.T) {
	t.Parallel()

	in := bankRow("a", 100, "2025-11-15", "incoming")
	out := bankRow("b", -50, "2025-11-16", "outgoing")

	c, err := BuildComposite([]ingest.BankRow{in, out})
	require.NoError(t, err)
	require.Empty(t, c.Direction)
	require.Equal(t, 150.0, c.AmountTotal)
}
