package ingest

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brickellbay/paysync/internal/database/repository"
)

func testReference() Reference {
	return Reference{
		PrimaryBank: "BA",
		Methods: []repository.PaymentMethod{
			{ID: 1, Name: "BA", Type: "Bank", Keywords: "bank of america"},
			{ID: 2, Name: "Wire", Type: "General"},
			{ID: 3, Name: "Zelle", Type: "General"},
			{ID: 4, Name: "Check", Type: "General", Keywords: "deposit *mobile"},
		},
		Types: []repository.PaymentType{
			{ID: 10, Name: "Rent", Type: "In", Keywords: "rent,renta"},
			{ID: 11, Name: "Other", Type: "In"},
			{ID: 12, Name: "Utilities", Type: "Out", Keywords: "fpl,electric"},
			{ID: 13, Name: "Other", Type: "Out"},
		},
		Apartments: []repository.Apartment{
			{ID: 20, Name: "630-205", Keywords: "205"},
			{ID: 21, Name: "PH-402"},
		},
		Bookings: []repository.Booking{
			{
				ID:        30,
				Apartment: &repository.Apartment{ID: 20, Name: "630-205"},
				Tenant:    &repository.Tenant{ID: 40, FullName: "Daniel Grdadolnik"},
			},
		},
	}
}

const statementHeader = "Date,Description,Amount,Running Bal."

func TestParseStatementFull(t *testing.T) {
	t.Parallel()

	data := strings.Join([]string{
		"Beginning balance as of 11/01/2025",
		"some other preamble,,,",
		statementHeader,
		`11/28/2025,"Zelle payment from DANIEL GRDADOLNIK for Rent @S3123456",4000.00,54000.00`,
		`11/29/2025,"FPL DIRECT DEBIT electric bill",(150.25),"53,849.75"`,
		`11/30/2025,"Counter Credit deposit *mobile PH-402","1,000.00","54,849.75"`,
	}, "\n")

	res, err := ParseStatement(strings.NewReader(data), testReference())
	require.NoError(t, err)
	require.Empty(t, res.Warnings)
	require.Len(t, res.Rows, 3)
	require.Equal(t, time.Date(2025, 11, 28, 0, 0, 0, 0, time.UTC), res.StartDate)
	require.Equal(t, time.Date(2025, 11, 30, 0, 0, 0, 0, time.UTC), res.EndDate)

	rent := res.Rows[0]
	require.Equal(t, "123456", rent.RowID)
	require.Equal(t, 4000.00, rent.Amount)
	require.Equal(t, "In", rent.Direction)
	require.Equal(t, "Rent (In)", rent.PaymentTypeName)
	require.Equal(t, "Zelle", rent.PaymentMethodName)
	require.Equal(t, "BA", rent.BankName)
	require.Equal(t, []string{"630-205"}, rent.ApartmentCandidates)
	require.Equal(t, []string{"Daniel Grdadolnik"}, rent.TenantCandidates)
	require.Equal(t, "630-205", rent.ApartmentName)
	require.Equal(t, "Daniel Grdadolnik", rent.TenantName)
	require.Equal(t, MergeKey(rent.Date.Time, rent.Amount, rent.Notes), rent.MergeKey)

	fpl := res.Rows[1]
	require.Equal(t, "Out", fpl.Direction)
	require.Equal(t, 150.25, fpl.Amount)
	require.Equal(t, "Utilities (Out)", fpl.PaymentTypeName)
	require.Equal(t, "id_4", fpl.RowID)

	check := res.Rows[2]
	require.Equal(t, 1000.00, check.Amount)
	require.Equal(t, "Check", check.PaymentMethodName)
	require.Equal(t, "PH-402", check.ApartmentName)
}

func TestParseStatementMissingHeader(t *testing.T) {
	t.Parallel()

	_, err := ParseStatement(strings.NewReader("no,real,header\n1,2,3,4\n"), testReference())
	require.Error(t, err)
}

func TestParseStatementRowWarnings(t *testing.T) {
	t.Parallel()

	data := strings.Join([]string{
		statementHeader,
		"11/28/2025,valid row @S31,100.00,100.00",
		"not-a-date,broken,abc,def",
		"11/29/2025,zero amount row,0.00,100.00",
	}, "\n")

	res, err := ParseStatement(strings.NewReader(data), testReference())
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	require.Len(t, res.Warnings, 2)
	require.Contains(t, res.Warnings[0], "row 2")
	require.Contains(t, res.Warnings[1], "zero amount")
}

func TestParseStatementDeterministic(t *testing.T) {
	t.Parallel()

	data := statementHeader + "\n11/28/2025,Zelle payment from Daniel,4000.00,54000.00\n"

	first, err := ParseStatement(strings.NewReader(data), testReference())
	require.NoError(t, err)
	second, err := ParseStatement(strings.NewReader(data), testReference())
	require.NoError(t, err)
	require.Equal(t, first.Rows, second.Rows)
}

func TestParseAmount(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want float64
	}{
		{"4000.00", 4000},
		{`"4,000.00"`, 4000},
		{"(150.25)", -150.25},
		{`"(1,500.00)"`, -1500},
		{"-20", -20},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}

	_, err := ParseAmount("abc")
	require.Error(t, err)
}

func TestDateJSONRoundTrip(t *testing.T) {
	t.Parallel()

	d := NewDate(time.Date(2025, 11, 28, 13, 45, 0, 0, time.UTC))
	raw, err := d.MarshalJSON()
	require.NoError(t, err)
	require.Equal(t, `"2025-11-28"`, string(raw))

	var parsed Date
	for _, in := range []string{`"2025-11-28"`, `"11/28/2025"`, `"2025-11-28 00:00:00"`} {
		require.NoError(t, parsed.UnmarshalJSON([]byte(in)), in)
		require.Equal(t, d.Time, parsed.Time, in)
	}
}
