package repository_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brickellbay/paysync/internal/database"
	"github.com/brickellbay/paysync/internal/database/repository"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	migrations, err := filepath.Abs("../migrations")
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(dbPath, migrations))

	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSplitMergedKey(t *testing.T) {
	t.Parallel()

	sep := repository.PaymentKeySeparator
	require.Nil(t, repository.SplitMergedKey(""))
	require.Equal(t, []string{"a"}, repository.SplitMergedKey("a"))
	require.Equal(t, []string{"a", "b"}, repository.SplitMergedKey("a"+sep+"b"))
}

func TestFindMergedWithKeysSubstring(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := testDB(t)

	typeID, err := repository.NewPaymentTypeRepo(db).Insert(ctx, repository.PaymentType{Name: "Rent", Type: "In"})
	require.NoError(t, err)
	repo := repository.NewPaymentRepo(db)

	date := time.Date(2025, 11, 28, 0, 0, 0, 0, time.UTC)
	storedKey := "11/28/20254000Zelle payment from DANIEL for Rent" +
		repository.PaymentKeySeparator + "11/29/2025500wire deposit"
	mergedID, err := repo.Create(ctx, repository.Payment{
		Amount: 4500, Date: date, PaymentTypeID: typeID,
		Status: repository.StatusMerged, MergedPaymentKey: &storedKey,
	})
	require.NoError(t, err)
	_, err = repo.Create(ctx, repository.Payment{
		Amount: 900, Date: date, PaymentTypeID: typeID, Status: repository.StatusPending,
	})
	require.NoError(t, err)

	// A bank-row key matching any stored sub-key as substring finds the row.
	found, err := repo.FindMergedWithKeys(ctx, []string{"11/29/2025500wire deposit"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, mergedID, found[0].ID)

	found, err = repo.FindMergedWithKeys(ctx, []string{"DANIEL for Rent"})
	require.NoError(t, err)
	require.Len(t, found, 1)

	found, err = repo.FindMergedWithKeys(ctx, []string{"no such key"})
	require.NoError(t, err)
	require.Empty(t, found)

	found, err = repo.FindMergedWithKeys(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, found)
}

func TestUpdateMissingPayment(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := testDB(t)

	typeID, err := repository.NewPaymentTypeRepo(db).Insert(ctx, repository.PaymentType{Name: "Rent", Type: "In"})
	require.NoError(t, err)

	err = repository.NewPaymentRepo(db).Update(ctx, repository.Payment{
		ID: 424242, Amount: 10,
		Date: time.Now(), PaymentTypeID: typeID, Status: repository.StatusPending,
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
}
