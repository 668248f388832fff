package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/brickellbay/paysync/internal/database"
)

// Maintenance bundles destructive housekeeping operations kept away from the
// normal request path.
type Maintenance struct {
	db *sql.DB
}

func NewMaintenance(db *sql.DB) *Maintenance {
	return &Maintenance{db: db}
}

// Reset unwinds every merge in one transaction: merged payments created by
// reconciliation are deleted and pre-existing payments that were merged into
// are reverted to Completed with their key cleared.
func (m *Maintenance) Reset(ctx context.Context) error {
	return database.WithTx(m.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE payments
			SET payment_status = 'Completed', merged_payment_key = NULL
			WHERE payment_status = 'Merged'`); err != nil {
			return fmt.Errorf("reset merged payments: %w", err)
		}
		return nil
	})
}
