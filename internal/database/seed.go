package database

import (
	"context"
	"database/sql"

	"github.com/brickellbay/paysync/internal/database/repository"
)

// SeedDefaults ensures the baseline dimension rows exist for new databases.
// It is idempotent and safe to run on every startup. The scorer and the CSV
// ingestor both rely on the "Other" fallback types and the primary bank row.
func SeedDefaults(ctx context.Context, db *sql.DB, primaryBank string) error {
	methodRepo := repository.NewPaymentMethodRepo(db)
	typeRepo := repository.NewPaymentTypeRepo(db)

	methods := []repository.PaymentMethod{
		{Name: primaryBank, Type: "Bank", Keywords: "bank of america"},
		{Name: "Wire", Type: "Payment Method", Keywords: "wire,wire type"},
		{Name: "Zelle", Type: "Payment Method", Keywords: "zelle"},
		{Name: "Check", Type: "Payment Method", Keywords: "check,deposit *mobile"},
		{Name: "ACH", Type: "Payment Method", Keywords: "ach,des"},
	}
	for _, m := range methods {
		if err := methodRepo.Upsert(ctx, m); err != nil {
			return err
		}
	}

	existing, err := typeRepo.List(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	types := []repository.PaymentType{
		{Name: "Rent", Type: repository.DirectionIn, Keywords: "rent", Category: "Operating"},
		{Name: "Deposit", Type: repository.DirectionIn, Keywords: "deposit", Category: "Operating"},
		{Name: "Other", Type: repository.DirectionIn, Category: "Operating"},
		{Name: "Utilities", Type: repository.DirectionOut, Keywords: "electric,water,fpl", Category: "Operating"},
		{Name: "Other", Type: repository.DirectionOut, Category: "Operating"},
	}
	for _, t := range types {
		if _, err := typeRepo.Insert(ctx, t); err != nil {
			return err
		}
	}
	return nil
}
