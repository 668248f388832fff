package service

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/brickellbay/paysync/internal/database/repository"
	"github.com/brickellbay/paysync/internal/ingest"
)

// UploadResult is the parsed statement handed back to the client. Rows
// already merged into the ledger stay visible but arrive flagged.
type UploadResult struct {
	SessionID    string           `json:"session_id"`
	FilePayments []ingest.BankRow `json:"file_payments"`
	StartDate    string           `json:"start_date,omitempty"`
	EndDate      string           `json:"end_date,omitempty"`
	Warnings     []string         `json:"warnings"`
}

// Upload parses a bank statement, enriches rows against a fresh reference
// snapshot and flags rows whose merge key is already recorded on a Merged
// ledger payment.
func (s *Service) Upload(ctx context.Context, rid string, r io.Reader) (*UploadResult, error) {
	ref, err := s.loadReference(ctx)
	if err != nil {
		return nil, err
	}

	parsed, err := ingest.ParseStatement(r, ref)
	if err != nil {
		return nil, fmt.Errorf("parse statement: %w", err)
	}

	// Bookings are windowed around the statement's own date range, so past
	// periods still get apartment and tenant candidates.
	if !parsed.StartDate.IsZero() {
		window := s.matching.FileWindowDays
		bookings, err := s.bookings.ListActiveWithin(ctx,
			parsed.StartDate.AddDate(0, 0, -window), parsed.EndDate.AddDate(0, 0, window))
		if err != nil {
			return nil, fmt.Errorf("load bookings: %w", err)
		}
		ingest.ApplyBookings(parsed.Rows, bookings)
	}

	if err := s.flagMerged(ctx, parsed.Rows); err != nil {
		return nil, err
	}

	res := &UploadResult{
		SessionID:    uuid.NewString(),
		FilePayments: parsed.Rows,
		Warnings:     parsed.Warnings,
	}
	if !parsed.StartDate.IsZero() {
		res.StartDate = parsed.StartDate.Format("2006-01-02")
	}
	if !parsed.EndDate.IsZero() {
		res.EndDate = parsed.EndDate.Format("2006-01-02")
	}
	if res.Warnings == nil {
		res.Warnings = []string{}
	}

	s.tracer.Step(rid, "upload.parsed", map[string]any{
		"session_id": res.SessionID,
		"rows":       len(res.FilePayments),
		"warnings":   res.Warnings,
	})
	return res, nil
}

// flagMerged marks rows whose merge key already appears on a Merged ledger
// payment so the UI can grey them out.
func (s *Service) flagMerged(ctx context.Context, rows []ingest.BankRow) error {
	keys := mergeKeys(rows)
	if len(keys) == 0 {
		return nil
	}
	merged, err := s.payments.FindMergedWithKeys(ctx, keys)
	if err != nil {
		return fmt.Errorf("check merged rows: %w", err)
	}
	if len(merged) == 0 {
		return nil
	}

	var handled []string
	for _, p := range merged {
		if p.MergedPaymentKey == nil {
			continue
		}
		handled = append(handled, repository.SplitMergedKey(*p.MergedPaymentKey)...)
	}
	for i := range rows {
		for _, k := range handled {
			if strings.Contains(k, rows[i].MergeKey) {
				rows[i].IsMerged = true
				break
			}
		}
	}
	return nil
}

func (s *Service) loadReference(ctx context.Context) (ingest.Reference, error) {
	var ref ingest.Reference
	var err error
	if ref.Methods, err = s.methods.List(ctx); err != nil {
		return ref, fmt.Errorf("load payment methods: %w", err)
	}
	if ref.Types, err = s.types.List(ctx); err != nil {
		return ref, fmt.Errorf("load payment types: %w", err)
	}
	if ref.Apartments, err = s.apartments.List(ctx); err != nil {
		return ref, fmt.Errorf("load apartments: %w", err)
	}
	ref.PrimaryBank = s.matching.PrimaryBank
	return ref, nil
}
