package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/brickellbay/paysync/internal/database/repository"
	"github.com/brickellbay/paysync/internal/ingest"
)

// commitDateLayouts are accepted in order. Bank exports and hand-edited
// payloads disagree on format, so we try the strict ones first.
var commitDateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02",
	"January 2 2006",
	"01/02/2006",
}

// CommitInstruction merges one bank row into the ledger. DBID nil means
// create. FileDate, FileAmount and FileNotes carry the pristine bank-row
// values and take precedence when regenerating the merge key, so operator
// edits to the ledger fields never change the key.
type CommitInstruction struct {
	DBID             *int64   `json:"db_id"`
	Amount           float64  `json:"amount"`
	PaymentDate      string   `json:"payment_date"`
	Notes            string   `json:"notes"`
	Keywords         string   `json:"keywords"`
	PaymentTypeID    *int64   `json:"payment_type"`
	PaymentMethodID  *int64   `json:"payment_method"`
	BankID           *int64   `json:"bank"`
	ApartmentID      *int64   `json:"apartment"`
	BookingID        *int64   `json:"booking"`
	MergedPaymentKey string   `json:"merged_payment_key"`
	FileDate         string   `json:"file_date"`
	FileAmount       *float64 `json:"file_amount"`
	FileNotes        *string  `json:"file_notes"`
}

// CommitFailure ties one failed instruction to its reason.
type CommitFailure struct {
	Index int    `json:"index"`
	DBID  *int64 `json:"db_id,omitempty"`
	Error string `json:"error"`
}

// CommitResult reports the batch outcome. Failures never abort the batch.
type CommitResult struct {
	Updated  []int64         `json:"updated"`
	Created  []int64         `json:"created"`
	Failures []CommitFailure `json:"failures"`
}

// UpdatePayments applies a batch of commit instructions independently. Each
// committed record ends up with status Merged and a stable merge key, making
// re-commits of the same bank row no-ops modulo field updates.
func (s *Service) UpdatePayments(ctx context.Context, rid string, instructions []CommitInstruction) *CommitResult {
	res := &CommitResult{Updated: []int64{}, Created: []int64{}, Failures: []CommitFailure{}}
	for i, inst := range instructions {
		id, created, err := s.commitOne(ctx, inst)
		if err != nil {
			res.Failures = append(res.Failures, CommitFailure{Index: i, DBID: inst.DBID, Error: err.Error()})
			continue
		}
		if created {
			res.Created = append(res.Created, id)
		} else {
			res.Updated = append(res.Updated, id)
		}
	}
	s.tracer.Step(rid, "update_payments.done", map[string]any{
		"updated": res.Updated, "created": res.Created, "failures": res.Failures,
	})
	return res
}

func (s *Service) commitOne(ctx context.Context, inst CommitInstruction) (int64, bool, error) {
	if inst.Amount == 0 {
		return 0, false, errors.New("amount must not be zero")
	}
	date, err := parseCommitDate(inst.PaymentDate)
	if err != nil {
		return 0, false, err
	}
	if inst.PaymentTypeID == nil {
		return 0, false, errors.New("payment_type is required")
	}

	key := inst.MergedPaymentKey
	if key == "" {
		if key, err = regenerateKey(inst, date); err != nil {
			return 0, false, err
		}
	}
	if inst.DBID != nil {
		return *inst.DBID, false, s.commitUpdate(ctx, *inst.DBID, inst, date, key)
	}

	// Idempotent create: a Merged row already carrying this key is updated
	// in place instead of duplicated.
	existing, err := s.payments.FindMergedWithKeys(ctx, []string{key})
	if err != nil {
		return 0, false, fmt.Errorf("check existing merge: %w", err)
	}
	if len(existing) > 0 {
		id := existing[0].ID
		return id, false, s.commitUpdate(ctx, id, inst, date, key)
	}

	p := paymentFromInstruction(inst, date, key)
	id, err := s.payments.Create(ctx, p)
	if err != nil {
		return 0, false, fmt.Errorf("create payment: %w", err)
	}
	return id, true, nil
}

func (s *Service) commitUpdate(ctx context.Context, id int64, inst CommitInstruction, date time.Time, key string) error {
	existing, err := s.payments.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load payment %d: %w", id, err)
	}
	if existing == nil {
		return fmt.Errorf("payment %d not found", id)
	}

	p := paymentFromInstruction(inst, date, key)
	p.ID = id
	// Never shed previously recorded keys.
	if existing.MergedPaymentKey != nil && *existing.MergedPaymentKey != "" {
		p.MergedPaymentKey = appendKey(*existing.MergedPaymentKey, key)
	}
	if err := s.payments.Update(ctx, p); err != nil {
		return fmt.Errorf("update payment %d: %w", id, err)
	}
	return nil
}

func paymentFromInstruction(inst CommitInstruction, date time.Time, key string) repository.Payment {
	k := key
	return repository.Payment{
		Amount:           absAmount(inst.Amount),
		Date:             date,
		Notes:            inst.Notes,
		Keywords:         inst.Keywords,
		PaymentTypeID:    *inst.PaymentTypeID,
		PaymentMethodID:  inst.PaymentMethodID,
		BankID:           inst.BankID,
		ApartmentID:      inst.ApartmentID,
		BookingID:        inst.BookingID,
		Status:           repository.StatusMerged,
		MergedPaymentKey: &k,
	}
}

// regenerateKey rebuilds the merge key from the pristine file fields,
// falling back to the instruction's own fields.
func regenerateKey(inst CommitInstruction, date time.Time) (string, error) {
	keyDate := date
	if inst.FileDate != "" {
		d, err := parseCommitDate(inst.FileDate)
		if err != nil {
			return "", fmt.Errorf("file_date: %w", err)
		}
		keyDate = d
	}
	amount := inst.Amount
	if inst.FileAmount != nil {
		amount = *inst.FileAmount
	}
	notes := inst.Notes
	if inst.FileNotes != nil {
		notes = *inst.FileNotes
	}
	return ingest.MergeKey(keyDate, amount, notes), nil
}

// appendKey joins a new sub-key onto a stored key unless it is already
// present.
func appendKey(stored, key string) *string {
	for _, k := range repository.SplitMergedKey(stored) {
		if k == key {
			return &stored
		}
	}
	joined := stored + repository.PaymentKeySeparator + key
	return &joined
}

func parseCommitDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("payment date is required")
	}
	for _, layout := range commitDateLayouts {
		if d, err := time.Parse(layout, raw); err == nil {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", raw)
}

func absAmount(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
