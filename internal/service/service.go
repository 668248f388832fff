// Package service orchestrates reconciliation: it glues the ingestor, the
// candidate store, the scorer and the model ranker behind the request API.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/brickellbay/paysync/internal/config"
	"github.com/brickellbay/paysync/internal/database/repository"
	"github.com/brickellbay/paysync/internal/ingest"
	"github.com/brickellbay/paysync/internal/llm"
	"github.com/brickellbay/paysync/internal/match"
	"github.com/brickellbay/paysync/internal/trace"
)

// ErrEmptySelection is returned when match selection is called with zero rows.
var ErrEmptySelection = errors.New("no file payments selected")

// RankerFactory builds a model ranker for a caller-selected model id. It may
// return llm.ErrNoAPIKey, which the service reports as an ai_error instead of
// failing the request.
type RankerFactory func(model string) (llm.Ranker, error)

// Service runs reconciliation requests against one ledger database.
type Service struct {
	db         *sql.DB
	payments   *repository.PaymentRepo
	methods    *repository.PaymentMethodRepo
	types      *repository.PaymentTypeRepo
	apartments *repository.ApartmentRepo
	bookings   *repository.BookingRepo
	matching   config.MatchingConfig
	ai         config.AIConfig
	newRanker  RankerFactory
	tracer     *trace.Recorder
	log        *slog.Logger
}

func New(db *sql.DB, matching config.MatchingConfig, ai config.AIConfig, tracer *trace.Recorder, log *slog.Logger) *Service {
	s := &Service{
		db:         db,
		payments:   repository.NewPaymentRepo(db),
		methods:    repository.NewPaymentMethodRepo(db),
		types:      repository.NewPaymentTypeRepo(db),
		apartments: repository.NewApartmentRepo(db),
		bookings:   repository.NewBookingRepo(db),
		matching:   matching,
		ai:         ai,
		tracer:     tracer,
		log:        log,
	}
	s.newRanker = func(model string) (llm.Ranker, error) {
		if model == "" {
			model = ai.Model
		}
		return llm.NewOpenRouterRanker(ai.APIKey(), ai.BaseURL, model)
	}
	return s
}

// SetRankerFactory swaps the model ranker constructor. Tests use this to
// avoid network calls.
func (s *Service) SetRankerFactory(f RankerFactory) { s.newRanker = f }

// FetchRequest selects ledger candidates for a set of parsed bank rows.
// Zero-valued knobs fall back to configured defaults.
type FetchRequest struct {
	MatchingMode string           `json:"matching_mode"`
	FilePayments []ingest.BankRow `json:"file_payments"`
	DBDaysBefore int              `json:"db_days_before"`
	DBDaysAfter  int              `json:"db_days_after"`
	AmountDelta  float64          `json:"amount_delta"`
	DateDelta    int              `json:"date_delta"`
}

// MatchedGroup is one auto-matched bank row with its ranked suggestions.
type MatchedGroup struct {
	FilePayment         ingest.BankRow     `json:"file_payment"`
	Matches             []match.Suggestion `json:"matches"`
	MatchQuality        string             `json:"match_quality"`
	HasHighConfidence   bool               `json:"has_high_confidence"`
	HasMediumConfidence bool               `json:"has_medium_confidence"`
	HasNoMatch          bool               `json:"has_no_match"`
}

// FetchResult carries the windowed candidate set plus, in auto mode, the
// per-row heuristic groups.
type FetchResult struct {
	DBPayments    []match.Snapshot `json:"db_payments"`
	MatchedGroups []MatchedGroup   `json:"matched_groups"`
}

// FetchDBPayments returns every ledger payment inside the date window spanned
// by the file payments, widened by the configured day margins, plus any
// Merged payment already keyed to one of the rows. Auto mode additionally
// scores each row against the set.
func (s *Service) FetchDBPayments(ctx context.Context, rid string, req FetchRequest) (*FetchResult, error) {
	if len(req.FilePayments) == 0 {
		return &FetchResult{DBPayments: []match.Snapshot{}, MatchedGroups: []MatchedGroup{}}, nil
	}
	s.applyDefaults(&req)

	from, to := dateSpan(req.FilePayments)
	from = from.AddDate(0, 0, -req.DBDaysBefore)
	to = to.AddDate(0, 0, req.DBDaysAfter)

	candidates, err := s.candidates(ctx, from, to, mergeKeys(req.FilePayments))
	if err != nil {
		return nil, err
	}
	s.tracer.Step(rid, "fetch_db_payments.window", map[string]any{
		"date_from": from.Format("2006-01-02"),
		"date_to":   to.Format("2006-01-02"),
		"count":     len(candidates),
	})

	res := &FetchResult{
		DBPayments:    make([]match.Snapshot, 0, len(candidates)),
		MatchedGroups: []MatchedGroup{},
	}
	for _, p := range candidates {
		res.DBPayments = append(res.DBPayments, match.SnapshotOf(p))
	}

	if req.MatchingMode == "auto" {
		res.MatchedGroups = s.autoMatch(rid, req, candidates)
	}
	return res, nil
}

// autoMatch scores every bank row independently and buckets the results,
// best groups first.
func (s *Service) autoMatch(rid string, req FetchRequest, candidates []repository.Payment) []MatchedGroup {
	cfg := s.scoreConfig(req.AmountDelta, req.DateDelta)
	groups := make([]MatchedGroup, 0, len(req.FilePayments))
	for _, row := range req.FilePayments {
		composite, err := match.BuildComposite([]ingest.BankRow{row})
		if err != nil {
			continue
		}
		matches := match.Rank(candidates, composite, cfg)
		g := MatchedGroup{
			FilePayment:  row,
			Matches:      matches,
			MatchQuality: match.QualityNone,
			HasNoMatch:   len(matches) == 0,
		}
		if len(matches) > 0 {
			g.MatchQuality = matches[0].Quality
			g.HasHighConfidence = matches[0].Quality == match.QualityHigh
			g.HasMediumConfidence = matches[0].Quality == match.QualityMedium
		}
		groups = append(groups, g)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return qualityRank(groups[i].MatchQuality) < qualityRank(groups[j].MatchQuality)
	})
	s.tracer.Step(rid, "fetch_db_payments.auto_groups", map[string]any{"groups": len(groups)})
	return groups
}

// MatchSelectionRequest asks for suggestions against a selected set of rows.
type MatchSelectionRequest struct {
	Mode                 string           `json:"mode"` // manual, ai or both
	SelectedFileIDs      []string         `json:"selected_file_ids"`
	SelectedFilePayments []ingest.BankRow `json:"selected_file_payments"`
	AmountDelta          float64          `json:"amount_delta"`
	DateDelta            int              `json:"date_delta"`
	AIModel              string           `json:"ai_model"`
	AIBasePrompt         string           `json:"ai_base_prompt"`
	AICustomPrompt       string           `json:"ai_custom_prompt"`
}

// MatchSelectionResult is the answer for one selection. AIError is set when
// model ranking was requested but unavailable; manual results still stand.
type MatchSelectionResult struct {
	SelectedKey     string             `json:"selected_key"`
	MatchedPayments []match.Suggestion `json:"matched_payments"`
	AIError         string             `json:"ai_error,omitempty"`
}

// MatchSelection builds the composite for the selected rows and ranks ledger
// candidates heuristically, by model, or both.
func (s *Service) MatchSelection(ctx context.Context, rid string, req MatchSelectionRequest) (*MatchSelectionResult, error) {
	if len(req.SelectedFilePayments) == 0 {
		return nil, ErrEmptySelection
	}

	composite, err := match.BuildComposite(req.SelectedFilePayments)
	if err != nil {
		return nil, err
	}
	s.tracer.Step(rid, "match_selection.composite", map[string]any{"composite": composite})

	from := composite.DateFrom.AddDate(0, 0, -s.matching.DBDaysBefore)
	to := composite.DateTo.AddDate(0, 0, s.matching.DBDaysAfter)
	candidates, err := s.candidates(ctx, from, to, mergeKeys(req.SelectedFilePayments))
	if err != nil {
		return nil, err
	}

	res := &MatchSelectionResult{
		SelectedKey:     selectedKey(req.SelectedFileIDs, req.SelectedFilePayments),
		MatchedPayments: []match.Suggestion{},
	}

	mode := req.Mode
	if mode == "" {
		mode = "manual"
	}
	if mode == "manual" || mode == "both" {
		cfg := s.scoreConfig(req.AmountDelta, req.DateDelta)
		res.MatchedPayments = append(res.MatchedPayments, match.Rank(candidates, composite, cfg)...)
		s.tracer.Step(rid, "match_selection.manual", map[string]any{"suggestions": len(res.MatchedPayments)})
	}
	if mode == "ai" || mode == "both" {
		ai, aiErr := s.aiMatch(ctx, rid, composite, candidates, req)
		if aiErr != nil {
			res.AIError = aiErr.Error()
			s.log.Warn("ai ranking failed", "rid", rid, "error", aiErr)
			s.tracer.Step(rid, "match_selection.ai_error", map[string]any{"error": aiErr.Error()})
		} else {
			res.MatchedPayments = append(res.MatchedPayments, ai...)
		}
	}
	return res, nil
}

func (s *Service) aiMatch(ctx context.Context, rid string, composite match.Composite, candidates []repository.Payment, req MatchSelectionRequest) ([]match.Suggestion, error) {
	ranker, err := s.newRanker(req.AIModel)
	if err != nil {
		return nil, err
	}

	snapshots := make([]match.Snapshot, 0, len(candidates))
	byID := make(map[int64]match.Snapshot, len(candidates))
	for _, p := range candidates {
		snap := match.SnapshotOf(p)
		snapshots = append(snapshots, snap)
		byID[snap.ID] = snap
	}
	delta := req.AmountDelta
	if delta <= 0 {
		delta = s.matching.AmountDelta
	}
	filtered := llm.Prefilter(composite, snapshots, delta, s.ai.MaxCandidates)
	s.tracer.Step(rid, "match_selection.ai_prefilter", map[string]any{
		"before": len(snapshots), "after": len(filtered),
	})

	prompt := strings.TrimSpace(strings.TrimSpace(req.AIBasePrompt) + "\n" + strings.TrimSpace(req.AICustomPrompt))
	ranked, xchg, err := ranker.Rank(ctx, composite, filtered, prompt)
	if xchg != nil {
		s.tracer.Step(rid, "match_selection.ai_prompt", map[string]any{
			"model":  req.AIModel,
			"system": xchg.SystemPrompt,
			"user":   xchg.UserPrompt,
		})
		s.tracer.Step(rid, "match_selection.ai_response", map[string]any{"content": xchg.RawResponse})
	}
	if err != nil {
		return nil, err
	}
	s.tracer.Step(rid, "match_selection.ai_ranked", map[string]any{"matches": ranked})

	out := make([]match.Suggestion, 0, len(ranked))
	for _, m := range ranked {
		out = append(out, match.Suggestion{
			DBPayment: byID[m.DBID],
			Score:     m.Score,
			MatchType: "ai",
			Criteria:  m.Reasoning,
			Quality:   match.QualityOf(m.Score),
		})
	}
	return out, nil
}

// FetchMerged returns Merged ledger payments already keyed to any of the
// given bank rows.
func (s *Service) FetchMerged(ctx context.Context, rid string, rows []ingest.BankRow) ([]match.Snapshot, error) {
	keys := mergeKeys(rows)
	if len(keys) == 0 {
		return []match.Snapshot{}, nil
	}
	merged, err := s.payments.FindMergedWithKeys(ctx, keys)
	if err != nil {
		return nil, err
	}
	out := make([]match.Snapshot, 0, len(merged))
	for _, p := range merged {
		out = append(out, match.SnapshotOf(p))
	}
	s.tracer.Step(rid, "fetch_merged", map[string]any{"count": len(out)})
	return out, nil
}

// candidates unions the date-windowed set with already-merged payments whose
// key contains any bank-row key, deduplicated by id.
func (s *Service) candidates(ctx context.Context, from, to time.Time, keys []string) ([]repository.Payment, error) {
	windowed, err := s.payments.FindByDateRange(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("fetch candidates: %w", err)
	}
	if len(keys) == 0 {
		return windowed, nil
	}
	merged, err := s.payments.FindMergedWithKeys(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("fetch merged candidates: %w", err)
	}

	seen := make(map[int64]bool, len(windowed))
	for _, p := range windowed {
		seen[p.ID] = true
	}
	for _, p := range merged {
		if !seen[p.ID] {
			windowed = append(windowed, p)
			seen[p.ID] = true
		}
	}
	return windowed, nil
}

func (s *Service) scoreConfig(amountDelta float64, dateDelta int) match.Config {
	cfg := match.Config{
		AmountDelta:    s.matching.AmountDelta,
		DateDelta:      s.matching.DateDelta,
		PrimaryBank:    s.matching.PrimaryBank,
		BankPenalty:    s.matching.BankPenalty,
		MaxSuggestions: s.matching.MaxSuggestions,
	}
	if amountDelta > 0 {
		cfg.AmountDelta = amountDelta
	}
	if dateDelta > 0 {
		cfg.DateDelta = dateDelta
	}
	return cfg
}

func (s *Service) applyDefaults(req *FetchRequest) {
	if req.DBDaysBefore <= 0 {
		req.DBDaysBefore = s.matching.DBDaysBefore
	}
	if req.DBDaysAfter <= 0 {
		req.DBDaysAfter = s.matching.DBDaysAfter
	}
}

// selectedKey is the stable identity of a selection: its sorted row ids
// joined by "+".
func selectedKey(ids []string, rows []ingest.BankRow) string {
	if len(ids) == 0 {
		for _, r := range rows {
			ids = append(ids, r.RowID)
		}
	}
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	return strings.Join(sorted, "+")
}

func mergeKeys(rows []ingest.BankRow) []string {
	keys := make([]string, 0, len(rows))
	for _, r := range rows {
		if r.MergeKey != "" {
			keys = append(keys, r.MergeKey)
		}
	}
	return keys
}

func dateSpan(rows []ingest.BankRow) (time.Time, time.Time) {
	from, to := rows[0].Date.Time, rows[0].Date.Time
	for _, r := range rows[1:] {
		if r.Date.Before(from) {
			from = r.Date.Time
		}
		if r.Date.After(to) {
			to = r.Date.Time
		}
	}
	return from, to
}

func qualityRank(q string) int {
	switch q {
	case match.QualityHigh:
		return 0
	case match.QualityMedium:
		return 1
	case match.QualityLow:
		return 2
	}
	return 3
}
