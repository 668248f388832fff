// Package llm ranks ledger candidates against a composite using a language
// model behind an OpenAI-compatible API.
package llm

import (
	"context"
	"errors"

	"github.com/brickellbay/paysync/internal/match"
)

// ErrNoAPIKey signals that model ranking is configured but unusable. Callers
// degrade to heuristic-only results.
var ErrNoAPIKey = errors.New("ai ranking unavailable: api key not set")

// RankedMatch is one model verdict on a candidate, scores clamped to [0,100].
type RankedMatch struct {
	DBID      int64   `json:"db_id"`
	Score     float64 `json:"score"`
	Reasoning string  `json:"reasoning"`
}

// Exchange captures what went over the wire to the model so callers can
// trace it. It is populated as far as the call got: the prompts are set once
// built, the raw content once a response arrived.
type Exchange struct {
	SystemPrompt string
	UserPrompt   string
	RawResponse  string
}

// Ranker orders candidate payments by how well they match the composite.
// Implementations must only return ids drawn from the given candidates, and
// return the Exchange even when the call fails.
type Ranker interface {
	Rank(ctx context.Context, c match.Composite, candidates []match.Snapshot, customPrompt string) ([]RankedMatch, *Exchange, error)
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
