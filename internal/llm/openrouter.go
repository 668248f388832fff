package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/brickellbay/paysync/internal/match"
)

const systemPrompt = `You match bank statement transactions to ledger payment records.
You receive one composite transaction (possibly aggregating several bank rows) and a list of candidate ledger payments.
Judge each candidate on amount, dates, tenant and apartment evidence in the notes, payment method and keywords.
Respond with ONLY a JSON array, no prose, in this exact shape:
[{"db_id": <int>, "score": <0-100>, "reasoning": "<short>"}]
Include only candidates worth considering, best first. An empty array is a valid answer.`

const maxCandidateNoteChars = 180

// OpenRouterRanker ranks candidates through an OpenAI-compatible chat API.
// The zero temperature keeps verdicts reproducible enough to diff in traces.
type OpenRouterRanker struct {
	client openai.Client
	model  string
}

// NewOpenRouterRanker returns a ranker, or ErrNoAPIKey when no key is
// available so callers can fall back to heuristics.
func NewOpenRouterRanker(apiKey, baseURL, model string) (*OpenRouterRanker, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	return &OpenRouterRanker{
		client: openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithBaseURL(baseURL),
		),
		model: model,
	}, nil
}

// Rank sends the composite and candidates to the model and parses its JSON
// verdict. Unknown ids are dropped and scores clamped. The returned Exchange
// carries the prompts and the raw model content for tracing, also on error.
func (r *OpenRouterRanker) Rank(ctx context.Context, c match.Composite, candidates []match.Snapshot, customPrompt string) ([]RankedMatch, *Exchange, error) {
	if len(candidates) == 0 {
		return nil, nil, nil
	}

	user, err := buildUserPrompt(c, candidates, customPrompt)
	if err != nil {
		return nil, nil, fmt.Errorf("build prompt: %w", err)
	}
	xchg := &Exchange{SystemPrompt: systemPrompt, UserPrompt: user}

	resp, err := r.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(r.model),
		Temperature: openai.Float(0),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(user),
		},
	})
	if err != nil {
		return nil, xchg, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, xchg, fmt.Errorf("chat completion: empty response")
	}
	xchg.RawResponse = resp.Choices[0].Message.Content

	ranked, err := parseRanking(xchg.RawResponse, candidates)
	return ranked, xchg, err
}

// candidateView is the slimmed candidate sent to the model. Long notes are
// truncated so the prompt stays small.
type candidateView struct {
	DBID          int64  `json:"db_id"`
	Amount        string `json:"amount"`
	Date          string `json:"date"`
	Direction     string `json:"direction,omitempty"`
	TypeName      string `json:"type,omitempty"`
	MethodName    string `json:"method,omitempty"`
	BankName      string `json:"bank,omitempty"`
	ApartmentName string `json:"apartment,omitempty"`
	TenantName    string `json:"tenant,omitempty"`
	Status        string `json:"status"`
	Keywords      string `json:"keywords,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

func buildUserPrompt(c match.Composite, candidates []match.Snapshot, customPrompt string) (string, error) {
	views := make([]candidateView, 0, len(candidates))
	for _, cand := range candidates {
		notes := cand.Notes
		if len(notes) > maxCandidateNoteChars {
			notes = notes[:maxCandidateNoteChars]
		}
		views = append(views, candidateView{
			DBID:          cand.ID,
			Amount:        cand.Amount,
			Date:          cand.PaymentDate,
			Direction:     cand.Direction,
			TypeName:      cand.PaymentTypeName,
			MethodName:    cand.PaymentMethodName,
			BankName:      cand.BankName,
			ApartmentName: cand.ApartmentName,
			TenantName:    cand.TenantName,
			Status:        cand.PaymentStatus,
			Keywords:      cand.Keywords,
			Notes:         notes,
		})
	}

	compositeJSON, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	candidatesJSON, err := json.Marshal(views)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	if customPrompt = strings.TrimSpace(customPrompt); customPrompt != "" {
		b.WriteString("Additional instructions: ")
		b.WriteString(customPrompt)
		b.WriteString("\n\n")
	}
	b.WriteString("Bank transaction composite:\n")
	b.Write(compositeJSON)
	b.WriteString("\n\nCandidate ledger payments:\n")
	b.Write(candidatesJSON)
	return b.String(), nil
}

// parseRanking decodes the model reply. Models sometimes wrap the array in
// prose or code fences, so a strict parse is retried on the first bracketed
// substring before giving up.
func parseRanking(content string, candidates []match.Snapshot) ([]RankedMatch, error) {
	var ranked []RankedMatch
	if err := json.Unmarshal([]byte(content), &ranked); err != nil {
		start := strings.Index(content, "[")
		end := strings.LastIndex(content, "]")
		if start < 0 || end <= start {
			return nil, fmt.Errorf("parse model response: %w", err)
		}
		if err := json.Unmarshal([]byte(content[start:end+1]), &ranked); err != nil {
			return nil, fmt.Errorf("parse model response: %w", err)
		}
	}

	known := make(map[int64]bool, len(candidates))
	for _, cand := range candidates {
		known[cand.ID] = true
	}

	out := ranked[:0]
	for _, m := range ranked {
		if !known[m.DBID] {
			continue
		}
		m.Score = clampScore(m.Score)
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}
