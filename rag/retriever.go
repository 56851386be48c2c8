package rag

import (
	"context"
	"fmt"

	"studyrag/model"
	"studyrag/store"
	"studyrag/types"

	"github.com/google/uuid"
)

type RetrieverConfig struct {
	TopK        int
	TokenBudget int
}

func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		TopK:        20,
		TokenBudget: 2048,
	}
}

// Retriever embeds a query and pulls the closest chunks out of a
// document's namespace, deduplicates neighbors and trims the result to
// the token budget.
type Retriever struct {
	store    store.DBStorer
	embedder model.Embedder
	counter  *TokenCounter
	cfg      RetrieverConfig
	retry    model.RetryPolicy
}

func NewRetriever(db store.DBStorer, embedder model.Embedder, counter *TokenCounter, cfg RetrieverConfig) *Retriever {
	if cfg.TopK <= 0 {
		cfg = DefaultRetrieverConfig()
	}
	return &Retriever{
		store:    db,
		embedder: embedder,
		counter:  counter,
		cfg:      cfg,
		retry:    model.DefaultRetryPolicy(),
	}
}

// Retrieve pulls the closest chunks for a query. A budget of zero or
// less falls back to the configured default.
func (r *Retriever) Retrieve(ctx context.Context, docID uuid.UUID, query string, budget int) (*types.RetrievalResult, error) {
	if budget <= 0 {
		budget = r.cfg.TokenBudget
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var matches []types.Match
	err = r.retry.Do(ctx, func(ctx context.Context) error {
		matches, err = r.store.Query(ctx, docID, vec, r.cfg.TopK)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}

	matches = dedupe(matches)

	// Budget pass keeps matches in score order. The best match always
	// goes in even when it alone exceeds the budget.
	var kept []types.Match
	tokens := 0
	for _, m := range matches {
		n := r.counter.Count(m.Text)
		if len(kept) > 0 && tokens+n > budget {
			break
		}
		kept = append(kept, m)
		tokens += n
	}

	return &types.RetrievalResult{
		Matches: kept,
		Tokens:  tokens,
	}, nil
}

// dedupe drops repeated chunk ids and matches whose page window
// overlaps an already kept match. Chunk text carries leading context
// from the previous window, so adjacent matches repeat content.
func dedupe(matches []types.Match) []types.Match {
	seen := make(map[uuid.UUID]bool)
	var out []types.Match

	for _, m := range matches {
		if seen[m.ChunkID] {
			continue
		}

		overlaps := false
		for _, k := range out {
			if k.Page == m.Page && m.StartOffset < k.EndOffset && k.StartOffset < m.EndOffset {
				overlaps = true
				break
			}
		}
		if overlaps {
			continue
		}

		seen[m.ChunkID] = true
		out = append(out, m)
	}

	return out
}
