package search

import (
	"context"

	"github.com/partlinq/partsearch/engine/domain"
	"github.com/partlinq/partsearch/engine/explain"
	"github.com/partlinq/partsearch/engine/filter"
	"github.com/partlinq/partsearch/engine/rank"
	"github.com/partlinq/partsearch/engine/retrieve"
	"github.com/partlinq/partsearch/engine/understand"
)

// Noop stages stand in for absent dependencies. Each returns the smallest
// successful result for its stage.

type NoopUnderstander struct{}

func (NoopUnderstander) Understand(_ context.Context, _ string) understand.Result {
	return understand.Result{
		Success: true,
		Intent:  domain.Intent{SearchType: domain.SearchGeneral},
		Method:  understand.MethodNone,
	}
}

type NoopRetriever struct{}

func (NoopRetriever) Retrieve(context.Context, domain.Intent) retrieve.Result {
	return retrieve.Result{Success: true, Candidates: []*domain.Candidate{}}
}

type NoopFilterer struct{}

func (NoopFilterer) Filter(_ context.Context, _ domain.Intent, cands []*domain.Candidate) filter.Result {
	return filter.Result{
		Success:        true,
		Candidates:     cands,
		Count:          len(cands),
		PreFilterCount: len(cands),
		FiltersApplied: []string{},
	}
}

type NoopRanker struct{}

func (NoopRanker) Rank(_ context.Context, _ domain.Intent, cands []*domain.Candidate) rank.Result {
	for i, c := range cands {
		c.Rank = i + 1
	}
	return rank.Result{Success: true, Candidates: cands, Count: len(cands), Profile: "none"}
}

type NoopExplainer struct{}

func (NoopExplainer) Explain(_ context.Context, _ string, _ domain.Intent, _ []*domain.Candidate, _ int) explain.Result {
	return explain.Result{Success: true}
}
