package search

import (
	"context"
	"time"

	"github.com/partlinq/partsearch/engine/domain"
	"github.com/partlinq/partsearch/engine/filter"
	"github.com/partlinq/partsearch/engine/rank"
	"github.com/partlinq/partsearch/engine/retrieve"
	"github.com/partlinq/partsearch/engine/understand"
)

// Metrics is the per-request context threaded through the pipeline and
// handed to listeners. It carries everything the search log entry needs.
type Metrics struct {
	RequestID string
	Query     string
	Start     time.Time

	Intent          domain.Intent
	ParseMethod     string
	ParseConfidence float64

	Understanding time.Duration
	Retrieval     time.Duration
	Filtering     time.Duration
	Ranking       time.Duration
	Explanation   time.Duration
	Total         time.Duration

	RetrievalStrategy string
	RetrievalCacheHit bool
	CandidateCount    int

	PreFilterCount  int
	PostFilterCount int
	FiltersApplied  []string

	Profile string
	Weights rank.Weights

	ResultCount    int
	TopResultID    string
	TopResultScore float64

	Success     bool
	ErrorCode   string
	CacheStatus string
}

// Listener observes pipeline progress. Implementations must not block; they
// run inline on the request path.
type Listener interface {
	BeforeSearch(ctx context.Context, req *Request, m *Metrics)
	AfterUnderstanding(ctx context.Context, m *Metrics, res *understand.Result)
	AfterRetrieval(ctx context.Context, m *Metrics, res *retrieve.Result)
	AfterFiltering(ctx context.Context, m *Metrics, res *filter.Result)
	AfterRanking(ctx context.Context, m *Metrics, res *rank.Result)
	AfterSearch(ctx context.Context, m *Metrics, resp *Response)
}

// BaseListener is a no-op Listener for embedding, so observers implement
// only the hooks they care about.
type BaseListener struct{}

func (BaseListener) BeforeSearch(context.Context, *Request, *Metrics)                 {}
func (BaseListener) AfterUnderstanding(context.Context, *Metrics, *understand.Result) {}
func (BaseListener) AfterRetrieval(context.Context, *Metrics, *retrieve.Result)       {}
func (BaseListener) AfterFiltering(context.Context, *Metrics, *filter.Result)         {}
func (BaseListener) AfterRanking(context.Context, *Metrics, *rank.Result)             {}
func (BaseListener) AfterSearch(context.Context, *Metrics, *Response)                 {}
