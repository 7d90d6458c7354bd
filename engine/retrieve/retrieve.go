// Package retrieve implements candidate retrieval, the second stage of the
// search pipeline. It selects one strategy from the intent, builds the
// corresponding boolean query, and runs it against the text index behind the
// index circuit breaker. Exact part-number lookups go through the per-part
// cache and fall back to a fuzzy pass before giving up.
package retrieve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/partlinq/partsearch/engine/domain"
	"github.com/partlinq/partsearch/pkg/cache"
	"github.com/partlinq/partsearch/pkg/esindex"
	"github.com/partlinq/partsearch/pkg/resilience"
)

// ErrNoSearchTerms means the intent offered nothing any strategy could use.
var ErrNoSearchTerms = errors.New("no search terms in intent")

// Searcher abstracts the text index behind retrieval.
type Searcher interface {
	Search(ctx context.Context, req esindex.SearchRequest) (*esindex.SearchResult, error)
}

// Options configures the retrieval stage.
type Options struct {
	// Index is the parts index name.
	Index string
	// MaxCandidates caps how many hits one query may return.
	MaxCandidates int
	// MinScore drops hits below this engine relevance.
	MinScore float64
	// Timeout bounds each index call.
	Timeout time.Duration
	// Boosts are the clause boost constants.
	Boosts Boosts
}

// DefaultOptions returns the shipped retrieval parameters.
func DefaultOptions() Options {
	return Options{
		Index:         "parts",
		MaxCandidates: 500,
		MinScore:      0.3,
		Timeout:       5 * time.Second,
		Boosts:        DefaultBoosts(),
	}
}

// Service is the retrieval stage.
type Service struct {
	searcher Searcher
	breaker  *resilience.Breaker
	store    *cache.Tiered
	opts     Options
	logger   *slog.Logger
}

// New creates the retrieval stage. breaker and store may be nil.
func New(searcher Searcher, breaker *resilience.Breaker, store *cache.Tiered, opts Options, logger *slog.Logger) *Service {
	def := DefaultOptions()
	if opts.Index == "" {
		opts.Index = def.Index
	}
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = def.MaxCandidates
	}
	if opts.MinScore <= 0 {
		opts.MinScore = def.MinScore
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.Boosts == (Boosts{}) {
		opts.Boosts = def.Boosts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{searcher: searcher, breaker: breaker, store: store, opts: opts, logger: logger}
}

// Result is the stage outcome handed to the orchestrator. Strategy reports
// what actually produced the candidates; a fuzzy fallback that ran is
// visible as fuzzyPartNumber even though exactPartNumber was selected.
type Result struct {
	Success    bool
	Candidates []*domain.Candidate
	Count      int
	Strategy   Strategy
	CacheHit   bool
	Duration   time.Duration
	Err        error
}

// Retrieve runs the strategy selected for the intent.
func (s *Service) Retrieve(ctx context.Context, in domain.Intent) Result {
	start := time.Now()
	strategy := SelectStrategy(in)

	if strategy == StrategyExactPartNumber {
		return s.byPartNumber(ctx, in, start)
	}

	var q esindex.Query
	switch strategy {
	case StrategyCrossReference:
		q = buildCrossReference(in, s.opts.Boosts)
	case StrategyFitment:
		q = buildFitment(in, s.opts.Boosts)
	case StrategyCatalogBrowse:
		q = buildCatalogBrowse(in, s.opts.Boosts)
	default:
		var ok bool
		q, ok = buildMultiField(in, s.opts.Boosts)
		if !ok {
			return Result{
				Candidates: []*domain.Candidate{},
				Strategy:   strategy,
				Duration:   time.Since(start),
				Err:        fmt.Errorf("retrieve: %w", ErrNoSearchTerms),
			}
		}
	}

	cands, err := s.search(ctx, q)
	if err != nil {
		return Result{Strategy: strategy, Duration: time.Since(start), Err: err}
	}
	return s.done(strategy, cands, false, start)
}

// byPartNumber is the exactPartNumber path: per-part cache, exact query,
// then the fuzzy fallback on an index miss.
func (s *Service) byPartNumber(ctx context.Context, in domain.Intent, start time.Time) Result {
	norm := domain.NormalizePartNumber(in.PartNumber)

	if s.store != nil {
		var cands []*domain.Candidate
		if s.store.GetJSON(ctx, cache.NSParts, norm, &cands) {
			rehydrate(cands)
			return s.done(StrategyExactPartNumber, cands, true, start)
		}
	}

	strategy := StrategyExactPartNumber
	cands, err := s.search(ctx, buildExactPartNumber(in, s.opts.Boosts))
	if err != nil {
		return Result{Strategy: strategy, Duration: time.Since(start), Err: err}
	}
	if len(cands) == 0 {
		strategy = StrategyFuzzyPartNumber
		cands, err = s.search(ctx, buildFuzzyPartNumber(in, s.opts.Boosts))
		if err != nil {
			return Result{Strategy: strategy, Duration: time.Since(start), Err: err}
		}
	}
	if len(cands) > 0 && s.store != nil {
		s.store.SetJSON(ctx, cache.NSParts, norm, cands)
	}
	return s.done(strategy, cands, false, start)
}

func (s *Service) done(strategy Strategy, cands []*domain.Candidate, fromCache bool, start time.Time) Result {
	if cands == nil {
		cands = []*domain.Candidate{}
	}
	s.logger.Info("retrieval done",
		"strategy", strategy,
		"candidates", len(cands),
		"cacheHit", fromCache,
		"duration", time.Since(start))
	return Result{
		Success:    true,
		Candidates: cands,
		Count:      len(cands),
		Strategy:   strategy,
		CacheHit:   fromCache,
		Duration:   time.Since(start),
	}
}

// search runs one index query through the breaker and lowers hits into
// candidates.
func (s *Service) search(ctx context.Context, q esindex.Query) ([]*domain.Candidate, error) {
	req := esindex.SearchRequest{
		Index:    s.opts.Index,
		Query:    q,
		Size:     s.opts.MaxCandidates,
		MinScore: s.opts.MinScore,
		Timeout:  s.opts.Timeout,
	}
	var res *esindex.SearchResult
	call := func(ctx context.Context) error {
		r, err := s.searcher.Search(ctx, req)
		if err != nil {
			return err
		}
		res = r
		return nil
	}
	var err error
	if s.breaker != nil {
		err = s.breaker.Call(ctx, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("retrieve: search: %w", err)
	}

	cands := make([]*domain.Candidate, 0, len(res.Hits))
	for _, h := range res.Hits {
		cands = append(cands, domain.NewCandidate(h.ID, h.Score, h.Source))
	}
	return cands, nil
}

// rehydrate rebuilds the decoded Part view after candidates come back from
// the cache, where only the raw source travels.
func rehydrate(cands []*domain.Candidate) {
	for _, c := range cands {
		if len(c.Source) > 0 {
			_ = json.Unmarshal(c.Source, &c.Part)
		}
	}
}
