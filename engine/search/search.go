// Package search orchestrates the five-stage pipeline: understanding,
// retrieval, filtering, ranking and explanation. It owns the request
// lifecycle around the stages, including the full-response cache, stage
// budgets, pagination, listeners and the response envelope. Every call
// returns an envelope; failures are structured, never panics.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/partlinq/partsearch/engine/domain"
	"github.com/partlinq/partsearch/engine/explain"
	"github.com/partlinq/partsearch/engine/filter"
	"github.com/partlinq/partsearch/engine/query"
	"github.com/partlinq/partsearch/engine/rank"
	"github.com/partlinq/partsearch/engine/retrieve"
	"github.com/partlinq/partsearch/engine/understand"
	"github.com/partlinq/partsearch/pkg/cache"
	"github.com/partlinq/partsearch/pkg/metrics"
)

// The stage contracts, satisfied by the engine subpackages. Consumers may
// substitute their own implementations, for instance in tests.
type (
	Understander interface {
		Understand(ctx context.Context, rawQuery string) understand.Result
	}
	Retriever interface {
		Retrieve(ctx context.Context, in domain.Intent) retrieve.Result
	}
	Filterer interface {
		Filter(ctx context.Context, in domain.Intent, cands []*domain.Candidate) filter.Result
	}
	Ranker interface {
		Rank(ctx context.Context, in domain.Intent, cands []*domain.Candidate) rank.Result
	}
	Explainer interface {
		Explain(ctx context.Context, rawQuery string, in domain.Intent, cands []*domain.Candidate, total int) explain.Result
	}
)

// StageFlag controls one stage. The zero value means enabled with no
// timeout, so an unset config leaves the pipeline fully on.
type StageFlag struct {
	Disabled bool
	// Timeout is advisory: when the remaining request deadline is shorter
	// than it, the stage is skipped with a passthrough instead of starting
	// work that cannot finish.
	Timeout time.Duration
}

// StageFlags holds the per-stage switches.
type StageFlags struct {
	Understanding StageFlag
	Retrieval     StageFlag
	Filtering     StageFlag
	Ranking       StageFlag
	Explanation   StageFlag
}

// Options configures the orchestrator.
type Options struct {
	// CacheEnabled turns the full-response cache on. Forced off when no
	// cache is wired.
	CacheEnabled bool
	// DefaultLimit is the page size when the request does not set one.
	DefaultLimit int
	// MaxLimit caps the requested page size.
	MaxLimit int
	// Stages switches individual stages on or off.
	Stages StageFlags
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		CacheEnabled: true,
		DefaultLimit: 20,
		MaxLimit:     100,
		Stages: StageFlags{
			Understanding: StageFlag{Timeout: 3 * time.Second},
			Retrieval:     StageFlag{Timeout: 5 * time.Second},
		},
	}
}

// Deps are the orchestrator's collaborators. Nil stages are replaced with
// noops, a nil cache disables response caching and a nil registry gets a
// private one.
type Deps struct {
	Understander Understander
	Retriever    Retriever
	Filterer     Filterer
	Ranker       Ranker
	Explainer    Explainer
	Cache        *cache.Tiered
	Metrics      *metrics.Registry
}

// Service runs searches end to end.
type Service struct {
	understander Understander
	retriever    Retriever
	filterer     Filterer
	ranker       Ranker
	explainer    Explainer

	store     *cache.Tiered
	opts      Options
	logger    *slog.Logger
	tracer    trace.Tracer
	listeners []Listener
	seq       atomic.Uint64

	searches     *metrics.Counter
	succeeded    *metrics.Counter
	failed       *metrics.Counter
	zeroResults  *metrics.Counter
	llmFallbacks *metrics.Counter
	cacheServed  *metrics.Counter
	stageTimes   map[string]*metrics.Sample
	totalTime    *metrics.Sample
}

// New builds the orchestrator.
func New(deps Deps, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultOptions()
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = def.DefaultLimit
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = def.MaxLimit
	}
	if deps.Understander == nil {
		deps.Understander = NoopUnderstander{}
	}
	if deps.Retriever == nil {
		deps.Retriever = NoopRetriever{}
	}
	if deps.Filterer == nil {
		deps.Filterer = NoopFilterer{}
	}
	if deps.Ranker == nil {
		deps.Ranker = NoopRanker{}
	}
	if deps.Explainer == nil {
		deps.Explainer = NoopExplainer{}
	}
	if deps.Cache == nil {
		opts.CacheEnabled = false
	}
	reg := deps.Metrics
	if reg == nil {
		reg = metrics.New()
	}

	s := &Service{
		understander: deps.Understander,
		retriever:    deps.Retriever,
		filterer:     deps.Filterer,
		ranker:       deps.Ranker,
		explainer:    deps.Explainer,
		store:        deps.Cache,
		opts:         opts,
		logger:       logger,
		tracer:       otel.Tracer("engine/search"),
		searches:     reg.Counter("search_requests_total", "Search requests"),
		succeeded:    reg.Counter("search_success_total", "Searches that returned a success envelope"),
		failed:       reg.Counter("search_failures_total", "Searches that returned a failure envelope"),
		zeroResults:  reg.Counter("search_zero_results_total", "Successful searches with no results"),
		llmFallbacks: reg.Counter("search_llm_fallback_total", "Searches where understanding fell back to the token parser"),
		cacheServed:  reg.Counter("search_cache_responses_total", "Searches served from the response cache"),
		stageTimes:   make(map[string]*metrics.Sample, 5),
		totalTime:    reg.Sample("search_total_ms", "End-to-end search latency in milliseconds", metrics.DefaultSampleSize),
	}
	for _, stage := range []string{"understanding", "retrieval", "filtering", "ranking", "explanation"} {
		s.stageTimes[stage] = reg.Sample(
			metrics.WithLabels("search_stage_ms", "stage", stage),
			"Stage latency in milliseconds", metrics.DefaultSampleSize)
	}
	return s
}

// AddListener registers a pipeline observer. Register listeners before
// serving traffic; the slice is not guarded.
func (s *Service) AddListener(l Listener) {
	s.listeners = append(s.listeners, l)
}

// Search runs the pipeline for one request and always returns an envelope.
// Panics anywhere below are converted into an internal-error envelope that
// keeps the request id.
func (s *Service) Search(ctx context.Context, req Request) (resp *Response) {
	start := time.Now()
	m := &Metrics{
		RequestID:   s.nextRequestID(),
		Query:       req.Query,
		Start:       start,
		CacheStatus: CacheStatusMiss,
	}
	s.searches.Inc()

	ctx, span := s.tracer.Start(ctx, "search")
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("search panicked", "requestId", m.RequestID, "panic", r)
			span.SetStatus(codes.Error, "panic")
			resp = s.fail(ctx, m, req.Query, "internal error", CodeInternal)
		}
	}()

	page, limit := pageBounds(req.Options, s.opts)
	s.emitBefore(ctx, &req, m)

	key := s.responseKey(req.Query, page, limit, req.Options.Filters)
	if cached := s.cachedResponse(ctx, key, m); cached != nil {
		s.emitAfter(ctx, m, cached)
		return cached
	}

	ures := s.understandStage(ctx, req.Query)
	m.Intent = ures.Intent
	m.ParseMethod = ures.Method
	m.ParseConfidence = ures.Intent.Confidence
	m.Understanding = ures.Duration
	s.observeStage("understanding", ures.Duration)
	s.emitUnderstanding(ctx, m, &ures)
	if ures.Err != nil {
		span.SetStatus(codes.Error, "understanding failed")
		s.logger.Warn("search rejected", "requestId", m.RequestID, "err", ures.Err)
		msg := "Invalid query"
		if errors.Is(ures.Err, domain.ErrEmptyQuery) {
			msg = "Empty query"
		}
		return s.fail(ctx, m, req.Query, msg, CodeInvalidQuery)
	}
	if ures.Method == understand.MethodTokenFallback {
		s.llmFallbacks.Inc()
	}
	in := ures.Intent

	rres := s.retrieveStage(ctx, in)
	m.Retrieval = rres.Duration
	m.RetrievalStrategy = string(rres.Strategy)
	m.RetrievalCacheHit = rres.CacheHit
	m.CandidateCount = len(rres.Candidates)
	if rres.CacheHit {
		m.CacheStatus = CacheStatusHit
	}
	s.observeStage("retrieval", rres.Duration)
	s.emitRetrieval(ctx, m, &rres)
	if rres.Err != nil && !errors.Is(rres.Err, retrieve.ErrNoSearchTerms) {
		span.SetStatus(codes.Error, "retrieval failed")
		s.logger.Warn("search backend unavailable", "requestId", m.RequestID, "err", rres.Err)
		return s.fail(ctx, m, req.Query, "Search backend unavailable", CodeSearchError)
	}
	cands := rres.Candidates
	if cands == nil {
		cands = []*domain.Candidate{}
	}

	fres := s.filterStage(ctx, in, cands)
	m.Filtering = fres.Duration
	m.PreFilterCount = fres.PreFilterCount
	m.PostFilterCount = fres.Count
	m.FiltersApplied = fres.FiltersApplied
	s.observeStage("filtering", fres.Duration)
	s.emitFiltering(ctx, m, &fres)

	kres := s.rankStage(ctx, in, fres.Candidates)
	m.Ranking = kres.Duration
	m.Profile = kres.Profile
	m.Weights = kres.Weights
	s.observeStage("ranking", kres.Duration)
	s.emitRanking(ctx, m, &kres)

	ranked := kres.Candidates
	total := len(ranked)
	pageCands, pg := paginate(ranked, page, limit)

	var expl *explain.Explanation
	var perResult map[string]*explain.ResultExplanation
	if eres, ran := s.explainStage(ctx, req.Query, in, pageCands, total); ran {
		m.Explanation = eres.Duration
		s.observeStage("explanation", eres.Duration)
		expl = &eres.Explanation
		perResult = eres.PerResult
	}

	results := make([]Result, 0, len(pageCands))
	for _, c := range pageCands {
		results = append(results, resultFromCandidate(c, perResult[c.ID]))
	}

	m.ResultCount = len(results)
	if total > 0 {
		m.TopResultID = ranked[0].ID
		m.TopResultScore = ranked[0].RankScore
	}
	m.Success = true
	m.Total = time.Since(start)
	s.succeeded.Inc()
	if total == 0 {
		s.zeroResults.Inc()
	}
	s.totalTime.Observe(float64(m.Total) / float64(time.Millisecond))

	resp = &Response{
		Success: true,
		Query:   req.Query,
		Understanding: &Understanding{
			Intent:     in,
			Method:     ures.Method,
			Confidence: in.Confidence,
			SearchType: in.SearchType,
		},
		Explanation: expl,
		Results:     results,
		Pagination:  pg,
		Timing:      timingFrom(m),
		Meta: &Meta{
			RequestID:       m.RequestID,
			ExperimentGroup: kres.Profile,
			CacheStatus:     m.CacheStatus,
		},
	}
	s.storeResponse(ctx, key, resp)
	s.emitAfter(ctx, m, resp)
	s.logger.Info("search done",
		"requestId", m.RequestID,
		"method", m.ParseMethod,
		"strategy", m.RetrievalStrategy,
		"results", len(results),
		"total", total,
		"duration", m.Total)
	return resp
}

func (s *Service) nextRequestID() string {
	return fmt.Sprintf("req-%d-%s", s.seq.Add(1), uuid.NewString()[:8])
}

// fail finalises a failure envelope: empty results, zeroed pagination, the
// request id preserved.
func (s *Service) fail(ctx context.Context, m *Metrics, rawQuery, msg, code string) *Response {
	m.Success = false
	m.ErrorCode = code
	m.Total = time.Since(m.Start)
	s.failed.Inc()
	s.totalTime.Observe(float64(m.Total) / float64(time.Millisecond))
	resp := &Response{
		Success:    false,
		Query:      rawQuery,
		Error:      msg,
		ErrorCode:  code,
		Results:    []Result{},
		Pagination: Pagination{},
		Timing:     timingFrom(m),
		Meta:       &Meta{RequestID: m.RequestID, CacheStatus: m.CacheStatus},
	}
	s.emitAfter(ctx, m, resp)
	return resp
}

// Stage wrappers. Each honours its flag and the remaining deadline budget,
// falling back to the stage's passthrough, and wraps real work in a span.

func (s *Service) understandStage(ctx context.Context, rawQuery string) understand.Result {
	flag := s.opts.Stages.Understanding
	if flag.Disabled || !hasBudget(ctx, flag.Timeout) {
		return tokenOnly(rawQuery)
	}
	ctx, span := s.tracer.Start(ctx, "search.understanding")
	defer span.End()
	res := s.understander.Understand(ctx, rawQuery)
	if res.Err != nil {
		span.SetStatus(codes.Error, res.Err.Error())
	}
	return res
}

// tokenOnly is the understanding passthrough: the deterministic parser with
// no cache or LLM involved.
func tokenOnly(rawQuery string) understand.Result {
	start := time.Now()
	parsed, err := query.Parse(rawQuery)
	if err != nil {
		return understand.Result{Method: understand.MethodNone, Duration: time.Since(start), Err: err}
	}
	return understand.Result{
		Success:  true,
		Intent:   parsed.Intent,
		Method:   understand.MethodToken,
		Duration: time.Since(start),
	}
}

func (s *Service) retrieveStage(ctx context.Context, in domain.Intent) retrieve.Result {
	flag := s.opts.Stages.Retrieval
	if flag.Disabled || !hasBudget(ctx, flag.Timeout) {
		return retrieve.Result{Success: true, Candidates: []*domain.Candidate{}}
	}
	ctx, span := s.tracer.Start(ctx, "search.retrieval")
	defer span.End()
	res := s.retriever.Retrieve(ctx, in)
	if res.Err != nil && !errors.Is(res.Err, retrieve.ErrNoSearchTerms) {
		span.SetStatus(codes.Error, res.Err.Error())
	}
	return res
}

func (s *Service) filterStage(ctx context.Context, in domain.Intent, cands []*domain.Candidate) filter.Result {
	flag := s.opts.Stages.Filtering
	if flag.Disabled || !hasBudget(ctx, flag.Timeout) {
		return NoopFilterer{}.Filter(ctx, in, cands)
	}
	ctx, span := s.tracer.Start(ctx, "search.filtering")
	defer span.End()
	return s.filterer.Filter(ctx, in, cands)
}

func (s *Service) rankStage(ctx context.Context, in domain.Intent, cands []*domain.Candidate) rank.Result {
	flag := s.opts.Stages.Ranking
	if flag.Disabled || !hasBudget(ctx, flag.Timeout) {
		return NoopRanker{}.Rank(ctx, in, cands)
	}
	ctx, span := s.tracer.Start(ctx, "search.ranking")
	defer span.End()
	return s.ranker.Rank(ctx, in, cands)
}

func (s *Service) explainStage(ctx context.Context, rawQuery string, in domain.Intent, cands []*domain.Candidate, total int) (explain.Result, bool) {
	flag := s.opts.Stages.Explanation
	if flag.Disabled || !hasBudget(ctx, flag.Timeout) {
		return explain.Result{}, false
	}
	ctx, span := s.tracer.Start(ctx, "search.explanation")
	defer span.End()
	return s.explainer.Explain(ctx, rawQuery, in, cands, total), true
}

// Response cache. The key hashes the normalized query with pagination and
// the filter object, so it is computable before understanding runs.

func (s *Service) responseKey(rawQuery string, page, limit int, filters map[string]any) string {
	if !s.opts.CacheEnabled {
		return ""
	}
	key, err := cache.HashValue(map[string]any{
		"query":   domain.NormalizeQuery(rawQuery),
		"page":    page,
		"limit":   limit,
		"filters": filters,
	})
	if err != nil {
		s.logger.Debug("response cache key failed", "err", err)
		return ""
	}
	return key
}

func (s *Service) cachedResponse(ctx context.Context, key string, m *Metrics) *Response {
	if key == "" {
		return nil
	}
	var resp Response
	if !s.store.GetJSON(ctx, cache.NSSearch, key, &resp) {
		return nil
	}
	m.Success = true
	m.CacheStatus = CacheStatusResponse
	m.ResultCount = len(resp.Results)
	m.Total = time.Since(m.Start)

	group := ""
	if resp.Meta != nil {
		group = resp.Meta.ExperimentGroup
	}
	resp.Meta = &Meta{RequestID: m.RequestID, ExperimentGroup: group, CacheStatus: CacheStatusResponse}
	if resp.Timing == nil {
		resp.Timing = &Timing{}
	}
	resp.Timing.Total = m.Total.Milliseconds()

	s.succeeded.Inc()
	s.cacheServed.Inc()
	s.totalTime.Observe(float64(m.Total) / float64(time.Millisecond))
	s.logger.Info("search served from cache", "requestId", m.RequestID, "results", len(resp.Results))
	return &resp
}

func (s *Service) storeResponse(ctx context.Context, key string, resp *Response) {
	if key == "" || !resp.Success {
		return
	}
	s.store.SetJSON(ctx, cache.NSSearch, key, resp)
}

// hasBudget reports whether the request deadline leaves room for a stage's
// advisory timeout. Stages with no timeout always run.
func hasBudget(ctx context.Context, need time.Duration) bool {
	if need <= 0 {
		return true
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		return true
	}
	return time.Until(deadline) >= need
}

func pageBounds(o RequestOptions, opts Options) (page, limit int) {
	page = max(o.Page, 1)
	limit = o.Limit
	if limit <= 0 {
		limit = opts.DefaultLimit
	}
	return page, min(limit, opts.MaxLimit)
}

func timingFrom(m *Metrics) *Timing {
	return &Timing{
		Total:         m.Total.Milliseconds(),
		Understanding: m.Understanding.Milliseconds(),
		Retrieval:     m.Retrieval.Milliseconds(),
		Filtering:     m.Filtering.Milliseconds(),
		Ranking:       m.Ranking.Milliseconds(),
		Explanation:   m.Explanation.Milliseconds(),
	}
}

func (s *Service) observeStage(stage string, d time.Duration) {
	s.stageTimes[stage].Observe(float64(d) / float64(time.Millisecond))
}

func (s *Service) emitBefore(ctx context.Context, req *Request, m *Metrics) {
	for _, l := range s.listeners {
		l.BeforeSearch(ctx, req, m)
	}
}

func (s *Service) emitUnderstanding(ctx context.Context, m *Metrics, res *understand.Result) {
	for _, l := range s.listeners {
		l.AfterUnderstanding(ctx, m, res)
	}
}

func (s *Service) emitRetrieval(ctx context.Context, m *Metrics, res *retrieve.Result) {
	for _, l := range s.listeners {
		l.AfterRetrieval(ctx, m, res)
	}
}

func (s *Service) emitFiltering(ctx context.Context, m *Metrics, res *filter.Result) {
	for _, l := range s.listeners {
		l.AfterFiltering(ctx, m, res)
	}
}

func (s *Service) emitRanking(ctx context.Context, m *Metrics, res *rank.Result) {
	for _, l := range s.listeners {
		l.AfterRanking(ctx, m, res)
	}
}

func (s *Service) emitAfter(ctx context.Context, m *Metrics, resp *Response) {
	for _, l := range s.listeners {
		l.AfterSearch(ctx, m, resp)
	}
}
