package analytics

import (
	"context"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/partlinq/partsearch/engine/search"
	"github.com/partlinq/partsearch/pkg/metrics"
	"github.com/partlinq/partsearch/pkg/natsutil"
)

// Options configures the analytics service.
type Options struct {
	// RecentWindow is how many completed searches the rolling window
	// retains. First-click dedup for MRR shares its lifetime.
	RecentWindow int
}

// DefaultOptions returns production defaults.
func DefaultOptions() Options {
	return Options{RecentWindow: 1000}
}

// Service listens to completed searches, publishes log entries, and
// aggregates the quality gauges. Register it on the orchestrator with
// AddListener and feed it events via NATS or the Publish helpers.
type Service struct {
	search.BaseListener

	nc     *nats.Conn
	store  *EngagementStore
	logger *slog.Logger
	opts   Options
	now    func() time.Time

	reg        *metrics.Registry
	clicks     *metrics.Counter
	purchases  *metrics.Counter
	mrrGauge   *metrics.Gauge
	ndcgGauge  *metrics.Gauge
	avgResults *metrics.Gauge

	tr tracker
}

// New creates the analytics service. nc may be nil; log entries then stay
// local and events are handled in-process.
func New(nc *nats.Conn, reg *metrics.Registry, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if reg == nil {
		reg = metrics.New()
	}
	if opts.RecentWindow <= 0 {
		opts.RecentWindow = DefaultOptions().RecentWindow
	}
	s := &Service{
		nc:         nc,
		store:      NewEngagementStore(),
		logger:     logger,
		opts:       opts,
		now:        time.Now,
		reg:        reg,
		clicks:     reg.Counter("search_clicks_total", "Result clicks received"),
		purchases:  reg.Counter("search_purchases_total", "Purchases attributed to searches"),
		mrrGauge:   reg.Gauge("search_mrr", "Mean reciprocal rank of first clicks over the quality window"),
		ndcgGauge:  reg.Gauge("search_ndcg", "Average NDCG over engaged searches in the quality window"),
		avgResults: reg.Gauge("search_avg_results", "Average result count per successful search"),
	}
	s.tr.init(opts.RecentWindow)
	return s
}

// Engagement exposes the per-part engagement store for the ranker.
func (s *Service) Engagement() *EngagementStore { return s.store }

// AfterSearch records the completed request and publishes its log entry.
func (s *Service) AfterSearch(ctx context.Context, m *search.Metrics, resp *search.Response) {
	entry := entryFromMetrics(m)
	s.logger.Info("search log entry",
		"requestId", entry.RequestID,
		"query", entry.RawQuery,
		"method", entry.ParseMethod,
		"source", entry.RetrievalSource,
		"results", entry.ResultCount,
		"totalMs", entry.TotalTimeMs)

	if m.Success {
		s.tr.recordSearch(RecentSearch{
			RequestID:   entry.RequestID,
			Query:       entry.RawQuery,
			ResultCount: entry.ResultCount,
			TimeMs:      entry.TotalTimeMs,
			Timestamp:   s.now(),
		}, topResultIDs(resp))
		for _, r := range resp.Results {
			s.store.RecordImpression(r.ID)
		}
		s.updateGauges()
	}

	if s.nc != nil {
		if err := natsutil.Publish(ctx, s.nc, SubjectSearchLogs, entry); err != nil {
			s.logger.Debug("search log publish failed", "error", err)
		}
	}
}

// Stats snapshots the quality gauges, returning at most recentLimit
// entries of the rolling window (newest first).
func (s *Service) Stats(recentLimit int) Snapshot {
	snap := s.tr.snapshot(recentLimit)
	snap.TrackedParts = s.store.Len()
	return snap
}

// topResultIDs lists result ids by rank up to ndcgK. Pages past the
// first rank outside the tracked depth and contribute nothing.
func topResultIDs(resp *search.Response) []string {
	var ids []string
	for _, r := range resp.Results {
		if r.Rank < 1 || r.Rank > ndcgK {
			continue
		}
		for len(ids) < r.Rank {
			ids = append(ids, "")
		}
		ids[r.Rank-1] = r.ID
	}
	return ids
}

func (s *Service) updateGauges() {
	avgResults, mrr, ndcg := s.tr.gaugeValues()
	s.avgResults.Set(avgResults)
	s.mrrGauge.Set(mrr)
	s.ndcgGauge.Set(ndcg)
}

func entryFromMetrics(m *search.Metrics) SearchLogEntry {
	return SearchLogEntry{
		RequestID:       m.RequestID,
		Timestamp:       m.Start,
		RawQuery:        m.Query,
		ParsedIntent:    m.Intent,
		ParseMethod:     m.ParseMethod,
		ParseTimeMs:     m.Understanding.Milliseconds(),
		ParseConfidence: m.ParseConfidence,
		RetrievalSource: m.RetrievalStrategy,
		CandidateCount:  m.CandidateCount,
		RetrievalTimeMs: m.Retrieval.Milliseconds(),
		PreFilterCount:  m.PreFilterCount,
		PostFilterCount: m.PostFilterCount,
		FiltersApplied:  m.FiltersApplied,
		FilterTimeMs:    m.Filtering.Milliseconds(),
		RankingMethod:   m.Profile,
		Weights:         m.Weights,
		RankTimeMs:      m.Ranking.Milliseconds(),
		ResultCount:     m.ResultCount,
		TopResultID:     m.TopResultID,
		TopResultScore:  m.TopResultScore,
		TotalTimeMs:     m.Total.Milliseconds(),
	}
}
