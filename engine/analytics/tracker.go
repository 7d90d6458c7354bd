package analytics

import (
	"math"
	"sort"
	"sync"
)

// resultRelevance holds per-request engagement over the top results.
// rel is indexed by position-1; ids mirror the ranked result ids so a
// purchase can be placed without a position on the event.
type resultRelevance struct {
	ids []string
	rel [ndcgK]float64
}

// tracker aggregates the quality gauges under one mutex. The recent
// ring bounds memory; first-click dedup and relevance entries are
// evicted together with the search they belong to.
type tracker struct {
	mu sync.Mutex

	searches    int64
	zeroResults int64
	resultSum   int64

	clicks    int64
	purchases int64
	positions [maxPosition]int64

	mrrSum   float64
	mrrCount int64
	clicked  map[string]struct{}
	engaged  map[string]*resultRelevance

	recent []RecentSearch
	head   int
	filled int
}

func (t *tracker) init(window int) {
	t.recent = make([]RecentSearch, window)
	t.clicked = make(map[string]struct{}, window)
	t.engaged = make(map[string]*resultRelevance, window)
}

// recordSearch enters a completed search into the window. topIDs are the
// ranked result ids up to ndcgK, used to attribute later engagement.
func (t *tracker) recordSearch(rs RecentSearch, topIDs []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.searches++
	if rs.ResultCount == 0 {
		t.zeroResults++
	}
	t.resultSum += int64(rs.ResultCount)

	if old := t.recent[t.head]; old.RequestID != "" {
		delete(t.clicked, old.RequestID)
		delete(t.engaged, old.RequestID)
	}
	t.recent[t.head] = rs
	t.head = (t.head + 1) % len(t.recent)
	if t.filled < len(t.recent) {
		t.filled++
	}

	if rs.RequestID != "" && len(topIDs) > 0 {
		t.engaged[rs.RequestID] = &resultRelevance{ids: topIDs}
	}
}

func (t *tracker) recordClick(requestID string, position int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.clicks++
	if position >= 1 && position <= maxPosition {
		t.positions[position-1]++
	}
	if position >= 1 && requestID != "" {
		if _, seen := t.clicked[requestID]; !seen {
			t.clicked[requestID] = struct{}{}
			t.mrrSum += 1 / float64(position)
			t.mrrCount++
		}
	}
	if position >= 1 && position <= ndcgK {
		if rr := t.engaged[requestID]; rr != nil && rr.rel[position-1] < 1 {
			rr.rel[position-1] = 1
		}
	}
}

// recordPurchase upgrades the purchased part's relevance when the request
// is still in the window and the part was among its top results.
func (t *tracker) recordPurchase(requestID, partID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.purchases++
	rr := t.engaged[requestID]
	if rr == nil {
		return
	}
	for i, id := range rr.ids {
		if id == partID {
			if rr.rel[i] < 3 {
				rr.rel[i] = 3
			}
			return
		}
	}
}

// ndcgOf computes NDCG over the tracked positions. ok is false when the
// request has no engagement yet.
func ndcgOf(rr *resultRelevance) (float64, bool) {
	var dcg float64
	ideal := make([]float64, 0, ndcgK)
	for i, rel := range rr.rel {
		if rel > 0 {
			dcg += rel / math.Log2(float64(i)+2)
			ideal = append(ideal, rel)
		}
	}
	if len(ideal) == 0 {
		return 0, false
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(ideal)))
	var idcg float64
	for i, rel := range ideal {
		idcg += rel / math.Log2(float64(i)+2)
	}
	return dcg / idcg, true
}

// ndcgLocked averages NDCG over the engaged requests. Must hold mu.
func (t *tracker) ndcgLocked() (float64, int64) {
	var sum float64
	var count int64
	for _, rr := range t.engaged {
		if n, ok := ndcgOf(rr); ok {
			sum += n
			count++
		}
	}
	if count == 0 {
		return 0, 0
	}
	return sum / float64(count), count
}

// gaugeValues returns the current quality gauge readings.
func (t *tracker) gaugeValues() (avgResults, mrr, ndcg float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.searches > 0 {
		avgResults = float64(t.resultSum) / float64(t.searches)
	}
	if t.mrrCount > 0 {
		mrr = t.mrrSum / float64(t.mrrCount)
	}
	ndcg, _ = t.ndcgLocked()
	return avgResults, mrr, ndcg
}

func (t *tracker) snapshot(recentLimit int) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := Snapshot{
		Searches:    t.searches,
		ZeroResults: t.zeroResults,
		Clicks:      t.clicks,
		Purchases:   t.purchases,
		MRRSamples:  t.mrrCount,
	}
	if t.searches > 0 {
		snap.ZeroResultRate = float64(t.zeroResults) / float64(t.searches)
		snap.AvgResultCount = float64(t.resultSum) / float64(t.searches)
	}
	if t.mrrCount > 0 {
		snap.MRR = t.mrrSum / float64(t.mrrCount)
	}
	snap.NDCG, snap.NDCGSamples = t.ndcgLocked()
	snap.ClicksByPosition = make([]int64, maxPosition)
	copy(snap.ClicksByPosition, t.positions[:])

	if recentLimit <= 0 || recentLimit > t.filled {
		recentLimit = t.filled
	}
	snap.RecentSearches = make([]RecentSearch, 0, recentLimit)
	for i := range recentLimit { // newest first
		idx := (t.head - 1 - i + 2*len(t.recent)) % len(t.recent)
		snap.RecentSearches = append(snap.RecentSearches, t.recent[idx])
	}
	return snap
}
