package analytics

import (
	"context"
	"sync"

	"github.com/partlinq/partsearch/engine/domain"
	"github.com/partlinq/partsearch/engine/rank"
)

// EngagementStore keeps add-one smoothed click and purchase rates per
// part, so parts without history sit at the neutral midpoint.
type EngagementStore struct {
	mu    sync.RWMutex
	parts map[string]*partStats
}

type partStats struct {
	impressions int64
	clicks      int64
	purchases   int64
}

// NewEngagementStore creates an empty store.
func NewEngagementStore() *EngagementStore {
	return &EngagementStore{parts: make(map[string]*partStats)}
}

var _ rank.EngagementSource = (*EngagementStore)(nil)

// Engagement returns behavioural rates for the given part ids. Unknown
// parts get domain.NeutralEngagement.
func (e *EngagementStore) Engagement(ctx context.Context, ids []string) (map[string]domain.Engagement, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rates := make(map[string]domain.Engagement, len(ids))
	for _, id := range ids {
		st, ok := e.parts[id]
		if !ok {
			rates[id] = domain.NeutralEngagement
			continue
		}
		rates[id] = domain.Engagement{
			ClickRate:    min(1, float64(st.clicks+1)/float64(st.impressions+2)),
			PurchaseRate: min(1, float64(st.purchases+1)/float64(st.clicks+2)),
		}
	}
	return rates, nil
}

// RecordImpression notes that a part was shown in a result page.
func (e *EngagementStore) RecordImpression(id string) {
	e.bump(id, func(s *partStats) { s.impressions++ })
}

// RecordClick notes a click on a part.
func (e *EngagementStore) RecordClick(id string) {
	e.bump(id, func(s *partStats) { s.clicks++ })
}

// RecordPurchase notes a purchase of a part.
func (e *EngagementStore) RecordPurchase(id string) {
	e.bump(id, func(s *partStats) { s.purchases++ })
}

func (e *EngagementStore) bump(id string, f func(*partStats)) {
	if id == "" {
		return
	}
	e.mu.Lock()
	st, ok := e.parts[id]
	if !ok {
		st = &partStats{}
		e.parts[id] = st
	}
	f(st)
	e.mu.Unlock()
}

// Len reports how many parts have recorded behaviour.
func (e *EngagementStore) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.parts)
}
