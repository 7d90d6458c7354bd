// Package analytics turns per-request pipeline metrics into the search
// log stream, consumes click and purchase events, and keeps the quality
// gauges (MRR, NDCG, clicks by position, zero-result rate) and the
// per-part engagement rates the ranker reads. Persistence stays external:
// log entries and events ride the NATS bus for whoever wants them.
package analytics

import (
	"time"

	"github.com/partlinq/partsearch/engine/domain"
	"github.com/partlinq/partsearch/engine/rank"
)

// NATS subjects for the search event bus.
const (
	SubjectSearchLogs = "search.logs"
	SubjectClicks     = "search.events.click"
	SubjectPurchases  = "search.events.purchase"
)

// maxPosition bounds the clicks-by-position histogram.
const maxPosition = 20

// ndcgK is the result depth NDCG is computed over. Clicks score a
// relevance of 1, purchases 3.
const ndcgK = 10

// SearchLogEntry is the per-request record published to the log stream.
type SearchLogEntry struct {
	RequestID       string        `json:"requestId"`
	Timestamp       time.Time     `json:"timestamp"`
	RawQuery        string        `json:"rawQuery"`
	ParsedIntent    domain.Intent `json:"parsedIntent"`
	ParseMethod     string        `json:"parseMethod"`
	ParseTimeMs     int64         `json:"parseTimeMs"`
	ParseConfidence float64       `json:"parseConfidence"`
	RetrievalSource string        `json:"retrievalSource"`
	CandidateCount  int           `json:"candidateCount"`
	RetrievalTimeMs int64         `json:"retrievalTimeMs"`
	PreFilterCount  int           `json:"preFilterCount"`
	PostFilterCount int           `json:"postFilterCount"`
	FiltersApplied  []string      `json:"filtersApplied"`
	FilterTimeMs    int64         `json:"filterTimeMs"`
	RankingMethod   string        `json:"rankingMethod"`
	Weights         rank.Weights  `json:"weights"`
	RankTimeMs      int64         `json:"rankTimeMs"`
	ResultCount     int           `json:"resultCount"`
	TopResultID     string        `json:"topResultId,omitempty"`
	TopResultScore  float64       `json:"topResultScore"`
	TotalTimeMs     int64         `json:"totalTimeMs"`
}

// ClickEvent records a click on a search result.
type ClickEvent struct {
	RequestID string    `json:"requestId"`
	PartID    string    `json:"partId"`
	Position  int       `json:"position"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// PurchaseEvent records a purchase attributed to a search.
type PurchaseEvent struct {
	RequestID string    `json:"requestId"`
	PartID    string    `json:"partId"`
	Quantity  int       `json:"quantity"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// RecentSearch is one entry of the rolling search window.
type RecentSearch struct {
	RequestID   string    `json:"requestId"`
	Query       string    `json:"query"`
	ResultCount int       `json:"resultCount"`
	TimeMs      int64     `json:"timeMs"`
	Timestamp   time.Time `json:"timestamp"`
}

// Snapshot is a point-in-time view of the quality gauges.
type Snapshot struct {
	Searches         int64          `json:"searches"`
	ZeroResults      int64          `json:"zeroResults"`
	ZeroResultRate   float64        `json:"zeroResultRate"`
	AvgResultCount   float64        `json:"avgResultCount"`
	MRR              float64        `json:"mrr"`
	MRRSamples       int64          `json:"mrrSamples"`
	NDCG             float64        `json:"ndcg"`
	NDCGSamples      int64          `json:"ndcgSamples"`
	Clicks           int64          `json:"clicks"`
	Purchases        int64          `json:"purchases"`
	ClicksByPosition []int64        `json:"clicksByPosition"`
	TrackedParts     int            `json:"trackedParts"`
	RecentSearches   []RecentSearch `json:"recentSearches"`
}
