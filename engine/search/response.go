package search

import (
	"encoding/json"
	"math"

	"github.com/partlinq/partsearch/engine/domain"
	"github.com/partlinq/partsearch/engine/explain"
)

// Request is one search call.
type Request struct {
	Query   string         `json:"query"`
	Options RequestOptions `json:"options"`
}

// RequestOptions carries pagination and the opaque filter object, which
// participates in the response cache key.
type RequestOptions struct {
	Page    int            `json:"page"`
	Limit   int            `json:"limit"`
	Filters map[string]any `json:"filters,omitempty"`
}

// Error codes surfaced in failure envelopes.
const (
	CodeInvalidQuery = "INVALID_QUERY"
	CodeSearchError  = "SEARCH_ERROR"
	CodeInternal     = "INTERNAL_ERROR"
)

// Cache status values in response meta.
const (
	CacheStatusMiss     = "miss"  // nothing cached
	CacheStatusHit      = "hit"   // per-part retrieval cache served the candidates
	CacheStatusResponse = "cache" // full response served from cache
)

// Understanding is the intent section of the response.
type Understanding struct {
	Intent     domain.Intent     `json:"intent"`
	Method     string            `json:"method"`
	Confidence float64           `json:"confidence"`
	SearchType domain.SearchType `json:"searchType"`
}

// Result is one part in the response.
type Result struct {
	ID              string                  `json:"id"`
	Rank            int                     `json:"rank"`
	Score           float64                 `json:"score"`
	PartNumber      string                  `json:"partNumber"`
	Brand           string                  `json:"brand"`
	Category        string                  `json:"category"`
	Description     string                  `json:"description"`
	Price           float64                 `json:"price"`
	Stock           int                     `json:"stock"`
	ImageURL        string                  `json:"imageUrl,omitempty"`
	VehicleFitments []domain.VehicleFitment `json:"vehicleFitments"`
	CrossReferences []string                `json:"crossReferences"`
	OEMReferences   []string                `json:"oemReferences"`
	Source          json.RawMessage         `json:"_source,omitempty"`
	Features        map[string]float64      `json:"_features,omitempty"`
	MatchReasons    []explain.Reason        `json:"matchReasons,omitempty"`
	Highlights      *explain.Highlights     `json:"highlights,omitempty"`
}

// Pagination describes the returned page.
type Pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasMore    bool `json:"hasMore"`
}

// Timing is per-stage wall time in milliseconds.
type Timing struct {
	Total         int64 `json:"total"`
	Understanding int64 `json:"understanding"`
	Retrieval     int64 `json:"retrieval"`
	Filtering     int64 `json:"filtering"`
	Ranking       int64 `json:"ranking"`
	Explanation   int64 `json:"explanation"`
}

// Meta identifies the request and how it was served.
type Meta struct {
	RequestID       string `json:"requestId"`
	ExperimentGroup string `json:"experimentGroup,omitempty"`
	CacheStatus     string `json:"cacheStatus"`
}

// Response is the envelope every search returns, success or failure.
type Response struct {
	Success       bool                 `json:"success"`
	Query         string               `json:"query"`
	Error         string               `json:"error,omitempty"`
	ErrorCode     string               `json:"errorCode,omitempty"`
	Understanding *Understanding       `json:"understanding,omitempty"`
	Explanation   *explain.Explanation `json:"explanation,omitempty"`
	Results       []Result             `json:"results"`
	Pagination    Pagination           `json:"pagination"`
	Timing        *Timing              `json:"timing,omitempty"`
	Meta          *Meta                `json:"meta,omitempty"`
}

// resultFromCandidate flattens one ranked candidate into the response shape.
// Score prefers the rank score, then the composite, then raw relevance, so
// disabled later stages still yield a meaningful number.
func resultFromCandidate(c *domain.Candidate, pe *explain.ResultExplanation) Result {
	score := c.RankScore
	if score == 0 {
		score = c.CompositeScore
	}
	if score == 0 {
		score = c.Score
	}
	r := Result{
		ID:              c.ID,
		Rank:            c.Rank,
		Score:           score,
		PartNumber:      c.Part.PartNumber,
		Brand:           c.Part.Brand,
		Category:        c.Part.Category,
		Description:     c.Part.Description,
		Price:           c.Part.EffectivePrice(),
		Stock:           c.Part.Stock,
		ImageURL:        c.Part.PrimaryImage(),
		VehicleFitments: c.Part.VehicleFitments,
		CrossReferences: c.Part.CrossReferences,
		OEMReferences:   c.Part.OEMReferences,
		Source:          c.Source,
		Features:        c.Features,
	}
	if pe != nil {
		r.MatchReasons = pe.Reasons
		r.Highlights = pe.Highlights
	}
	return r
}

// paginate slices candidates for the requested page.
func paginate(cands []*domain.Candidate, page, limit int) ([]*domain.Candidate, Pagination) {
	total := len(cands)
	p := Pagination{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(limit))),
		HasMore:    page*limit < total,
	}
	start := (page - 1) * limit
	if start >= total {
		return nil, p
	}
	end := min(start+limit, total)
	return cands[start:end], p
}
