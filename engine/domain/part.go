package domain

import (
	"encoding/json"
	"time"
)

// VehicleFitment records one vehicle a part is compatible with. YearFrom and
// YearTo bound an inclusive range; zero means unbounded on that side.
type VehicleFitment struct {
	Make       string `json:"make"`
	Model      string `json:"model,omitempty"`
	YearFrom   int    `json:"yearFrom,omitempty"`
	YearTo     int    `json:"yearTo,omitempty"`
	EngineCode string `json:"engineCode,omitempty"`
}

// ContainsYear reports whether year falls inside the fitment range. A zero
// year on the fitment side leaves that side open.
func (f VehicleFitment) ContainsYear(year int) bool {
	if year == 0 {
		return true
	}
	if f.YearFrom != 0 && year < f.YearFrom {
		return false
	}
	if f.YearTo != 0 && year > f.YearTo {
		return false
	}
	return true
}

// Price is one market price of a part.
type Price struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency,omitempty"`
}

// Part is the documented subset of an index document that the pipeline reads.
// Index documents may carry more fields; those travel untouched in
// Candidate.Source.
type Part struct {
	PartNumber           string           `json:"partNumber"`
	PartNumberNormalized string           `json:"partNumberNormalized,omitempty"`
	Description          string           `json:"description,omitempty"`
	Brand                string           `json:"brand,omitempty"`
	Category             string           `json:"category,omitempty"`
	Price                float64          `json:"price,omitempty"`
	Prices               []Price          `json:"prices,omitempty"`
	Stock                int              `json:"stock,omitempty"`
	InStock              bool             `json:"inStock,omitempty"`
	ImageURL             string           `json:"imageUrl,omitempty"`
	Images               []string         `json:"images,omitempty"`
	Specifications       map[string]any   `json:"specifications,omitempty"`
	VehicleFitments      []VehicleFitment `json:"vehicleFitments,omitempty"`
	CrossReferences      []string         `json:"crossReferences,omitempty"`
	OEMReferences        []string         `json:"oemReferences,omitempty"`
	SupersededBy         []string         `json:"supersededBy,omitempty"`
	EngineCodes          []string         `json:"engineCodes,omitempty"`
	Position             string           `json:"position,omitempty"`
	UpdatedAt            time.Time        `json:"updatedAt,omitempty"`
}

// EffectivePrice returns the top-level price, falling back to the first
// market price.
func (p *Part) EffectivePrice() float64 {
	if p.Price > 0 {
		return p.Price
	}
	if len(p.Prices) > 0 {
		return p.Prices[0].Amount
	}
	return 0
}

// Available reports whether the part can be bought right now.
func (p *Part) Available() bool {
	return p.InStock || p.Stock > 0
}

// PrimaryImage returns the display image URL, if any.
func (p *Part) PrimaryImage() string {
	if p.ImageURL != "" {
		return p.ImageURL
	}
	if len(p.Images) > 0 {
		return p.Images[0]
	}
	return ""
}

// NormalizedNumber returns the indexed normalized part number, computing it
// from PartNumber when the document predates the normalized field.
func (p *Part) NormalizedNumber() string {
	if p.PartNumberNormalized != "" {
		return p.PartNumberNormalized
	}
	return NormalizePartNumber(p.PartNumber)
}

// CompletenessChecks reports which data-quality criteria the document
// satisfies. Filtering and ranking weight the same checklist differently.
func (p *Part) CompletenessChecks() map[string]bool {
	return map[string]bool{
		"hasImage":          p.PrimaryImage() != "",
		"hasDescription":    len(p.Description) > 20,
		"hasSpecifications": len(p.Specifications) > 0,
		"hasStock":          p.Available(),
		"hasPrice":          p.EffectivePrice() > 0,
		"hasCrossReference": len(p.CrossReferences) > 0 || len(p.OEMReferences) > 0,
		"hasVehicleFitment": len(p.VehicleFitments) > 0,
	}
}

// Candidate is one retrieved record flowing through the pipeline. Retrieval
// creates it; filtering and ranking mutate it in place, adding fields but
// never removing any.
type Candidate struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`

	// Source is the engine document verbatim, passed through to responses.
	Source json.RawMessage `json:"source,omitempty"`

	// Part is the documented subset decoded out of Source.
	Part Part `json:"-"`

	// Filled by the filtering stage.
	SoftScore      float64  `json:"softScore,omitempty"`
	SoftFactors    []string `json:"softFactors,omitempty"`
	QualityScore   float64  `json:"qualityScore,omitempty"`
	CompositeScore float64  `json:"compositeScore,omitempty"`

	// Filled by the ranking stage.
	Features  map[string]float64 `json:"features,omitempty"`
	Rank      int                `json:"rank,omitempty"`
	RankScore float64            `json:"rankScore,omitempty"`
}

// NewCandidate decodes an engine hit into a Candidate, keeping the raw
// document for response passthrough. Decode failures yield an empty Part
// rather than an error.
func NewCandidate(id string, score float64, source json.RawMessage) *Candidate {
	c := &Candidate{ID: id, Score: score, Source: source}
	if len(source) > 0 {
		_ = json.Unmarshal(source, &c.Part)
	}
	return c
}
