// Package query turns free-form search text into a structured Intent. The
// token parser is deterministic and makes no external calls; the schema
// validator lowers LLM output into the same Intent shape; merging combines
// the two according to fixed precedence rules.
package query

import (
	"strings"

	"github.com/partlinq/partsearch/engine/domain"
	"github.com/partlinq/partsearch/pkg/fn"
)

// Dimension is a detected physical measurement such as a disc diameter.
type Dimension struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// Signals records what each detector found, kept on the Intent for downstream
// debugging and for the explanation stage's highlights.
type Signals struct {
	Tokens               []string   `json:"tokens"`
	PartNumberPattern    string     `json:"partNumberPattern,omitempty"`
	PartNumberConfidence float64    `json:"partNumberConfidence,omitempty"`
	CategoryIndicator    string     `json:"categoryIndicator,omitempty"`
	CategoryConfidence   float64    `json:"categoryConfidence,omitempty"`
	VehicleConfidence    float64    `json:"vehicleConfidence,omitempty"`
	Diameter             *Dimension `json:"diameter,omitempty"`
	Thread               string     `json:"thread,omitempty"`
	Displacement         string     `json:"displacement,omitempty"`
	Aspiration           string     `json:"aspiration,omitempty"`
}

// Result is the token parser's output.
type Result struct {
	Intent     domain.Intent
	Normalized string
	Signals    Signals
}

// Tokenize splits a normalized query into matching units.
func Tokenize(normalized string) []string {
	return strings.Fields(normalized)
}

// Parse runs the pattern detectors over the query and assembles an Intent.
// The detectors are independent, so they fan out in parallel. Returns
// domain.ErrEmptyQuery when nothing survives normalization; never fails
// otherwise.
func Parse(raw string) (*Result, error) {
	normalized := domain.NormalizeQuery(raw)
	if normalized == "" {
		return nil, domain.ErrEmptyQuery
	}
	tokens := Tokenize(normalized)

	findings := fn.FanOut(
		func() finding { return detectPartNumber(normalized, tokens) },
		func() finding { return detectBrands(tokens) },
		func() finding { return detectCategory(normalized) },
		func() finding { return detectVehicle(normalized, tokens) },
		func() finding { return detectPositions(tokens) },
		func() finding { return detectSpecs(normalized, tokens) },
	)

	res := combine(normalized, tokens, findings)
	res.Intent.Confidence = confidence(res)
	res.Intent.SearchType = deriveSearchType(res)
	res.Intent.Raw = res.Signals
	return res, nil
}

func combine(normalized string, tokens []string, findings []finding) *Result {
	res := &Result{
		Normalized: normalized,
		Signals:    Signals{Tokens: tokens},
	}
	in := &res.Intent
	for _, f := range findings {
		if f.partNumber != "" && f.pnConfidence > res.Signals.PartNumberConfidence {
			in.PartNumber = f.partNumber
			res.Signals.PartNumberPattern = f.pnPattern
			res.Signals.PartNumberConfidence = f.pnConfidence
		}
		if len(f.brands) > 0 {
			in.Brands = fn.Unique(append(in.Brands, f.brands...))
		}
		if f.category != "" {
			in.Category = f.category
			res.Signals.CategoryIndicator = f.catIndicator
			res.Signals.CategoryConfidence = f.catConfidence
		}
		if f.vehicleMake != "" {
			in.VehicleMake = f.vehicleMake
		}
		if f.vehicleModel != "" {
			in.VehicleModel = f.vehicleModel
		}
		if f.vehicleYear != 0 {
			in.VehicleYear = f.vehicleYear
		}
		if f.vehicleConf > res.Signals.VehicleConfidence {
			res.Signals.VehicleConfidence = f.vehicleConf
		}
		if len(f.positions) > 0 {
			in.Positions = fn.Unique(append(in.Positions, f.positions...))
		}
		if f.engineCode != "" && in.EngineCode == "" {
			in.EngineCode = f.engineCode
		}
		if f.diameter != nil {
			res.Signals.Diameter = f.diameter
		}
		if f.thread != "" {
			res.Signals.Thread = f.thread
		}
		if f.displacement != "" {
			res.Signals.Displacement = f.displacement
		}
		if f.aspiration != "" {
			res.Signals.Aspiration = f.aspiration
		}
	}
	return res
}

// confidence blends the detector signals: a 0.2 base plus weighted
// contributions, floored by the strongest decisive signal. A bare weighted sum
// undervalues queries that consist of nothing but a rock-solid part number or
// a fully specified vehicle, so those two floor the result.
func confidence(res *Result) float64 {
	in := res.Intent
	sig := res.Signals

	c := 0.2
	c += sig.PartNumberConfidence * 0.4
	if len(in.Brands) > 0 {
		c += 0.15
	}
	c += sig.CategoryConfidence * 0.2
	c += sig.VehicleConfidence * 0.15

	if in.PartNumber != "" && sig.PartNumberConfidence > c {
		c = sig.PartNumberConfidence
	}
	fullVehicle := in.VehicleMake != "" && in.VehicleModel != "" && in.VehicleYear != 0
	if fullVehicle && in.Category != "" && c < 0.85 {
		c = 0.85
	}

	if c > 1 {
		c = 1
	}
	if c < 0 {
		c = 0
	}
	return c
}

func deriveSearchType(res *Result) domain.SearchType {
	in := res.Intent
	switch {
	case in.PartNumber != "" && res.Signals.PartNumberConfidence >= 0.7:
		return domain.SearchPartNumber
	case in.VehicleMake != "" && in.Category != "":
		return domain.SearchFitment
	case len(in.Brands) > 0 && in.Category != "":
		return domain.SearchCatalog
	default:
		return domain.SearchGeneral
	}
}
