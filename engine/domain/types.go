// Package domain defines the core types, closed vocabularies, and validation
// shared by every stage of the parts search pipeline. It acts as the validation
// gate at pipeline entry points: an Intent that passes ValidateIntent is safe
// for retrieval, filtering, and ranking to consume without further checks.
package domain

// SearchType classifies what kind of search an Intent describes. It drives
// retrieval strategy selection and the explanation templates.
type SearchType string

const (
	SearchPartNumber     SearchType = "partNumber"
	SearchFitment        SearchType = "fitment"
	SearchCatalog        SearchType = "catalog"
	SearchGeneral        SearchType = "general"
	SearchCrossReference SearchType = "cross-reference"
)

// ValidSearchTypes is the set of recognised search types.
var ValidSearchTypes = map[SearchType]bool{
	SearchPartNumber: true, SearchFitment: true, SearchCatalog: true,
	SearchGeneral: true, SearchCrossReference: true,
}

// Position locates a part on the vehicle (axle, side, placement).
type Position string

const (
	PositionFront     Position = "front"
	PositionRear      Position = "rear"
	PositionLeft      Position = "left"
	PositionRight     Position = "right"
	PositionUpper     Position = "upper"
	PositionLower     Position = "lower"
	PositionInner     Position = "inner"
	PositionOuter     Position = "outer"
	PositionDriver    Position = "driver"
	PositionPassenger Position = "passenger"
)

// ValidPositions is the set of recognised positions.
var ValidPositions = map[Position]bool{
	PositionFront: true, PositionRear: true, PositionLeft: true,
	PositionRight: true, PositionUpper: true, PositionLower: true,
	PositionInner: true, PositionOuter: true, PositionDriver: true,
	PositionPassenger: true,
}

// Intent is the structured search request produced by query understanding and
// consumed by every later stage. Treat it as immutable once produced.
type Intent struct {
	PartNumber     string     `json:"partNumber,omitempty"`
	CrossReference string     `json:"crossReference,omitempty"`
	Category       string     `json:"category,omitempty"`
	Brands         []string   `json:"brand,omitempty"`
	VehicleMake    string     `json:"vehicleMake,omitempty"`
	VehicleModel   string     `json:"vehicleModel,omitempty"`
	VehicleYear    int        `json:"vehicleYear,omitempty"`
	EngineCode     string     `json:"engineCode,omitempty"`
	Positions      []Position `json:"position,omitempty"`
	SearchType     SearchType `json:"searchType"`
	Confidence     float64    `json:"confidence"`

	// Raw carries the token-parser output for downstream debugging.
	// Never serialized and never read by the pipeline itself.
	Raw any `json:"-"`
}

// Clone returns a deep copy. Stages that adjust an Intent work on a clone so
// the cached original stays untouched.
func (in Intent) Clone() Intent {
	out := in
	out.Brands = append([]string(nil), in.Brands...)
	out.Positions = append([]Position(nil), in.Positions...)
	return out
}

// HasVehicle reports whether any vehicle context was extracted.
func (in Intent) HasVehicle() bool {
	return in.VehicleMake != "" || in.VehicleModel != "" || in.VehicleYear != 0
}

// Empty reports whether the intent carries no usable search signal.
func (in Intent) Empty() bool {
	return in.PartNumber == "" && in.CrossReference == "" && in.Category == "" &&
		len(in.Brands) == 0 && !in.HasVehicle() && in.EngineCode == "" && len(in.Positions) == 0
}

// Engagement holds behavioural signals for one part, both rates in [0, 1].
type Engagement struct {
	ClickRate    float64 `json:"clickRate"`
	PurchaseRate float64 `json:"purchaseRate"`
}

// NeutralEngagement is used when a part has no recorded behaviour yet.
var NeutralEngagement = Engagement{ClickRate: 0.5, PurchaseRate: 0.5}
