package domain

import (
	"fmt"
	"strconv"
	"time"
)

// canonicalBrands is the set of brand names as they appear in intents,
// derived from the detection vocabulary.
var canonicalBrands = func() map[string]bool {
	out := make(map[string]bool, len(Brands))
	for _, v := range Brands {
		out[v] = true
	}
	return out
}()

// CanonicalBrand reports whether name is a canonical brand value.
func CanonicalBrand(name string) bool { return canonicalBrands[name] }

// MaxIntentYear is the latest vehicle year an intent may carry (next-year
// models are listed up to two years ahead).
func MaxIntentYear() int { return time.Now().Year() + 2 }

// ValidateIntent is the strict gate every produced Intent must pass before
// retrieval consumes it. The lenient schema validator repairs what it can and
// then calls this.
func ValidateIntent(in Intent) error {
	if !ValidSearchTypes[in.SearchType] {
		return NewValidationError("searchType", string(in.SearchType), ErrUnknownSearchType)
	}
	if in.Category != "" {
		if _, ok := Categories[in.Category]; !ok {
			return NewValidationError("category", in.Category, ErrUnknownCategory)
		}
	}
	seenBrands := make(map[string]bool, len(in.Brands))
	for _, b := range in.Brands {
		if !canonicalBrands[b] {
			return NewValidationError("brand", b, ErrUnknownBrand)
		}
		if seenBrands[b] {
			return NewValidationError("brand", b, ErrDuplicateValues)
		}
		seenBrands[b] = true
	}
	seenPos := make(map[Position]bool, len(in.Positions))
	for _, p := range in.Positions {
		if !ValidPositions[p] {
			return NewValidationError("position", string(p), ErrUnknownPosition)
		}
		if seenPos[p] {
			return NewValidationError("position", string(p), ErrDuplicateValues)
		}
		seenPos[p] = true
	}
	if in.Confidence < 0 || in.Confidence > 1 {
		return NewValidationError("confidence", fmt.Sprintf("%g", in.Confidence), ErrConfidenceOutOfRange)
	}
	if in.PartNumber != "" && in.Confidence < 0.7 {
		return NewValidationError("partNumber", in.PartNumber, ErrPartNumberConfidence)
	}
	if in.SearchType == SearchFitment && in.VehicleMake == "" {
		return NewValidationError("vehicleMake", "", ErrMissingVehicleMake)
	}
	if in.VehicleYear != 0 && (in.VehicleYear < IntentYearMin || in.VehicleYear > MaxIntentYear()) {
		return NewValidationError("vehicleYear", strconv.Itoa(in.VehicleYear), ErrYearOutOfRange)
	}
	return nil
}
