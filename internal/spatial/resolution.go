package spatial

import (
	"fmt"
	"math"
)

// ResolutionInfo holds the nominal (average hexagon) size of one
// resolution. Real cells deviate from it, most near the 12 pentagons.
type ResolutionInfo struct {
	Resolution  int     `json:"resolution"`
	AvgEdgeKm   float64 `json:"avg_edge_km"`
	AvgAreaKm2  float64 `json:"avg_area_km2"`
	Description string  `json:"description"`
}

var resolutionTable = [MaxResolution + 1]ResolutionInfo{
	{0, 1107.712591, 4357449.416078, "continent"},
	{1, 418.6760055, 609788.441794, "country"},
	{2, 158.2446558, 86801.780399, "state or region"},
	{3, 59.81085794, 12393.434655, "province"},
	{4, 22.6063794, 1770.347654, "district"},
	{5, 8.544408276, 252.903858, "metropolitan area"},
	{6, 3.229482772, 36.129062, "city"},
	{7, 1.220629759, 5.161293, "neighbourhood"},
	{8, 0.461354684, 0.737328, "quarter"},
	{9, 0.174375668, 0.105333, "street block"},
	{10, 0.065907807, 0.015048, "building block"},
	{11, 0.024910561, 0.002150, "house"},
	{12, 0.009415526, 0.000307, "building interior"},
	{13, 0.003559893, 0.0000439, "room"},
	{14, 0.001348575, 0.00000627, "desk"},
	{15, 0.000509713, 0.000000895, "chair"},
}

// Info returns the nominal size table entry for res.
func Info(res int) (ResolutionInfo, error) {
	if err := validateRes(res); err != nil {
		return ResolutionInfo{}, err
	}
	return resolutionTable[res], nil
}

// Resolutions returns the whole table, finest last.
func Resolutions() []ResolutionInfo {
	out := make([]ResolutionInfo, len(resolutionTable))
	copy(out, resolutionTable[:])
	return out
}

// RingsForDistance estimates the ring count k needed to cover distanceKm
// around a cell at res: ceil(distance / average edge length), at least 1.
//
// This is a heuristic. Cell shapes vary across the grid, so callers that
// need guaranteed completeness should over-provision k.
func RingsForDistance(distanceKm float64, res int) (int, error) {
	if err := validateRes(res); err != nil {
		return 0, err
	}
	if math.IsNaN(distanceKm) || math.IsInf(distanceKm, 0) || distanceKm < 0 {
		return 0, fmt.Errorf("%w: %v km must be finite and >= 0", ErrInvalidDistance, distanceKm)
	}
	k := int(math.Ceil(distanceKm / resolutionTable[res].AvgEdgeKm))
	return max(k, 1), nil
}

// RingRadiusKm is the nominal radius RingsForDistance assumes a k-ring
// covers at res.
func RingRadiusKm(k, res int) (float64, error) {
	if err := validateRes(res); err != nil {
		return 0, err
	}
	if k < 0 {
		return 0, fmt.Errorf("%w: k=%d must be >= 0", ErrInvalidRingSize, k)
	}
	return float64(k) * resolutionTable[res].AvgEdgeKm, nil
}
