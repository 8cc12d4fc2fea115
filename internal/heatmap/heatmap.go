// Package heatmap aggregates point locations into H3 cells at a caller
// chosen resolution.
package heatmap

import (
	"fmt"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/h3-facility-locator/internal/core/model"
	"github.com/mohammed-shakir/h3-facility-locator/internal/spatial"
)

const DefaultResolution = 8

type Heatmap struct {
	Resolution  int                 `json:"resolution"`
	TotalPoints int                 `json:"total_points"`
	Cells       []model.HeatmapCell `json:"cells"`
}

// Build counts points per cell at res. Cells are ordered by count, highest
// first, then by cell id.
func Build(points []spatial.Coordinate, res int) (Heatmap, error) {
	if err := spatial.ValidateResolution(res); err != nil {
		return Heatmap{}, err
	}
	counts := make(map[spatial.CellID]int)
	for _, p := range points {
		c, err := spatial.ToCell(p, res)
		if err != nil {
			return Heatmap{}, fmt.Errorf("heatmap point %s: %w", p, err)
		}
		counts[c]++
	}
	return fromCounts(counts, res, len(points))
}

// RollUp re-aggregates h at the coarser parentRes.
func RollUp(h Heatmap, parentRes int) (Heatmap, error) {
	if err := spatial.ValidateResolution(parentRes); err != nil {
		return Heatmap{}, err
	}
	if parentRes > h.Resolution {
		return Heatmap{}, fmt.Errorf("%w: parent resolution %d is finer than %d", spatial.ErrInvalidResolution, parentRes, h.Resolution)
	}
	counts := make(map[spatial.CellID]int, len(h.Cells))
	for _, c := range h.Cells {
		p, err := spatial.ToParent(c.H3Index, parentRes)
		if err != nil {
			return Heatmap{}, err
		}
		counts[p] += c.Count
	}
	return fromCounts(counts, parentRes, h.TotalPoints)
}

func fromCounts(counts map[spatial.CellID]int, res, total int) (Heatmap, error) {
	cells := make([]model.HeatmapCell, 0, len(counts))
	for id, n := range counts {
		center, err := spatial.ToCoords(id)
		if err != nil {
			return Heatmap{}, err
		}
		area, err := spatial.CellAreaKm2(id)
		if err != nil {
			return Heatmap{}, err
		}
		cells = append(cells, model.HeatmapCell{H3Index: id, Count: n, Center: center, AreaKm2: area})
	}
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Count != cells[j].Count {
			return cells[i].Count > cells[j].Count
		}
		return cells[i].H3Index.String() < cells[j].H3Index.String()
	})
	return Heatmap{Resolution: res, TotalPoints: total, Cells: cells}, nil
}

// FeatureCollection renders every cell as a polygon feature carrying its
// count.
func (h Heatmap) FeatureCollection() (*geojson.FeatureCollection, error) {
	fc := geojson.NewFeatureCollection()
	for _, c := range h.Cells {
		poly, err := CellPolygon(c.H3Index)
		if err != nil {
			return nil, err
		}
		f := geojson.NewFeature(poly)
		f.ID = c.H3Index.String()
		f.Properties["h3_index"] = c.H3Index.String()
		f.Properties["count"] = c.Count
		f.Properties["area_km2"] = c.AreaKm2
		fc.Append(f)
	}
	return fc, nil
}

// CellPolygon returns the cell boundary as a closed orb polygon in
// lng/lat order.
func CellPolygon(id spatial.CellID) (orb.Polygon, error) {
	verts, err := spatial.Boundary(id)
	if err != nil {
		return nil, err
	}
	ring := make(orb.Ring, 0, len(verts)+1)
	for _, v := range verts {
		ring = append(ring, orb.Point{v.Lng, v.Lat})
	}
	if len(ring) > 0 {
		ring = append(ring, ring[0])
	}
	return orb.Polygon{ring}, nil
}
