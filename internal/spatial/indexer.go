package spatial

import (
	"fmt"

	h3 "github.com/uber/h3-go/v4"
)

// ToCell returns the cell containing c at resolution res.
func ToCell(c Coordinate, res int) (CellID, error) {
	if err := validateRes(res); err != nil {
		return CellID{}, err
	}
	if err := c.Validate(); err != nil {
		return CellID{}, err
	}
	cell, err := h3.LatLngToCell(h3.NewLatLng(c.Lat, c.Lng), res)
	if err != nil {
		return CellID{}, fmt.Errorf("%w: h3 index %s: %v", ErrInvalidCoordinate, c, err)
	}
	return CellID{c: cell}, nil
}

// ToCoords returns the centroid of the cell. The input coordinate of
// ToCell is only recoverable to within the cell's extent.
func ToCoords(id CellID) (Coordinate, error) {
	if err := id.check(); err != nil {
		return Coordinate{}, err
	}
	ll, err := h3.CellToLatLng(id.c)
	if err != nil {
		return Coordinate{}, fmt.Errorf("%w: h3 centroid %s: %v", ErrInvalidCellID, id, err)
	}
	return Coordinate{Lat: ll.Lat, Lng: ll.Lng}, nil
}

// Neighbors is Ring(id, 1): the cell itself and its adjacent cells.
func Neighbors(id CellID) (RingSet, error) {
	return Ring(id, 1)
}

// GridDistance returns the number of cell hops between a and b. Cells at
// different resolutions, or pairs H3 cannot measure (across pentagon
// distortion or too far apart), yield ErrIncompatibleCells.
func GridDistance(a, b CellID) (int, error) {
	if err := a.check(); err != nil {
		return 0, err
	}
	if err := b.check(); err != nil {
		return 0, err
	}
	if a.Resolution() != b.Resolution() {
		return 0, fmt.Errorf("%w: resolutions %d and %d differ", ErrIncompatibleCells, a.Resolution(), b.Resolution())
	}
	d, err := h3.GridDistance(a.c, b.c)
	if err != nil {
		return 0, fmt.Errorf("%w: %s -> %s: %v", ErrIncompatibleCells, a, b, err)
	}
	return d, nil
}

// CellAreaKm2 is the exact area of this particular cell. Cells are not
// uniform, so use it for diagnostics and estimates only.
func CellAreaKm2(id CellID) (float64, error) {
	if err := id.check(); err != nil {
		return 0, err
	}
	a, err := h3.CellAreaKm2(id.c)
	if err != nil {
		return 0, fmt.Errorf("%w: h3 area %s: %v", ErrInvalidCellID, id, err)
	}
	return a, nil
}

// Boundary returns the cell's vertices in counter-clockwise order.
func Boundary(id CellID) ([]Coordinate, error) {
	if err := id.check(); err != nil {
		return nil, err
	}
	b, err := h3.CellToBoundary(id.c)
	if err != nil {
		return nil, fmt.Errorf("%w: h3 boundary %s: %v", ErrInvalidCellID, id, err)
	}
	out := make([]Coordinate, 0, len(b))
	for _, v := range b {
		out = append(out, Coordinate{Lat: v.Lat, Lng: v.Lng})
	}
	return out, nil
}
