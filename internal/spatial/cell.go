// Package spatial maps coordinates onto the H3 grid and answers the
// cell-level questions proximity search is built on: ring expansion, grid
// distance, nominal cell size and great-circle distance.
//
// Everything here is a pure function of its inputs and safe for concurrent
// use. Nothing in this package logs.
package spatial

import (
	"fmt"
	"math"
	"strings"

	h3 "github.com/uber/h3-go/v4"
)

const (
	MinResolution = 0
	MaxResolution = 15

	// IndexResolution is the resolution facility rows are indexed at.
	// Coordinate-only queries (heatmaps) pick their own resolution.
	IndexResolution = 7
)

// Coordinate is a WGS84 point in degrees.
type Coordinate struct {
	Lat float64 `json:"latitude"`
	Lng float64 `json:"longitude"`
}

// NewCoordinate returns a validated coordinate.
func NewCoordinate(lat, lng float64) (Coordinate, error) {
	c := Coordinate{Lat: lat, Lng: lng}
	if err := c.Validate(); err != nil {
		return Coordinate{}, err
	}
	return c, nil
}

func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || math.IsInf(c.Lat, 0) || c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w: latitude %v must be a finite value in [-90,90]", ErrInvalidCoordinate, c.Lat)
	}
	if math.IsNaN(c.Lng) || math.IsInf(c.Lng, 0) || c.Lng < -180 || c.Lng > 180 {
		return fmt.Errorf("%w: longitude %v must be a finite value in [-180,180]", ErrInvalidCoordinate, c.Lng)
	}
	return nil
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lng)
}

// CellID is an opaque, validated H3 cell token. The zero value is not a
// cell; every non-zero CellID was produced by ToCell, ParseCellID or an
// operation on another CellID.
type CellID struct {
	c h3.Cell
}

// ParseCellID parses the canonical hex form of an H3 cell index.
func ParseCellID(s string) (CellID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return CellID{}, fmt.Errorf("%w: empty token", ErrInvalidCellID)
	}
	var c h3.Cell
	if err := c.UnmarshalText([]byte(s)); err != nil {
		return CellID{}, fmt.Errorf("%w: parse %q: %v", ErrInvalidCellID, s, err)
	}
	if !c.IsValid() {
		return CellID{}, fmt.Errorf("%w: %q is not an h3 cell", ErrInvalidCellID, s)
	}
	return CellID{c: c}, nil
}

// MustParseCellID is ParseCellID for constants and tests.
func MustParseCellID(s string) CellID {
	id, err := ParseCellID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// ParseCellIDs parses every token, failing on the first malformed one.
func ParseCellIDs(tokens []string) ([]CellID, error) {
	out := make([]CellID, 0, len(tokens))
	for _, t := range tokens {
		id, err := ParseCellID(t)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func (id CellID) String() string {
	if id.IsZero() {
		return ""
	}
	return id.c.String()
}

func (id CellID) IsZero() bool { return id.c == 0 }

func (id CellID) Resolution() int { return id.c.Resolution() }

func (id CellID) IsPentagon() bool { return id.c.IsPentagon() }

func (id CellID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *CellID) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*id = CellID{}
		return nil
	}
	parsed, err := ParseCellID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id CellID) check() error {
	if id.IsZero() || !id.c.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidCellID, id.String())
	}
	return nil
}

func validateRes(res int) error {
	if res < MinResolution || res > MaxResolution {
		return fmt.Errorf("%w: %d (must be %d..%d)", ErrInvalidResolution, res, MinResolution, MaxResolution)
	}
	return nil
}

// ValidateResolution reports ErrInvalidResolution for res outside 0..15.
func ValidateResolution(res int) error { return validateRes(res) }
