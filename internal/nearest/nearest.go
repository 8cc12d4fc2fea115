// Package nearest answers "closest facility to this point" queries without
// scanning every facility: the origin's cell is expanded into a ring of
// cells, the store is asked once for the facilities indexed in that ring,
// and only those candidates are ranked by great-circle distance.
package nearest

import (
	"context"
	"fmt"
	"math"

	"github.com/mohammed-shakir/h3-facility-locator/internal/core/model"
	"github.com/mohammed-shakir/h3-facility-locator/internal/spatial"
)

// DefaultMaxDistanceKm bounds a search when the caller gives no limit.
const DefaultMaxDistanceKm = 50.0

// Store fetches facilities whose index cell is one of cells. It must not
// filter by distance.
type Store interface {
	FacilitiesInCells(ctx context.Context, cells []spatial.CellID) ([]model.Facility, error)
}

// Finder is satisfied by Searcher and by its instrumented wrapper.
type Finder interface {
	Nearest(ctx context.Context, origin spatial.Coordinate, opts Options) (Result, error)
}

type Options struct {
	// MaxDistanceKm of 0 means DefaultMaxDistanceKm.
	MaxDistanceKm float64
	// Rings overrides the ring count derived from MaxDistanceKm. 0 derives.
	Rings int
}

type Result struct {
	Match         *model.NearestMatch
	OriginCell    spatial.CellID
	Rings         int
	RingCells     int
	Candidates    int
	MaxDistanceKm float64
	// RingRadiusKm is the nominal physical radius the ring covers.
	RingRadiusKm float64
	// Truncated is set when RingRadiusKm is below MaxDistanceKm, i.e. a
	// facility within the distance bound may lie outside the ring.
	Truncated bool
}

func (r Result) Found() bool { return r.Match != nil }

type Searcher struct {
	store Store
}

func New(store Store) *Searcher {
	return &Searcher{store: store}
}

var _ Finder = (*Searcher)(nil)

// Nearest returns the facility closest to origin within the distance bound.
// A Result without Match and a nil error means no facility qualified.
// Among candidates at exactly the same distance the first one returned by
// the store wins.
func (s *Searcher) Nearest(ctx context.Context, origin spatial.Coordinate, opts Options) (Result, error) {
	if err := origin.Validate(); err != nil {
		return Result{}, err
	}
	maxKm, err := resolveMax(opts.MaxDistanceKm)
	if err != nil {
		return Result{}, err
	}
	if opts.Rings < 0 {
		return Result{}, fmt.Errorf("%w: rings=%d must be >= 0", spatial.ErrInvalidRingSize, opts.Rings)
	}

	const res = spatial.IndexResolution
	cell, err := spatial.ToCell(origin, res)
	if err != nil {
		return Result{}, err
	}

	k := opts.Rings
	if k == 0 {
		if k, err = spatial.RingsForDistance(maxKm, res); err != nil {
			return Result{}, err
		}
	}
	radius, err := spatial.RingRadiusKm(k, res)
	if err != nil {
		return Result{}, err
	}

	out := Result{
		OriginCell:    cell,
		Rings:         k,
		MaxDistanceKm: maxKm,
		RingRadiusKm:  radius,
		Truncated:     radius < maxKm,
	}

	ring, err := spatial.Ring(cell, k)
	if err != nil {
		return Result{}, err
	}
	out.RingCells = ring.Len()
	if ring.Len() == 0 {
		return out, nil
	}

	candidates, err := s.store.FacilitiesInCells(ctx, ring.Cells())
	if err != nil {
		return Result{}, fmt.Errorf("facilities in cells: %w", err)
	}
	out.Candidates = len(candidates)

	var best *model.NearestMatch
	for i := range candidates {
		d := spatial.DistanceKm(origin, candidates[i].Location)
		if d > maxKm {
			continue
		}
		if best == nil || d < best.DistanceKm {
			best = &model.NearestMatch{Facility: candidates[i], DistanceKm: d}
		}
	}
	out.Match = best
	return out, nil
}

func resolveMax(km float64) (float64, error) {
	switch {
	case math.IsNaN(km) || math.IsInf(km, 0) || km < 0:
		return 0, fmt.Errorf("%w: max distance %v km must be finite and >= 0", spatial.ErrInvalidDistance, km)
	case km == 0:
		return DefaultMaxDistanceKm, nil
	default:
		return km, nil
	}
}
