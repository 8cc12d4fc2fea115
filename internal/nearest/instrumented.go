package nearest

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/mohammed-shakir/h3-facility-locator/internal/core/observability"
	"github.com/mohammed-shakir/h3-facility-locator/internal/hotness"
	mylog "github.com/mohammed-shakir/h3-facility-locator/internal/logger"
	"github.com/mohammed-shakir/h3-facility-locator/internal/spatial"
)

// Instrumented wraps a Finder with metrics, debug logging and origin cell
// hotness tracking. The wrapped Finder stays free of side effects.
type Instrumented struct {
	inner Finder
	zl    *zerolog.Logger
	hot   hotness.Interface
}

var _ Finder = (*Instrumented)(nil)

// NewInstrumented returns the wrapper. zl and hot may be nil.
func NewInstrumented(inner Finder, zl *zerolog.Logger, hot hotness.Interface) *Instrumented {
	if zl == nil {
		nop := zerolog.Nop()
		zl = &nop
	}
	return &Instrumented{inner: inner, zl: zl, hot: hot}
}

func (i *Instrumented) Nearest(ctx context.Context, origin spatial.Coordinate, opts Options) (Result, error) {
	start := time.Now()
	if cell, err := spatial.ToCell(origin, spatial.IndexResolution); err == nil {
		ctx = hotness.WithOrigin(ctx, cell.String())
		if i.hot != nil {
			i.hot.Inc(cell.String())
		}
	}
	res, err := i.inner.Nearest(ctx, origin, opts)
	dur := time.Since(start)

	log := mylog.FromContext(mylog.WithComponent(ctx, "nearest"), i.zl)
	if err != nil {
		observability.ObserveNearest("error", dur.Seconds(), 0, 0)
		log.Debug().Err(err).Str("origin", origin.String()).Msg("nearest search failed")
		return res, err
	}

	outcome := "none"
	if res.Found() {
		outcome = "found"
	}
	observability.ObserveNearest(outcome, dur.Seconds(), res.RingCells, res.Candidates)

	ev := log.Debug().
		Str("origin", origin.String()).
		Str("origin_cell", res.OriginCell.String()).
		Int("rings", res.Rings).
		Int("ring_cells", res.RingCells).
		Int("candidates", res.Candidates).
		Float64("max_distance_km", res.MaxDistanceKm).
		Dur("took", dur)
	if res.Found() {
		ev = ev.Str("facility_id", res.Match.Facility.ID).Float64("distance_km", res.Match.DistanceKm)
	}
	ev.Msg("nearest search")

	if res.Truncated {
		log.Warn().
			Int("rings", res.Rings).
			Float64("ring_radius_km", res.RingRadiusKm).
			Float64("max_distance_km", res.MaxDistanceKm).
			Msg("ring does not cover the requested distance")
	}
	return res, nil
}
