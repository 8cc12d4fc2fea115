package nearest

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-shakir/h3-facility-locator/internal/core/model"
	"github.com/mohammed-shakir/h3-facility-locator/internal/hotness/expdecay"
	"github.com/mohammed-shakir/h3-facility-locator/internal/spatial"
)

var origin = spatial.Coordinate{Lat: 41.0, Lng: 29.0}

type sliceStore struct {
	facs      []model.Facility
	err       error
	calls     int
	lastCells int
}

func (s *sliceStore) FacilitiesInCells(_ context.Context, cells []spatial.CellID) ([]model.Facility, error) {
	s.calls++
	s.lastCells = len(cells)
	if s.err != nil {
		return nil, s.err
	}
	in := make(map[spatial.CellID]struct{}, len(cells))
	for _, c := range cells {
		in[c] = struct{}{}
	}
	var out []model.Facility
	for _, f := range s.facs {
		if _, ok := in[f.H3Index]; ok {
			out = append(out, f)
		}
	}
	return out, nil
}

// northOf places a facility km kilometres due north of origin; on a
// meridian the haversine distance is exactly the arc length.
func northOf(t *testing.T, id string, km float64) model.Facility {
	t.Helper()
	lat := origin.Lat + km/spatial.EarthRadiusKm*180/math.Pi
	return facilityAt(t, id, lat, origin.Lng)
}

func facilityAt(t *testing.T, id string, lat, lng float64) model.Facility {
	t.Helper()
	f, err := model.NewFacility(model.FacilityInput{
		Name: id, Code: id, Country: "TR", City: "Istanbul",
		Latitude: lat, Longitude: lng, FacilityType: "container",
	})
	require.NoError(t, err)
	f.ID = id
	return f
}

func TestNearest_PicksClosestWithinBound(t *testing.T) {
	st := &sliceStore{facs: []model.Facility{northOf(t, "far", 30), northOf(t, "near", 10)}}

	res, err := New(st).Nearest(context.Background(), origin, Options{MaxDistanceKm: 50})
	require.NoError(t, err)
	require.True(t, res.Found())
	assert.Equal(t, "near", res.Match.Facility.ID)
	assert.InEpsilon(t, 10.0, res.Match.DistanceKm, 0.005)
	assert.Equal(t, 2, res.Candidates)
	assert.False(t, res.Truncated)
	assert.Equal(t, 1, st.calls)
}

func TestNearest_NoneWhenAllBeyondBound(t *testing.T) {
	st := &sliceStore{facs: []model.Facility{northOf(t, "a", 60), northOf(t, "b", 80)}}

	res, err := New(st).Nearest(context.Background(), origin, Options{MaxDistanceKm: 50})
	require.NoError(t, err)
	assert.False(t, res.Found())
	assert.Nil(t, res.Match)
}

func TestNearest_IdenticalPointIsZeroAndFirstTieWins(t *testing.T) {
	st := &sliceStore{facs: []model.Facility{
		facilityAt(t, "first", 41.0, 29.0),
		facilityAt(t, "second", 41.0, 29.0),
	}}

	res, err := New(st).Nearest(context.Background(), origin, Options{})
	require.NoError(t, err)
	require.True(t, res.Found())
	assert.Zero(t, res.Match.DistanceKm)
	assert.Equal(t, "first", res.Match.Facility.ID)
}

func TestNearest_DefaultsToFiftyKm(t *testing.T) {
	st := &sliceStore{facs: []model.Facility{northOf(t, "edge", 49)}}

	res, err := New(st).Nearest(context.Background(), origin, Options{})
	require.NoError(t, err)
	require.True(t, res.Found())
	assert.Equal(t, DefaultMaxDistanceKm, res.MaxDistanceKm)
	assert.Equal(t, 41, res.Rings)
	assert.Equal(t, spatial.MaxRingCells(41), res.RingCells)
	assert.Equal(t, res.RingCells, st.lastCells)
}

func TestNearest_ExplicitSmallRingMissesReachableFacility(t *testing.T) {
	st := &sliceStore{facs: []model.Facility{northOf(t, "ten", 10)}}
	s := New(st)

	short, err := s.Nearest(context.Background(), origin, Options{MaxDistanceKm: 50, Rings: 1})
	require.NoError(t, err)
	assert.False(t, short.Found(), "a 1-ring search cannot reach 10 km at res 7")
	assert.True(t, short.Truncated)
	assert.Less(t, short.RingRadiusKm, short.MaxDistanceKm)

	derived, err := s.Nearest(context.Background(), origin, Options{MaxDistanceKm: 50})
	require.NoError(t, err)
	require.True(t, derived.Found())
	assert.False(t, derived.Truncated)
	assert.Equal(t, "ten", derived.Match.Facility.ID)
}

func TestNearest_ValidationErrors(t *testing.T) {
	st := &sliceStore{}
	s := New(st)
	ctx := context.Background()

	_, err := s.Nearest(ctx, spatial.Coordinate{Lat: 91, Lng: 0}, Options{})
	assert.ErrorIs(t, err, spatial.ErrInvalidCoordinate)

	for _, km := range []float64{-1, math.NaN(), math.Inf(1)} {
		_, err = s.Nearest(ctx, origin, Options{MaxDistanceKm: km})
		assert.ErrorIs(t, err, spatial.ErrInvalidDistance, "km=%v", km)
	}

	_, err = s.Nearest(ctx, origin, Options{Rings: -2})
	assert.ErrorIs(t, err, spatial.ErrInvalidRingSize)

	assert.Zero(t, st.calls, "validation failures must not reach the store")
}

func TestNearest_StoreErrorIsWrapped(t *testing.T) {
	boom := errors.New("db down")
	_, err := New(&sliceStore{err: boom}).Nearest(context.Background(), origin, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.False(t, spatial.IsValidation(err))
}

func TestInstrumented_TracksOriginCellAndLogs(t *testing.T) {
	var buf bytes.Buffer
	zl := zerolog.New(&buf).Level(zerolog.DebugLevel)
	hot := expdecay.New(time.Minute)

	st := &sliceStore{facs: []model.Facility{northOf(t, "near", 10)}}
	in := NewInstrumented(New(st), &zl, hot)

	res, err := in.Nearest(context.Background(), origin, Options{MaxDistanceKm: 50})
	require.NoError(t, err)
	require.True(t, res.Found())

	assert.InDelta(t, 1.0, hot.Score(res.OriginCell.String()), 1e-3)
	assert.Contains(t, buf.String(), `"origin_cell":"`+res.OriginCell.String()+`"`)
	assert.Contains(t, buf.String(), `"facility_id":"near"`)

	buf.Reset()
	_, err = in.Nearest(context.Background(), origin, Options{MaxDistanceKm: 50, Rings: 1})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "ring does not cover the requested distance")
}

func TestInstrumented_PassesErrorsThrough(t *testing.T) {
	in := NewInstrumented(New(&sliceStore{}), nil, nil)
	_, err := in.Nearest(context.Background(), spatial.Coordinate{Lat: math.NaN()}, Options{})
	assert.ErrorIs(t, err, spatial.ErrInvalidCoordinate)
}
