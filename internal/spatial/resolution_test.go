package spatial

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingsForDistance_KnownValues(t *testing.T) {
	cases := []struct {
		km   float64
		res  int
		want int
	}{
		{0, 7, 1},
		{0.1, 7, 1},
		{1.22, 7, 1},
		{1.23, 7, 2},
		{50, 7, 41},
		{50, 0, 1},
		{3.5, 9, 21},
		{1, 15, 1962},
	}
	for _, tc := range cases {
		got, err := RingsForDistance(tc.km, tc.res)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "km=%v res=%d", tc.km, tc.res)
	}
}

func TestRingsForDistance_MonotonicAndAtLeastOne(t *testing.T) {
	for res := MinResolution; res <= MaxResolution; res++ {
		prev := 0
		for km := 0.0; km <= 200; km += 0.37 {
			k, err := RingsForDistance(km, res)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, k, 1)
			assert.GreaterOrEqual(t, k, prev, "res=%d km=%v", res, km)
			prev = k
		}
	}
}

func TestRingsForDistance_Errors(t *testing.T) {
	_, err := RingsForDistance(10, 16)
	assert.ErrorIs(t, err, ErrInvalidResolution)
	_, err = RingsForDistance(10, -1)
	assert.ErrorIs(t, err, ErrInvalidResolution)

	for _, d := range []float64{-1, math.NaN(), math.Inf(1)} {
		_, err = RingsForDistance(d, 7)
		assert.ErrorIs(t, err, ErrInvalidDistance, "d=%v", d)
	}
}

func TestRingRadiusKm_CoversRequestedDistance(t *testing.T) {
	for res := MinResolution; res <= MaxResolution; res++ {
		for _, km := range []float64{0.5, 5, 50, 500} {
			k, err := RingsForDistance(km, res)
			require.NoError(t, err)
			r, err := RingRadiusKm(k, res)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, r, km)
		}
	}
}

func TestResolutionTable_Ordered(t *testing.T) {
	all := Resolutions()
	require.Len(t, all, MaxResolution+1)
	for i := 1; i < len(all); i++ {
		assert.Equal(t, i, all[i].Resolution)
		assert.Less(t, all[i].AvgEdgeKm, all[i-1].AvgEdgeKm)
		assert.Less(t, all[i].AvgAreaKm2, all[i-1].AvgAreaKm2)
		assert.NotEmpty(t, all[i].Description)
	}
	assert.InDelta(t, 1107.0, all[0].AvgEdgeKm, 1)
	assert.InDelta(t, 0.0005, all[15].AvgEdgeKm, 0.00001)

	_, err := Info(16)
	assert.ErrorIs(t, err, ErrInvalidResolution)
}
