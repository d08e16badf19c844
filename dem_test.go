package rtc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var demExtentGlobal = Bounds{XMin: -180, YMin: -90, XMax: 180, YMax: 90}

func TestCropWindowSnapsOutward(t *testing.T) {
	want := Bounds{XMin: -10.3, YMin: -5.2, XMax: 10.4, YMax: 5.1}
	window, retried, err := cropWindow(want, demExtentGlobal, 0.5, -0.5)
	require.NoError(t, err)
	assert.False(t, retried)

	// X window contains the request; Y rounds with the signed
	// resolution, so its edges stay within one pixel of the request
	assert.LessOrEqual(t, window.XMin, want.XMin)
	assert.GreaterOrEqual(t, window.XMax, want.XMax)
	assert.InDelta(t, want.YMin, window.YMin, 0.5)
	assert.InDelta(t, want.YMax, window.YMax, 0.5)

	// edges are on the DEM lattice
	for _, v := range []float64{window.XMin, window.XMax} {
		assert.Equal(t, 0.0, math.Mod(v-demExtentGlobal.XMin, 0.5))
	}
	for _, v := range []float64{window.YMin, window.YMax} {
		assert.Equal(t, 0.0, math.Mod(v-demExtentGlobal.YMax, 0.5))
	}
	assert.Equal(t, -10.5, window.XMin)
	assert.Equal(t, 10.5, window.XMax)
	assert.Equal(t, -5.0, window.YMin)
	assert.Equal(t, 5.0, window.YMax)
}

func TestCropWindowClampsToExtent(t *testing.T) {
	want := Bounds{XMin: 175, YMin: 85, XMax: 200, YMax: 95}
	window, retried, err := cropWindow(want, demExtentGlobal, 0.5, -0.5)
	require.NoError(t, err)
	assert.False(t, retried)
	assert.Equal(t, 180.0, window.XMax)
	assert.Equal(t, 90.0, window.YMax)
	assert.Equal(t, 175.0, window.XMin)
}

func TestCropWindowDegenerateRetriesRaw(t *testing.T) {
	// entirely east of the DEM: clamping collapses the window, so the
	// raw bounds come back for a best-effort crop
	want := Bounds{XMin: 200, YMin: 0, XMax: 210, YMax: 10}
	window, retried, err := cropWindow(want, demExtentGlobal, 0.5, -0.5)
	require.NoError(t, err)
	assert.True(t, retried)
	assert.Equal(t, want, window)
}

func TestCropWindowDegenerateRaw(t *testing.T) {
	want := Bounds{XMin: 210, YMin: 0, XMax: 200, YMax: 10}
	_, _, err := cropWindow(want, demExtentGlobal, 0.5, -0.5)
	var degenerate ErrDegenerateCropWindow
	assert.ErrorAs(t, err, &degenerate)
}

func TestSnapCropCoordAnchorsToOrigin(t *testing.T) {
	// origin-anchored snapping differs from plain multiples when the
	// origin is off-lattice
	origin := -180.0 + 0.0001
	snapped := snapCropCoord(3.0, 0.5, origin, math.Floor)
	assert.Equal(t, 0.0, math.Mod(snapped-origin, 0.5))
	assert.LessOrEqual(t, snapped, 3.0)

	// negative resolution inverts the rounding direction
	assert.Equal(t, 5.5, snapCropCoord(5.1, -0.5, 90, math.Floor))
	assert.Equal(t, 5.0, snapCropCoord(5.1, -0.5, 90, math.Ceil))
}

func TestTileStems(t *testing.T) {
	assert.Equal(t,
		[]string{"N41E002", "N41E003", "N42E002", "N42E003"},
		tileStems(Bounds{XMin: 2.3, YMin: 41.2, XMax: 3.9, YMax: 42.8}))

	assert.Equal(t,
		[]string{"S02W078", "S02W077", "S01W078", "S01W077"},
		tileStems(Bounds{XMin: -77.5, YMin: -1.5, XMax: -76.9, YMax: -0.2}))

	// integer edges do not spill into the next tile
	assert.Equal(t,
		[]string{"N37E041"},
		tileStems(Bounds{XMin: 41, YMin: 37, XMax: 42, YMax: 38}))
}

func TestTileStem(t *testing.T) {
	assert.Equal(t, "N37W005", tileStem(37, -5))
	assert.Equal(t, "S09E141", tileStem(-9, 141))
	assert.Equal(t, "N00E000", tileStem(0, 0))
}
