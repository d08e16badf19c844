package rtc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }

func TestMarginKmToDeg(t *testing.T) {
	assert.Equal(t, 0.009, round3(MarginKmToDeg(1)))
	assert.Equal(t, 0.0, round3(MarginKmToDeg(0)))
	assert.Equal(t, -0.009, round3(MarginKmToDeg(-1)))
}

func TestMarginKmToLonDeg(t *testing.T) {
	assert.Equal(t, 0.009, round3(MarginKmToLonDeg(1, 0)))
	assert.Equal(t, 0.013, round3(MarginKmToLonDeg(1, 45)))
	assert.Equal(t, 0.013, round3(MarginKmToLonDeg(1, -45)))
	assert.Equal(t, 0.0, round3(MarginKmToLonDeg(0, 0)))
	assert.Equal(t, -0.009, round3(MarginKmToLonDeg(-1, 0)))
}

func TestPolygonFromBounds(t *testing.T) {
	b := PolygonFromBounds(Bounds{XMin: -1, YMin: -1, XMax: 0, YMax: 0}).Bounds()
	assert.Equal(t, -1.45, round2(b.XMin))
	assert.Equal(t, -1.45, round2(b.YMin))
	assert.Equal(t, 0.45, round2(b.XMax))
	assert.Equal(t, 0.45, round2(b.YMax))

	// straddling the antimeridian in unwrapped coordinates
	b = PolygonFromBounds(Bounds{XMin: 180, YMin: -1, XMax: 181, YMax: 0}).Bounds()
	assert.Equal(t, 179.55, round2(b.XMin))
	assert.Equal(t, 181.45, round2(b.XMax))
}

func TestPolygonFromBoundsClampsLatitude(t *testing.T) {
	b := PolygonFromBounds(Bounds{XMin: 0, YMin: 89.9, XMax: 1, YMax: 89.95}).Bounds()
	assert.Equal(t, 90.0, b.YMax)
}

func TestPolygonFromBoundsSwapsWideBox(t *testing.T) {
	// a raw bbox spanning more than 180° of longitude crosses the
	// antimeridian: its edges are swapped before buffering
	b := PolygonFromBounds(Bounds{XMin: -179, YMin: -1, XMax: 179, YMax: 0}).Bounds()
	assert.Greater(t, b.XMax, 179.0)
	assert.Less(t, round2(b.XMax-b.XMin), 180.0)
}

func TestSplitAntimeridianNoCrossing(t *testing.T) {
	box := Box(Bounds{XMin: -1, YMin: -1, XMax: 0, YMax: 0})
	polys := SplitAntimeridian(box)
	require.Len(t, polys, 1)
	assert.Equal(t, box, polys[0])
}

func TestSplitAntimeridianCrossing(t *testing.T) {
	polys := SplitAntimeridian(Box(Bounds{XMin: 179, YMin: -1, XMax: 181, YMax: 0}))
	require.Len(t, polys, 2)
	assert.Equal(t, Bounds{XMin: -180, YMin: -1, XMax: -179, YMax: 0}, polys[0].Bounds())
	assert.Equal(t, Bounds{XMin: 179, YMin: -1, XMax: 180, YMax: 0}, polys[1].Bounds())
}

func TestSplitAntimeridianWrappedInput(t *testing.T) {
	// same region expressed with wrapped longitudes: bounds span > 180
	polys := SplitAntimeridian(Polygon{
		{179, -1}, {-179, -1}, {-179, 0}, {179, 0},
	})
	require.Len(t, polys, 2)
	assert.Equal(t, Bounds{XMin: -180, YMin: -1, XMax: -179, YMax: 0}, polys[0].Bounds())
	assert.Equal(t, Bounds{XMin: 179, YMin: -1, XMax: 180, YMax: 0}, polys[1].Bounds())
}

func TestSplitAntimeridianIdempotent(t *testing.T) {
	polys := SplitAntimeridian(Box(Bounds{XMin: 179, YMin: -1, XMax: 181, YMax: 0}))
	require.Len(t, polys, 2)
	for _, p := range polys {
		again := SplitAntimeridian(p)
		require.Len(t, again, 1)
		assert.Equal(t, p.Bounds(), again[0].Bounds())
	}
}

func TestSplitAntimeridianTouching(t *testing.T) {
	// a polygon ending exactly at 180 yields a single output
	polys := SplitAntimeridian(Box(Bounds{XMin: 179, YMin: -1, XMax: 180, YMax: 0}))
	require.Len(t, polys, 1)
	assert.Equal(t, Bounds{XMin: 179, YMin: -1, XMax: 180, YMax: 0}, polys[0].Bounds())
}

func TestPolygonArea(t *testing.T) {
	assert.Equal(t, 1.0, Box(Bounds{XMin: 0, YMin: 0, XMax: 1, YMax: 1}).Area())
	assert.Equal(t, 0.0, Polygon{{0, 0}, {1, 0}}.Area())
}
