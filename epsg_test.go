package rtc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPointEPSG(t *testing.T) {
	testfunc := func(lat, lon float64, expected int) {
		t.Helper()
		epsg, err := PointEPSG(lat, lon)
		assert.NoError(t, err)
		assert.Equal(t, expected, epsg)
	}
	type tc struct {
		lat, lon float64
		epsg     int
	}
	cases := []tc{
		{80, 10, 3413},
		{75, -120, 3413},
		{-80, 10, 3031},
		{-75, -120, 3031},
		{40, -105, 32613},
		{-33.9, 151.2, 32756},
		{10, 3, 32631},
		{-10, 3, 32731},
		// wrapped longitudes
		{10, 190, 32602},
		{10, -190, 32659},
		{10, 363, 32631},
		// half-to-even tie-break at zone boundaries
		{10, -174, 32601},
		{10, -162, 32603},
		{-10, -174, 32701},
	}
	for _, c := range cases {
		testfunc(c.lat, c.lon, c.epsg)
	}
}

func TestPointEPSGEquator(t *testing.T) {
	_, err := PointEPSG(0, 42)
	var ambig ErrAmbiguousHemisphere
	assert.ErrorAs(t, err, &ambig)
	assert.Equal(t, 42.0, ambig.Lon)
}

func TestWrapLongitude(t *testing.T) {
	assert.Equal(t, -170.0, wrapLongitude(190))
	assert.Equal(t, 170.0, wrapLongitude(-190))
	assert.Equal(t, -180.0, wrapLongitude(180))
	assert.Equal(t, 0.0, wrapLongitude(360))
	assert.Equal(t, 42.0, wrapLongitude(42))
}
