package rtc

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRadiometricCorrect(t *testing.T) {
	slc := []complex64{1 + 1i, 2, 0}

	// thermal + absolute: (|z|²-noise)/β², clipped at zero
	got := radiometricCorrect(slc, []float64{1, 5, 1}, 2, true, true)
	assert.Equal(t, []float64{0.25, 0, 0}, got)

	// no corrections: plain power
	got = radiometricCorrect(slc, nil, 2, false, false)
	assert.Equal(t, []float64{2, 4, 0}, got)

	// absolute only
	got = radiometricCorrect(slc, nil, 2, false, true)
	assert.Equal(t, []float64{0.5, 1, 0}, got)
}

func TestRescaleComplexZeroesUndefined(t *testing.T) {
	// a zero sample yields a NaN scale factor and must come out zero
	out := rescaleComplex([]complex64{0, 2}, []float64{0, 1})
	assert.Equal(t, complex64(0), out[0])
	assert.InDelta(t, 1.0, float64(real(out[1])), 1e-6)
	assert.InDelta(t, 0.0, float64(imag(out[1])), 1e-6)
}

func TestTropoDelay(t *testing.T) {
	assert.InDelta(t, 2.3, tropoDelay(0, 0), 1e-12)
	assert.InDelta(t, 2.3/math.E, tropoDelay(6000, 0), 1e-12)
	assert.InDelta(t, 4.6, tropoDelay(0, 60), 1e-12)
}

func TestAzStepSeconds(t *testing.T) {
	orbit := Orbit{StateVectors: []StateVector{
		{Position: [3]float64{7e6, 0, 0}, Velocity: [3]float64{0, 7.5e3, 0}},
	}}
	got := azStepSeconds(orbit, 120)
	want := 120 * 7e6 / (7.5e3 * 6371000.0)
	assert.InDelta(t, want, got, 1e-12)
}

func TestLUT2DNegate(t *testing.T) {
	l := LUT2D{XStart: 1, YStart: 2, XSpacing: 3, YSpacing: 4,
		Data: [][]float64{{1, -2}, {0, 5}}}
	n := l.Negate()
	assert.Equal(t, [][]float64{{-1, 2}, {0, -5}}, n.Data)
	assert.Equal(t, l.XStart, n.XStart)
	// original untouched
	assert.Equal(t, [][]float64{{1, -2}, {0, 5}}, l.Data)
}

func TestComputeCorrectionLUTDisabled(t *testing.T) {
	eng := &fakeEngine{
		bistaticDelay: func(context.Context, *Burst, float64, float64) (LUT2D, error) {
			t.Fatal("engine must not be called with both corrections disabled")
			return LUT2D{}, nil
		},
	}
	rg, az, err := ComputeCorrectionLUT(context.Background(), eng, &Burst{}, "dem.vrt", 120, 120, false, false)
	assert.NoError(t, err)
	assert.Nil(t, rg)
	assert.Nil(t, az)
}

func testBurst() *Burst {
	return &Burst{
		ID: "t064_135518_iw1",
		Orbit: Orbit{StateVectors: []StateVector{
			{Position: [3]float64{7e6, 0, 0}, Velocity: [3]float64{0, 7.5e3, 0}},
		}},
		RadarGrid: RadarGrid{Width: 100, Length: 50, Lookside: "right", Wavelength: 0.0555},
	}
}

func TestComputeCorrectionLUTBistaticOnly(t *testing.T) {
	delay := LUT2D{XStart: 800e3, YStart: 0, XSpacing: 120, YSpacing: 0.018,
		Data: [][]float64{{1, 2}, {3, 4}}}
	var gotAzStep float64
	eng := &fakeEngine{
		bistaticDelay: func(_ context.Context, _ *Burst, _, azStepSeconds float64) (LUT2D, error) {
			gotAzStep = azStepSeconds
			return delay, nil
		},
		topo: func(context.Context, TopoRequest) (TopoResult, error) {
			t.Fatal("topo must not run without the tropospheric correction")
			return TopoResult{}, nil
		},
	}
	rg, az, err := ComputeCorrectionLUT(context.Background(), eng, testBurst(), "dem.vrt", 120, 120, true, false)
	require.NoError(t, err)
	assert.Nil(t, rg)
	require.NotNil(t, az)
	assert.Equal(t, [][]float64{{-1, -2}, {-3, -4}}, az.Data)
	assert.InDelta(t, azStepSeconds(testBurst().Orbit, 120), gotAzStep, 1e-15)
}

func TestComputeCorrectionLUTTropo(t *testing.T) {
	delay := LUT2D{XStart: 800e3, XSpacing: 120, YSpacing: 0.018,
		Data: [][]float64{{0, 0, 0}, {0, 0, 0}}}
	eng := &fakeEngine{
		bistaticDelay: func(context.Context, *Burst, float64, float64) (LUT2D, error) {
			return delay, nil
		},
		topo: func(_ context.Context, req TopoRequest) (TopoResult, error) {
			// the LUT grid matches the bistatic delay's shape
			assert.Equal(t, 3, req.Grid.Width)
			assert.Equal(t, 2, req.Grid.Length)
			assert.True(t, req.WantHeight)
			assert.True(t, req.WantIncidence)
			assert.False(t, req.WantLayoverShadow)
			return TopoResult{
				Height:       [][]float64{{0, 6000, 0}, {0, 0, 6000}},
				IncidenceDeg: [][]float64{{0, 0, 60}, {60, 0, 0}},
			}, nil
		},
	}
	rg, az, err := ComputeCorrectionLUT(context.Background(), eng, testBurst(), "dem.vrt", 120, 120, false, true)
	require.NoError(t, err)
	assert.Nil(t, az)
	require.NotNil(t, rg)
	assert.Equal(t, delay.XStart, rg.XStart)
	assert.Equal(t, delay.XSpacing, rg.XSpacing)
	assert.InDelta(t, 2.3, rg.Data[0][0], 1e-12)
	assert.InDelta(t, 2.3/math.E, rg.Data[0][1], 1e-12)
	assert.InDelta(t, 4.6, rg.Data[0][2], 1e-12)
	assert.InDelta(t, 4.6, rg.Data[1][0], 1e-12)
	assert.InDelta(t, 2.3/math.E, rg.Data[1][2], 1e-12)
}
