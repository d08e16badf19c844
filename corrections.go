package rtc

import (
	"context"
	"fmt"
	"math"

	"github.com/airbusgeo/godal"
)

// ApplySLCCorrections applies the burst's thermal noise and absolute
// radiometric calibration to its SLC and writes the corrected raster to
// outPath. The output holds backscatter power unless outputComplex is set,
// in which case the input phase is preserved and amplitudes are rescaled.
func ApplySLCCorrections(ctx context.Context, b *Burst, outPath string, outputComplex, thermal, absRad bool) error {
	ds, err := godal.Open(b.SLCPath, godal.RasterOnly())
	if err != nil {
		return fmt.Errorf("open SLC %s: %w", b.SLCPath, err)
	}
	defer ds.Close()

	st := ds.Structure()
	width, height := st.SizeX, st.SizeY
	slc := make([]complex64, width*height)
	if err := ds.Bands()[0].Read(0, 0, slc, width, height); err != nil {
		return fmt.Errorf("read SLC: %w", err)
	}

	var noise []float64
	if thermal {
		if b.ThermalNoiseLUT == nil {
			return ErrInvariantViolation{msg: "thermal correction requested but burst has no noise LUT"}
		}
		noise = make([]float64, 0, width*height)
		for _, row := range b.ThermalNoiseLUT {
			noise = append(noise, row...)
		}
		if len(noise) != width*height {
			return ErrInvariantViolation{msg: "noise LUT shape does not match SLC"}
		}
	}
	power := radiometricCorrect(slc, noise, b.BetaNaught, thermal, absRad)

	dtype := godal.Float32
	if outputComplex {
		dtype = godal.CFloat32
	}
	out, err := godal.Create(godal.GTiff, outPath, 1, dtype, width, height)
	if err != nil {
		return fmt.Errorf("create %s: %w", outPath, err)
	}
	defer out.Close()

	if outputComplex {
		rescaled := rescaleComplex(slc, power)
		if err := out.Bands()[0].Write(0, 0, rescaled, width, height); err != nil {
			return fmt.Errorf("write corrected SLC: %w", err)
		}
		return nil
	}
	f32 := make([]float32, len(power))
	for i, v := range power {
		f32[i] = float32(v)
	}
	return writeBand(out.Bands()[0], f32, width, height)
}

// radiometricCorrect converts complex SLC samples to backscatter power,
// optionally subtracting thermal noise (clipped at zero) and dividing by
// the squared beta-naught calibration constant.
func radiometricCorrect(slc []complex64, noise []float64, betaNaught float64, thermal, absRad bool) []float64 {
	power := make([]float64, len(slc))
	for i, z := range slc {
		re, im := float64(real(z)), float64(imag(z))
		p := re*re + im*im
		if thermal {
			p -= noise[i]
			if p < 0 {
				p = 0
			}
		}
		power[i] = p
	}
	if absRad {
		b2 := betaNaught * betaNaught
		for i := range power {
			power[i] /= b2
		}
	}
	return power
}

// rescaleComplex scales each SLC sample so its power matches the corrected
// value while keeping its phase. Samples whose scale factor is undefined
// are zeroed.
func rescaleComplex(slc []complex64, power []float64) []complex64 {
	out := make([]complex64, len(slc))
	for i, z := range slc {
		re, im := float64(real(z)), float64(imag(z))
		mag := math.Hypot(re, im)
		factor := math.Sqrt(power[i]) / mag
		if math.IsNaN(factor) || math.IsInf(factor, 0) {
			continue
		}
		out[i] = complex64(complex(re*factor, im*factor))
	}
	return out
}

// Static tropospheric delay model constants, after Breit et al. 2010,
// TerraSAR-X SAR Processing and Products, IEEE TGRS 48(2).
const (
	zenithPathDelay = 2.3
	referenceHeight = 6000.0
)

// tropoDelay is the static tropospheric slant-range delay in meters for a
// target at the given height observed at the given incidence angle.
func tropoDelay(heightM, incidenceDeg float64) float64 {
	return zenithPathDelay / math.Cos(incidenceDeg*math.Pi/180) * math.Exp(-heightM/referenceHeight)
}

// lutTopoThreshold is the rdr2geo convergence threshold for the coarse
// topo run backing the tropospheric LUT.
const lutTopoThreshold = 1.0e-8

// ComputeCorrectionLUT builds the geolocation correction lookup tables for
// a burst: the bistatic delay correction in azimuth and the static
// tropospheric delay correction in slant range. Either may come back nil
// when its flag is off; both nil means no correction was requested.
func ComputeCorrectionLUT(ctx context.Context, eng Engine, b *Burst, demPath string, rgStepMeters, azStepMeters float64, bistatic, tropo bool) (rgLUT, azLUT *LUT2D, err error) {
	if !bistatic && !tropo {
		return nil, nil, nil
	}

	azStepSec := azStepSeconds(b.Orbit, azStepMeters)
	delay, err := eng.BistaticDelay(ctx, b, rgStepMeters, azStepSec)
	if err != nil {
		return nil, nil, fmt.Errorf("bistatic delay: %w", err)
	}
	if bistatic {
		neg := delay.Negate()
		azLUT = &neg
	}
	if !tropo {
		return nil, azLUT, nil
	}

	// The tropospheric LUT shares the bistatic delay's grid, so topo runs
	// on a radar grid downsampled to the LUT posting.
	if len(delay.Data) == 0 {
		return nil, nil, ErrInvariantViolation{msg: "empty bistatic delay LUT"}
	}
	lutGrid := RadarGrid{
		Width:      len(delay.Data[0]),
		Length:     len(delay.Data),
		Lookside:   b.RadarGrid.Lookside,
		Wavelength: b.RadarGrid.Wavelength,
	}
	topoRes, err := eng.Topo(ctx, TopoRequest{
		Grid:          lutGrid,
		Orbit:         b.Orbit,
		DEMPath:       demPath,
		Threshold:     lutTopoThreshold,
		WantHeight:    true,
		WantIncidence: true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("topo for correction LUT: %w", err)
	}

	data := make([][]float64, lutGrid.Length)
	for i := range data {
		row := make([]float64, lutGrid.Width)
		for j := range row {
			row[j] = tropoDelay(topoRes.Height[i][j], topoRes.IncidenceDeg[i][j])
		}
		data[i] = row
	}
	rgLUT = &LUT2D{
		XStart:   delay.XStart,
		YStart:   delay.YStart,
		XSpacing: delay.XSpacing,
		YSpacing: delay.YSpacing,
		Data:     data,
	}
	return rgLUT, azLUT, nil
}
