package rtc

import (
	"context"
	"fmt"
	"math"
	"path/filepath"

	"github.com/airbusgeo/godal"
)

// Layover/shadow mask codes, matching the engine's topo output.
const (
	maskNotMasked        = 0
	maskShadow           = 1
	maskLayover          = 2
	maskLayoverAndShadow = 3
	maskFillValue        = 255
)

// MaskRequest bundles the inputs for layover/shadow mask computation.
type MaskRequest struct {
	Burst      *Burst
	Geogrid    Geogrid
	DEMPath    string
	OutputPath string
	ScratchDir string

	// DilationSize > 1 grows shadow regions by a square window of that
	// size before geocoding. Layover pixels are never dilated.
	DilationSize int

	ThresholdRdr2Geo float64
	NumIterRdr2Geo   int
	ExtraIterRdr2Geo int
	LinesPerBlock    int
	ThresholdGeo2Rdr float64
	NumIterGeo2Rdr   int

	ValidSampleSpans [][2]int
	SingleBlock      bool
}

// ComputeLayoverShadowMask computes the burst's layover/shadow mask in
// radar coordinates, optionally dilates its shadow regions, writes the
// slant-range mask under the scratch directory and geocodes it to
// OutputPath with nearest-neighbour interpolation. It returns the
// slant-range mask path so the caller can feed it back into geocoding and
// schedule its cleanup.
func ComputeLayoverShadowMask(ctx context.Context, eng Engine, req MaskRequest) (string, error) {
	res, err := eng.Topo(ctx, TopoRequest{
		Grid:              req.Burst.RadarGrid,
		Orbit:             req.Burst.Orbit,
		DEMPath:           req.DEMPath,
		Threshold:         req.ThresholdRdr2Geo,
		NumIter:           req.NumIterRdr2Geo,
		ExtraIter:         req.ExtraIterRdr2Geo,
		LinesPerBlock:     req.LinesPerBlock,
		WantLayoverShadow: true,
	})
	if err != nil {
		return "", fmt.Errorf("topo layover/shadow: %w", err)
	}
	mask := res.LayoverShadow
	if req.DilationSize > 1 {
		mask = DilateShadowMask(mask, req.DilationSize)
	}

	slantPath := filepath.Join(req.ScratchDir, "layover_shadow_mask_slant_range.tif")
	if err := writeSlantMask(slantPath, mask, req.Burst.RadarGrid); err != nil {
		return "", err
	}

	err = eng.Geocode(ctx, GeocodeRequest{
		Grid:             req.Burst.RadarGrid,
		Orbit:            req.Burst.Orbit,
		Geogrid:          req.Geogrid,
		DEMPath:          req.DEMPath,
		InputPath:        slantPath,
		OutputPath:       req.OutputPath,
		OutputMode:       OutputModeInterp,
		DataInterpolator: "NEAREST",
		Threshold:        req.ThresholdGeo2Rdr,
		NumIter:          req.NumIterGeo2Rdr,
		ValidSampleSpans: req.ValidSampleSpans,
		SingleBlock:      req.SingleBlock,
	})
	if err != nil {
		return "", fmt.Errorf("geocode layover/shadow mask: %w", err)
	}
	return slantPath, nil
}

// DilateShadowMask grows shadow regions with a size×size maximum filter.
// Layover pixels (code 2) are taken out before dilation and restored
// afterwards, so only shadow (1) and layover-and-shadow (3) spread.
func DilateShadowMask(mask [][]uint8, size int) [][]uint8 {
	height := len(mask)
	if height == 0 {
		return mask
	}
	width := len(mask[0])

	// A size-n window spans floor((n-1)/2) before and n/2 after the
	// center pixel.
	lo, hi := (size-1)/2, size/2

	stripped := make([][]uint8, height)
	for i, row := range mask {
		srow := make([]uint8, width)
		for j, v := range row {
			if v != maskLayover {
				srow[j] = v
			}
		}
		stripped[i] = srow
	}

	out := make([][]uint8, height)
	for i := 0; i < height; i++ {
		orow := make([]uint8, width)
		for j := 0; j < width; j++ {
			if mask[i][j] == maskLayover {
				orow[j] = maskLayover
				continue
			}
			var max uint8
			for di := -lo; di <= hi; di++ {
				y := i + di
				if y < 0 || y >= height {
					continue
				}
				for dj := -lo; dj <= hi; dj++ {
					x := j + dj
					if x < 0 || x >= width {
						continue
					}
					if v := stripped[y][x]; v > max {
						max = v
					}
				}
			}
			orow[j] = max
		}
		out[i] = orow
	}
	return out
}

func writeSlantMask(path string, mask [][]uint8, grid RadarGrid) error {
	ds, err := godal.Create(godal.GTiff, path, 1, godal.Byte, grid.Width, grid.Length)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer ds.Close()
	flat := make([]uint8, 0, grid.Width*grid.Length)
	for _, row := range mask {
		flat = append(flat, row...)
	}
	return writeBand(ds.Bands()[0], flat, grid.Width, grid.Length)
}

// SetMaskFillValueAndColorTable marks mask pixels as nodata wherever the
// reference raster is invalid and the mask reports nothing, then attaches
// the standard mask palette. The reference is the geocoded burst raster:
// its NaN samples are the pixels geocoding never reached.
func SetMaskFillValueAndColorTable(maskPath, referencePath string) error {
	refDS, err := godal.Open(referencePath, godal.RasterOnly())
	if err != nil {
		return fmt.Errorf("open reference %s: %w", referencePath, err)
	}
	defer refDS.Close()

	// nodata, palette and fill pixels are written back in place
	maskDS, err := godal.Open(maskPath, godal.Update())
	if err != nil {
		return fmt.Errorf("open mask %s: %w", maskPath, err)
	}
	defer maskDS.Close()

	st := maskDS.Structure()
	width, height := st.SizeX, st.SizeY

	ref, err := readBand[float32](refDS.Bands()[0], width, height)
	if err != nil {
		return fmt.Errorf("reference %s: %w", referencePath, err)
	}
	maskBand := maskDS.Bands()[0]
	mask, err := readBand[uint8](maskBand, width, height)
	if err != nil {
		return fmt.Errorf("mask %s: %w", maskPath, err)
	}

	applyMaskFill(mask, ref)

	if err := maskBand.SetNoData(maskFillValue); err != nil {
		return fmt.Errorf("set mask nodata: %w", err)
	}
	if err := maskBand.SetColorTable(maskColorTable()); err != nil {
		return fmt.Errorf("set mask color table: %w", err)
	}
	if err := maskBand.SetColorInterp(godal.CIPalette); err != nil {
		return fmt.Errorf("set mask color interpretation: %w", err)
	}
	return writeBand(maskBand, mask, width, height)
}

// applyMaskFill replaces unmasked pixels that the reference never reached
// with the fill value, in place.
func applyMaskFill(mask []uint8, ref []float32) {
	for i, v := range mask {
		if v == maskNotMasked && math.IsNaN(float64(ref[i])) {
			mask[i] = maskFillValue
		}
	}
}

func maskColorTable() godal.ColorTable {
	entries := make([][4]int16, 256)
	entries[maskNotMasked] = [4]int16{175, 175, 175, 255}
	entries[maskShadow] = [4]int16{64, 64, 64, 255}
	entries[maskLayover] = [4]int16{255, 255, 255, 255}
	entries[maskLayoverAndShadow] = [4]int16{0, 255, 255, 255}
	entries[maskFillValue] = [4]int16{0, 0, 0, 0}
	return godal.ColorTable{
		PaletteInterp: godal.RGBPalette,
		Entries:       entries,
	}
}
