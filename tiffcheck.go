package rtc

import (
	"fmt"
	"math"
	"os"

	"github.com/google/tiff"
)

// geoIFD is the subset of GeoTIFF tags needed to validate an output
// raster's structure against the geogrid it was produced on.
type geoIFD struct {
	ImageWidth         uint64    `tiff:"field,tag=256"`
	ImageLength        uint64    `tiff:"field,tag=257"`
	BitsPerSample      []uint16  `tiff:"field,tag=258"`
	SampleFormat       []uint16  `tiff:"field,tag=339"`
	Colormap           []uint16  `tiff:"field,tag=320"`
	ModelPixelScaleTag []float64 `tiff:"field,tag=33550"`
	ModelTiePointTag   []float64 `tiff:"field,tag=33922"`
	NoData             string    `tiff:"field,tag=42113"`
}

// VerifyGeoTIFF checks that a produced GeoTIFF structurally matches its
// geogrid: pixel counts, pixel scale and tie point. A mismatch means the
// geocoding stage wrote a raster on the wrong grid.
func VerifyGeoTIFF(path string, g Geogrid) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	tif, err := tiff.Parse(f, nil, nil)
	if err != nil {
		return fmt.Errorf("parse tiff: %w", err)
	}
	ifds := tif.IFDs()
	if len(ifds) == 0 {
		return fmt.Errorf("no image directory")
	}
	var ifd geoIFD
	if err := tiff.UnmarshalIFD(ifds[0], &ifd); err != nil {
		return fmt.Errorf("unmarshal ifd: %w", err)
	}

	if ifd.ImageWidth != uint64(g.Width) || ifd.ImageLength != uint64(g.Height) {
		return ErrInvariantViolation{msg: fmt.Sprintf(
			"raster is %dx%d, geogrid wants %dx%d",
			ifd.ImageWidth, ifd.ImageLength, g.Width, g.Height)}
	}
	if len(ifd.ModelPixelScaleTag) >= 2 {
		if !almostEqual(ifd.ModelPixelScaleTag[0], g.SpacingX) ||
			!almostEqual(ifd.ModelPixelScaleTag[1], -g.SpacingY) {
			return ErrInvariantViolation{msg: fmt.Sprintf(
				"pixel scale (%g, %g) does not match geogrid spacing (%g, %g)",
				ifd.ModelPixelScaleTag[0], ifd.ModelPixelScaleTag[1],
				g.SpacingX, -g.SpacingY)}
		}
	}
	if len(ifd.ModelTiePointTag) >= 5 {
		if !almostEqual(ifd.ModelTiePointTag[3], g.StartX) ||
			!almostEqual(ifd.ModelTiePointTag[4], g.StartY) {
			return ErrInvariantViolation{msg: fmt.Sprintf(
				"tie point (%g, %g) does not match geogrid origin (%g, %g)",
				ifd.ModelTiePointTag[3], ifd.ModelTiePointTag[4],
				g.StartX, g.StartY)}
		}
	}
	return nil
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}
