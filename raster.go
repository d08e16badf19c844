package rtc

import (
	"fmt"

	"github.com/airbusgeo/godal"
)

// PixelType constrains the sample types this module moves through GDAL
// bands.
type PixelType interface {
	~uint8 | ~int16 | ~int32 | ~float32 | ~float64
}

// readBand reads a full band into a row-major slice of the band's size.
func readBand[T PixelType](band godal.Band, width, height int) ([]T, error) {
	data := make([]T, width*height)
	if err := band.Read(0, 0, data, width, height); err != nil {
		return nil, fmt.Errorf("read band: %w", err)
	}
	return data, nil
}

// writeBand writes a full row-major slice back to a band.
func writeBand[T PixelType](band godal.Band, data []T, width, height int) error {
	if len(data) != width*height {
		return ErrInvariantViolation{msg: fmt.Sprintf("band write size mismatch: %d samples for %dx%d", len(data), width, height)}
	}
	if err := band.Write(0, 0, data, width, height); err != nil {
		return fmt.Errorf("write band: %w", err)
	}
	return nil
}

// promoteImagery copies a scratch raster to its permanent location as a
// tiled, compressed GeoTIFF.
func promoteImagery(src, dst string) error {
	ds, err := godal.Open(src, godal.RasterOnly())
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer ds.Close()
	out, err := ds.Translate(dst, nil,
		godal.CreationOption("TILED=YES", "COMPRESS=DEFLATE"),
		godal.GTiff)
	if err != nil {
		return fmt.Errorf("promote %s: %w", dst, err)
	}
	return out.Close()
}

// datasetExtent returns a dataset's bounding box and pixel resolutions
// from its geotransform. Assumes a north-up, unrotated grid.
func datasetExtent(ds *godal.Dataset) (b Bounds, xres, yres float64, err error) {
	gt, err := ds.GeoTransform()
	if err != nil {
		return Bounds{}, 0, 0, fmt.Errorf("get geotransform: %w", err)
	}
	if gt[2] != 0 || gt[4] != 0 {
		return Bounds{}, 0, 0, ErrInvariantViolation{msg: "rotated or skewed raster not supported"}
	}
	st := ds.Structure()
	xres, yres = gt[1], gt[5]
	b = Bounds{
		XMin: gt[0],
		YMax: gt[3],
		XMax: gt[0] + float64(st.SizeX)*xres,
		YMin: gt[3] + float64(st.SizeY)*yres,
	}
	return b, xres, yres, nil
}
