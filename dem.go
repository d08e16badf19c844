package rtc

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/airbusgeo/godal"
	"github.com/cenkalti/backoff/v4"
	"github.com/tbonfort/gobs"
	"go.airbusds-geo.com/log"
)

// Stager stages DEM data covering a geographic footprint into a local
// raster at outPath.
type Stager interface {
	Stage(ctx context.Context, outPath string, footprint Bounds) error
}

// CropStager stages DEM data by cropping windows out of a single global
// mosaic, typically a VRT on object storage opened through a VSI handler.
type CropStager struct {
	// SourcePath is the global DEM mosaic.
	SourcePath string
	// GeographicSource enables the +360 longitude shift for crops west of
	// the antimeridian, so the assembled VRT spans a minimal longitude
	// range. Only meaningful for a mosaic in geographic coordinates.
	GeographicSource bool
	// TranslateSwitches are extra gdal_translate switches appended to
	// every crop.
	TranslateSwitches []string
}

// Stage crops one window per antimeridian sub-polygon of the buffered
// footprint and assembles the crops into a VRT at outPath.
func (s *CropStager) Stage(ctx context.Context, outPath string, footprint Bounds) error {
	polys := SplitAntimeridian(PolygonFromBounds(footprint))

	src, err := godal.Open(s.SourcePath, godal.RasterOnly())
	if err != nil {
		return fmt.Errorf("open DEM source %s: %w", s.SourcePath, err)
	}
	defer src.Close()

	demExtent, xres, yres, err := datasetExtent(src)
	if err != nil {
		return fmt.Errorf("DEM source %s: %w", s.SourcePath, err)
	}

	stem := strings.TrimSuffix(outPath, filepath.Ext(outPath))
	parts := make([]string, 0, len(polys))
	for idx, poly := range polys {
		b := poly.Bounds()
		part := fmt.Sprintf("%s_%d.tif", stem, idx)
		if err := s.crop(ctx, src, part, b, demExtent, xres, yres); err != nil {
			return fmt.Errorf("crop %d: %w", idx, err)
		}
		parts = append(parts, part)
	}

	vrt, err := godal.BuildVRT(outPath, parts, nil)
	if err != nil {
		return fmt.Errorf("build DEM VRT %s: %w", outPath, err)
	}
	return vrt.Close()
}

func (s *CropStager) crop(ctx context.Context, src *godal.Dataset, outPath string, want, demExtent Bounds, xres, yres float64) error {
	window, retried, err := cropWindow(want, demExtent, xres, yres)
	if err != nil {
		return err
	}
	if retried {
		log.Logger(ctx).Sugar().Warnf("crop window for %s degenerated after snapping, using raw bounds", outPath)
	}

	switches := append([]string{
		"-projwin",
		fmt.Sprintf("%.17g", window.XMin),
		fmt.Sprintf("%.17g", window.YMax),
		fmt.Sprintf("%.17g", window.XMax),
		fmt.Sprintf("%.17g", window.YMin),
	}, s.TranslateSwitches...)
	out, err := src.Translate(outPath, switches, godal.GTiff)
	if err != nil {
		return fmt.Errorf("translate to %s: %w", outPath, err)
	}

	if s.GeographicSource && want.XMin <= -180.0 {
		gt, err := out.GeoTransform()
		if err != nil {
			out.Close()
			return fmt.Errorf("get crop geotransform: %w", err)
		}
		gt[0] += 360.0
		if err := out.SetGeoTransform(gt); err != nil {
			out.Close()
			return fmt.Errorf("shift crop geotransform: %w", err)
		}
	}
	return out.Close()
}

// cropWindow snaps the wanted bounds outward onto the DEM's pixel lattice
// and clamps them to its extent. If snapping and clamping collapse the
// window, the raw bounds are used instead; raw bounds that are themselves
// empty yield ErrDegenerateCropWindow.
func cropWindow(want, dem Bounds, xres, yres float64) (Bounds, bool, error) {
	snapped := Bounds{
		XMin: snapCropCoord(want.XMin, xres, dem.XMin, math.Floor),
		XMax: snapCropCoord(want.XMax, xres, dem.XMin, math.Ceil),
		YMin: snapCropCoord(want.YMin, yres, dem.YMax, math.Floor),
		YMax: snapCropCoord(want.YMax, yres, dem.YMax, math.Ceil),
	}
	clamped := Bounds{
		XMin: math.Max(snapped.XMin, dem.XMin),
		XMax: math.Min(snapped.XMax, dem.XMax),
		YMin: math.Max(snapped.YMin, dem.YMin),
		YMax: math.Min(snapped.YMax, dem.YMax),
	}
	if clamped.XMax > clamped.XMin && clamped.YMax > clamped.YMin {
		return clamped, false, nil
	}
	if want.XMax > want.XMin && want.YMax > want.YMin {
		return want, true, nil
	}
	return Bounds{}, false, ErrDegenerateCropWindow{Window: clamped}
}

// snapCropCoord rounds a coordinate onto the pixel lattice anchored at
// origin. With a negative resolution the floor/ceil roles invert, matching
// the north-up Y axis.
func snapCropCoord(val, res, origin float64, round func(float64) float64) float64 {
	return round((val-origin)/res)*res + origin
}

// TileStager stages DEM data by fetching 1°×1° tiles over HTTP and
// mosaicking them into a VRT.
type TileStager struct {
	// URLTemplate yields a tile URL from its stem, e.g.
	// "https://example.com/dem/%s.tif" for stems like "N37E041".
	URLTemplate string
	// Client defaults to http.DefaultClient.
	Client *http.Client
	// Workers bounds concurrent downloads. Defaults to 4.
	Workers int
	// MaxTries bounds download attempts per tile. Defaults to 3.
	MaxTries int
}

func (s *TileStager) Stage(ctx context.Context, outPath string, footprint Bounds) error {
	polys := SplitAntimeridian(PolygonFromBounds(footprint))

	var stems []string
	seen := map[string]bool{}
	for _, poly := range polys {
		for _, stem := range tileStems(poly.Bounds()) {
			if !seen[stem] {
				seen[stem] = true
				stems = append(stems, stem)
			}
		}
	}
	log.Logger(ctx).Sugar().Infof("staging %d DEM tiles", len(stems))

	workers := s.Workers
	if workers <= 0 {
		workers = 4
	}
	dir := filepath.Dir(outPath)
	files := make([]string, len(stems))
	pool := gobs.NewPool(workers)
	batch := pool.Batch()
	for i, stem := range stems {
		i, stem := i, stem
		files[i] = filepath.Join(dir, stem+".tif")
		batch.Submit(func() error {
			return s.fetchTile(ctx, fmt.Sprintf(s.URLTemplate, stem), files[i])
		})
	}
	if err := batch.Wait(); err != nil {
		return fmt.Errorf("fetch DEM tiles: %w", err)
	}

	vrt, err := godal.BuildVRT(outPath, files, nil)
	if err != nil {
		return fmt.Errorf("build DEM VRT %s: %w", outPath, err)
	}
	return vrt.Close()
}

func (s *TileStager) fetchTile(ctx context.Context, url, dest string) error {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	maxTries := s.MaxTries
	if maxTries <= 0 {
		maxTries = 3
	}
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return backoff.Permanent(fmt.Errorf("tile not found: %s", url))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("fetch %s: status %s", url, resp.Status)
		}
		f, err := os.Create(dest)
		if err != nil {
			return backoff.Permanent(err)
		}
		if _, err := io.Copy(f, resp.Body); err != nil {
			f.Close()
			os.Remove(dest)
			return err
		}
		return f.Close()
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(maxTries-1)), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	return nil
}

// tileStems enumerates the 1°×1° tile names covering a bounding box,
// truncating toward negative infinity so e.g. lat 37.2 lies in tile N37.
func tileStems(b Bounds) []string {
	var stems []string
	for lat := int(math.Floor(b.YMin)); lat <= int(math.Ceil(b.YMax))-1; lat++ {
		for lon := int(math.Floor(b.XMin)); lon <= int(math.Ceil(b.XMax))-1; lon++ {
			stems = append(stems, tileStem(lat, lon))
		}
	}
	return stems
}

func tileStem(lat, lon int) string {
	ns, ew := "N", "E"
	if lat < 0 {
		ns = "S"
		lat = -lat
	}
	if lon < 0 {
		ew = "W"
		lon = -lon
	}
	return fmt.Sprintf("%s%02d%s%03d", ns, lat, ew, lon)
}
