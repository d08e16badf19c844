package rtc

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// RadarGrid describes a burst's radar coordinate grid.
type RadarGrid struct {
	Width, Length int
	Lookside      string // "left" or "right"
	Wavelength    float64
}

// StateVector is one orbit ephemeris sample, ECEF meters and meters/second.
type StateVector struct {
	Time     time.Time
	Position [3]float64
	Velocity [3]float64
}

// Orbit is the ephemeris covering a burst.
type Orbit struct {
	StateVectors []StateVector
}

// Mid returns the middle state vector.
func (o Orbit) Mid() StateVector {
	return o.StateVectors[len(o.StateVectors)/2]
}

// meanEarthRadius is the geometric mean radius of the WGS84 ellipsoid,
// used for the approximate azimuth step conversion.
const meanEarthRadius = 6371000.0

// azStepSeconds converts an along-track step from meters on the ground to
// seconds of azimuth time, using the platform's mid-orbit altitude and
// speed.
func azStepSeconds(o Orbit, azStepMeters float64) float64 {
	mid := o.Mid()
	return azStepMeters * norm3(mid.Position) / (norm3(mid.Velocity) * meanEarthRadius)
}

func norm3(v [3]float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

// Burst is a single processing unit: one polarization of one Sentinel-1
// burst, with the calibration and geometry metadata geocoding needs.
type Burst struct {
	ID           string
	Polarization string
	ProductID    string

	Center    Point // scene center, lon/lat
	RadarGrid RadarGrid
	Orbit     Orbit

	SensingStart time.Time

	// SLCPath points at the extracted burst SLC raster (complex samples).
	SLCPath string

	// ThermalNoiseLUT matches the SLC shape; nil when the annotation
	// carries no noise vectors.
	ThermalNoiseLUT [][]float64
	// BetaNaught is the absolute calibration constant.
	BetaNaught float64

	FirstValidSample, LastValidSample int
	FirstValidLine, LastValidLine     int
}

// ValidSampleSpans returns per-line [first, last+1) valid sample windows
// for sub-swath masking. Lines outside the valid line range get a zero
// span.
func (b *Burst) ValidSampleSpans() [][2]int {
	last := b.LastValidSample
	if b.RadarGrid.Width < last {
		last = b.RadarGrid.Width
	}
	spans := make([][2]int, b.RadarGrid.Length)
	for i := range spans {
		if i < b.FirstValidLine || i >= b.LastValidLine {
			continue
		}
		spans[i] = [2]int{b.FirstValidSample, last + 1}
	}
	return spans
}

// footprintBufferDeg pads the manifest footprint before taking its
// bounding box.
const footprintBufferDeg = 0.025

// GranuleFootprint extracts the buffered bounding box of a Sentinel-1 SAFE
// granule from its manifest. The granule may be a .zip archive or an
// unpacked .SAFE directory.
func GranuleFootprint(granulePath string) (Bounds, error) {
	var (
		r   io.ReadCloser
		err error
	)
	if strings.HasSuffix(granulePath, ".zip") {
		r, err = openZippedManifest(granulePath)
	} else {
		r, err = os.Open(filepath.Join(granulePath, "manifest.safe"))
	}
	if err != nil {
		return Bounds{}, fmt.Errorf("open manifest: %w", err)
	}
	defer r.Close()

	ring, err := parseFrameCoordinates(r)
	if err != nil {
		return Bounds{}, fmt.Errorf("parse manifest %s: %w", granulePath, err)
	}
	b := ring.Bounds()
	return Bounds{
		XMin: b.XMin - footprintBufferDeg,
		YMin: b.YMin - footprintBufferDeg,
		XMax: b.XMax + footprintBufferDeg,
		YMax: b.YMax + footprintBufferDeg,
	}, nil
}

type zipEntryReader struct {
	io.ReadCloser
	archive *zip.ReadCloser
}

func (z zipEntryReader) Close() error {
	err := z.ReadCloser.Close()
	if cerr := z.archive.Close(); err == nil {
		err = cerr
	}
	return err
}

func openZippedManifest(path string) (io.ReadCloser, error) {
	z, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	for _, f := range z.File {
		if strings.HasSuffix(f.Name, "manifest.safe") {
			rc, err := f.Open()
			if err != nil {
				z.Close()
				return nil, err
			}
			return zipEntryReader{ReadCloser: rc, archive: z}, nil
		}
	}
	z.Close()
	return nil, fmt.Errorf("%s: no manifest.safe entry", path)
}

// parseFrameCoordinates pulls the measurementFrameSet ring out of a SAFE
// manifest. The GML coordinates element holds space-separated "lat,lon"
// pairs.
func parseFrameCoordinates(r io.Reader) (Polygon, error) {
	dec := xml.NewDecoder(r)
	inFrameSet := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil, fmt.Errorf("no measurementFrameSet coordinates found")
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "metadataObject":
				inFrameSet = false
				for _, a := range t.Attr {
					if a.Name.Local == "ID" && a.Value == "measurementFrameSet" {
						inFrameSet = true
					}
				}
			case "coordinates":
				if !inFrameSet {
					continue
				}
				var text string
				if err := dec.DecodeElement(&text, &t); err != nil {
					return nil, err
				}
				return parseLatLonPairs(text)
			}
		}
	}
}

func parseLatLonPairs(s string) (Polygon, error) {
	var ring Polygon
	for _, pair := range strings.Fields(s) {
		latlon := strings.Split(pair, ",")
		if len(latlon) != 2 {
			return nil, fmt.Errorf("malformed coordinate pair %q", pair)
		}
		lat, err := strconv.ParseFloat(latlon[0], 64)
		if err != nil {
			return nil, fmt.Errorf("malformed latitude %q: %w", latlon[0], err)
		}
		lon, err := strconv.ParseFloat(latlon[1], 64)
		if err != nil {
			return nil, fmt.Errorf("malformed longitude %q: %w", latlon[1], err)
		}
		ring = append(ring, Point{X: lon, Y: lat})
	}
	if len(ring) < 3 {
		return nil, fmt.Errorf("degenerate footprint ring (%d points)", len(ring))
	}
	return ring, nil
}
