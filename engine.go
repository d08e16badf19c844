package rtc

import (
	"context"
	"fmt"
)

// GeocodeOutputMode selects how radar samples are mapped onto the geogrid.
type GeocodeOutputMode int

const (
	OutputModeAreaProjection GeocodeOutputMode = iota
	OutputModeInterp
)

// ParseGeocodeOutputMode maps a run configuration string to its mode.
// Anything other than "area_projection" selects interpolation, matching the
// permissive behaviour of the run configuration schema.
func ParseGeocodeOutputMode(s string) GeocodeOutputMode {
	if s == "area_projection" {
		return OutputModeAreaProjection
	}
	return OutputModeInterp
}

// RtcAlgorithm selects the terrain-correction area estimation algorithm.
type RtcAlgorithm int

const (
	RtcAreaProjection RtcAlgorithm = iota
	RtcBilinearDistribution
)

func ParseRtcAlgorithm(s string) RtcAlgorithm {
	if s == "bilinear_distribution" {
		return RtcBilinearDistribution
	}
	return RtcAreaProjection
}

// TerrainRadiometry is a backscatter coefficient convention.
type TerrainRadiometry int

const (
	RadiometryBeta0 TerrainRadiometry = iota
	RadiometrySigma0
	RadiometryGamma0
)

func ParseTerrainRadiometry(s string) (TerrainRadiometry, error) {
	switch s {
	case "beta0":
		return RadiometryBeta0, nil
	case "sigma0", "sigma0-ellipsoid":
		return RadiometrySigma0, nil
	case "gamma0":
		return RadiometryGamma0, nil
	}
	return 0, fmt.Errorf("invalid terrain radiometry: %q", s)
}

func (r TerrainRadiometry) String() string {
	switch r {
	case RadiometrySigma0:
		return "sigma0"
	case RadiometryGamma0:
		return "gamma0"
	default:
		return "beta0"
	}
}

// RtcAreaBetaMode selects how the beta surface area is computed during
// terrain correction.
type RtcAreaBetaMode int

const (
	AreaBetaAuto RtcAreaBetaMode = iota
	AreaBetaPixelArea
	AreaBetaProjectionAngle
)

func ParseRtcAreaBetaMode(s string) (RtcAreaBetaMode, error) {
	switch s {
	case "", "auto":
		return AreaBetaAuto, nil
	case "pixel_area":
		return AreaBetaPixelArea, nil
	case "projection_angle":
		return AreaBetaProjectionAngle, nil
	}
	return 0, fmt.Errorf("invalid area beta mode: %q", s)
}

// DEMInterpMethod selects the DEM interpolation kernel.
type DEMInterpMethod int

const (
	DEMInterpBiquintic DEMInterpMethod = iota
	DEMInterpBilinear
	DEMInterpBicubic
	DEMInterpNearest
)

func ParseDEMInterpMethod(s string) (DEMInterpMethod, error) {
	switch s {
	case "", "biquintic":
		return DEMInterpBiquintic, nil
	case "bilinear":
		return DEMInterpBilinear, nil
	case "bicubic":
		return DEMInterpBicubic, nil
	case "nearest":
		return DEMInterpNearest, nil
	}
	return 0, fmt.Errorf("invalid DEM interpolation method: %q", s)
}

// LUT2D is a regularly gridded 2D lookup table in radar coordinates:
// X is slant range, Y is azimuth time.
type LUT2D struct {
	XStart, YStart     float64
	XSpacing, YSpacing float64
	Data               [][]float64
}

// Negate returns the LUT with every sample sign-flipped.
func (l LUT2D) Negate() LUT2D {
	out := l
	out.Data = make([][]float64, len(l.Data))
	for i, row := range l.Data {
		nrow := make([]float64, len(row))
		for j, v := range row {
			nrow[j] = -v
		}
		out.Data[i] = nrow
	}
	return out
}

// TopoRequest asks the engine to trace the radar grid onto the DEM.
type TopoRequest struct {
	Grid    RadarGrid
	Orbit   Orbit
	DEMPath string

	Threshold     float64
	NumIter       int
	ExtraIter     int
	LinesPerBlock int

	// Which layers to produce. Unrequested layers come back nil.
	WantHeight        bool
	WantIncidence     bool
	WantLayoverShadow bool
}

// TopoResult holds the requested radar-geometry layers, row-major with the
// radar grid's dimensions.
type TopoResult struct {
	Height        [][]float64
	IncidenceDeg  [][]float64
	LayoverShadow [][]uint8
}

// GeocodeRequest maps a radar-coordinate raster onto a geogrid.
type GeocodeRequest struct {
	Grid    RadarGrid
	Orbit   Orbit
	Geogrid Geogrid
	DEMPath string

	InputPath  string
	OutputPath string

	OutputMode        GeocodeOutputMode
	GeogridUpsampling int
	Threshold         float64
	NumIter           int

	ApplyRTC                bool
	InputTerrainRadiometry  TerrainRadiometry
	OutputTerrainRadiometry TerrainRadiometry
	Exponent                int
	RtcMinValueDB           float64
	RtcUpsampling           int
	RtcAlgorithm            RtcAlgorithm
	AreaBetaMode            RtcAreaBetaMode
	AbsCalFactor            float64
	UpsampleRadarGrid       bool
	ClipMin, ClipMax        float64

	DEMInterpMethod  DEMInterpMethod
	SingleBlock      bool
	DataInterpolator string // e.g. "NEAREST"; empty selects the mode default

	// Optional geolocation corrections.
	AzTimeCorrection     *LUT2D
	SlantRangeCorrection *LUT2D

	// Per-line [first, last+1) valid sample spans; nil disables sub-swath
	// masking. A [0,0) span marks a fully invalid line.
	ValidSampleSpans [][2]int

	// Slant-range layover/shadow mask to exclude shadowed samples.
	LayoverShadowMaskPath string

	// Optional secondary outputs, skipped when empty.
	NlooksPath               string
	RtcAnfPath               string
	RtcAnfGamma0ToSigma0Path string
}

// RadarGridLayersRequest asks the engine for static radar-geometry layers
// on a geogrid. Layers with an empty path are skipped.
type RadarGridLayersRequest struct {
	Geogrid    Geogrid
	Orbit      Orbit
	DEMPath    string
	Lookside   string
	Wavelength float64

	DEMInterpMethod DEMInterpMethod

	IncidenceAnglePath        string
	LocalIncidenceAnglePath   string
	ProjectionAnglePath       string
	RtcAnfProjectionAnglePath string
	InterpolatedDEMPath       string
}

// Engine is the external SAR geometry and geocoding implementation this
// module orchestrates. Implementations are expected to be safe for
// sequential use only.
type Engine interface {
	GeogridEstimator

	// BistaticDelay computes the bistatic delay LUT for a burst at the
	// given radar-coordinate posting.
	BistaticDelay(ctx context.Context, b *Burst, rgStepMeters, azStepSeconds float64) (LUT2D, error)

	// Topo traces the radar grid onto the DEM and returns the requested
	// radar-geometry layers.
	Topo(ctx context.Context, req TopoRequest) (TopoResult, error)

	// Geocode maps a radar raster onto the request's geogrid.
	Geocode(ctx context.Context, req GeocodeRequest) error

	// RadarGridLayers produces static geometry layers on a geogrid.
	RadarGridLayers(ctx context.Context, req RadarGridLayersRequest) error
}
