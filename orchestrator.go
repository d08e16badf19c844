package rtc

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"go.airbusds-geo.com/log"
)

// Options carries the full processing option set for one job.
type Options struct {
	OutputDir  string
	ScratchDir string
	DEMPath    string

	RTC           bool
	ThermalNoise  bool
	AbsRad        bool
	BistaticDelay bool
	StaticTropo   bool
	SaveMetadata  bool

	DEMInterpMethod          DEMInterpMethod
	ApplyValidSamplesMasking bool
	ApplyShadowMasking       bool
	GeocodeAlgorithm         GeocodeOutputMode
	LUTAzimuthSpacingMeters  float64
	LUTRangeSpacingMeters    float64
	SingleBlock              bool
	GeogridUpsampling        int
	ShadowDilationSize       int
	AbsCalFactor             float64
	ClipMin, ClipMax         float64
	UpsampleRadarGrid        bool

	SaveNlooks               bool
	SaveMask                 bool
	SaveRtcAnf               bool
	SaveRtcAnfGamma0ToSigma0 bool

	SaveIncidenceAngle        bool
	SaveLocalIncidenceAngle   bool
	SaveProjectionAngle       bool
	SaveRtcAnfProjectionAngle bool
	SaveDEM                   bool

	OutputTerrainRadiometry TerrainRadiometry
	InputTerrainRadiometry  TerrainRadiometry
	RtcAlgorithm            RtcAlgorithm
	RtcMinValueDB           float64
	RtcUpsampling           int
	AreaBetaMode            RtcAreaBetaMode

	Geo2RdrThreshold     float64
	Geo2RdrNumIter       int
	Rdr2GeoThreshold     float64
	Rdr2GeoNumIter       int
	Rdr2GeoExtraIter     int
	Rdr2GeoLinesPerBlock int
}

// DefaultOptions returns the standard production option set.
func DefaultOptions(outputDir, scratchDir, demPath string) Options {
	return Options{
		OutputDir:  outputDir,
		ScratchDir: scratchDir,
		DEMPath:    demPath,

		RTC:           true,
		ThermalNoise:  true,
		AbsRad:        true,
		BistaticDelay: true,
		StaticTropo:   true,
		SaveMetadata:  true,

		DEMInterpMethod:          DEMInterpBiquintic,
		ApplyValidSamplesMasking: true,
		ApplyShadowMasking:       true,
		GeocodeAlgorithm:         OutputModeAreaProjection,
		LUTAzimuthSpacingMeters:  120,
		LUTRangeSpacingMeters:    120,
		SingleBlock:              true,
		GeogridUpsampling:        1,
		ShadowDilationSize:       0,
		AbsCalFactor:             1,
		ClipMin:                  math.NaN(),
		ClipMax:                  math.NaN(),

		SaveMask: true,

		OutputTerrainRadiometry: RadiometryGamma0,
		InputTerrainRadiometry:  RadiometryBeta0,
		RtcAlgorithm:            RtcAreaProjection,
		RtcMinValueDB:           -30,
		RtcUpsampling:           2,
		AreaBetaMode:            AreaBetaAuto,

		Geo2RdrThreshold:     1.0e-7,
		Geo2RdrNumIter:       50,
		Rdr2GeoThreshold:     1.0e-7,
		Rdr2GeoNumIter:       25,
		Rdr2GeoExtraIter:     10,
		Rdr2GeoLinesPerBlock: 1000,
	}
}

// OptionsFromRunConfig maps a run configuration onto an option set,
// starting from the defaults so absent keys keep their production values.
func OptionsFromRunConfig(c *RunConfig) (Options, error) {
	pg := c.Groups.ProductGroup
	pr := c.Groups.ProcessingGroup
	gc := pr.Geocoding

	opts := DefaultOptions(pg.OutputDir, pg.ScratchPath, c.Groups.AncillaryGroup.DEMFile)
	opts.RTC = pr.ApplyRTC
	opts.ThermalNoise = pr.ApplyThermalNoise
	opts.AbsRad = pr.ApplyAbsRadCorrection
	opts.BistaticDelay = pr.ApplyBistaticDelay
	opts.StaticTropo = pr.ApplyStaticTropo
	opts.SaveMetadata = pg.SaveMetadata

	var err error
	if opts.DEMInterpMethod, err = ParseDEMInterpMethod(pr.DEMInterpolationMethod); err != nil {
		return Options{}, err
	}
	opts.ApplyValidSamplesMasking = gc.ApplyValidSamplesMasking
	opts.ApplyShadowMasking = gc.ApplyShadowMasking
	opts.GeocodeAlgorithm = ParseGeocodeOutputMode(gc.AlgorithmType)
	if pr.LUTAzimuthSpacing > 0 {
		opts.LUTAzimuthSpacingMeters = pr.LUTAzimuthSpacing
	}
	if pr.LUTRangeSpacing > 0 {
		opts.LUTRangeSpacingMeters = pr.LUTRangeSpacing
	}
	opts.SingleBlock = gc.MemoryMode == "" || gc.MemoryMode == "single_block"
	if gc.GeogridUpsampling > 0 {
		opts.GeogridUpsampling = gc.GeogridUpsampling
	}
	opts.ShadowDilationSize = gc.ShadowDilationSize
	if gc.AbsRadCal != 0 {
		opts.AbsCalFactor = gc.AbsRadCal
	}
	if gc.ClipMin != nil {
		opts.ClipMin = *gc.ClipMin
	}
	if gc.ClipMax != nil {
		opts.ClipMax = *gc.ClipMax
	}
	opts.UpsampleRadarGrid = gc.UpsampleRadarGrid
	opts.SaveNlooks = gc.SaveNlooks
	opts.SaveMask = gc.SaveMask
	opts.SaveRtcAnf = gc.SaveRtcAnf
	opts.SaveRtcAnfGamma0ToSigma0 = gc.SaveRtcAnfGamma0ToSigma0
	opts.SaveIncidenceAngle = gc.SaveIncidenceAngle
	opts.SaveLocalIncidenceAngle = gc.SaveLocalIncidenceAngle
	opts.SaveProjectionAngle = gc.SaveProjectionAngle
	opts.SaveRtcAnfProjectionAngle = gc.SaveRtcAnfProjectionAngle
	opts.SaveDEM = gc.SaveDEM

	rtcGroup := pr.RTC
	if rtcGroup.OutputType != "" {
		if opts.OutputTerrainRadiometry, err = ParseTerrainRadiometry(rtcGroup.OutputType); err != nil {
			return Options{}, err
		}
	}
	if rtcGroup.InputTerrainRadiometry != "" {
		if opts.InputTerrainRadiometry, err = ParseTerrainRadiometry(rtcGroup.InputTerrainRadiometry); err != nil {
			return Options{}, err
		}
	}
	opts.RtcAlgorithm = ParseRtcAlgorithm(rtcGroup.AlgorithmType)
	if rtcGroup.RtcMinValueDB != 0 {
		opts.RtcMinValueDB = rtcGroup.RtcMinValueDB
	}
	if rtcGroup.DEMUpsampling > 0 {
		opts.RtcUpsampling = rtcGroup.DEMUpsampling
	}
	if opts.AreaBetaMode, err = ParseRtcAreaBetaMode(rtcGroup.AreaBetaMode); err != nil {
		return Options{}, err
	}
	if pr.Geo2Rdr.Threshold > 0 {
		opts.Geo2RdrThreshold = pr.Geo2Rdr.Threshold
	}
	if pr.Geo2Rdr.NumIter > 0 {
		opts.Geo2RdrNumIter = pr.Geo2Rdr.NumIter
	}
	if pr.Rdr2Geo.Threshold > 0 {
		opts.Rdr2GeoThreshold = pr.Rdr2Geo.Threshold
	}
	if pr.Rdr2Geo.NumIter > 0 {
		opts.Rdr2GeoNumIter = pr.Rdr2Geo.NumIter
	}
	return opts, nil
}

// ValidateAnfFlags demotes the area-normalization-factor output flags when
// the option combination makes them meaningless, warning through the
// context logger.
func ValidateAnfFlags(ctx context.Context, opts Options) (saveRtcAnf, saveRtcAnfGamma0ToSigma0 bool) {
	sugar := log.Logger(ctx).Sugar()
	saveRtcAnf = opts.SaveRtcAnf
	saveRtcAnfGamma0ToSigma0 = opts.SaveRtcAnfGamma0ToSigma0

	if !opts.RTC && saveRtcAnf {
		sugar.Warnf("save_rtc_anf is not available with terrain correction disabled, dropping it")
		saveRtcAnf = false
	}
	if !opts.RTC && saveRtcAnfGamma0ToSigma0 {
		sugar.Warnf("save_rtc_anf_gamma0_to_sigma0 is not available with terrain correction disabled, dropping it")
		saveRtcAnfGamma0ToSigma0 = false
	} else if saveRtcAnfGamma0ToSigma0 && opts.OutputTerrainRadiometry == RadiometrySigma0 {
		sugar.Warnf("save_rtc_anf_gamma0_to_sigma0 is not available with sigma0 output radiometry, dropping it")
		saveRtcAnfGamma0ToSigma0 = false
	}
	return saveRtcAnf, saveRtcAnfGamma0ToSigma0
}

// TempSet tracks temporary files created during one invocation. Release
// removes them all; files already gone are skipped silently.
type TempSet struct {
	files []string
}

func (t *TempSet) Add(path string) {
	t.files = append(t.files, path)
}

// Release deletes every tracked file. Removal failures other than absence
// are logged and do not interrupt the sweep.
func (t *TempSet) Release(ctx context.Context) {
	for _, f := range t.files {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			log.Logger(ctx).Sugar().Warnf("failed to remove temporary file %s: %v", f, err)
		}
	}
	t.files = nil
}

// Orchestrator runs the per-burst geocoding pipeline against an engine.
type Orchestrator struct {
	Engine  Engine
	Options Options
}

// ProcessUnit geocodes one burst onto its geogrid and returns the list of
// permanent output files. Temporary files are removed before return,
// whatever the outcome.
func (o *Orchestrator) ProcessUnit(ctx context.Context, b *Burst, geogrid Geogrid) (outputs []string, err error) {
	opts := o.Options
	sugar := log.Logger(ctx).Sugar()

	scratchDir := filepath.Join(opts.ScratchDir, b.ID)
	outputDir := filepath.Join(opts.OutputDir, b.ID)
	for _, dir := range []string{scratchDir, outputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	tmp := &TempSet{}
	defer tmp.Release(ctx)

	productID := b.ProductID
	if productID == "" {
		productID = b.ID
	}

	// Align the grid origin to its own spacing.
	geogrid.StartX = snapCoord(geogrid.StartX, geogrid.SpacingX, math.Floor)
	geogrid.StartY = snapCoord(geogrid.StartY, geogrid.SpacingY, math.Ceil)
	sugar.Infof("burst %s: geogrid %dx%d EPSG %d origin (%g, %g)",
		b.ID, geogrid.Width, geogrid.Height, geogrid.EPSG, geogrid.StartX, geogrid.StartY)

	// Radiometric pre-correction. Skipping both corrections feeds the raw
	// complex SLC to geocoding, which then squares the samples itself.
	inputPath := b.SLCPath
	exponent := 2
	if opts.ThermalNoise || opts.AbsRad {
		corrected := filepath.Join(scratchDir, fmt.Sprintf("slc_%s_corrected.tif", b.Polarization))
		sugar.Infof("burst %s: applying radiometric pre-correction", b.ID)
		if err := ApplySLCCorrections(ctx, b, corrected, false, opts.ThermalNoise, opts.AbsRad); err != nil {
			return nil, fmt.Errorf("SLC corrections: %w", err)
		}
		tmp.Add(corrected)
		inputPath = corrected
		exponent = 1
	}

	// Geolocation correction lookup tables.
	var rgLUT, azLUT *LUT2D
	if opts.BistaticDelay || opts.StaticTropo {
		rgLUT, azLUT, err = ComputeCorrectionLUT(ctx, o.Engine, b, opts.DEMPath,
			opts.LUTRangeSpacingMeters, opts.LUTAzimuthSpacingMeters,
			opts.BistaticDelay, opts.StaticTropo)
		if err != nil {
			return nil, fmt.Errorf("correction LUT: %w", err)
		}
	}

	var validSampleSpans [][2]int
	if opts.ApplyValidSamplesMasking {
		validSampleSpans = b.ValidSampleSpans()
	}

	// Layover/shadow mask.
	var maskFile, slantMaskPath string
	if opts.SaveMask || opts.ApplyShadowMasking {
		maskIsTemporary := opts.ApplyShadowMasking && !opts.SaveMask
		if maskIsTemporary {
			maskFile = filepath.Join(scratchDir, fmt.Sprintf("%s_mask.tif", productID))
		} else {
			maskFile = filepath.Join(outputDir, fmt.Sprintf("%s_mask.tif", productID))
		}
		sugar.Infof("burst %s: computing layover/shadow mask", b.ID)
		slantMaskPath, err = ComputeLayoverShadowMask(ctx, o.Engine, MaskRequest{
			Burst:            b,
			Geogrid:          geogrid,
			DEMPath:          opts.DEMPath,
			OutputPath:       maskFile,
			ScratchDir:       scratchDir,
			DilationSize:     opts.ShadowDilationSize,
			ThresholdRdr2Geo: opts.Rdr2GeoThreshold,
			NumIterRdr2Geo:   opts.Rdr2GeoNumIter,
			ExtraIterRdr2Geo: opts.Rdr2GeoExtraIter,
			LinesPerBlock:    opts.Rdr2GeoLinesPerBlock,
			ThresholdGeo2Rdr: opts.Geo2RdrThreshold,
			NumIterGeo2Rdr:   opts.Geo2RdrNumIter,
			ValidSampleSpans: validSampleSpans,
			SingleBlock:      opts.SingleBlock,
		})
		if err != nil {
			return nil, fmt.Errorf("layover/shadow mask: %w", err)
		}
		tmp.Add(slantMaskPath)
		if maskIsTemporary {
			tmp.Add(maskFile)
		} else {
			outputs = append(outputs, maskFile)
		}
	}

	saveRtcAnf, saveRtcAnfGamma0ToSigma0 := ValidateAnfFlags(ctx, opts)

	geoBurstFile := filepath.Join(scratchDir, productID+".tif")
	tmp.Add(geoBurstFile)

	req := GeocodeRequest{
		Grid:                    b.RadarGrid,
		Orbit:                   b.Orbit,
		Geogrid:                 geogrid,
		DEMPath:                 opts.DEMPath,
		InputPath:               inputPath,
		OutputPath:              geoBurstFile,
		OutputMode:              opts.GeocodeAlgorithm,
		GeogridUpsampling:       opts.GeogridUpsampling,
		Threshold:               opts.Geo2RdrThreshold,
		NumIter:                 opts.Geo2RdrNumIter,
		ApplyRTC:                opts.RTC,
		InputTerrainRadiometry:  opts.InputTerrainRadiometry,
		OutputTerrainRadiometry: opts.OutputTerrainRadiometry,
		Exponent:                exponent,
		RtcMinValueDB:           opts.RtcMinValueDB,
		RtcUpsampling:           opts.RtcUpsampling,
		RtcAlgorithm:            opts.RtcAlgorithm,
		AreaBetaMode:            opts.AreaBetaMode,
		AbsCalFactor:            opts.AbsCalFactor,
		UpsampleRadarGrid:       opts.UpsampleRadarGrid,
		ClipMin:                 opts.ClipMin,
		ClipMax:                 opts.ClipMax,
		DEMInterpMethod:         opts.DEMInterpMethod,
		SingleBlock:             opts.SingleBlock,
		AzTimeCorrection:        azLUT,
		SlantRangeCorrection:    rgLUT,
		ValidSampleSpans:        validSampleSpans,
	}
	if opts.ApplyShadowMasking {
		req.LayoverShadowMaskPath = slantMaskPath
	}
	if opts.SaveNlooks {
		req.NlooksPath = filepath.Join(outputDir, fmt.Sprintf("%s_number_of_looks.tif", productID))
		outputs = append(outputs, req.NlooksPath)
	}
	if saveRtcAnf {
		req.RtcAnfPath = filepath.Join(outputDir, fmt.Sprintf("%s_rtc_anf_%s_to_%s.tif",
			productID, opts.OutputTerrainRadiometry, opts.InputTerrainRadiometry))
		outputs = append(outputs, req.RtcAnfPath)
	}
	if saveRtcAnfGamma0ToSigma0 {
		req.RtcAnfGamma0ToSigma0Path = filepath.Join(outputDir,
			fmt.Sprintf("%s_rtc_anf_gamma0_to_sigma0.tif", productID))
		outputs = append(outputs, req.RtcAnfGamma0ToSigma0Path)
	}

	sugar.Infof("burst %s: geocoding", b.ID)
	if err := o.Engine.Geocode(ctx, req); err != nil {
		return nil, fmt.Errorf("geocode burst: %w", err)
	}

	// Promote the geocoded imagery out of scratch.
	imageryFile := filepath.Join(outputDir, fmt.Sprintf("%s_%s.tif", productID, b.Polarization))
	if err := promoteImagery(geoBurstFile, imageryFile); err != nil {
		return nil, err
	}
	outputs = append(outputs, imageryFile)

	if opts.SaveMask {
		if err := SetMaskFillValueAndColorTable(maskFile, geoBurstFile); err != nil {
			return nil, fmt.Errorf("finalize mask: %w", err)
		}
	}

	// Static radar-geometry layers.
	layersReq := RadarGridLayersRequest{
		Geogrid:         geogrid,
		Orbit:           b.Orbit,
		DEMPath:         opts.DEMPath,
		Lookside:        b.RadarGrid.Lookside,
		Wavelength:      b.RadarGrid.Wavelength,
		DEMInterpMethod: opts.DEMInterpMethod,
	}
	wantLayers := false
	layerPath := func(name string) string {
		wantLayers = true
		p := filepath.Join(outputDir, fmt.Sprintf("%s_%s.tif", productID, name))
		outputs = append(outputs, p)
		return p
	}
	if opts.SaveIncidenceAngle {
		layersReq.IncidenceAnglePath = layerPath("incidence_angle")
	}
	if opts.SaveLocalIncidenceAngle {
		layersReq.LocalIncidenceAnglePath = layerPath("local_incidence_angle")
	}
	if opts.SaveProjectionAngle {
		layersReq.ProjectionAnglePath = layerPath("projection_angle")
	}
	if opts.SaveRtcAnfProjectionAngle {
		layersReq.RtcAnfProjectionAnglePath = layerPath("rtc_anf_projection_angle")
	}
	if opts.SaveDEM {
		layersReq.InterpolatedDEMPath = layerPath("interpolated_dem")
	}
	if wantLayers {
		sugar.Infof("burst %s: producing static radar-geometry layers", b.ID)
		if err := o.Engine.RadarGridLayers(ctx, layersReq); err != nil {
			return nil, fmt.Errorf("radar grid layers: %w", err)
		}
	}

	for _, f := range outputs {
		if err := VerifyGeoTIFF(f, geogrid); err != nil {
			return nil, fmt.Errorf("verify %s: %w", filepath.Base(f), err)
		}
		sugar.Infof("file saved: %s", f)
	}
	return outputs, nil
}
