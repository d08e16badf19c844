package rtc

import (
	"fmt"
	"os"
	"path/filepath"

	"sigs.k8s.io/yaml"
)

// RunConfig is the typed YAML run configuration driving one processing
// job, single-burst or multi-burst.
type RunConfig struct {
	Name   string          `json:"name,omitempty"`
	Groups RunConfigGroups `json:"groups"`
}

type RunConfigGroups struct {
	InputFileGroup  InputFileGroup  `json:"input_file_group"`
	AncillaryGroup  AncillaryGroup  `json:"dynamic_ancillary_file_group"`
	StaticAncillary StaticAncillary `json:"static_ancillary_file_group"`
	ProductGroup    ProductGroup    `json:"product_group"`
	ProcessingGroup ProcessingGroup `json:"processing"`
}

type InputFileGroup struct {
	SafeFilePath  []string `json:"safe_file_path"`
	OrbitFilePath []string `json:"orbit_file_path"`
	BurstID       []string `json:"burst_id,omitempty"`
}

type AncillaryGroup struct {
	DEMFile string `json:"dem_file"`
}

type StaticAncillary struct {
	BurstDatabaseFile string `json:"burst_database_file,omitempty"`
}

type ProductGroup struct {
	ProductID    string `json:"product_id"`
	OutputDir    string `json:"output_dir"`
	ScratchPath  string `json:"scratch_path"`
	SaveBursts   bool   `json:"save_bursts"`
	SaveMosaics  bool   `json:"save_mosaics"`
	SaveMetadata bool   `json:"save_metadata"`
}

type ProcessingGroup struct {
	Polarization           string  `json:"polarization,omitempty"`
	DEMInterpolationMethod string  `json:"dem_interpolation_method,omitempty"`
	ApplyThermalNoise      bool    `json:"apply_thermal_noise_correction"`
	ApplyAbsRadCorrection  bool    `json:"apply_absolute_radiometric_correction"`
	ApplyBistaticDelay     bool    `json:"apply_bistatic_delay_correction"`
	ApplyStaticTropo       bool    `json:"apply_static_tropospheric_delay_correction"`
	ApplyRTC               bool    `json:"apply_rtc"`
	LUTAzimuthSpacing      float64 `json:"correction_lut_azimuth_spacing_in_meters,omitempty"`
	LUTRangeSpacing        float64 `json:"correction_lut_range_spacing_in_meters,omitempty"`

	Geocoding GeocodingGroup `json:"geocoding"`
	RTC       RTCGroup       `json:"rtc"`
	Geo2Rdr   IterParams     `json:"geo2rdr"`
	Rdr2Geo   IterParams     `json:"rdr2geo"`
}

type GeocodingGroup struct {
	AlgorithmType             string   `json:"algorithm_type,omitempty"`
	MemoryMode                string   `json:"memory_mode,omitempty"`
	GeogridUpsampling         int      `json:"geogrid_upsampling,omitempty"`
	ShadowDilationSize        int      `json:"shadow_dilation_size,omitempty"`
	AbsRadCal                 float64  `json:"abs_rad_cal,omitempty"`
	ClipMin                   *float64 `json:"clip_min,omitempty"`
	ClipMax                   *float64 `json:"clip_max,omitempty"`
	UpsampleRadarGrid         bool     `json:"upsample_radargrid"`
	SaveNlooks                bool     `json:"save_nlooks"`
	SaveMask                  bool     `json:"save_mask"`
	SaveRtcAnf                bool     `json:"save_rtc_anf"`
	SaveRtcAnfGamma0ToSigma0  bool     `json:"save_rtc_anf_gamma0_to_sigma0"`
	SaveIncidenceAngle        bool     `json:"save_incidence_angle"`
	SaveLocalIncidenceAngle   bool     `json:"save_local_incidence_angle"`
	SaveProjectionAngle       bool     `json:"save_projection_angle"`
	SaveRtcAnfProjectionAngle bool     `json:"save_rtc_anf_projection_angle"`
	SaveDEM                   bool     `json:"save_dem"`
	ApplyValidSamplesMasking  bool     `json:"apply_valid_samples_sub_swath_masking"`
	ApplyShadowMasking        bool     `json:"apply_shadow_masking"`

	Bursts BurstGridGroup  `json:"bursts_geogrid"`
	Mosaic MosaicGridGroup `json:"mosaic_geogrid"`
}

// BurstGridGroup configures the per-burst geogrids. Optional fields are
// pointers so an absent YAML key stays distinguishable from zero.
type BurstGridGroup struct {
	OutputEPSG   *int     `json:"output_epsg,omitempty"`
	XPosting     float64  `json:"x_posting"`
	YPosting     float64  `json:"y_posting"`
	XSnap        *float64 `json:"x_snap,omitempty"`
	YSnap        *float64 `json:"y_snap,omitempty"`
	TopLeftX     *float64 `json:"top_left_x,omitempty"`
	TopLeftY     *float64 `json:"top_left_y,omitempty"`
	BottomRightX *float64 `json:"bottom_right_x,omitempty"`
	BottomRightY *float64 `json:"bottom_right_y,omitempty"`
}

type MosaicGridGroup = BurstGridGroup

type RTCGroup struct {
	AlgorithmType          string  `json:"algorithm_type,omitempty"`
	InputTerrainRadiometry string  `json:"input_terrain_radiometry,omitempty"`
	OutputType             string  `json:"output_type,omitempty"`
	RtcMinValueDB          float64 `json:"rtc_min_value_db,omitempty"`
	DEMUpsampling          int     `json:"dem_upsampling,omitempty"`
	AreaBetaMode           string  `json:"area_beta_mode,omitempty"`
}

type IterParams struct {
	Threshold float64 `json:"threshold,omitempty"`
	NumIter   int     `json:"numiter,omitempty"`
}

// LoadRunConfig reads and unmarshals a run configuration file.
func LoadRunConfig(path string) (*RunConfig, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read run config: %w", err)
	}
	var wrapper struct {
		RunConfig RunConfig `json:"runconfig"`
	}
	if err := yaml.Unmarshal(buf, &wrapper); err != nil {
		return nil, fmt.Errorf("parse run config %s: %w", path, err)
	}
	return &wrapper.RunConfig, nil
}

// Write marshals the run configuration back to YAML at path.
func (c *RunConfig) Write(path string) error {
	wrapper := struct {
		RunConfig RunConfig `json:"runconfig"`
	}{RunConfig: *c}
	buf, err := yaml.Marshal(wrapper)
	if err != nil {
		return fmt.Errorf("marshal run config: %w", err)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("write run config: %w", err)
	}
	return nil
}

// GridParams converts a geogrid configuration group to grid parameters,
// mapping absent optionals to Unset().
func (g BurstGridGroup) GridParams() GridParams {
	p := GridParams{
		XMin: Unset(), YMax: Unset(), XMax: Unset(), YMin: Unset(),
		PostingX: g.XPosting, PostingY: g.YPosting,
		SnapX: Unset(), SnapY: Unset(),
	}
	if g.OutputEPSG != nil {
		p.EPSG = *g.OutputEPSG
	}
	if g.TopLeftX != nil {
		p.XMin = *g.TopLeftX
	}
	if g.TopLeftY != nil {
		p.YMax = *g.TopLeftY
	}
	if g.BottomRightX != nil {
		p.XMax = *g.BottomRightX
	}
	if g.BottomRightY != nil {
		p.YMin = *g.BottomRightY
	}
	if g.XSnap != nil {
		p.SnapX = *g.XSnap
	}
	if g.YSnap != nil {
		p.SnapY = *g.YSnap
	}
	return p
}

// SplitPerBurst derives one single-burst run configuration per burst ID.
// Each child writes into childOutputDir under its own product ID, uses
// single-block memory mode, and never produces mosaics. The returned paths
// are where WriteSplit would place each child config under the parent's
// scratch path.
func (c *RunConfig) SplitPerBurst(burstIDs, productIDs []string, childOutputDir, childScratchPath string) ([]RunConfig, []string, error) {
	if len(burstIDs) != len(productIDs) {
		return nil, nil, fmt.Errorf("got %d burst IDs but %d product IDs", len(burstIDs), len(productIDs))
	}
	if childScratchPath == "" {
		childScratchPath = c.Groups.ProductGroup.ScratchPath + "_child_scratch"
	}

	configs := make([]RunConfig, 0, len(burstIDs))
	paths := make([]string, 0, len(burstIDs))
	for i, burstID := range burstIDs {
		child := *c
		child.Groups.ProductGroup.ProductID = productIDs[i]
		child.Groups.ProductGroup.OutputDir = childOutputDir
		child.Groups.ProductGroup.ScratchPath = childScratchPath
		child.Groups.ProductGroup.SaveMosaics = false
		child.Groups.ProductGroup.SaveBursts = true
		child.Groups.InputFileGroup.BurstID = []string{burstID}
		child.Groups.ProcessingGroup.Geocoding.MemoryMode = "single_block"
		configs = append(configs, child)
		paths = append(paths, filepath.Join(c.Groups.ProductGroup.ScratchPath,
			fmt.Sprintf("burst_runconfig_%s.yaml", burstID)))
	}
	return configs, paths, nil
}

// WriteSplit writes each split configuration to its path.
func WriteSplit(configs []RunConfig, paths []string) error {
	for i := range configs {
		if err := configs[i].Write(paths[i]); err != nil {
			return err
		}
	}
	return nil
}
