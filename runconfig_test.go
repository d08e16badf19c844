package rtc

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRunConfig = `runconfig:
  name: rtc_s1_workflow_default
  groups:
    input_file_group:
      safe_file_path:
        - input/S1A_IW_SLC__1SDV_20240809.zip
      orbit_file_path:
        - input/S1A_OPER_AUX_POEORB.EOF
      burst_id:
        - t064_135518_iw1
        - t064_135519_iw1
    dynamic_ancillary_file_group:
      dem_file: input/dem.vrt
    product_group:
      product_id: OPERA_L2_RTC-S1
      output_dir: output
      scratch_path: scratch
      save_bursts: true
      save_mosaics: true
      save_metadata: true
    processing:
      polarization: dual-pol
      dem_interpolation_method: biquintic
      apply_thermal_noise_correction: true
      apply_absolute_radiometric_correction: true
      apply_bistatic_delay_correction: true
      apply_static_tropospheric_delay_correction: false
      apply_rtc: true
      geocoding:
        algorithm_type: area_projection
        memory_mode: auto
        save_mask: true
        save_nlooks: true
        apply_valid_samples_sub_swath_masking: true
        apply_shadow_masking: true
        bursts_geogrid:
          x_posting: 30
          y_posting: 30
          x_snap: 30
          y_snap: 30
        mosaic_geogrid:
          x_posting: 30
          y_posting: 30
      rtc:
        algorithm_type: area_projection
        input_terrain_radiometry: beta0
        output_type: gamma0
        rtc_min_value_db: -30
        dem_upsampling: 2
        area_beta_mode: auto
      geo2rdr:
        threshold: 1.0e-7
        numiter: 50
      rdr2geo:
        threshold: 1.0e-7
        numiter: 25
`

func loadTestRunConfig(t *testing.T) *RunConfig {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runconfig.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testRunConfig), 0o644))
	cfg, err := LoadRunConfig(path)
	require.NoError(t, err)
	return cfg
}

func TestLoadRunConfig(t *testing.T) {
	cfg := loadTestRunConfig(t)
	assert.Equal(t, "rtc_s1_workflow_default", cfg.Name)
	assert.Equal(t, []string{"t064_135518_iw1", "t064_135519_iw1"}, cfg.Groups.InputFileGroup.BurstID)
	assert.Equal(t, "input/dem.vrt", cfg.Groups.AncillaryGroup.DEMFile)
	assert.True(t, cfg.Groups.ProductGroup.SaveMosaics)
	assert.Equal(t, 30.0, cfg.Groups.ProcessingGroup.Geocoding.Bursts.XPosting)
	require.NotNil(t, cfg.Groups.ProcessingGroup.Geocoding.Bursts.XSnap)
	assert.Equal(t, 30.0, *cfg.Groups.ProcessingGroup.Geocoding.Bursts.XSnap)
	assert.Nil(t, cfg.Groups.ProcessingGroup.Geocoding.Mosaic.XSnap)
	assert.False(t, cfg.Groups.ProcessingGroup.ApplyStaticTropo)
}

func TestRunConfigRoundTrip(t *testing.T) {
	cfg := loadTestRunConfig(t)
	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, cfg.Write(path))
	again, err := LoadRunConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestGridParamsFromGroup(t *testing.T) {
	cfg := loadTestRunConfig(t)
	p := cfg.Groups.ProcessingGroup.Geocoding.Bursts.GridParams()
	assert.Equal(t, 30.0, p.PostingX)
	assert.Equal(t, 30.0, p.SnapX)
	assert.True(t, math.IsNaN(p.XMin))
	assert.True(t, math.IsNaN(p.YMax))
	assert.Equal(t, 0, p.EPSG)

	m := cfg.Groups.ProcessingGroup.Geocoding.Mosaic.GridParams()
	assert.True(t, math.IsNaN(m.SnapX))
	assert.True(t, math.IsNaN(m.SnapY))
}

func TestSplitPerBurst(t *testing.T) {
	cfg := loadTestRunConfig(t)
	burstIDs := cfg.Groups.InputFileGroup.BurstID
	configs, paths, err := cfg.SplitPerBurst(burstIDs, []string{"p1", "p2"}, "output/bursts", "")
	require.NoError(t, err)
	require.Len(t, configs, 2)
	require.Len(t, paths, 2)

	for i, child := range configs {
		assert.Equal(t, []string{burstIDs[i]}, child.Groups.InputFileGroup.BurstID)
		assert.Equal(t, "output/bursts", child.Groups.ProductGroup.OutputDir)
		assert.Equal(t, "scratch_child_scratch", child.Groups.ProductGroup.ScratchPath)
		assert.False(t, child.Groups.ProductGroup.SaveMosaics)
		assert.True(t, child.Groups.ProductGroup.SaveBursts)
		assert.Equal(t, "single_block", child.Groups.ProcessingGroup.Geocoding.MemoryMode)
	}
	assert.Equal(t, "p1", configs[0].Groups.ProductGroup.ProductID)
	assert.Equal(t, "p2", configs[1].Groups.ProductGroup.ProductID)
	assert.Equal(t, filepath.Join("scratch", "burst_runconfig_t064_135518_iw1.yaml"), paths[0])

	// parent untouched
	assert.True(t, cfg.Groups.ProductGroup.SaveMosaics)
	assert.Len(t, cfg.Groups.InputFileGroup.BurstID, 2)
}

func TestSplitPerBurstMismatch(t *testing.T) {
	cfg := loadTestRunConfig(t)
	_, _, err := cfg.SplitPerBurst([]string{"a", "b"}, []string{"p1"}, "out", "")
	assert.Error(t, err)
}
