package main

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	rtc "github.com/ASFHyP3/hyp3-OPERA-RTC"
	"github.com/airbusgeo/godal"
	"github.com/airbusgeo/osio"
	"github.com/airbusgeo/osio/gcs"
	"github.com/alessio/shellescape"
	"github.com/caarlos0/env/v10"
	"github.com/google/uuid"
	shellwords "github.com/mattn/go-shellwords"
	"github.com/spf13/cobra"
	"github.com/tbonfort/gobs"
	adst "go.airbusds-geo.com/gcp/storage"
	"go.airbusds-geo.com/log"
	k8sv1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	k8smeta "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"

	wfv1 "github.com/argoproj/argo-workflows/v3/pkg/apis/workflow/v1alpha1"
	"sigs.k8s.io/yaml"
)

type envConfig struct {
	WorkBucket     string `env:"WORK_BUCKET" envDefault:"opera-rtc-scratch"`
	DEMSource      string `env:"DEM_SOURCE" envDefault:"/vsicurl/https://nisar.asf.earthdatacloud.nasa.gov/STATIC/DEM/v1.1/EPSG4326/EPSG4326.vrt"`
	DEMURLTemplate string `env:"DEM_URL_TEMPLATE"`
}

var cfg envConfig

var stcl *storage.Client
var adstcl *adst.Client
var gcsa *osio.Adapter

var verbose bool
var blocksize string
var numCachedBlocks int
var startTime time.Time

var demSource string
var demURLTemplate string
var translateSwitches string
var demWorkers int
var demMaxTries int

var splitOutputDir string
var splitScratchPath string

var jobid string
var shell bool
var processCommand string
var workBucket string
var dockerImage string

var uploadWorkers int
var skipZip bool

var defaultImage string = "build-error-this-variable-should-have-been-set-on-build"

var rootCmd = &cobra.Command{
	Use:   "opera-rtc",
	Short: "sentinel-1 rtc job preparation cli",
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		startTime = time.Now()
		if !verbose {
			os.Setenv("LOGLEVEL", "info")
			log.Structured()
		}
		if err := env.Parse(&cfg); err != nil {
			return fmt.Errorf("parse environment: %w", err)
		}
		if workBucket == "" {
			workBucket = cfg.WorkBucket
		}
		ctx := cmd.Context()
		var err error

		if stcl, err = storage.NewClient(ctx); err != nil {
			return fmt.Errorf("storage.newclient: %w", err)
		}
		if adstcl, err = adst.New(ctx, adst.WithStorageClient(stcl)); err != nil {
			return fmt.Errorf("ads storage.new: %w", err)
		}

		gcsh, err := gcs.Handle(ctx, gcs.GCSClient(stcl))
		if err != nil {
			return fmt.Errorf("gcs.handle: %w", err)
		}
		gcsa, err = osio.NewAdapter(gcsh, osio.BlockSize(blocksize), osio.NumCachedBlocks(numCachedBlocks))
		if err != nil {
			return fmt.Errorf("osio.new: %w", err)
		}
		if err := godal.RegisterVSIHandler("gs://", gcsa); err != nil {
			return fmt.Errorf("register osio: %w", err)
		}
		godal.RegisterAll()
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, _ []string) {
		log.Logger(cmd.Context()).Sugar().Debugf("command %s took %.1fs",
			cmd.Name(), time.Since(startTime).Seconds())
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&blocksize, "blocksize", "512k", "gs cache blocksize")
	rootCmd.PersistentFlags().IntVar(&numCachedBlocks, "numblocks", 1000, "number of gs cached blocks")
	rootCmd.AddCommand(demCmd, splitCmd, masterCmd, uploadCmd)

	demCmd.Flags().StringVar(&demSource, "source", "", "global DEM mosaic (vsi path), overrides $DEM_SOURCE")
	demCmd.Flags().StringVar(&demURLTemplate, "urlTemplate", "", "per-tile url template with one %s placeholder, e.g. https://host/dem/%s.tif")
	demCmd.Flags().StringVar(&translateSwitches, "switches", "", "extra gdal_translate switches for each crop. e.g: \"-ot Float32\"")
	demCmd.Flags().IntVar(&demWorkers, "workers", 4, "concurrent tile downloads")
	demCmd.Flags().IntVar(&demMaxTries, "maxTries", 3, "download attempts per tile")

	splitCmd.Flags().StringVar(&splitOutputDir, "outputDir", "", "output directory for the burst products (default: parent output dir)")
	splitCmd.Flags().StringVar(&splitScratchPath, "scratchPath", "", "scratch path for the burst processes")

	masterCmd.Flags().StringVar(&jobid, "jobID", "", "(advanced) use predefined job identifier")
	masterCmd.Flags().BoolVar(&shell, "shell", false, "output shell script instead of argo workflow")
	masterCmd.Flags().StringVar(&processCommand, "processCommand", "rtc_s1", "command invoked on each burst runconfig")
	masterCmd.Flags().StringVar(&workBucket, "workingBucket", "", "temporary work bucket (default: $WORK_BUCKET)")
	masterCmd.Flags().StringVar(&dockerImage, "dockerImage", defaultImage, "docker image for workers")

	uploadCmd.Flags().IntVar(&uploadWorkers, "workers", 4, "concurrent uploads")
	uploadCmd.Flags().BoolVar(&skipZip, "noZip", false, "do not bundle the outputs into a zip archive")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var demCmd = &cobra.Command{
	Use:   "dem dem.vrt granule",
	Short: "stage the DEM covering a granule's footprint",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		outPath := args[0]
		granule := args[1]

		footprint, err := rtc.GranuleFootprint(granule)
		if err != nil {
			return fmt.Errorf("granule footprint: %w", err)
		}
		log.Logger(ctx).Sugar().Infof("granule footprint: [%g %g %g %g]",
			footprint.XMin, footprint.YMin, footprint.XMax, footprint.YMax)

		var stager rtc.Stager
		urlTemplate := demURLTemplate
		if urlTemplate == "" {
			urlTemplate = cfg.DEMURLTemplate
		}
		if urlTemplate != "" {
			stager = &rtc.TileStager{
				URLTemplate: urlTemplate,
				Workers:     demWorkers,
				MaxTries:    demMaxTries,
			}
		} else {
			source := demSource
			if source == "" {
				source = cfg.DEMSource
			}
			switches, err := shellwords.Parse(translateSwitches)
			if err != nil {
				return fmt.Errorf("invalid switches: %w", err)
			}
			stager = &rtc.CropStager{
				SourcePath:        source,
				GeographicSource:  true,
				TranslateSwitches: switches,
			}
		}
		if err := stager.Stage(ctx, outPath, footprint); err != nil {
			return fmt.Errorf("stage DEM: %w", err)
		}
		return nil
	},
}

func burstProductIDs(productID string, burstIDs []string) []string {
	ids := make([]string, len(burstIDs))
	for i, b := range burstIDs {
		ids[i] = fmt.Sprintf("%s_%s", productID, b)
	}
	return ids
}

var splitCmd = &cobra.Command{
	Use:   "split runconfig.yaml",
	Short: "split a multi-burst runconfig into per-burst runconfigs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runcfg, err := rtc.LoadRunConfig(args[0])
		if err != nil {
			return err
		}
		burstIDs := runcfg.Groups.InputFileGroup.BurstID
		if len(burstIDs) == 0 {
			return fmt.Errorf("%s lists no burst IDs", args[0])
		}
		outputDir := splitOutputDir
		if outputDir == "" {
			outputDir = runcfg.Groups.ProductGroup.OutputDir
		}
		productIDs := burstProductIDs(runcfg.Groups.ProductGroup.ProductID, burstIDs)
		configs, paths, err := runcfg.SplitPerBurst(burstIDs, productIDs, outputDir, splitScratchPath)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(runcfg.Groups.ProductGroup.ScratchPath, 0o755); err != nil {
			return fmt.Errorf("create scratch dir: %w", err)
		}
		if err := rtc.WriteSplit(configs, paths); err != nil {
			return err
		}
		for _, p := range paths {
			fmt.Println(p)
		}
		return nil
	},
}

func int32Ptr(val int32) *int32 {
	a := val
	return &a
}
func intOrStringPtr(val int) *intstr.IntOrString {
	a := intstr.FromInt(val)
	return &a
}

var masterCmd = &cobra.Command{
	Use:   "master runconfig.yaml",
	Short: "create workflow fanning one worker per burst",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		runcfg, err := rtc.LoadRunConfig(args[0])
		if err != nil {
			return err
		}
		burstIDs := runcfg.Groups.InputFileGroup.BurstID
		if len(burstIDs) == 0 {
			return fmt.Errorf("%s lists no burst IDs", args[0])
		}
		if jobid == "" {
			jobid = uuid.New().String()
		}
		workerCmd, err := shellwords.Parse(processCommand)
		if err != nil {
			return fmt.Errorf("invalid processCommand: %w", err)
		}

		productIDs := burstProductIDs(runcfg.Groups.ProductGroup.ProductID, burstIDs)
		configs, paths, err := runcfg.SplitPerBurst(burstIDs, productIDs,
			runcfg.Groups.ProductGroup.OutputDir, "")
		if err != nil {
			return err
		}
		if err := os.MkdirAll(runcfg.Groups.ProductGroup.ScratchPath, 0o755); err != nil {
			return fmt.Errorf("create scratch dir: %w", err)
		}
		if err := rtc.WriteSplit(configs, paths); err != nil {
			return err
		}

		wf := &wfv1.Workflow{
			ObjectMeta: k8smeta.ObjectMeta{
				GenerateName: "opera-rtc-",
			},
			TypeMeta: k8smeta.TypeMeta{
				APIVersion: "argoproj.io/v1alpha1",
				Kind:       "Workflow",
			},
			Spec: wfv1.WorkflowSpec{
				TTLStrategy: &wfv1.TTLStrategy{
					SecondsAfterSuccess: int32Ptr(3600),
				},
				Entrypoint: "opera-rtc",
				TemplateDefaults: &wfv1.Template{
					Volumes: []k8sv1.Volume{
						{
							Name: "scratch",
							VolumeSource: k8sv1.VolumeSource{
								EmptyDir: &k8sv1.EmptyDirVolumeSource{
									SizeLimit: resourcePtr("20G"),
								},
							},
						},
					},
					Container: &k8sv1.Container{
						ImagePullPolicy: k8sv1.PullAlways,
						Resources: k8sv1.ResourceRequirements{
							Requests: k8sv1.ResourceList{
								k8sv1.ResourceCPU:    resource.MustParse("4"),
								k8sv1.ResourceMemory: resource.MustParse("16G"),
							},
						},
						WorkingDir: "/scratch",
						VolumeMounts: []k8sv1.VolumeMount{
							{
								Name:      "scratch",
								MountPath: "/scratch",
							},
						},
					},
				},
				Templates: []wfv1.Template{
					{Name: "opera-rtc"},
				},
			},
		}

		ps := wfv1.ParallelSteps{}
		for i, burstID := range burstIDs {
			remote := fmt.Sprintf("gs://%s/%s/%s", workBucket, jobid, filepath.Base(paths[i]))
			if !shell {
				if err := adstcl.UploadFromFile(ctx, remote, paths[i]); err != nil {
					return fmt.Errorf("upload %s: %w", remote, err)
				}
			}
			command := append(append([]string{}, workerCmd...), remote)
			if shell {
				fmt.Println(shellescape.QuoteCommand(command))
				continue
			}
			ps.Steps = append(ps.Steps, wfv1.WorkflowStep{
				Name: fmt.Sprintf("Burst-%d-%s", i, burstID),
				Inline: &wfv1.Template{
					RetryStrategy: &wfv1.RetryStrategy{
						Limit: intOrStringPtr(5),
					},
					Metadata: wfv1.Metadata{
						Annotations: map[string]string{
							"cluster-autoscaler.kubernetes.io/safe-to-evict": "false",
						},
					},
					Container: &k8sv1.Container{
						Name:    "burst",
						Image:   dockerImage,
						Command: command,
					},
				},
			})
		}
		if !shell {
			wf.Spec.Templates[0].Steps = append(wf.Spec.Templates[0].Steps, ps)
			yb, err := yaml.Marshal(wf)
			if err != nil {
				return fmt.Errorf("marshal workflow: %w", err)
			}
			fmt.Println(string(yb))
		}
		return nil
	},
}

func resourcePtr(val string) *resource.Quantity {
	res := resource.MustParse(val)
	return &res
}

var uploadCmd = &cobra.Command{
	Use:   "upload gs://bucket/prefix outputdir",
	Short: "upload product files, plus a zip bundle, to gs://",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		prefix := args[0]
		outputDir := args[1]

		entries, err := os.ReadDir(outputDir)
		if err != nil {
			return fmt.Errorf("read %s: %w", outputDir, err)
		}
		var files []string
		for _, e := range entries {
			if !e.IsDir() {
				files = append(files, filepath.Join(outputDir, e.Name()))
			}
		}
		if len(files) == 0 {
			return fmt.Errorf("%s contains no product files", outputDir)
		}

		if !skipZip {
			zipPath := filepath.Join(outputDir, filepath.Base(outputDir)+".zip")
			if err := zipFiles(zipPath, files); err != nil {
				return fmt.Errorf("bundle outputs: %w", err)
			}
			files = append(files, zipPath)
		}

		pool := gobs.NewPool(uploadWorkers)
		batch := pool.Batch()
		for _, f := range files {
			f := f
			batch.Submit(func() error {
				dst := prefix + "/" + filepath.Base(f)
				if err := adstcl.UploadFromFile(ctx, dst, f); err != nil {
					return fmt.Errorf("upload %s: %w", dst, err)
				}
				log.Logger(ctx).Sugar().Infof("uploaded %s", dst)
				return nil
			})
		}
		return batch.Wait()
	},
}

func zipFiles(zipPath string, files []string) error {
	zf, err := os.Create(zipPath)
	if err != nil {
		return err
	}
	zw := zip.NewWriter(zf)
	for _, f := range files {
		w, err := zw.Create(filepath.Base(f))
		if err != nil {
			zf.Close()
			return err
		}
		r, err := os.Open(f)
		if err != nil {
			zf.Close()
			return err
		}
		if _, err := io.Copy(w, r); err != nil {
			r.Close()
			zf.Close()
			return err
		}
		r.Close()
	}
	if err := zw.Close(); err != nil {
		zf.Close()
		return err
	}
	return zf.Close()
}
