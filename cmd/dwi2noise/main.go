// dwi2noise estimates the thermal noise level of a 4-D image series by
// fitting the Marchenko-Pastur distribution to patch-wise PCA eigenspectra.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/itohio/mpnoise/pkg/denoise"
	"github.com/itohio/mpnoise/pkg/denoise/estimator"
	"github.com/itohio/mpnoise/pkg/denoise/kernel"
	"github.com/itohio/mpnoise/pkg/image"
	"github.com/itohio/mpnoise/pkg/interp"
	"github.com/itohio/mpnoise/pkg/logger"
)

type config struct {
	Datatype       string  `yaml:"datatype"`
	Estimator      string  `yaml:"estimator"`
	NoiseIn        string  `yaml:"noise_in"`
	VST            string  `yaml:"vst"`
	Mask           string  `yaml:"mask"`
	Shape          string  `yaml:"shape"`
	Extent         string  `yaml:"extent"`
	RadiusRatio    float64 `yaml:"radius_ratio"`
	Subsample      string  `yaml:"subsample"`
	Demodulate     string  `yaml:"demodulate"`
	Demean         string  `yaml:"demean"`
	Preconditioned string  `yaml:"preconditioned"`
	Rank           string  `yaml:"rank"`
	RankPervoxel   string  `yaml:"rank_pervoxel"`
	MaxDist        string  `yaml:"max_dist"`
	Voxelcount     string  `yaml:"voxelcount"`
	Patchcount     string  `yaml:"patchcount"`
	Spectra        string  `yaml:"spectra"`
	Iterations     int     `yaml:"iterations"`
	Threads        int     `yaml:"threads"`
}

func defaults() config {
	return config{
		Datatype:    "float32",
		Estimator:   "exp2",
		Shape:       "sphere",
		RadiusRatio: 1.0,
		Subsample:   strconv.Itoa(denoise.DefaultSubsampleRatio),
		Demodulate:  "none",
		Demean:      "none",
	}
}

func main() {
	if err := run(); err != nil {
		logger.Log.Error().Err(err).Msg("dwi2noise failed")
		os.Exit(1)
	}
}

func run() error {
	cfg := defaults()
	configPath := flag.String("config", "", "YAML file supplying any of the options below; explicit flags win")
	flag.StringVar(&cfg.Datatype, "datatype", cfg.Datatype, "PCA precision: float32 or float64")
	flag.StringVar(&cfg.Estimator, "estimator", cfg.Estimator, "Noise level estimator: "+strings.Join(estimator.Names, ", "))
	flag.StringVar(&cfg.NoiseIn, "noise_in", cfg.NoiseIn, "Pre-estimated noise level map (required for -estimator import)")
	flag.StringVar(&cfg.VST, "vst", cfg.VST, "Prior noise level map for variance stabilisation")
	flag.StringVar(&cfg.Mask, "mask", cfg.Mask, "Only process voxels within the mask image")
	flag.StringVar(&cfg.Shape, "shape", cfg.Shape, "Patch shape: sphere or cuboid")
	flag.StringVar(&cfg.Extent, "extent", cfg.Extent, "Cuboid extents, e.g. 5 or 5,5,5")
	flag.Float64Var(&cfg.RadiusRatio, "radius_ratio", cfg.RadiusRatio, "Sphere target voxel count as a multiple of the volume count")
	flag.StringVar(&cfg.Subsample, "subsample", cfg.Subsample, "Subsampling factors, e.g. 2 or 2,2,1")
	flag.StringVar(&cfg.Demodulate, "demodulate", cfg.Demodulate, "Phase demodulation for complex input: none, linear or nonlinear")
	flag.StringVar(&cfg.Demean, "demean", cfg.Demean, "Mean regression before PCA: none, volumes or voxels")
	flag.StringVar(&cfg.Preconditioned, "preconditioned", cfg.Preconditioned, "Also write the preconditioned series to this path")
	flag.StringVar(&cfg.Rank, "rank", cfg.Rank, "Export the per-patch signal rank")
	flag.StringVar(&cfg.RankPervoxel, "rank_pervoxel", cfg.RankPervoxel, "Export the summed signal rank over all patches covering each input voxel")
	flag.StringVar(&cfg.MaxDist, "max_dist", cfg.MaxDist, "Export the farthest patch member distance")
	flag.StringVar(&cfg.Voxelcount, "voxelcount", cfg.Voxelcount, "Export the patch voxel count")
	flag.StringVar(&cfg.Patchcount, "patchcount", cfg.Patchcount, "Export the number of patches covering each input voxel")
	flag.StringVar(&cfg.Spectra, "spectra", cfg.Spectra, "Stream patch eigenspectra to a gzip JSON-lines file")
	flag.IntVar(&cfg.Iterations, "iterations", cfg.Iterations, "Iteratively refine the noise map this many times")
	flag.IntVar(&cfg.Threads, "threads", cfg.Threads, "Worker count (default GOMAXPROCS)")
	flag.Usage = usage
	flag.Parse()

	if *configPath != "" {
		merged, err := loadConfig(*configPath, cfg)
		if err != nil {
			return err
		}
		cfg = merged
	}
	if flag.NArg() != 2 {
		usage()
		return fmt.Errorf("expected input and output image arguments")
	}
	return estimate(cfg, flag.Arg(0), flag.Arg(1))
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(),
		"usage: dwi2noise [options] <dwi> <noise>\n\nNoise level estimation using Marchenko-Pastur PCA.\n\n")
	flag.PrintDefaults()
}

// loadConfig layers a YAML file under the flag values: file settings apply
// first, then any flag the user set explicitly is restored on top.
func loadConfig(path string, fromFlags config) (config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return fromFlags, fmt.Errorf("config %s: %w", path, err)
	}
	cfg := defaults()
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fromFlags, fmt.Errorf("config %s: %w", path, err)
	}
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	restore := map[string]func(){
		"datatype":       func() { cfg.Datatype = fromFlags.Datatype },
		"estimator":      func() { cfg.Estimator = fromFlags.Estimator },
		"noise_in":       func() { cfg.NoiseIn = fromFlags.NoiseIn },
		"vst":            func() { cfg.VST = fromFlags.VST },
		"mask":           func() { cfg.Mask = fromFlags.Mask },
		"shape":          func() { cfg.Shape = fromFlags.Shape },
		"extent":         func() { cfg.Extent = fromFlags.Extent },
		"radius_ratio":   func() { cfg.RadiusRatio = fromFlags.RadiusRatio },
		"subsample":      func() { cfg.Subsample = fromFlags.Subsample },
		"demodulate":     func() { cfg.Demodulate = fromFlags.Demodulate },
		"demean":         func() { cfg.Demean = fromFlags.Demean },
		"preconditioned": func() { cfg.Preconditioned = fromFlags.Preconditioned },
		"rank":           func() { cfg.Rank = fromFlags.Rank },
		"rank_pervoxel":  func() { cfg.RankPervoxel = fromFlags.RankPervoxel },
		"max_dist":       func() { cfg.MaxDist = fromFlags.MaxDist },
		"voxelcount":     func() { cfg.Voxelcount = fromFlags.Voxelcount },
		"patchcount":     func() { cfg.Patchcount = fromFlags.Patchcount },
		"spectra":        func() { cfg.Spectra = fromFlags.Spectra },
		"iterations":     func() { cfg.Iterations = fromFlags.Iterations },
		"threads":        func() { cfg.Threads = fromFlags.Threads },
	}
	for name, apply := range restore {
		if set[name] {
			apply()
		}
	}
	return cfg, nil
}

func estimate(cfg config, dwiPath, noisePath string) error {
	runID := uuid.NewString()[:8]
	log := logger.Log.With().Str("run", runID).Logger()

	input, err := image.Load(dwiPath)
	if err != nil {
		return err
	}
	if err := denoise.CheckInput(input); err != nil {
		return fmt.Errorf("%s: input image must be a 4-dimensional series of at least 2 volumes: %w", dwiPath, err)
	}
	hdr := input.Header()
	m := hdr.Size[3]
	log.Info().
		Str("input", dwiPath).
		Ints("size", hdr.Size[:]).
		Str("datatype", hdr.DT.String()).
		Msg("loaded input series")

	factors, err := parseFactors(cfg.Subsample)
	if err != nil {
		return err
	}
	ss, err := denoise.NewSubsample(hdr, factors)
	if err != nil {
		return err
	}

	var mask *image.Mask
	if cfg.Mask != "" {
		maskIm, err := image.Load(cfg.Mask)
		if err != nil {
			return err
		}
		if err := hdr.CheckSameGrid(maskIm.Header(), "mask"); err != nil {
			return fmt.Errorf("%w: %w", denoise.ErrShape, err)
		}
		mask = image.MaskFromImage(maskIm)
	}

	var vst *image.Image
	if cfg.VST != "" {
		if vst, err = image.Load(cfg.VST); err != nil {
			return err
		}
	}
	var noiseIn *image.Image
	if cfg.NoiseIn != "" {
		if cfg.Estimator != "import" {
			log.Warn().Msg("-noise_in has no effect unless -estimator import is specified")
		} else if noiseIn, err = image.Load(cfg.NoiseIn); err != nil {
			return err
		}
	}
	est, err := estimator.New(estimator.Config{Name: cfg.Estimator, NoiseIn: noiseIn, VST: vst})
	if err != nil {
		return err
	}

	krn, err := makeKernel(cfg, hdr, factors)
	if err != nil {
		return err
	}
	krn.SetMask(mask)

	demod, err := denoise.ParseDemodMode(cfg.Demodulate)
	if err != nil {
		return err
	}
	demean, err := denoise.ParseDemeanMode(cfg.Demean)
	if err != nil {
		return err
	}
	pre, err := denoise.NewPrecondition(input, demod, demean, vst)
	if err != nil {
		return err
	}
	work := input
	if !pre.Noop() || workDType(hdr.DT, cfg.Datatype) != hdr.DT {
		workHdr := hdr.Clone()
		workHdr.DT = workDType(hdr.DT, cfg.Datatype)
		if cfg.Preconditioned != "" {
			work, err = image.New(workHdr, cfg.Preconditioned)
		} else {
			work, err = image.Scratch(workHdr, "preconditioned series")
		}
		if err != nil {
			return err
		}
		if err := pre.Apply(input, work); err != nil {
			return err
		}
		if cfg.Preconditioned != "" {
			if err := image.Save(work, cfg.Preconditioned); err != nil {
				return err
			}
		}
	} else if cfg.Preconditioned != "" {
		log.Warn().Msg("-preconditioned ignored: no preconditioning taking place")
	}

	exports := denoise.NewExports(hdr, ss.Header())
	if err := exports.SetNoiseOut(noisePath); err != nil {
		return err
	}
	for _, s := range []struct {
		path string
		set  func(string) error
	}{
		{cfg.Rank, exports.SetRankOutput},
		{cfg.RankPervoxel, exports.SetRankInput},
		{cfg.MaxDist, exports.SetMaxDist},
		{cfg.Voxelcount, exports.SetVoxelcount},
		{cfg.Patchcount, exports.SetPatchcount},
	} {
		if s.path != "" {
			if err := s.set(s.path); err != nil {
				return err
			}
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts := []denoise.Option{denoise.WithMask(mask)}
	if cfg.Threads > 0 {
		opts = append(opts, denoise.WithThreads(cfg.Threads))
	}
	if cfg.Spectra != "" {
		opts = append(opts, denoise.WithSpectra(cfg.Spectra))
	}

	if cfg.Iterations > 1 {
		return runIterative(ctx, cfg, input, mask, est, exports, noisePath, opts)
	}

	if err := denoise.Estimate(ctx, work, ss, krn, est, exports, pre.Rank(), opts...); err != nil {
		exports.Discard()
		return err
	}
	if vst.Valid() {
		cub, err := interp.NewCubic(vst)
		if err != nil {
			return err
		}
		if err := denoise.UnwindVST(exports.NoiseOut, cub); err != nil {
			return err
		}
	}
	if pre.Rank() == 1 {
		denoise.IncrementRankInput(exports, m)
	}
	if err := exports.Save(); err != nil {
		return err
	}
	log.Info().Str("noise", noisePath).Msg("noise map written")
	return nil
}

func runIterative(ctx context.Context, cfg config, input *image.Image, mask *image.Mask,
	est estimator.Estimator, exports *denoise.Exports, noisePath string, opts []denoise.Option) error {
	if exports.RankOutput.Valid() || exports.Patchcount.Valid() {
		logger.Log.Warn().Msg("debug exports are not produced by the iterative driver")
	}
	factors, err := parseFactors(cfg.Subsample)
	if err != nil {
		return err
	}
	schedule := make([]denoise.Iteration, cfg.Iterations)
	for i := range schedule {
		schedule[i] = denoise.Iteration{
			SubsampleRatios:      factors,
			KernelSizeMultiplier: cfg.RadiusRatio,
			SmoothNoiseOut:       i+1 < len(schedule),
		}
	}
	noise, err := denoise.Iterative(ctx, input, mask, est,
		denoise.IterativeConfig{Iterations: schedule}, opts...)
	if err != nil {
		return err
	}
	return image.Save(noise, noisePath)
}

func makeKernel(cfg config, hdr image.Header, factors [3]int) (kernel.Kernel, error) {
	switch cfg.Shape {
	case "", "sphere":
		return kernel.NewSphereRatio(hdr, factors, cfg.RadiusRatio)
	case "cuboid":
		extent := kernel.DefaultCuboidExtent(hdr, factors)
		if cfg.Extent != "" {
			parsed, err := parseFactors(cfg.Extent)
			if err != nil {
				return nil, err
			}
			extent = parsed
		}
		return kernel.NewCuboid(hdr, factors, extent)
	}
	return nil, fmt.Errorf("unknown kernel shape %q", cfg.Shape)
}

// workDType resolves the requested PCA precision against the input type;
// complex input keeps its complex structure at the chosen precision.
func workDType(in image.DType, precision string) image.DType {
	dt := image.Float32
	if precision == "float64" {
		dt = image.Float64
	}
	if in.IsComplex() {
		return dt.Complex()
	}
	return dt
}

// parseFactors accepts "2" or "2,2,1".
func parseFactors(s string) ([3]int, error) {
	var out [3]int
	parts := strings.Split(s, ",")
	switch len(parts) {
	case 1:
		v, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return out, fmt.Errorf("bad factor %q", s)
		}
		out = [3]int{v, v, v}
	case 3:
		for i, p := range parts {
			v, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return out, fmt.Errorf("bad factor %q", s)
			}
			out[i] = v
		}
	default:
		return out, fmt.Errorf("expected 1 or 3 comma-separated integers, got %q", s)
	}
	return out, nil
}
