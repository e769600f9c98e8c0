package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"

	"accelread"
	"accelread/export"
	"accelread/readers"
)

func main() {
	var (
		inPath     = flag.String("in", "", "Path to input recording (.cwa, .bin, .gt3x or .fit)")
		outDir     = flag.String("out", "", "Output directory")
		format     = flag.String("format", "auto", "Input format: auto|cwa|bin|gt3x|fit")
		exportFmt  = flag.String("export", "parquet", "Sample table format: parquet|csv")
		windowFile = flag.String("windows", "", "TOML window configuration file")
		baseHour   = flag.Int("base", 0, "Window base hour (ignored when -windows is set)")
		period     = flag.Int("period", 24, "Window period in hours (ignored when -windows is set)")
		maxDays    = flag.Int("max-days", accelread.DefaultMaxDays, "Maximum calendar days to index")
		maxOcc     = flag.Int("max-occurrences", accelread.DefaultMaxOccurrences, "Maximum window occurrences to index")
		overwrite  = flag.Bool("overwrite", true, "Allow writing into non-empty output directories")
		debug      = flag.Bool("debug", false, "Verbose logging")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s --in recording.cwa --out outdir [--windows windows.toml] [--export parquet|csv]\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	if strings.TrimSpace(*inPath) == "" || strings.TrimSpace(*outDir) == "" {
		flag.Usage()
		os.Exit(2)
	}

	logger, err := newLogger(*debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "accelread: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := loadWindowConfig(*windowFile, *baseHour, *period, *maxDays, *maxOcc)
	if err != nil {
		logger.Fatal("window configuration", zap.Error(err))
	}

	kind := *format
	if kind == "auto" {
		kind, err = detectFormat(*inPath)
		if err != nil {
			logger.Fatal("format detection", zap.Error(err))
		}
	}

	rec, err := decode(kind, *inPath, cfg, logger)
	if err != nil {
		logger.Fatal("decode", zap.String("format", kind), zap.Error(err))
	}
	logger.Info("decoded recording",
		zap.String("format", rec.Info.Format),
		zap.Int("samples", rec.Stream.Len()),
		zap.Int("bad_blocks", rec.Info.BadBlocks),
		zap.Bool("rate_drift", rec.Info.RateDrift),
		zap.Bool("windows_truncated", rec.Windows.Truncated))

	result, err := export.WriteRecording(rec, *inPath, export.Options{
		OutDir:    *outDir,
		Format:    *exportFmt,
		Overwrite: *overwrite,
	})
	if err != nil {
		logger.Fatal("export", zap.Error(err))
	}
	logger.Info("export complete",
		zap.String("run_id", result.RunID),
		zap.String("samples", result.SamplesPath),
		zap.String("manifest", result.ManifestPath),
		zap.String("windows", result.WindowsPath))
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func loadWindowConfig(path string, baseHour, period, maxDays, maxOcc int) (accelread.WindowConfig, error) {
	cfg := accelread.WindowConfig{
		Windows:        []accelread.Window{{BaseHour: baseHour, PeriodHours: period}},
		MaxDays:        maxDays,
		MaxOccurrences: maxOcc,
	}
	if path != "" {
		cfg = accelread.WindowConfig{MaxDays: maxDays, MaxOccurrences: maxOcc}
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load %s: %w", path, err)
		}
	}
	cfg = cfg.WithDefaults()
	return cfg, cfg.Validate()
}

func decode(kind, path string, cfg accelread.WindowConfig, logger *zap.Logger) (*accelread.Recording, error) {
	opt := readers.WithLogger(logger)
	switch kind {
	case "cwa":
		return readers.ReadAxivity(path, cfg, opt)
	case "bin":
		return readers.ReadGeneActiv(path, cfg, opt)
	case "gt3x":
		return readers.ReadActiGraph(path, cfg, opt)
	case "fit":
		return readers.ReadFIT(path, cfg, opt)
	default:
		return nil, fmt.Errorf("unknown format %q", kind)
	}
}

// detectFormat sniffs the container signature, falling back to the file
// extension.
func detectFormat(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	head := make([]byte, 16)
	n, _ := f.Read(head)
	head = head[:n]

	switch {
	case n >= 2 && head[0] == 'M' && head[1] == 'D':
		return "cwa", nil
	case n >= 4 && head[0] == 'P' && head[1] == 'K' && head[2] == 0x03 && head[3] == 0x04:
		return "gt3x", nil
	case n >= 12 && string(head[8:12]) == ".FIT":
		return "fit", nil
	case n >= 6 && string(head[:6]) == "Device":
		return "bin", nil
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".cwa":
		return "cwa", nil
	case ".bin":
		return "bin", nil
	case ".gt3x":
		return "gt3x", nil
	case ".fit":
		return "fit", nil
	}
	return "", fmt.Errorf("cannot determine format of %s", path)
}
