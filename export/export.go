// Package export writes decoded recordings to disk as a columnar sample
// table plus JSON sidecars for the device metadata and window index.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"accelread"
)

// Options configures one export.
type Options struct {
	OutDir    string
	Format    string // parquet|csv
	Overwrite bool
}

// Result lists the generated files.
type Result struct {
	RunID        string `json:"run_id"`
	OutputDir    string `json:"output_dir"`
	ManifestPath string `json:"manifest_path"`
	SamplesPath  string `json:"samples_path"`
	WindowsPath  string `json:"windows_path"`
}

// Manifest captures export metadata.
type Manifest struct {
	RunID       string               `json:"run_id"`
	GeneratedAt time.Time            `json:"generated_at"`
	SourceFile  string               `json:"source_file"`
	SampleCount int                  `json:"sample_count"`
	Info        accelread.DeviceInfo `json:"info"`
	Truncated   bool                 `json:"windows_truncated"`
}

type sampleRow struct {
	TS    float64 `parquet:"name=ts, type=DOUBLE"`
	AX    float64 `parquet:"name=accel_x, type=DOUBLE"`
	AY    float64 `parquet:"name=accel_y, type=DOUBLE"`
	AZ    float64 `parquet:"name=accel_z, type=DOUBLE"`
	Temp  float64 `parquet:"name=temperature_c, type=DOUBLE"`
	Light float64 `parquet:"name=light_lux, type=DOUBLE"`
}

// WriteRecording writes one decoded recording as an export bundle:
// manifest.json, windows.json and samples.parquet (or samples.csv).
func WriteRecording(rec *accelread.Recording, source string, opts Options) (*Result, error) {
	if strings.TrimSpace(opts.OutDir) == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = "parquet"
	}
	if format != "parquet" && format != "csv" {
		return nil, fmt.Errorf("unsupported format %q (expected parquet|csv)", format)
	}
	if err := ensureOutputDir(opts.OutDir, opts.Overwrite); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	samplesPath := filepath.Join(opts.OutDir, "samples."+format)
	var err error
	switch format {
	case "csv":
		err = writeSamplesCSV(samplesPath, &rec.Stream)
	case "parquet":
		err = writeSamplesParquet(samplesPath, &rec.Stream)
	}
	if err != nil {
		return nil, fmt.Errorf("write samples: %w", err)
	}

	windowsPath := filepath.Join(opts.OutDir, "windows.json")
	if err := writeJSON(windowsPath, rec.Windows); err != nil {
		return nil, fmt.Errorf("write windows.json: %w", err)
	}

	manifest := Manifest{
		RunID:       runID,
		GeneratedAt: time.Now().UTC(),
		SourceFile:  source,
		SampleCount: rec.Stream.Len(),
		Info:        rec.Info,
		Truncated:   rec.Windows.Truncated,
	}
	manifestPath := filepath.Join(opts.OutDir, "manifest.json")
	if err := writeJSON(manifestPath, manifest); err != nil {
		return nil, fmt.Errorf("write manifest.json: %w", err)
	}

	return &Result{
		RunID:        runID,
		OutputDir:    opts.OutDir,
		ManifestPath: manifestPath,
		SamplesPath:  samplesPath,
		WindowsPath:  windowsPath,
	}, nil
}

func rowAt(s *accelread.SampleStream, i int) sampleRow {
	row := sampleRow{
		TS:    s.Time[i],
		Temp:  math.NaN(),
		Light: math.NaN(),
	}
	if len(s.Accel) > 0 {
		row.AX, row.AY, row.AZ = s.AccelAt(i)
	} else {
		row.AX, row.AY, row.AZ = math.NaN(), math.NaN(), math.NaN()
	}
	if len(s.Temp) > 0 {
		row.Temp = s.Temp[i]
	}
	if len(s.Light) > 0 {
		row.Light = s.Light[i]
	}
	return row
}

func writeSamplesParquet(path string, s *accelread.SampleStream) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return err
	}
	pw, err := writer.NewParquetWriter(fw, new(sampleRow), 4)
	if err != nil {
		return err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for i := 0; i < s.Len(); i++ {
		if err := pw.Write(rowAt(s, i)); err != nil {
			_ = pw.WriteStop()
			_ = fw.Close()
			return err
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = fw.Close()
		return err
	}
	return fw.Close()
}

func writeSamplesCSV(path string, s *accelread.SampleStream) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"ts", "accel_x", "accel_y", "accel_z", "temperature_c", "light_lux"}); err != nil {
		return err
	}
	for i := 0; i < s.Len(); i++ {
		row := rowAt(s, i)
		if err := w.Write([]string{
			formatFloat(row.TS),
			formatFloat(row.AX),
			formatFloat(row.AY),
			formatFloat(row.AZ),
			formatFloat(row.Temp),
			formatFloat(row.Light),
		}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func ensureOutputDir(dir string, overwrite bool) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	if len(entries) > 0 && !overwrite {
		return fmt.Errorf("output directory %s is not empty", dir)
	}
	return nil
}
