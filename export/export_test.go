package export

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"accelread"
)

func testRecording(n int) *accelread.Recording {
	rec := &accelread.Recording{
		Info: accelread.DeviceInfo{
			Format:         "geneactiv",
			SampleRate:     100,
			Axes:           3,
			HasTemperature: true,
		},
		Windows: accelread.WindowIndex{
			Spans:     [][]accelread.Span{{{Start: 0, Stop: n}}},
			Truncated: true,
		},
	}
	for i := 0; i < n; i++ {
		rec.Stream.Time = append(rec.Stream.Time, 1e9+float64(i)*0.01)
		rec.Stream.Accel = append(rec.Stream.Accel, 1, 0, -1)
		rec.Stream.Temp = append(rec.Stream.Temp, 21.5)
	}
	return rec
}

func TestWriteRecordingCSVBundle(t *testing.T) {
	rec := testRecording(10)
	dir := filepath.Join(t.TempDir(), "out")

	res, err := WriteRecording(rec, "sample.bin", Options{OutDir: dir, Format: "csv"})
	require.NoError(t, err)
	require.NotEmpty(t, res.RunID)
	require.Equal(t, filepath.Join(dir, "samples.csv"), res.SamplesPath)

	f, err := os.Open(res.SamplesPath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 11) // header + one row per sample
	require.Equal(t, []string{"ts", "accel_x", "accel_y", "accel_z", "temperature_c", "light_lux"}, rows[0])
	require.Equal(t, "1.000000", rows[1][1])
	require.Equal(t, "-1.000000", rows[1][3])
	require.Equal(t, "21.500000", rows[1][4])
	require.Equal(t, "", rows[1][5]) // no light channel

	raw, err := os.ReadFile(res.ManifestPath)
	require.NoError(t, err)
	var m Manifest
	require.NoError(t, json.Unmarshal(raw, &m))
	require.Equal(t, res.RunID, m.RunID)
	require.Equal(t, "sample.bin", m.SourceFile)
	require.Equal(t, 10, m.SampleCount)
	require.Equal(t, "geneactiv", m.Info.Format)
	require.True(t, m.Truncated)

	raw, err = os.ReadFile(res.WindowsPath)
	require.NoError(t, err)
	var w accelread.WindowIndex
	require.NoError(t, json.Unmarshal(raw, &w))
	require.Equal(t, rec.Windows, w)
}

func TestWriteRecordingParquet(t *testing.T) {
	rec := testRecording(5)
	dir := filepath.Join(t.TempDir(), "out")

	res, err := WriteRecording(rec, "sample.cwa", Options{OutDir: dir})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "samples.parquet"), res.SamplesPath)

	st, err := os.Stat(res.SamplesPath)
	require.NoError(t, err)
	require.Greater(t, st.Size(), int64(0))
}

func TestWriteRecordingRefusesDirtyDir(t *testing.T) {
	rec := testRecording(1)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "leftover.txt"), []byte("x"), 0o644))

	_, err := WriteRecording(rec, "sample.cwa", Options{OutDir: dir, Format: "csv"})
	require.Error(t, err)

	_, err = WriteRecording(rec, "sample.cwa", Options{OutDir: dir, Format: "csv", Overwrite: true})
	require.NoError(t, err)
}

func TestWriteRecordingRejectsBadFormat(t *testing.T) {
	_, err := WriteRecording(testRecording(1), "sample.cwa",
		Options{OutDir: t.TempDir(), Format: "xlsx"})
	require.Error(t, err)
}
