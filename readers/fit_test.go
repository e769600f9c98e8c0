package readers

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tormoder/fit"

	"accelread"
)

// buildFITActivity encodes a minimal FIT activity whose records start at the
// given time, one per second. withTemp leaves the temperature field at its
// invalid sentinel when false.
func buildFITActivity(t *testing.T, start time.Time, count int, withTemp bool) string {
	t.Helper()

	header := fit.NewHeader(fit.V20, true)
	file, err := fit.NewFile(fit.FileTypeActivity, header)
	require.NoError(t, err)
	activity, err := file.Activity()
	require.NoError(t, err)

	event := fit.NewEventMsg()
	event.Timestamp = start
	event.Event = fit.EventTimer
	event.EventType = fit.EventTypeStart
	activity.Events = append(activity.Events, event)

	for i := 0; i < count; i++ {
		record := fit.NewRecordMsg()
		record.Timestamp = start.Add(time.Duration(i) * time.Second)
		if withTemp {
			record.Temperature = 21
		} else {
			record.Temperature = math.MaxInt8
		}
		activity.Records = append(activity.Records, record)
	}

	var buf bytes.Buffer
	require.NoError(t, fit.Encode(&buf, file, binary.LittleEndian))

	path := filepath.Join(t.TempDir(), "sample.fit")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestReadFITWindowsRecords(t *testing.T) {
	start := time.Date(2023, 6, 1, 23, 59, 58, 0, time.UTC)
	path := buildFITActivity(t, start, 5, true)

	rec, err := ReadFIT(path, dayWindow())
	require.NoError(t, err)

	require.Equal(t, "fit", rec.Info.Format)
	require.Equal(t, 0, rec.Info.Axes)
	require.True(t, rec.Info.HasTemperature)
	require.Equal(t, 5, rec.Stream.Len())
	require.Empty(t, rec.Stream.Accel)
	require.InDelta(t, 1.0, rec.Info.SampleRate, 1e-9)
	require.InDelta(t, 21.0, rec.Stream.Temp[0], 1e-9)
	require.InDelta(t, float64(start.Unix()), rec.Stream.Time[0], 1e-9)

	// Two records before midnight, three after.
	require.Len(t, rec.Windows.Spans, 1)
	require.Equal(t, []accelread.Span{{Start: 0, Stop: 2}, {Start: 2, Stop: 5}},
		rec.Windows.Spans[0])
}

func TestReadFITWithoutTemperature(t *testing.T) {
	start := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	path := buildFITActivity(t, start, 3, false)

	rec, err := ReadFIT(path, dayWindow())
	require.NoError(t, err)
	require.False(t, rec.Info.HasTemperature)
	require.Nil(t, rec.Stream.Temp)
	require.Equal(t, 3, rec.Stream.Len())
}

func TestReadFITRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.fit")
	require.NoError(t, os.WriteFile(path, []byte("not a fit file at all"), 0o644))

	_, err := ReadFIT(path, dayWindow())
	require.ErrorIs(t, err, accelread.ErrBadHeader)
}
