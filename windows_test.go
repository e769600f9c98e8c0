package accelread

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func seq(start float64, n int, fs float64) []float64 {
	ts := make([]float64, n)
	for i := range ts {
		ts[i] = start + float64(i)/fs
	}
	return ts
}

func TestComputeWindowsMidnightBoundary(t *testing.T) {
	// 300 samples at 100 Hz starting one second before midnight: the day
	// boundary falls exactly at sample 100.
	day := 5.0 * secondsPerDay
	ts := seq(day-1.0, 300, 100)

	idx, err := ComputeWindows(ts, WindowConfig{
		Windows: []Window{{BaseHour: 0, PeriodHours: 24}},
	})
	require.NoError(t, err)
	require.False(t, idx.Truncated)
	require.Len(t, idx.Spans, 1)
	require.Equal(t, []Span{{Start: 0, Stop: 100}, {Start: 100, Stop: 300}}, idx.Spans[0])
}

func TestComputeWindowsEmptyInput(t *testing.T) {
	idx, err := ComputeWindows(nil, WindowConfig{
		Windows: []Window{{BaseHour: 0, PeriodHours: 24}},
	})
	require.NoError(t, err)
	require.False(t, idx.Truncated)
	require.Empty(t, idx.Spans[0])
}

func TestComputeWindowsPeriodLongerThanRecording(t *testing.T) {
	ts := seq(1000, 500, 50)
	idx, err := ComputeWindows(ts, WindowConfig{
		Windows: []Window{{BaseHour: 0, PeriodHours: 48}},
	})
	require.NoError(t, err)
	require.Equal(t, []Span{{Start: 0, Stop: 500}}, idx.Spans[0])
}

func TestComputeWindowsMultipleDefinitions(t *testing.T) {
	// Hourly samples across two full days starting at midnight.
	ts := seq(10*secondsPerDay, 48, 1.0/secondsPerHour)

	idx, err := ComputeWindows(ts, WindowConfig{
		Windows: []Window{
			{BaseHour: 0, PeriodHours: 24},
			{BaseHour: 12, PeriodHours: 24},
		},
	})
	require.NoError(t, err)
	require.Len(t, idx.Spans, 2)

	// Midnight-based: the first sample sits on its boundary, so the next
	// crossing is the following midnight.
	require.Equal(t, []Span{{Start: 0, Stop: 24}, {Start: 24, Stop: 48}}, idx.Spans[0])
	// Noon-based: crossings at hours 12 and 36.
	require.Equal(t, []Span{{Start: 0, Stop: 12}, {Start: 12, Stop: 36}, {Start: 36, Stop: 48}}, idx.Spans[1])
}

func TestComputeWindowsOccurrenceCapacity(t *testing.T) {
	ts := seq(10*secondsPerDay, 72, 1.0/secondsPerHour)

	idx, err := ComputeWindows(ts, WindowConfig{
		Windows:        []Window{{BaseHour: 0, PeriodHours: 24}},
		MaxOccurrences: 2,
	})
	require.NoError(t, err)
	require.True(t, idx.Truncated)
	require.Equal(t, []Span{{Start: 0, Stop: 24}, {Start: 24, Stop: 48}}, idx.Spans[0])
}

func TestComputeWindowsDayCapacity(t *testing.T) {
	ts := seq(10*secondsPerDay, 72, 1.0/secondsPerHour)

	idx, err := ComputeWindows(ts, WindowConfig{
		Windows: []Window{{BaseHour: 0, PeriodHours: 24}},
		MaxDays: 1,
	})
	require.NoError(t, err)
	require.True(t, idx.Truncated)
	require.Equal(t, []Span{{Start: 0, Stop: 24}}, idx.Spans[0])
}

func TestDayWindowerIncrementalMatchesBulk(t *testing.T) {
	ts := seq(3*secondsPerDay+7*secondsPerHour, 5000, 10)

	cfg := WindowConfig{Windows: []Window{{BaseHour: 6, PeriodHours: 8}}}
	bulk, err := ComputeWindows(ts, cfg)
	require.NoError(t, err)

	w, err := NewDayWindower(cfg)
	require.NoError(t, err)
	for off := 0; off < len(ts); off += 123 {
		end := off + 123
		if end > len(ts) {
			end = len(ts)
		}
		w.Extend(ts[off:end])
	}
	require.Equal(t, bulk, w.Finish())
}

func TestWindowIndexBoundsInvariant(t *testing.T) {
	ts := seq(secondsPerDay/2, 10000, 25)
	cfg := WindowConfig{Windows: []Window{
		{BaseHour: 0, PeriodHours: 24},
		{BaseHour: 3, PeriodHours: 5},
	}}
	idx, err := ComputeWindows(ts, cfg)
	require.NoError(t, err)

	for _, spans := range idx.Spans {
		prev := Span{}
		for _, sp := range spans {
			require.LessOrEqual(t, sp.Start, sp.Stop)
			require.LessOrEqual(t, sp.Stop, len(ts))
			require.GreaterOrEqual(t, sp.Start, prev.Start)
			require.GreaterOrEqual(t, sp.Stop, prev.Stop)
			prev = sp
		}
	}
}

func TestWindowConfigValidate(t *testing.T) {
	require.Error(t, WindowConfig{Windows: []Window{{BaseHour: 24, PeriodHours: 24}}}.Validate())
	require.Error(t, WindowConfig{Windows: []Window{{BaseHour: -1, PeriodHours: 24}}}.Validate())
	require.Error(t, WindowConfig{Windows: []Window{{BaseHour: 0, PeriodHours: 0}}}.Validate())
	require.NoError(t, WindowConfig{Windows: []Window{{BaseHour: 0, PeriodHours: 24}}}.Validate())
}
