package readers

import (
	"fmt"
	"math"
	"os"

	"github.com/tormoder/fit"

	"accelread"
)

// Timestamps handed to the windower per batch.
const fitChunk = 1024

// ReadFIT adapts a FIT activity recording to the same day-windowed output
// shape as the raw binary decoders. FIT activity records carry no raw
// acceleration, so the stream holds timestamps and, where the device logged
// it, temperature; the metadata reports zero axes. This gives FIT wearables
// the same per-day slicing without a format-specific windowing path.
func ReadFIT(path string, cfg accelread.WindowConfig, opts ...Option) (*accelread.Recording, error) {
	_ = applyOptions(opts)

	win, err := accelread.NewDayWindower(cfg)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fit file: %w", err)
	}
	defer f.Close()

	decoded, err := fit.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: fit decode: %v", accelread.ErrBadHeader, err)
	}
	activity, err := decoded.Activity()
	if err != nil {
		return nil, fmt.Errorf("%w: fit activity expected: %v", accelread.ErrBadHeader, err)
	}

	stream := accelread.SampleStream{}
	hasTemp := false
	for _, rec := range activity.Records {
		if rec == nil {
			continue
		}
		ts := rec.Timestamp
		if ts.IsZero() || fit.IsBaseTime(ts) {
			continue
		}
		stream.Time = append(stream.Time, float64(ts.UnixNano())/1e9)
		if rec.Temperature != math.MaxInt8 {
			hasTemp = true
			stream.Temp = append(stream.Temp, float64(rec.Temperature))
		} else {
			stream.Temp = append(stream.Temp, 0)
		}
	}
	if !hasTemp {
		stream.Temp = nil
	}

	for off := 0; off < len(stream.Time); off += fitChunk {
		end := off + fitChunk
		if end > len(stream.Time) {
			end = len(stream.Time)
		}
		win.Extend(stream.Time[off:end])
	}

	info := accelread.DeviceInfo{
		Format:         "fit",
		Axes:           0,
		HasTemperature: hasTemp,
		SampleRate:     fitRate(stream.Time),
		BlockCount:     len(stream.Time),
	}
	return &accelread.Recording{
		Info:    info,
		Stream:  stream,
		Windows: win.Finish(),
	}, nil
}

// fitRate estimates the record cadence from the stream span; FIT headers do
// not declare one.
func fitRate(ts []float64) float64 {
	if len(ts) < 2 {
		return 0
	}
	span := ts[len(ts)-1] - ts[0]
	if span <= 0 {
		return 0
	}
	return float64(len(ts)-1) / span
}
