package accelread

const (
	// DefaultMaxDays caps the number of calendar days indexed per recording.
	DefaultMaxDays = 25

	// DefaultMaxOccurrences caps the total number of window occurrences
	// indexed across all window definitions.
	DefaultMaxOccurrences = 200

	secondsPerHour = 3600.0
	secondsPerDay  = 86400.0
)

// Window is one recurring time-of-day segmentation rule: occurrences start at
// BaseHour local time and repeat every PeriodHours.
type Window struct {
	BaseHour    int `json:"base_hour" toml:"base_hour"`
	PeriodHours int `json:"period_hours" toml:"period_hours"`
}

// WindowConfig is the caller-supplied windowing configuration. It is immutable
// once handed to a reader.
type WindowConfig struct {
	Windows        []Window `json:"windows" toml:"window"`
	MaxDays        int      `json:"max_days" toml:"max_days"`
	MaxOccurrences int      `json:"max_occurrences" toml:"max_occurrences"`
}

// WithDefaults fills zero-valued capacity fields.
func (c WindowConfig) WithDefaults() WindowConfig {
	if c.MaxDays == 0 {
		c.MaxDays = DefaultMaxDays
	}
	if c.MaxOccurrences == 0 {
		c.MaxOccurrences = DefaultMaxOccurrences
	}
	return c
}

// Validate checks window definition invariants.
func (c WindowConfig) Validate() error {
	for _, w := range c.Windows {
		if w.BaseHour < 0 || w.BaseHour > 23 {
			return errBaseHour(w.BaseHour)
		}
		if w.PeriodHours <= 0 {
			return errPeriod(w.PeriodHours)
		}
	}
	if c.MaxDays < 0 || c.MaxOccurrences < 0 {
		return errCapacityConfig
	}
	return nil
}

// Span is one window occurrence as a half-open sample index range
// [Start, Stop).
type Span struct {
	Start int `json:"start"`
	Stop  int `json:"stop"`
}

// WindowIndex holds, per window definition, the occurrence spans computed
// across the recording. Truncated reports that MaxDays or MaxOccurrences was
// reached and later occurrences were not indexed.
type WindowIndex struct {
	Spans     [][]Span `json:"spans"`
	Truncated bool     `json:"truncated"`
}

// SampleStream carries the decoded channel arrays. All populated channels
// share the same sample-index space: len(Time) samples, Accel interleaved
// x,y,z with len == 3*len(Time). Temp and Light are empty when the device has
// no such channel, otherwise one entry per sample.
type SampleStream struct {
	Time  []float64 `json:"-"`
	Accel []float64 `json:"-"`
	Temp  []float64 `json:"-"`
	Light []float64 `json:"-"`
}

// Len returns the number of decoded samples.
func (s *SampleStream) Len() int { return len(s.Time) }

// AccelAt returns the three acceleration components of sample i.
func (s *SampleStream) AccelAt(i int) (x, y, z float64) {
	return s.Accel[3*i], s.Accel[3*i+1], s.Accel[3*i+2]
}

// DeviceInfo is format metadata built from the file header. Readers populate
// it once during the header read; the anomaly counters are the only fields
// that change during block decoding.
type DeviceInfo struct {
	Format     string  `json:"format"`
	DeviceID   int64   `json:"device_id,omitempty"`
	SessionID  int64   `json:"session_id,omitempty"`
	Serial     string  `json:"serial,omitempty"`
	Firmware   string  `json:"firmware,omitempty"`
	SampleRate float64 `json:"sample_rate"`
	Axes       int     `json:"axes"`

	HasTemperature bool `json:"has_temperature"`
	HasLight       bool `json:"has_light"`

	// GeneActiv per-axis calibration and scale factors.
	Gain      [3]float64 `json:"gain,omitempty"`
	Offset    [3]float64 `json:"offset,omitempty"`
	VoltScale float64    `json:"volt_scale,omitempty"`
	LuxScale  float64    `json:"lux_scale,omitempty"`

	// ActiGraph raw-count divisor.
	AccelScale float64 `json:"accel_scale,omitempty"`

	// ActiGraph session timestamps, unix seconds.
	StartTime    float64 `json:"start_time,omitempty"`
	StopTime     float64 `json:"stop_time,omitempty"`
	DownloadTime float64 `json:"download_time,omitempty"`

	// BlockCount is the number of blocks or pages the header declares.
	BlockCount int `json:"block_count"`

	// BadBlocks counts blocks skipped for checksum or structural failures.
	BadBlocks int `json:"bad_blocks"`

	// RateDrift reports that at least one block declared a sample rate
	// different from the header's.
	RateDrift bool `json:"rate_drift"`
}

// Recording is the output record of one decoded file.
type Recording struct {
	Info    DeviceInfo   `json:"info"`
	Stream  SampleStream `json:"-"`
	Windows WindowIndex  `json:"windows"`
}
