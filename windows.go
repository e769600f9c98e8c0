package accelread

import "math"

// DayWindower computes window occurrence boundaries over a stream of sample
// timestamps. Readers feed it one block of timestamps at a time so the whole
// recording never has to sit in memory ahead of indexing.
//
// Boundary semantics are fixed wall-clock: for a definition (base, period),
// boundaries fall at local times base + k*period for k = 0, 1, 2, ...,
// anchored to the calendar day of the first sample. The first occurrence
// always starts at sample 0, even when the recording begins mid-period. An
// occurrence's Start is the first sample index at or after its boundary;
// Stop is the first index at or after the next boundary, or the total sample
// count for the final occurrence.
type DayWindower struct {
	cfg WindowConfig

	started bool
	n       int   // samples consumed so far
	total   int   // occurrences opened so far
	days    int   // calendar days seen
	lastDay int64 // floor(t/86400) of the previous sample

	trunc    bool
	next     []float64 // next boundary per definition, unix seconds
	open     []bool
	curStart []int
	spans    [][]Span
}

// NewDayWindower validates the configuration and returns a windower with all
// capacity defaults applied.
func NewDayWindower(cfg WindowConfig) (*DayWindower, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	nw := len(cfg.Windows)
	w := &DayWindower{
		cfg:      cfg,
		next:     make([]float64, nw),
		open:     make([]bool, nw),
		curStart: make([]int, nw),
		spans:    make([][]Span, nw),
	}
	for i := range w.spans {
		w.spans[i] = []Span{}
	}
	return w, nil
}

// Extend consumes the next run of sample timestamps (unix seconds,
// monotonically non-decreasing across calls).
func (w *DayWindower) Extend(ts []float64) {
	for _, t := range ts {
		if w.trunc {
			w.n++
			continue
		}
		if !w.started {
			w.start(t)
		}

		day := int64(math.Floor(t / secondsPerDay))
		if day != w.lastDay {
			w.days++
			w.lastDay = day
			if w.days > w.cfg.MaxDays {
				w.truncate()
				w.n++
				continue
			}
		}

		for i := range w.cfg.Windows {
			period := float64(w.cfg.Windows[i].PeriodHours) * secondsPerHour
			for t >= w.next[i] {
				w.cross(i, w.n)
				w.next[i] += period
			}
		}
		w.n++
	}
}

// Finish closes any in-progress occurrences at the total sample count and
// returns the computed index. The windower is not reusable afterwards.
func (w *DayWindower) Finish() WindowIndex {
	for i := range w.open {
		if w.open[i] {
			w.spans[i] = append(w.spans[i], Span{Start: w.curStart[i], Stop: w.n})
			w.open[i] = false
		}
	}
	return WindowIndex{Spans: w.spans, Truncated: w.trunc}
}

// Samples returns the number of timestamps consumed so far.
func (w *DayWindower) Samples() int { return w.n }

func (w *DayWindower) start(t float64) {
	w.started = true
	w.days = 1
	w.lastDay = int64(math.Floor(t / secondsPerDay))
	dayStart := float64(w.lastDay) * secondsPerDay

	for i, def := range w.cfg.Windows {
		b := dayStart + float64(def.BaseHour)*secondsPerHour
		period := float64(def.PeriodHours) * secondsPerHour
		for b <= t {
			b += period
		}
		w.next[i] = b
		if w.total < w.cfg.MaxOccurrences {
			w.open[i] = true
			w.curStart[i] = 0
			w.total++
		} else {
			w.trunc = true
		}
	}
}

// cross closes the occurrence of definition i at sample index idx and opens
// the next one there, subject to the occurrence capacity.
func (w *DayWindower) cross(i, idx int) {
	if w.open[i] {
		w.spans[i] = append(w.spans[i], Span{Start: w.curStart[i], Stop: idx})
		w.open[i] = false
	}
	if w.total >= w.cfg.MaxOccurrences {
		w.trunc = true
		return
	}
	w.open[i] = true
	w.curStart[i] = idx
	w.total++
}

// truncate stops indexing at the day capacity: open occurrences close at the
// current sample so every reported span ends within a fully-indexed day.
func (w *DayWindower) truncate() {
	for i := range w.open {
		if w.open[i] {
			w.spans[i] = append(w.spans[i], Span{Start: w.curStart[i], Stop: w.n})
			w.open[i] = false
		}
	}
	w.trunc = true
}

// ComputeWindows indexes a complete timestamp sequence in one call. It is a
// convenience wrapper over DayWindower for callers that already hold the whole
// recording.
func ComputeWindows(ts []float64, cfg WindowConfig) (WindowIndex, error) {
	w, err := NewDayWindower(cfg)
	if err != nil {
		return WindowIndex{}, err
	}
	w.Extend(ts)
	return w.Finish(), nil
}
