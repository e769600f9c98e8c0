package readers

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"accelread"
)

const (
	// Every GeneActiv page carries exactly 300 samples.
	gnPageSamples = 300

	// One sample is 48 bits, so 12 hex characters; a page's raw data line
	// must be at least this long.
	gnPageDataChars = gnPageSamples * 12

	gnMaxPages = 1 << 20
)

type geneactivReader struct {
	sc     *bufio.Scanner
	log    *zap.Logger
	info   accelread.DeviceInfo
	stream accelread.SampleStream
	win    *accelread.DayWindower
	tsBuf  []float64

	warnedDrift bool
}

// ReadGeneActiv decodes a GeneActiv BIN recording into a day-windowed
// recording. The container is a structured text preamble followed by pages of
// hex-encoded raw samples; calibration from the preamble converts raw counts
// to g, lux and degrees C.
func ReadGeneActiv(path string, cfg accelread.WindowConfig, opts ...Option) (*accelread.Recording, error) {
	o := applyOptions(opts)

	win, err := accelread.NewDayWindower(cfg)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bin file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	r := &geneactivReader{sc: sc, log: o.logger, win: win}
	if err := r.readHeader(); err != nil {
		return nil, err
	}
	for page := 0; page < r.info.BlockCount; page++ {
		more, err := r.readPage()
		if err != nil {
			return nil, err
		}
		if !more {
			break
		}
	}

	return &accelread.Recording{
		Info:    r.info,
		Stream:  r.stream,
		Windows: r.win.Finish(),
	}, nil
}

// readHeader scans the text preamble up to the first "Recorded Data" marker,
// collecting the sample rate, per-axis calibration pairs, voltage and lux
// scale factors and the declared page count. A declared-but-unparseable
// numeric field is fatal.
func (r *geneactivReader) readHeader() error {
	var (
		haveFS, havePages    bool
		haveGain, haveOffset [3]bool
		haveVolts, haveLux   bool
		fs, volts, lux       float64
		gain, offset         [3]float64
		npages               int
	)

	for r.sc.Scan() {
		line := r.sc.Text()
		if line == "Recorded Data" {
			break
		}
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		var err error
		switch key {
		case "Measurement Frequency":
			fs, err = parseLeadingFloat(value)
			haveFS = true
		case "x gain":
			gain[0], err = parseLeadingFloat(value)
			haveGain[0] = true
		case "y gain":
			gain[1], err = parseLeadingFloat(value)
			haveGain[1] = true
		case "z gain":
			gain[2], err = parseLeadingFloat(value)
			haveGain[2] = true
		case "x offset":
			offset[0], err = parseLeadingFloat(value)
			haveOffset[0] = true
		case "y offset":
			offset[1], err = parseLeadingFloat(value)
			haveOffset[1] = true
		case "z offset":
			offset[2], err = parseLeadingFloat(value)
			haveOffset[2] = true
		case "Volts":
			volts, err = parseLeadingFloat(value)
			haveVolts = true
		case "Lux":
			lux, err = parseLeadingFloat(value)
			haveLux = true
		case "Number of Pages":
			var v float64
			v, err = parseLeadingFloat(value)
			npages = int(v)
			havePages = true
		}
		if err != nil {
			return fmt.Errorf("%w: bin field %q: %v", accelread.ErrBadHeader, key, err)
		}
	}
	if err := r.sc.Err(); err != nil {
		return fmt.Errorf("%w: bin preamble read: %v", accelread.ErrBadHeader, err)
	}

	complete := haveFS && havePages && haveVolts && haveLux
	for i := 0; i < 3; i++ {
		complete = complete && haveGain[i] && haveOffset[i]
	}
	if !complete {
		return fmt.Errorf("%w: bin preamble incomplete", accelread.ErrBadHeader)
	}
	if fs <= 0 {
		return fmt.Errorf("%w: bin frequency %v", accelread.ErrBadHeader, fs)
	}
	if volts == 0 {
		return fmt.Errorf("%w: bin volts scale is zero", accelread.ErrBadHeader)
	}
	if npages < 0 || npages > gnMaxPages {
		return fmt.Errorf("%w: bin declares %d pages", accelread.ErrAllocation, npages)
	}

	r.info = accelread.DeviceInfo{
		Format:         "geneactiv",
		SampleRate:     fs,
		Axes:           3,
		HasTemperature: true,
		HasLight:       true,
		Gain:           gain,
		Offset:         offset,
		VoltScale:      volts,
		LuxScale:       lux,
		BlockCount:     npages,
	}
	r.stream.Time = make([]float64, 0, npages*gnPageSamples)
	r.stream.Accel = make([]float64, 0, 3*npages*gnPageSamples)
	r.stream.Temp = make([]float64, 0, npages*gnPageSamples)
	r.stream.Light = make([]float64, 0, npages*gnPageSamples)
	r.tsBuf = make([]float64, 0, gnPageSamples)
	return nil
}

// readPage consumes one page: its metadata lines, then the raw hex data line.
// The first call is positioned just past a "Recorded Data" marker; later
// pages re-read their own marker. Returns false at end of input.
func (r *geneactivReader) readPage() (bool, error) {
	var (
		pageTime float64
		pageFS   float64
		pageTemp float64
		haveTime bool
		data     string
	)

	for {
		if !r.sc.Scan() {
			if err := r.sc.Err(); err != nil {
				return false, fmt.Errorf("bin page read: %w", err)
			}
			if haveTime {
				// Metadata without a data line: the page is cut off.
				return false, fmt.Errorf("%w: page ends before sample data", accelread.ErrTruncatedBlockData)
			}
			return false, nil
		}
		line := r.sc.Text()
		if line == "" || line == "Recorded Data" {
			continue
		}
		key, value, found := strings.Cut(line, ":")
		if !found {
			data = line
			break
		}
		switch key {
		case "Page Time":
			t, err := parsePageTime(line)
			if err != nil {
				return false, fmt.Errorf("%w: %v", accelread.ErrBlockTimestamp, err)
			}
			pageTime = t
			haveTime = true
		case "Temperature":
			pageTemp, _ = parseLeadingFloat(value)
		case "Measurement Frequency":
			pageFS, _ = parseLeadingFloat(value)
		}
	}
	if !haveTime {
		return false, fmt.Errorf("%w: page has no Page Time line", accelread.ErrBlockTimestamp)
	}
	if len(data) < gnPageDataChars {
		return false, fmt.Errorf("%w: page data %d chars, want %d", accelread.ErrTruncatedBlockData, len(data), gnPageDataChars)
	}
	if pageFS != 0 && pageFS != r.info.SampleRate {
		// Per-page rate drift is observable here because pages carry their
		// own timestamps; decoding continues at the header rate.
		r.info.RateDrift = true
		if !r.warnedDrift {
			r.warnedDrift = true
			r.log.Warn("bin page sample rate differs from header",
				zap.Float64("header_rate", r.info.SampleRate),
				zap.Float64("page_rate", pageFS))
		}
	}

	raw, err := hex.DecodeString(data[:gnPageDataChars])
	if err != nil {
		return false, fmt.Errorf("%w: page data not hex: %v", accelread.ErrTruncatedBlockData, err)
	}

	r.tsBuf = r.tsBuf[:0]
	for i := 0; i < gnPageSamples; i++ {
		x, y, z, light := gnUnpack(raw[6*i : 6*i+6])
		t := pageTime + float64(i)/r.info.SampleRate
		r.stream.Time = append(r.stream.Time, t)
		r.stream.Accel = append(r.stream.Accel,
			float64(x)*r.info.Gain[0]+r.info.Offset[0],
			float64(y)*r.info.Gain[1]+r.info.Offset[1],
			float64(z)*r.info.Gain[2]+r.info.Offset[2])
		r.stream.Light = append(r.stream.Light, float64(light)*r.info.LuxScale/r.info.VoltScale)
		r.stream.Temp = append(r.stream.Temp, pageTemp)
		r.tsBuf = append(r.tsBuf, t)
	}
	r.win.Extend(r.tsBuf)
	return true, nil
}

// gnUnpack splits one 48-bit sample: x, y, z as signed 12-bit values, then a
// 10-bit light reading; the trailing button/reserved bits are dropped.
func gnUnpack(b []byte) (x, y, z int16, light uint16) {
	x = sign12(uint16(b[0])<<4 | uint16(b[1])>>4)
	y = sign12(uint16(b[1]&0x0F)<<8 | uint16(b[2]))
	z = sign12(uint16(b[3])<<4 | uint16(b[4])>>4)
	light = uint16(b[4]&0x0F)<<6 | uint16(b[5])>>2
	return x, y, z, light
}

func sign12(v uint16) int16 {
	return int16(v<<4) >> 4
}

// parsePageTime reads a "Page Time:YYYY-MM-DD HH:MM:SS:mmm" line using the
// fixed column layout the devices write.
func parsePageTime(line string) (float64, error) {
	if len(line) < 33 {
		return 0, fmt.Errorf("page time line too short: %q", line)
	}
	fields := [7]struct{ lo, hi int }{
		{10, 14}, // year
		{15, 17}, // month
		{18, 20}, // day
		{21, 23}, // hour
		{24, 26}, // minute
		{27, 29}, // second
		{30, 33}, // millisecond
	}
	var v [7]int
	for i, fd := range fields {
		n, err := strconv.Atoi(line[fd.lo:fd.hi])
		if err != nil {
			return 0, fmt.Errorf("page time field %d: %q", i, line[fd.lo:fd.hi])
		}
		v[i] = n
	}
	if v[1] < 1 || v[1] > 12 || v[2] < 1 || v[2] > 31 {
		return 0, fmt.Errorf("page time out of range: %q", line)
	}
	t := time.Date(v[0], time.Month(v[1]), v[2], v[3], v[4], v[5], v[6]*int(time.Millisecond), time.UTC)
	return float64(t.UnixNano()) / 1e9, nil
}

// parseLeadingFloat parses the first token of a header value, tolerating
// trailing units such as "100 Hz" but not malformed numbers.
func parseLeadingFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if tok, _, found := strings.Cut(s, " "); found {
		s = tok
	}
	return strconv.ParseFloat(s, 64)
}
