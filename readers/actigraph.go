package readers

import (
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"

	"accelread"
)

const (
	agInfoName     = "info.txt"
	agLogName      = "log.bin"
	agActivityName = "activity.bin"
	agLuxName      = "lux.bin"

	agRecordSep = 0x1E

	agTypeActivity  = 0x00 // 12-bit packed y,x,z
	agTypeActivity2 = 0x1A // little-endian int16 x,y,z

	// .NET ticks: 100ns units since 0001-01-01; unix epoch offset below.
	agEpochTicks     = 621355968000000000
	agTicksPerSecond = 1e7

	agMaxSamples = 1 << 28

	// Samples handed to the windower per batch when decoding the legacy
	// monolithic activity file.
	agLegacyChunk = 3600
)

type actigraphReader struct {
	log    *zap.Logger
	info   accelread.DeviceInfo
	stream accelread.SampleStream
	win    *accelread.DayWindower
	tsBuf  []float64
}

// ReadActiGraph decodes an ActiGraph GT3X container. The container is a zip
// archive holding a metadata log plus binary activity logs; whether the
// legacy (monolithic activity file) or current (record-structured log)
// layout applies is detected from the archive contents.
func ReadActiGraph(path string, cfg accelread.WindowConfig, opts ...Option) (*accelread.Recording, error) {
	o := applyOptions(opts)

	win, err := accelread.NewDayWindower(cfg)
	if err != nil {
		return nil, err
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: gt3x archive: %v", accelread.ErrInfoOpen, err)
	}
	defer zr.Close()

	r := &actigraphReader{log: o.logger, win: win}
	if err := r.readInfo(&zr.Reader); err != nil {
		return nil, err
	}

	activity := zipEntry(&zr.Reader, agActivityName)
	logEntry := zipEntry(&zr.Reader, agLogName)
	switch {
	case activity != nil && logEntry != nil:
		// Two generations of activity data in one container: no way to
		// know which stream the session recorded.
		return nil, fmt.Errorf("%w: gt3x holds both %s and %s",
			accelread.ErrMultipleActivityTypes, agActivityName, agLogName)
	case activity != nil:
		if err := r.readLegacy(&zr.Reader, activity); err != nil {
			return nil, err
		}
	case logEntry != nil:
		if err := r.readLog(logEntry); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: gt3x has no activity log", accelread.ErrLogOpen)
	}

	return &accelread.Recording{
		Info:    r.info,
		Stream:  r.stream,
		Windows: r.win.Finish(),
	}, nil
}

// readInfo locates and parses the metadata log.
func (r *actigraphReader) readInfo(zr *zip.Reader) error {
	entry := zipEntry(zr, agInfoName)
	if entry == nil {
		return fmt.Errorf("%w: %s missing", accelread.ErrInfoOpen, agInfoName)
	}
	rc, err := entry.Open()
	if err != nil {
		return fmt.Errorf("%w: %v", accelread.ErrInfoOpen, err)
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("%w: %v", accelread.ErrInfoOpen, err)
	}

	info := accelread.DeviceInfo{Format: "actigraph", Axes: 3}
	for _, line := range strings.Split(string(raw), "\n") {
		key, value, found := strings.Cut(strings.TrimRight(line, "\r"), ":")
		if !found {
			continue
		}
		value = strings.TrimSpace(value)
		var err error
		switch key {
		case "Serial Number":
			info.Serial = value
		case "Firmware":
			info.Firmware = value
		case "Sample Rate":
			info.SampleRate, err = strconv.ParseFloat(value, 64)
		case "Start Date":
			info.StartTime, err = parseTicks(value)
		case "Stop Date":
			info.StopTime, err = parseTicks(value)
		case "Download Date":
			info.DownloadTime, err = parseTicks(value)
		case "Acceleration Scale":
			info.AccelScale, err = strconv.ParseFloat(value, 64)
		}
		if err != nil {
			return fmt.Errorf("%w: gt3x info field %q: %v", accelread.ErrBadHeader, key, err)
		}
	}
	if info.SampleRate <= 0 {
		return fmt.Errorf("%w: gt3x sample rate missing", accelread.ErrBadHeader)
	}
	if info.AccelScale == 0 {
		info.AccelScale = agScaleForSerial(info.Serial)
	}
	r.info = info
	return nil
}

// readLog decodes the current record-structured activity log. A first pass
// over the record headers establishes which activity record type the session
// used; two distinct types in one log is fatal.
func (r *actigraphReader) readLog(entry *zip.File) error {
	data, err := readZipEntry(entry)
	if err != nil {
		return fmt.Errorf("%w: %v", accelread.ErrLogOpen, err)
	}

	var sawActivity, sawActivity2 bool
	r.scanRecords(data, false, func(typ byte, ts uint32, payload []byte) {
		switch typ {
		case agTypeActivity:
			sawActivity = true
		case agTypeActivity2:
			sawActivity2 = true
		}
	})
	if sawActivity && sawActivity2 {
		return fmt.Errorf("%w: gt3x log mixes ACTIVITY and ACTIVITY2 records",
			accelread.ErrMultipleActivityTypes)
	}
	want := byte(agTypeActivity2)
	if sawActivity {
		want = agTypeActivity
	}

	r.grow(len(data) / 6)

	r.scanRecords(data, true, func(typ byte, ts uint32, payload []byte) {
		if typ != want {
			return
		}
		r.info.BlockCount++
		if typ == agTypeActivity2 {
			r.appendActivity2(float64(ts), payload)
		} else {
			r.appendPacked(float64(ts), payload, len(payload)*8/36)
		}
	})
	return nil
}

// scanRecords walks the 0x1E-separated record stream, handing every record
// that passes its checksum to fn. With report set, skipped records are
// counted and logged; the classification pre-scan walks silently.
func (r *actigraphReader) scanRecords(data []byte, report bool, fn func(typ byte, ts uint32, payload []byte)) {
	pos := 0
	for pos+8 <= len(data) {
		if data[pos] != agRecordSep {
			// Lost framing: walk forward to the next separator.
			if report {
				r.badRecord("lost record framing")
			}
			pos++
			for pos < len(data) && data[pos] != agRecordSep {
				pos++
			}
			continue
		}
		typ := data[pos+1]
		ts := binary.LittleEndian.Uint32(data[pos+2 : pos+6])
		size := int(binary.LittleEndian.Uint16(data[pos+6 : pos+8]))
		end := pos + 8 + size
		if end+1 > len(data) {
			if report {
				r.badRecord("record extends past log end")
			}
			return
		}
		payload := data[pos+8 : end]
		// A corrupt record proves nothing, not even its own type byte.
		if agChecksum(data[pos+1:end]) != data[end] {
			if report {
				r.badRecord("bad record checksum")
			}
			pos = end + 1
			continue
		}
		fn(typ, ts, payload)
		pos = end + 1
	}
}

// readLegacy decodes the monolithic legacy activity file: a continuous
// 12-bit packed y,x,z stream at the header rate from the session start time,
// with an optional parallel lux file.
func (r *actigraphReader) readLegacy(zr *zip.Reader, entry *zip.File) error {
	data, err := readZipEntry(entry)
	if err != nil {
		return fmt.Errorf("%w: %v", accelread.ErrOldActivityOpen, err)
	}
	n := len(data) * 8 / 36
	if n > agMaxSamples {
		return fmt.Errorf("%w: gt3x legacy declares %d samples", accelread.ErrAllocation, n)
	}

	var lux []float64
	if luxEntry := zipEntry(zr, agLuxName); luxEntry != nil {
		raw, err := readZipEntry(luxEntry)
		if err != nil {
			return fmt.Errorf("%w: %v", accelread.ErrOldLuxOpen, err)
		}
		lux = make([]float64, 0, len(raw)/2)
		for i := 0; i+2 <= len(raw); i += 2 {
			lux = append(lux, float64(binary.LittleEndian.Uint16(raw[i:i+2])))
		}
		r.info.HasLight = true
	}

	r.grow(n)
	r.info.BlockCount = (n + agLegacyChunk - 1) / agLegacyChunk
	if lux != nil {
		r.stream.Light = make([]float64, 0, n)
	}

	for off := 0; off < n; off += agLegacyChunk {
		count := agLegacyChunk
		if off+count > n {
			count = n - off
		}
		start := r.info.StartTime + float64(off)/r.info.SampleRate
		r.appendPackedAt(start, data, off, count)
		if lux != nil {
			for i := off; i < off+count; i++ {
				if i < len(lux) {
					r.stream.Light = append(r.stream.Light, lux[i])
				} else {
					r.stream.Light = append(r.stream.Light, 0)
				}
			}
		}
	}
	return nil
}

// appendActivity2 appends one ACTIVITY2 record: int16 x,y,z triplets.
func (r *actigraphReader) appendActivity2(start float64, payload []byte) {
	n := len(payload) / 6
	r.tsBuf = r.tsBuf[:0]
	for i := 0; i < n; i++ {
		x := float64(int16(binary.LittleEndian.Uint16(payload[6*i : 6*i+2])))
		y := float64(int16(binary.LittleEndian.Uint16(payload[6*i+2 : 6*i+4])))
		z := float64(int16(binary.LittleEndian.Uint16(payload[6*i+4 : 6*i+6])))
		t := start + float64(i)/r.info.SampleRate
		r.stream.Time = append(r.stream.Time, t)
		r.stream.Accel = append(r.stream.Accel,
			x/r.info.AccelScale, y/r.info.AccelScale, z/r.info.AccelScale)
		r.tsBuf = append(r.tsBuf, t)
	}
	r.win.Extend(r.tsBuf)
}

// appendPacked appends n samples of 12-bit packed y,x,z data starting at the
// beginning of payload.
func (r *actigraphReader) appendPacked(start float64, payload []byte, n int) {
	r.appendPackedAt(start, payload, 0, n)
}

// appendPackedAt appends count samples, reading packed triplets starting at
// sample index off within data.
func (r *actigraphReader) appendPackedAt(start float64, data []byte, off, count int) {
	r.tsBuf = r.tsBuf[:0]
	for i := 0; i < count; i++ {
		y := agPacked12(data, (off+i)*3)
		x := agPacked12(data, (off+i)*3+1)
		z := agPacked12(data, (off+i)*3+2)
		t := start + float64(i)/r.info.SampleRate
		r.stream.Time = append(r.stream.Time, t)
		r.stream.Accel = append(r.stream.Accel,
			float64(x)/r.info.AccelScale, float64(y)/r.info.AccelScale, float64(z)/r.info.AccelScale)
		r.tsBuf = append(r.tsBuf, t)
	}
	r.win.Extend(r.tsBuf)
}

func (r *actigraphReader) grow(n int) {
	if n > agMaxSamples {
		n = agMaxSamples
	}
	r.stream.Time = make([]float64, 0, n)
	r.stream.Accel = make([]float64, 0, 3*n)
	r.tsBuf = make([]float64, 0, agLegacyChunk)
}

func (r *actigraphReader) badRecord(reason string) {
	r.info.BadBlocks++
	r.log.Warn("skipping gt3x record",
		zap.String("reason", reason),
		zap.Int("bad_blocks", r.info.BadBlocks))
}

// agPacked12 extracts the idx-th big-endian 12-bit value from data and
// sign-extends it.
func agPacked12(data []byte, idx int) int16 {
	bit := idx * 12
	byteIdx := bit / 8
	var v uint16
	if bit%8 == 0 {
		v = uint16(data[byteIdx])<<4 | uint16(data[byteIdx+1])>>4
	} else {
		v = uint16(data[byteIdx]&0x0F)<<8 | uint16(data[byteIdx+1])
	}
	return sign12(v)
}

// agChecksum is the one-byte record checksum: complement of the XOR over the
// record's type, timestamp, size and payload bytes.
func agChecksum(b []byte) byte {
	var x byte
	for _, c := range b {
		x ^= c
	}
	return ^x
}

func agScaleForSerial(serial string) float64 {
	switch {
	case strings.HasPrefix(serial, "MOS"):
		return 256.0
	default:
		return 341.0
	}
}

func parseTicks(value string) (float64, error) {
	ticks, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, err
	}
	return float64(ticks-agEpochTicks) / agTicksPerSecond, nil
}

func zipEntry(zr *zip.Reader, name string) *zip.File {
	for _, f := range zr.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func readZipEntry(entry *zip.File) ([]byte, error) {
	rc, err := entry.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
