package readers

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"accelread"
)

const (
	cwaHeaderSize = 1024
	cwaBlockSize  = 512
	cwaDataBytes  = 480

	// Bottom nibble of the axes/packing byte.
	cwaPackingPacked   = 0 // 3 samples bit-packed into one uint32
	cwaPackingUnpacked = 2 // 3 little-endian int16 words

	cwaMaxPackedSamples   = cwaDataBytes / 4 // 120
	cwaMaxUnpackedSamples = cwaDataBytes / 6 // 80

	// Upper bound on the block count derived from the container size.
	// Anything larger is treated as resource exhaustion, not a decode error.
	cwaMaxBlocks = 1 << 22

	// Raw acceleration units are 1/256 g in both packing modes.
	cwaAccelScale = 256.0
)

// axivityReader owns the file handle and output buffers for one decode pass.
// A bad header is fatal; bad blocks are skipped and counted.
type axivityReader struct {
	f      *os.File
	log    *zap.Logger
	info   accelread.DeviceInfo
	stream accelread.SampleStream
	win    *accelread.DayWindower

	nblocks int
	packing byte
	buf     [cwaBlockSize]byte
	tsBuf   []float64
	closed  bool
}

// ReadAxivity decodes an Axivity CWA container into a day-windowed recording.
func ReadAxivity(path string, cfg accelread.WindowConfig, opts ...Option) (*accelread.Recording, error) {
	o := applyOptions(opts)

	win, err := accelread.NewDayWindower(cfg)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cwa file: %w", err)
	}
	r := &axivityReader{f: f, log: o.logger, win: win}
	defer r.close()

	if err := r.readHeader(); err != nil {
		return nil, err
	}
	for i := 0; i < r.nblocks; i++ {
		more, err := r.readBlock()
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

func (r *axivityReader) readHeader() error {
	hdr := make([]byte, cwaHeaderSize)
	if _, err := io.ReadFull(r.f, hdr); err != nil {
		return fmt.Errorf("%w: cwa header read: %v", accelread.ErrBadHeader, err)
	}
	if hdr[0] != 'M' || hdr[1] != 'D' {
		return fmt.Errorf("%w: cwa signature %q", accelread.ErrBadHeader, hdr[0:2])
	}

	deviceID := int64(binary.LittleEndian.Uint16(hdr[5:7]))
	sessionID := int64(binary.LittleEndian.Uint32(hdr[7:11]))
	if upper := binary.LittleEndian.Uint16(hdr[11:13]); upper != 0xFFFF {
		deviceID |= int64(upper) << 16
	}

	rate := cwaFrequency(hdr[36])
	if rate <= 0 {
		return fmt.Errorf("%w: cwa rate code 0x%02X", accelread.ErrBadHeader, hdr[36])
	}
	axes := int(hdr[37] >> 4)
	if axes != 3 {
		return fmt.Errorf("%w: cwa header declares %d axes", accelread.ErrAxisCountMismatch, axes)
	}
	packing := hdr[37] & 0x0F
	if packing != cwaPackingPacked && packing != cwaPackingUnpacked {
		return fmt.Errorf("%w: cwa packing code %d", accelread.ErrBadHeader, packing)
	}

	st, err := r.f.Stat()
	if err != nil {
		return fmt.Errorf("%w: cwa stat: %v", accelread.ErrBadHeader, err)
	}
	nblocks := int((st.Size() - cwaHeaderSize) / cwaBlockSize)
	if nblocks < 0 {
		nblocks = 0
	}
	if nblocks > cwaMaxBlocks {
		return fmt.Errorf("%w: cwa declares %d blocks", accelread.ErrAllocation, nblocks)
	}

	r.nblocks = nblocks
	r.packing = packing
	r.info = accelread.DeviceInfo{
		Format:         "axivity",
		DeviceID:       deviceID,
		SessionID:      sessionID,
		SampleRate:     rate,
		Axes:           axes,
		HasTemperature: true,
		BlockCount:     nblocks,
	}

	maxSamples := cwaMaxPackedSamples
	if packing == cwaPackingUnpacked {
		maxSamples = cwaMaxUnpackedSamples
	}
	r.stream.Time = make([]float64, 0, nblocks*maxSamples)
	r.stream.Accel = make([]float64, 0, 3*nblocks*maxSamples)
	r.stream.Temp = make([]float64, 0, nblocks*maxSamples)
	r.tsBuf = make([]float64, 0, maxSamples)
	return nil
}

// readBlock decodes the next 512-byte block. It returns false when the
// container ends early; block-level failures skip the block and count it,
// they never abort the decode.
func (r *axivityReader) readBlock() (bool, error) {
	_, err := io.ReadFull(r.f, r.buf[:])
	if err == io.EOF {
		return false, nil
	}
	if err == io.ErrUnexpectedEOF {
		r.badBlock("short final block")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cwa block read: %w", err)
	}

	b := r.buf[:]
	if b[0] != 'A' || b[1] != 'X' {
		r.badBlock("bad block signature")
		return true, nil
	}
	if cwaChecksum(b) != 0 {
		r.badBlock("bad checksum")
		return true, nil
	}

	axesBPS := b[25]
	if int(axesBPS>>4) != r.info.Axes {
		r.badBlock("axes mismatch")
		return true, nil
	}
	packing := axesBPS & 0x0F
	if packing != cwaPackingPacked && packing != cwaPackingUnpacked {
		r.badBlock("bad packing code")
		return true, nil
	}

	maxSamples := cwaMaxPackedSamples
	if packing == cwaPackingUnpacked {
		maxSamples = cwaMaxUnpackedSamples
	}
	count := int(binary.LittleEndian.Uint16(b[28:30]))
	if count == 0 || count > maxSamples {
		r.badBlock("bad sample count")
		return true, nil
	}

	blockTime, ok := cwaTimestamp(binary.LittleEndian.Uint32(b[14:18]))
	if !ok {
		r.badBlock("bad block timestamp")
		return true, nil
	}
	// The packed timestamp applies to the sample at timestampOffset, not
	// necessarily the first sample of the block.
	tsOffset := int(int16(binary.LittleEndian.Uint16(b[26:28])))
	start := blockTime - float64(tsOffset)/r.info.SampleRate

	tempC := float64(binary.LittleEndian.Uint16(b[20:22]))*75.0/256.0 - 50.0

	r.tsBuf = r.tsBuf[:0]
	data := b[30 : 30+cwaDataBytes]
	for i := 0; i < count; i++ {
		var x, y, z float64
		if packing == cwaPackingPacked {
			v := binary.LittleEndian.Uint32(data[4*i : 4*i+4])
			x, y, z = cwaUnpack(v)
		} else {
			x = float64(int16(binary.LittleEndian.Uint16(data[6*i : 6*i+2])))
			y = float64(int16(binary.LittleEndian.Uint16(data[6*i+2 : 6*i+4])))
			z = float64(int16(binary.LittleEndian.Uint16(data[6*i+4 : 6*i+6])))
		}
		t := start + float64(i)/r.info.SampleRate
		r.stream.Time = append(r.stream.Time, t)
		r.stream.Accel = append(r.stream.Accel, x/cwaAccelScale, y/cwaAccelScale, z/cwaAccelScale)
		r.stream.Temp = append(r.stream.Temp, tempC)
		r.tsBuf = append(r.tsBuf, t)
	}
	r.win.Extend(r.tsBuf)
	return true, nil
}

func (r *axivityReader) badBlock(reason string) {
	r.info.BadBlocks++
	r.log.Warn("skipping cwa block",
		zap.String("reason", reason),
		zap.Int("bad_blocks", r.info.BadBlocks))
}

func (r *axivityReader) close() {
	if r.closed {
		return
	}
	r.closed = true
	r.tsBuf = nil
	_ = r.f.Close()
}

// cwaFrequency decodes the coded sample-rate byte: 3200/2^(15-n) Hz.
func cwaFrequency(code byte) float64 {
	shift := 15 - int(code&0x0F)
	if shift < 0 || shift > 15 {
		return 0
	}
	return 3200.0 / float64(int(1)<<shift)
}

// cwaChecksum sums the block as 256 little-endian 16-bit words; a valid block
// sums to zero.
func cwaChecksum(b []byte) uint16 {
	var sum uint16
	for i := 0; i < cwaBlockSize; i += 2 {
		sum += binary.LittleEndian.Uint16(b[i : i+2])
	}
	return sum
}

// cwaTimestamp unpacks the device timestamp word
// (YYYYYYMM MMDDDDDh hhhhmmmm mmssssss, year offset 2000) to unix seconds.
func cwaTimestamp(v uint32) (float64, bool) {
	year := int(v>>26)&0x3F + 2000
	month := int(v>>22) & 0x0F
	day := int(v>>17) & 0x1F
	hour := int(v>>12) & 0x1F
	min := int(v>>6) & 0x3F
	sec := int(v) & 0x3F
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || min > 59 || sec > 59 {
		return 0, false
	}
	t := time.Date(year, time.Month(month), day, hour, min, sec, 0, time.UTC)
	return float64(t.Unix()), true
}

// cwaUnpack expands one packed word: three 10-bit signed values with a shared
// 2-bit left-shift exponent in the top bits.
func cwaUnpack(v uint32) (x, y, z float64) {
	e := uint(v >> 30)
	x = float64(int16(uint16(v&0x3FF)<<6)>>6) * float64(int(1)<<e)
	y = float64(int16(uint16((v>>10)&0x3FF)<<6)>>6) * float64(int(1)<<e)
	z = float64(int16(uint16((v>>20)&0x3FF)<<6)>>6) * float64(int(1)<<e)
	return x, y, z
}
