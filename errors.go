package accelread

import (
	"errors"
	"fmt"
)

// Fatal decode errors. Readers wrap these with file/offset context; callers
// match with errors.Is. Per-block failures (bad checksum, bad packing code,
// rate drift) never surface as errors — they are counted in DeviceInfo.
var (
	// ErrBadHeader reports an unreadable or invalid file header.
	ErrBadHeader = errors.New("bad header")

	// ErrAxisCountMismatch reports a header axis count the reader does not
	// support.
	ErrAxisCountMismatch = errors.New("axis count mismatch")

	// ErrTruncatedBlockData reports a block whose raw data is too short to
	// decode and too short to resynchronize past.
	ErrTruncatedBlockData = errors.New("truncated block data")

	// ErrBlockTimestamp reports an unparseable block timestamp. Timestamps
	// drive windowing and cannot be guessed.
	ErrBlockTimestamp = errors.New("malformed block timestamp")

	// ErrMultipleActivityTypes reports an ActiGraph container holding more
	// than one activity record type, making the stream choice ambiguous.
	ErrMultipleActivityTypes = errors.New("multiple activity types")

	// ErrInfoOpen reports a failure opening the ActiGraph metadata log.
	ErrInfoOpen = errors.New("info log open")

	// ErrLogOpen reports a failure opening the ActiGraph activity log.
	ErrLogOpen = errors.New("activity log open")

	// ErrOldActivityOpen reports a failure opening a legacy-layout activity
	// file.
	ErrOldActivityOpen = errors.New("legacy activity open")

	// ErrOldLuxOpen reports a failure opening a legacy-layout lux file.
	ErrOldLuxOpen = errors.New("legacy lux open")

	// ErrAllocation reports a header-declared size too large to allocate.
	// It distinguishes resource exhaustion from a structurally bad file.
	ErrAllocation = errors.New("allocation limit")
)

var errCapacityConfig = errors.New("window capacity must be non-negative")

func errBaseHour(h int) error {
	return fmt.Errorf("window base hour %d outside [0,24)", h)
}

func errPeriod(p int) error {
	return fmt.Errorf("window period %d must be positive", p)
}
