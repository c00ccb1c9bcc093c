package wid

import (
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// TimeUnit selects the precision of the time component in generated
// identifiers. Seconds render as YYYYMMDDTHHMMSS, milliseconds append
// three more digits to the time of day.
type TimeUnit string

const (
	TimeUnitSec TimeUnit = "sec"
	TimeUnitMs  TimeUnit = "ms"
)

// ParseTimeUnit converts the textual form used by flags and wire commands
// into a typed TimeUnit.
func ParseTimeUnit(s string) (TimeUnit, error) {
	switch strings.ToLower(s) {
	case "sec":
		return TimeUnitSec, nil
	case "ms":
		return TimeUnitMs, nil
	default:
		return "", errors.WithStack(ErrInvalidTimeUnit)
	}
}

func validTimeUnit(unit TimeUnit) bool {
	return unit == TimeUnitSec || unit == TimeUnitMs
}

// timeDigits is the width of the time-of-day field for the unit.
func timeDigits(unit TimeUnit) int {
	if unit == TimeUnitMs {
		return 9
	}
	return 6
}

// nowTick returns the current instant in the unit's resolution.
func nowTick(unit TimeUnit) int64 {
	if unit == TimeUnitMs {
		return time.Now().UnixMilli()
	}
	return time.Now().Unix()
}

func formatTick(tick int64, unit TimeUnit) string {
	if unit == TimeUnitMs {
		t := time.UnixMilli(tick).UTC()
		return t.Format("20060102T150405") + fmt.Sprintf("%03d", t.Nanosecond()/int(time.Millisecond))
	}
	return time.Unix(tick, 0).UTC().Format("20060102T150405")
}

// maxW is the widest counter whose 10^W - 1 bound still fits in int64.
const maxW = 18

func pow10(n int) int64 {
	v := int64(1)
	for i := 0; i < n; i++ {
		v *= 10
	}
	return v
}
