package wid

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// ParsedWid holds each component extracted from a WID string.
type ParsedWid struct {
	Raw         string
	Timestamp   time.Time
	Sequence    int64
	Padding     *string
	Millisecond int
}

// ParsedHlcWid holds each component extracted from an HLC-WID string.
type ParsedHlcWid struct {
	Raw            string
	Timestamp      time.Time
	LogicalCounter int64
	Node           string
	Padding        *string
	Millisecond    int
}

// Compiled grammars are cached per (W, unit); the set of parameter
// combinations a process uses is tiny.
var (
	widReMu sync.Mutex
	widReC  = map[string]*regexp.Regexp{}
	hlcReMu sync.Mutex
	hlcReC  = map[string]*regexp.Regexp{}
	hexReMu sync.Mutex
	hexReC  = map[int]*regexp.Regexp{}
)

func widRe(w int, unit TimeUnit) *regexp.Regexp {
	key := fmt.Sprintf("%d:%s", w, unit)
	widReMu.Lock()
	defer widReMu.Unlock()
	if r, ok := widReC[key]; ok {
		return r
	}
	r := regexp.MustCompile(fmt.Sprintf(`^(\d{8})T(\d{%d})\.(\d{%d})Z(.*)$`, timeDigits(unit), w))
	widReC[key] = r
	return r
}

func hlcRe(w int, unit TimeUnit) *regexp.Regexp {
	key := fmt.Sprintf("%d:%s", w, unit)
	hlcReMu.Lock()
	defer hlcReMu.Unlock()
	if r, ok := hlcReC[key]; ok {
		return r
	}
	r := regexp.MustCompile(fmt.Sprintf(`^(\d{8})T(\d{%d})\.(\d{%d})Z-([^\s-]+)(.*)$`, timeDigits(unit), w))
	hlcReC[key] = r
	return r
}

func hexRe(z int) *regexp.Regexp {
	hexReMu.Lock()
	defer hexReMu.Unlock()
	if r, ok := hexReC[z]; ok {
		return r
	}
	r := regexp.MustCompile(fmt.Sprintf(`^[0-9a-f]{%d}$`, z))
	hexReC[z] = r
	return r
}

// parseCalendar constructs the UTC instant strictly, rejecting any
// out-of-range field including dates that only normalize into existence
// (such as February 30th).
func parseCalendar(dateStr, timeStr string, unit TimeUnit) (time.Time, error) {
	if len(dateStr) != 8 || len(timeStr) != timeDigits(unit) {
		return time.Time{}, errors.WithStack(ErrInvalidTimestamp)
	}
	year, _ := strconv.Atoi(dateStr[0:4])
	month, _ := strconv.Atoi(dateStr[4:6])
	day, _ := strconv.Atoi(dateStr[6:8])
	hour, _ := strconv.Atoi(timeStr[0:2])
	minute, _ := strconv.Atoi(timeStr[2:4])
	second, _ := strconv.Atoi(timeStr[4:6])
	ms := 0
	if unit == TimeUnitMs {
		ms, _ = strconv.Atoi(timeStr[6:9])
	}
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 || second > 59 || ms > 999 {
		return time.Time{}, errors.WithStack(ErrInvalidTimestamp)
	}
	t := time.Date(year, time.Month(month), day, hour, minute, second, ms*int(time.Millisecond), time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, errors.WithStack(ErrInvalidTimestamp)
	}
	return t, nil
}

// parseSuffix validates the optional random-suffix segment. A writer always
// emits the suffix when Z > 0 but a reader tolerates its absence; when
// present it must be exactly Z lowercase hex characters, and when Z == 0 it
// must be absent.
func parseSuffix(suffix string, z int) (*string, error) {
	if suffix == "" {
		return nil, nil
	}
	if !strings.HasPrefix(suffix, "-") {
		return nil, errors.WithStack(ErrInvalidFormat)
	}
	seg := suffix[1:]
	if z == 0 {
		return nil, errors.WithStack(ErrInvalidFormat)
	}
	if !hexRe(z).MatchString(seg) {
		return nil, errors.WithStack(ErrInvalidFormat)
	}
	return &seg, nil
}

func checkParams(w, z int, unit TimeUnit) error {
	if w <= 0 || w > maxW {
		return errors.WithStack(ErrInvalidW)
	}
	if z < 0 {
		return errors.WithStack(ErrInvalidZ)
	}
	if !validTimeUnit(unit) {
		return errors.WithStack(ErrInvalidTimeUnit)
	}
	return nil
}

// ValidateWid reports whether s is a well-formed WID for the given W and Z
// at second precision.
func ValidateWid(s string, w, z int) bool {
	return ValidateWidWithUnit(s, w, z, TimeUnitSec)
}

// ValidateWidWithUnit reports whether s is a well-formed WID for the given
// parameters.
func ValidateWidWithUnit(s string, w, z int, unit TimeUnit) bool {
	_, err := ParseWidWithUnit(s, w, z, unit)
	return err == nil
}

// ValidateHlcWid reports whether s is a well-formed HLC-WID at second
// precision.
func ValidateHlcWid(s string, w, z int) bool {
	return ValidateHlcWidWithUnit(s, w, z, TimeUnitSec)
}

// ValidateHlcWidWithUnit reports whether s is a well-formed HLC-WID for the
// given parameters.
func ValidateHlcWidWithUnit(s string, w, z int, unit TimeUnit) bool {
	_, err := ParseHlcWidWithUnit(s, w, z, unit)
	return err == nil
}

// ParseWid extracts the components of a WID at second precision.
func ParseWid(s string, w, z int) (*ParsedWid, error) {
	return ParseWidWithUnit(s, w, z, TimeUnitSec)
}

// ParseWidWithUnit extracts the components of a WID. Parsing is total: any
// input either yields a fully populated record or an error, never a panic
// or a partial result. A string carrying an HLC node segment is rejected;
// the two grammars are disjoint.
func ParseWidWithUnit(s string, w, z int, unit TimeUnit) (*ParsedWid, error) {
	if err := checkParams(w, z, unit); err != nil {
		return nil, err
	}
	m := widRe(w, unit).FindStringSubmatch(s)
	if m == nil {
		return nil, errors.WithStack(ErrInvalidFormat)
	}
	ts, err := parseCalendar(m[1], m[2], unit)
	if err != nil {
		return nil, err
	}
	seq, err := strconv.ParseInt(m[3], 10, 64)
	if err != nil {
		return nil, errors.WithStack(ErrInvalidFormat)
	}
	padding, err := parseSuffix(m[4], z)
	if err != nil {
		return nil, err
	}
	return &ParsedWid{
		Raw:         s,
		Timestamp:   ts,
		Sequence:    seq,
		Padding:     padding,
		Millisecond: ts.Nanosecond() / int(time.Millisecond),
	}, nil
}

// ParseHlcWid extracts the components of an HLC-WID at second precision.
func ParseHlcWid(s string, w, z int) (*ParsedHlcWid, error) {
	return ParseHlcWidWithUnit(s, w, z, TimeUnitSec)
}

// ParseHlcWidWithUnit extracts the components of an HLC-WID. The node field
// is mandatory; plain WID strings are rejected.
func ParseHlcWidWithUnit(s string, w, z int, unit TimeUnit) (*ParsedHlcWid, error) {
	if err := checkParams(w, z, unit); err != nil {
		return nil, err
	}
	m := hlcRe(w, unit).FindStringSubmatch(s)
	if m == nil {
		return nil, errors.WithStack(ErrInvalidFormat)
	}
	node := m[4]
	if !IsValidNode(node) {
		return nil, errors.WithStack(ErrInvalidNode)
	}
	ts, err := parseCalendar(m[1], m[2], unit)
	if err != nil {
		return nil, err
	}
	lc, err := strconv.ParseInt(m[3], 10, 64)
	if err != nil {
		return nil, errors.WithStack(ErrInvalidFormat)
	}
	padding, err := parseSuffix(m[5], z)
	if err != nil {
		return nil, err
	}
	return &ParsedHlcWid{
		Raw:            s,
		Timestamp:      ts,
		LogicalCounter: lc,
		Node:           node,
		Padding:        padding,
		Millisecond:    ts.Nanosecond() / int(time.Millisecond),
	}, nil
}
