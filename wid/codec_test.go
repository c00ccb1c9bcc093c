package wid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWidExample(t *testing.T) {
	t.Parallel()

	assert.True(t, ValidateWid("20260212T091530.0042Z", 4, 0))

	p, err := ParseWid("20260212T091530.0042Z", 4, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(42), p.Sequence)
	assert.Nil(t, p.Padding)
	assert.Equal(t, time.Date(2026, 2, 12, 9, 15, 30, 0, time.UTC), p.Timestamp)
	assert.Equal(t, 0, p.Millisecond)
}

func TestParseWidWithPadding(t *testing.T) {
	t.Parallel()

	p, err := ParseWid("20260212T091530.0042Z-0afc9d", 4, 6)
	require.NoError(t, err)
	require.NotNil(t, p.Padding)
	assert.Equal(t, "0afc9d", *p.Padding)

	// suffix is optional when Z > 0
	p, err = ParseWid("20260212T091530.0042Z", 4, 6)
	require.NoError(t, err)
	assert.Nil(t, p.Padding)
}

func TestParseWidMilliseconds(t *testing.T) {
	t.Parallel()

	p, err := ParseWidWithUnit("20260212T091530123.0042Z", 4, 0, TimeUnitMs)
	require.NoError(t, err)
	assert.Equal(t, 123, p.Millisecond)
	assert.Equal(t, time.Date(2026, 2, 12, 9, 15, 30, 123_000_000, time.UTC), p.Timestamp)

	// millisecond form does not parse as seconds and vice versa
	assert.False(t, ValidateWid("20260212T091530123.0042Z", 4, 0))
	assert.False(t, ValidateWidWithUnit("20260212T091530.0042Z", 4, 0, TimeUnitMs))
}

func TestParseWidRejections(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		in string
		w  int
		z  int
	}{
		"missing trailing Z":        {"20260212T091530.0042", 4, 0},
		"extended separators":       {"2026-02-12T09:15:30.0042Z", 4, 0},
		"wrong counter width":       {"20260212T091530.042Z", 4, 0},
		"uppercase hex suffix":      {"20260212T091530.0042Z-ABCDEF", 4, 6},
		"short suffix":              {"20260212T091530.0042Z-abc", 4, 6},
		"long suffix":               {"20260212T091530.0042Z-abcdef0", 4, 6},
		"suffix forbidden when Z=0": {"20260212T091530.0042Z-abcdef", 4, 0},
		"node segment in plain WID": {"20260212T091530.0042Z-node01", 4, 6},
		"trailing garbage":          {"20260212T091530.0042Zxx", 4, 0},
		"suffix with extra tail":    {"20260212T091530.0042Z-abcdef-00", 4, 6},
		"month out of range":        {"20261301T091530.0042Z", 4, 0},
		"day out of range":          {"20260232T091530.0042Z", 4, 0},
		"nonexistent calendar day":  {"20260230T091530.0042Z", 4, 0},
		"hour out of range":         {"20260212T241530.0042Z", 4, 0},
		"minute out of range":       {"20260212T096030.0042Z", 4, 0},
		"second out of range":       {"20260212T091561.0042Z", 4, 0},
		"empty string":              {"", 4, 0},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.False(t, ValidateWid(tc.in, tc.w, tc.z))
		})
	}
}

func TestParseWidParamValidation(t *testing.T) {
	t.Parallel()

	_, err := ParseWid("20260212T091530.0042Z", 0, 0)
	require.ErrorIs(t, err, ErrInvalidW)

	_, err = ParseWid("20260212T091530.0042Z", 19, 0)
	require.ErrorIs(t, err, ErrInvalidW)

	_, err = ParseWid("20260212T091530.0042Z", 4, -1)
	require.ErrorIs(t, err, ErrInvalidZ)

	_, err = ParseWidWithUnit("20260212T091530.0042Z", 4, 0, TimeUnit("h"))
	require.ErrorIs(t, err, ErrInvalidTimeUnit)
}

func TestParseHlcWid(t *testing.T) {
	t.Parallel()

	p, err := ParseHlcWid("20260212T091530.0007Z-node01", 4, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(7), p.LogicalCounter)
	assert.Equal(t, "node01", p.Node)
	assert.Nil(t, p.Padding)

	p, err = ParseHlcWid("20260212T091530.0007Z-node01-0afc9d", 4, 6)
	require.NoError(t, err)
	require.NotNil(t, p.Padding)
	assert.Equal(t, "0afc9d", *p.Padding)
}

func TestParseHlcWidRejections(t *testing.T) {
	t.Parallel()

	// hyphen inside the node is ambiguous with the padding separator
	assert.False(t, ValidateHlcWid("20260212T091530.0000Z-node-01", 4, 0))

	cases := map[string]struct {
		in string
		w  int
		z  int
	}{
		"missing node":              {"20260212T091530.0000Z", 4, 0},
		"empty node":                {"20260212T091530.0000Z-", 4, 0},
		"whitespace node":           {"20260212T091530.0000Z-a b", 4, 0},
		"suffix forbidden when Z=0": {"20260212T091530.0000Z-node01-abcdef", 4, 0},
		"bad suffix":                {"20260212T091530.0000Z-node01-ABCDEF", 4, 6},
		"missing trailing Z":        {"20260212T091530.0000-node01", 4, 0},
		"invalid calendar":          {"20260230T091530.0000Z-node01", 4, 0},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.False(t, ValidateHlcWid(tc.in, tc.w, tc.z))
		})
	}
}

func TestGrammarsAreDisjoint(t *testing.T) {
	t.Parallel()

	widOnly := "20260212T091530.0042Z"
	hlcOnly := "20260212T091530.0042Z-node01"

	assert.True(t, ValidateWid(widOnly, 4, 0))
	assert.False(t, ValidateHlcWid(widOnly, 4, 0))

	assert.True(t, ValidateHlcWid(hlcOnly, 4, 0))
	assert.False(t, ValidateWid(hlcOnly, 4, 0))
}
