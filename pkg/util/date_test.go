package util

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	require.True(t, ok)
	assert.Equal(t, s, got.UTC().Format(time.RFC3339))
}

func TestParseTimeDateOnly(t *testing.T) {
	got, ok := ParseTime("2024-10-10")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC), got)
}

func TestParseTimeUnix(t *testing.T) {
	want := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	got, ok := ParseTime(strconv.FormatInt(want.Unix(), 10))
	require.True(t, ok)
	assert.Equal(t, want.Unix(), got.Unix())

	got, ok = ParseTime(strconv.FormatInt(want.UnixMilli(), 10))
	require.True(t, ok)
	assert.True(t, want.Equal(got))
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	assert.Equal(t, def, ParseTimeDefault("", def))
	assert.Equal(t, def, ParseTimeDefault("yesterday", def))
}

func TestAlignFromTo(t *testing.T) {
	from := time.Date(2024, 1, 1, 10, 7, 30, 0, time.UTC)
	to := time.Date(2024, 1, 1, 11, 59, 59, 0, time.UTC)
	f, e := AlignFromTo(from, to, 15*time.Minute)
	assert.Equal(t, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), f)
	assert.Equal(t, time.Date(2024, 1, 1, 11, 45, 0, 0, time.UTC), e)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, SplitList(" a:9092, ,b:9092 "))
	assert.Nil(t, SplitList(""))
	assert.Equal(t, 7, ParseIntDefault("x", 7))
	assert.Equal(t, 3, ParseIntDefault("3", 7))
}
