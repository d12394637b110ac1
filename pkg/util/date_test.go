package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	got, ok := ParseTime(strconv.FormatInt(ts.Unix(), 10))
	if !ok || !got.Equal(ts) {
		t.Fatalf("unexpected unix %v", got)
	}
	got, ok = ParseTime(strconv.FormatInt(ts.UnixMilli(), 10))
	if !ok || !got.Equal(ts) {
		t.Fatalf("unexpected unix millis %v", got)
	}
}

func TestParseTimeDatetime(t *testing.T) {
	got, ok := ParseTime("2022-01-01 00:00:01")
	if !ok || !got.Equal(time.Date(2022, 1, 1, 0, 0, 1, 0, time.UTC)) {
		t.Fatalf("unexpected %v", got)
	}
}

func TestAlignFromTo(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 7, 31, 500, time.UTC)
	f, to := AlignFromTo(from, from, "5m")
	if f.Minute() != 5 || to.Second() != 0 {
		t.Fatalf("unexpected alignment %v %v", f, to)
	}
}
