package timefmt

import (
	"testing"
	"time"
)

func TestParseFormatRoundTrip(t *testing.T) {
	in := "02/01/2024 - 09:05"
	ts, err := Parse(in)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := Format(ts); got != in {
		t.Fatalf("round trip = %q, want %q", got, in)
	}
}

func TestParseRejectsOtherLayouts(t *testing.T) {
	for _, in := range []string{"2024-01-02 09:00", "02/01/2024 09:00", ""} {
		if _, err := Parse(in); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", in)
		}
	}
}

func TestFormatPtr(t *testing.T) {
	if FormatPtr(nil) != nil {
		t.Fatal("FormatPtr(nil) should be nil")
	}
	ts := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	if got := FormatPtr(&ts); got == nil || *got != "02/01/2024 - 09:00" {
		t.Fatalf("FormatPtr = %v", got)
	}
}

func TestCeilToMinute(t *testing.T) {
	cases := []struct{ in, want int64 }{
		{-5, 0},
		{0, 0},
		{1, 60},
		{59, 60},
		{60, 60},
		{61, 120},
		{115200, 115200},
	}
	for _, c := range cases {
		if got := CeilToMinute(c.in); got != c.want {
			t.Errorf("CeilToMinute(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestDHM(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{115200, "01 d 08 h 00 m"},
		{172800, "02 d 00 h 00 m"},
		{0, "00 d 00 h 00 m"},
		{-300, "00 d 00 h 00 m"},
		{30, "00 d 00 h 01 m"}, // rounds up to the minute
		{3600, "00 d 01 h 00 m"},
		{90061, "01 d 01 h 02 m"}, // 1d 1h 1m 1s rounds up
	}
	for _, c := range cases {
		if got := DHM(c.in); got != c.want {
			t.Errorf("DHM(%d) = %q, want %q", c.in, got, c.want)
		}
	}
}
