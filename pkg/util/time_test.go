package util

import (
	"testing"
	"time"
)

func TestFormatSeconds(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0, "0.00"},
		{2, "2.00"},
		{8.366, "8.37"},
		{8.3749, "8.37"},
		{-0.001, "0.00"},
		{12.999, "13.00"},
	}
	for _, tc := range cases {
		if got := FormatSeconds(tc.in); got != tc.want {
			t.Errorf("FormatSeconds(%v): expected %q, got %q", tc.in, tc.want, got)
		}
	}
}

func TestParseTimestamp(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"45.5", 45500 * time.Millisecond},
		{"1:05", 65 * time.Second},
		{"01:00:02", time.Hour + 2*time.Second},
	}
	for _, tc := range cases {
		got, err := ParseTimestamp(tc.in)
		if err != nil {
			t.Fatalf("ParseTimestamp(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("ParseTimestamp(%q): expected %v, got %v", tc.in, tc.want, got)
		}
	}

	if _, err := ParseTimestamp("a:b:c:d"); err == nil {
		t.Error("expected error for malformed timestamp")
	}
}

func TestParseFrameRate(t *testing.T) {
	if got := ParseFrameRate("30000/1001"); got < 29.96 || got > 29.98 {
		t.Errorf("expected ~29.97, got %f", got)
	}
	if got := ParseFrameRate("30/0"); got != 0 {
		t.Errorf("expected 0 for zero denominator, got %f", got)
	}
}
