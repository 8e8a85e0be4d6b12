package utils

import "testing"

func TestClampLimit(t *testing.T) {
	cases := []struct{ n, def, max, want int }{
		{0, 30, 100, 30},
		{-5, 30, 100, 30},
		{10, 30, 100, 10},
		{500, 30, 100, 100},
	}
	for _, tc := range cases {
		if got := ClampLimit(tc.n, tc.def, tc.max); got != tc.want {
			t.Fatalf("ClampLimit(%d,%d,%d) = %d; want %d", tc.n, tc.def, tc.max, got, tc.want)
		}
	}
}

func TestParseLimit(t *testing.T) {
	cases := []struct {
		raw  string
		want int
	}{
		{"", 30},
		{"12", 12},
		{" 12 ", 12},
		{"0", 30},
		{"-3", 30},
		{"ten", 30},
		{"999999999999999999999999", 30},
		{"250", 100},
	}
	for _, tc := range cases {
		if got := ParseLimit(tc.raw, 30, 100); got != tc.want {
			t.Fatalf("ParseLimit(%q) = %d; want %d", tc.raw, got, tc.want)
		}
	}
}
