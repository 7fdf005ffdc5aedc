package utils

import (
	"testing"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello world", 5, "hello..."},
		{"x", 0, "x"},
		{"のび太とロボット", 3, "のび太..."},
		{"のび太", 3, "のび太"},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestCollapseSpace(t *testing.T) {
	if got := CollapseSpace("  a robot\n\tbefriends   a child "); got != "a robot befriends a child" {
		t.Errorf("got %q", got)
	}
}
