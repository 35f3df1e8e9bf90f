package prune

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncateLeavesShortContentAlone(t *testing.T) {
	t.Parallel()

	s := "hello there"
	if got := Truncate(s, Config{}); got != s {
		t.Errorf("got %q", got)
	}
}

func TestTruncateClampsBytes(t *testing.T) {
	t.Parallel()

	s := strings.Repeat("x", 500)
	got := Truncate(s, Config{MaxBytes: 100})
	if len(got) > 100 {
		t.Errorf("len = %d", len(got))
	}
	if !strings.Contains(got, DefaultMarker) {
		t.Errorf("marker missing: %q", got)
	}
	if !strings.Contains(got, "bytes=500") {
		t.Errorf("original size missing: %q", got)
	}
}

func TestTruncateClampsLines(t *testing.T) {
	t.Parallel()

	s := strings.Repeat("line\n", 50) + "line"
	got := Truncate(s, Config{MaxBytes: 10 * 1024, MaxLines: 5})
	if CountLines(got) > 6 {
		t.Errorf("lines = %d: %q", CountLines(got), got)
	}
	if !strings.Contains(got, "lines=51") {
		t.Errorf("original lines missing: %q", got)
	}
}

func TestTruncateKeepsValidUTF8(t *testing.T) {
	t.Parallel()

	s := strings.Repeat("é", 200)
	got := Truncate(s, Config{MaxBytes: 101})
	if !utf8.ValidString(got) {
		t.Errorf("invalid utf8: %q", got)
	}
}

func TestExceeds(t *testing.T) {
	t.Parallel()

	if Exceeds("ab", 10, 10) {
		t.Error("short string flagged")
	}
	if !Exceeds("abcdef", 3, 10) {
		t.Error("byte overflow missed")
	}
	if !Exceeds("a\nb\nc", 100, 2) {
		t.Error("line overflow missed")
	}
}

func TestCountLines(t *testing.T) {
	t.Parallel()

	if n := CountLines(""); n != 0 {
		t.Errorf("empty = %d", n)
	}
	if n := CountLines("a"); n != 1 {
		t.Errorf("one = %d", n)
	}
	if n := CountLines("a\nb\n"); n != 3 {
		t.Errorf("trailing = %d", n)
	}
}
