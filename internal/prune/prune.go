// Package prune bounds stored message content. Platforms cap message
// sizes themselves, but webhook payloads are attacker-controlled input
// and pasted blobs show up in marketplace chats, so content is clamped
// before it reaches the database or the fanout path.
package prune

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	DefaultMarker   = "[truncated]"
	DefaultMaxBytes = 64 * 1024
	DefaultMaxLines = 2000
)

// Config bounds one content field.
type Config struct {
	MaxBytes int
	MaxLines int
	Marker   string
}

// Exceeds reports whether s is over either budget.
func Exceeds(s string, maxBytes, maxLines int) bool {
	return len(s) > maxBytes || CountLines(s) > maxLines
}

// CountLines counts newline-delimited lines.
func CountLines(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + 1
}

// Truncate clamps s to the configured budgets, keeping a UTF-8 safe
// prefix and appending the marker with the original size.
func Truncate(s string, cfg Config) string {
	cfg = normalize(cfg)
	if !Exceeds(s, cfg.MaxBytes, cfg.MaxLines) {
		return s
	}
	suffix := fmt.Sprintf("\n%s (bytes=%d, lines=%d)", cfg.Marker, len(s), CountLines(s))
	budget := cfg.MaxBytes - len(suffix)
	if budget < 0 {
		budget = 0
	}
	head := limitLines(safePrefix(s, budget), cfg.MaxLines)
	return head + suffix
}

func normalize(cfg Config) Config {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.MaxLines <= 0 {
		cfg.MaxLines = DefaultMaxLines
	}
	if cfg.Marker == "" {
		cfg.Marker = DefaultMarker
	}
	return cfg
}

func safePrefix(s string, maxBytes int) string {
	if maxBytes <= 0 || s == "" {
		return ""
	}
	if maxBytes >= len(s) {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func limitLines(s string, maxLines int) string {
	if maxLines <= 0 || s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) <= maxLines {
		return s
	}
	return strings.Join(lines[:maxLines], "\n")
}
