package cli

import (
	"fmt"
	"strings"
	"time"
)

// FormatDuration formats d for status lines: "12ms", "1.5s", "2m3.0s".
func FormatDuration(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	secs := d.Seconds()
	if secs < 60 {
		return fmt.Sprintf("%.1fs", secs)
	}
	mins := int(secs / 60)
	secs -= float64(mins * 60)
	return fmt.Sprintf("%dm%.1fs", mins, secs)
}

// MaskAPIKey masks the API key for display
func MaskAPIKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

// Wrap breaks text into lines no wider than width runes, splitting on
// spaces where possible. Existing newlines are kept.
func Wrap(text string, width int) []string {
	if width <= 0 {
		return strings.Split(text, "\n")
	}
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		var line []rune
		for _, word := range strings.Split(para, " ") {
			w := []rune(word)
			switch {
			case len(line) == 0:
			case len(line)+1+len(w) <= width:
				line = append(line, ' ')
			default:
				lines = append(lines, string(line))
				line = line[:0]
			}
			for len(w) > width {
				if len(line) > 0 {
					lines = append(lines, string(line))
					line = line[:0]
				}
				lines = append(lines, string(w[:width]))
				w = w[width:]
			}
			line = append(line, w...)
		}
		lines = append(lines, string(line))
	}
	return lines
}
