package editor

import (
	"fmt"

	"github.com/haivivi/chronicle/pkg/document"
)

// SwitchCandidate replaces the text occupying r with text in a single edit
// and returns the range text now occupies. From is never moved.
func SwitchCandidate(doc document.Surface, r Range, text string) (Range, error) {
	if err := doc.ReplaceRange(r.From, r.To, text); err != nil {
		return r, fmt.Errorf("editor: switch candidate [%d,%d): %w", r.From, r.To, err)
	}
	return Range{From: r.From, To: r.From + document.Len(text)}, nil
}

// Holds reports whether the document text within r equals text.
func Holds(doc document.Surface, r Range, text string) bool {
	rs := []rune(doc.Text())
	if r.From < 0 || r.From > r.To || r.To > len(rs) {
		return false
	}
	return string(rs[r.From:r.To]) == text
}
