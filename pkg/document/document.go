// Package document defines the editable text surface that generation
// writes into, and an in-memory implementation of it.
//
// Positions are rune offsets. A cursor marks the live insertion point;
// inserting at the cursor advances it, and replacing a range relocates it to
// the end of the replacement text.
package document

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"
)

// ErrInvalidPosition is returned when a position or range is outside the
// document.
var ErrInvalidPosition = errors.New("document: position out of bounds")

// Surface is the document surface consumed by generation playback and
// candidate switching.
type Surface interface {
	// InsertAtCursor inserts r at the cursor and advances the cursor past it.
	InsertAtCursor(r rune)

	// ReplaceRange replaces the half-open range [from, to) with text as one
	// edit. The cursor moves to from + len(text).
	ReplaceRange(from, to int, text string) error

	// Text returns the whole document.
	Text() string

	// Cursor returns the current insertion position.
	Cursor() int
}

var _ Surface = (*Buffer)(nil)

// Buffer is a mutex-guarded rune buffer implementing Surface.
type Buffer struct {
	mu     sync.RWMutex
	runes  []rune
	cursor int
	rev    uint64
}

// NewBuffer returns a Buffer holding text with the cursor at its end.
func NewBuffer(text string) *Buffer {
	rs := []rune(text)
	return &Buffer{runes: rs, cursor: len(rs)}
}

func (b *Buffer) InsertAtCursor(r rune) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.runes = append(b.runes, 0)
	copy(b.runes[b.cursor+1:], b.runes[b.cursor:])
	b.runes[b.cursor] = r
	b.cursor++
	b.rev++
}

// Insert inserts text at the cursor, as a user typing it would.
func (b *Buffer) Insert(text string) {
	if text == "" {
		return
	}
	rs := []rune(text)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.runes = append(b.runes[:b.cursor], append(rs, b.runes[b.cursor:]...)...)
	b.cursor += len(rs)
	b.rev++
}

func (b *Buffer) ReplaceRange(from, to int, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if from < 0 || to < from || to > len(b.runes) {
		return fmt.Errorf("%w: replace [%d,%d) in %d runes", ErrInvalidPosition, from, to, len(b.runes))
	}
	rs := []rune(text)
	tail := append([]rune(nil), b.runes[to:]...)
	b.runes = append(append(b.runes[:from], rs...), tail...)
	b.cursor = from + len(rs)
	b.rev++
	return nil
}

func (b *Buffer) Text() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return string(b.runes)
}

func (b *Buffer) Cursor() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cursor
}

// SetCursor moves the cursor to pos.
func (b *Buffer) SetCursor(pos int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if pos < 0 || pos > len(b.runes) {
		return fmt.Errorf("%w: cursor %d in %d runes", ErrInvalidPosition, pos, len(b.runes))
	}
	b.cursor = pos
	return nil
}

// Slice returns the text in [from, to).
func (b *Buffer) Slice(from, to int) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if from < 0 || to < from || to > len(b.runes) {
		return "", fmt.Errorf("%w: slice [%d,%d) in %d runes", ErrInvalidPosition, from, to, len(b.runes))
	}
	return string(b.runes[from:to]), nil
}

// Len returns the document length in runes.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.runes)
}

// Revision increments on every mutation.
func (b *Buffer) Revision() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.rev
}

// Len returns the length of s in document positions.
func Len(s string) int {
	return utf8.RuneCountInString(s)
}

// Stats holds document counters shown alongside the editor.
type Stats struct {
	Chars int `json:"chars" yaml:"chars"`
	Words int `json:"words" yaml:"words"`
}

// Count returns the character and word counts of text.
func Count(text string) Stats {
	return Stats{
		Chars: utf8.RuneCountInString(text),
		Words: len(strings.Fields(text)),
	}
}
