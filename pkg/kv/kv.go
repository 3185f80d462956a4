// Package kv is the key-value storage behind the session journal.
//
// Keys are paths of string segments, e.g. Key{"journal", sessionID, seq},
// stored as the segments joined by ':'. List walks every key under a prefix
// in lexicographic order, so fixed-width segments sort naturally.
//
// Two backends are provided: Memory, a map for tests and short-lived
// sessions, and Badger, BadgerDB either on disk or in memory-only mode.
package kv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
)

var (
	// ErrNotFound is returned by Get when the key does not exist.
	ErrNotFound = errors.New("kv: not found")

	// ErrInvalidKey is returned for empty keys and for segments that are
	// empty or contain the separator.
	ErrInvalidKey = errors.New("kv: invalid key")
)

// Separator joins key segments in storage.
const Separator = ':'

// Key is a hierarchical path.
type Key []string

func (k Key) String() string {
	return strings.Join(k, string(Separator))
}

// Child returns a new key with segs appended. k is not modified.
func (k Key) Child(segs ...string) Key {
	c := make(Key, 0, len(k)+len(segs))
	return append(append(c, k...), segs...)
}

// Entry is a key and its value.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is a key-value store with path keys.
type Store interface {
	// Get returns the value of key, or ErrNotFound.
	Get(ctx context.Context, key Key) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key Key, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key Key) error

	// List yields the entries strictly under prefix in key order. A nil
	// prefix lists everything.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]

	// BatchSet stores all entries atomically.
	BatchSet(ctx context.Context, entries []Entry) error

	// BatchDelete removes all keys atomically.
	BatchDelete(ctx context.Context, keys []Key) error

	Close() error
}

// Open opens a store by name:
//
//	memory        Memory
//	badger        Badger in memory-only mode
//	badger:DIR    Badger persisted in DIR
func Open(name string) (Store, error) {
	switch {
	case name == "" || name == "memory":
		return NewMemory(), nil
	case name == "badger":
		return NewBadger(BadgerOptions{InMemory: true})
	case strings.HasPrefix(name, "badger:"):
		return NewBadger(BadgerOptions{Dir: strings.TrimPrefix(name, "badger:")})
	}
	return nil, fmt.Errorf("kv: unknown store %q", name)
}

func encodeKey(k Key) ([]byte, error) {
	if len(k) == 0 {
		return nil, fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	return encodePrefix(k)
}

// encodePrefix encodes k followed by a trailing separator so that prefix
// "a:b" does not match "a:bc". A nil prefix encodes to nil.
func encodePrefix(k Key) ([]byte, error) {
	var buf bytes.Buffer
	for i, seg := range k {
		if seg == "" || strings.IndexByte(seg, Separator) >= 0 {
			return nil, fmt.Errorf("%w: segment %q", ErrInvalidKey, seg)
		}
		if i > 0 {
			buf.WriteByte(Separator)
		}
		buf.WriteString(seg)
	}
	return buf.Bytes(), nil
}

func prefixBytes(prefix Key) ([]byte, error) {
	if len(prefix) == 0 {
		return nil, nil
	}
	b, err := encodePrefix(prefix)
	if err != nil {
		return nil, err
	}
	return append(b, Separator), nil
}

func decodeKey(b []byte) Key {
	return Key(strings.Split(string(b), string(Separator)))
}

// errSeq yields err once.
func errSeq(err error) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		yield(Entry{}, err)
	}
}
