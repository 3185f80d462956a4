// Package journal records the outcome of every generation in an editing
// session.
//
// Entries are msgpack-encoded and stored in a kv.Store under
//
//	journal:{session}:{seq}
//
// where seq is zero-padded so that List returns entries in the order they
// were appended.
package journal

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/haivivi/chronicle/pkg/completion"
	"github.com/haivivi/chronicle/pkg/kv"
)

// Outcome is how a generation ended.
type Outcome string

const (
	// Succeeded: all candidates arrived and review started.
	Succeeded Outcome = "succeeded"
	// Failed: a request failed; Error holds the message.
	Failed Outcome = "failed"
	// Stopped: the user stopped the generation or discarded the review.
	Stopped Outcome = "stopped"
	// Accepted: the user kept candidate Selected.
	Accepted Outcome = "accepted"
)

// Entry is one journal record.
type Entry struct {
	ID      string    `json:"id" msgpack:"id"`
	Seq     uint64    `json:"seq" msgpack:"seq"`
	Time    time.Time `json:"time" msgpack:"time"`
	Outcome Outcome   `json:"outcome" msgpack:"outcome"`

	// Generation is the orchestrator's generation id, when known.
	Generation string          `json:"generation,omitempty" msgpack:"generation,omitempty"`
	Mode       completion.Mode `json:"mode,omitempty" msgpack:"mode,omitempty"`

	Candidates []string `json:"candidates,omitempty" msgpack:"candidates,omitempty"`
	Selected   int      `json:"selected" msgpack:"selected"`
	From       int      `json:"from" msgpack:"from"`
	To         int      `json:"to" msgpack:"to"`
	Error      string   `json:"error,omitempty" msgpack:"error,omitempty"`
}

// Journal appends and lists the entries of one session. It is safe for
// concurrent use.
type Journal struct {
	store   kv.Store
	session string

	mu     sync.Mutex
	loaded bool
	seq    uint64
}

// New returns the journal of session in store.
func New(store kv.Store, session string) *Journal {
	return &Journal{store: store, session: session}
}

// Session returns the session id.
func (j *Journal) Session() string {
	return j.session
}

func (j *Journal) prefix() kv.Key {
	return kv.Key{"journal", j.session}
}

func seqKey(seq uint64) string {
	return fmt.Sprintf("%020d", seq)
}

// Append stores e, assigning its ID, Seq and, when zero, its Time.
func (j *Journal) Append(ctx context.Context, e Entry) (Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.loaded {
		if err := j.load(ctx); err != nil {
			return Entry{}, err
		}
	}

	e.ID = uuid.NewString()
	e.Seq = j.seq + 1
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	data, err := msgpack.Marshal(&e)
	if err != nil {
		return Entry{}, fmt.Errorf("journal: encode entry: %w", err)
	}
	if err := j.store.Set(ctx, j.prefix().Child(seqKey(e.Seq)), data); err != nil {
		return Entry{}, fmt.Errorf("journal: append: %w", err)
	}
	j.seq = e.Seq
	return e, nil
}

// load finds the last sequence number already stored for the session.
func (j *Journal) load(ctx context.Context) error {
	for e, err := range j.store.List(ctx, j.prefix()) {
		if err != nil {
			return fmt.Errorf("journal: load: %w", err)
		}
		seq, err := strconv.ParseUint(e.Key[len(e.Key)-1], 10, 64)
		if err != nil {
			continue
		}
		j.seq = max(j.seq, seq)
	}
	j.loaded = true
	return nil
}

// List returns every entry, oldest first. Malformed records are skipped.
func (j *Journal) List(ctx context.Context) ([]Entry, error) {
	var out []Entry
	for kve, err := range j.store.List(ctx, j.prefix()) {
		if err != nil {
			return nil, fmt.Errorf("journal: list: %w", err)
		}
		var e Entry
		if err := msgpack.Unmarshal(kve.Value, &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Recent returns up to n entries, newest first.
func (j *Journal) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	all, err := j.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(all) > n {
		all = all[len(all)-n:]
	}
	for i, k := 0, len(all)-1; i < k; i, k = i+1, k-1 {
		all[i], all[k] = all[k], all[i]
	}
	return all, nil
}

// Clear deletes every entry of the session.
func (j *Journal) Clear(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	var keys []kv.Key
	for e, err := range j.store.List(ctx, j.prefix()) {
		if err != nil {
			return fmt.Errorf("journal: clear: %w", err)
		}
		keys = append(keys, e.Key)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := j.store.BatchDelete(ctx, keys); err != nil {
		return fmt.Errorf("journal: clear: %w", err)
	}
	return nil
}
