// Package session hosts one editing session: a document, the orchestrator
// generating into it, the journal of generation outcomes, and the auxiliary
// title and illustration flows.
//
// A Handler exposes sessions over WebSocket, one session per connection.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haivivi/chronicle/pkg/assist"
	"github.com/haivivi/chronicle/pkg/completion"
	"github.com/haivivi/chronicle/pkg/document"
	"github.com/haivivi/chronicle/pkg/editor"
	"github.com/haivivi/chronicle/pkg/imagesearch"
	"github.com/haivivi/chronicle/pkg/journal"
	"github.com/haivivi/chronicle/pkg/kv"
)

// ErrNoSearcher is returned by Illustrate when no image searcher is
// configured.
var ErrNoSearcher = errors.New("session: image search is not configured")

// ErrNoImager is returned by Imagine when no image model is configured.
var ErrNoImager = errors.New("session: image generation is not configured")

// titleTimeout bounds one title request.
const titleTimeout = 30 * time.Second

// Config configures a Session.
type Config struct {
	// Service generates continuations, titles and keywords. Required.
	Service completion.Service

	// Store holds the journal. Defaults to an in-memory store.
	Store kv.Store

	// Searcher finds illustrations. Optional.
	Searcher imagesearch.Searcher

	// Imager draws pictures. Optional.
	Imager *assist.Imager

	Settings completion.Settings
	Cadence  time.Duration

	// BaseTemperature and TemperatureStep tune candidate sampling. Zero
	// keeps the editor defaults.
	BaseTemperature float32
	TemperatureStep float32

	// Text is the initial document.
	Text string
}

// View is what a client renders.
type View struct {
	Session  string          `json:"session" yaml:"session"`
	Snapshot editor.Snapshot `json:"snapshot" yaml:"snapshot"`
	Text     string          `json:"text" yaml:"text"`
	Cursor   int             `json:"cursor" yaml:"cursor"`
	Title    string          `json:"title,omitempty" yaml:"title,omitempty"`

	Illustration *assist.Illustration `json:"illustration,omitempty" yaml:"illustration,omitempty"`
}

// Session is one editing session.
type Session struct {
	id      string
	doc     *document.Buffer
	orch    *editor.Orchestrator
	journal *journal.Journal
	titler  *assist.Titler
	illus   *assist.Illustrator
	imager  *assist.Imager

	mu          sync.Mutex
	last        editor.Snapshot
	title       string
	titleEdited bool
	titling     bool
	subs        map[chan View]struct{}
}

// New creates a session. Call Run to start it.
func New(cfg Config) (*Session, error) {
	if cfg.Service == nil {
		return nil, errors.New("session: completion service is required")
	}
	store := cfg.Store
	if store == nil {
		store = kv.NewMemory()
	}
	settings := cfg.Settings
	if settings == (completion.Settings{}) {
		settings = completion.DefaultSettings()
	}

	s := &Session{
		id:     uuid.NewString(),
		doc:    document.NewBuffer(cfg.Text),
		titler: &assist.Titler{Service: cfg.Service},
		imager: cfg.Imager,
		subs:   make(map[chan View]struct{}),
	}
	s.journal = journal.New(store, s.id)
	if cfg.Searcher != nil {
		s.illus = &assist.Illustrator{Service: cfg.Service, Searcher: cfg.Searcher}
	}
	opts := []editor.Option{
		editor.WithCadence(cfg.Cadence),
		editor.WithSettings(settings),
		editor.WithObserver(s.observe),
	}
	if cfg.BaseTemperature > 0 || cfg.TemperatureStep > 0 {
		base, step := cfg.BaseTemperature, cfg.TemperatureStep
		if base == 0 {
			base = editor.DefaultBaseTemperature
		}
		if step == 0 {
			step = editor.DefaultTemperatureStep
		}
		opts = append(opts, editor.WithTemperatures(base, step))
	}
	s.orch = editor.New(s.doc, cfg.Service, opts...)
	s.last.Settings = settings.Normalize()
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Document returns the session document.
func (s *Session) Document() *document.Buffer {
	return s.doc
}

// Journal returns the session journal.
func (s *Session) Journal() *journal.Journal {
	return s.journal
}

// Run runs the orchestrator until ctx is done.
func (s *Session) Run(ctx context.Context) error {
	defer s.closeSubs()
	return s.orch.Run(ctx)
}

// Generate starts a generation at the cursor.
func (s *Session) Generate(ctx context.Context, mode completion.Mode) error {
	return s.orch.Generate(ctx, mode)
}

func (s *Session) Stop(ctx context.Context) error  { return s.orch.Stop(ctx) }
func (s *Session) Retry(ctx context.Context) error { return s.orch.Retry(ctx) }
func (s *Session) Next(ctx context.Context) error  { return s.orch.Next(ctx) }
func (s *Session) Prev(ctx context.Context) error  { return s.orch.Prev(ctx) }

// Accept keeps the selected candidate and considers titling the document.
func (s *Session) Accept(ctx context.Context) error {
	return s.Interact(ctx)
}

// SetSettings changes the settings of later generations.
func (s *Session) SetSettings(ctx context.Context, settings completion.Settings) error {
	return s.orch.SetSettings(ctx, settings)
}

// Interact reports a user interaction. While reviewing it accepts the
// selected candidate; afterwards the document may be titled.
func (s *Session) Interact(ctx context.Context) error {
	if err := s.orch.Interact(ctx); err != nil {
		return err
	}
	s.maybeTitle()
	return nil
}

// Type inserts text at the cursor as the user. It fails with
// editor.ErrReadOnly while a generation is typing.
func (s *Session) Type(ctx context.Context, text string) error {
	err := s.orch.Edit(ctx, func() error {
		s.doc.Insert(text)
		return nil
	})
	if err != nil {
		return err
	}
	s.maybeTitle()
	return nil
}

// MoveCursor moves the cursor as the user. It fails with editor.ErrReadOnly
// while a generation is typing.
func (s *Session) MoveCursor(ctx context.Context, pos int) error {
	if err := s.orch.Edit(ctx, func() error { return s.doc.SetCursor(pos) }); err != nil {
		return err
	}
	s.maybeTitle()
	return nil
}

// Title returns the document title.
func (s *Session) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

// SetTitle sets the title as the user. Automatic titling stops.
func (s *Session) SetTitle(title string) {
	s.mu.Lock()
	s.title = title
	s.titleEdited = true
	s.mu.Unlock()
	s.publish(nil)
}

// Illustrate finds a photo for the document.
func (s *Session) Illustrate(ctx context.Context) (*assist.Illustration, error) {
	if s.illus == nil {
		return nil, ErrNoSearcher
	}
	il, err := s.illus.Illustrate(ctx, s.doc.Text())
	if err != nil {
		return nil, err
	}
	s.publish(il)
	return il, nil
}

// Imagine draws a picture for selection, or for the end of the document
// when selection is empty.
func (s *Session) Imagine(ctx context.Context, selection string) (*assist.Image, error) {
	if s.imager == nil {
		return nil, ErrNoImager
	}
	return s.imager.Imagine(ctx, s.doc.Text(), selection)
}

// History returns the journal, oldest first.
func (s *Session) History(ctx context.Context) ([]journal.Entry, error) {
	return s.journal.List(ctx)
}

// View returns the current view.
func (s *Session) View(ctx context.Context) (View, error) {
	snap, err := s.orch.Snapshot(ctx)
	if err != nil {
		return View{}, err
	}
	return s.view(snap, nil), nil
}

// Subscribe returns a channel receiving a View after every change. Views
// are dropped while the subscriber lags behind. The channel is closed by
// cancel or when the session stops.
func (s *Session) Subscribe(buffer int) (<-chan View, func()) {
	ch := make(chan View, max(buffer, 1))
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
	}
}

func (s *Session) closeSubs() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		close(ch)
	}
	clear(s.subs)
}

// observe runs on the orchestrator goroutine.
func (s *Session) observe(snap editor.Snapshot) {
	s.mu.Lock()
	prev := s.last
	s.last = snap
	s.mu.Unlock()

	if e, ok := outcome(prev, snap); ok {
		if _, err := s.journal.Append(context.Background(), e); err != nil {
			slog.Warn("session: journal append failed", "session", s.id, "error", err)
		}
	}
	s.broadcast(s.view(snap, nil))
}

// outcome derives the journal entry for the transition prev -> cur.
func outcome(prev, cur editor.Snapshot) (journal.Entry, bool) {
	e := journal.Entry{Mode: cur.Mode, Generation: prev.Generation}
	switch cur.Event {
	case "success":
		e.Outcome = journal.Succeeded
		e.Candidates = cur.Context.Candidates
		if r := cur.Context.Range; r != nil {
			e.From, e.To = r.From, r.To
		}
	case "failure":
		e.Outcome = journal.Failed
		e.Error = cur.Context.Error
	case "stop":
		if prev.State == editor.StateError {
			return journal.Entry{}, false
		}
		e.Outcome = journal.Stopped
		e.Candidates = prev.Context.Candidates
	case "accept":
		e.Outcome = journal.Accepted
		e.Candidates = prev.Context.Candidates
		e.Selected = prev.Context.SelectedIndex
		if r := prev.Context.Range; r != nil {
			e.From, e.To = r.From, r.To
		}
	default:
		return journal.Entry{}, false
	}
	return e, true
}

func (s *Session) maybeTitle() {
	text := s.doc.Text()
	s.mu.Lock()
	if s.titling || !assist.NeedsTitle(text, s.title, s.titleEdited) {
		s.mu.Unlock()
		return
	}
	s.titling = true
	s.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), titleTimeout)
		defer cancel()
		title, err := s.titler.Title(ctx, text)

		s.mu.Lock()
		s.titling = false
		if err == nil && !s.titleEdited && s.title == "" {
			s.title = title
		}
		s.mu.Unlock()
		if err != nil {
			slog.Warn("session: title failed", "session", s.id, "error", err)
			return
		}
		s.publish(nil)
	}()
}

// publish broadcasts a view built from the last known snapshot.
func (s *Session) publish(il *assist.Illustration) {
	s.mu.Lock()
	snap := s.last
	s.mu.Unlock()
	snap.Event = ""
	snap.Stats = document.Count(s.doc.Text())
	s.broadcast(s.view(snap, il))
}

func (s *Session) view(snap editor.Snapshot, il *assist.Illustration) View {
	return View{
		Session:      s.id,
		Snapshot:     snap,
		Text:         s.doc.Text(),
		Cursor:       s.doc.Cursor(),
		Title:        s.Title(),
		Illustration: il,
	}
}

func (s *Session) broadcast(v View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- v:
		default:
			slog.Debug("session: subscriber lagging, view dropped", "session", s.id)
		}
	}
}

// Shortcut actions.
const (
	ShortcutGenerate  = "generate"
	ShortcutLine      = "line"
	ShortcutParagraph = "paragraph"
	ShortcutPrev      = "prev"
	ShortcutNext      = "next"
	ShortcutImage     = "image"
)

// Shortcut runs an editor shortcut. "generate" stops a running generation
// instead of starting another; "prev" and "next" only act while reviewing.
func (s *Session) Shortcut(ctx context.Context, action string) error {
	snap, err := s.orch.Snapshot(ctx)
	if err != nil {
		return err
	}
	switch action {
	case ShortcutGenerate:
		if snap.State == editor.StateGenerating {
			return s.Stop(ctx)
		}
		return s.Generate(ctx, completion.ModeContinue)
	case ShortcutLine:
		return s.Generate(ctx, completion.ModeLine)
	case ShortcutParagraph:
		return s.Generate(ctx, completion.ModeParagraph)
	case ShortcutPrev:
		if snap.State == editor.StateReviewing {
			return s.Prev(ctx)
		}
		return nil
	case ShortcutNext:
		if snap.State == editor.StateReviewing {
			return s.Next(ctx)
		}
		return nil
	case ShortcutImage:
		_, err := s.Illustrate(ctx)
		return err
	}
	return fmt.Errorf("session: unknown shortcut %q", action)
}
