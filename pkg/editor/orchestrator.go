package editor

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/haivivi/chronicle/pkg/completion"
	"github.com/haivivi/chronicle/pkg/document"
)

// Snapshot is a point-in-time view of an Orchestrator.
type Snapshot struct {
	// Event is the name of the event that produced this snapshot, or empty
	// when only the document changed.
	Event string `json:"event,omitempty" yaml:"event,omitempty"`

	State    State               `json:"state" yaml:"state"`
	Context  Context             `json:"context" yaml:"context"`
	Mode     completion.Mode     `json:"mode" yaml:"mode"`
	Settings completion.Settings `json:"settings" yaml:"settings"`

	// Generation identifies the in-flight generation.
	Generation string `json:"generation,omitempty" yaml:"generation,omitempty"`

	// Backlog is the number of runes waiting to be typed.
	Backlog int            `json:"backlog" yaml:"backlog"`
	Stats   document.Stats `json:"stats" yaml:"stats"`
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCadence sets the playback interval between typed runes.
func WithCadence(d time.Duration) Option {
	return func(o *Orchestrator) { o.cadence = d }
}

// WithSettings sets the initial generation settings.
func WithSettings(s completion.Settings) Option {
	return func(o *Orchestrator) { o.settings = s.Normalize() }
}

// WithTemperatures sets the base temperature and the per-candidate step.
func WithTemperatures(base, step float32) Option {
	return func(o *Orchestrator) {
		o.coord.BaseTemperature = base
		o.coord.TemperatureStep = step
	}
}

// WithObserver registers fn to be called after every transition and every
// typed rune. fn runs on the orchestrator goroutine and must not call back
// into the Orchestrator.
func WithObserver(fn func(Snapshot)) Option {
	return func(o *Orchestrator) { o.observers = append(o.observers, fn) }
}

// Orchestrator drives generations against a document.
//
// All state is owned by the goroutine running Run. The exported methods
// post messages to it and wait for the reply, so they block until Run is
// started.
type Orchestrator struct {
	doc       document.Surface
	coord     *Coordinator
	cadence   time.Duration
	observers []func(Snapshot)

	inbox   chan any
	done    chan struct{}
	running atomic.Bool

	// Owned by Run.
	machine  *Machine
	playback *Playback
	settings completion.Settings
	gen      string
	cancel   context.CancelCauseFunc
	from     int
	fetched  []string
}

// New creates an Orchestrator generating into doc with svc.
func New(doc document.Surface, svc completion.Service, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		doc:      doc,
		coord:    NewCoordinator(svc),
		cadence:  DefaultCadence,
		inbox:    make(chan any),
		done:     make(chan struct{}),
		machine:  NewMachine(),
		settings: completion.DefaultSettings(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.playback = NewPlayback(doc, o.cadence)
	return o
}

type (
	generateMsg struct {
		mode  completion.Mode
		retry bool
		reply chan error
	}
	stopMsg   struct{ reply chan error }
	acceptMsg struct{ reply chan error }
	cycleMsg  struct {
		step  int
		reply chan error
	}
	settingsMsg struct {
		settings completion.Settings
		reply    chan error
	}
	editMsg struct {
		fn    func() error
		reply chan error
	}
	snapshotMsg struct{ reply chan Snapshot }

	tokenMsg struct {
		gen  string
		text string
	}
	resultMsg struct {
		gen        string
		candidates []string
		err        error
	}
)

// Run processes messages until ctx is done. It may be called once.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.running.CompareAndSwap(false, true) {
		return errors.New("editor: orchestrator already running")
	}
	defer close(o.done)
	defer func() {
		o.playback.Stop()
		o.release(ErrClosed)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m := <-o.inbox:
			o.handle(ctx, m)
		case <-o.playback.C():
			o.tick()
		}
	}
}

// Generate starts a generation in mode from the cursor. While reviewing, the
// selected candidate is accepted first. It returns ErrEmptyInput when the
// document has no text; a generation already in flight is left alone.
func (o *Orchestrator) Generate(ctx context.Context, mode completion.Mode) error {
	reply := make(chan error, 1)
	return o.call(ctx, generateMsg{mode: mode, reply: reply}, reply)
}

// Retry regenerates from the error state with the last mode.
func (o *Orchestrator) Retry(ctx context.Context) error {
	reply := make(chan error, 1)
	return o.call(ctx, generateMsg{retry: true, reply: reply}, reply)
}

// Stop cancels the in-flight generation or discards the review. Typed text
// stays in the document. Stopping an idle orchestrator does nothing.
func (o *Orchestrator) Stop(ctx context.Context) error {
	reply := make(chan error, 1)
	return o.call(ctx, stopMsg{reply: reply}, reply)
}

// Next shows the next candidate while reviewing.
func (o *Orchestrator) Next(ctx context.Context) error {
	reply := make(chan error, 1)
	return o.call(ctx, cycleMsg{step: 1, reply: reply}, reply)
}

// Prev shows the previous candidate while reviewing.
func (o *Orchestrator) Prev(ctx context.Context) error {
	reply := make(chan error, 1)
	return o.call(ctx, cycleMsg{step: -1, reply: reply}, reply)
}

// Accept commits the selected candidate.
func (o *Orchestrator) Accept(ctx context.Context) error {
	reply := make(chan error, 1)
	return o.call(ctx, acceptMsg{reply: reply}, reply)
}

// Interact reports a user interaction with the document. Any interaction
// while reviewing accepts the selected candidate. Call it before applying
// the interaction.
func (o *Orchestrator) Interact(ctx context.Context) error {
	return o.Accept(ctx)
}

// Edit applies a user edit to the document on the orchestrator goroutine.
// While generating the document belongs to playback: fn is not called and
// ErrReadOnly is returned. While reviewing the selected candidate is
// accepted before fn runs.
func (o *Orchestrator) Edit(ctx context.Context, fn func() error) error {
	reply := make(chan error, 1)
	return o.call(ctx, editMsg{fn: fn, reply: reply}, reply)
}

// SetSettings replaces the settings used by later generations.
func (o *Orchestrator) SetSettings(ctx context.Context, s completion.Settings) error {
	reply := make(chan error, 1)
	return o.call(ctx, settingsMsg{settings: s, reply: reply}, reply)
}

// Snapshot returns the current state.
func (o *Orchestrator) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	if err := o.send(ctx, snapshotMsg{reply: reply}); err != nil {
		return Snapshot{}, err
	}
	select {
	case s := <-reply:
		return s, nil
	case <-o.done:
		return Snapshot{}, ErrClosed
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

func (o *Orchestrator) call(ctx context.Context, m any, reply chan error) error {
	if err := o.send(ctx, m); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-o.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) send(ctx context.Context, m any) error {
	select {
	case o.inbox <- m:
		return nil
	case <-o.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post delivers a message from a generation goroutine. It gives up once the
// generation is cancelled.
func (o *Orchestrator) post(gctx context.Context, m any) {
	select {
	case o.inbox <- m:
	case <-gctx.Done():
	}
}

func (o *Orchestrator) handle(ctx context.Context, m any) {
	switch m := m.(type) {
	case generateMsg:
		m.reply <- o.generate(ctx, m.mode, m.retry)
	case stopMsg:
		o.stop()
		m.reply <- nil
	case acceptMsg:
		o.dispatch(Accept{})
		m.reply <- nil
	case cycleMsg:
		m.reply <- o.cycle(m.step)
	case editMsg:
		m.reply <- o.edit(m.fn)
	case settingsMsg:
		o.settings = m.settings.Normalize()
		o.notify("")
		m.reply <- nil
	case snapshotMsg:
		m.reply <- o.snapshot("")
	case tokenMsg:
		if m.gen != o.gen {
			slog.Debug("editor/orchestrator: drop stale token", "generation", m.gen, "reason", ErrCancelled)
			return
		}
		o.playback.Push(m.text)
	case resultMsg:
		o.resolve(m)
	}
}

func (o *Orchestrator) generate(ctx context.Context, mode completion.Mode, retry bool) error {
	switch o.machine.State() {
	case StateGenerating:
		return nil
	case StateIdle, StateReviewing:
		if retry {
			return nil
		}
	}
	if retry {
		mode = o.machine.Mode()
	}

	text := o.doc.Text()
	if strings.TrimSpace(text) == "" {
		return ErrEmptyInput
	}
	if o.machine.State() == StateReviewing {
		o.dispatch(Accept{})
	}

	o.from = o.doc.Cursor()
	o.gen = uuid.NewString()
	if retry {
		o.dispatch(Retry{})
	} else {
		o.dispatch(Generate{Mode: mode})
	}
	o.launch(ctx, FetchRequest{Text: text, Settings: o.settings, Mode: mode})
	return nil
}

func (o *Orchestrator) launch(ctx context.Context, req FetchRequest) {
	gen := o.gen
	gctx, cancel := context.WithCancelCause(ctx)
	o.cancel, o.fetched = cancel, nil
	o.playback.Reset()
	o.playback.Start()

	slog.Debug("editor/orchestrator: generation started",
		"generation", gen, "mode", req.Mode, "variants", req.Settings.VariantCount, "from", o.from)

	go func() {
		candidates, err := o.coord.Fetch(gctx, req, func(chunk string) {
			o.post(gctx, tokenMsg{gen: gen, text: chunk})
		})
		o.post(gctx, resultMsg{gen: gen, candidates: candidates, err: err})
	}()
}

// resolve handles the outcome of a fetch. Success is deferred until the
// playback queue has typed every streamed rune.
func (o *Orchestrator) resolve(m resultMsg) {
	if m.gen != o.gen || o.machine.State() != StateGenerating {
		slog.Debug("editor/orchestrator: drop stale result", "generation", m.gen, "reason", ErrCancelled)
		return
	}
	o.release(nil)
	if m.err != nil {
		slog.Warn("editor/orchestrator: generation failed", "generation", m.gen, "error", m.err)
		o.playback.Cancel()
		o.gen = ""
		o.dispatch(Failure{Message: m.err.Error()})
		return
	}
	o.fetched = m.candidates
	o.playback.Finish()
	o.playback.Start()
}

func (o *Orchestrator) tick() {
	inserted, drained := o.playback.Tick()
	if inserted {
		o.notify("")
		return
	}
	if !drained || o.fetched == nil {
		return
	}
	candidates, gen := o.fetched, o.gen
	o.fetched, o.gen = nil, ""
	r := Range{From: o.from, To: o.doc.Cursor()}
	o.dispatch(Success{Candidates: candidates, Range: r})
	if !Holds(o.doc, r, candidates[0]) {
		slog.Warn("editor/orchestrator: streamed text does not match candidate 0",
			"generation", gen, "from", r.From, "to", r.To)
	}
}

func (o *Orchestrator) stop() {
	o.playback.Cancel()
	o.release(ErrCancelled)
	o.gen, o.fetched = "", nil
	o.dispatch(Stop{})
}

func (o *Orchestrator) edit(fn func() error) error {
	if o.machine.State() == StateGenerating {
		return ErrReadOnly
	}
	o.dispatch(Accept{})
	if err := fn(); err != nil {
		return err
	}
	o.notify("")
	return nil
}

func (o *Orchestrator) cycle(step int) error {
	if o.machine.State() != StateReviewing {
		return nil
	}
	c := o.machine.Context()
	n := len(c.Candidates)
	if n < 2 || c.Range == nil {
		return nil
	}
	next := ((c.SelectedIndex+step)%n + n) % n
	if _, err := SwitchCandidate(o.doc, *c.Range, c.Candidates[next]); err != nil {
		return err
	}
	if step > 0 {
		o.dispatch(NextVariant{})
	} else {
		o.dispatch(PrevVariant{})
	}
	return nil
}

// release cancels the generation context, if any.
func (o *Orchestrator) release(cause error) {
	if o.cancel != nil {
		o.cancel(cause)
		o.cancel = nil
	}
}

func (o *Orchestrator) dispatch(ev Event) bool {
	from := o.machine.State()
	name := eventName(ev)
	if !o.machine.Send(ev) {
		slog.Debug("editor/orchestrator: event ignored", "event", name, "state", from)
		return false
	}
	slog.Debug("editor/orchestrator: transition", "event", name, "from", from, "to", o.machine.State())
	o.notify(name)
	return true
}

func (o *Orchestrator) notify(event string) {
	if len(o.observers) == 0 {
		return
	}
	s := o.snapshot(event)
	for _, fn := range o.observers {
		fn(s)
	}
}

func (o *Orchestrator) snapshot(event string) Snapshot {
	return Snapshot{
		Event:      event,
		State:      o.machine.State(),
		Context:    o.machine.Context(),
		Mode:       o.machine.Mode(),
		Settings:   o.settings,
		Generation: o.gen,
		Backlog:    o.playback.Len(),
		Stats:      document.Count(o.doc.Text()),
	}
}

func eventName(ev Event) string {
	switch ev.(type) {
	case Generate:
		return "generate"
	case Stop:
		return "stop"
	case Success:
		return "success"
	case Failure:
		return "failure"
	case Retry:
		return "retry"
	case NextVariant:
		return "next_variant"
	case PrevVariant:
		return "prev_variant"
	case Accept:
		return "accept"
	default:
		return "unknown"
	}
}
