package editor

import (
	"context"
	"errors"
	"reflect"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/haivivi/chronicle/pkg/completion"
	"github.com/haivivi/chronicle/pkg/document"
)

func startOrchestrator(t *testing.T, doc document.Surface, svc completion.Service, opts ...Option) *Orchestrator {
	t.Helper()
	opts = append([]Option{WithCadence(time.Millisecond)}, opts...)
	o := New(doc, svc, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		o.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return o
}

func waitState(t *testing.T, o *Orchestrator, want State) Snapshot {
	t.Helper()
	ctx := context.Background()
	deadline := time.Now().Add(5 * time.Second)
	for {
		s, err := o.Snapshot(ctx)
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		if s.State == want {
			return s
		}
		if time.Now().After(deadline) {
			t.Fatalf("state = %v; want %v (snapshot %+v)", s.State, want, s)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestOrchestrator_TheCatSat(t *testing.T) {
	const prefix = "Once upon a time. "
	doc := document.NewBuffer(prefix)
	svc := &fakeService{
		chunks: []string{"The", " cat", " sat."},
		others: []string{"A dog ran.", "It rained."},
	}

	var (
		mu     sync.Mutex
		events []string
	)
	o := startOrchestrator(t, doc, svc,
		WithSettings(completion.Settings{VariantCount: 3}),
		WithObserver(func(s Snapshot) {
			if s.Event == "" {
				return
			}
			mu.Lock()
			events = append(events, s.Event)
			mu.Unlock()
		}),
	)

	if err := o.Generate(context.Background(), completion.ModeLine); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	s := waitState(t, o, StateReviewing)

	want := []string{"The cat sat.", "A dog ran.", "It rained."}
	if !slices.Equal(s.Context.Candidates, want) {
		t.Errorf("candidates = %q; want %q", s.Context.Candidates, want)
	}
	r := Range{From: 18, To: 30}
	if s.Context.Range == nil || *s.Context.Range != r {
		t.Fatalf("range = %v; want %v", s.Context.Range, r)
	}
	if got := doc.Text(); got != prefix+"The cat sat." {
		t.Errorf("text = %q", got)
	}
	if !Holds(doc, r, want[0]) {
		t.Error("range does not hold candidate 0")
	}
	if s.Mode != completion.ModeLine || s.Backlog != 0 || s.Generation != "" {
		t.Errorf("snapshot = %+v", s)
	}
	if s.Stats != document.Count(doc.Text()) {
		t.Errorf("stats = %+v", s.Stats)
	}

	mu.Lock()
	defer mu.Unlock()
	if !slices.Equal(events, []string{"generate", "success"}) {
		t.Errorf("events = %v", events)
	}
}

func TestOrchestrator_CycleAndAccept(t *testing.T) {
	doc := document.NewBuffer("0123456789")
	svc := &fakeService{chunks: []string{"fo", "o"}, others: []string{"barbaz"}}
	o := startOrchestrator(t, doc, svc, WithSettings(completion.Settings{VariantCount: 2}))
	ctx := context.Background()

	if err := o.Generate(ctx, completion.ModeContinue); err != nil {
		t.Fatal(err)
	}
	waitState(t, o, StateReviewing)

	if err := o.Next(ctx); err != nil {
		t.Fatalf("Next: %v", err)
	}
	s, _ := o.Snapshot(ctx)
	if s.Context.SelectedIndex != 1 || *s.Context.Range != (Range{From: 10, To: 16}) {
		t.Errorf("after Next: %+v", s.Context)
	}
	if got, _ := doc.Slice(10, 16); got != "barbaz" {
		t.Errorf("text [10,16) = %q", got)
	}

	if err := o.Prev(ctx); err != nil {
		t.Fatalf("Prev: %v", err)
	}
	if doc.Text() != "0123456789foo" {
		t.Errorf("after Prev text = %q", doc.Text())
	}

	o.Next(ctx)
	if err := o.Interact(ctx); err != nil {
		t.Fatal(err)
	}
	s, _ = o.Snapshot(ctx)
	if s.State != StateIdle || !reflect.DeepEqual(s.Context, Context{}) {
		t.Errorf("after Interact: %+v", s)
	}
	if doc.Text() != "0123456789barbaz" {
		t.Errorf("accepted text = %q", doc.Text())
	}

	// Navigation outside reviewing is ignored.
	if err := o.Next(ctx); err != nil {
		t.Fatal(err)
	}
	if doc.Text() != "0123456789barbaz" {
		t.Errorf("Next in idle changed text: %q", doc.Text())
	}
}

func TestOrchestrator_GenerateWhileReviewingAccepts(t *testing.T) {
	doc := document.NewBuffer("Start.")
	svc := &fakeService{chunks: []string{" One."}, others: []string{" Two."}}
	var (
		mu     sync.Mutex
		events []string
	)
	o := startOrchestrator(t, doc, svc,
		WithSettings(completion.Settings{VariantCount: 2}),
		WithObserver(func(s Snapshot) {
			if s.Event != "" {
				mu.Lock()
				events = append(events, s.Event)
				mu.Unlock()
			}
		}),
	)
	ctx := context.Background()

	o.Generate(ctx, completion.ModeContinue)
	waitState(t, o, StateReviewing)
	o.Next(ctx)
	if err := o.Generate(ctx, completion.ModeContinue); err != nil {
		t.Fatal(err)
	}
	s := waitState(t, o, StateReviewing)
	if doc.Text() != "Start. Two. One." {
		t.Errorf("text = %q", doc.Text())
	}
	if *s.Context.Range != (Range{From: 11, To: 16}) {
		t.Errorf("range = %v", *s.Context.Range)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"generate", "success", "next_variant", "accept", "generate", "success"}
	if !slices.Equal(events, want) {
		t.Errorf("events = %v; want %v", events, want)
	}
}

func TestOrchestrator_EmptyInput(t *testing.T) {
	svc := &fakeService{}
	o := startOrchestrator(t, document.NewBuffer("  \n"), svc)

	err := o.Generate(context.Background(), completion.ModeContinue)
	if !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("err = %v; want ErrEmptyInput", err)
	}
	var eie *EmptyInputError
	if !errors.As(err, &eie) {
		t.Errorf("err is not *EmptyInputError")
	}
	s, _ := o.Snapshot(context.Background())
	if s.State != StateIdle {
		t.Errorf("state = %v", s.State)
	}
	if len(svc.requests()) != 0 {
		t.Error("service called for empty input")
	}
}

func TestOrchestrator_Failure(t *testing.T) {
	doc := document.NewBuffer("Hello")
	svc := &fakeService{
		chunks:      []string{" wor"},
		hold:        true,
		completeErr: &completion.ServiceError{Provider: "fake", Message: "rate limited"},
	}
	o := startOrchestrator(t, doc, svc, WithSettings(completion.Settings{VariantCount: 2}))
	ctx := context.Background()

	o.Generate(ctx, completion.ModeParagraph)
	s := waitState(t, o, StateError)
	if s.Context.Error != "rate limited" {
		t.Errorf("error = %q", s.Context.Error)
	}
	if len(s.Context.Candidates) != 0 || s.Backlog != 0 {
		t.Errorf("snapshot = %+v", s)
	}

	// Retry reuses the failed mode.
	svc.mu.Lock()
	svc.completeErr, svc.hold, svc.others = nil, false, []string{"!"}
	svc.mu.Unlock()
	if err := o.Retry(ctx); err != nil {
		t.Fatal(err)
	}
	s = waitState(t, o, StateReviewing)
	if s.Mode != completion.ModeParagraph {
		t.Errorf("mode = %q", s.Mode)
	}
	if s.Context.Candidates[0] != " wor" {
		t.Errorf("candidates = %q", s.Context.Candidates)
	}
}

func TestOrchestrator_StopDiscardsLateResult(t *testing.T) {
	doc := document.NewBuffer("Hello")
	gate := make(chan struct{})
	svc := &fakeService{
		chunks: []string{", world and more text to type"},
		others: []string{"late"},
		gate:   gate,
	}
	o := startOrchestrator(t, doc, svc, WithSettings(completion.Settings{VariantCount: 2}))
	ctx := context.Background()

	o.Generate(ctx, completion.ModeContinue)
	waitState(t, o, StateGenerating)
	if err := o.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	stopped := doc.Text()
	s, _ := o.Snapshot(ctx)
	if s.State != StateIdle || s.Backlog != 0 || s.Generation != "" {
		t.Errorf("after Stop: %+v", s)
	}

	close(gate)
	time.Sleep(50 * time.Millisecond)

	s, _ = o.Snapshot(ctx)
	if s.State != StateIdle || !reflect.DeepEqual(s.Context, Context{}) {
		t.Errorf("late result changed state: %+v", s)
	}
	if doc.Text() != stopped {
		t.Errorf("playback continued after Stop: %q -> %q", stopped, doc.Text())
	}

	// Stop is idempotent.
	if err := o.Stop(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestOrchestrator_GenerateWhileGeneratingIgnored(t *testing.T) {
	svc := &fakeService{chunks: []string{"x"}, hold: true}
	o := startOrchestrator(t, document.NewBuffer("a"), svc, WithSettings(completion.Settings{VariantCount: 1}))
	ctx := context.Background()

	o.Generate(ctx, completion.ModeContinue)
	first := waitState(t, o, StateGenerating)
	if err := o.Generate(ctx, completion.ModeLine); err != nil {
		t.Fatal(err)
	}
	s, _ := o.Snapshot(ctx)
	if s.Generation != first.Generation || s.Mode != completion.ModeContinue {
		t.Errorf("second Generate replaced the generation: %+v", s)
	}
}

func TestOrchestrator_SetSettings(t *testing.T) {
	o := startOrchestrator(t, document.NewBuffer(""), &fakeService{})
	ctx := context.Background()
	if err := o.SetSettings(ctx, completion.Settings{Tone: completion.ToneAcademic, VariantCount: 10}); err != nil {
		t.Fatal(err)
	}
	s, _ := o.Snapshot(ctx)
	want := completion.Settings{Tone: completion.ToneAcademic, Length: completion.LengthMedium, VariantCount: completion.MaxVariants}
	if s.Settings != want {
		t.Errorf("settings = %+v; want %+v", s.Settings, want)
	}
}

func TestOrchestrator_Closed(t *testing.T) {
	o := New(document.NewBuffer("x"), &fakeService{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v", err)
	}
	if err := o.Stop(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Stop after close = %v; want ErrClosed", err)
	}
	if err := o.Run(context.Background()); err == nil {
		t.Error("second Run succeeded")
	}
}

func TestOrchestrator_EditGated(t *testing.T) {
	ctx := context.Background()
	doc := document.NewBuffer("Start ")
	svc := &fakeService{chunks: []string{"typed"}, hold: true}
	o := startOrchestrator(t, doc, svc, WithSettings(completion.Settings{VariantCount: 1}))

	insert := func(s string) func() error {
		return func() error {
			doc.Insert(s)
			return nil
		}
	}
	if err := o.Edit(ctx, insert("x")); err != nil {
		t.Fatalf("Edit while idle: %v", err)
	}
	if err := o.Generate(ctx, completion.ModeContinue); err != nil {
		t.Fatal(err)
	}
	called := false
	err := o.Edit(ctx, func() error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrReadOnly) || called {
		t.Errorf("Edit while generating = %v, called = %v; want ErrReadOnly", err, called)
	}
	if err := o.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if err := o.Edit(ctx, insert("y")); err != nil {
		t.Fatalf("Edit after stop: %v", err)
	}
	if got := doc.Text(); got[:7] != "Start x" || got[len(got)-1] != 'y' {
		t.Errorf("text = %q", got)
	}
}
