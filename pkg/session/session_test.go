package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"google.golang.org/genai"

	"github.com/haivivi/chronicle/pkg/assist"
	"github.com/haivivi/chronicle/pkg/completion"
	"github.com/haivivi/chronicle/pkg/editor"
	"github.com/haivivi/chronicle/pkg/imagesearch"
	"github.com/haivivi/chronicle/pkg/journal"
)

// scriptService streams chunks and answers every Complete with answer.
type scriptService struct {
	chunks []string
	answer string
	hold   bool
}

func (f *scriptService) Stream(ctx context.Context, _ completion.Request) (completion.Stream, error) {
	sb := completion.NewStreamBuilder(len(f.chunks) + 1)
	go func() {
		sb.Add(f.chunks...)
		if f.hold {
			<-ctx.Done()
			sb.Abort(ctx.Err())
			return
		}
		sb.Done()
	}()
	return sb.Stream(), nil
}

func (f *scriptService) Complete(context.Context, completion.Request) (string, error) {
	return f.answer, nil
}

type fixedSearcher struct{}

func (fixedSearcher) Search(_ context.Context, q string) (*imagesearch.Photo, error) {
	return &imagesearch.Photo{ImageURL: "https://img/" + q}, nil
}

func startSession(t *testing.T, cfg Config) *Session {
	t.Helper()
	if cfg.Cadence == 0 {
		cfg.Cadence = time.Millisecond
	}
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return s
}

func waitFor(t *testing.T, s *Session, cond func(View) bool) View {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		v, err := s.View(context.Background())
		if err != nil {
			t.Fatalf("View: %v", err)
		}
		if cond(v) {
			return v
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not met; view = %+v", v)
		}
		time.Sleep(time.Millisecond)
	}
}

func inState(st editor.State) func(View) bool {
	return func(v View) bool { return v.Snapshot.State == st }
}

func TestNew_RequiresService(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New without service succeeded")
	}
}

func TestSession_Journal(t *testing.T) {
	ctx := context.Background()
	s := startSession(t, Config{
		Service:  &scriptService{chunks: []string{" and", " on."}, answer: " instead."},
		Settings: completion.Settings{VariantCount: 2},
		Text:     "On and",
	})

	if err := s.Generate(ctx, completion.ModeLine); err != nil {
		t.Fatal(err)
	}
	waitFor(t, s, inState(editor.StateReviewing))
	if err := s.Next(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Accept(ctx); err != nil {
		t.Fatal(err)
	}
	v := waitFor(t, s, inState(editor.StateIdle))
	if v.Text != "On and instead." {
		t.Errorf("text = %q", v.Text)
	}

	entries, err := s.History(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("history = %+v", entries)
	}
	if e := entries[0]; e.Outcome != journal.Succeeded || e.Mode != completion.ModeLine || e.From != 6 || e.To != 14 || e.Generation == "" {
		t.Errorf("succeeded entry = %+v", e)
	}
	if e := entries[1]; e.Outcome != journal.Accepted || e.Selected != 1 || e.To != 15 {
		t.Errorf("accepted entry = %+v", e)
	}
}

func TestSession_ShortcutGenerateToggles(t *testing.T) {
	ctx := context.Background()
	s := startSession(t, Config{
		Service:  &scriptService{chunks: []string{"x"}, hold: true},
		Settings: completion.Settings{VariantCount: 1},
		Text:     "Hi",
	})

	if err := s.Shortcut(ctx, ShortcutNext); err != nil {
		t.Fatal(err)
	}
	if err := s.Shortcut(ctx, ShortcutGenerate); err != nil {
		t.Fatal(err)
	}
	waitFor(t, s, inState(editor.StateGenerating))
	if err := s.Shortcut(ctx, ShortcutGenerate); err != nil {
		t.Fatal(err)
	}
	waitFor(t, s, inState(editor.StateIdle))

	entries, _ := s.History(ctx)
	if len(entries) != 1 || entries[0].Outcome != journal.Stopped {
		t.Errorf("history = %+v", entries)
	}
	if err := s.Shortcut(ctx, "bold"); err == nil {
		t.Error("unknown shortcut accepted")
	}
	if err := s.Shortcut(ctx, ShortcutImage); !errors.Is(err, ErrNoSearcher) {
		t.Errorf("image without searcher = %v", err)
	}
}

func TestSession_AutoTitle(t *testing.T) {
	ctx := context.Background()
	s := startSession(t, Config{Service: &scriptService{answer: "A Quiet Harbor."}})

	if err := s.Type(ctx, "Boats rest."); err != nil {
		t.Fatal(err)
	}
	if s.Title() != "" {
		t.Errorf("short document titled %q", s.Title())
	}
	if err := s.Type(ctx, " The harbor is quiet tonight and the gulls have gone to sleep on the long grey pier."); err != nil {
		t.Fatal(err)
	}
	v := waitFor(t, s, func(v View) bool { return v.Title != "" })
	if v.Title != "A Quiet Harbor" {
		t.Errorf("title = %q", v.Title)
	}

	s.SetTitle("Mine")
	s.Type(ctx, " More words.")
	if s.Title() != "Mine" {
		t.Errorf("title = %q", s.Title())
	}
}

func TestSession_Illustrate(t *testing.T) {
	s := startSession(t, Config{
		Service:  &scriptService{answer: `{"keywords": ["harbor", "boats"]}`},
		Searcher: fixedSearcher{},
		Text:     "Boats rest in the harbor.",
	})
	views, cancel := s.Subscribe(8)
	defer cancel()

	il, err := s.Illustrate(context.Background())
	if err != nil {
		t.Fatalf("Illustrate: %v", err)
	}
	if il.Photo.ImageURL != "https://img/harbor boats" {
		t.Errorf("photo = %+v", il.Photo)
	}
	select {
	case v := <-views:
		if v.Illustration == nil || v.Illustration.Query != "harbor boats" {
			t.Errorf("view illustration = %+v", v.Illustration)
		}
	case <-time.After(time.Second):
		t.Fatal("no view published")
	}
}

func TestSession_MoveCursorAccepts(t *testing.T) {
	ctx := context.Background()
	s := startSession(t, Config{
		Service:  &scriptService{chunks: []string{"!"}, answer: "?"},
		Settings: completion.Settings{VariantCount: 2},
		Text:     "Hey",
	})
	s.Generate(ctx, completion.ModeContinue)
	waitFor(t, s, inState(editor.StateReviewing))
	if err := s.MoveCursor(ctx, 0); err != nil {
		t.Fatal(err)
	}
	v := waitFor(t, s, inState(editor.StateIdle))
	if v.Cursor != 0 || v.Text != "Hey!" {
		t.Errorf("view = %+v", v)
	}
	if err := s.MoveCursor(ctx, 99); err == nil {
		t.Error("out of range cursor accepted")
	}
}

func TestSession_ReadOnlyWhileGenerating(t *testing.T) {
	ctx := context.Background()
	const streamed = "abcdefghijklmnopqrstuvwxyz"
	s := startSession(t, Config{
		Service:  &scriptService{chunks: []string{streamed}, answer: "zyx"},
		Settings: completion.Settings{VariantCount: 2},
		Cadence:  2 * time.Millisecond,
		Text:     "Hello ",
	})
	if err := s.MoveCursor(ctx, 6); err != nil {
		t.Fatal(err)
	}

	if err := s.Generate(ctx, completion.ModeContinue); err != nil {
		t.Fatal(err)
	}
	if err := s.Type(ctx, "USER"); !errors.Is(err, editor.ErrReadOnly) {
		t.Errorf("Type while generating = %v; want ErrReadOnly", err)
	}
	if err := s.MoveCursor(ctx, 0); !errors.Is(err, editor.ErrReadOnly) {
		t.Errorf("MoveCursor while generating = %v; want ErrReadOnly", err)
	}

	v := waitFor(t, s, inState(editor.StateReviewing))
	r := v.Snapshot.Context.Range
	if r == nil {
		t.Fatal("no range in review")
	}
	if v.Text != "Hello "+streamed {
		t.Errorf("text = %q", v.Text)
	}
	if !editor.Holds(s.Document(), *r, v.Snapshot.Context.Candidates[0]) {
		t.Errorf("range %+v does not hold candidate 0 in %q", *r, v.Text)
	}

	if err := s.Type(ctx, "!"); err != nil {
		t.Fatalf("Type while reviewing: %v", err)
	}
	v = waitFor(t, s, inState(editor.StateIdle))
	if v.Text != "Hello "+streamed+"!" {
		t.Errorf("text after accept = %q", v.Text)
	}
}

func TestSession_Imagine(t *testing.T) {
	ctx := context.Background()
	s := startSession(t, Config{Service: &scriptService{}, Text: "A red kite over the dunes."})
	if _, err := s.Imagine(ctx, ""); !errors.Is(err, ErrNoImager) {
		t.Errorf("Imagine without imager = %v; want ErrNoImager", err)
	}

	prompts := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Contents []struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"contents"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if len(body.Contents) > 0 && len(body.Contents[0].Parts) > 0 {
			prompts <- body.Contents[0].Parts[0].Text
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"candidates": [{"content": {"parts": [{"inlineData": {"mimeType": "image/png", "data": "AAE="}}]}}]}`)
	}))
	defer srv.Close()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      "k",
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: srv.URL + "/"},
	})
	if err != nil {
		t.Fatal(err)
	}

	s = startSession(t, Config{
		Service: &scriptService{},
		Imager:  &assist.Imager{Client: client},
		Text:    "A red kite over the dunes.",
	})
	img, err := s.Imagine(ctx, "the kite")
	if err != nil {
		t.Fatalf("Imagine: %v", err)
	}
	if img.DataURL() != "data:image/png;base64,AAE=" {
		t.Errorf("image = %q", img.DataURL())
	}
	if prompt := <-prompts; !strings.HasSuffix(prompt, "\nthe kite") {
		t.Errorf("prompt = %q", prompt)
	}
}
