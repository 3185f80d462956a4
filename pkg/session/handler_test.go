package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haivivi/chronicle/pkg/completion"
	"github.com/haivivi/chronicle/pkg/editor"
	"github.com/haivivi/chronicle/pkg/imagesearch"
	"github.com/haivivi/chronicle/pkg/journal"
)

func TestHandler(t *testing.T) {
	h := NewHandler(func(*http.Request) (Config, error) {
		return Config{
			Service:  &scriptService{chunks: []string{" world"}, answer: " there"},
			Settings: completion.Settings{VariantCount: 2},
			Cadence:  time.Millisecond,
			Text:     "hello",
		}, nil
	})
	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer ws.Close()
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))

	read := func() Message {
		t.Helper()
		var m Message
		if err := ws.ReadJSON(&m); err != nil {
			t.Fatalf("ReadJSON: %v", err)
		}
		return m
	}

	first := read()
	if first.Type != "view" || first.View.Text != "hello" {
		t.Fatalf("first message = %+v", first)
	}

	if err := ws.WriteJSON(Command{Op: "generate", Mode: completion.ModeContinue}); err != nil {
		t.Fatal(err)
	}
	for {
		m := read()
		if m.Type == "error" {
			t.Fatalf("error: %s", m.Error)
		}
		if m.Type == "view" && m.View.Snapshot.State == editor.StateReviewing {
			if m.View.Text != "hello world" {
				t.Errorf("text = %q", m.View.Text)
			}
			break
		}
	}

	ws.WriteJSON(Command{Op: "history"})
	for {
		m := read()
		if m.Type != "history" {
			continue
		}
		if len(m.History) != 1 || m.History[0].Outcome != journal.Succeeded {
			t.Errorf("history = %+v", m.History)
		}
		break
	}

	ws.WriteJSON(Command{Op: "teleport"})
	for {
		m := read()
		if m.Type != "error" {
			continue
		}
		if !strings.Contains(m.Error, "teleport") {
			t.Errorf("error = %q", m.Error)
		}
		break
	}
}

// gatedSearcher answers once release is closed.
type gatedSearcher struct {
	release chan struct{}
}

func (g gatedSearcher) Search(ctx context.Context, q string) (*imagesearch.Photo, error) {
	select {
	case <-g.release:
		return &imagesearch.Photo{ImageURL: "https://img/" + q}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestHandler_ImageDoesNotBlockCommands(t *testing.T) {
	release := make(chan struct{})
	h := NewHandler(func(*http.Request) (Config, error) {
		return Config{
			Service:  &scriptService{answer: `{"keywords": ["sea"]}`},
			Searcher: gatedSearcher{release: release},
			Cadence:  time.Millisecond,
			Text:     "The sea is calm.",
		}, nil
	})
	srv := httptest.NewServer(h)
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer ws.Close()
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first Message
	if err := ws.ReadJSON(&first); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}

	ws.WriteJSON(Command{Op: "image"})
	ws.WriteJSON(Command{Op: "settings", Settings: &completion.Settings{VariantCount: 2}})
	for {
		var m Message
		if err := ws.ReadJSON(&m); err != nil {
			t.Fatalf("settings not applied while image search is pending: %v", err)
		}
		if m.Type == "error" {
			t.Fatalf("error: %s", m.Error)
		}
		if m.View != nil && m.View.Illustration != nil {
			t.Fatal("illustration arrived before the search was released")
		}
		if m.View != nil && m.View.Snapshot.Settings.VariantCount == 2 {
			break
		}
	}

	close(release)
	for {
		var m Message
		if err := ws.ReadJSON(&m); err != nil {
			t.Fatalf("ReadJSON: %v", err)
		}
		if m.View != nil && m.View.Illustration != nil {
			if m.View.Illustration.Photo.ImageURL != "https://img/sea" {
				t.Errorf("illustration = %+v", m.View.Illustration.Photo)
			}
			break
		}
	}
}
