package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haivivi/chronicle/pkg/assist"
	"github.com/haivivi/chronicle/pkg/completion"
	"github.com/haivivi/chronicle/pkg/journal"
)

const (
	writeTimeout = 10 * time.Second
	viewBuffer   = 256
)

// Command is a client message.
type Command struct {
	Op string `json:"op"`

	Mode     completion.Mode      `json:"mode,omitempty"`
	Text     string               `json:"text,omitempty"`
	Cursor   *int                 `json:"cursor,omitempty"`
	Action   string               `json:"action,omitempty"`
	Title    string               `json:"title,omitempty"`
	Settings *completion.Settings `json:"settings,omitempty"`
}

// Message is a server message.
type Message struct {
	Type    string          `json:"type"`
	View    *View           `json:"view,omitempty"`
	History []journal.Entry `json:"history,omitempty"`
	Image   *Picture        `json:"image,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Picture is a generated image as sent to clients.
type Picture struct {
	Prompt string `json:"prompt"`
	URL    string `json:"url"`
}

// Handler serves one Session per WebSocket connection.
type Handler struct {
	// NewConfig returns the configuration of a new session.
	NewConfig func(r *http.Request) (Config, error)

	upgrader websocket.Upgrader
}

// NewHandler returns a Handler creating sessions from newConfig.
func NewHandler(newConfig func(r *http.Request) (Config, error)) *Handler {
	return &Handler{
		NewConfig: newConfig,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.NewConfig(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s, err := New(cfg)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("session/handler: upgrade failed", "error", err)
		return
	}
	defer ws.Close()
	defer func() {
		// history lives as long as the connection
		if err := s.Journal().Clear(context.Background()); err != nil {
			slog.Warn("session/handler: clear journal", "session", s.ID(), "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	slog.Info("session/handler: connected", "session", s.ID(), "remote", r.RemoteAddr)

	views, unsubscribe := s.Subscribe(viewBuffer)
	defer unsubscribe()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("session/handler: session stopped", "session", s.ID(), "error", err)
		}
	}()
	defer wg.Wait()
	defer cancel()

	// Closing the socket unblocks ReadJSON once the view writer gives up.
	go func() {
		<-ctx.Done()
		ws.Close()
	}()

	c := &conn{ws: ws}
	go func() {
		for v := range views {
			if err := c.write(Message{Type: "view", View: &v}); err != nil {
				cancel()
				return
			}
		}
	}()

	if v, err := s.View(ctx); err == nil {
		c.write(Message{Type: "view", View: &v})
	}

	for {
		var cmd Command
		if err := ws.ReadJSON(&cmd); err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) && ctx.Err() == nil {
				slog.Debug("session/handler: read failed", "session", s.ID(), "error", err)
			}
			return
		}
		if slow(cmd) {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if msg := s.exec(ctx, cmd); msg != nil {
					c.write(*msg)
				}
			}()
			continue
		}
		if msg := s.exec(ctx, cmd); msg != nil {
			if err := c.write(*msg); err != nil {
				return
			}
		}
	}
}

// slow reports whether cmd waits on an external service other than the
// orchestrator. Such commands run beside the read loop.
func slow(cmd Command) bool {
	switch cmd.Op {
	case "image", "imagine":
		return true
	case "shortcut":
		return cmd.Action == ShortcutImage
	}
	return false
}

// exec runs cmd. It returns a direct reply, if any; state changes reach
// the client as views.
func (s *Session) exec(ctx context.Context, cmd Command) *Message {
	var err error
	switch cmd.Op {
	case "generate":
		err = s.Generate(ctx, cmd.Mode)
	case "stop":
		err = s.Stop(ctx)
	case "retry":
		err = s.Retry(ctx)
	case "next":
		err = s.Next(ctx)
	case "prev":
		err = s.Prev(ctx)
	case "accept":
		err = s.Accept(ctx)
	case "type":
		err = s.Type(ctx, cmd.Text)
	case "cursor":
		if cmd.Cursor == nil {
			err = errors.New("session: cursor is required")
			break
		}
		err = s.MoveCursor(ctx, *cmd.Cursor)
	case "shortcut":
		err = s.Shortcut(ctx, cmd.Action)
	case "title":
		s.SetTitle(cmd.Title)
	case "settings":
		if cmd.Settings == nil {
			err = errors.New("session: settings are required")
			break
		}
		err = s.SetSettings(ctx, *cmd.Settings)
	case "image":
		_, err = s.Illustrate(ctx)
	case "imagine":
		var img *assist.Image
		if img, err = s.Imagine(ctx, cmd.Text); err == nil {
			return &Message{Type: "image", Image: &Picture{Prompt: img.Prompt, URL: img.DataURL()}}
		}
	case "view":
		var v View
		if v, err = s.View(ctx); err == nil {
			return &Message{Type: "view", View: &v}
		}
	case "history":
		var entries []journal.Entry
		if entries, err = s.History(ctx); err == nil {
			return &Message{Type: "history", History: entries}
		}
	default:
		err = fmt.Errorf("session: unknown op %q", cmd.Op)
	}
	if err != nil {
		return &Message{Type: "error", Error: err.Error()}
	}
	return nil
}

// conn serializes writes to a websocket.
type conn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *conn) write(m Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(m)
}
