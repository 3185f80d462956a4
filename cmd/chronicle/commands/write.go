package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/haivivi/chronicle/pkg/cli"
	"github.com/haivivi/chronicle/pkg/completion"
	"github.com/haivivi/chronicle/pkg/editor"
	"github.com/haivivi/chronicle/pkg/session"
)

var writeFlags struct {
	sessionFlags
	file  string
	plain bool
}

const writeHelp = ":gen [mode]  :line  :para  :stop  :retry  :next  :prev  :accept  :cursor N  :title [text]  :image  :draw FILE [text]  :history  :settings k=v  :quit"

// redrawInterval bounds how often the frame is redrawn while text streams.
const redrawInterval = 33 * time.Millisecond

var writeCmd = &cobra.Command{
	Use:   "write",
	Short: "Co-author a document interactively",
	Long: `Start an editing session in the terminal.

Lines you enter are typed into the document at the cursor; an empty line
types a line break. Lines starting with ':' are commands:

  :gen [continue|line|paragraph]   generate (while generating: stop)
  :line, :para                     generate one sentence / one paragraph
  :stop                            stop the running generation
  :retry                           retry after an error
  :next, :prev                     cycle candidates while reviewing
  :accept                          keep the current candidate
  :cursor N                        move the cursor to rune N
  :title [text]                    show or set the title
  :image                           find an illustration
  :draw FILE [passage]             draw a picture of the passage or the
                                   last words of the document into FILE
  :history                         show the generation journal
  :settings tone=casual variants=2 change the generation settings
  :view                            print the session view
  :quit                            leave and print the document

Examples:
  chronicle write
  chronicle write -f draft.md --plain`,
	RunE: runWrite,
}

func runWrite(cmd *cobra.Command, args []string) error {
	dir, err := contextDir()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	cfg, store, err := writeFlags.sessionConfig(ctx, dir)
	if err != nil {
		return err
	}
	defer store.Close()
	if writeFlags.file != "" {
		data, err := os.ReadFile(writeFlags.file)
		if err != nil {
			return fmt.Errorf("read %s: %w", writeFlags.file, err)
		}
		cfg.Text = string(data)
	}

	s, err := session.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Journal().Clear(context.Background()); err != nil {
			slog.Warn("chronicle: clear journal", "error", err)
		}
	}()
	out := cmd.OutOrStdout()
	plain := writeFlags.plain || !isTerminal(out)
	w := newWriter(s, out, plain)

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	views, unsubscribe := s.Subscribe(64)
	defer unsubscribe()
	go w.watch(ctx, views)

	if err := s.MoveCursor(ctx, s.Document().Len()); err != nil {
		return err
	}
	err = w.loop(ctx, cmd.InOrStdin())
	cancel()
	if runErr := <-done; runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(out, s.Document().Text())
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// writer drives one session from line input and renders its views.
type writer struct {
	s      *session.Session
	out    io.Writer
	plain  bool
	styles cli.Styles

	mu    sync.Mutex
	last  session.View
	note  string
	dirty bool
}

func newWriter(s *session.Session, out io.Writer, plain bool) *writer {
	return &writer{s: s, out: out, plain: plain, styles: cli.NewStyles(cli.DefaultTheme)}
}

// loop reads lines until EOF or :quit.
func (w *writer) loop(ctx context.Context, in io.Reader) error {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		quit, err := w.exec(ctx, sc.Text())
		if err != nil {
			if errors.Is(err, editor.ErrClosed) {
				return nil
			}
			w.setNote("error: " + err.Error())
		}
		if quit {
			return nil
		}
	}
	return sc.Err()
}

// exec runs one input line.
func (w *writer) exec(ctx context.Context, line string) (quit bool, err error) {
	if line == "" {
		return false, w.s.Type(ctx, "\n")
	}
	if !strings.HasPrefix(line, ":") {
		return false, w.s.Type(ctx, line)
	}
	fields := strings.Fields(line[1:])
	if len(fields) == 0 {
		return false, nil
	}
	name, rest := fields[0], fields[1:]
	switch name {
	case "gen", "g":
		if len(rest) == 0 {
			return false, w.s.Shortcut(ctx, session.ShortcutGenerate)
		}
		mode, err := completion.ParseMode(rest[0])
		if err != nil {
			return false, err
		}
		return false, w.s.Generate(ctx, mode)
	case "line":
		return false, w.s.Shortcut(ctx, session.ShortcutLine)
	case "para", "paragraph":
		return false, w.s.Shortcut(ctx, session.ShortcutParagraph)
	case "stop":
		return false, w.s.Stop(ctx)
	case "retry":
		return false, w.s.Retry(ctx)
	case "next", "n":
		return false, w.s.Shortcut(ctx, session.ShortcutNext)
	case "prev", "p":
		return false, w.s.Shortcut(ctx, session.ShortcutPrev)
	case "accept", "a":
		return false, w.s.Accept(ctx)
	case "cursor":
		if len(rest) != 1 {
			return false, errors.New("usage: :cursor N")
		}
		pos, err := strconv.Atoi(rest[0])
		if err != nil {
			return false, fmt.Errorf("invalid cursor %q", rest[0])
		}
		return false, w.s.MoveCursor(ctx, pos)
	case "title":
		if len(rest) == 0 {
			w.setNote("title: " + w.s.Title())
			return false, nil
		}
		w.s.SetTitle(strings.Join(rest, " "))
		return false, nil
	case "image":
		il, err := w.s.Illustrate(ctx)
		if err != nil {
			return false, err
		}
		w.setNote("image: " + il.Photo.ImageURL)
		return false, nil
	case "draw":
		if len(rest) == 0 {
			return false, errors.New("usage: :draw FILE [passage]")
		}
		img, err := w.s.Imagine(ctx, strings.Join(rest[1:], " "))
		if err != nil {
			return false, err
		}
		if err := os.WriteFile(rest[0], img.Data, 0o644); err != nil {
			return false, err
		}
		w.setNote(fmt.Sprintf("drew %s (%s, %d bytes)", rest[0], img.MIMEType, len(img.Data)))
		return false, nil
	case "history":
		entries, err := w.s.History(ctx)
		if err != nil {
			return false, err
		}
		return false, cli.Output(entries, cli.OutputOptions{Writer: w.out})
	case "settings":
		return false, w.settings(ctx, rest)
	case "view":
		v, err := w.s.View(ctx)
		if err != nil {
			return false, err
		}
		return false, cli.Output(v, cli.OutputOptions{Writer: w.out})
	case "help", "h":
		w.setNote(writeHelp)
		return false, nil
	case "quit", "q":
		return true, nil
	}
	return false, fmt.Errorf("unknown command :%s", name)
}

// settings applies tone=, length= and variants= pairs to the current
// settings.
func (w *writer) settings(ctx context.Context, pairs []string) error {
	v, err := w.s.View(ctx)
	if err != nil {
		return err
	}
	st := v.Snapshot.Settings
	for _, p := range pairs {
		key, val, ok := strings.Cut(p, "=")
		if !ok {
			return fmt.Errorf("invalid setting %q, want key=value", p)
		}
		switch key {
		case "tone":
			st.Tone = completion.Tone(val)
		case "length":
			st.Length = completion.Length(val)
		case "variants":
			n, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("invalid variants %q", val)
			}
			st.VariantCount = n
		default:
			return fmt.Errorf("unknown setting %q", key)
		}
	}
	if err := w.s.SetSettings(ctx, st); err != nil {
		return err
	}
	st = st.Normalize()
	w.setNote(fmt.Sprintf("settings: tone=%s length=%s variants=%d", st.Tone, st.Length, st.VariantCount))
	return nil
}

func (w *writer) setNote(note string) {
	w.mu.Lock()
	w.note, w.dirty = note, true
	w.mu.Unlock()
	if w.plain {
		fmt.Fprintln(w.out, note)
	}
}

// watch consumes views until the subscription ends.
func (w *writer) watch(ctx context.Context, views <-chan session.View) {
	tick := time.NewTicker(redrawInterval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-views:
			if !ok {
				return
			}
			w.mu.Lock()
			w.last, w.dirty = v, true
			w.mu.Unlock()
			if w.plain {
				w.printEvent(v)
			}
		case <-tick.C:
			if !w.plain {
				w.redraw()
			}
		}
	}
}

// printEvent reports transitions in plain mode.
func (w *writer) printEvent(v session.View) {
	snap := v.Snapshot
	if snap.Event == "" {
		return
	}
	fmt.Fprintf(w.out, "[%s] %s\n", snap.Event, statusLine(v))
	if snap.State == editor.StateReviewing && snap.Event == "success" {
		for i, c := range snap.Context.Candidates {
			fmt.Fprintf(w.out, "  %d: %s\n", i+1, c)
		}
	}
}

func (w *writer) redraw() {
	w.mu.Lock()
	if !w.dirty {
		w.mu.Unlock()
		return
	}
	v, note := w.last, w.note
	w.dirty = false
	w.mu.Unlock()

	width, height := 80, 24
	if f, ok := w.out.(*os.File); ok {
		if cw, ch, err := term.GetSize(int(f.Fd())); err == nil {
			width, height = cw, ch-1
		}
	}
	fmt.Fprint(w.out, "\033[H\033[2J"+buildFrame(v, note, w.styles, width).Render(width, height)+"\n")
}

// statusLine describes the generation state of v.
func statusLine(v session.View) string {
	snap := v.Snapshot
	gc := snap.Context
	switch snap.State {
	case editor.StateGenerating:
		return fmt.Sprintf("generating %s, %d queued", snap.Mode, snap.Backlog)
	case editor.StateReviewing:
		return fmt.Sprintf("reviewing %d/%d", gc.SelectedIndex+1, len(gc.Candidates))
	case editor.StateError:
		return "error: " + gc.Error
	}
	return fmt.Sprintf("idle, %d words", snap.Stats.Words)
}

// buildFrame lays out the document, the candidates while reviewing, and
// the last note.
func buildFrame(v session.View, note string, styles cli.Styles, width int) cli.Frame {
	title := v.Title
	if title == "" {
		title = "chronicle"
	}
	sections := []cli.Section{{
		Label: "Document",
		Lines: cli.Wrap(v.Text, width-4),
		Tail:  true,
	}}

	gc := v.Snapshot.Context
	if v.Snapshot.State == editor.StateReviewing && len(gc.Candidates) > 0 {
		lines := make([]string, len(gc.Candidates))
		for i, c := range gc.Candidates {
			line := fmt.Sprintf("  %d %s", i+1, strings.Join(strings.Fields(c), " "))
			if i == gc.SelectedIndex {
				line = styles.Mark.Render(fmt.Sprintf("> %d %s", i+1, strings.Join(strings.Fields(c), " ")))
			}
			lines[i] = line
		}
		sections = append(sections, cli.Section{Label: "Candidates", Lines: lines, Height: len(lines)})
	}

	if il := v.Illustration; il != nil && il.Photo != nil {
		sections = append(sections, cli.Section{Label: "Image", Lines: []string{il.Query, il.Photo.ImageURL}, Height: 2})
	}
	if note != "" {
		line := note
		if strings.HasPrefix(note, "error: ") {
			line = styles.Alert.Render(note)
		}
		sections = append(sections, cli.Section{Label: "Note", Lines: []string{line}, Height: 1})
	}

	return cli.Frame{
		Styles:   styles,
		Title:    title,
		Status:   statusLine(v),
		Sections: sections,
		Help:     writeHelp,
	}
}

func init() {
	f := writeCmd.Flags()
	f.StringVarP(&writeFlags.file, "file", "f", "", "start from the contents of a file")
	f.BoolVar(&writeFlags.plain, "plain", false, "print events instead of redrawing a frame")
	f.StringVarP(&writeFlags.model, "model", "m", "", "model name from completion.yaml")
	f.StringVar(&writeFlags.store, "store", "", "journal store: memory, badger or badger:DIR")

	rootCmd.AddCommand(writeCmd)
}
