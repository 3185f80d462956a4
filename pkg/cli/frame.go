package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme defines the colors of a Frame.
type Theme struct {
	Primary lipgloss.Color
	Accent  lipgloss.Color // selected candidate, generated range
	Dim     lipgloss.Color
	Alert   lipgloss.Color
}

// DefaultTheme is the default green theme.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Accent:  lipgloss.Color("#ffd866"),
	Dim:     lipgloss.Color("#6e7681"),
	Alert:   lipgloss.Color("#ff6188"),
}

// Styles holds all styles derived from a theme.
type Styles struct {
	Title  lipgloss.Style
	Label  lipgloss.Style
	Border lipgloss.Style
	Help   lipgloss.Style
	Mark   lipgloss.Style
	Alert  lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Title:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary).Padding(0, 1),
		Label:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Border: lipgloss.NewStyle().Foreground(t.Primary),
		Help:   lipgloss.NewStyle().Foreground(t.Dim),
		Mark:   lipgloss.NewStyle().Bold(true).Foreground(t.Accent),
		Alert:  lipgloss.NewStyle().Foreground(t.Alert),
	}
}

// Section is a labeled block of lines inside a Frame.
type Section struct {
	Label string
	Lines []string

	// Tail shows the last lines when Lines does not fit, e.g. a document
	// whose end is being written.
	Tail bool

	// Height fixes the number of rows. Zero shares the remaining rows.
	Height int
}

// Frame renders a bordered view with a title, sections and a help line.
type Frame struct {
	Styles   Styles
	Title    string
	Status   string
	Sections []Section
	Help     string
}

// Render renders the frame for a terminal of the given size. When every
// section shares rows the result has exactly height lines.
func (f Frame) Render(width, height int) string {
	if width < 8 || height < 6 {
		return f.Title + " [" + f.Status + "]"
	}

	bc := f.Styles.Border
	inner := width - 4

	var lines []string
	lines = append(lines, bc.Render("╭"+strings.Repeat("─", width-2)+"╮"))

	// │ title [status]    │
	title := f.Styles.Title.Render(f.Title)
	status := f.Styles.Help.Render("[" + f.Status + "]")
	padding := max(0, width-5-lipgloss.Width(title)-lipgloss.Width(status))
	lines = append(lines, bc.Render("│")+" "+title+" "+status+
		strings.Repeat(" ", padding)+" "+bc.Render("│"))

	heights := f.heights(height)
	for i, sec := range f.Sections {
		lines = append(lines, f.renderSection(sec, heights[i], width, inner)...)
	}

	lines = append(lines, bc.Render("╰"+strings.Repeat("─", width-2)+"╯"))
	lines = append(lines, f.Styles.Help.Render(f.Help))
	return strings.Join(lines, "\n")
}

// heights splits the rows left after borders, title, labels and help
// between sections without a fixed Height.
func (f Frame) heights(height int) []int {
	n := len(f.Sections)
	out := make([]int, n)
	avail := height - 4 - n
	flex := 0
	for i, sec := range f.Sections {
		if sec.Height > 0 {
			out[i] = sec.Height
			avail -= sec.Height
		} else {
			flex++
		}
	}
	if flex == 0 {
		return out
	}
	share := max(avail/flex, 1)
	for i := range out {
		if out[i] == 0 {
			out[i] = share
		}
	}
	return out
}

func (f Frame) renderSection(sec Section, height, width, inner int) []string {
	bc := f.Styles.Border

	// ├─Label────────┤
	label := f.Styles.Label.Render(sec.Label)
	padding := max(0, width-3-lipgloss.Width(label))
	lines := []string{bc.Render("├") + bc.Render("─") + label +
		bc.Render(strings.Repeat("─", padding)) + bc.Render("┤")}

	start := 0
	if sec.Tail && len(sec.Lines) > height {
		start = len(sec.Lines) - height
	}
	for i := range height {
		text := ""
		if idx := start + i; idx < len(sec.Lines) {
			text = sec.Lines[idx]
		}
		if lipgloss.Width(text) > inner {
			text = truncate(text, inner-1) + "…"
		}
		lines = append(lines, bc.Render("│")+" "+text+
			strings.Repeat(" ", max(0, inner-lipgloss.Width(text)))+" "+bc.Render("│"))
	}
	return lines
}

// truncate cuts s to at most width display cells. Styled strings are
// cut by rune and may lose their trailing reset.
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	runes := []rune(s)
	w := 0
	for i, r := range runes {
		rw := lipgloss.Width(string(r))
		if w+rw > width {
			return string(runes[:i])
		}
		w += rw
	}
	return s
}
