package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/haivivi/chronicle/cmd/chronicle/internal/config"
	"github.com/haivivi/chronicle/pkg/completion"
	"github.com/haivivi/chronicle/pkg/editor"
)

var generateFlags struct {
	mode     string
	model    string
	file     string
	tone     string
	length   string
	variants int
	stream   bool
}

// generateResult is the output of the generate command.
type generateResult struct {
	Mode       completion.Mode     `json:"mode" yaml:"mode"`
	Settings   completion.Settings `json:"settings" yaml:"settings"`
	Candidates []string            `json:"candidates" yaml:"candidates"`
}

var generateCmd = &cobra.Command{
	Use:   "generate [text]",
	Short: "Fetch continuation candidates for a text",
	Long: `Fetch continuation candidates for a text without an editing session.

The text is read from the arguments, from --file, or from stdin. The first
candidate is streamed; the others are fetched in parallel at increasing
temperatures.

Examples:
  chronicle generate --mode line "The cat sat."
  chronicle generate -f draft.md --variants 2 --format json
  cat draft.md | chronicle generate --stream -q '.candidates[0]' --format raw`,
	RunE: runGenerate,
}

func runGenerate(cmd *cobra.Command, args []string) error {
	text, err := readInput(args, generateFlags.file, cmd.InOrStdin())
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return editor.ErrEmptyInput
	}
	mode, err := completion.ParseMode(generateFlags.mode)
	if err != nil {
		return err
	}

	dir, err := contextDir()
	if err != nil {
		return err
	}
	ed, err := config.LoadEditor(dir)
	if err != nil {
		return err
	}
	settings := ed.Settings
	if generateFlags.tone != "" {
		settings.Tone = completion.Tone(generateFlags.tone)
	}
	if generateFlags.length != "" {
		settings.Length = completion.Length(generateFlags.length)
	}
	if generateFlags.variants > 0 {
		settings.VariantCount = generateFlags.variants
	}
	settings = settings.Normalize()

	ctx := cmd.Context()
	svc, err := newService(ctx, dir, generateFlags.model, ed)
	if err != nil {
		return err
	}
	coord := editor.NewCoordinator(svc)
	coord.BaseTemperature = ed.BaseTemperature
	coord.TemperatureStep = ed.TemperatureStep

	var onToken func(string)
	if generateFlags.stream {
		stderr := cmd.ErrOrStderr()
		onToken = func(tok string) { fmt.Fprint(stderr, tok) }
	}
	candidates, err := coord.Fetch(ctx, editor.FetchRequest{Text: text, Settings: settings, Mode: mode}, onToken)
	if generateFlags.stream {
		fmt.Fprintln(cmd.ErrOrStderr())
	}
	if err != nil {
		return err
	}
	return output(generateResult{Mode: mode, Settings: settings, Candidates: candidates})
}

// readInput returns the joined args, the contents of file ("-" is stdin),
// or stdin when neither is given.
func readInput(args []string, file string, stdin io.Reader) (string, error) {
	switch {
	case len(args) > 0:
		return strings.Join(args, " "), nil
	case file == "-" || file == "":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", file, err)
	}
	return string(data), nil
}

func init() {
	f := generateCmd.Flags()
	f.StringVar(&generateFlags.mode, "mode", string(completion.ModeContinue), "generation mode: continue, line or paragraph")
	f.StringVarP(&generateFlags.model, "model", "m", "", "model name from completion.yaml")
	f.StringVarP(&generateFlags.file, "file", "f", "", "read the text from a file (- for stdin)")
	f.StringVar(&generateFlags.tone, "tone", "", "tone: professional, creative, casual or academic")
	f.StringVar(&generateFlags.length, "length", "", "length: short, medium or long")
	f.IntVar(&generateFlags.variants, "variants", 0, "number of candidates (1-4)")
	f.BoolVar(&generateFlags.stream, "stream", false, "echo the first candidate to stderr as it streams")

	rootCmd.AddCommand(generateCmd)
}
