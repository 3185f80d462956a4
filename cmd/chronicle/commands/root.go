package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/haivivi/chronicle/cmd/chronicle/internal/config"
	"github.com/haivivi/chronicle/pkg/cli"
)

var (
	// Global flags
	verbose      bool
	contextName  string
	formatOutput string
	outputFile   string
	queryOutput  string

	// Global configuration (loaded at init time)
	globalConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "chronicle",
	Short: "Co-author documents with a text-completion model",
	Long: `chronicle - co-author a document with a text-completion model.

Ask for a continuation and watch it being typed into the document while
alternative candidates are fetched in parallel, then cycle between them
and accept the one you like.

Configuration is stored in the OS config directory:
  macOS:   ~/Library/Application Support/chronicle/
  Linux:   ~/.config/chronicle/
  Windows: %AppData%/chronicle/

Examples:
  # Create a context and configure a model
  chronicle config add-context dev
  chronicle config set dev completion provider gemini
  chronicle config set dev completion api_key '$GEMINI_API_KEY'
  chronicle config set dev completion model gemini-2.5-flash
  chronicle config use-context dev

  # One-shot candidates
  chronicle generate --mode line "The cat sat."

  # Interactive session
  chronicle write`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	pf.StringVarP(&contextName, "context", "c", "", "context to use (default: current context)")
	pf.StringVar(&formatOutput, "format", "yaml", "output format: yaml, json or raw")
	pf.StringVarP(&outputFile, "output", "o", "", "write output to a file")
	pf.StringVarP(&queryOutput, "query", "q", "", "jq expression applied to the output")
}

// configLoadErr stores the error from config.Load() for deferred reporting.
var configLoadErr error

func initConfig() {
	cfg, err := config.Load()
	if err != nil {
		configLoadErr = err
		return
	}
	globalConfig = cfg
}

// GetConfig returns the global configuration.
func GetConfig() (*config.Config, error) {
	if globalConfig == nil {
		if configLoadErr != nil {
			return nil, fmt.Errorf("config not available: %w", configLoadErr)
		}
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("config not available: %w", err)
		}
		globalConfig = cfg
	}
	return globalConfig, nil
}

// contextDir resolves the --context flag or the current context.
func contextDir() (string, error) {
	cfg, err := GetConfig()
	if err != nil {
		return "", err
	}
	return cfg.ResolveContext(contextName)
}

// output writes result using the global output flags.
func output(result any) error {
	format, err := cli.ParseFormat(formatOutput)
	if err != nil {
		return err
	}
	return cli.Output(result, cli.OutputOptions{
		Format: format,
		File:   outputFile,
		Query:  queryOutput,
	})
}
