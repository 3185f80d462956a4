// Package cli provides terminal helpers for the chronicle command.
//
// Output writes command results as YAML (the default), JSON or raw text.
// Frame renders the bordered view used by the interactive writer.
//
//	cli.Output(view, cli.OutputOptions{Format: cli.FormatJSON})
package cli
