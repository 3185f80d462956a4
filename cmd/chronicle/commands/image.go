package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/haivivi/chronicle/cmd/chronicle/internal/config"
	"github.com/haivivi/chronicle/pkg/assist"
)

var imageFlags struct {
	file      string
	model     string
	search    string
	generate  bool
	selection string
	save      string
}

// imageResult is the output of image --generate.
type imageResult struct {
	Prompt   string `json:"prompt" yaml:"prompt"`
	MIMEType string `json:"mime_type" yaml:"mime_type"`
	Bytes    int    `json:"bytes" yaml:"bytes"`
	File     string `json:"file,omitempty" yaml:"file,omitempty"`
	URL      string `json:"url,omitempty" yaml:"url,omitempty"`
}

var imageCmd = &cobra.Command{
	Use:   "image [text]",
	Short: "Find or draw an illustration for a text",
	Long: `Summarise a text to keywords and search Pexels for a matching photo.

With --search the keywords step is skipped and the query is used as is.
Requires pexels.yaml in the context.

With --generate a Gemini image model draws a picture for the selection, or
for the last words of the text. Requires the gemini provider in
completion.yaml; the model is image_model in editor.yaml.

Examples:
  chronicle image -f draft.md
  chronicle image --search "lighthouse at dusk" -q .image_url --format raw
  chronicle image --generate -f draft.md --save cover.png`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := contextDir()
		if err != nil {
			return err
		}
		if imageFlags.generate {
			return runImagine(cmd, args, dir)
		}

		searcher, err := newSearcher(dir)
		if err != nil {
			return err
		}
		if searcher == nil {
			return errors.New("pexels is not configured; use 'chronicle config set <context> pexels api_key <key>'")
		}
		ctx := cmd.Context()

		if imageFlags.search != "" {
			photo, err := searcher.Search(ctx, imageFlags.search)
			if err != nil {
				return err
			}
			return output(photo)
		}

		text, err := readInput(args, imageFlags.file, cmd.InOrStdin())
		if err != nil {
			return err
		}
		ed, err := config.LoadEditor(dir)
		if err != nil {
			return err
		}
		svc, err := newService(ctx, dir, imageFlags.model, ed)
		if err != nil {
			return err
		}
		il := &assist.Illustrator{Service: svc, Searcher: searcher}
		res, err := il.Illustrate(ctx, text)
		if err != nil {
			return fmt.Errorf("illustrate: %w", err)
		}
		return output(res)
	},
}

func runImagine(cmd *cobra.Command, args []string, dir string) error {
	ctx := cmd.Context()
	ed, err := config.LoadEditor(dir)
	if err != nil {
		return err
	}
	imager, err := newImager(ctx, dir, ed)
	if err != nil {
		return err
	}
	if imager == nil {
		return errors.New("image generation needs the gemini provider in completion.yaml")
	}
	var text string
	if imageFlags.selection == "" {
		if text, err = readInput(args, imageFlags.file, cmd.InOrStdin()); err != nil {
			return err
		}
	}
	img, err := imager.Imagine(ctx, text, imageFlags.selection)
	if err != nil {
		return fmt.Errorf("imagine: %w", err)
	}

	res := imageResult{Prompt: img.Prompt, MIMEType: img.MIMEType, Bytes: len(img.Data)}
	if imageFlags.save != "" {
		if err := os.WriteFile(imageFlags.save, img.Data, 0o644); err != nil {
			return fmt.Errorf("save image: %w", err)
		}
		res.File = imageFlags.save
	} else {
		res.URL = img.DataURL()
	}
	return output(res)
}

func init() {
	f := imageCmd.Flags()
	f.StringVarP(&imageFlags.file, "file", "f", "", "read the text from a file (- for stdin)")
	f.StringVarP(&imageFlags.model, "model", "m", "", "model name from completion.yaml")
	f.StringVar(&imageFlags.search, "search", "", "search this query directly")
	f.BoolVar(&imageFlags.generate, "generate", false, "draw a picture with the Gemini image model")
	f.StringVar(&imageFlags.selection, "selection", "", "passage to draw instead of the end of the text")
	f.StringVar(&imageFlags.save, "save", "", "write the drawn image to this file")

	rootCmd.AddCommand(imageCmd)
}
