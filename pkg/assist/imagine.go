package assist

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"

	"google.golang.org/genai"

	"github.com/haivivi/chronicle/pkg/completion"
)

// DefaultImageModel is the Gemini model that draws illustrations.
const DefaultImageModel = "gemini-2.5-flash-image"

// ContextWords is the number of trailing document words an image is drawn
// from when nothing is selected.
const ContextWords = 60

// ErrNoImage is returned when the model answers without image data.
var ErrNoImage = errors.New("assist: image generation failed")

// Image is a generated picture.
type Image struct {
	Prompt   string `json:"prompt" yaml:"prompt"`
	MIMEType string `json:"mime_type" yaml:"mime_type"`
	Data     []byte `json:"data" yaml:"-"`
}

// DataURL returns the image as a data: URL.
func (im *Image) DataURL() string {
	return "data:" + im.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(im.Data)
}

// Imager draws pictures for passages with a Gemini image model.
type Imager struct {
	Client *genai.Client

	// Model defaults to DefaultImageModel.
	Model string
}

// ImageContext picks the passage to draw: the selection when it has text,
// otherwise the last ContextWords words of the document.
func ImageContext(text, selection string) string {
	if s := strings.TrimSpace(selection); s != "" {
		return s
	}
	return trailingWords(text, ContextWords)
}

// Imagine generates a picture for the selection, or for the end of text
// when the selection is empty.
func (im *Imager) Imagine(ctx context.Context, text, selection string) (*Image, error) {
	passage := ImageContext(text, selection)
	if passage == "" {
		return nil, ErrEmptyDocument
	}
	model := strings.TrimPrefix(im.Model, "models/")
	if model == "" {
		model = DefaultImageModel
	}

	prompt := "Create an illustrative, high-quality image that visually complements the following passage:\n" + passage
	resp, err := im.Client.Models.GenerateContent(ctx, model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseModalities: []string{string(genai.ModalityText), string(genai.ModalityImage)},
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &completion.ServiceError{Provider: "gemini", Message: err.Error(), Err: err}
	}
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if p == nil || p.InlineData == nil || len(p.InlineData.Data) == 0 {
				continue
			}
			mime := p.InlineData.MIMEType
			if mime == "" {
				mime = "image/png"
			}
			return &Image{Prompt: prompt, MIMEType: mime, Data: p.InlineData.Data}, nil
		}
	}
	return nil, ErrNoImage
}

// trailingWords returns the last n words of text joined by single spaces.
func trailingWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) > n {
		words = words[len(words)-n:]
	}
	return strings.Join(words, " ")
}
