package assist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/haivivi/chronicle/pkg/completion"
	"github.com/haivivi/chronicle/pkg/imagesearch"
)

// ErrEmptyDocument is returned when there is no text to illustrate.
var ErrEmptyDocument = errors.New("assist: add some text to the document before generating an image")

// keywordSummary is the structured answer requested from the model.
type keywordSummary struct {
	Keywords []string `json:"keywords" jsonschema:"three to five concrete visual keywords describing the scene of the text"`
}

var keywordPrompt = sync.OnceValues(func() (string, error) {
	schema, err := jsonschema.For[keywordSummary](nil)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return "", err
	}
	return "Summarize the text as keywords for a stock photo search. Respond with JSON only, matching this schema:\n" + string(data), nil
})

// Illustration is a photo chosen for a document.
type Illustration struct {
	Query    string             `json:"query" yaml:"query"`
	Keywords []string           `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Photo    *imagesearch.Photo `json:"photo" yaml:"photo"`
}

// Illustrator picks photos for documents.
type Illustrator struct {
	Service  completion.Service
	Searcher imagesearch.Searcher
}

// Keywords summarizes text into search keywords.
func (il *Illustrator) Keywords(ctx context.Context, text string) ([]string, error) {
	system, err := keywordPrompt()
	if err != nil {
		return nil, fmt.Errorf("assist: keyword schema: %w", err)
	}
	answer, err := il.Service.Complete(ctx, completion.Request{
		Prompt: completion.Prompt{
			System: system,
			Text:   leadingWords(text, 600),
		},
		Params: completion.SamplingParams{Temperature: 0.2},
	})
	if err != nil {
		return nil, err
	}
	var ks keywordSummary
	if err := decodeJSON(answer, &ks); err != nil {
		return nil, err
	}
	var out []string
	for _, k := range ks.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out, nil
}

// Illustrate finds a photo for text. The search query is the keyword
// summary, or the first words of text when no keywords are available.
func (il *Illustrator) Illustrate(ctx context.Context, text string) (*Illustration, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyDocument
	}

	keywords, err := il.Keywords(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("assist/illustrate: keyword summary failed", "error", err)
	}
	query := strings.Join(keywords, " ")
	if query == "" {
		query = leadingWords(text, FallbackWords)
	}

	photo, err := il.Searcher.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	return &Illustration{Query: query, Keywords: keywords, Photo: photo}, nil
}
