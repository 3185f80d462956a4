package assist

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/haivivi/chronicle/pkg/completion"
)

// MinTitleWords is the document length, in words, at which a title is
// generated.
const MinTitleWords = 15

// ErrTooShort is returned when the document is below MinTitleWords.
var ErrTooShort = errors.New("assist: document too short for a title")

const titleSystem = "You write titles for documents. Answer with the title only: at most eight words, no quotes, no trailing punctuation."

// Titler names documents.
type Titler struct {
	Service completion.Service
}

// NeedsTitle reports whether a document should be titled: no title is set,
// the user has not edited it, and the text has at least MinTitleWords words.
func NeedsTitle(text, title string, edited bool) bool {
	return !edited && title == "" && len(strings.Fields(text)) >= MinTitleWords
}

// Title asks the service for a title of text. When the service fails or
// answers with nothing, the first words of text are used instead.
func (t *Titler) Title(ctx context.Context, text string) (string, error) {
	if len(strings.Fields(text)) < MinTitleWords {
		return "", ErrTooShort
	}
	fallback := leadingWords(text, FallbackWords)

	answer, err := t.Service.Complete(ctx, completion.Request{
		Prompt: completion.Prompt{
			System: titleSystem,
			Text:   "Title this document:\n\n" + leadingWords(text, 400),
		},
		Params: completion.SamplingParams{Temperature: 0.3},
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		slog.Warn("assist/title: falling back to leading words", "error", err)
		return fallback, nil
	}
	title := cleanTitle(answer)
	if title == "" {
		return fallback, nil
	}
	return title, nil
}

func cleanTitle(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimPrefix(s, "Title:")
	s = strings.Trim(strings.TrimSpace(s), "\"'*#")
	return strings.TrimRight(strings.TrimSpace(s), ".")
}
