package assist

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// FallbackWords is the number of leading words used when a service answer
// is unavailable.
const FallbackWords = 6

// leadingWords returns the first n words of text joined by single spaces.
func leadingWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}

// decodeJSON decodes a model answer into v. Code fences are stripped and
// malformed JSON is repaired before giving up.
func decodeJSON(answer string, v any) error {
	s := strings.TrimSpace(answer)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	err := json.Unmarshal([]byte(s), v)
	if err == nil {
		return nil
	}
	if _, ok := err.(*json.SyntaxError); !ok {
		return fmt.Errorf("assist: decode answer: %w", err)
	}
	fixed, rerr := jsonrepair.JSONRepair(s)
	if rerr != nil {
		return fmt.Errorf("assist: repair answer: %w", rerr)
	}
	if err := json.Unmarshal([]byte(fixed), v); err != nil {
		return fmt.Errorf("assist: decode repaired answer: %w", err)
	}
	return nil
}
