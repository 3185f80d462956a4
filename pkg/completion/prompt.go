package completion

import "strings"

// contextWindow is how many trailing runes of the document are sent.
const contextWindow = 2000

var toneInstructions = map[Tone]string{
	ToneProfessional: "You are a professional editor. Use formal, concise, and business-appropriate language.",
	ToneCreative:     "You are a creative writer. Use evocative, descriptive, and engaging language.",
	ToneCasual:       "You are a friendly assistant. Use conversational, easy-to-understand language.",
	ToneAcademic:     "You are an academic researcher. Use precise, scholarly, and objective language.",
}

// SystemInstruction returns the system prompt for s.
func SystemInstruction(s Settings) string {
	s = s.Normalize()
	return toneInstructions[s.Tone] + " Do not repeat the last sentence of the input. Return ONLY the continuation text."
}

// LengthInstruction returns the length constraint for mode. Line and
// paragraph modes override the configured length.
func LengthInstruction(length Length, mode Mode) string {
	switch mode {
	case ModeLine:
		return "Write exactly one sentence."
	case ModeParagraph:
		return "Write exactly one complete paragraph."
	}
	switch length {
	case LengthShort:
		return "Write about 1-2 sentences."
	case LengthMedium:
		return "Write about 3-5 sentences."
	case LengthLong:
		return "Write about 2-3 paragraphs."
	}
	return ""
}

// BuildRequest builds the continuation request for the document text.
func BuildRequest(text string, s Settings, mode Mode) Request {
	s = s.Normalize()
	var sb strings.Builder
	sb.WriteString(LengthInstruction(s.Length, mode))
	sb.WriteString("\n\n---\nCurrent Text:\n")
	sb.WriteString(tail(text, contextWindow))
	sb.WriteString("\n---\nContinuation:")
	return Request{
		Prompt: Prompt{
			System: SystemInstruction(s),
			Text:   sb.String(),
		},
	}
}

// tail returns the last n runes of s.
func tail(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[len(rs)-n:])
}
