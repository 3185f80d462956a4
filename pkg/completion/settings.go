package completion

import "fmt"

// Mode selects the shape of the requested continuation.
type Mode string

const (
	ModeContinue  Mode = "continue"
	ModeLine      Mode = "line"
	ModeParagraph Mode = "paragraph"
)

// ParseMode parses a mode name. The empty string is ModeContinue.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeContinue:
		return ModeContinue, nil
	case ModeLine, ModeParagraph:
		return Mode(s), nil
	}
	return "", fmt.Errorf("completion: unknown mode %q", s)
}

// Tone selects the writing voice.
type Tone string

const (
	ToneProfessional Tone = "professional"
	ToneCreative     Tone = "creative"
	ToneCasual       Tone = "casual"
	ToneAcademic     Tone = "academic"
)

// Length selects the continuation length used by ModeContinue.
type Length string

const (
	LengthShort  Length = "short"
	LengthMedium Length = "medium"
	LengthLong   Length = "long"
)

// MaxVariants bounds Settings.VariantCount.
const MaxVariants = 4

// Settings are the user preferences that shape a generation.
type Settings struct {
	Tone         Tone   `json:"tone" yaml:"tone"`
	Length       Length `json:"length" yaml:"length"`
	VariantCount int    `json:"variant_count" yaml:"variant_count"`
}

// DefaultSettings returns creative tone, medium length and four variants.
func DefaultSettings() Settings {
	return Settings{
		Tone:         ToneCreative,
		Length:       LengthMedium,
		VariantCount: MaxVariants,
	}
}

// Normalize fills unknown fields with defaults and clamps VariantCount to
// [1, MaxVariants].
func (s Settings) Normalize() Settings {
	def := DefaultSettings()
	switch s.Tone {
	case ToneProfessional, ToneCreative, ToneCasual, ToneAcademic:
	default:
		s.Tone = def.Tone
	}
	switch s.Length {
	case LengthShort, LengthMedium, LengthLong:
	default:
		s.Length = def.Length
	}
	switch {
	case s.VariantCount < 1:
		s.VariantCount = 1
	case s.VariantCount > MaxVariants:
		s.VariantCount = MaxVariants
	}
	return s
}
