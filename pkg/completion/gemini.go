package completion

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/genai"
)

var _ Service = (*Gemini)(nil)

const geminiProvider = "gemini"

// Gemini implements Service with the Google Gemini API.
type Gemini struct {
	Client *genai.Client `json:"-"`

	// Model should not start with "models/".
	Model string `json:"model"`

	// Params are defaults for fields a request leaves zero.
	Params SamplingParams `json:"params,omitzero"`
}

func (g *Gemini) Stream(ctx context.Context, req Request) (Stream, error) {
	cfg, contents := g.convRequest(req)
	sb := NewStreamBuilder(32)
	go func() {
		if err := geminiPull(sb, g.Client.Models.GenerateContentStream(ctx, g.Model, contents, cfg)); err != nil {
			sb.Abort(serviceError(geminiProvider, geminiUnwrap(err)))
		}
	}()
	return sb.Stream(), nil
}

func (g *Gemini) Complete(ctx context.Context, req Request) (string, error) {
	cfg, contents := g.convRequest(req)
	resp, err := g.Client.Models.GenerateContent(ctx, g.Model, contents, cfg)
	if err != nil {
		return "", serviceError(geminiProvider, geminiUnwrap(err))
	}
	if len(resp.Candidates) == 0 {
		return "", serviceError(geminiProvider, errors.New("no candidates"))
	}
	c := resp.Candidates[0]
	text := geminiText(c)
	switch c.FinishReason {
	case genai.FinishReasonStop, genai.FinishReasonUnspecified, "":
	case genai.FinishReasonMaxTokens:
		slog.Debug("completion/gemini: truncated by max tokens", "model", g.Model)
	case genai.FinishReasonSafety:
		return "", blockedError(geminiProvider, geminiBlockedCategories(c))
	default:
		return "", serviceError(geminiProvider, fmt.Errorf("unexpected finish reason: %s", c.FinishReason))
	}
	return text, nil
}

func geminiPull(sb *StreamBuilder, itr iter.Seq2[*genai.GenerateContentResponse, error]) error {
	for chunk, err := range itr {
		if err != nil {
			return err
		}
		if len(chunk.Candidates) == 0 {
			continue
		}
		c := chunk.Candidates[0]
		if err := sb.Add(geminiText(c)); err != nil {
			return err
		}
		switch c.FinishReason {
		case genai.FinishReasonUnspecified, "":
			// more to come
		case genai.FinishReasonStop:
			return sb.Done()
		case genai.FinishReasonMaxTokens:
			slog.Debug("completion/gemini: stream truncated by max tokens")
			return sb.Done()
		case genai.FinishReasonSafety:
			return blockedError(geminiProvider, geminiBlockedCategories(c))
		default:
			return fmt.Errorf("unexpected finish reason: %s", c.FinishReason)
		}
	}
	// Some responses end without a finish reason on the last chunk.
	return sb.Done()
}

func geminiText(c *genai.Candidate) string {
	if c == nil || c.Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range c.Content.Parts {
		if p != nil && p.Text != "" && !p.Thought {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

func geminiBlockedCategories(c *genai.Candidate) string {
	var cats []string
	for _, sr := range c.SafetyRatings {
		if sr.Blocked {
			cats = append(cats, string(sr.Category))
		}
	}
	if len(cats) == 0 {
		return "safety"
	}
	return strings.Join(cats, ", ")
}

func geminiUnwrap(err error) error {
	if e, ok := err.(*apierror.APIError); ok {
		return e.Unwrap()
	}
	return err
}

func (g *Gemini) convRequest(req Request) (*genai.GenerateContentConfig, []*genai.Content) {
	cfg := &genai.GenerateContentConfig{}
	if req.Prompt.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.Prompt.System, genai.RoleUser)
	}
	p := mergeParams(req.Params, g.Params)
	if p.Temperature > 0 {
		cfg.Temperature = genai.Ptr(p.Temperature)
	}
	if p.TopP > 0 {
		cfg.TopP = genai.Ptr(p.TopP)
	}
	if p.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(p.MaxTokens)
	}
	return cfg, genai.Text(req.Prompt.Text)
}

// mergeParams returns p with zero fields taken from def.
func mergeParams(p, def SamplingParams) SamplingParams {
	if p.Temperature == 0 {
		p.Temperature = def.Temperature
	}
	if p.TopP == 0 {
		p.TopP = def.TopP
	}
	if p.MaxTokens == 0 {
		p.MaxTokens = def.MaxTokens
	}
	return p
}
