package completion

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"google.golang.org/genai"
)

// Config describes one provider account and the models it serves. It is
// stored as completion.yaml in a CLI context.
type Config struct {
	// Provider is "gemini" or "openai".
	Provider string `json:"provider" yaml:"provider"`

	// APIKey may name an environment variable, e.g. "$GEMINI_API_KEY".
	APIKey  string `json:"api_key,omitzero" yaml:"api_key,omitempty"`
	BaseURL string `json:"base_url,omitzero" yaml:"base_url,omitempty"`

	Models []ModelEntry `json:"models,omitzero" yaml:"models,omitempty"`

	// Model is shorthand for a single entry named after its model.
	Model string `json:"model,omitzero" yaml:"model,omitempty"`

	// Default is the model name used when none is given.
	Default string `json:"default,omitzero" yaml:"default,omitempty"`
}

// ModelEntry registers one model under a local name.
type ModelEntry struct {
	Name          string         `json:"name" yaml:"name"`
	Model         string         `json:"model" yaml:"model"`
	Params        SamplingParams `json:"params,omitzero" yaml:"params,omitempty"`
	UseSystemRole bool           `json:"use_system_role,omitzero" yaml:"use_system_role,omitempty"`
}

// DefaultModel returns the configured default name, or the first entry.
func (c *Config) DefaultModel() string {
	if c.Default != "" {
		return c.Default
	}
	if models := c.entries(); len(models) > 0 {
		return models[0].Name
	}
	return ""
}

func (c *Config) entries() []ModelEntry {
	if len(c.Models) == 0 && c.Model != "" {
		return []ModelEntry{{Name: c.Model, Model: c.Model}}
	}
	return c.Models
}

// Register creates the provider client described by cfg and registers one
// service per model entry. It returns the registered names.
func Register(ctx context.Context, mux *Mux, cfg Config) ([]string, error) {
	apiKey := expandEnv(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("completion: api_key is required for %s", cfg.Provider)
	}
	models := cfg.entries()
	if len(models) == 0 {
		return nil, fmt.Errorf("completion: no models configured for %s", cfg.Provider)
	}

	var newService func(ModelEntry) Service
	switch strings.ToLower(cfg.Provider) {
	case geminiProvider:
		client, err := NewGeminiClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		newService = func(m ModelEntry) Service {
			return &Gemini{Client: client, Model: strings.TrimPrefix(m.Model, "models/"), Params: m.Params}
		}
	case openaiProvider:
		opts := []option.RequestOption{option.WithAPIKey(apiKey)}
		if cfg.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(cfg.BaseURL))
		}
		client := openai.NewClient(opts...)
		newService = func(m ModelEntry) Service {
			return &OpenAI{Client: &client, Model: m.Model, Params: m.Params, UseSystemRole: m.UseSystemRole}
		}
	default:
		return nil, fmt.Errorf("completion: unknown provider %q", cfg.Provider)
	}

	var names []string
	for _, m := range models {
		if m.Name == "" || m.Model == "" {
			return nil, fmt.Errorf("completion: model entry missing name or model")
		}
		if err := mux.Handle(m.Name, newService(m)); err != nil {
			return nil, err
		}
		names = append(names, m.Name)
	}
	return names, nil
}

// expandEnv expands values that look like environment variable references.
// NewGeminiClient creates the Gemini API client of cfg. It fails unless cfg
// names the gemini provider.
func NewGeminiClient(ctx context.Context, cfg Config) (*genai.Client, error) {
	if !strings.EqualFold(cfg.Provider, geminiProvider) {
		return nil, fmt.Errorf("completion: provider %q is not %s", cfg.Provider, geminiProvider)
	}
	apiKey := expandEnv(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("completion: api_key is required for %s", cfg.Provider)
	}
	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("completion: create gemini client: %w", err)
	}
	return client, nil
}

func expandEnv(s string) string {
	if strings.HasPrefix(s, "$") {
		return os.ExpandEnv(s)
	}
	return s
}
