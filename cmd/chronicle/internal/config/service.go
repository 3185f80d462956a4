package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/haivivi/chronicle/pkg/completion"
	"github.com/haivivi/chronicle/pkg/editor"
	"github.com/haivivi/chronicle/pkg/imagesearch"
)

// Service file names within a context.
const (
	CompletionService = "completion"
	PexelsService     = "pexels"
	EditorService     = "editor"
)

// ErrServiceNotFound is returned when a service file does not exist.
var ErrServiceNotFound = errors.New("config: service not configured")

// ValidateServiceName checks that a service name is usable as a filename.
func ValidateServiceName(service string) error {
	if service == "" {
		return fmt.Errorf("service name cannot be empty")
	}
	if strings.ContainsAny(service, `/\`) || strings.HasPrefix(service, ".") {
		return fmt.Errorf("invalid service name %q", service)
	}
	return nil
}

// ServicePath returns the YAML file path of a service within a context
// directory.
func ServicePath(contextDir, service string) string {
	return filepath.Join(contextDir, service+".yaml")
}

// LoadService loads "{contextDir}/{service}.yaml" into a T.
func LoadService[T any](contextDir, service string) (*T, error) {
	path := ServicePath(contextDir, service)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s (expected: %s)", ErrServiceNotFound, service, path)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var v T
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &v, nil
}

// SaveService writes a service configuration to the given context
// directory.
func SaveService[T any](contextDir, service string, v *T) error {
	if err := os.MkdirAll(contextDir, 0755); err != nil {
		return fmt.Errorf("create context dir: %w", err)
	}
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s config: %w", service, err)
	}
	// service files hold api keys
	if err := os.WriteFile(ServicePath(contextDir, service), data, 0600); err != nil {
		return fmt.Errorf("write %s: %w", service, err)
	}
	return nil
}

// ListServices returns the service names configured in a context
// directory.
func ListServices(contextDir string) ([]string, error) {
	entries, err := os.ReadDir(contextDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list services: %w", err)
	}

	var services []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := filepath.Ext(name)
		if ext == ".yaml" || ext == ".yml" {
			services = append(services, name[:len(name)-len(ext)])
		}
	}
	return services, nil
}

// Editor is editor.yaml: how sessions generate and where they journal.
type Editor struct {
	// Model selects a completion.yaml model. Empty means its default.
	Model string `yaml:"model,omitempty"`

	Settings completion.Settings `yaml:"settings,omitempty"`

	// Cadence is the playback interval, e.g. "12ms".
	Cadence string `yaml:"cadence,omitempty"`

	BaseTemperature float32 `yaml:"base_temperature,omitempty"`
	TemperatureStep float32 `yaml:"temperature_step,omitempty"`

	// Store is the journal store: "memory", "badger" or "badger:DIR".
	Store string `yaml:"store,omitempty"`

	// ImageModel is the Gemini model drawing pictures. Empty means
	// assist.DefaultImageModel.
	ImageModel string `yaml:"image_model,omitempty"`
}

// DefaultEditor returns the configuration used when editor.yaml is absent.
func DefaultEditor() Editor {
	return Editor{
		Settings:        completion.DefaultSettings(),
		Cadence:         editor.DefaultCadence.String(),
		BaseTemperature: editor.DefaultBaseTemperature,
		TemperatureStep: editor.DefaultTemperatureStep,
		Store:           "memory",
	}
}

// CadenceDuration parses Cadence. An empty value yields the default.
func (e Editor) CadenceDuration() (time.Duration, error) {
	if e.Cadence == "" {
		return editor.DefaultCadence, nil
	}
	d, err := time.ParseDuration(e.Cadence)
	if err != nil {
		return 0, fmt.Errorf("editor: invalid cadence %q: %w", e.Cadence, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("editor: cadence must be positive, got %s", d)
	}
	return d, nil
}

// LoadEditor loads editor.yaml, filling unset fields from DefaultEditor.
// A missing file is not an error.
func LoadEditor(contextDir string) (Editor, error) {
	def := DefaultEditor()
	e, err := LoadService[Editor](contextDir, EditorService)
	if errors.Is(err, ErrServiceNotFound) {
		return def, nil
	}
	if err != nil {
		return Editor{}, err
	}
	out := *e
	if out.Settings == (completion.Settings{}) {
		out.Settings = def.Settings
	}
	out.Settings = out.Settings.Normalize()
	if out.Cadence == "" {
		out.Cadence = def.Cadence
	}
	if out.BaseTemperature == 0 {
		out.BaseTemperature = def.BaseTemperature
	}
	if out.TemperatureStep == 0 {
		out.TemperatureStep = def.TemperatureStep
	}
	if out.Store == "" {
		out.Store = def.Store
	}
	return out, nil
}

// LoadCompletion loads completion.yaml.
func LoadCompletion(contextDir string) (*completion.Config, error) {
	return LoadService[completion.Config](contextDir, CompletionService)
}

// LoadPexels loads pexels.yaml.
func LoadPexels(contextDir string) (*imagesearch.Config, error) {
	return LoadService[imagesearch.Config](contextDir, PexelsService)
}
