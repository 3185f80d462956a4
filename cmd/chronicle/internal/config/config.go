// Package config provides the configuration system of the chronicle CLI.
//
// Configuration is stored under os.UserConfigDir()/chronicle/, or under
// $CHRONICLE_CONFIG_DIR when set:
//
//	chronicle/
//	├── current-context          # plain text: name of current context
//	└── contexts/
//	    ├── dev/
//	    │   ├── completion.yaml  # provider, api key, models
//	    │   ├── pexels.yaml      # image search
//	    │   └── editor.yaml      # settings, cadence, journal store
//	    └── staging/
//	        └── ...
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// appDir is the directory name under os.UserConfigDir().
	appDir = "chronicle"

	// EnvDir overrides the configuration directory.
	EnvDir = "CHRONICLE_CONFIG_DIR"

	currentContextFile = "current-context"
	contextsDir        = "contexts"
)

// Config holds the root configuration state.
type Config struct {
	// Dir is the root configuration directory.
	Dir string

	// CurrentContext is the name of the active context.
	CurrentContext string
}

// Load loads the configuration from $CHRONICLE_CONFIG_DIR or the default
// location.
func Load() (*Config, error) {
	if dir := os.Getenv(EnvDir); dir != "" {
		return LoadFrom(dir)
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("cannot determine config directory: %w", err)
	}
	return LoadFrom(filepath.Join(base, appDir))
}

// LoadFrom loads the configuration from a specific root directory.
func LoadFrom(dir string) (*Config, error) {
	cfg := &Config{Dir: dir}

	// current-context may not exist yet
	data, err := os.ReadFile(filepath.Join(dir, currentContextFile))
	if err == nil {
		cfg.CurrentContext = strings.TrimSpace(string(data))
	}
	return cfg, nil
}

// ValidateContextName rejects names that are empty or not usable as a
// directory name.
func ValidateContextName(name string) error {
	if name == "" {
		return fmt.Errorf("context name cannot be empty")
	}
	if strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid context name %q", name)
	}
	return nil
}

// ContextDir returns the directory path for a named context.
func (c *Config) ContextDir(name string) string {
	return filepath.Join(c.Dir, contextsDir, name)
}

// existing validates name and returns its directory, failing when the
// context does not exist.
func (c *Config) existing(name string) (string, error) {
	if err := ValidateContextName(name); err != nil {
		return "", err
	}
	dir := c.ContextDir(name)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return "", fmt.Errorf("context %q not found", name)
	}
	return dir, nil
}

// ResolveContext returns the directory for the given context name, or
// the current context if name is empty.
func (c *Config) ResolveContext(name string) (string, error) {
	if name == "" && c.CurrentContext == "" {
		return "", fmt.Errorf("no current context set; use 'chronicle config use-context <name>'")
	}
	if name == "" {
		name = c.CurrentContext
	}
	return c.existing(name)
}

// ListContexts returns the context names in directory order.
func (c *Config) ListContexts() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(c.Dir, contextsDir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list contexts: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && ValidateContextName(e.Name()) == nil {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// AddContext creates an empty context.
func (c *Config) AddContext(name string) error {
	if err := ValidateContextName(name); err != nil {
		return err
	}
	dir := c.ContextDir(name)
	if _, err := os.Stat(dir); err == nil {
		return fmt.Errorf("context %q already exists", name)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create context %q: %w", name, err)
	}
	return nil
}

// DeleteContext removes a context with its service files. Deleting the
// current context leaves no context selected.
func (c *Config) DeleteContext(name string) error {
	dir, err := c.existing(name)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("delete context %q: %w", name, err)
	}
	if c.CurrentContext != name {
		return nil
	}
	return c.setCurrent("")
}

// UseContext selects an existing context.
func (c *Config) UseContext(name string) error {
	if _, err := c.existing(name); err != nil {
		return err
	}
	return c.setCurrent(name)
}

func (c *Config) setCurrent(name string) error {
	if err := os.MkdirAll(c.Dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(c.Dir, currentContextFile), []byte(name+"\n"), 0644); err != nil {
		return fmt.Errorf("save current context: %w", err)
	}
	c.CurrentContext = name
	return nil
}
