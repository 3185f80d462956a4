package commands

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/haivivi/chronicle/cmd/chronicle/internal/config"
	"github.com/haivivi/chronicle/pkg/cli"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CLI configuration",
	Long: `Manage contexts and service configurations.

A context is a named directory holding per-service YAML config files:
completion.yaml, pexels.yaml and editor.yaml.

Keys may be dotted to reach nested values.

Examples:
  chronicle config get-contexts
  chronicle config add-context dev
  chronicle config use-context dev
  chronicle config set dev completion provider openai
  chronicle config set dev completion api_key '$OPENAI_API_KEY'
  chronicle config set dev completion model gpt-4o-mini
  chronicle config set dev pexels api_key '$PEXELS_API_KEY'
  chronicle config set dev editor settings.tone academic
  chronicle config set dev editor cadence 20ms
  chronicle config get dev completion api_key`,
}

var configGetContextsCmd = &cobra.Command{
	Use:     "get-contexts",
	Aliases: []string{"list-contexts", "ls"},
	Short:   "List all contexts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		names, err := cfg.ListContexts()
		if err != nil {
			return err
		}

		if len(names) == 0 {
			fmt.Println("No contexts configured.")
			fmt.Println("Create one with: chronicle config add-context <name>")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CURRENT\tNAME\tSERVICES")
		for _, name := range names {
			current := ""
			if name == cfg.CurrentContext {
				current = "*"
			}
			services, _ := config.ListServices(cfg.ContextDir(name))
			fmt.Fprintf(w, "%s\t%s\t%s\n", current, name, strings.Join(services, ", "))
		}
		return w.Flush()
	},
}

var configAddContextCmd = &cobra.Command{
	Use:   "add-context <name>",
	Short: "Create a new context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		if err := cfg.AddContext(args[0]); err != nil {
			return err
		}
		cli.PrintSuccess("Context %q created.", args[0])
		fmt.Printf("Configure services with: chronicle config set %s <service> <key> <value>\n", args[0])
		return nil
	},
}

var configDeleteContextCmd = &cobra.Command{
	Use:   "delete-context <name>",
	Short: "Delete a context and all its service configs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		if err := cfg.DeleteContext(args[0]); err != nil {
			return err
		}
		cli.PrintSuccess("Context %q deleted.", args[0])
		return nil
	},
}

var configUseContextCmd = &cobra.Command{
	Use:   "use-context <name>",
	Short: "Set the current context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		if err := cfg.UseContext(args[0]); err != nil {
			return err
		}
		cli.PrintSuccess("Switched to context %q.", args[0])
		return nil
	},
}

var configCurrentContextCmd = &cobra.Command{
	Use:   "current-context",
	Short: "Display the current context name",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		if cfg.CurrentContext == "" {
			fmt.Println("No current context set.")
			return nil
		}
		fmt.Println(cfg.CurrentContext)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <context> <service> <key> <value>",
	Short: "Set a service config value",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctxName, service, key, value := args[0], args[1], args[2], args[3]
		dir, err := serviceDir(ctxName, service)
		if err != nil {
			return err
		}

		m, err := loadServiceMap(dir, service)
		if err != nil {
			return err
		}
		if err := setPath(m, key, parseValue(value)); err != nil {
			return err
		}
		if err := config.SaveService(dir, service, &m); err != nil {
			return err
		}

		shown := value
		if strings.HasSuffix(key, "api_key") {
			shown = cli.MaskAPIKey(value)
		}
		cli.PrintSuccess("Set %s.%s = %s (context: %s)", service, key, shown, ctxName)
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <context> <service> [key]",
	Short: "Get a service config value, or the whole service config",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := serviceDir(args[0], args[1])
		if err != nil {
			return err
		}
		m, err := config.LoadService[map[string]any](dir, args[1])
		if err != nil {
			return err
		}
		if len(args) == 2 {
			return output(maskKeys(*m))
		}

		val, ok := getPath(*m, args[2])
		if !ok {
			return fmt.Errorf("key %q not found in %s config", args[2], args[1])
		}
		if s, isStr := val.(string); isStr && strings.HasSuffix(args[2], "api_key") {
			val = cli.MaskAPIKey(s)
		}
		fmt.Println(val)
		return nil
	},
}

func serviceDir(ctxName, service string) (string, error) {
	cfg, err := GetConfig()
	if err != nil {
		return "", err
	}
	if err := config.ValidateServiceName(service); err != nil {
		return "", err
	}
	return cfg.ResolveContext(ctxName)
}

// loadServiceMap loads a service file as a generic map. A missing or
// empty file yields an empty map.
func loadServiceMap(dir, service string) (map[string]any, error) {
	m, err := config.LoadService[map[string]any](dir, service)
	if errors.Is(err, config.ErrServiceNotFound) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read existing %s config: %w", service, err)
	}
	if *m == nil {
		return map[string]any{}, nil
	}
	return *m, nil
}

// parseValue reads scalars as YAML so that "2" and "true" keep their
// types. Anything that is not a scalar stays a string.
func parseValue(s string) any {
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	switch v.(type) {
	case map[string]any, []any, nil:
		return s
	}
	return v
}

func setPath(m map[string]any, key string, value any) error {
	parts := strings.Split(key, ".")
	for i, p := range parts[:len(parts)-1] {
		next, ok := m[p]
		if !ok || next == nil {
			child := map[string]any{}
			m[p] = child
			m = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("key %q is not a mapping", strings.Join(parts[:i+1], "."))
		}
		m = child
	}
	m[parts[len(parts)-1]] = value
	return nil
}

func getPath(m map[string]any, key string) (any, bool) {
	var cur any = m
	for _, p := range strings.Split(key, ".") {
		mm, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = mm[p]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func maskKeys(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch vv := v.(type) {
		case string:
			if strings.HasSuffix(k, "api_key") {
				v = cli.MaskAPIKey(vv)
			}
		case map[string]any:
			v = maskKeys(vv)
		}
		out[k] = v
	}
	return out
}

func init() {
	configCmd.AddCommand(configGetContextsCmd)
	configCmd.AddCommand(configAddContextCmd)
	configCmd.AddCommand(configDeleteContextCmd)
	configCmd.AddCommand(configUseContextCmd)
	configCmd.AddCommand(configCurrentContextCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)

	rootCmd.AddCommand(configCmd)
}
