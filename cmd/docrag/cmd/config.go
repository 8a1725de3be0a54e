package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/docrag/configs"
	"github.com/Aman-CERP/docrag/internal/config"
	"github.com/Aman-CERP/docrag/internal/output"
)

func newConfigCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage docrag configuration files.

Configuration precedence (lowest to highest):
  1. Built-in defaults
  2. User config (~/.config/docrag/config.yaml)
  3. Project config (.docrag.yaml, .docrag.yml or .docrag.toml), or --config
  4. Project .env file (secrets; never overrides the real environment)
  5. Environment variables (DOCRAG_*)`,
		Example: `  docrag config init
  docrag config init --in-project
  docrag config show --json
  docrag config path`,
	}

	cmd.AddCommand(newConfigInitCmd(g))
	cmd.AddCommand(newConfigShowCmd(g))
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd(g *globalOptions) *cobra.Command {
	var force, project bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file from the template",
		Long: `Create the user configuration file, or with --in-project a .docrag.yaml
in the project directory.

With --force an existing file is backed up, then rewritten with your
settings kept and new options filled in with their defaults.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout(), g.noColor || g.plain)
			path, template := config.GetUserConfigPath(), configs.UserConfigTemplate
			if project {
				dir, err := filepath.Abs(g.projectDir)
				if err != nil {
					return err
				}
				path, template = filepath.Join(dir, config.ProjectFiles[0]), configs.ProjectConfigTemplate
			}
			return runConfigInit(out, path, template, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Back up and upgrade an existing file")
	cmd.Flags().BoolVar(&project, "in-project", false, "Create .docrag.yaml in the project directory instead")

	return cmd
}

func runConfigInit(out *output.Writer, path, template string, force bool) error {
	if _, err := os.Stat(path); err == nil {
		if !force {
			out.Warning("Configuration already exists")
			out.Field("Location", path)
			out.Status("", "Use --force to upgrade it with new defaults (your settings are kept)")
			return nil
		}
		return runConfigUpgrade(out, path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(template), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out.Success("Created configuration")
	out.Field("Location", path)
	out.Status("", "Edit it, then run 'docrag config show' to check the result")
	return nil
}

// runConfigUpgrade backs path up and rewrites it as defaults overlaid with
// the file's own settings.
func runConfigUpgrade(out *output.Writer, path string) error {
	backup, err := config.Backup(path)
	if err != nil {
		return err
	}

	cfg := config.NewConfig()
	if err := cfg.LoadFile(path); err != nil {
		return err
	}
	if err := cfg.WriteYAML(path); err != nil {
		return err
	}

	out.Success("Configuration upgraded")
	out.Field("Location", path)
	out.Field("Backup", backup)
	return nil
}

func newConfigShowCmd(g *globalOptions) *cobra.Command {
	var (
		jsonOutput bool
		src        string
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long: `Show the configuration after merging every layer. Secrets are never
printed; the secrets section only says whether each one is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, desc, err := configForSource(g, src)
			if err != nil {
				return err
			}
			if jsonOutput {
				data, err := json.MarshalIndent(cfg, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal config: %w", err)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			}

			out := output.New(cmd.OutOrStdout(), g.noColor || g.plain)
			out.Statusf("INFO", "Configuration source: %s", desc)
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			out.Code(string(data))
			out.Status("INFO", "Secrets")
			out.Field("embeddings api key", setOrUnset(cfg.Embeddings.APIKey))
			out.Field("completion api key", setOrUnset(cfg.Completion.APIKey))
			out.Field("mongo uri", setOrUnset(cfg.Store.Mongo.URI))
			out.Field("minio keys", setOrUnset(cfg.Sources.MinIO.AccessKey+cfg.Sources.MinIO.SecretKey))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&src, "source", "merged", "Config source: merged, user, project, defaults")

	return cmd
}

// configForSource loads one layer, or all of them for "merged".
func configForSource(g *globalOptions, src string) (*config.Config, string, error) {
	switch src {
	case "merged":
		cfg, _, err := loadConfig(g)
		if err != nil {
			return nil, "", err
		}
		return cfg, "merged (defaults + user + project + env)", nil
	case "defaults":
		return config.NewConfig(), "defaults", nil
	case "user":
		return configFromFile(config.GetUserConfigPath(), "user")
	case "project":
		dir, err := filepath.Abs(g.projectDir)
		if err != nil {
			return nil, "", err
		}
		path := g.configFile
		if path == "" {
			path = config.FindProjectFile(dir)
		}
		if path == "" {
			return nil, "", fmt.Errorf("no project configuration in %s (run 'docrag config init --in-project')", dir)
		}
		return configFromFile(path, "project")
	default:
		return nil, "", fmt.Errorf("invalid source: %s (use: merged, user, project, defaults)", src)
	}
}

func configFromFile(path, label string) (*config.Config, string, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, "", fmt.Errorf("no %s configuration at %s", label, path)
	}
	cfg := config.NewConfig()
	if err := cfg.LoadFile(path); err != nil {
		return nil, "", err
	}
	return cfg, fmt.Sprintf("%s (%s)", label, path), nil
}

func setOrUnset(v string) string {
	if v == "" {
		return "unset"
	}
	return "set"
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the user config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return err
		},
	}
}
