package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
)

// projectConfigFile is the project config looked up in the working directory
const projectConfigFile = "shield.toml"

// ProjectConfig is the project-level TOML configuration
type ProjectConfig struct {
	ChainID      string `toml:"chain_id,omitempty"`
	SQLitePath   string `toml:"sqlite_path,omitempty"`
	Descriptions string `toml:"descriptions,omitempty"`
	Server       string `toml:"server,omitempty"`
}

func createConfigCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}

	cmd.AddCommand(createConfigInitCmd(opts))
	cmd.AddCommand(createConfigShowCmd(opts))

	return cmd
}

func createConfigInitCmd(opts *globalOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create shield.toml",
		Long: `Create a shield.toml configuration file in the current directory.

The file stores the default chain, the SQLite address book path and an
optional wording table override.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.configPath()
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			cfg := ProjectConfig{
				ChainID:      opts.chain(),
				SQLitePath:   opts.database(),
				Descriptions: opts.descriptions,
			}

			f, err := os.Create(path) // #nosec G304 -- operator-supplied config path
			if err != nil {
				return fmt.Errorf("creating config: %w", err)
			}
			defer func() { _ = f.Close() }()

			fmt.Fprintln(f, "# Safe Shield project configuration")
			if err := toml.NewEncoder(f).Encode(cfg); err != nil {
				return fmt.Errorf("writing config: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	return cmd
}

func createConfigShowCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ProjectConfig{
				ChainID:      opts.chain(),
				SQLitePath:   opts.database(),
				Descriptions: opts.descriptionsFile(),
			}
			if file, err := opts.projectConfig(); err == nil {
				cfg.Server = file.Server
			}
			return toml.NewEncoder(cmd.OutOrStdout()).Encode(cfg)
		},
	}
}

func (o *globalOptions) configPath() string {
	if o.cfgFile != "" {
		return o.cfgFile
	}
	return projectConfigFile
}

// projectConfig loads the project config from --config or shield.toml
func (o *globalOptions) projectConfig() (*ProjectConfig, error) {
	return loadProjectConfigFromPath(o.configPath())
}

// loadProjectConfigFromPath loads a project config from a specific path
func loadProjectConfigFromPath(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path
	if err != nil {
		return nil, err
	}

	var config ProjectConfig
	if _, err := toml.Decode(string(data), &config); err != nil {
		return nil, fmt.Errorf("parsing TOML: %w", err)
	}

	return &config, nil
}

// projectConfigSilent loads the project config without returning errors for missing files.
// Parse failures are reported on stderr.
func (o *globalOptions) projectConfigSilent() *ProjectConfig {
	config, err := o.projectConfig()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load project config: %v\n", err)
		}
		return nil
	}
	return config
}
