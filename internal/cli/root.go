// Package cli implements shieldctl, the offline companion to the Safe Shield API.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// Defaults used when neither flags, environment nor shield.toml say otherwise.
const (
	defaultChainID    = "1"
	defaultSQLitePath = "shield.db"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	cfgFile      string
	chainID      string
	sqlitePath   string
	descriptions string
}

// Execute runs the CLI
func Execute(version string) error {
	return newRootCmd(version).Execute()
}

func newRootCmd(version string) *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "shieldctl",
		Short: "Safe Shield transaction risk analysis tools",
		Long: `shieldctl runs the Safe Shield aggregation engine offline and manages the
local address book used by single-node deployments.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (default: shield.toml)")
	rootCmd.PersistentFlags().StringVar(&opts.chainID, "chain", "", "chain id (default from config, else 1)")
	rootCmd.PersistentFlags().StringVar(&opts.sqlitePath, "db", "", "SQLite address book path (default from config, else shield.db)")
	rootCmd.PersistentFlags().StringVar(&opts.descriptions, "descriptions", "", "wording table YAML (default: built-in)")

	rootCmd.AddCommand(createAnalyzeCmd(opts))
	rootCmd.AddCommand(createAddressBookCmd(opts))
	rootCmd.AddCommand(createDescriptionsCmd(opts))
	rootCmd.AddCommand(createConfigCmd(opts))

	return rootCmd
}

// chain returns the chain id from flag, env, config file, or default
func (o *globalOptions) chain() string {
	if o.chainID != "" {
		return o.chainID
	}
	if env := os.Getenv("SAFESHIELD_CHAIN_ID"); env != "" {
		return env
	}
	if cfg := o.projectConfigSilent(); cfg != nil && cfg.ChainID != "" {
		return cfg.ChainID
	}
	return defaultChainID
}

// database returns the SQLite path from flag, env, config file, or default
func (o *globalOptions) database() string {
	if o.sqlitePath != "" {
		return o.sqlitePath
	}
	if env := os.Getenv("SQLITE_PATH"); env != "" {
		return env
	}
	if cfg := o.projectConfigSilent(); cfg != nil && cfg.SQLitePath != "" {
		return cfg.SQLitePath
	}
	return defaultSQLitePath
}

// descriptionsFile returns the wording table path from flag, env or config
// file. Empty means the built-in table.
func (o *globalOptions) descriptionsFile() string {
	if o.descriptions != "" {
		return o.descriptions
	}
	if env := os.Getenv("DESCRIPTIONS_FILE"); env != "" {
		return env
	}
	if cfg := o.projectConfigSilent(); cfg != nil {
		return cfg.Descriptions
	}
	return ""
}
