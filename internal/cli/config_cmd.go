package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// redacted replaces secrets in config show output.
const redacted = "********"

// newConfigValidateCmd creates the config validate command.
func newConfigValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			if err = cfg.Validate(); err != nil {
				return fmt.Errorf("configuration validation failed: %w", err)
			}
			source := cfg.Source()
			if source == "" {
				source = "defaults and environment"
			}
			cmd.Printf("Configuration is valid (%s)\n", source)
			cmd.Printf("  Queries: %d\n", len(cfg.Queries))
			cmd.Printf("  Cache: %s\n", cfg.CacheDir())
			return nil
		},
	}
}

// newConfigShowCmd creates the config show command.
func newConfigShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			shown := *cfg
			if shown.Client.Token != "" {
				shown.Client.Token = redacted
			}
			data, err := yaml.Marshal(&shown)
			if err != nil {
				return fmt.Errorf("encoding configuration: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
