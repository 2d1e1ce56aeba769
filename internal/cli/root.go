// Package cli implements the contentloader command line.
package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rshade/contentloader/internal/config"
	"github.com/rshade/contentloader/internal/logging"
	"github.com/rshade/contentloader/pkg/version"
)

// errNoConfig is returned when a command runs before the root pre-run loaded config.
var errNoConfig = errors.New("configuration not loaded")

// isTerminal checks if the given file is a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// app carries the state shared by subcommands of one invocation.
type app struct {
	cfg       *config.Config
	logger    zerolog.Logger
	logResult *logging.LogPathResult
}

// config returns the loaded configuration.
func (a *app) config() (*config.Config, error) {
	if a.cfg == nil {
		return nil, errNoConfig
	}
	return a.cfg, nil
}

// NewRootCmd creates the root Cobra command for the contentloader CLI.
func NewRootCmd(ver string) *cobra.Command {
	a := &app{logger: zerolog.Nop()}

	cmd := &cobra.Command{
		Use:           "contentloader",
		Short:         "Load CMS content into build-time modules with a disk cache",
		Long:          "contentloader runs GROQ queries against a Sanity dataset, caches results on disk and emits them as JSON modules.",
		Version:       ver,
		Example:       rootCmdExample,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			wd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("determining working directory: %w", err)
			}
			cfg, err := config.Load(cmd.Context(), configPath, wd)
			if err != nil {
				return err
			}
			a.cfg = cfg

			result := setupLogging(cmd, a)
			a.logResult = &result
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return cleanupLogging(cmd, a.logResult)
		},
	}

	cmd.SetVersionTemplate(versionLine(ver, version.GetGitCommit(), version.GetBuildDate()))

	cmd.PersistentFlags().String("config", "", "path to "+config.DefaultFileName+" (default: search from the working directory)")
	cmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	cmd.AddCommand(
		newLoadCmd(a),
		newBuildCmd(a),
		newWatchCmd(a),
		newCacheCmd(a),
		newAssetCmd(a),
		newConfigCmd(a),
	)
	return cmd
}

// versionLine formats the --version output. Commit and date are omitted when
// the binary was built without them.
func versionLine(ver, commit, date string) string {
	line := "contentloader version " + ver
	var details []string
	if commit != "" {
		details = append(details, "commit "+commit)
	}
	if date != "" {
		details = append(details, "built "+date)
	}
	if len(details) > 0 {
		line += " (" + strings.Join(details, ", ") + ")"
	}
	return line + "\n"
}

const rootCmdExample = `  # Print the result of src/sanity/queries/posts.groq
  contentloader load posts

  # Run an inline query without touching the cache
  contentloader load settings --query '*[_type == "settings"][0]' --no-cache

  # Generate a module for every configured query
  contentloader build

  # Rebuild modules whenever query files change
  contentloader watch

  # Inspect or clear the cache
  contentloader cache status
  contentloader cache clear`

// newCacheCmd creates the cache command group.
func newCacheCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "cache", Short: "Cache inspection and maintenance"}
	cmd.AddCommand(newCacheStatusCmd(a), newCacheClearCmd(a))
	return cmd
}

// newConfigCmd creates the config command group.
func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Configuration commands"}
	cmd.AddCommand(newConfigValidateCmd(a), newConfigShowCmd(a))
	return cmd
}
