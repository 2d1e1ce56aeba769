package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rshade/contentloader/internal/virtual"
)

// loadFlags holds the options of the load command.
type loadFlags struct {
	query   string
	noCache bool
	version string
	module  bool
}

// newLoadCmd creates the load command, which runs one query and prints its result.
func newLoadCmd(a *app) *cobra.Command {
	var flags loadFlags

	cmd := &cobra.Command{
		Use:   "load <name>",
		Short: "Run one query and print its result",
		Long: `Runs the named query and prints the result as JSON.

The query is taken from the queries section of the config, from --query, or
from <paths.queries>/<name>.groq, in that order. Results are served from the
disk cache while the dataset has not changed.`,
		Example: `  # Load src/sanity/queries/posts.groq
  contentloader load posts

  # Print the generated JavaScript module instead of JSON
  contentloader load posts --module

  # Only reuse cache records written for version 2
  contentloader load posts --cache-version 2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(cmd, a, args[0], flags)
		},
	}

	cmd.Flags().StringVar(&flags.query, "query", "", "literal query text (overrides the query file)")
	cmd.Flags().BoolVar(&flags.noCache, "no-cache", false, "bypass the disk cache")
	cmd.Flags().StringVar(&flags.version, "cache-version", "", "expected cache record version")
	cmd.Flags().BoolVar(&flags.module, "module", false, "print an ES module instead of JSON")

	return cmd
}

func runLoad(cmd *cobra.Command, a *app, name string, flags loadFlags) error {
	rt, err := a.newRuntime()
	if err != nil {
		return err
	}

	q := rt.queryOrAdHoc(name)
	if flags.query != "" {
		q.Query = flags.query
	}
	if cmd.Flags().Changed("cache-version") {
		q.Version = flags.version
	}
	if flags.noCache {
		disabled := false
		q.Cache = &disabled
	}

	def, err := rt.definition(q)
	if err != nil {
		return err
	}
	result, err := rt.loader.Define(def)(cmd.Context())
	if err != nil {
		return err
	}

	var out string
	if flags.module {
		if out, err = virtual.ToJSONModule(result); err != nil {
			return err
		}
	} else {
		data, marshalErr := json.MarshalIndent(result, "", "  ")
		if marshalErr != nil {
			return fmt.Errorf("encoding result: %w", marshalErr)
		}
		out = string(data)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
	return err
}
