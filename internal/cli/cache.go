package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rshade/contentloader/internal/engine/cache"
	"github.com/rshade/contentloader/internal/engine/staleness"
	"github.com/rshade/contentloader/internal/logging"
	"github.com/rshade/contentloader/internal/tui"
)

// newCacheStatusCmd creates the cache status command.
func newCacheStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show cached query records and staleness markers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCacheStatus(cmd, a)
		},
	}
}

func runCacheStatus(cmd *cobra.Command, a *app) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}
	store, err := cache.NewStore(cfg.CacheDir(), logging.ComponentLogger(a.logger, "cache"))
	if err != nil {
		return err
	}

	entries, err := store.Entries()
	if err != nil {
		return err
	}
	size, err := store.Size()
	if err != nil {
		return err
	}

	status := tui.CacheStatus{
		Directory: store.Directory(),
		Strategy:  cfg.Cache.Strategy,
		Enabled:   cfg.Cache.Enabled,
		Entries:   entries,
		TotalSize: size,
	}
	if v, ok, loadErr := staleness.NewMarker(store.Directory()).Load(); loadErr == nil && ok {
		status.LatestUpdate = strings.TrimSpace(v)
	}
	ttlMarker := staleness.NewNamedMarker(store.Directory(), staleness.TTLMarkerFileName)
	if v, ok, loadErr := ttlMarker.Load(); loadErr == nil && ok {
		status.LastRefresh = strings.TrimSpace(v)
	}

	styler := tui.Styler{Enabled: cmd.OutOrStdout() == os.Stdout && isTerminal(os.Stdout)}
	_, err = fmt.Fprint(cmd.OutOrStdout(), tui.RenderCacheStatus(status, styler))
	return err
}

// newCacheClearCmd creates the cache clear command.
func newCacheClearCmd(a *app) *cobra.Command {
	var (
		keepMarkers bool
		yes         bool
	)

	cmd := &cobra.Command{
		Use:   "clear [name...]",
		Short: "Remove cached query records",
		Long: `Removes cached records. With no arguments every record is removed together
with the staleness markers, so the next load fetches fresh data.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheClear(cmd, a, args, keepMarkers, yes)
		},
	}
	cmd.Flags().BoolVar(&keepMarkers, "keep-markers", false, "keep staleness markers when clearing everything")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func runCacheClear(cmd *cobra.Command, a *app, names []string, keepMarkers, yes bool) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}
	log := logging.ComponentLogger(a.logger, "cache")
	store, err := cache.NewStore(cfg.CacheDir(), log)
	if err != nil {
		return err
	}

	if len(names) > 0 {
		for _, name := range names {
			if err = store.Delete(name); err != nil {
				return err
			}
		}
		cmd.Printf("Removed %d cache record(s) from %s\n", len(names), store.Directory())
		return nil
	}

	count, err := store.Count()
	if err != nil {
		return err
	}
	interactive := !yes && cmd.InOrStdin() == os.Stdin && isTerminal(os.Stdin)
	question := fmt.Sprintf("Remove %d cache record(s) from %s?", count, store.Directory())
	if !Confirm(cmd.OutOrStdout(), cmd.InOrStdin(), interactive, question).Accepted {
		cmd.Println("Aborted.")
		return nil
	}

	removed, err := store.Clear()
	if err != nil {
		return err
	}
	if !keepMarkers {
		for _, name := range staleness.MarkerFiles() {
			if err = staleness.NewNamedMarker(store.Directory(), name).Remove(); err != nil {
				return err
			}
		}
	}

	log.Debug().Ctx(cmd.Context()).Int("removed", removed).Msg("cache cleared")
	cmd.Printf("Removed %d cache record(s) from %s\n", removed, store.Directory())
	return nil
}
