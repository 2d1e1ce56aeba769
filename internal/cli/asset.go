package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rshade/contentloader/internal/assets"
)

// newAssetCmd creates the asset command, which downloads assets by URL.
func newAssetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "asset <url>...",
		Short: "Download assets into paths.assets and print their public paths",
		Example: `  contentloader asset https://cdn.sanity.io/images/abc123/production/hero-1200x800.jpg`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			fetcher, err := assets.New(assets.Config{
				Dir:        cfg.Paths.Assets,
				PublicPath: cfg.Paths.AssetsPublic,
			}, a.logger)
			if err != nil {
				return fmt.Errorf("paths.assets and paths.assets_public must be configured: %w", err)
			}

			for _, rawURL := range args {
				public, saveErr := fetcher.Save(cmd.Context(), rawURL)
				if saveErr != nil {
					return saveErr
				}
				cmd.Printf("%s -> %s\n", rawURL, public)
			}
			cmd.Printf("Assets stored in %s\n", fetcher.Dir())
			return nil
		},
	}
}
