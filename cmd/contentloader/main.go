// Command contentloader loads CMS content into build-time modules.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/rshade/contentloader/internal/cli"
	"github.com/rshade/contentloader/internal/config"
	"github.com/rshade/contentloader/internal/engine"
	"github.com/rshade/contentloader/pkg/version"
)

// Exit codes.
const (
	exitOK     = 0
	exitError  = 1
	exitConfig = 2
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func run() error {
	return cli.NewRootCmd(version.GetVersion()).Execute()
}

// exitCode maps configuration errors to exitConfig and everything else to exitError.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, engine.ErrConfig), errors.Is(err, config.ErrInvalidConfig):
		return exitConfig
	default:
		return exitError
	}
}
