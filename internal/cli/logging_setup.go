package cli

import (
	"github.com/spf13/cobra"

	"github.com/rshade/contentloader/internal/logging"
)

// setupLogging configures logging from the loaded config and CLI flags, and
// attaches the logger and a trace id to the command context.
func setupLogging(cmd *cobra.Command, a *app) logging.LogPathResult {
	loggingCfg := a.cfg.Logging

	debug, _ := cmd.Flags().GetBool("debug")
	if debug {
		loggingCfg.Level = "debug"
		loggingCfg.Format = logging.FormatConsole
		loggingCfg.File = ""
	}

	logCfg := loggingCfg.ToLoggingConfig()
	logCfg.Caller = debug
	result := logging.NewLoggerWithPath(logCfg)
	a.logger = result.Logger

	if result.UsingFile {
		logging.PrintLogPathMessage(cmd.ErrOrStderr(), result.FilePath)
	} else if result.FallbackUsed {
		logging.PrintFallbackWarning(cmd.ErrOrStderr(), result.FallbackReason)
	}

	ctx := cmd.Context()
	traceID := logging.GetOrGenerateTraceID(ctx)
	ctx = logging.ContextWithTraceID(ctx, traceID)
	ctx = result.Logger.WithContext(ctx)
	cmd.SetContext(ctx)

	cliLogger := logging.ComponentLogger(result.Logger, "cli")
	cliLogger.Debug().Ctx(ctx).
		Str("command", cmd.Name()).
		Str("config", a.cfg.Source()).
		Msg("command started")

	return result
}

// cleanupLogging closes the log file handle, if any.
func cleanupLogging(_ *cobra.Command, logResult *logging.LogPathResult) error {
	if logResult != nil {
		return logResult.Close()
	}
	return nil
}
