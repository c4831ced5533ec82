package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/depstage/internal/config"
	"github.com/oshokin/depstage/internal/logger"
	"github.com/oshokin/depstage/internal/version"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	// configPath to the configuration YAML file.
	configPath string
	// platform overrides host detection.
	platform string
	// logLevel overrides the configured log level.
	logLevel string
}

var errBadLogLevel = errors.New("unknown log level")

// Execute runs the depstage CLI and exits with non-zero status on error.
func Execute() {
	// Setup graceful shutdown handling.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)

	err := newRootCommand().ExecuteContext(ctx)

	stop()

	if err != nil {
		os.Exit(1)
	}
}

// newRootCommand builds the command tree.
func newRootCommand() *cobra.Command {
	flags := new(globalFlags)

	rootCmd := &cobra.Command{
		Use:   "depstage",
		Short: "Declare pinned build dependencies and stage them after fetching",
		Long: "depstage declares the pinned third-party packages the application builds against, " +
			"emits them for the package manager, and stages the fetched packages into the runtime tree.",
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return applyLogLevel(flags)
		},
	}

	persistent := rootCmd.PersistentFlags()
	persistent.StringVarP(&flags.configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	persistent.StringVar(&flags.platform, "os", "", "target platform (Darwin or Linux), defaults to the host")
	persistent.StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		newResolveCommand(flags),
		newLockCommand(flags),
		newStageCommand(flags),
		newToolchainCommand(flags),
		newStatusCommand(flags),
		version.NewCommand(),
	)

	return rootCmd
}

// applyLogLevel sets the global level from the flag, falling back to the configuration file.
// A configuration that fails to load is reported later by the subcommand itself.
func applyLogLevel(flags *globalFlags) error {
	levelName := flags.logLevel
	if levelName == "" {
		cfg, err := config.Load(flags.configPath)
		if err != nil {
			return nil //nolint:nilerr // The subcommand loads the settings again and reports the error.
		}

		levelName = cfg.LogLevel
	}

	level, ok := logger.ParseLogLevel(levelName)
	if !ok {
		return fmt.Errorf("%w: %q", errBadLogLevel, levelName)
	}

	logger.SetLevel(level)

	return nil
}
