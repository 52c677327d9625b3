package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/and161185/decksync/internal/app"
	"github.com/and161185/decksync/internal/config"
)

// rootOptions holds the global flags and the state built from them.
type rootOptions struct {
	verbose      bool
	jsonOut      bool
	settingsPath string

	log    *zap.Logger
	loader *config.Loader
	engine *app.Engine
}

func newRootCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "decksync",
		Short:         "Sync purchased decks and study progress",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.setup()
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "verbose logging")
	cmd.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "print results as JSON")
	cmd.PersistentFlags().StringVar(&opts.settingsPath, "settings", config.DefaultSettingsPath(), "settings file (toml, yaml or json)")

	cmd.AddCommand(
		newVersionCommand(),
		newLoginCommand(opts),
		newLogoutCommand(opts),
		newStatusCommand(opts),
		newCatalogCommand(opts),
		newUpdatesCommand(opts),
		newDownloadCommand(opts),
		newChangelogCommand(opts),
		newSyncCommand(opts),
		newCleanupCommand(opts),
		newNotificationsCommand(opts),
		newDaemonCommand(opts),
	)
	return cmd
}

func (o *rootOptions) setup() error {
	log, err := newLogger(o.verbose)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	o.log = log
	o.loader = config.NewLoader(o.settingsPath, log.Named("settings"))
	s, err := o.loader.Load()
	if err != nil {
		return err
	}
	o.engine = app.New(s, log)
	return nil
}

// teardown releases what setup built. It is safe to call when setup did not run.
func (o *rootOptions) teardown() error {
	var err error
	if o.engine != nil {
		err = o.engine.Shutdown()
	}
	if o.log != nil {
		_ = o.log.Sync()
	}
	return err
}

// ready initializes the engine on first use.
func (o *rootOptions) ready(cmd *cobra.Command) (*app.Engine, error) {
	if err := o.engine.Initialize(cmd.Context()); err != nil {
		return nil, err
	}
	return o.engine, nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		// version needs no settings
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "decksync %s (%s)\n", version, buildDate)
		},
	}
}
