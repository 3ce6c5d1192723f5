package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"fiscal-offline-go/config"
	"fiscal-offline-go/internal/app"
	"fiscal-offline-go/internal/logger"
	"fiscal-offline-go/internal/util/timezone"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewServeCommand erstellt den Befehl, der den Dienst startet
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sync engine and the control API",
		Long: `Starts the sync engine, the connectivity monitor, the cache sweeper,
the retention cleanup and the local control API. Runs until SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, rootOpts)
		},
	}
}

func runServe(ctx context.Context, opts *RootOptions) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}

	closer, err := logger.Init(cfg.Log)
	if err != nil {
		log.Errorf("Failed to initialize logger completely: %v", err)
	}
	defer closer.Close()

	timezone.Initialize(cfg.Server.Timezone)

	a, err := app.New(cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.WithError(err).Warn("Failed to close database")
		}
	}()

	if err := a.Run(ctx); err != nil {
		return err
	}
	log.Info("Server stopped.")
	return nil
}

// openApp lädt die Konfiguration für Verwaltungsbefehle. Logs gehen auf
// stderr, damit die Ausgabe maschinenlesbar bleibt.
func openApp(cmd *cobra.Command, opts *RootOptions) (*app.App, error) {
	log.SetOutput(cmd.ErrOrStderr())
	if opts.Verbose {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.WarnLevel)
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	timezone.Initialize(cfg.Server.Timezone)

	a, err := app.New(cfg)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open queue", err)
	}
	return a, nil
}
