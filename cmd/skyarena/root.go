package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"skyarena/internal/config"
	"skyarena/internal/logging"
	"skyarena/internal/store"
	"skyarena/internal/store/drivers"
)

var (
	configPath string
	schemaPath string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "skyarena",
	Short: "Competition telemetry relay",
	Long: "skyarena relays team telemetry, lock and kamikaze events, keeps the live " +
		"airspace picture and serves history and event streams.",
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Path to YAML configuration")
	pf.StringVar(&schemaPath, "schema", "", "Path to CUE schema (defaults to the embedded one)")
	pf.StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	pf.StringVar(&logFormat, "log-format", "", "Log format override (text, json)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(registryCmd)
}

// setup loads the configuration and builds the logger. The returned closer
// releases the log file, if any.
func setup() (*config.Config, *slog.Logger, io.Closer, error) {
	cfg, err := config.Load(configPath, schemaPath)
	if err != nil {
		return nil, nil, nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	log, closer, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, nil, err
	}
	slog.SetDefault(log)
	return cfg, log, closer, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (*store.SQLStore, error) {
	drivers.Ready()
	return store.Open(ctx, store.Config{
		Type: cfg.Database.Type,
		Path: cfg.Database.Path,
		DSN:  cfg.Database.DSN,
	}, log)
}
