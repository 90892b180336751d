package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tsarna/jsbridge/pkg/jsbridge/config"
)

// hostCmd represents the host command
var hostCmd = &cobra.Command{
	Use:   "host [config-files-or-directories...]",
	Short: "Run a bridge host",
	Long: `Run a bridge host with the specified configuration files or directories.

Every .jsb file in a directory is loaded. The host runs until it receives
SIGINT or SIGTERM, then closes all content connections and stops.

Examples:
  jsbridge host host.jsb
  jsbridge host ./configs/
  jsbridge host handlers.jsb servers.jsb ./more-configs/`,
	Args: cobra.MinimumNArgs(1),
	RunE: runHost,
}

var (
	shutdownTimeout time.Duration
	checkOnly       bool
)

func init() {
	rootCmd.AddCommand(hostCmd)

	hostCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 10*time.Second, "how long to wait for connections to close on shutdown")
	hostCmd.Flags().BoolVar(&checkOnly, "check", false, "validate the configuration and exit")
}

func runHost(cmd *cobra.Command, args []string) error {
	logger, err := setupLogger()
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("Starting bridge host",
		zap.Strings("config-paths", args),
		zap.String("log-level", logLevel),
	)

	cfg, diags := config.NewConfig().
		WithLogger(logger).
		WithSources(stringSliceToAnySlice(args)...).
		Build()
	if diags.HasErrors() {
		logger.Error("Failed to build config", zap.Error(diags))
		return diags
	}

	if checkOnly {
		logger.Info("Configuration is valid")
		return cfg.Stop(context.Background())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cfg.Start(); err != nil {
		logger.Error("Failed to start", zap.Error(err))
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = cfg.Stop(stopCtx)
		return err
	}

	for name, server := range cfg.Servers {
		logger.Info("Accepting content connections",
			zap.String("server", name),
			zap.String("url", fmt.Sprintf("ws://%s%s", server.Addr(), server.Path)))
	}

	<-ctx.Done()
	logger.Info("Shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return cfg.Stop(stopCtx)
}
