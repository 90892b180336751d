package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// pageCmd represents the page command
var pageCmd = &cobra.Command{
	Use:   "page <websocket-url> <script.js>",
	Short: "Run a script as a content context connected to a bridge host",
	Long: `Run a JavaScript file in a content context whose bridge talks to a host
over WebSocket. The bridge object is installed before the script runs, so
top-level code can call window.JSBridge directly.

The page keeps running, so timers and onMessage handlers keep working,
until the host disconnects or SIGINT or SIGTERM is received.

Examples:
  jsbridge page ws://localhost:8080/bridge app.js
  jsbridge page --global Host ws://localhost:8080/bridge app.js`,
	Args: cobra.ExactArgs(2),
	RunE: runPage,
}

var pageOptions contentOptions

func init() {
	rootCmd.AddCommand(pageCmd)
	pageOptions.register(pageCmd)
}

func runPage(cmd *cobra.Command, args []string) error {
	logger, err := setupLogger()
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer logger.Sync()

	wsURL, scriptPath := args[0], args[1]

	script, err := os.ReadFile(scriptPath)
	if err != nil {
		return fmt.Errorf("failed to read script: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	monitor := newLogMonitor(logger)
	page, wsClient, err := openPage(ctx, logger, wsURL, &pageOptions, monitor)
	if err != nil {
		return err
	}
	defer page.Close()
	defer func() {
		if err := wsClient.Disconnect(); err != nil {
			logger.Warn("Error during client disconnect", zap.Error(err))
		}
	}()

	if err := page.Load(ctx, string(script)); err != nil {
		return fmt.Errorf("failed to load %s: %w", scriptPath, err)
	}
	logger.Info("Script loaded", zap.String("script", scriptPath), zap.String("url", wsURL))

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case <-monitor.disconnected:
	}

	return nil
}
