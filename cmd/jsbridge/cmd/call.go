package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tsarna/jsbridge/pkg/jsbridge"
)

// callCmd represents the call command
var callCmd = &cobra.Command{
	Use:   "call <websocket-url> <type> [json-payload]",
	Short: "Call a host handler and print the result",
	Long: `Connect to a bridge host as a content context, call the handler for the
given type and print its result as JSON.

Examples:
  jsbridge call ws://localhost:8080/bridge getUser '{"id": 7}'
  jsbridge call ws://localhost:8080/bridge ping`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runCall,
}

// emitCmd represents the emit command
var emitCmd = &cobra.Command{
	Use:   "emit <websocket-url> <type> [json-payload]",
	Short: "Send a one-way event to a bridge host",
	Long: `Connect to a bridge host as a content context and emit an event. No
response is expected; the command returns once the event has been written.

Examples:
  jsbridge emit ws://localhost:8080/bridge ui/click '{"button": "ok"}'`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runEmit,
}

var (
	callOptions contentOptions
	emitOptions contentOptions
)

func init() {
	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(emitCmd)

	callOptions.register(callCmd)
	emitOptions.register(emitCmd)
}

func runCall(cmd *cobra.Command, args []string) error {
	return withPage(args, &callOptions, func(ctx context.Context, logger *zap.Logger, global, jsArgs string, run pageRunner) error {
		result, err := run.page.Await(ctx, fmt.Sprintf("%s.call(%s)", global, jsArgs))
		if err != nil {
			if msg, ok := jsbridge.IsRemoteError(err); ok {
				return fmt.Errorf("host answered with an error: %s", msg)
			}
			return err
		}

		encoded, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
		return nil
	})
}

func runEmit(cmd *cobra.Command, args []string) error {
	return withPage(args, &emitOptions, func(ctx context.Context, logger *zap.Logger, global, jsArgs string, run pageRunner) error {
		if _, err := run.page.Eval(ctx, fmt.Sprintf("%s.emit(%s)", global, jsArgs)); err != nil {
			return err
		}
		if err := run.client.Flush(ctx); err != nil {
			return fmt.Errorf("failed to send event: %w", err)
		}

		logger.Info("Event sent", zap.String("type", args[1]))
		return nil
	})
}
