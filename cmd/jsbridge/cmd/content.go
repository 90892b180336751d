package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tsarna/jsbridge/pkg/jsbridge"
	"github.com/tsarna/jsbridge/pkg/jsbridge/content"
	"github.com/tsarna/jsbridge/pkg/jsbridge/websockets/client"
)

// contentOptions are the flags shared by the commands that act as a
// content context.
type contentOptions struct {
	dialTimeout time.Duration
	callTimeout time.Duration
	global      string
	auth        string
}

func (o *contentOptions) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.DurationVar(&o.dialTimeout, "dial-timeout", client.DefaultDialTimeout, "WebSocket dial timeout")
	flags.DurationVar(&o.callTimeout, "call-timeout", jsbridge.DefaultTimeout, "how long a call waits for its response")
	flags.StringVar(&o.global, "global", jsbridge.GlobalName, "name of the bridge object in the page")
	flags.StringVar(&o.auth, "authorization", "", "Authorization header sent when connecting")
}

// logMonitor logs connection changes and closes disconnected when the host
// goes away.
type logMonitor struct {
	logger       *zap.Logger
	disconnected chan struct{}
}

func newLogMonitor(logger *zap.Logger) *logMonitor {
	return &logMonitor{logger: logger, disconnected: make(chan struct{})}
}

func (m *logMonitor) OnConnect(ctx context.Context, c *client.Client) {
	m.logger.Info("Connected to bridge host")
}

func (m *logMonitor) OnDisconnect(ctx context.Context, c *client.Client, err error) {
	if err != nil {
		m.logger.Warn("Disconnected from bridge host", zap.Error(err))
	} else {
		m.logger.Info("Disconnected from bridge host")
	}

	select {
	case <-m.disconnected:
	default:
		close(m.disconnected)
	}
}

// openPage connects a new page to the host at url. The caller must close
// both the page and the client.
func openPage(ctx context.Context, logger *zap.Logger, url string, opts *contentOptions, monitor client.Monitor) (*content.Page, *client.Client, error) {
	builder := client.NewClient().
		WithURL(url).
		WithLogger(logger).
		WithDialTimeout(opts.dialTimeout).
		WithMonitor(monitor)
	if opts.auth != "" {
		builder = builder.WithAuthorization(opts.auth)
	}

	wsClient, err := builder.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create WebSocket client: %w", err)
	}

	page, err := content.NewPage().
		WithName(url).
		WithGlobal(opts.global).
		WithSender(wsClient).
		WithTimeout(opts.callTimeout).
		WithLogger(logger).
		Build()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create page: %w", err)
	}

	wsClient.SetExecutor(page)
	if err := wsClient.Connect(ctx); err != nil {
		page.Close()
		return nil, nil, fmt.Errorf("failed to connect to bridge host: %w", err)
	}

	return page, wsClient, nil
}

// bridgeArgs renders a request type and optional JSON payload as JavaScript
// call arguments.
func bridgeArgs(eventType string, payload []string) (string, error) {
	quoted, err := json.Marshal(eventType)
	if err != nil {
		return "", err
	}

	if len(payload) == 0 {
		return string(quoted), nil
	}

	if !json.Valid([]byte(payload[0])) {
		return "", fmt.Errorf("payload is not valid JSON: %s", payload[0])
	}
	return fmt.Sprintf("%s, %s", quoted, payload[0]), nil
}

type pageRunner struct {
	page   *content.Page
	client *client.Client
}

// withPage connects an empty page to the host named by args[0] and runs fn
// with the JavaScript arguments for the type and payload in args[1:].
func withPage(args []string, opts *contentOptions, fn func(ctx context.Context, logger *zap.Logger, global, jsArgs string, run pageRunner) error) error {
	logger, err := setupLogger()
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer logger.Sync()

	jsArgs, err := bridgeArgs(args[1], args[2:])
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.dialTimeout+opts.callTimeout)
	defer cancel()

	page, wsClient, err := openPage(ctx, logger, args[0], opts, nil)
	if err != nil {
		return err
	}
	defer page.Close()
	defer func() {
		if err := wsClient.Disconnect(); err != nil {
			logger.Warn("Error during client disconnect", zap.Error(err))
		}
	}()

	return fn(ctx, logger, opts.global, jsArgs, pageRunner{page: page, client: wsClient})
}
