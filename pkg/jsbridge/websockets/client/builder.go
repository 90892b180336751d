package client

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tsarna/jsbridge/pkg/jsbridge"
)

const (
	DefaultDialTimeout    = 30 * time.Second
	DefaultWriteQueueSize = 100
)

// AuthorizationProvider returns the Authorization header value sent with
// the WebSocket handshake, e.g. "Bearer token123".
type AuthorizationProvider func(ctx context.Context) (string, error)

// Monitor is told when the client connects and disconnects. err is nil for
// a disconnect requested through Disconnect.
type Monitor interface {
	OnConnect(ctx context.Context, client *Client)
	OnDisconnect(ctx context.Context, client *Client, err error)
}

// ClientBuilder provides a fluent interface for building WebSocket clients.
type ClientBuilder struct {
	url            string
	logger         *zap.Logger
	dialTimeout    time.Duration
	executor       jsbridge.Executor
	writeQueueSize int
	authProvider   AuthorizationProvider
	headers        map[string][]string
	monitor        Monitor
}

// NewClient creates a new WebSocket client builder.
func NewClient() *ClientBuilder {
	return &ClientBuilder{
		dialTimeout:    DefaultDialTimeout,
		logger:         zap.NewNop(),
		writeQueueSize: DefaultWriteQueueSize,
	}
}

// WithURL sets the WebSocket URL to connect to.
func (b *ClientBuilder) WithURL(url string) *ClientBuilder {
	b.url = url
	return b
}

func (b *ClientBuilder) WithLogger(logger *zap.Logger) *ClientBuilder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

func (b *ClientBuilder) WithDialTimeout(timeout time.Duration) *ClientBuilder {
	if timeout > 0 {
		b.dialTimeout = timeout
	}
	return b
}

// WithExecutor sets where scripts received from the host are run, normally
// a content.Page. It may instead be set later with SetExecutor.
func (b *ClientBuilder) WithExecutor(executor jsbridge.Executor) *ClientBuilder {
	b.executor = executor
	return b
}

// WithWriteQueueSize sets how many outgoing frames may be queued.
func (b *ClientBuilder) WithWriteQueueSize(size int) *ClientBuilder {
	if size > 0 {
		b.writeQueueSize = size
	}
	return b
}

// WithAuthorization sets a static Authorization header value.
func (b *ClientBuilder) WithAuthorization(authHeader string) *ClientBuilder {
	b.authProvider = func(ctx context.Context) (string, error) {
		return authHeader, nil
	}
	return b
}

func (b *ClientBuilder) WithAuthorizationProvider(provider AuthorizationProvider) *ClientBuilder {
	b.authProvider = provider
	return b
}

// WithHeaders adds custom HTTP headers for the WebSocket handshake.
func (b *ClientBuilder) WithHeaders(headers map[string][]string) *ClientBuilder {
	if b.headers == nil {
		b.headers = make(map[string][]string)
	}
	for key, values := range headers {
		b.headers[key] = values
	}
	return b
}

func (b *ClientBuilder) WithHeader(key, value string) *ClientBuilder {
	if b.headers == nil {
		b.headers = make(map[string][]string)
	}
	b.headers[key] = []string{value}
	return b
}

func (b *ClientBuilder) WithMonitor(monitor Monitor) *ClientBuilder {
	b.monitor = monitor
	return b
}

// IsValid checks that all required configuration is present.
func (b *ClientBuilder) IsValid() error {
	if b.url == "" {
		return fmt.Errorf("URL is required")
	}
	return nil
}

// Build creates and returns a new WebSocket client with the configured options.
func (b *ClientBuilder) Build() (*Client, error) {
	if err := b.IsValid(); err != nil {
		return nil, err
	}

	return &Client{
		url:            b.url,
		logger:         b.logger,
		dialTimeout:    b.dialTimeout,
		executor:       b.executor,
		writeQueueSize: b.writeQueueSize,
		authProvider:   b.authProvider,
		headers:        b.headers,
		monitor:        b.monitor,
	}, nil
}
