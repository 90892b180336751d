package server

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tsarna/jsbridge/pkg/jsbridge"
	"github.com/tsarna/jsbridge/pkg/jsbridge/bus"
	"github.com/tsarna/jsbridge/pkg/jsbridge/dispatcher"
	"github.com/tsarna/jsbridge/pkg/jsbridge/o11y"
)

// ListenerConfig holds the configuration for creating a WebSocket Listener.
// Use NewListenerConfig() to create a new configuration and chain methods
// to set the required parameters before calling Build().
type ListenerConfig struct {
	registry        *dispatcher.Registry
	observer        bus.EventBus
	logger          *zap.Logger
	metricsProvider o11y.MetricsProvider
	global          string
	queueSize       int
	readLimit       int64
	pingInterval    time.Duration
	readTimeout     time.Duration
	writeTimeout    time.Duration
}

const (
	// DefaultQueueSize is how many scripts may wait to be written to one
	// connection before further ones are dropped.
	DefaultQueueSize = 256

	// DefaultPingInterval is the default interval for sending WebSocket ping frames.
	DefaultPingInterval = 30 * time.Second

	// DefaultReadTimeout of zero lets a connection stay silent indefinitely;
	// dead peers are found by failed pings instead.
	DefaultReadTimeout = 0

	// DefaultWriteTimeout is the default timeout for writing one frame.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultReadLimit caps the size of one incoming frame.
	DefaultReadLimit = 1 << 20
)

// NewListenerConfig creates a new ListenerConfig for building a WebSocket Listener.
//
// Example:
//
//	listener, err := server.NewListenerConfig().
//	    WithRegistry(registry).
//	    WithObserver(eventBus).
//	    WithLogger(logger).
//	    WithPingInterval(45 * time.Second).
//	    Build()
func NewListenerConfig() *ListenerConfig {
	return &ListenerConfig{
		global:       jsbridge.GlobalName,
		queueSize:    DefaultQueueSize,
		readLimit:    DefaultReadLimit,
		pingInterval: DefaultPingInterval,
		readTimeout:  DefaultReadTimeout,
		writeTimeout: DefaultWriteTimeout,
	}
}

// WithRegistry sets the handlers shared by every connection. Required.
func (c *ListenerConfig) WithRegistry(registry *dispatcher.Registry) *ListenerConfig {
	c.registry = registry
	return c
}

// WithObserver sets the bus that receives events emitted by connected pages.
func (c *ListenerConfig) WithObserver(observer bus.EventBus) *ListenerConfig {
	c.observer = observer
	return c
}

// WithLogger sets the Logger for the WebSocket Listener. Required.
func (c *ListenerConfig) WithLogger(logger *zap.Logger) *ListenerConfig {
	c.logger = logger
	return c
}

func (c *ListenerConfig) WithMetrics(provider o11y.MetricsProvider) *ListenerConfig {
	c.metricsProvider = provider
	return c
}

// WithGlobal sets the content-side bridge object name used in injected scripts.
func (c *ListenerConfig) WithGlobal(global string) *ListenerConfig {
	c.global = global
	return c
}

// WithQueueSize sets the outbound queue size per connection. Must be positive.
//
// Default: 256
func (c *ListenerConfig) WithQueueSize(size int) *ListenerConfig {
	if size > 0 {
		c.queueSize = size
	}
	return c
}

// WithReadLimit sets the largest frame accepted from a client.
func (c *ListenerConfig) WithReadLimit(limit int64) *ListenerConfig {
	if limit > 0 {
		c.readLimit = limit
	}
	return c
}

// WithPingInterval sets the interval for sending WebSocket ping frames.
// Set to 0 to disable ping/pong health monitoring.
//
// Default: 30 seconds
func (c *ListenerConfig) WithPingInterval(interval time.Duration) *ListenerConfig {
	if interval >= 0 {
		c.pingInterval = interval
	}
	return c
}

// WithReadTimeout closes connections that send nothing for this long.
// Zero disables it.
func (c *ListenerConfig) WithReadTimeout(timeout time.Duration) *ListenerConfig {
	if timeout >= 0 {
		c.readTimeout = timeout
	}
	return c
}

// WithWriteTimeout sets the timeout for writing one frame to a client.
//
// Default: 10 seconds
func (c *ListenerConfig) WithWriteTimeout(timeout time.Duration) *ListenerConfig {
	if timeout > 0 {
		c.writeTimeout = timeout
	}
	return c
}

// IsValid checks if the configuration has all required parameters set.
func (c *ListenerConfig) IsValid() error {
	var missing []string
	if c.registry == nil {
		missing = append(missing, "Registry")
	}
	if c.logger == nil {
		missing = append(missing, "Logger")
	}

	if len(missing) > 0 {
		return fmt.Errorf("invalid listener configuration, missing: %v", missing)
	}

	if c.global == "" {
		return fmt.Errorf("invalid listener configuration: global name must not be empty")
	}

	return nil
}

// Build creates a new WebSocket Listener from the configuration.
func (c *ListenerConfig) Build() (*Listener, error) {
	if err := c.IsValid(); err != nil {
		return nil, err
	}

	return newListener(c), nil
}
