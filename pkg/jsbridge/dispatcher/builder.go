package dispatcher

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tsarna/jsbridge/pkg/jsbridge"
	"github.com/tsarna/jsbridge/pkg/jsbridge/bus"
	"github.com/tsarna/jsbridge/pkg/jsbridge/o11y"
)

// DispatcherBuilder provides a fluent interface for creating Dispatcher instances
type DispatcherBuilder struct {
	registry        *Registry
	executor        jsbridge.Executor
	observer        bus.EventBus
	logger          *zap.Logger
	metricsProvider o11y.MetricsProvider
	global          string
	name            string
}

// New creates a new DispatcherBuilder.
func New() *DispatcherBuilder {
	return &DispatcherBuilder{
		global: jsbridge.GlobalName,
	}
}

// WithRegistry sets the handler registry. A fresh registry is created when
// none is given.
func (b *DispatcherBuilder) WithRegistry(registry *Registry) *DispatcherBuilder {
	b.registry = registry
	return b
}

// WithExecutor sets the Inbound primitive used to push responses and events
// into the content context. Required.
func (b *DispatcherBuilder) WithExecutor(executor jsbridge.Executor) *DispatcherBuilder {
	b.executor = executor
	return b
}

// WithObserver sets the bus that receives id-less events from the content
// context.
func (b *DispatcherBuilder) WithObserver(observer bus.EventBus) *DispatcherBuilder {
	b.observer = observer
	return b
}

// WithLogger sets the logger for the Dispatcher
func (b *DispatcherBuilder) WithLogger(logger *zap.Logger) *DispatcherBuilder {
	b.logger = logger
	return b
}

// WithMetrics sets the metrics provider for the Dispatcher
func (b *DispatcherBuilder) WithMetrics(provider o11y.MetricsProvider) *DispatcherBuilder {
	b.metricsProvider = provider
	return b
}

// WithGlobal sets the name of the content-side bridge object that injected
// scripts address.
func (b *DispatcherBuilder) WithGlobal(global string) *DispatcherBuilder {
	b.global = global
	return b
}

// WithName sets the name used to identify this dispatcher in logs.
func (b *DispatcherBuilder) WithName(name string) *DispatcherBuilder {
	b.name = name
	return b
}

// IsValid validates the builder configuration and returns an error if invalid
func (b *DispatcherBuilder) IsValid() error {
	if b.executor == nil {
		return fmt.Errorf("executor is required")
	}
	if b.global == "" {
		return fmt.Errorf("global name must not be empty")
	}
	return nil
}

// Build creates and returns the Dispatcher, returning an error if configuration is invalid
func (b *DispatcherBuilder) Build() (*Dispatcher, error) {
	if err := b.IsValid(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	registry := b.registry
	if registry == nil {
		registry = NewRegistry()
	}

	name := b.name
	if name == "" {
		name = uuid.NewString()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Dispatcher{
		name:     name,
		registry: registry,
		executor: b.executor,
		observer: b.observer,
		global:   b.global,
		logger:   logger.With(zap.String("dispatcher", name)),
		metrics:  NewDispatcherMetrics(b.metricsProvider),
		ctx:      ctx,
		cancel:   cancel,
		inflight: make(map[uint64]struct{}),
	}, nil
}
