package correlator

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tsarna/jsbridge/pkg/jsbridge"
	"github.com/tsarna/jsbridge/pkg/jsbridge/o11y"
)

// CorrelatorBuilder provides a fluent interface for creating Correlator instances
type CorrelatorBuilder struct {
	sender          jsbridge.Sender
	timeout         time.Duration
	logger          *zap.Logger
	metricsProvider o11y.MetricsProvider
	name            string
}

// New creates a new CorrelatorBuilder with the default call timeout.
func New() *CorrelatorBuilder {
	return &CorrelatorBuilder{
		timeout: jsbridge.DefaultTimeout,
	}
}

// WithSender sets the Outbound primitive used to reach the other side. A
// correlator without a sender fails every call with ErrTransportUnavailable
// until one is attached with SetSender.
func (b *CorrelatorBuilder) WithSender(sender jsbridge.Sender) *CorrelatorBuilder {
	b.sender = sender
	return b
}

// WithTimeout sets how long a call waits for its response.
func (b *CorrelatorBuilder) WithTimeout(timeout time.Duration) *CorrelatorBuilder {
	b.timeout = timeout
	return b
}

// WithLogger sets the logger for the Correlator
func (b *CorrelatorBuilder) WithLogger(logger *zap.Logger) *CorrelatorBuilder {
	b.logger = logger
	return b
}

// WithMetrics sets the metrics provider for the Correlator
func (b *CorrelatorBuilder) WithMetrics(provider o11y.MetricsProvider) *CorrelatorBuilder {
	b.metricsProvider = provider
	return b
}

// WithName sets the name used to identify this correlator in logs. A random
// id is used when no name is given.
func (b *CorrelatorBuilder) WithName(name string) *CorrelatorBuilder {
	b.name = name
	return b
}

// IsValid validates the builder configuration and returns an error if invalid
func (b *CorrelatorBuilder) IsValid() error {
	if b.timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", b.timeout)
	}
	return nil
}

// Build creates and returns the Correlator, returning an error if configuration is invalid
func (b *CorrelatorBuilder) Build() (*Correlator, error) {
	if err := b.IsValid(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	name := b.name
	if name == "" {
		name = uuid.NewString()
	}

	return &Correlator{
		name:    name,
		sender:  b.sender,
		timeout: b.timeout,
		logger:  logger.With(zap.String("correlator", name)),
		metrics: NewCorrelatorMetrics(b.metricsProvider),
		pending: make(map[uint64]*pendingCall),
	}, nil
}
