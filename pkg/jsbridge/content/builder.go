package content

import (
	"fmt"
	"time"

	"github.com/dop251/goja"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tsarna/jsbridge/pkg/jsbridge"
	"github.com/tsarna/jsbridge/pkg/jsbridge/correlator"
	"github.com/tsarna/jsbridge/pkg/jsbridge/o11y"
)

const (
	defaultJobQueueSize     = 256
	defaultMaxCallStackSize = 1024
)

// PageBuilder provides a fluent interface for creating Page instances
type PageBuilder struct {
	sender           jsbridge.Sender
	timeout          time.Duration
	logger           *zap.Logger
	metricsProvider  o11y.MetricsProvider
	global           string
	name             string
	installAfterLoad bool
	jobQueueSize     int
	maxCallStackSize int
}

// NewPage creates a new PageBuilder.
func NewPage() *PageBuilder {
	return &PageBuilder{
		timeout:          jsbridge.DefaultTimeout,
		global:           jsbridge.GlobalName,
		jobQueueSize:     defaultJobQueueSize,
		maxCallStackSize: defaultMaxCallStackSize,
	}
}

// WithSender sets the Outbound primitive. It can also be bound later with
// Page.SetSender.
func (b *PageBuilder) WithSender(sender jsbridge.Sender) *PageBuilder {
	b.sender = sender
	return b
}

// WithTimeout sets how long a call from the page waits for its response.
func (b *PageBuilder) WithTimeout(timeout time.Duration) *PageBuilder {
	b.timeout = timeout
	return b
}

func (b *PageBuilder) WithLogger(logger *zap.Logger) *PageBuilder {
	b.logger = logger
	return b
}

func (b *PageBuilder) WithMetrics(provider o11y.MetricsProvider) *PageBuilder {
	b.metricsProvider = provider
	return b
}

// WithGlobal sets the name of the bridge object installed on window.
func (b *PageBuilder) WithGlobal(global string) *PageBuilder {
	b.global = global
	return b
}

func (b *PageBuilder) WithName(name string) *PageBuilder {
	b.name = name
	return b
}

// WithInstallAfterLoad defers installing the bridge object until the first
// Load has run, so listeners that page script registers for the ready event
// see it. By default the object is installed during Build, before any page
// script runs.
func (b *PageBuilder) WithInstallAfterLoad(afterLoad bool) *PageBuilder {
	b.installAfterLoad = afterLoad
	return b
}

// WithJobQueueSize sets how many pending jobs the event loop buffers.
func (b *PageBuilder) WithJobQueueSize(size int) *PageBuilder {
	b.jobQueueSize = size
	return b
}

func (b *PageBuilder) WithMaxCallStackSize(size int) *PageBuilder {
	b.maxCallStackSize = size
	return b
}

// IsValid validates the builder configuration and returns an error if invalid
func (b *PageBuilder) IsValid() error {
	if b.timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", b.timeout)
	}
	if b.global == "" {
		return fmt.Errorf("global name must not be empty")
	}
	if b.jobQueueSize <= 0 {
		return fmt.Errorf("job queue size must be positive, got %d", b.jobQueueSize)
	}
	return nil
}

// Build creates the page and starts its event loop.
func (b *PageBuilder) Build() (*Page, error) {
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
	logger = logger.With(zap.String("page", name))

	bridge, err := correlator.New().
		WithSender(b.sender).
		WithTimeout(b.timeout).
		WithLogger(logger).
		WithMetrics(b.metricsProvider).
		WithName(name).
		Build()
	if err != nil {
		return nil, err
	}

	vm := goja.New()
	if b.maxCallStackSize > 0 {
		vm.SetMaxCallStackSize(b.maxCallStackSize)
	}

	p := &Page{
		name:      name,
		vm:        vm,
		bridge:    bridge,
		logger:    logger,
		global:    b.global,
		jobs:      make(chan func(), b.jobQueueSize),
		done:      make(chan struct{}),
		ready:     make(chan struct{}),
		listeners: make(map[string][]goja.Value),
		timers:    make(map[int64]*time.Timer),
		sender:    b.sender,
	}

	// The loop is not running yet, so the VM can be set up from here.
	if err := p.setupGlobals(); err != nil {
		return nil, err
	}
	if !b.installAfterLoad {
		if err := p.install(); err != nil {
			return nil, err
		}
	}

	p.wg.Add(1)
	go p.loop()

	return p, nil
}
