package config

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"go.uber.org/zap"

	"github.com/tsarna/jsbridge/pkg/jsbridge/websockets/server"
)

type ServerDefinition struct {
	Disabled      bool     `hcl:"disabled,optional"`
	RemainingBody hcl.Body `hcl:",remain"`
}

type WebsocketServerDefinition struct {
	Listen       string         `hcl:"listen"`
	Path         *string        `hcl:"path,optional"`
	MetricsPath  *string        `hcl:"metrics_path,optional"`
	QueueSize    *int           `hcl:"queue_size,optional"`
	ReadLimit    *int64         `hcl:"read_limit,optional"`
	PingInterval hcl.Expression `hcl:"ping_interval,optional"`
	ReadTimeout  hcl.Expression `hcl:"read_timeout,optional"`
	WriteTimeout hcl.Expression `hcl:"write_timeout,optional"`
	DefRange     hcl.Range      `hcl:",def_range"`
}

type ServerBlockHandler struct {
	BlockHandlerBase
}

func NewServerBlockHandler() *ServerBlockHandler {
	return &ServerBlockHandler{}
}

func (h *ServerBlockHandler) Process(config *Config, block *hcl.Block) hcl.Diagnostics {
	serverDef := ServerDefinition{}
	diags := gohcl.DecodeBody(block.Body, config.evalCtx, &serverDef)
	if diags.HasErrors() {
		return diags
	}

	if serverDef.Disabled {
		return nil
	}

	switch block.Labels[0] {
	case "websocket":
		return ProcessWebsocketServerBlock(config, block, serverDef.RemainingBody)

	default:
		return hcl.Diagnostics{
			&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Invalid server type",
				Detail:   fmt.Sprintf("Invalid server type: %s", block.Labels[0]),
				Subject:  &block.LabelRanges[0],
			},
		}
	}
}

// WebsocketServer serves the bridge to content contexts connecting over
// WebSocket, and optionally the metrics endpoint.
type WebsocketServer struct {
	Name     string
	DefRange hcl.Range
	Listen   string
	Path     string
	Listener *server.Listener

	logger     *zap.Logger
	httpServer *http.Server

	mu   sync.Mutex
	addr net.Addr
}

func ProcessWebsocketServerBlock(config *Config, block *hcl.Block, remainingBody hcl.Body) hcl.Diagnostics {
	serverDef := WebsocketServerDefinition{}
	diags := gohcl.DecodeBody(remainingBody, config.evalCtx, &serverDef)
	if diags.HasErrors() {
		return diags
	}

	name := block.Labels[1]
	if existing, ok := config.Servers[name]; ok {
		return diags.Append(&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Server already defined",
			Detail:   fmt.Sprintf("Server %s already defined at %s", name, existing.DefRange),
			Subject:  &serverDef.DefRange,
		})
	}

	listenerConfig := server.NewListenerConfig().
		WithRegistry(config.Registry).
		WithObserver(config.Bus).
		WithLogger(config.Logger.With(zap.String("server", name))).
		WithMetrics(config.MetricsProvider).
		WithGlobal(config.Bridge.Global)

	if serverDef.QueueSize != nil {
		listenerConfig = listenerConfig.WithQueueSize(*serverDef.QueueSize)
	}
	if serverDef.ReadLimit != nil {
		listenerConfig = listenerConfig.WithReadLimit(*serverDef.ReadLimit)
	}

	for _, setting := range []struct {
		expr  hcl.Expression
		apply func(time.Duration)
	}{
		{serverDef.PingInterval, func(d time.Duration) { listenerConfig = listenerConfig.WithPingInterval(d) }},
		{serverDef.ReadTimeout, func(d time.Duration) { listenerConfig = listenerConfig.WithReadTimeout(d) }},
		{serverDef.WriteTimeout, func(d time.Duration) { listenerConfig = listenerConfig.WithWriteTimeout(d) }},
	} {
		if !IsExpressionProvided(setting.expr) {
			continue
		}
		d, durationDiags := config.ParseDuration(setting.expr)
		diags = diags.Extend(durationDiags)
		if durationDiags.HasErrors() {
			return diags
		}
		setting.apply(d)
	}

	listener, err := listenerConfig.Build()
	if err != nil {
		return diags.Append(&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Failed to create WebSocket server",
			Detail:   err.Error(),
			Subject:  &serverDef.DefRange,
		})
	}

	path := "/"
	if serverDef.Path != nil {
		path = *serverDef.Path
	}

	mux := http.NewServeMux()
	mux.Handle(path, listener)

	if serverDef.MetricsPath != nil {
		if config.MetricsHandler == nil {
			return diags.Append(&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "No metrics endpoint",
				Detail:   "metrics_path requires metrics = \"prometheus\" in the bridge block",
				Subject:  &serverDef.DefRange,
			})
		}
		mux.Handle(*serverDef.MetricsPath, config.MetricsHandler)
	}

	ws := &WebsocketServer{
		Name:     name,
		DefRange: serverDef.DefRange,
		Listen:   serverDef.Listen,
		Path:     path,
		Listener: listener,
		logger:   config.Logger,
		httpServer: &http.Server{
			Addr:              serverDef.Listen,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	config.Servers[name] = ws
	config.Startables = append(config.Startables, ws)
	config.Stoppables = append(config.Stoppables, ws)

	return diags
}

// Start binds the listen address and serves in the background.
func (s *WebsocketServer) Start() error {
	ln, err := net.Listen("tcp", s.Listen)
	if err != nil {
		return fmt.Errorf("server %s: %w", s.Name, err)
	}

	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()

	s.logger.Info("WebSocket server listening",
		zap.String("server", s.Name),
		zap.Stringer("addr", ln.Addr()),
		zap.String("path", s.Path))

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("WebSocket server failed", zap.String("server", s.Name), zap.Error(err))
		}
	}()

	return nil
}

// Addr returns the bound address once started, nil before.
func (s *WebsocketServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Stop closes every bridge connection, then the HTTP server.
func (s *WebsocketServer) Stop(ctx context.Context) error {
	err := s.Listener.Shutdown(ctx)
	return errors.Join(err, s.httpServer.Shutdown(ctx))
}
