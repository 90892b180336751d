// Package server is the host side of the WebSocket transport. Every
// connection gets its own dispatcher; all of them share one handler
// registry and one observer bus.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tsarna/jsbridge/pkg/jsbridge/dispatcher"
)

type Listener struct {
	logger  *zap.Logger
	config  *ListenerConfig
	metrics *ListenerMetrics

	connections  map[*Connection]struct{}
	connMutex    sync.RWMutex
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

func newListener(config *ListenerConfig) *Listener {
	return &Listener{
		logger:      config.logger,
		config:      config,
		metrics:     NewListenerMetrics(config.metricsProvider),
		connections: make(map[*Connection]struct{}),
		shutdown:    make(chan struct{}),
	}
}

// ServeHTTP makes the Listener an http.Handler.
func (l *Listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	l.ServeWebsocket(w, r)
}

// ServeWebsocket upgrades the request and serves the connection until it
// closes.
//
//	http.HandleFunc("/bridge", listener.ServeWebsocket)
func (l *Listener) ServeWebsocket(w http.ResponseWriter, r *http.Request) {
	select {
	case <-l.shutdown:
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionContextTakeover,
	})
	if err != nil {
		l.logger.Error("Failed to accept WebSocket connection",
			zap.Error(err),
			zap.String("remote_addr", r.RemoteAddr),
			zap.String("user_agent", r.UserAgent()),
		)
		l.metrics.RecordConnectionError(r.Context(), "accept")
		return
	}

	id := uuid.NewString()
	logger := l.logger.With(zap.String("connection", id), zap.String("remote_addr", r.RemoteAddr))
	connection := newConnection(r.Context(), conn, l.config, l.metrics, logger, r.RemoteAddr)

	connection.dispatcher, err = dispatcher.New().
		WithRegistry(l.config.registry).
		WithExecutor(connection).
		WithObserver(l.config.observer).
		WithLogger(logger).
		WithMetrics(l.config.metricsProvider).
		WithGlobal(l.config.global).
		WithName(id).
		Build()
	if err != nil {
		l.logger.Error("Failed to create dispatcher", zap.Error(err))
		l.metrics.RecordConnectionError(r.Context(), "dispatcher")
		conn.Close(websocket.StatusInternalError, "internal error")
		return
	}

	l.connMutex.Lock()
	select {
	case <-l.shutdown:
		l.connMutex.Unlock()
		conn.Close(websocket.StatusServiceRestart, "Server shutting down")
		return
	default:
	}
	l.connections[connection] = struct{}{}
	connCount := len(l.connections)
	l.connMutex.Unlock()

	logger.Debug("WebSocket connection established",
		zap.String("user_agent", r.UserAgent()),
		zap.Int("active_connections", connCount),
	)
	l.metrics.RecordConnectionStart(r.Context(), connCount)

	connection.serve()

	l.connMutex.Lock()
	delete(l.connections, connection)
	connCount = len(l.connections)
	l.connMutex.Unlock()

	logger.Debug("WebSocket connection removed from tracking", zap.Int("active_connections", connCount))
	l.metrics.RecordConnectionEnd(context.Background(), connCount, time.Since(connection.started))
}

// Push delivers an event to the onMessage subscriber of every connected
// page. It returns how many connections accepted it and the errors of those
// that did not.
func (l *Listener) Push(ctx context.Context, eventType string, data any) (int, error) {
	var errs []error
	delivered := 0

	for _, conn := range l.snapshot() {
		if err := conn.dispatcher.Push(ctx, eventType, data); err != nil {
			errs = append(errs, err)
			continue
		}
		delivered++
	}

	return delivered, errors.Join(errs...)
}

func (l *Listener) snapshot() []*Connection {
	l.connMutex.RLock()
	defer l.connMutex.RUnlock()

	connections := make([]*Connection, 0, len(l.connections))
	for conn := range l.connections {
		connections = append(connections, conn)
	}
	return connections
}

// Shutdown stops accepting connections, closes the open ones with
// StatusGoingAway and waits until they are gone or ctx ends.
func (l *Listener) Shutdown(ctx context.Context) error {
	l.shutdownOnce.Do(func() {
		l.connMutex.Lock()
		close(l.shutdown)
		l.connMutex.Unlock()

		connections := l.snapshot()
		if len(connections) == 0 {
			l.logger.Debug("No active connections to close")
			return
		}

		l.logger.Info("Closing active WebSocket connections", zap.Int("connection_count", len(connections)))
		for _, conn := range connections {
			go conn.shutdownClose(websocket.StatusGoingAway, "Server shutting down")
		}
	})

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		remaining := l.ConnectionCount()
		if remaining == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			l.logger.Warn("Shutdown timeout reached with active connections",
				zap.Int("remaining_connections", remaining),
			)
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ConnectionCount returns the current number of active WebSocket connections.
func (l *Listener) ConnectionCount() int {
	l.connMutex.RLock()
	defer l.connMutex.RUnlock()
	return len(l.connections)
}
