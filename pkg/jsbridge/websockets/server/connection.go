package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/tsarna/jsbridge/pkg/jsbridge"
	"github.com/tsarna/jsbridge/pkg/jsbridge/dispatcher"
)

// ErrQueueFull is returned by Execute when the connection's outbound queue
// has no room.
var ErrQueueFull = errors.New("outbound queue is full")

const shutdownCloseGrace = time.Second

// Connection is one connected content context. Frames it receives go to its
// dispatcher; the dispatcher answers through Execute, which queues the
// script for the connection's single writer goroutine.
type Connection struct {
	ctx        context.Context
	cancel     context.CancelFunc
	conn       *websocket.Conn
	dispatcher *dispatcher.Dispatcher
	logger     *zap.Logger
	config     *ListenerConfig
	metrics    *ListenerMetrics
	remoteAddr string
	started    time.Time

	outbound chan string
	done     chan struct{}

	cleanupOnce sync.Once
}

func newConnection(ctx context.Context, conn *websocket.Conn, config *ListenerConfig, metrics *ListenerMetrics, logger *zap.Logger, remoteAddr string) *Connection {
	ctx, cancel := context.WithCancel(ctx)

	return &Connection{
		ctx:        ctx,
		cancel:     cancel,
		conn:       conn,
		logger:     logger,
		config:     config,
		metrics:    metrics,
		remoteAddr: remoteAddr,
		started:    time.Now(),
		outbound:   make(chan string, config.queueSize),
		done:       make(chan struct{}),
	}
}

// RemoteAddr returns the address of the connected client.
func (c *Connection) RemoteAddr() string {
	return c.remoteAddr
}

// Dispatcher returns the dispatcher answering this connection's requests.
func (c *Connection) Dispatcher() *dispatcher.Dispatcher {
	return c.dispatcher
}

// Execute queues a script for delivery to the client. It never blocks.
func (c *Connection) Execute(source string) error {
	select {
	case <-c.done:
		return jsbridge.ErrTransportUnavailable
	default:
	}

	select {
	case c.outbound <- source:
		return nil
	default:
		c.logger.Warn("Outbound queue full, dropping script", zap.Int("length", len(source)))
		c.metrics.RecordFrameDropped(c.ctx, "queue_full")
		return ErrQueueFull
	}
}

// serve runs the connection until it closes. The reader runs on the calling
// goroutine.
func (c *Connection) serve() {
	c.logger.Debug("Starting WebSocket connection handler")

	go c.messageSender()
	c.messageReader()

	c.logger.Debug("WebSocket connection handler stopping")
	c.cleanup()
}

// messageSender serializes all writes to the client and sends periodic pings.
func (c *Connection) messageSender() {
	defer c.logger.Debug("Message sender goroutine stopped")

	var pingChan <-chan time.Time
	if c.config.pingInterval > 0 {
		pingTicker := time.NewTicker(c.config.pingInterval)
		defer pingTicker.Stop()
		pingChan = pingTicker.C
	}

	for {
		select {
		case script := <-c.outbound:
			writeCtx, cancel := context.WithTimeout(c.ctx, c.config.writeTimeout)
			err := c.conn.Write(writeCtx, websocket.MessageText, []byte(script))
			cancel()

			if err != nil {
				c.logger.Warn("Failed to write to WebSocket", zap.Error(err))
				c.metrics.RecordFrameDropped(c.ctx, "write_error")
				if websocket.CloseStatus(err) != -1 || c.ctx.Err() != nil {
					return
				}
				continue
			}
			c.metrics.RecordFrameSent(c.ctx, len(script))

		case <-pingChan:
			pingCtx, cancel := context.WithTimeout(c.ctx, c.config.writeTimeout)
			err := c.conn.Ping(pingCtx)
			cancel()

			c.metrics.RecordPing(c.ctx, err)
			if err != nil {
				c.logger.Warn("Ping failed, closing connection", zap.Error(err))
				c.conn.Close(websocket.StatusPolicyViolation, "ping timeout")
				return
			}

		case <-c.done:
			return

		case <-c.ctx.Done():
			return
		}
	}
}

// messageReader hands every text frame to the dispatcher until the
// connection closes.
func (c *Connection) messageReader() {
	defer c.logger.Debug("Message reader stopped")

	c.conn.SetReadLimit(c.config.readLimit)

	for {
		readCtx := c.ctx
		cancel := context.CancelFunc(func() {})
		if c.config.readTimeout > 0 {
			readCtx, cancel = context.WithTimeout(c.ctx, c.config.readTimeout)
		}

		msgType, data, err := c.conn.Read(readCtx)
		cancel()
		if err != nil {
			if status := websocket.CloseStatus(err); status != -1 {
				c.logger.Debug("WebSocket connection closed by client", zap.Int("close_status", int(status)))
			} else if c.ctx.Err() == nil {
				c.logger.Debug("WebSocket read ended", zap.Error(err))
			}
			return
		}

		c.metrics.RecordFrameReceived(c.ctx, len(data))

		if msgType != websocket.MessageText {
			c.logger.Debug("Ignoring binary frame", zap.Int("length", len(data)))
			continue
		}

		c.dispatcher.OnIncoming(string(data))
	}
}

func (c *Connection) cleanup() {
	c.cleanupOnce.Do(func() {
		c.logger.Debug("Cleaning up WebSocket connection")

		close(c.done)
		c.dispatcher.Close()
		c.cancel()

		if err := c.conn.Close(websocket.StatusNormalClosure, "Connection closed"); err != nil {
			c.logger.Debug("WebSocket close error (may be expected)", zap.Error(err))
		}
	})
}

// shutdownClose closes the socket with the given status. The reader then
// fails and cleanup runs through the normal serve path. A peer that does not
// answer the close frame within shutdownCloseGrace is dropped.
func (c *Connection) shutdownClose(code websocket.StatusCode, reason string) {
	c.logger.Debug("Closing connection for shutdown",
		zap.Int("close_code", int(code)),
		zap.String("reason", reason),
	)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		if err := c.conn.Close(code, reason); err != nil {
			c.logger.Debug("Error closing WebSocket during shutdown", zap.Error(err))
		}
	}()

	timer := time.NewTimer(shutdownCloseGrace)
	defer timer.Stop()

	select {
	case <-closed:
	case <-timer.C:
		c.logger.Debug("Peer did not answer close frame, dropping connection")
		c.cancel()
		<-closed
	}
}
