// Package client is the content side of the WebSocket transport. A Client is
// the page's Sender: bridge text goes out as text frames, and every frame
// the host sends back is a script handed to the configured Executor.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/tsarna/jsbridge/pkg/jsbridge"
)

// ErrWriteQueueFull is returned by Send when frames are queued faster than
// they can be written.
var ErrWriteQueueFull = errors.New("write queue is full")

// outgoing is a queued frame, or a flush marker when flushed is set.
type outgoing struct {
	text    string
	flushed chan struct{}
}

type Client struct {
	url            string
	logger         *zap.Logger
	dialTimeout    time.Duration
	writeQueueSize int
	authProvider   AuthorizationProvider
	headers        map[string][]string
	monitor        Monitor

	executorMu sync.RWMutex
	executor   jsbridge.Executor

	conn     *websocket.Conn
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.RWMutex
	started  int32
	stopping int32

	writeChannel chan outgoing
	done         chan struct{}
}

// SetExecutor replaces the Executor that runs scripts from the host.
func (c *Client) SetExecutor(executor jsbridge.Executor) {
	c.executorMu.Lock()
	c.executor = executor
	c.executorMu.Unlock()
}

func (c *Client) currentExecutor() jsbridge.Executor {
	c.executorMu.RLock()
	defer c.executorMu.RUnlock()
	return c.executor
}

// Connect establishes the WebSocket connection and starts message processing.
func (c *Client) Connect(ctx context.Context) error {
	if c.currentExecutor() == nil {
		return fmt.Errorf("executor is required")
	}
	if _, err := url.Parse(c.url); err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if !atomic.CompareAndSwapInt32(&c.started, 0, 1) {
		return fmt.Errorf("client is already started")
	}

	dialCtx, dialCancel := context.WithTimeout(ctx, c.dialTimeout)
	defer dialCancel()

	dialOptions := &websocket.DialOptions{}
	if c.headers != nil {
		dialOptions.HTTPHeader = make(map[string][]string)
		for key, values := range c.headers {
			dialOptions.HTTPHeader[key] = values
		}
	}

	if c.authProvider != nil {
		authValue, err := c.authProvider(dialCtx)
		if err != nil {
			atomic.StoreInt32(&c.started, 0)
			return fmt.Errorf("failed to get authorization: %w", err)
		}
		if authValue != "" {
			if dialOptions.HTTPHeader == nil {
				dialOptions.HTTPHeader = make(map[string][]string)
			}
			dialOptions.HTTPHeader["Authorization"] = []string{authValue}
		}
	}

	conn, _, err := websocket.Dial(dialCtx, c.url, dialOptions)
	if err != nil {
		atomic.StoreInt32(&c.started, 0)
		return fmt.Errorf("failed to connect to WebSocket: %w", err)
	}

	// Scripts from the host carry arbitrary payloads.
	conn.SetReadLimit(-1)

	c.mu.Lock()
	c.conn = conn
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.done = make(chan struct{})
	c.writeChannel = make(chan outgoing, c.writeQueueSize)
	c.mu.Unlock()

	c.logger.Info("WebSocket client connected", zap.String("url", c.url))

	if c.monitor != nil {
		c.monitor.OnConnect(ctx, c)
	}

	go c.readLoop(conn)
	go c.writeLoop(conn)

	return nil
}

// Disconnect closes the WebSocket connection and stops message processing.
func (c *Client) Disconnect() error {
	if atomic.LoadInt32(&c.started) == 0 {
		return nil
	}
	if !atomic.CompareAndSwapInt32(&c.stopping, 0, 1) {
		return nil
	}

	c.logger.Info("Disconnecting WebSocket client")
	c.cleanupWithStatus(websocket.StatusNormalClosure, "client disconnect")

	if c.monitor != nil {
		c.monitor.OnDisconnect(context.Background(), c, nil)
	}
	return nil
}

func (c *Client) cleanupWithStatus(status websocket.StatusCode, reason string) {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	if c.conn != nil {
		c.conn.Close(status, reason)
		c.conn = nil
	}
	done := c.done
	c.mu.Unlock()

	if done != nil {
		<-done
	}

	atomic.StoreInt32(&c.started, 0)
	atomic.StoreInt32(&c.stopping, 0)
}

// notifyDisconnectError cleans up after the connection failed under us and
// tells the monitor.
func (c *Client) notifyDisconnectError(err error) {
	if atomic.CompareAndSwapInt32(&c.stopping, 0, 1) {
		// readLoop must return before cleanup can finish
		go func() {
			c.cleanupWithStatus(websocket.StatusInternalError, "connection error")

			if c.monitor != nil {
				c.monitor.OnDisconnect(context.Background(), c, err)
			}
		}()
	}
}

// Connected reports whether bridge text can currently be sent.
func (c *Client) Connected() bool {
	return atomic.LoadInt32(&c.started) == 1 && atomic.LoadInt32(&c.stopping) == 0
}

// Send queues text for the host. It fails with
// jsbridge.ErrTransportUnavailable while not connected.
func (c *Client) Send(text string) error {
	if !c.Connected() {
		return jsbridge.ErrTransportUnavailable
	}

	c.mu.RLock()
	ctx, writeChannel := c.ctx, c.writeChannel
	c.mu.RUnlock()

	if ctx == nil {
		return jsbridge.ErrTransportUnavailable
	}

	select {
	case writeChannel <- outgoing{text: text}:
		return nil
	case <-ctx.Done():
		return jsbridge.ErrTransportUnavailable
	default:
		return ErrWriteQueueFull
	}
}

// Flush waits until everything queued by earlier Sends has been written.
func (c *Client) Flush(ctx context.Context) error {
	if !c.Connected() {
		return jsbridge.ErrTransportUnavailable
	}

	c.mu.RLock()
	connCtx, writeChannel := c.ctx, c.writeChannel
	c.mu.RUnlock()

	if connCtx == nil {
		return jsbridge.ErrTransportUnavailable
	}

	marker := outgoing{flushed: make(chan struct{})}
	select {
	case writeChannel <- marker:
	case <-connCtx.Done():
		return jsbridge.ErrTransportUnavailable
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-marker.flushed:
		return nil
	case <-connCtx.Done():
		return jsbridge.ErrTransportUnavailable
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	c.mu.RLock()
	ctx, done := c.ctx, c.done
	c.mu.RUnlock()
	defer close(done)

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				if websocket.CloseStatus(err) != -1 {
					c.logger.Info("WebSocket closed by server", zap.Int("close_status", int(websocket.CloseStatus(err))))
				} else {
					c.logger.Error("Failed to read from WebSocket", zap.Error(err))
				}
				c.notifyDisconnectError(err)
			}
			return
		}

		if msgType != websocket.MessageText {
			continue
		}

		executor := c.currentExecutor()
		if executor == nil {
			c.logger.Warn("No executor, dropping script")
			continue
		}
		if err := executor.Execute(string(data)); err != nil {
			c.logger.Warn("Failed to execute script from host", zap.Error(err))
		}
	}
}

func (c *Client) writeLoop(conn *websocket.Conn) {
	c.mu.RLock()
	ctx, writeChannel := c.ctx, c.writeChannel
	c.mu.RUnlock()

	for {
		select {
		case <-ctx.Done():
			return
		case out := <-writeChannel:
			if out.flushed != nil {
				close(out.flushed)
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, []byte(out.text)); err != nil {
				if ctx.Err() == nil {
					c.logger.Error("Failed to write to WebSocket", zap.Error(err))
					c.notifyDisconnectError(err)
				}
				return
			}
		}
	}
}
