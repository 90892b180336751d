package correlator

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
)

// MessageFunc receives id-less notifications pushed by the other side.
type MessageFunc func(eventType string, data json.RawMessage)

// SetOnMessage installs the single event subscriber, replacing any previous
// one. A nil fn removes it.
func (c *Correlator) SetOnMessage(fn MessageFunc) {
	c.subscriberMu.Lock()
	c.subscriber = fn
	c.subscriberMu.Unlock()
}

// Receive delivers a notification to the current subscriber. Without a
// subscriber the notification is dropped; nothing is buffered. It reports
// whether a subscriber was called.
func (c *Correlator) Receive(eventType string, data json.RawMessage) bool {
	c.subscriberMu.RLock()
	fn := c.subscriber
	c.subscriberMu.RUnlock()

	if fn == nil {
		c.logger.Debug("Dropping notification without subscriber", zap.String("type", eventType))
		c.metrics.RecordReceive(context.Background(), false)
		return false
	}

	fn(eventType, data)
	c.metrics.RecordReceive(context.Background(), true)
	return true
}
