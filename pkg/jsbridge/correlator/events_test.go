package correlator

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReceiveWithoutSubscriberDrops(t *testing.T) {
	c := newTestCorrelator(t, nil, time.Second)
	assert.False(t, c.Receive("news", json.RawMessage(`1`)))
}

func TestReceiveOverwritableSlot(t *testing.T) {
	c := newTestCorrelator(t, nil, time.Second)

	var first, second []string
	c.SetOnMessage(func(eventType string, data json.RawMessage) {
		first = append(first, eventType)
	})
	assert.True(t, c.Receive("one", nil))

	c.SetOnMessage(func(eventType string, data json.RawMessage) {
		second = append(second, eventType+":"+string(data))
	})
	assert.True(t, c.Receive("two", json.RawMessage(`{"a":1}`)))

	assert.Equal(t, []string{"one"}, first)
	assert.Equal(t, []string{`two:{"a":1}`}, second)

	c.SetOnMessage(nil)
	assert.False(t, c.Receive("three", nil))
}

func TestReceiveDoesNotBuffer(t *testing.T) {
	c := newTestCorrelator(t, nil, time.Second)

	c.Receive("early", nil)

	var got []string
	c.SetOnMessage(func(eventType string, data json.RawMessage) {
		got = append(got, eventType)
	})
	c.Receive("late", nil)

	assert.Equal(t, []string{"late"}, got)
}
