// Package envelope implements the {id?, type, data} message shape exchanged
// between the content context and the host, and the injection-safe scripts
// the host uses to push responses and events into the content context.
package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tsarna/jsbridge/pkg/jsbridge"
)

// Envelope is the only entity on the wire. An ID of zero means the envelope
// is an event and expects no response; ids allocated by a correlator start
// at 1.
type Envelope struct {
	ID   uint64          `json:"id,omitempty"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// HasID reports whether the envelope expects a response.
func (e Envelope) HasID() bool {
	return e.ID != 0
}

// New builds an envelope, marshaling data into its payload. A nil data
// produces an envelope without a payload.
func New(id uint64, eventType string, data any) (Envelope, error) {
	env := Envelope{ID: id, Type: eventType}
	if eventType == "" {
		return env, errors.New("envelope type must not be empty")
	}

	raw, err := Marshal(data)
	if err != nil {
		return env, err
	}
	env.Data = raw

	return env, nil
}

// Marshal converts a payload to its JSON form. Values that are already
// json.RawMessage are validated and passed through. A null payload is the
// same as no payload and comes back nil.
func Marshal(data any) (json.RawMessage, error) {
	switch v := data.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if len(v) == 0 || isNull(v) {
			return nil, nil
		}
		if !json.Valid(v) {
			return nil, errors.New("payload is not valid JSON")
		}
		return v, nil
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	if isNull(raw) {
		return nil, nil
	}
	return raw, nil
}

// Encode produces the canonical text form of an envelope. A null payload is
// encoded as no payload, which is how Decode reads it back.
func Encode(env Envelope) (string, error) {
	if env.Type == "" {
		return "", errors.New("envelope type must not be empty")
	}
	if isNull(env.Data) {
		env.Data = nil
	}

	b, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("failed to encode envelope: %w", err)
	}

	return string(b), nil
}

// Decode parses text into an envelope. The whole message is rejected with a
// *jsbridge.DecodeError unless it is a JSON object with a non-empty string
// type and, if present, a non-negative integer id.
func Decode(text string) (Envelope, error) {
	var env Envelope
	var fields map[string]json.RawMessage

	if err := json.Unmarshal([]byte(text), &fields); err != nil {
		return env, &jsbridge.DecodeError{Reason: "not a JSON object", Err: err}
	}
	if fields == nil {
		return env, &jsbridge.DecodeError{Reason: "not a JSON object"}
	}

	rawType, ok := fields["type"]
	if !ok {
		return env, &jsbridge.DecodeError{Reason: "missing type"}
	}
	if err := json.Unmarshal(rawType, &env.Type); err != nil {
		return env, &jsbridge.DecodeError{Reason: "type is not a string", Err: err}
	}
	if env.Type == "" {
		return env, &jsbridge.DecodeError{Reason: "empty type"}
	}

	if rawID, ok := fields["id"]; ok && !isNull(rawID) {
		if err := json.Unmarshal(rawID, &env.ID); err != nil {
			return env, &jsbridge.DecodeError{Reason: "id is not a non-negative integer", Err: err}
		}
	}

	if rawData, ok := fields["data"]; ok && !isNull(rawData) {
		env.Data = rawData
	}

	return env, nil
}

// Unmarshal decodes the envelope payload into v. A missing payload leaves v
// untouched.
func (e Envelope) Unmarshal(v any) error {
	if len(e.Data) == 0 {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}

// Value decodes the payload into a generic Go value (maps, slices, float64,
// string, bool or nil).
func (e Envelope) Value() (any, error) {
	var v any
	if err := e.Unmarshal(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
