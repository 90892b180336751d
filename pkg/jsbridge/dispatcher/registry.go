package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// HandlerFunc answers one request. The returned value is marshaled as the
// response result; a returned error crosses the boundary as its message only.
// Handlers may block; each request runs on its own goroutine and ctx is
// cancelled when the dispatcher closes.
type HandlerFunc func(ctx context.Context, data json.RawMessage) (any, error)

// Registry maps request types to handlers. It is shared by every dispatcher
// built from it, so a host serving many content contexts registers once.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]HandlerFunc),
	}
}

// HandleFunc registers fn for requests of the given type. The last
// registration for a type wins.
func (r *Registry) HandleFunc(eventType string, fn HandlerFunc) {
	if eventType == "" {
		panic("dispatcher: empty handler type")
	}
	if fn == nil {
		panic("dispatcher: nil handler for " + eventType)
	}

	r.mu.Lock()
	r.handlers[eventType] = fn
	r.mu.Unlock()
}

// Remove unregisters the handler for eventType.
func (r *Registry) Remove(eventType string) {
	r.mu.Lock()
	delete(r.handlers, eventType)
	r.mu.Unlock()
}

// Lookup returns the handler for eventType.
func (r *Registry) Lookup(eventType string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.handlers[eventType]
	return fn, ok
}

// Types returns the registered request types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Handle registers a typed handler. The request payload is decoded into Req
// (a missing or null payload leaves Req at its zero value) and the returned
// Resp becomes the response result. A payload that does not decode into Req
// fails the request.
func Handle[Req, Resp any](r *Registry, eventType string, fn func(ctx context.Context, req Req) (Resp, error)) {
	r.HandleFunc(eventType, func(ctx context.Context, data json.RawMessage) (any, error) {
		var req Req
		if len(data) > 0 && string(data) != "null" {
			if err := json.Unmarshal(data, &req); err != nil {
				return nil, fmt.Errorf("invalid payload for %s: %w", eventType, err)
			}
		}
		return fn(ctx, req)
	})
}
