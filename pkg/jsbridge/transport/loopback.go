// Package transport binds the two bridge primitives to concrete carriers.
// Loopback joins a content context and a host inside one process; the
// websockets packages carry the same text over a network connection.
package transport

import (
	"sync"

	"go.uber.org/zap"

	"github.com/tsarna/jsbridge/pkg/jsbridge"
)

const DefaultLoopbackQueueSize = 1024

// Loopback is an in-process transport. As a jsbridge.Sender it delivers
// content text to the host's receive function, in order, on its own
// goroutine. As a jsbridge.Executor it forwards host scripts to the content
// context.
type Loopback struct {
	logger *zap.Logger

	mu      sync.RWMutex
	host    func(text string)
	content jsbridge.Executor
	queue   chan string
	done    chan struct{}
	wg      sync.WaitGroup
}

func NewLoopback(logger *zap.Logger) *Loopback {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loopback{logger: logger}
}

// Attach connects host and content. Attaching again replaces both ends.
func (l *Loopback) Attach(host func(text string), content jsbridge.Executor) {
	l.Detach()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.host = host
	l.content = content
	l.queue = make(chan string, DefaultLoopbackQueueSize)
	l.done = make(chan struct{})

	l.wg.Add(1)
	go l.deliver(host, l.queue, l.done)
}

// Detach disconnects both ends. Messages already queued for the host are
// still delivered.
func (l *Loopback) Detach() {
	l.mu.Lock()
	done := l.done
	l.host = nil
	l.content = nil
	l.queue = nil
	l.done = nil
	l.mu.Unlock()

	if done != nil {
		close(done)
		l.wg.Wait()
	}
}

func (l *Loopback) deliver(host func(string), queue chan string, done chan struct{}) {
	defer l.wg.Done()

	for {
		select {
		case text := <-queue:
			host(text)
		case <-done:
			for {
				select {
				case text := <-queue:
					host(text)
				default:
					return
				}
			}
		}
	}
}

func (l *Loopback) Send(text string) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.host == nil {
		return jsbridge.ErrTransportUnavailable
	}

	select {
	case l.queue <- text:
		return nil
	case <-l.done:
		return jsbridge.ErrTransportUnavailable
	}
}

func (l *Loopback) Execute(source string) error {
	l.mu.RLock()
	content := l.content
	l.mu.RUnlock()

	if content == nil {
		return jsbridge.ErrTransportUnavailable
	}
	return content.Execute(source)
}

func (l *Loopback) Connected() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.host != nil
}
