// Package host connects the runtime that receives redirect URIs from the OS
// to the handlers that consume them.
package host

import (
	"log/slog"
	"sync"
)

// RedirectHandler consumes a redirect URI delivered to the application. It
// reports whether the URI belonged to it.
type RedirectHandler interface {
	HandleRedirect(uri string) bool
}

type RedirectHandlerFunc func(uri string) bool

func (f RedirectHandlerFunc) HandleRedirect(uri string) bool {
	return f(uri)
}

// Dispatcher offers each URI to its handlers in registration order and stops
// at the first one that consumes it.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers []RedirectHandler
	logger   *slog.Logger
}

func NewDispatcher(logger *slog.Logger, handlers ...RedirectHandler) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{handlers: handlers, logger: logger}
}

func (d *Dispatcher) Register(h RedirectHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, h)
}

func (d *Dispatcher) HandleRedirect(uri string) bool {
	d.mu.RLock()
	handlers := d.handlers
	d.mu.RUnlock()

	for _, h := range handlers {
		if h.HandleRedirect(uri) {
			return true
		}
	}

	d.logger.Debug("redirect not handled", "handlers", len(handlers))
	return false
}
