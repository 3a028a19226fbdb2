// Package authbus is the process-wide event source for auth-state changes.
// One top-level owner subscribes at startup; everything else learns about
// sign-ins, refreshes, and sign-outs through it instead of holding its own
// subscription to the hosted service.
package authbus

import (
	"log/slog"
	"sync"

	"github.com/ashmarin/weighttrack/internal/domain"
)

type EventHandler func(event domain.Event) error

type Bus struct {
	logger   *slog.Logger
	mu       sync.Mutex
	handlers map[string][]EventHandler
	wg       sync.WaitGroup
}

func New(logger *slog.Logger) *Bus {
	return &Bus{
		logger:   logger,
		handlers: make(map[string][]EventHandler),
	}
}

func (b *Bus) Register(eventType string, handler EventHandler) {
	b.mu.Lock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	b.mu.Unlock()
}

func (b *Bus) PublishEvents(events ...domain.Event) error {
	for _, event := range events {
		b.mu.Lock()
		handlers := b.handlers[event.Type()]
		b.mu.Unlock()

		for _, handler := range handlers {
			b.wg.Add(1)
			go func(h EventHandler, e domain.Event) {
				defer b.wg.Done()
				if err := h(e); err != nil {
					b.logger.Error("failed to handle event", "type", e.Type(), "err", err)
				}
			}(handler, event)
		}
	}
	return nil
}

// Close waits for in-flight handlers. Used on teardown.
func (b *Bus) Close() {
	b.wg.Wait()
}
