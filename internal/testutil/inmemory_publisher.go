package testutil

import (
	"context"
	"sync"

	"github.com/flexprice/pullpay/internal/publisher"
)

// InMemoryEventPublisher records notifications instead of delivering them
type InMemoryEventPublisher struct {
	mu     sync.RWMutex
	events []*publisher.Notification
}

var _ publisher.EventPublisher = (*InMemoryEventPublisher)(nil)

func NewInMemoryEventPublisher() *InMemoryEventPublisher {
	return &InMemoryEventPublisher{}
}

func (p *InMemoryEventPublisher) Publish(_ context.Context, n *publisher.Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, n)
}

// GetEvents returns all published notifications in order
func (p *InMemoryEventPublisher) GetEvents() []*publisher.Notification {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]*publisher.Notification(nil), p.events...)
}

// EventNames returns the names of the published notifications in order
func (p *InMemoryEventPublisher) EventNames() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.events))
	for _, e := range p.events {
		names = append(names, e.EventName)
	}
	return names
}

// Clear removes all published notifications
func (p *InMemoryEventPublisher) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}
