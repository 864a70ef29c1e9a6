// Package stream fans workflow events out to per-instance subscribers.
package stream

import (
	"context"
	"log/slog"
	"sync"

	"github.com/cliff-rosen/adam-bot/pkg/models"
)

const defaultBufferSize = 64

// Broker routes events to subscribers keyed by instance id. Publishing
// never blocks: a subscriber whose buffer is full loses the event and
// its drop counter goes up, so one slow client cannot stall the engine.
type Broker struct {
	logger  *slog.Logger
	bufSize int

	mu     sync.RWMutex
	closed bool
	subs   map[string]map[*Subscriber]struct{}
}

// NewBroker creates a broker with the given per-subscriber buffer size.
// A non-positive size falls back to the default.
func NewBroker(logger *slog.Logger, bufSize int) *Broker {
	if bufSize <= 0 {
		bufSize = defaultBufferSize
	}
	return &Broker{
		logger:  logger,
		bufSize: bufSize,
		subs:    make(map[string]map[*Subscriber]struct{}),
	}
}

// Subscribe registers a new subscriber for one instance's events. The
// caller must Close the subscriber when done.
func (b *Broker) Subscribe(instanceID string) *Subscriber {
	sub := &Subscriber{
		broker:     b,
		instanceID: instanceID,
		ch:         make(chan *models.WorkflowEvent, b.bufSize),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		sub.closed = true
		return sub
	}
	if b.subs[instanceID] == nil {
		b.subs[instanceID] = make(map[*Subscriber]struct{})
	}
	b.subs[instanceID][sub] = struct{}{}
	return sub
}

// Emit publishes an event to every subscriber of its instance. Events
// are published from the engine's single drive goroutine per instance,
// so subscribers observe them in order.
func (b *Broker) Emit(_ context.Context, evt *models.WorkflowEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for sub := range b.subs[evt.InstanceID] {
		select {
		case sub.ch <- evt:
		default:
			sub.dropped.Add(1)
			b.logger.Warn("subscriber buffer full, event dropped",
				"instance_id", evt.InstanceID, "event_type", evt.Type)
		}
	}
}

// Close shuts the broker down and closes every subscriber channel.
// Close is idempotent.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true

	for _, subs := range b.subs {
		for sub := range subs {
			sub.closeLocked()
		}
	}
	b.subs = nil
}

func (b *Broker) unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	subs := b.subs[sub.instanceID]
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(b.subs, sub.instanceID)
	}
	sub.closeLocked()
}
