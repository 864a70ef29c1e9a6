package stream

import (
	"sync/atomic"

	"github.com/cliff-rosen/adam-bot/pkg/models"
)

// Subscriber is one consumer of an instance's event stream.
type Subscriber struct {
	broker     *Broker
	instanceID string
	ch         chan *models.WorkflowEvent
	closed     bool
	dropped    atomic.Int64
}

// C returns the event channel. It is closed when the subscriber or the
// broker closes.
func (s *Subscriber) C() <-chan *models.WorkflowEvent {
	return s.ch
}

// Dropped returns how many events were discarded because the buffer was
// full.
func (s *Subscriber) Dropped() int64 {
	return s.dropped.Load()
}

// Close detaches the subscriber from the broker. Safe to call more than
// once.
func (s *Subscriber) Close() {
	s.broker.unsubscribe(s)
}

// closeLocked closes the channel once. Callers hold the broker lock.
func (s *Subscriber) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
