package stream

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cliff-rosen/adam-bot/pkg/models"
)

func testBroker(bufSize int) *Broker {
	return NewBroker(slog.New(slog.NewTextHandler(io.Discard, nil)), bufSize)
}

func TestBrokerDeliversInOrder(t *testing.T) {
	b := testBroker(8)
	defer b.Close()

	sub := b.Subscribe("inst-1")
	defer sub.Close()

	b.Emit(context.Background(), models.NewEvent(models.EventStepStart, "inst-1", "a", "A", nil))
	b.Emit(context.Background(), models.NewEvent(models.EventStepComplete, "inst-1", "a", "A", nil))
	b.Emit(context.Background(), models.NewEvent(models.EventComplete, "inst-1", "", "", nil))

	assert.Equal(t, models.EventStepStart, (<-sub.C()).Type)
	assert.Equal(t, models.EventStepComplete, (<-sub.C()).Type)
	assert.Equal(t, models.EventComplete, (<-sub.C()).Type)
}

func TestBrokerRoutesByInstance(t *testing.T) {
	b := testBroker(8)
	defer b.Close()

	subA := b.Subscribe("inst-a")
	defer subA.Close()
	subB := b.Subscribe("inst-b")
	defer subB.Close()

	b.Emit(context.Background(), models.NewEvent(models.EventComplete, "inst-a", "", "", nil))

	evt := <-subA.C()
	assert.Equal(t, "inst-a", evt.InstanceID)
	select {
	case <-subB.C():
		t.Fatal("subscriber received an event for another instance")
	default:
	}
}

func TestBrokerDropsWhenBufferFull(t *testing.T) {
	b := testBroker(1)
	defer b.Close()

	sub := b.Subscribe("inst-1")
	defer sub.Close()

	b.Emit(context.Background(), models.NewEvent(models.EventStepStart, "inst-1", "a", "A", nil))
	b.Emit(context.Background(), models.NewEvent(models.EventStepComplete, "inst-1", "a", "A", nil))

	assert.Equal(t, int64(1), sub.Dropped())
	assert.Equal(t, models.EventStepStart, (<-sub.C()).Type)
}

func TestSubscriberCloseIsIdempotent(t *testing.T) {
	b := testBroker(8)
	defer b.Close()

	sub := b.Subscribe("inst-1")
	sub.Close()
	sub.Close()

	_, ok := <-sub.C()
	assert.False(t, ok)

	// Emitting after the only subscriber left is a no-op.
	b.Emit(context.Background(), models.NewEvent(models.EventComplete, "inst-1", "", "", nil))
}

func TestBrokerCloseClosesSubscribers(t *testing.T) {
	b := testBroker(8)
	sub := b.Subscribe("inst-1")

	b.Close()
	b.Close()

	_, ok := <-sub.C()
	require.False(t, ok)

	// Subscribing after close yields a closed channel.
	late := b.Subscribe("inst-2")
	_, ok = <-late.C()
	assert.False(t, ok)
}
