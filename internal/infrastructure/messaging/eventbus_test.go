package messaging

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/shared"
	"github.com/vo1dee/PsychochauffeurBot-sub001/pkg/logger"
)

func levelUp() shared.Event {
	return shared.NewLevelUpEvent(1, -1, "alice", 2)
}

func TestInMemoryEventBus_SyncRoutesByType(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{Logger: logger.Discard()})

	var levelUps, all int
	require.NoError(t, bus.Subscribe(shared.EventLevelUp, func(shared.Event) error { levelUps++; return nil }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { all++; return nil }))

	require.NoError(t, bus.Publish(levelUp()))
	require.NoError(t, bus.Publish(shared.NewStatsUpdatedEvent(1, -1, "", 5, 1, 5)))

	assert.Equal(t, 1, levelUps)
	assert.Equal(t, 2, all)
	assert.Equal(t, EventBusMetricsSnapshot{Published: 2, Handled: 3}, bus.Metrics().Snapshot())
}

func TestInMemoryEventBus_PanicBecomesError(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{Logger: logger.Discard()})
	require.NoError(t, bus.Subscribe(shared.EventLevelUp, func(shared.Event) error { panic("boom") }))

	err := bus.Publish(levelUp())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handler panic")
	assert.EqualValues(t, 1, bus.Metrics().Snapshot().Failed)
}

func TestInMemoryEventBus_AsyncDoesNotBlockPublisher(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{
		AsyncMode:   true,
		Logger:      logger.Discard(),
		Middlewares: []Middleware{LoggingMiddleware(logger.Discard(), time.Millisecond)},
	})

	release := make(chan struct{})
	var handled atomic.Int32
	require.NoError(t, bus.Subscribe(shared.EventLevelUp, func(shared.Event) error {
		<-release
		handled.Add(1)
		return errors.New("telegram down")
	}))

	done := make(chan error, 1)
	go func() { done <- bus.Publish(levelUp()) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("publish blocked on handler")
	}

	close(release)
	require.NoError(t, bus.Close())
	assert.EqualValues(t, 1, handled.Load())
	assert.EqualValues(t, 1, bus.Metrics().Snapshot().Failed)
}

func TestInMemoryEventBus_Closed(t *testing.T) {
	bus := NewInMemoryEventBus(DefaultInMemoryEventBusConfig())
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(levelUp()), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Subscribe(shared.EventLevelUp, func(shared.Event) error { return nil }), ErrEventBusClosed)
}
