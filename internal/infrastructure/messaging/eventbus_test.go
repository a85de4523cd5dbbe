package messaging

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medprep-hub/assessment-engine/internal/domain/shared"
)

type recordingHandler struct {
	mu     sync.Mutex
	name   string
	events []shared.Event
	err    error
	done   chan struct{}
}

func newRecordingHandler(name string) *recordingHandler {
	return &recordingHandler{name: name, done: make(chan struct{}, 16)}
}

func (h *recordingHandler) Handle(event shared.Event) error {
	h.mu.Lock()
	h.events = append(h.events, event)
	h.mu.Unlock()
	h.done <- struct{}{}
	return h.err
}

func (h *recordingHandler) Name() string { return h.name }

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

func syncBus() *InMemoryEventBus {
	return NewInMemoryEventBus(InMemoryEventBusConfig{
		AsyncMode:     false,
		EnableMetrics: true,
	})
}

func TestInMemoryEventBus_DeliversToSubscribedType(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	handler := newRecordingHandler("unlock-watcher")
	require.NoError(t, bus.Subscribe(shared.EventBankUnlocked, handler))

	event := shared.NewBankUnlockedEvent("learner-1", 3)
	require.NoError(t, bus.Publish(event))

	require.Equal(t, 1, handler.count())
	assert.Equal(t, shared.EventBankUnlocked, handler.events[0].EventType())
	assert.Equal(t, "learner-1", handler.events[0].AggregateID())
}

func TestInMemoryEventBus_IgnoresOtherTypes(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	handler := newRecordingHandler("unlock-watcher")
	require.NoError(t, bus.Subscribe(shared.EventBankUnlocked, handler))

	require.NoError(t, bus.Publish(shared.NewSessionStartedEvent("learner-1", "sess-1", "exam")))

	assert.Equal(t, 0, handler.count())
}

func TestInMemoryEventBus_SubscribeAllSeesEverything(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	all := newRecordingHandler("audit")
	require.NoError(t, bus.SubscribeAll(all))

	require.NoError(t, bus.Publish(shared.NewSessionStartedEvent("learner-1", "sess-1", "practice")))
	require.NoError(t, bus.Publish(shared.NewBankUnlockedEvent("learner-1", 3)))

	assert.Equal(t, 2, all.count())
}

func TestInMemoryEventBus_HandlerErrorDoesNotPropagate(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	failing := newRecordingHandler("broken")
	failing.err = errors.New("boom")
	require.NoError(t, bus.Subscribe(shared.EventBankUnlocked, failing))

	assert.NoError(t, bus.Publish(shared.NewBankUnlockedEvent("learner-1", 3)))
	assert.Equal(t, 1, failing.count())
}

func TestInMemoryEventBus_PanickingHandlerIsContained(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	panicking := &panicHandler{}
	require.NoError(t, bus.Subscribe(shared.EventBankUnlocked, panicking))

	after := newRecordingHandler("after")
	require.NoError(t, bus.Subscribe(shared.EventBankUnlocked, after))

	assert.NoError(t, bus.Publish(shared.NewBankUnlockedEvent("learner-1", 3)))
	assert.Equal(t, 1, after.count())
}

type panicHandler struct{}

func (h *panicHandler) Handle(event shared.Event) error { panic("unexpected") }
func (h *panicHandler) Name() string                    { return "panicking" }

func TestInMemoryEventBus_AsyncDelivery(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{
		AsyncMode:      true,
		WorkerPoolSize: 4,
	})
	defer bus.Close()

	handler := newRecordingHandler("async")
	require.NoError(t, bus.Subscribe(shared.EventSessionFinished, handler))

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(shared.NewSessionFinishedEvent("learner-1", "sess-1", "practice", 10, 8, 0.8, false)))
	}

	for i := 0; i < 5; i++ {
		select {
		case <-handler.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for delivery %d", i)
		}
	}
	assert.Equal(t, 5, handler.count())
}

func TestInMemoryEventBus_ClosedBusRejectsPublish(t *testing.T) {
	bus := syncBus()
	require.NoError(t, bus.Close())

	err := bus.Publish(shared.NewBankUnlockedEvent("learner-1", 3))
	assert.ErrorIs(t, err, ErrEventBusClosed)

	err = bus.Subscribe(shared.EventBankUnlocked, newRecordingHandler("late"))
	assert.ErrorIs(t, err, ErrEventBusClosed)
}

func TestInMemoryEventBus_NilChecks(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	assert.ErrorIs(t, bus.Subscribe(shared.EventBankUnlocked, nil), ErrNilHandler)
	assert.ErrorIs(t, bus.Publish(nil), ErrNilEvent)
}

func TestEventBusMetrics_TracksExecutions(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	ok := newRecordingHandler("ok")
	failing := newRecordingHandler("failing")
	failing.err = errors.New("boom")

	require.NoError(t, bus.Subscribe(shared.EventBankUnlocked, ok))
	require.NoError(t, bus.Subscribe(shared.EventBankUnlocked, failing))

	require.NoError(t, bus.Publish(shared.NewBankUnlockedEvent("learner-1", 3)))

	snap := bus.Metrics().Snapshot()
	assert.Equal(t, int64(1), snap.TotalPublished)
	assert.Equal(t, int64(2), snap.TotalHandlerExecs)
	assert.InDelta(t, 0.5, snap.HandlerSuccessRate, 0.001)
}
