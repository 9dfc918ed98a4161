package eventbus_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/renocrm/workflow-engine/pkg/channels/gochannel"
	"github.com/renocrm/workflow-engine/pkg/eventbus"
	"github.com/renocrm/workflow-engine/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBus(t *testing.T) *eventbus.WatermillEventBus {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	pubSub := gochannel.CreateChannel(watermill.NewSlogLogger(logger), 10)
	bus := eventbus.NewWatermillEventBus(logger, pubSub, pubSub)

	t.Cleanup(func() {
		_ = bus.Close()
	})

	return bus
}

func TestWatermillEventBus_DeliversDecodedEvents(t *testing.T) {
	bus := newBus(t)
	received := make(chan *events.WebhookCall, 1)

	require.NoError(t, bus.Handle(events.WebhookCallEvent, func(_ context.Context, event any) error {
		call, _ := event.(*events.WebhookCall)
		received <- call

		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	err := bus.Publish(ctx, "inst-1", events.WebhookCall{
		BaseEvent:  events.NewBaseEvent(events.WebhookCallEvent, "acc-1", "wf-1"),
		InstanceID: "inst-1",
		URL:        "https://example.test/hook",
		Method:     "POST",
	})
	require.NoError(t, err)

	select {
	case call := <-received:
		assert.Equal(t, "inst-1", call.InstanceID)
		assert.Equal(t, "https://example.test/hook", call.URL)
		assert.Equal(t, "acc-1", call.AccountID)
		assert.Equal(t, events.WebhookCallEvent, call.Type)
	case <-time.After(5 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestWatermillEventBus_IgnoresUnhandledTypes(t *testing.T) {
	bus := newBus(t)

	var calls atomic.Int32

	done := make(chan struct{})

	require.NoError(t, bus.Handle(events.InstanceCompletedEvent, func(context.Context, any) error {
		calls.Add(1)
		close(done)

		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	require.NoError(t, bus.Publish(ctx, "k", events.InstanceStarted{BaseEvent: events.NewBaseEvent(events.InstanceStartedEvent, "a", "w")}))
	require.NoError(t, bus.Publish(ctx, "k", events.InstanceCompleted{BaseEvent: events.NewBaseEvent(events.InstanceCompletedEvent, "a", "w")}))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("completed event was not delivered")
	}

	assert.Equal(t, int32(1), calls.Load())
}

func TestWatermillEventBus_HandleRejectsUnknownType(t *testing.T) {
	bus := newBus(t)

	err := bus.Handle(events.EventType("workflow.unknown"), func(context.Context, any) error {
		return errors.New("never called")
	})
	require.Error(t, err)
}
