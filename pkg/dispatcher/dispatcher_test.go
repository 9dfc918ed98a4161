package dispatcher

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/renocrm/workflow-engine/pkg/events"
	"github.com/renocrm/workflow-engine/pkg/mocks"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDispatcher(config Config) *Dispatcher {
	logger := discardLogger()

	return New(logger, NewLogNotifier(logger), config)
}

func TestDeliver_SendsJSONBodyAndHeaders(t *testing.T) {
	var (
		gotMethod string
		gotHeader string
		gotType   string
		gotBody   map[string]any
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotHeader = r.Header.Get("X-Signature")
		gotType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)

		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	d := newTestDispatcher(Config{})

	status, err := d.Deliver(context.Background(), &events.WebhookCall{
		InstanceID: "inst-1",
		URL:        server.URL + "/hooks/crm",
		Method:     http.MethodPut,
		Headers:    map[string]string{"X-Signature": "abc"},
		Body:       map[string]any{"instanceId": "inst-1"},
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "abc", gotHeader)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, "inst-1", gotBody["instanceId"])
}

func TestDeliver_NonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	d := newTestDispatcher(Config{})

	status, err := d.Deliver(context.Background(), &events.WebhookCall{URL: server.URL})
	require.ErrorIs(t, err, ErrDeliveryFailed)
	assert.Equal(t, http.StatusBadGateway, status)
}

func TestDeliver_InvalidURL(t *testing.T) {
	d := newTestDispatcher(Config{})

	_, err := d.Deliver(context.Background(), &events.WebhookCall{URL: "not a url"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid webhook url")
}

func TestDeliver_BreakerOpensPerHost(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	d := newTestDispatcher(Config{FailureThreshold: 3, OpenTimeout: time.Minute})
	call := &events.WebhookCall{URL: server.URL}

	for range 3 {
		_, err := d.Deliver(context.Background(), call)
		require.ErrorIs(t, err, ErrDeliveryFailed)
	}

	_, err := d.Deliver(context.Background(), call)
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDeliver_RespectsContextWhileRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := newTestDispatcher(Config{Rate: 0.001, Burst: 1})
	call := &events.WebhookCall{URL: server.URL}

	_, err := d.Deliver(context.Background(), call)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = d.Deliver(ctx, call)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter")
}

func TestRegister_SubscribesSideEffectEvents(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Handle", mock.Anything, mock.Anything).Return(nil)

	d := newTestDispatcher(Config{})
	require.NoError(t, d.Register(bus))

	for _, eventType := range []events.EventType{
		events.WebhookCallEvent,
		events.NotificationSendEvent,
		events.EmailSendEvent,
		events.TaskAssignedEvent,
	} {
		bus.AssertCalled(t, "Handle", eventType, mock.Anything)
	}

	bus.AssertNumberOfCalls(t, "Handle", 4)
}

func TestHandleWebhook_AcknowledgesFailures(t *testing.T) {
	d := newTestDispatcher(Config{})

	err := d.handleWebhook(context.Background(), &events.WebhookCall{URL: "http://127.0.0.1:1/unreachable"})
	require.NoError(t, err)

	err = d.handleWebhook(context.Background(), &events.EmailSend{})
	require.Error(t, err)
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier(discardLogger())

	require.NoError(t, n.Notify(context.Background(), &events.NotificationSend{Recipients: []string{"user-1"}}))
	require.NoError(t, n.Notify(context.Background(), &events.EmailSend{To: []string{"a@b.c"}}))
	require.NoError(t, n.Notify(context.Background(), &events.TaskAssigned{AssigneeID: "user-1"}))
	require.Error(t, n.Notify(context.Background(), &events.WebhookCall{}))
}
