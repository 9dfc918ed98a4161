// Package dispatcher performs the side effects the engine requests over the event bus.
// Webhook calls are delivered over HTTP; notification, email and task events are handed
// to a Notifier. The engine never waits for any of them.
package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/renocrm/workflow-engine/pkg/eventbus"
	"github.com/renocrm/workflow-engine/pkg/events"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout   = 10 * time.Second
	DefaultRate      = 20.0
	DefaultBurst     = 5
	maxResponseBytes = 64 << 10
)

// ErrDeliveryFailed marks a webhook answered with a non-2xx status.
var ErrDeliveryFailed = errors.New("webhook delivery failed")

type Config struct {
	Timeout time.Duration
	// Rate is the number of outbound webhook requests allowed per second across all hosts.
	Rate  float64
	Burst int
	// FailureThreshold consecutive failures open the breaker of a host.
	FailureThreshold uint32
	// OpenTimeout is how long an open breaker rejects calls before probing again.
	OpenTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}

	if c.Rate <= 0 {
		c.Rate = DefaultRate
	}

	if c.Burst <= 0 {
		c.Burst = DefaultBurst
	}

	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}

	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 30 * time.Second
	}

	return c
}

// Notifier forwards user-facing messages to the CRM's notification channels.
type Notifier interface {
	Notify(ctx context.Context, event any) error
}

// LogNotifier writes every message to the log. It is the notifier used until a real
// notification service is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("module", "log_notifier")}
}

func (n *LogNotifier) Notify(ctx context.Context, event any) error {
	switch e := event.(type) {
	case *events.NotificationSend:
		n.logger.InfoContext(ctx, "Notification",
			"instance_id", e.InstanceID,
			"recipients", e.Recipients,
			"title", e.Title)
	case *events.EmailSend:
		n.logger.InfoContext(ctx, "Email",
			"instance_id", e.InstanceID,
			"to", e.To,
			"subject", e.Subject,
			"template", e.Template)
	case *events.TaskAssigned:
		n.logger.InfoContext(ctx, "Task assigned",
			"instance_id", e.InstanceID,
			"assignee_id", e.AssigneeID,
			"title", e.Title)
	default:
		return fmt.Errorf("unsupported notification %T", event)
	}

	return nil
}

type Dispatcher struct {
	config   Config
	client   *http.Client
	limiter  *rate.Limiter
	notifier Notifier
	logger   *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func New(logger *slog.Logger, notifier Notifier, config Config) *Dispatcher {
	config = config.withDefaults()

	return &Dispatcher{
		config:   config,
		client:   &http.Client{Timeout: config.Timeout},
		limiter:  rate.NewLimiter(rate.Limit(config.Rate), config.Burst),
		notifier: notifier,
		logger:   logger.With("module", "dispatcher"),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Register subscribes the dispatcher's handlers on the bus. Call it before Subscribe.
func (d *Dispatcher) Register(bus eventbus.Subscriber) error {
	handlers := map[events.EventType]eventbus.EventHandler{
		events.WebhookCallEvent:      d.handleWebhook,
		events.NotificationSendEvent: d.handleNotification,
		events.EmailSendEvent:        d.handleNotification,
		events.TaskAssignedEvent:     d.handleNotification,
	}

	for eventType, handler := range handlers {
		err := bus.Handle(eventType, handler)
		if err != nil {
			return fmt.Errorf("failed to register %s handler: %w", eventType, err)
		}
	}

	return nil
}

// handleWebhook delivers the call once. Failures are logged and acknowledged; the instance
// has already moved on.
func (d *Dispatcher) handleWebhook(ctx context.Context, event any) error {
	call, ok := event.(*events.WebhookCall)
	if !ok {
		return fmt.Errorf("unexpected webhook event %T", event)
	}

	logger := d.logger.With("instance_id", call.InstanceID, "step_id", call.StepID, "url", call.URL)

	status, err := d.Deliver(ctx, call)
	if err != nil {
		logger.ErrorContext(ctx, "Webhook delivery failed", "status", status, "error", err)

		return nil
	}

	logger.InfoContext(ctx, "Webhook delivered", "status", status)

	return nil
}

func (d *Dispatcher) handleNotification(ctx context.Context, event any) error {
	err := d.notifier.Notify(ctx, event)
	if err != nil {
		d.logger.ErrorContext(ctx, "Notification failed", "error", err)
	}

	return nil
}

// Deliver performs the HTTP request of call through the breaker of its host and returns
// the response status.
func (d *Dispatcher) Deliver(ctx context.Context, call *events.WebhookCall) (int, error) {
	target, err := url.Parse(call.URL)
	if err != nil || target.Host == "" {
		return 0, fmt.Errorf("invalid webhook url %q", call.URL)
	}

	err = d.limiter.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("rate limiter: %w", err)
	}

	result, err := d.breaker(target.Host).Execute(func() (any, error) {
		return d.send(ctx, call)
	})

	status, _ := result.(int)

	return status, err
}

func (d *Dispatcher) send(ctx context.Context, call *events.WebhookCall) (int, error) {
	var body io.Reader

	if call.Body != nil {
		payload, err := json.Marshal(call.Body)
		if err != nil {
			return 0, fmt.Errorf("failed to encode webhook body: %w", err)
		}

		body = bytes.NewReader(payload)
	}

	method := call.Method
	if method == "" {
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(ctx, method, call.URL, body)
	if err != nil {
		return 0, fmt.Errorf("failed to create webhook request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for key, value := range call.Headers {
		req.Header.Set(key, value)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("webhook request failed: %w", err)
	}

	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("%w: status %d", ErrDeliveryFailed, resp.StatusCode)
	}

	return resp.StatusCode, nil
}

func (d *Dispatcher) breaker(host string) *gobreaker.CircuitBreaker {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cb, ok := d.breakers[host]; ok {
		return cb
	}

	threshold := d.config.FailureThreshold

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        host,
		MaxRequests: 1,
		Timeout:     d.config.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			d.logger.Warn("Webhook circuit breaker changed state", "host", name, "from", from.String(), "to", to.String())
		},
	})

	d.breakers[host] = cb

	return cb
}
