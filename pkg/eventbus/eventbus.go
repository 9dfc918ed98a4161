// Package eventbus carries workflow events between the engine and the side-effect
// consumers over Watermill publishers and subscribers.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/renocrm/workflow-engine/pkg/events"
)

type Event interface {
	GetType() events.EventType
}

// Publisher is the only capability the engine needs from the bus.
type Publisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

type Subscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// EventHandler receives a pointer to the decoded event struct, e.g. *events.WebhookCall.
type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	Publisher
	Subscriber
	Close() error
	GenerateID() string
}

// decoders maps each event type to a constructor of its payload struct.
var decoders = map[events.EventType]func() any{
	events.DefinitionCreatedEvent: func() any { return &events.DefinitionCreated{} },
	events.DefinitionUpdatedEvent: func() any { return &events.DefinitionUpdated{} },
	events.InstanceStartedEvent:   func() any { return &events.InstanceStarted{} },
	events.InstanceCompletedEvent: func() any { return &events.InstanceCompleted{} },
	events.InstanceFailedEvent:    func() any { return &events.InstanceFailed{} },
	events.ApprovalRequestedEvent: func() any { return &events.ApprovalRequested{} },
	events.ApprovalApprovedEvent:  func() any { return &events.ApprovalApproved{} },
	events.ApprovalRejectedEvent:  func() any { return &events.ApprovalRejected{} },
	events.TaskAssignedEvent:      func() any { return &events.TaskAssigned{} },
	events.NotificationSendEvent:  func() any { return &events.NotificationSend{} },
	events.EmailSendEvent:         func() any { return &events.EmailSend{} },
	events.WebhookCallEvent:       func() any { return &events.WebhookCall{} },
	events.WaitScheduledEvent:     func() any { return &events.WaitScheduled{} },
}

// WatermillEventBus publishes JSON encoded events to a single topic and dispatches received
// messages to the handlers registered for their type.
type WatermillEventBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     *slog.Logger

	mu       sync.RWMutex
	handlers map[events.EventType][]EventHandler
}

func NewWatermillEventBus(logger *slog.Logger, pub message.Publisher, sub message.Subscriber) *WatermillEventBus {
	return &WatermillEventBus{
		publisher:  pub,
		subscriber: sub,
		logger:     logger.With("module", "eventbus"),
		handlers:   make(map[events.EventType][]EventHandler),
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func (eb *WatermillEventBus) Publish(ctx context.Context, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event.GetType(), err)
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	err = eb.publisher.Publish(events.Topic, msg)
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.GetType(), err)
	}

	return nil
}

func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	messages, err := eb.subscriber.Subscribe(ctx, events.Topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", events.Topic, err)
	}

	go func() {
		for msg := range messages {
			eb.dispatch(ctx, msg)
		}
	}()

	return nil
}

func (eb *WatermillEventBus) dispatch(ctx context.Context, msg *message.Message) {
	eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

	eb.mu.RLock()
	handlers := eb.handlers[eventType]
	eb.mu.RUnlock()

	if len(handlers) == 0 {
		msg.Ack()

		return
	}

	newEvent, known := decoders[eventType]
	if !known {
		eb.logger.WarnContext(ctx, "Dropping message with unknown event type", "event_type", eventType, "message_id", msg.UUID)
		msg.Ack()

		return
	}

	event := newEvent()

	err := json.Unmarshal(msg.Payload, event)
	if err != nil {
		eb.logger.ErrorContext(ctx, "Failed to decode event", "event_type", eventType, "error", err)
		msg.Ack()

		return
	}

	for _, handler := range handlers {
		err = handler(ctx, event)
		if err != nil {
			eb.logger.ErrorContext(ctx, "Event handler failed", "event_type", eventType, "error", err)
			msg.Nack()

			return
		}
	}

	msg.Ack()
}

// Handle registers an additional handler for the event type. Handlers must be registered
// before Subscribe.
func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	if _, known := decoders[eventType]; !known {
		return fmt.Errorf("unknown event type %q", eventType)
	}

	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.handlers[eventType] = append(eb.handlers[eventType], handler)

	return nil
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	return eb.subscriber.Close()
}
