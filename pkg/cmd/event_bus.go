package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/renocrm/workflow-engine/pkg/channels/gochannel"
	"github.com/renocrm/workflow-engine/pkg/channels/kafka"
	"github.com/renocrm/workflow-engine/pkg/eventbus"
)

// NewEventBus creates the event bus for provider. serviceName selects the Kafka consumer group.
func NewEventBus(provider, serviceName string, logger *slog.Logger) (eventbus.EventBus, error) {
	watermillLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(watermillLogger, kafka.BrokersFromEnv(), serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(logger, pub, sub), nil
	case "gochannel", "":
		channel := gochannel.CreateChannel(watermillLogger, gochannel.DefaultBuffer)

		return eventbus.NewWatermillEventBus(logger, channel, channel), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}
