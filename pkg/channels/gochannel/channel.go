// Package gochannel provides the in-memory Watermill pub/sub used when the API and the
// dispatcher run in one process, and in tests.
package gochannel

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// DefaultBuffer is the output buffer of each subscription.
const DefaultBuffer = 1000

// CreateChannel returns one GoChannel acting as both publisher and subscriber.
// Messages published before a subscriber exists are dropped.
func CreateChannel(logger watermill.LoggerAdapter, buffer int64) *gochannel.GoChannel {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	return gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            buffer,
			Persistent:                     false,
			BlockPublishUntilSubscriberAck: false,
		},
		logger,
	)
}
