package cmd

import (
	"context"
	"log/slog"

	"github.com/renocrm/workflow-engine/pkg/locking"
)

// NewLocker returns a Redis lock shared by every API replica when redisURL is set, and an
// in-process lock otherwise. The returned close function releases the Redis client.
func NewLocker(ctx context.Context, logger *slog.Logger, redisURL string) (locking.Locker, func() error, error) {
	if redisURL == "" {
		return locking.NewKeyedMutex(), func() error { return nil }, nil
	}

	client, err := locking.Connect(ctx, redisURL)
	if err != nil {
		return nil, nil, err
	}

	return locking.NewRedisLocker(client, logger), client.Close, nil
}
