package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/renocrm/workflow-engine/pkg/persistence"
	"github.com/renocrm/workflow-engine/pkg/persistence/file"
	"github.com/renocrm/workflow-engine/pkg/persistence/postgresql"
)

var supportedPersistenceProviders = []string{"file", "postgres", "postgresql"}

// NewPersistence picks the storage from the URL scheme: postgres:// and postgresql:// use
// PostgreSQL, everything else is a file:// directory.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "postgres", "postgresql":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	default:
		root := strings.Replace(databaseURL, "file://", "", 1)

		err := os.MkdirAll(root, 0o750)
		if err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}

		return file.NewPersistence(root), nil
	}
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	for _, supported := range supportedPersistenceProviders {
		if provider == supported {
			return provider
		}
	}

	return "file"
}
