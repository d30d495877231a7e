// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/autoflow/pkg/persistence"
	"github.com/dukex/autoflow/pkg/persistence/diskv"
	"github.com/dukex/autoflow/pkg/persistence/file"
	"github.com/dukex/autoflow/pkg/persistence/inmem"
	"github.com/dukex/autoflow/pkg/persistence/postgresql"
	"github.com/dukex/autoflow/pkg/persistence/redis"
	"github.com/dukex/autoflow/pkg/persistence/sqlite"
)

var supportedPersistenceProviders = []string{"memory", "file", "sqlite", "postgres", "postgresql", "redis", "rediss", "diskv"}

// NewStore opens the record store named by the scheme of databaseURL. A URL
// without a scheme is treated as a file store directory.
func NewStore(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Store, error) {
	provider := parsePersistenceProvider(databaseURL)
	logger = logger.With("provider", provider)

	logger.DebugContext(ctx, "opening store")

	switch provider {
	case "memory":
		return inmem.New(), nil
	case "sqlite":
		return opened(sqlite.NewPersistence(ctx, logger, databaseURL))
	case "postgres", "postgresql":
		return opened(postgresql.NewPersistence(ctx, logger, databaseURL))
	case "redis", "rediss":
		return opened(redis.NewPersistence(ctx, logger, databaseURL))
	case "diskv":
		return diskv.New(databaseURL), nil
	case "file":
		return opened(file.NewPersistence(databaseURL))
	default:
		return nil, fmt.Errorf("unsupported persistence provider %q (supported: %s)",
			provider, strings.Join(supportedPersistenceProviders, ", "))
	}
}

func parsePersistenceProvider(databaseURL string) string {
	if databaseURL == "" {
		return "memory"
	}

	scheme, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	return strings.ToLower(scheme)
}

// opened keeps a failed constructor from leaking a typed nil store.
func opened[S persistence.Store](store S, err error) (persistence.Store, error) {
	if err != nil {
		return nil, err
	}

	return store, nil
}
