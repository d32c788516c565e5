package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/teachme/teachme/internal/services"
)

// Store is the topic history storage shared by every client.
type Store interface {
	Topics(ctx context.Context, clientID string) ([]string, error)
	AddTopic(ctx context.Context, clientID, topic string) error
	ClearTopics(ctx context.Context, clientID string) error
	Close() error
}

// OpenStore opens the configured history store, creating its directory if needed.
func (c Config) OpenStore() (Store, error) {
	if err := os.MkdirAll(filepath.Dir(c.Store.Path), 0o755); err != nil {
		return nil, fmt.Errorf("error creating store directory: %w", err)
	}

	switch c.Store.Driver {
	case StoreSQLite:
		return services.NewSQLite(c.Store.Path)
	default:
		return services.NewBoltDB(c.Store.Path)
	}
}
