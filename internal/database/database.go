package database

import (
	"context"
	"fmt"

	"github.com/franckalain/fooddeclare/internal/models"
)

// Keys used by the application
const (
	KeyItems   = "customsItems"
	KeyCountry = "destinationCountry"
)

// Store is durable key/value storage for the item list and preferences.
// Load returns (nil, nil) when the key has never been saved.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
}

// ScanHistory records recognition attempts
type ScanHistory interface {
	SaveScan(ctx context.Context, scan *models.ScanRecord) error
	RecentScans(ctx context.Context, limit int) ([]*models.ScanRecord, error)
}

// DB interface defines the methods our storage backends implement
type DB interface {
	Store
	ScanHistory
	Close() error
}

// NewDB opens the backend named by storeType ("sqlite", "file" or "memory")
func NewDB(storeType, path string) (DB, error) {
	switch storeType {
	case "sqlite":
		return NewSQLiteDB(path)
	case "file":
		return NewFileStore(path)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported store type: %s", storeType)
	}
}
