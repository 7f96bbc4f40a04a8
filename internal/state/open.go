package state

import (
	"context"
	"fmt"

	"github.com/daishi-37/yahei-fax-ocr/internal/config"
	"github.com/daishi-37/yahei-fax-ocr/internal/db"
)

// Open returns the store selected by STATE_BACKEND and a function that releases it.
func Open(ctx context.Context, cfg *config.Config) (Store, func(), error) {
	switch cfg.StateBackend {
	case config.StateBackendPostgres:
		pool, err := db.NewConnection(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres state: %w", err)
		}
		return NewPostgresStore(pool), func() { db.CloseConnection(pool) }, nil
	case config.StateBackendFile, "":
		return NewFileStore(cfg.StoragePath, WithLocation(cfg.Location())), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown state backend %q", cfg.StateBackend)
	}
}
