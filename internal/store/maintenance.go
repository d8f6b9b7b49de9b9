package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

// CheckHealth returns diagnostic information about the database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}
	if s.path == "" {
		return health, errors.New("database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return health, nil
		}
		return health, fmt.Errorf("stat database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	connCtx, cancel := context.WithTimeout(ensureContext(ctx), 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping database: %w", err)
	}
	health.Readable = true

	queries := []struct {
		query string
		dest  *int
	}{
		{"PRAGMA user_version", &health.SchemaVersion},
		{"SELECT COUNT(1) FROM play_events", &health.PlayEvents},
		{"SELECT COUNT(1) FROM cache_entries", &health.CacheEntries},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(connCtx, q.query).Scan(q.dest); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("health query %q: %w", q.query, err)
		}
	}
	return health, nil
}
