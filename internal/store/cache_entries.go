package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const cacheColumns = `video_id, file_path, fetched_at, size_bytes`

// PutCacheEntry inserts the catalog record for a completed download. An
// existing record for the same video is replaced, which only happens after the
// previous file was found missing and re-fetched.
func (s *Store) PutCacheEntry(ctx context.Context, entry CacheEntry) error {
	if strings.TrimSpace(entry.VideoID) == "" || strings.TrimSpace(entry.FilePath) == "" {
		return errors.New("put cache entry: video id and file path are required")
	}
	if entry.FetchedAt.IsZero() {
		return errors.New("put cache entry: fetched_at is required")
	}
	_, err := s.execWithRetry(ctx,
		`INSERT OR REPLACE INTO cache_entries (`+cacheColumns+`) VALUES (?, ?, ?, ?)`,
		entry.VideoID, entry.FilePath, toUnixNano(entry.FetchedAt), entry.SizeBytes,
	)
	if err != nil {
		return fmt.Errorf("put cache entry: %w", err)
	}
	return nil
}

// GetCacheEntry returns the catalog record for videoID, or nil when absent.
func (s *Store) GetCacheEntry(ctx context.Context, videoID string) (*CacheEntry, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+cacheColumns+` FROM cache_entries WHERE video_id = ?`, videoID)
	entry, err := scanCacheEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cache entry: %w", err)
	}
	return entry, nil
}

// DeleteCacheEntry removes the catalog record for videoID. Missing records are not an error.
func (s *Store) DeleteCacheEntry(ctx context.Context, videoID string) error {
	if _, err := s.execWithRetry(ctx, `DELETE FROM cache_entries WHERE video_id = ?`, videoID); err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

// ListCacheEntries returns every catalog record, oldest fetch first.
func (s *Store) ListCacheEntries(ctx context.Context) ([]CacheEntry, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT `+cacheColumns+` FROM cache_entries ORDER BY fetched_at ASC, video_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list cache entries: %w", err)
	}
	defer rows.Close()

	var entries []CacheEntry
	for rows.Next() {
		entry, err := scanCacheEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cache entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCacheEntry(row rowScanner) (*CacheEntry, error) {
	var (
		entry     CacheEntry
		fetchedAt int64
	)
	if err := row.Scan(&entry.VideoID, &entry.FilePath, &fetchedAt, &entry.SizeBytes); err != nil {
		return nil, err
	}
	entry.FetchedAt = fromUnixNano(fetchedAt)
	return &entry, nil
}
