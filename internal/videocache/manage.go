package videocache

import (
	"context"
	"errors"
	"fmt"
	"os"

	"vidkiosk/internal/logging"
	"vidkiosk/internal/services"
	"vidkiosk/internal/store"
)

// Stats describes current cache usage.
type Stats struct {
	Entries      int    `json:"entries"`
	TotalBytes   int64  `json:"total_bytes"`
	MaxBytes     int64  `json:"max_bytes"`
	FreeBytes    uint64 `json:"free_bytes"`
	TotalFSBytes uint64 `json:"total_fs_bytes"`
}

// PruneResult lists what a prune removed.
type PruneResult struct {
	Removed    []store.CacheEntry `json:"removed"`
	FreedBytes int64              `json:"freed_bytes"`
}

// List returns the catalog, oldest fetch first.
func (r *Resolver) List(ctx context.Context) ([]store.CacheEntry, error) {
	return r.index.ListCacheEntries(ctx)
}

// Stats returns current cache usage and filesystem free-space info.
func (r *Resolver) Stats(ctx context.Context) (Stats, error) {
	entries, err := r.index.ListCacheEntries(ctx)
	if err != nil {
		return Stats{}, err
	}
	var total int64
	for _, entry := range entries {
		total += entry.SizeBytes
	}
	totalFS, freeFS, err := r.statfs(r.root)
	if err != nil {
		return Stats{}, fmt.Errorf("videocache: statfs: %w", err)
	}
	return Stats{
		Entries:      len(entries),
		TotalBytes:   total,
		MaxBytes:     r.maxBytes,
		FreeBytes:    freeFS,
		TotalFSBytes: totalFS,
	}, nil
}

// Remove deletes a cached video and its catalog record. A pinned video is
// refused.
func (r *Resolver) Remove(ctx context.Context, videoID string) error {
	if r.pinned(videoID) {
		return services.Wrap(services.ErrValidation, "cache", "remove", fmt.Sprintf("video %s is in use", videoID), nil)
	}
	entry, err := r.index.GetCacheEntry(ctx, videoID)
	if err != nil {
		return err
	}
	if entry == nil {
		return services.Wrap(services.ErrNotFound, "cache", "remove", fmt.Sprintf("no cached video %s", videoID), nil)
	}
	if err := r.removeEntry(ctx, *entry); err != nil {
		return err
	}
	r.logger.InfoContext(ctx, "removed cached video",
		logging.String(logging.FieldVideoID, videoID),
		logging.String("size", logging.FormatBytes(entry.SizeBytes)),
	)
	return nil
}

// Prune removes the oldest entries until the cache fits its size budget.
// keepID and pinned videos are never removed. A zero budget disables pruning.
func (r *Resolver) Prune(ctx context.Context, keepID string) (PruneResult, error) {
	var result PruneResult
	if r.maxBytes <= 0 {
		return result, nil
	}
	entries, err := r.index.ListCacheEntries(ctx)
	if err != nil {
		return result, err
	}
	var total int64
	for _, entry := range entries {
		total += entry.SizeBytes
	}
	for _, entry := range entries {
		if total <= r.maxBytes {
			break
		}
		if entry.VideoID == keepID || r.pinned(entry.VideoID) {
			continue
		}
		if err := r.removeEntry(ctx, entry); err != nil {
			return result, err
		}
		r.logger.InfoContext(ctx, "pruned cached video",
			logging.String(logging.FieldVideoID, entry.VideoID),
			logging.Int64("entry_size_bytes", entry.SizeBytes),
		)
		total -= entry.SizeBytes
		result.FreedBytes += entry.SizeBytes
		result.Removed = append(result.Removed, entry)
	}
	if total > r.maxBytes {
		return result, fmt.Errorf("videocache: cache over budget; remaining entries are in use")
	}
	return result, nil
}

func (r *Resolver) removeEntry(ctx context.Context, entry store.CacheEntry) error {
	if err := os.Remove(entry.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("videocache: remove %q: %w", entry.FilePath, err)
	}
	return r.index.DeleteCacheEntry(ctx, entry.VideoID)
}
