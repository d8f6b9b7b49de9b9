package videocache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"golang.org/x/sys/unix"

	"vidkiosk/internal/config"
	"vidkiosk/internal/logging"
	"vidkiosk/internal/services"
	"vidkiosk/internal/services/ytdlp"
	"vidkiosk/internal/store"
	"vidkiosk/internal/videourl"
)

const partialDirName = ".partial"

// Downloader fetches one video into destDir and returns the file it wrote.
type Downloader interface {
	Download(ctx context.Context, url, videoID, destDir string, progress func(ytdlp.Progress)) (string, error)
}

// Index is the catalog of completed downloads.
type Index interface {
	GetCacheEntry(ctx context.Context, videoID string) (*store.CacheEntry, error)
	PutCacheEntry(ctx context.Context, entry store.CacheEntry) error
	DeleteCacheEntry(ctx context.Context, videoID string) error
	ListCacheEntries(ctx context.Context) ([]store.CacheEntry, error)
}

// statfsFunc allows tests to stub filesystem stats.
type statfsFunc func(path string) (total uint64, free uint64, err error)

// Resolver owns the cache directory and its catalog.
type Resolver struct {
	root       string
	index      Index
	downloader Downloader
	platform   videourl.Handler
	timeout    time.Duration
	minFree    int64
	maxBytes   int64
	statfs     statfsFunc
	now        func() time.Time
	progress   func(videoID string, p ytdlp.Progress)
	logger     *slog.Logger

	flights singleflight.Group

	// life bounds every download; Close cancels it.
	life     context.Context
	shutdown context.CancelFunc
	inflight sync.WaitGroup

	mu     sync.Mutex
	closed bool
	pins   map[string]int
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the resolver logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithClock overrides the fetched_at time source.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// WithPlatform sets the platform whose ids and canonical URLs are used.
func WithPlatform(h videourl.Handler) Option {
	return func(r *Resolver) {
		if h != nil {
			r.platform = h
		}
	}
}

// WithProgress receives download progress for every flight.
func WithProgress(fn func(videoID string, p ytdlp.Progress)) Option {
	return func(r *Resolver) {
		r.progress = fn
	}
}

// New constructs a Resolver for the configured cache directory.
func New(cfg *config.Config, index Index, downloader Downloader, opts ...Option) (*Resolver, error) {
	if cfg == nil {
		return nil, errors.New("videocache: config required")
	}
	if index == nil || downloader == nil {
		return nil, errors.New("videocache: index and downloader required")
	}
	root := strings.TrimSpace(cfg.Paths.CacheDir)
	if root == "" {
		return nil, errors.New("videocache: cache directory required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("videocache: create cache dir: %w", err)
	}
	r := &Resolver{
		root:       root,
		index:      index,
		downloader: downloader,
		platform:   videourl.YouTube{},
		timeout:    cfg.DownloadTimeout(),
		minFree:    cfg.CacheMinFreeBytes(),
		maxBytes:   cfg.CacheMaxBytes(),
		statfs:     realStatfs,
		now:        time.Now,
		logger:     logging.NewNop(),
		pins:       make(map[string]int),
	}
	r.life, r.shutdown = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.NewComponentLogger(r.logger, "videocache")
	return r, nil
}

// Root returns the cache directory.
func (r *Resolver) Root() string { return r.root }

// Resolve returns a cache entry whose file exists on disk, downloading the
// video when needed. Concurrent calls for the same id share one download;
// a caller whose ctx ends stops waiting but the download continues for the
// others, bounded by the configured download timeout and by Close.
func (r *Resolver) Resolve(ctx context.Context, videoID string) (store.CacheEntry, error) {
	if !r.platform.ValidID(videoID) {
		return store.CacheEntry{}, fetchError(KindInvalidVideoID, videoID,
			services.Wrap(services.ErrValidation, "resolve", "validate id", fmt.Sprintf("%q is not a %s id", videoID, r.platform.Platform()), nil))
	}
	if entry, err := r.Lookup(ctx, videoID); err != nil {
		return store.CacheEntry{}, fetchError(KindDownloadIncomplete, videoID, err)
	} else if entry != nil {
		r.logger.DebugContext(ctx, "cache hit", logging.String(logging.FieldVideoID, videoID))
		return *entry, nil
	}

	flight := r.flights.DoChan(videoID, func() (any, error) {
		if !r.startFlight() {
			return store.CacheEntry{}, fetchError(KindDownloadIncomplete, videoID, ErrClosed)
		}
		defer r.inflight.Done()

		fetchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		defer cancel()
		stop := context.AfterFunc(r.life, cancel)
		defer stop()
		if r.timeout > 0 {
			var cancelTimeout context.CancelFunc
			fetchCtx, cancelTimeout = context.WithTimeout(fetchCtx, r.timeout)
			defer cancelTimeout()
		}
		return r.fetch(fetchCtx, videoID)
	})

	select {
	case <-ctx.Done():
		return store.CacheEntry{}, fetchError(KindDownloadIncomplete, videoID, ctx.Err())
	case res := <-flight:
		if res.Err != nil {
			return store.CacheEntry{}, res.Err
		}
		return res.Val.(store.CacheEntry), nil
	}
}

// Close cancels running downloads and waits for them to clean up. Resolve
// fails with ErrClosed for anything not already cached afterwards.
func (r *Resolver) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.shutdown()
	r.inflight.Wait()
}

func (r *Resolver) startFlight() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.inflight.Add(1)
	return true
}

// Pin holds videoID in the cache until release is called. Pinned videos are
// skipped by Prune and refused by Remove. Pins nest.
func (r *Resolver) Pin(videoID string) (release func()) {
	r.mu.Lock()
	r.pins[videoID]++
	r.mu.Unlock()
	return sync.OnceFunc(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.pins[videoID]--; r.pins[videoID] <= 0 {
			delete(r.pins, videoID)
		}
	})
}

func (r *Resolver) pinned(videoID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pins[videoID] > 0
}

// Lookup returns the entry for videoID when its file is present. A catalog
// record whose file is gone is deleted and reported as a miss.
func (r *Resolver) Lookup(ctx context.Context, videoID string) (*store.CacheEntry, error) {
	entry, err := r.index.GetCacheEntry(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, nil
	}
	info, statErr := os.Stat(entry.FilePath)
	if statErr == nil && info.Mode().IsRegular() {
		return entry, nil
	}
	r.logger.InfoContext(ctx, "cached file missing; treating as miss",
		logging.String(logging.FieldVideoID, videoID),
		logging.String("file_path", entry.FilePath),
	)
	if err := r.index.DeleteCacheEntry(ctx, videoID); err != nil {
		return nil, err
	}
	return nil, nil
}

func (r *Resolver) fetch(ctx context.Context, videoID string) (store.CacheEntry, error) {
	// A flight that finished between Lookup and DoChan already wrote the entry.
	if entry, err := r.Lookup(ctx, videoID); err == nil && entry != nil {
		return *entry, nil
	}

	if err := r.ensureFreeSpace(); err != nil {
		return store.CacheEntry{}, fetchError(KindDiskFull, videoID, err)
	}

	partialRoot := filepath.Join(r.root, partialDirName)
	workDir := filepath.Join(partialRoot, videoID+"-"+uuid.NewString())
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return store.CacheEntry{}, fetchError(classify(err), videoID, fmt.Errorf("create work dir: %w", err))
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			r.logger.Warn("failed to remove partial download", logging.String("work_dir", workDir), logging.Error(err))
		}
	}()

	started := time.Now()
	r.logger.InfoContext(ctx, "download started",
		logging.String(logging.FieldVideoID, videoID),
		logging.String(logging.FieldEventType, "download_started"),
	)
	var progress func(ytdlp.Progress)
	if r.progress != nil {
		progress = func(p ytdlp.Progress) { r.progress(videoID, p) }
	}
	downloaded, err := r.downloader.Download(ctx, r.platform.CanonicalURL(videoID), videoID, workDir, progress)
	if err != nil {
		kind := classify(err)
		logging.WarnWithContext(r.logger, "download failed", "download_failed",
			logging.String(logging.FieldVideoID, videoID),
			logging.String("kind", string(kind)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, downloadHint(kind)),
			logging.String(logging.FieldImpact, "video not played"),
		)
		return store.CacheEntry{}, fetchError(kind, videoID, err)
	}

	info, err := os.Stat(downloaded)
	if err != nil {
		return store.CacheEntry{}, fetchError(KindDownloadIncomplete, videoID, fmt.Errorf("inspect download: %w", err))
	}
	if !info.Mode().IsRegular() || info.Size() == 0 {
		return store.CacheEntry{}, fetchError(KindDownloadIncomplete, videoID, errors.New("downloader produced an empty file"))
	}

	final := filepath.Join(r.root, videoID+strings.ToLower(filepath.Ext(downloaded)))
	if err := os.Rename(downloaded, final); err != nil {
		return store.CacheEntry{}, fetchError(classify(err), videoID, fmt.Errorf("move into cache: %w", err))
	}

	entry := store.CacheEntry{
		VideoID:   videoID,
		FilePath:  final,
		FetchedAt: r.now(),
		SizeBytes: info.Size(),
	}
	if err := r.index.PutCacheEntry(ctx, entry); err != nil {
		_ = os.Remove(final)
		return store.CacheEntry{}, fetchError(KindDownloadIncomplete, videoID, err)
	}

	r.logger.InfoContext(ctx, "download complete",
		logging.String(logging.FieldVideoID, videoID),
		logging.String(logging.FieldEventType, "download_complete"),
		logging.String("size", logging.FormatBytes(entry.SizeBytes)),
		logging.Duration("elapsed", time.Since(started).Round(time.Millisecond)),
	)

	if _, err := r.Prune(ctx, videoID); err != nil {
		logging.WarnWithContext(r.logger, "cache prune failed", "cache_prune_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run vidkiosk cache prune or raise cache.max_gib"),
		)
	}
	return entry, nil
}

func (r *Resolver) ensureFreeSpace() error {
	if r.minFree <= 0 {
		return nil
	}
	_, free, err := r.statfs(r.root)
	if err != nil {
		return fmt.Errorf("statfs %s: %w", r.root, err)
	}
	if free < uint64(r.minFree) {
		return fmt.Errorf("%w: %s free, %s required", unix.ENOSPC,
			logging.FormatBytes(int64(free)), logging.FormatBytes(r.minFree))
	}
	return nil
}

// CleanPartials removes leftovers of downloads interrupted by a crash.
// Call it before any Resolve is in flight.
func (r *Resolver) CleanPartials() error {
	path := filepath.Join(r.root, partialDirName)
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("remove partial downloads: %w", err)
	}
	return nil
}

func downloadHint(kind Kind) string {
	switch kind {
	case KindInvalidVideoID:
		return "the video is private, removed, or the code is wrong"
	case KindNetworkFailure:
		return "check the kiosk network connection"
	case KindDiskFull:
		return "free disk space or lower cache.max_gib"
	default:
		return "update yt-dlp and retry"
	}
}

func realStatfs(path string) (uint64, uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bavail * uint64(stat.Bsize)
	return total, free, nil
}
