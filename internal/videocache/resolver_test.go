package videocache_test

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
	"golang.org/x/sys/unix"

	"vidkiosk/internal/config"
	"vidkiosk/internal/services"
	"vidkiosk/internal/services/ytdlp"
	"vidkiosk/internal/store"
	"vidkiosk/internal/testsupport"
	"vidkiosk/internal/videocache"
)

const videoID = "dQw4w9WgXcQ"

type stubDownloader struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	err     error
	size    int64
	// partial writes a file before failing.
	partial bool
}

func (s *stubDownloader) Download(ctx context.Context, url, id, destDir string, progress func(ytdlp.Progress)) (string, error) {
	s.calls.Add(1)
	if s.started != nil {
		select {
		case s.started <- struct{}{}:
		default:
		}
	}
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	path := filepath.Join(destDir, id+".mp4")
	if s.err != nil {
		if s.partial {
			_ = os.WriteFile(path+".part", []byte("half"), 0o644)
		}
		return "", s.err
	}
	size := s.size
	if size == 0 {
		size = 1024
	}
	if progress != nil {
		progress(ytdlp.Progress{Percent: 100})
	}
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := f.Truncate(size); err != nil {
		return "", err
	}
	return path, nil
}

func newResolver(t *testing.T, dl videocache.Downloader, opts ...videocache.Option) (*videocache.Resolver, *store.Store, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	r, err := videocache.New(cfg, st, dl, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r, st, cfg
}

func regularFiles(t *testing.T, root string) []string {
	t.Helper()
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk %s: %v", root, err)
	}
	return files
}

func TestResolveTwiceDownloadsOnce(t *testing.T) {
	dl := &stubDownloader{}
	r, _, cfg := newResolver(t, dl)

	first, err := r.Resolve(context.Background(), videoID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if first.FilePath != filepath.Join(cfg.Paths.CacheDir, videoID+".mp4") {
		t.Fatalf("unexpected path %q", first.FilePath)
	}
	if first.SizeBytes != 1024 {
		t.Fatalf("unexpected size %d", first.SizeBytes)
	}
	second, err := r.Resolve(context.Background(), videoID)
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if second.FilePath != first.FilePath {
		t.Fatalf("cache hit returned different path %q", second.FilePath)
	}
	if got := dl.calls.Load(); got != 1 {
		t.Fatalf("expected exactly one download, got %d", got)
	}
}

func TestConcurrentResolvesShareOneDownload(t *testing.T) {
	dl := &stubDownloader{started: make(chan struct{}, 1), release: make(chan struct{})}
	r, _, _ := newResolver(t, dl)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	const callers = 4
	var wg sync.WaitGroup
	paths := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry, err := r.Resolve(context.Background(), videoID)
			paths[i], errs[i] = entry.FilePath, err
		}()
	}

	<-dl.started
	time.Sleep(20 * time.Millisecond)
	close(dl.release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if paths[i] != paths[0] {
			t.Fatalf("caller %d got %q, want %q", i, paths[i], paths[0])
		}
	}
	if got := dl.calls.Load(); got != 1 {
		t.Fatalf("expected one download for concurrent callers, got %d", got)
	}
}

func TestWaiterCancellationDoesNotAbortDownload(t *testing.T) {
	dl := &stubDownloader{started: make(chan struct{}, 1), release: make(chan struct{})}
	r, _, _ := newResolver(t, dl)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ownerDone := make(chan error, 1)
	go func() {
		_, err := r.Resolve(context.Background(), videoID)
		ownerDone <- err
	}()
	<-dl.started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := r.Resolve(ctx, videoID)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected cancellation for the impatient waiter, got %v", err)
	}
	if videocache.KindOf(err) != videocache.KindDownloadIncomplete {
		t.Fatalf("unexpected kind %q", videocache.KindOf(err))
	}

	close(dl.release)
	if err := <-ownerDone; err != nil {
		t.Fatalf("download should still complete for the other caller: %v", err)
	}
}

func TestFailedResolveLeavesNothing(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind videocache.Kind
	}{
		{"network", services.Wrap(services.ErrTransient, "download", "yt-dlp", "unable to download", nil), videocache.KindNetworkFailure},
		{"unavailable", services.Wrap(services.ErrNotFound, "download", "yt-dlp", "video unavailable", nil), videocache.KindInvalidVideoID},
		{"disk", services.Wrap(services.ErrExternalTool, "download", "yt-dlp", "no space", unix.ENOSPC), videocache.KindDiskFull},
		{"timeout", services.Wrap(services.ErrTimeout, "download", "yt-dlp", "timed out", context.DeadlineExceeded), videocache.KindDownloadIncomplete},
		{"unknown", errors.New("exit status 1"), videocache.KindDownloadIncomplete},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dl := &stubDownloader{err: tc.err, partial: true}
			r, st, cfg := newResolver(t, dl)

			_, err := r.Resolve(context.Background(), videoID)
			var fetchErr *videocache.FetchError
			if !errors.As(err, &fetchErr) {
				t.Fatalf("expected FetchError, got %v", err)
			}
			if fetchErr.Kind != tc.kind || fetchErr.VideoID != videoID {
				t.Fatalf("unexpected fetch error %+v", fetchErr)
			}
			entry, err := st.GetCacheEntry(context.Background(), videoID)
			if err != nil || entry != nil {
				t.Fatalf("expected no cache entry, got %+v err=%v", entry, err)
			}
			if files := regularFiles(t, cfg.Paths.CacheDir); len(files) != 0 {
				t.Fatalf("expected no residual files, found %v", files)
			}
		})
	}
}

func TestResolveRejectsInvalidID(t *testing.T) {
	dl := &stubDownloader{}
	r, _, _ := newResolver(t, dl)
	_, err := r.Resolve(context.Background(), "../etc/passwd")
	if videocache.KindOf(err) != videocache.KindInvalidVideoID {
		t.Fatalf("expected invalid id, got %v", err)
	}
	if dl.calls.Load() != 0 {
		t.Fatal("invalid id must not reach the downloader")
	}
}

func TestMissingFileIsTreatedAsMiss(t *testing.T) {
	dl := &stubDownloader{}
	r, _, _ := newResolver(t, dl)

	entry, err := r.Resolve(context.Background(), videoID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if err := os.Remove(entry.FilePath); err != nil {
		t.Fatalf("evict: %v", err)
	}
	if got, err := r.Lookup(context.Background(), videoID); err != nil || got != nil {
		t.Fatalf("expected miss after eviction, got %+v err=%v", got, err)
	}
	if _, err := r.Resolve(context.Background(), videoID); err != nil {
		t.Fatalf("Resolve after eviction: %v", err)
	}
	if got := dl.calls.Load(); got != 2 {
		t.Fatalf("expected re-download after eviction, got %d downloads", got)
	}
}

func TestLowFreeSpaceFailsBeforeDownload(t *testing.T) {
	dl := &stubDownloader{}
	cfg := testsupport.NewConfig(t)
	cfg.Cache.MinFreeMiB = 100
	st := testsupport.MustOpenStore(t, cfg)
	r, err := videocache.New(cfg, st, dl, videocache.WithStatfs(func(string) (uint64, uint64, error) {
		return 1 << 30, 10 << 20, nil
	}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = r.Resolve(context.Background(), videoID)
	if videocache.KindOf(err) != videocache.KindDiskFull {
		t.Fatalf("expected disk full, got %v", err)
	}
	if dl.calls.Load() != 0 {
		t.Fatal("download must not start when space is short")
	}
}

func TestPruneKeepsNewestAndRespectsBudget(t *testing.T) {
	dl := &stubDownloader{size: 600 * 1024 * 1024}
	clock := testsupport.NewClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	cfg := testsupport.NewConfig(t)
	cfg.Cache.MaxGiB = 1
	st := testsupport.MustOpenStore(t, cfg)
	r, err := videocache.New(cfg, st, dl, videocache.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := r.Resolve(context.Background(), "aaaaaaaaaaa"); err != nil {
		t.Fatalf("Resolve first: %v", err)
	}
	clock.Advance(time.Minute)
	second, err := r.Resolve(context.Background(), "bbbbbbbbbbb")
	if err != nil {
		t.Fatalf("Resolve second: %v", err)
	}

	entries, err := r.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].VideoID != "bbbbbbbbbbb" {
		t.Fatalf("expected only the newest entry to remain, got %+v", entries)
	}
	if _, err := os.Stat(second.FilePath); err != nil {
		t.Fatalf("newest file should remain: %v", err)
	}
}

func TestRemoveAndStats(t *testing.T) {
	dl := &stubDownloader{}
	r, _, _ := newResolver(t, dl, videocache.WithStatfs(func(string) (uint64, uint64, error) {
		return 1000, 400, nil
	}))
	entry, err := r.Resolve(context.Background(), videoID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	stats, err := r.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Entries != 1 || stats.TotalBytes != 1024 || stats.FreeBytes != 400 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	if err := r.Remove(context.Background(), videoID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(entry.FilePath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("file should be gone, stat err=%v", err)
	}
	if err := r.Remove(context.Background(), videoID); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found on second remove, got %v", err)
	}
}

func TestCleanPartials(t *testing.T) {
	r, _, cfg := newResolver(t, &stubDownloader{})
	leftover := filepath.Join(cfg.Paths.CacheDir, ".partial", "x-1", "x.mp4")
	testsupport.WriteVideo(t, leftover, 10)
	if err := r.CleanPartials(); err != nil {
		t.Fatalf("CleanPartials: %v", err)
	}
	if files := regularFiles(t, cfg.Paths.CacheDir); len(files) != 0 {
		t.Fatalf("expected partials removed, found %v", files)
	}
}

func TestPruneSkipsPinnedVideos(t *testing.T) {
	dl := &stubDownloader{size: 600 * 1024 * 1024}
	clock := testsupport.NewClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	cfg := testsupport.NewConfig(t)
	cfg.Cache.MaxGiB = 1
	st := testsupport.MustOpenStore(t, cfg)
	r, err := videocache.New(cfg, st, dl, videocache.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	release := r.Pin("aaaaaaaaaaa")
	waiting, err := r.Resolve(context.Background(), "aaaaaaaaaaa")
	if err != nil {
		t.Fatalf("Resolve first: %v", err)
	}
	clock.Advance(time.Minute)
	if _, err := r.Resolve(context.Background(), "bbbbbbbbbbb"); err != nil {
		t.Fatalf("Resolve second: %v", err)
	}
	if _, err := os.Stat(waiting.FilePath); err != nil {
		t.Fatalf("pinned file was pruned: %v", err)
	}
	if err := r.Remove(context.Background(), "aaaaaaaaaaa"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected remove of pinned video to be refused, got %v", err)
	}

	release()
	release()
	result, err := r.Prune(context.Background(), "bbbbbbbbbbb")
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if len(result.Removed) != 1 || result.Removed[0].VideoID != "aaaaaaaaaaa" {
		t.Fatalf("expected the released video to be pruned, got %+v", result.Removed)
	}
}

func TestCloseCancelsRunningDownload(t *testing.T) {
	dl := &stubDownloader{started: make(chan struct{}, 1), release: make(chan struct{})}
	r, _, cfg := newResolver(t, dl)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := r.Resolve(ctx, videoID)
		done <- err
	}()
	<-dl.started
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected caller cancellation, got %v", err)
	}

	closed := make(chan struct{})
	go func() {
		r.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not stop the detached download")
	}
	if files := regularFiles(t, cfg.Paths.CacheDir); len(files) != 0 {
		t.Fatalf("expected no residual files, found %v", files)
	}

	if _, err := r.Resolve(context.Background(), "bbbbbbbbbbb"); !errors.Is(err, videocache.ErrClosed) {
		t.Fatalf("expected ErrClosed after Close, got %v", err)
	}
}
