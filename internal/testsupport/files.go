package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// mp4 files start with an ftyp box; enough for anything that sniffs the header.
var fakeVideoHeader = []byte{0, 0, 0, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm'}

// WriteVideo creates a fake video of exactly size bytes at path, creating
// parent directories. Sizes smaller than the header are truncated.
func WriteVideo(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	body := append([]byte(nil), fakeVideoHeader...)
	if int64(len(body)) < size {
		body = append(body, bytes.Repeat([]byte{0}, int(size)-len(body))...)
	}
	if err := os.WriteFile(path, body[:size], 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// AgeFile backdates both times of path by age.
func AgeFile(t testing.TB, path string, age time.Duration) {
	t.Helper()
	when := time.Now().Add(-age)
	if err := os.Chtimes(path, when, when); err != nil {
		t.Fatalf("chtimes %s: %v", path, err)
	}
}
