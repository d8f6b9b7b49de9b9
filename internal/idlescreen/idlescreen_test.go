package idlescreen_test

import (
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"vidkiosk/internal/idlescreen"
)

func TestRenderDrawsCentredTriangle(t *testing.T) {
	img, err := idlescreen.Render(320, 180)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got := img.GrayAt(0, 0).Y; got != 0 {
		t.Fatalf("corner should be black, got %d", got)
	}
	if got := img.GrayAt(160, 90).Y; got != 0xff {
		t.Fatalf("centre should be white, got %d", got)
	}
	if got := img.GrayAt(160, 10).Y; got != 0 {
		t.Fatalf("above triangle should be black, got %d", got)
	}
	white := 0
	for y := 0; y < 180; y++ {
		for x := 0; x < 320; x++ {
			if img.GrayAt(x, y).Y == 0xff {
				white++
			}
		}
	}
	if white == 0 || white > 320*180/10 {
		t.Fatalf("unexpected white pixel count %d", white)
	}
}

func TestRenderRejectsEmptyFrame(t *testing.T) {
	if _, err := idlescreen.Render(0, 100); err == nil {
		t.Fatal("expected error for zero width")
	}
}

func TestEnsureWritesOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "idle.png")

	wrote, err := idlescreen.Ensure(path, 64, 36)
	if err != nil || !wrote {
		t.Fatalf("first Ensure: wrote=%v err=%v", wrote, err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	cfg, err := png.DecodeConfig(f)
	f.Close()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Width != 64 || cfg.Height != 36 {
		t.Fatalf("unexpected size %dx%d", cfg.Width, cfg.Height)
	}

	wrote, err = idlescreen.Ensure(path, 1920, 1080)
	if err != nil || wrote {
		t.Fatalf("second Ensure should keep the file: wrote=%v err=%v", wrote, err)
	}
}
