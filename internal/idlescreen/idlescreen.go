// Package idlescreen renders the image mpv shows between videos: a black
// frame with a white play triangle so the screen reads as "ready" rather
// than "off".
package idlescreen

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// Default frame size.
const (
	DefaultWidth  = 1920
	DefaultHeight = 1080
)

// Render draws the idle frame at the given size. The triangle's height is a
// fifth of the frame height and it is centred.
func Render(width, height int) (*image.Gray, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid idle screen size %dx%d", width, height)
	}
	img := image.NewGray(image.Rect(0, 0, width, height))

	side := height / 5
	if side < 2 {
		return img, nil
	}
	cx, cy := width/2, height/2
	// Equilateral-ish triangle pointing right, centroid roughly on centre.
	left := cx - side*2/5
	right := left + side*13/15
	top := cy - side/2
	bottom := top + side
	for y := top; y < bottom; y++ {
		// Half-width of the span at this row, widest at the vertical middle.
		dy := y - top
		if dy > side/2 {
			dy = side - dy
		}
		span := (right - left) * dy * 2 / side
		for x := left; x < left+span && x < width; x++ {
			if x >= 0 && y >= 0 && y < height {
				img.SetGray(x, y, color.Gray{Y: 0xff})
			}
		}
	}
	return img, nil
}

// Ensure writes the idle image to path unless a file already exists there.
// It reports whether a new file was written.
func Ensure(path string, width, height int) (bool, error) {
	if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
		return false, nil
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("stat idle image: %w", err)
	}
	if err := Write(path, width, height); err != nil {
		return false, err
	}
	return true, nil
}

// Write renders the idle frame and replaces path atomically.
func Write(path string, width, height int) error {
	img, err := Render(width, height)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("encode idle image: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create idle image directory: %w", err)
	}
	if err := renameio.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write idle image: %w", err)
	}
	return nil
}
