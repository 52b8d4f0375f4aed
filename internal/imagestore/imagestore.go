// Package imagestore keeps the source images of enrollments on disk.
package imagestore

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-attendance/internal/database"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// DefaultMaxImageSize is the longest edge kept for stored images.
const DefaultMaxImageSize = 1024

const jpegQuality = 90

// Store writes normalized JPEG copies of uploaded images into a directory.
type Store struct {
	dir     string
	maxSize int
}

// New creates the directory if needed and returns a Store writing into it.
func New(dir string, maxSize int) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("image directory is required")
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxImageSize
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}
	return &Store{dir: dir, maxSize: maxSize}, nil
}

// Save normalizes the image and writes it under a random name.
// The returned reference is the file path and is used as the enrollment's image ref.
func (s *Store) Save(data []byte) (string, error) {
	normalized, err := Normalize(data, s.maxSize)
	if err != nil {
		return "", err
	}

	name := strings.ReplaceAll(uuid.New().String(), "-", "") + ".jpg"
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, normalized, 0o644); err != nil { //nolint:gosec // images are not secret
		return "", fmt.Errorf("failed to write image: %w", err)
	}
	return path, nil
}

// Remove deletes a previously saved image. Missing files are not an error.
func (s *Store) Remove(ref string) error {
	path, err := s.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove image: %w", err)
	}
	return nil
}

// resolve confines ref to the store directory.
func (s *Store) resolve(ref string) (string, error) {
	name := filepath.Base(ref)
	if name == "." || name == ".." || name == string(filepath.Separator) {
		return "", fmt.Errorf("%w: bad image reference %q", database.ErrInvalidInput, ref)
	}
	return filepath.Join(s.dir, name), nil
}

// Normalize decodes an image, shrinks it to fit within maxSize while keeping the
// aspect ratio, and re-encodes it as JPEG.
func Normalize(data []byte, maxSize int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode image: %w", database.ErrInvalidInput, err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	var out image.Image = img
	if width > maxSize || height > maxSize {
		var newWidth, newHeight int
		if width > height {
			newWidth = maxSize
			newHeight = max(1, int(float64(height)*float64(maxSize)/float64(width)))
		} else {
			newHeight = maxSize
			newWidth = max(1, int(float64(width)*float64(maxSize)/float64(height)))
		}
		resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
		draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)
		out = resized
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}
