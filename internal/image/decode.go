// Package image provides image decoding, ownership of decoded rasters, and
// the composite produced by the overlay renderer.
package image

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrDecodeFailure is returned when a source cannot be decoded as an image.
var ErrDecodeFailure = errors.New("decode failure")

// Source is an uploaded image file that has not been decoded yet.
type Source struct {
	Name string
	Open func() (io.ReadCloser, error)
}

// FileSource returns a Source reading from a path on disk.
func FileSource(path string) Source {
	return Source{
		Name: filepath.Base(path),
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}
}

// BytesSource returns a Source backed by an in-memory buffer.
func BytesSource(name string, data []byte) Source {
	return Source{
		Name: name,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// Decoder turns a Source into a Decoded image. Implementations must honour
// ctx cancellation where they can; the caller discards results it no longer
// wants either way.
type Decoder interface {
	Decode(ctx context.Context, src Source) (*Decoded, error)
}

// Decoded is an immutable decoded raster. Its owner must call Release once it
// is replaced or no longer displayed.
type Decoded struct {
	Image  image.Image // Decoded pixels; nil after Release
	Width  int
	Height int
	Format string // Registered format name, e.g. "png"
	Source string // Source name the image was decoded from

	mu        sync.Mutex
	released  bool
	onRelease func()
}

// NewDecoded wraps an already decoded image. onRelease may be nil.
func NewDecoded(source string, img image.Image, format string, onRelease func()) *Decoded {
	b := img.Bounds()
	return &Decoded{
		Image:     img,
		Width:     b.Dx(),
		Height:    b.Dy(),
		Format:    format,
		Source:    source,
		onRelease: onRelease,
	}
}

// Release drops the pixel buffer and runs the release hook. Safe to call
// more than once.
func (d *Decoded) Release() {
	if d == nil {
		return
	}

	d.mu.Lock()
	if d.released {
		d.mu.Unlock()
		return
	}
	d.released = true
	d.Image = nil
	hook := d.onRelease
	d.onRelease = nil
	d.mu.Unlock()

	if hook != nil {
		hook()
	}
}

// Pixels returns the decoded image, or nil once released.
func (d *Decoded) Pixels() image.Image {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Image
}

// Released reports whether Release has been called.
func (d *Decoded) Released() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.released
}

// FileDecoder decodes PNG, JPEG, TIFF, WebP and BMP sources.
type FileDecoder struct {
	// AutoOrient applies the EXIF orientation tag. Leave it off when the
	// extraction backend reports boxes in the stored (unrotated) pixel grid.
	AutoOrient bool
}

// Decode reads and decodes src.
func (d FileDecoder) Decode(ctx context.Context, src Source) (*Decoded, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rc, err := src.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open %s: %v", ErrDecodeFailure, src.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %v", ErrDecodeFailure, src.Name, err)
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecodeFailure, src.Name, err)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(d.AutoOrient))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecodeFailure, src.Name, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return NewDecoded(src.Name, img, format, nil), nil
}
