package overlay

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"
)

var (
	// ErrEmptyImage is returned for tiles that need an image with no pixels.
	ErrEmptyImage = errors.New("overlay image has zero width or height")

	ErrLoaderPanic = errors.New("image loader panicked")
)

// ImageLoader turns an image address into a decoded bitmap.
type ImageLoader interface {
	Load(ctx context.Context, ref string) (image.Image, error)
}

// ImageFuture is a bitmap that may still be loading. Wait returns once
// the bitmap is ready or ctx is done; abandoning a wait does not stop
// the load.
type ImageFuture interface {
	Wait(ctx context.Context) (image.Image, error)
}

// ImageRef is what an overlay draws: an ImageURL, a Bitmap or a Pending
// future owned by the caller.
type ImageRef interface {
	isImageRef()
}

// ImageURL is an address resolved through the overlay's ImageLoader.
type ImageURL string

// Bitmap is an already decoded image.
type Bitmap struct {
	Image image.Image
}

// Pending is a bitmap whose loading the caller manages.
type Pending struct {
	Future ImageFuture
}

func (ImageURL) isImageRef() {}
func (Bitmap) isImageRef()   {}
func (Pending) isImageRef()  {}

// ImageLoadError reports an address that could not be turned into a
// bitmap.
type ImageLoadError struct {
	Ref string
	Err error
}

func (e *ImageLoadError) Error() string {
	return fmt.Sprintf("image load failed: %s: %v", e.Ref, e.Err)
}

func (e *ImageLoadError) Unwrap() error {
	return e.Err
}

// ImageHandle is an ImageFuture filled in exactly once.
type ImageHandle struct {
	done chan struct{}
	img  image.Image
	err  error
}

func newImageHandle() *ImageHandle {
	return &ImageHandle{done: make(chan struct{})}
}

// ResolvedImage returns a handle that is ready with img.
func ResolvedImage(img image.Image) *ImageHandle {
	h := newImageHandle()
	h.resolve(img, nil)
	return h
}

// NewPendingImage returns a handle and the function that completes it.
// Only the first call to complete has an effect.
func NewPendingImage() (*ImageHandle, func(image.Image, error)) {
	h := newImageHandle()
	var once sync.Once
	return h, func(img image.Image, err error) {
		once.Do(func() {
			h.resolve(img, err)
		})
	}
}

func (h *ImageHandle) resolve(img image.Image, err error) {
	h.img, h.err = img, err
	close(h.done)
}

func (h *ImageHandle) Wait(ctx context.Context) (image.Image, error) {
	select {
	case <-h.done:
		return h.img, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done is closed once the handle is resolved.
func (h *ImageHandle) Done() <-chan struct{} {
	return h.done
}

// loadImage starts loading ref in the background.
func loadImage(loader ImageLoader, ref string, timeout time.Duration) *ImageHandle {
	h := newImageHandle()
	go func() {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		img, err := safeLoad(ctx, loader, ref)
		if err != nil {
			h.resolve(nil, &ImageLoadError{Ref: ref, Err: err})
			return
		}
		h.resolve(img, nil)
	}()
	return h
}

// safeLoad reports a panicking loader as a load error.
func safeLoad(ctx context.Context, loader ImageLoader, ref string) (img image.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			img, err = nil, fmt.Errorf("%w: %v", ErrLoaderPanic, r)
		}
	}()
	return loader.Load(ctx, ref)
}

// resolveImage maps a configured ImageRef to the future tiles wait on.
func resolveImage(ref ImageRef, loader ImageLoader, timeout time.Duration) ImageFuture {
	switch r := ref.(type) {
	case ImageURL:
		return loadImage(loader, string(r), timeout)
	case Bitmap:
		return ResolvedImage(r.Image)
	case *Bitmap:
		return ResolvedImage(r.Image)
	case Pending:
		return r.Future
	case *Pending:
		return r.Future
	}
	h := newImageHandle()
	h.resolve(nil, fmt.Errorf("unsupported image reference %T", ref))
	return h
}
