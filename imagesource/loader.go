package imagesource

import (
	"context"
	"fmt"
	"image"
	"net/url"
	"strings"
	"sync"
)

var (
	ErrNotFound          = fmt.Errorf("not found")
	ErrUnsupportedScheme = fmt.Errorf("unsupported image scheme")
	ErrOutsideRoot       = fmt.Errorf("image path outside loader root")
)

type Loader interface {
	Load(ctx context.Context, ref string) (image.Image, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, ref string) (image.Image, error)

func (f LoaderFunc) Load(ctx context.Context, ref string) (image.Image, error) {
	return f(ctx, ref)
}

// Mux dispatches by URL scheme. References without a scheme are file
// paths.
type Mux struct {
	mu      sync.RWMutex
	loaders map[string]Loader
}

// NewMux returns a Mux serving http, https and file references.
func NewMux() *Mux {
	m := Mux{loaders: make(map[string]Loader)}
	httpLoader := NewHTTPLoader(nil)
	m.Handle("http", httpLoader)
	m.Handle("https", httpLoader)
	m.Handle("file", NewFileLoader(""))
	return &m
}

func (m *Mux) Handle(scheme string, l Loader) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaders[strings.ToLower(scheme)] = l
}

func (m *Mux) Load(ctx context.Context, ref string) (image.Image, error) {
	scheme := Scheme(ref)

	m.mu.RLock()
	l, ok := m.loaders[scheme]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}
	return l.Load(ctx, ref)
}

// Scheme returns the lower-cased URL scheme of ref, "file" for plain
// paths.
func Scheme(ref string) string {
	u, err := url.Parse(ref)
	// a single letter is a windows drive, not a scheme
	if err != nil || len(u.Scheme) <= 1 {
		return "file"
	}
	return strings.ToLower(u.Scheme)
}
