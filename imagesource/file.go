package imagesource

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// FileLoader reads images from the local file system. References are
// paths relative to root; absolute paths and paths leaving root are
// rejected with ErrOutsideRoot.
type FileLoader struct {
	root string
}

func NewFileLoader(root string) *FileLoader {
	return &FileLoader{root: root}
}

func (l *FileLoader) Load(ctx context.Context, ref string) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, err := l.path(ref)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

func (l *FileLoader) path(ref string) (string, error) {
	p := ref
	if strings.HasPrefix(ref, "file:") {
		u, err := url.Parse(ref)
		if err != nil {
			return "", err
		}
		p = u.Path
		if p == "" {
			p = u.Opaque
		}
	}

	p = filepath.FromSlash(p)
	if !filepath.IsLocal(p) {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, ref)
	}
	return filepath.Join(l.root, p), nil
}
