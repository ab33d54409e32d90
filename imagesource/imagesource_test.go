package imagesource

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSVG = `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="40" height="20" viewBox="0 0 40 20">
  <rect x="0" y="0" width="40" height="20" fill="#ff0000"/>
</svg>`

func pngBytes(t testing.TB, w, h int) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{uint8(x), uint8(y), 200, 255})
		}
	}
	buf := new(bytes.Buffer)
	require.NoError(t, png.Encode(buf, img))
	return buf.Bytes()
}

func Test_decode_png(t *testing.T) {
	img, err := Decode(pngBytes(t, 12, 7))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 12, 7), img.Bounds())
}

func Test_decode_svg(t *testing.T) {
	img, err := Decode([]byte(testSVG))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 40, 20), img.Bounds())

	r, g, b, a := img.At(20, 10).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Zero(t, g)
	assert.Zero(t, b)
	assert.Equal(t, uint32(0xffff), a)
}

func Test_decode_garbage(t *testing.T) {
	_, err := Decode([]byte("definitely not an image"))
	assert.Error(t, err)
}

// pngHeader is the start of a PNG claiming w x h pixels, enough for
// image.DecodeConfig.
func pngHeader(w, h uint32) []byte {
	buf := new(bytes.Buffer)
	buf.WriteString("\x89PNG\r\n\x1a\n")

	chunk := make([]byte, 17)
	copy(chunk, "IHDR")
	binary.BigEndian.PutUint32(chunk[4:], w)
	binary.BigEndian.PutUint32(chunk[8:], h)
	chunk[12] = 8 // bit depth
	chunk[13] = 6 // RGBA

	binary.Write(buf, binary.BigEndian, uint32(13))
	buf.Write(chunk)
	binary.Write(buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func Test_decode_too_large(t *testing.T) {
	_, err := Decode(pngHeader(100000, 100000))
	assert.ErrorIs(t, err, ErrImageTooLarge)
}

func Test_decode_svg_large_view_box(t *testing.T) {
	testData := []struct {
		viewBox string
		aspect  float64
	}{
		{"0 0 1000000000 1000000000", 1},
		{"0 0 20000 10000", 2},
	}

	for _, tst := range testData {
		svg := `<svg xmlns="http://www.w3.org/2000/svg" viewBox="` + tst.viewBox + `"><rect width="10" height="10" fill="#00ff00"/></svg>`
		img, err := Decode([]byte(svg))
		require.NoError(t, err, tst.viewBox)

		b := img.Bounds()
		assert.LessOrEqual(t, b.Dx()*b.Dy(), MaxImagePixels, tst.viewBox)
		assert.InDelta(t, tst.aspect, float64(b.Dx())/float64(b.Dy()), 0.01, tst.viewBox)
	}

	_, err := Decode([]byte(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 1000000000000 1"></svg>`))
	assert.ErrorIs(t, err, ErrImageTooLarge)
}

func Test_scheme(t *testing.T) {
	testData := []struct {
		ref    string
		scheme string
	}{
		{"https://example.com/plan.png", "https"},
		{"HTTP://example.com/plan.png", "http"},
		{"s3://bucket/plans/site.png", "s3"},
		{"file:///tmp/plan.png", "file"},
		{"assets/images/location.svg", "file"},
		{"/abs/plan.png", "file"},
		{`C:\plans\plan.png`, "file"},
	}

	for _, tst := range testData {
		assert.Equal(t, tst.scheme, Scheme(tst.ref), tst.ref)
	}
}

func Test_file_loader(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "plans"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plans", "plan.png"), pngBytes(t, 5, 3), 0644))

	l := NewFileLoader(filepath.Join(dir, "plans"))

	img, err := l.Load(context.Background(), "plan.png")
	require.NoError(t, err)
	assert.Equal(t, 5, img.Bounds().Dx())

	img, err = NewFileLoader(dir).Load(context.Background(), "file:plans/plan.png")
	require.NoError(t, err)
	assert.Equal(t, 3, img.Bounds().Dy())

	_, err = l.Load(context.Background(), "missing.png")
	assert.ErrorIs(t, err, ErrNotFound)
}

func Test_file_loader_stays_in_root(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "plans")
	require.NoError(t, os.MkdirAll(root, 0755))
	secret := filepath.Join(dir, "secret.png")
	require.NoError(t, os.WriteFile(secret, pngBytes(t, 4, 4), 0644))

	l := NewFileLoader(root)

	testData := []string{
		"../secret.png",
		"plans/../../secret.png",
		secret,
		"file://" + filepath.ToSlash(secret),
		"file:../secret.png",
		"",
	}

	for _, ref := range testData {
		img, err := l.Load(context.Background(), ref)
		assert.ErrorIs(t, err, ErrOutsideRoot, ref)
		assert.Nil(t, img, ref)
	}
}

func Test_http_loader(t *testing.T) {
	data := pngBytes(t, 9, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/plan.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write(data)
		case "/broken.png":
			http.Error(w, "boom", http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	l := NewHTTPLoader(srv.Client())

	img, err := l.Load(context.Background(), srv.URL+"/plan.png")
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 9, 4), img.Bounds())

	_, err = l.Load(context.Background(), srv.URL+"/nope.png")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = l.Load(context.Background(), srv.URL+"/broken.png")
	assert.Error(t, err)
}

type fakeS3 struct {
	objects map[string][]byte
	calls   atomic.Int32
}

func (f *fakeS3) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.calls.Add(1)
	data, ok := f.objects[aws.ToString(params.Bucket)+"/"+aws.ToString(params.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func Test_s3_loader(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{
		"plans/site/plan.png": pngBytes(t, 16, 8),
	}}
	l := NewS3Loader(fake)

	img, err := l.Load(context.Background(), "s3://plans/site/plan.png")
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 16, 8), img.Bounds())

	_, err = l.Load(context.Background(), "s3://plans/site/missing.png")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = l.Load(context.Background(), "s3://plans")
	assert.Error(t, err)
}

func Test_parse_s3_ref(t *testing.T) {
	bucket, key, err := ParseS3Ref("s3://my-bucket/a/b/c.webp")
	require.NoError(t, err)
	assert.Equal(t, "my-bucket", bucket)
	assert.Equal(t, "a/b/c.webp", key)

	_, _, err = ParseS3Ref("https://my-bucket/a.png")
	assert.Error(t, err)
}

func Test_mux_dispatch(t *testing.T) {
	var got string
	m := NewMux()
	m.Handle("s3", LoaderFunc(func(ctx context.Context, ref string) (image.Image, error) {
		got = ref
		return image.NewRGBA(image.Rect(0, 0, 1, 1)), nil
	}))

	_, err := m.Load(context.Background(), "s3://bucket/key.png")
	require.NoError(t, err)
	assert.Equal(t, "s3://bucket/key.png", got)

	_, err = m.Load(context.Background(), "gopher://bucket/key.png")
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
}

func Test_cache_loader(t *testing.T) {
	var calls atomic.Int32
	next := LoaderFunc(func(ctx context.Context, ref string) (image.Image, error) {
		calls.Add(1)
		if ref == "bad" {
			return nil, errors.New("load failed")
		}
		return image.NewRGBA(image.Rect(0, 0, 2, 2)), nil
	})

	l, err := NewCacheLoader(next, 2)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := l.Load(context.Background(), "a")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), calls.Load())

	_, err = l.Load(context.Background(), "bad")
	assert.Error(t, err)
	_, err = l.Load(context.Background(), "bad")
	assert.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())

	l.Remove("a")
	_, err = l.Load(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, int32(4), calls.Load())
}
