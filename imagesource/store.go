package imagesource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	lrucache "github.com/hashicorp/golang-lru"
)

// S3API is the part of the S3 client the loader uses.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Loader loads s3://bucket/key references.
type S3Loader struct {
	s3Client S3API
}

func NewS3Loader(s3Client S3API) *S3Loader {
	return &S3Loader{
		s3Client: s3Client,
	}
}

func (l *S3Loader) Load(ctx context.Context, ref string) (image.Image, error) {
	bucket, key, err := ParseS3Ref(ref)
	if err != nil {
		return nil, err
	}

	dt1 := time.Now()
	goi := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}

	goo, err := l.s3Client.GetObject(ctx, goi)
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrNotFound
		}
		log.Printf("req: %s, ERR: %v", ref, err)
		return nil, err
	}

	data := new(bytes.Buffer)
	_, err = data.ReadFrom(goo.Body)
	goo.Body.Close()
	if err != nil {
		return nil, err
	}

	dt2 := time.Now()
	log.Printf("S3 GetObject: %s, read: %d in %v", ref, data.Len(), dt2.Sub(dt1))

	return Decode(data.Bytes())
}

// ParseS3Ref splits s3://bucket/key.
func ParseS3Ref(ref string) (bucket, key string, err error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("not an s3 reference: %q", ref)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("s3 reference without key: %q", ref)
	}
	return u.Host, key, nil
}

// CacheLoader keeps the most recently loaded images in memory so an
// image shared between overlays, or switched back to, is fetched once.
type CacheLoader struct {
	next       Loader
	imageCache *lrucache.Cache
}

func NewCacheLoader(next Loader, cacheSize int) (*CacheLoader, error) {
	imageCache, err := lrucache.New(cacheSize)
	if err != nil {
		return nil, err
	}
	l := CacheLoader{
		next:       next,
		imageCache: imageCache,
	}
	return &l, nil
}

func (l *CacheLoader) Load(ctx context.Context, ref string) (image.Image, error) {
	if obj, ok := l.imageCache.Get(ref); ok {
		img, ok := obj.(image.Image)
		if !ok {
			return nil, errors.New("cache error")
		}
		log.Printf("Cache hit: %s", ref)
		return img, nil
	}

	img, err := l.next.Load(ctx, ref)
	if err != nil {
		return nil, err
	}
	l.imageCache.Add(ref, img)
	return img, nil
}

// Remove drops ref so the next Load fetches it again.
func (l *CacheLoader) Remove(ref string) {
	l.imageCache.Remove(ref)
}
