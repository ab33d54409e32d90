package imagesource

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log"
	"net/http"
	"time"
)

type HTTPLoader struct {
	client *http.Client
}

func NewHTTPLoader(client *http.Client) *HTTPLoader {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPLoader{
		client: client,
	}
}

func (l *HTTPLoader) Load(ctx context.Context, ref string) (image.Image, error) {
	log.Printf("Requesting overlay image: %s", ref)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "image/*,*/*;q=0.8")

	dt1 := time.Now()
	resp, err := l.client.Do(req)
	if err != nil {
		log.Printf("Error fetching image %s: %v", ref, err)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	data := new(bytes.Buffer)
	if _, err := data.ReadFrom(resp.Body); err != nil {
		return nil, err
	}

	img, err := Decode(data.Bytes())
	if err != nil {
		log.Printf("Error decoding image %s: %v", ref, err)
		return nil, err
	}

	dt2 := time.Now()
	log.Printf("HTTP GET: %s, read: %d in %v", ref, data.Len(), dt2.Sub(dt1))
	return img, nil
}
