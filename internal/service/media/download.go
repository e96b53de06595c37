package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrTooLarge is returned when a download exceeds the size limit.
var ErrTooLarge = errors.New("download exceeds size limit")

// Downloader fetches a temporary media URL into w.
type Downloader interface {
	Download(ctx context.Context, url string, w io.Writer) (int64, error)
}

// HTTPDownloader downloads over HTTP with a per-request timeout.
type HTTPDownloader struct {
	client  *http.Client
	timeout time.Duration
	maxSize int64
}

// NewHTTPDownloader creates a downloader. A zero timeout defaults to 60s; a
// zero maxSize disables the limit.
func NewHTTPDownloader(client *http.Client, timeout time.Duration, maxSize int64) *HTTPDownloader {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPDownloader{client: client, timeout: timeout, maxSize: maxSize}
}

func (d *HTTPDownloader) Download(ctx context.Context, url string, w io.Writer) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("http status %d", resp.StatusCode)
	}
	if d.maxSize > 0 && resp.ContentLength > d.maxSize {
		return 0, fmt.Errorf("%w: %d bytes", ErrTooLarge, resp.ContentLength)
	}

	body := io.Reader(resp.Body)
	if d.maxSize > 0 {
		body = io.LimitReader(resp.Body, d.maxSize+1)
	}
	n, err := io.Copy(w, body)
	if err != nil {
		return n, fmt.Errorf("read body: %w", err)
	}
	if d.maxSize > 0 && n > d.maxSize {
		return n, ErrTooLarge
	}
	return n, nil
}
