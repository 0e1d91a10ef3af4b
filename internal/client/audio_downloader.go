package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// AudioDownloader fetches media files. Audio is served from public media
// URLs, so no credentials are attached.
type AudioDownloader struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewAudioDownloader(baseURL string, timeout time.Duration) *AudioDownloader {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &AudioDownloader{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

func (d *AudioDownloader) resolve(src string) string {
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") || d.BaseURL == "" {
		return src
	}
	if !strings.HasPrefix(src, "/") {
		src = "/" + src
	}
	return d.BaseURL + src
}

func (d *AudioDownloader) Fetch(ctx context.Context, src string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.resolve(src), nil)
	if err != nil {
		return nil, "", fmt.Errorf("build audio request: %w", err)
	}
	resp, err := d.HTTPClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download %s: %w: %v", src, ErrOffline, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download %s: %s", src, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read audio %s: %w", src, err)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}
	return body, contentType, nil
}
