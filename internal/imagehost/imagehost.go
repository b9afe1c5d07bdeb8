// Package imagehost uploads images to the external image host.
package imagehost

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dimitrije/shopfront-api/internal/config"
	jmespath "github.com/jmespath-community/go-jmespath"
)

var ErrUploadFailed = errors.New("image upload failed")

// urlPath picks the public URL out of the host's response.
const urlPath = "data.display_url || data.url || url"

const MaxImageSize = 5 << 20

type Client struct {
	endpoint string
	key      string
	http     *http.Client
}

func NewClient(cfg config.ImageHostConfig, hc *http.Client) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("image host url is required")
	}
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{endpoint: cfg.URL, key: cfg.Key, http: hc}, nil
}

// Upload sends one image and returns its public URL. There is no retry;
// every failure wraps ErrUploadFailed.
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	part, err := w.CreateFormFile("image", filename)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	n, err := io.Copy(part, io.LimitReader(r, MaxImageSize+1))
	if err != nil {
		return "", fmt.Errorf("%w: read image: %v", ErrUploadFailed, err)
	}
	if n > MaxImageSize {
		return "", fmt.Errorf("%w: image larger than %d bytes", ErrUploadFailed, MaxImageSize)
	}
	if n == 0 {
		return "", fmt.Errorf("%w: empty image", ErrUploadFailed)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	endpoint := c.endpoint
	if c.key != "" {
		u, err := url.Parse(endpoint)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
		}
		q := u.Query()
		q.Set("key", c.key)
		u.RawQuery = q.Encode()
		endpoint = u.String()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status %d", ErrUploadFailed, resp.StatusCode)
	}

	var payload any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrUploadFailed, err)
	}

	value, err := jmespath.Search(urlPath, payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	publicURL, ok := value.(string)
	if !ok || publicURL == "" {
		return "", fmt.Errorf("%w: response has no url", ErrUploadFailed)
	}
	return publicURL, nil
}
