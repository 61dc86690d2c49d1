// Package imagehost uploads chat attachments to an ImgBB-compatible image
// host and returns the hosted URL.
package imagehost

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const DefaultUploadURL = "https://api.imgbb.com/1/upload"

var (
	ErrUploadRejected   = errors.New("image host rejected upload")
	ErrUnexpectedStatus = errors.New("image host returned unexpected status")
	ErrEmptyImage       = errors.New("image is empty")
)

type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
	log      *zap.Logger
}

func NewClient(endpoint, apiKey string, timeout time.Duration, log *zap.Logger) *Client {
	if endpoint == "" {
		endpoint = DefaultUploadURL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: timeout},
		log:      log,
	}
}

type uploadResponse struct {
	Success bool `json:"success"`
	Data    struct {
		URL string `json:"url"`
	} `json:"data"`
	Error json.RawMessage `json:"error,omitempty"`
}

// Upload reads the image, posts it base64-encoded as a form body and returns
// the hosted URL.
func (c *Client) Upload(ctx context.Context, image io.Reader) (string, error) {
	raw, err := io.ReadAll(image)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	if len(raw) == 0 {
		return "", ErrEmptyImage
	}

	form := url.Values{}
	form.Set("key", c.apiKey)
	form.Set("image", base64.StdEncoding.EncodeToString(raw))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Error("image upload request failed", zap.Error(err))
		return "", fmt.Errorf("upload image: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read upload response: %w", err)
	}

	var out uploadResponse
	decodeErr := json.Unmarshal(body, &out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Error("image upload failed",
			zap.Int("status", resp.StatusCode),
			zap.String("error", errorText(out.Error)))
		return "", fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("decode upload response: %w", decodeErr)
	}
	if !out.Success {
		msg := errorText(out.Error)
		if msg == "" {
			msg = "upload failed"
		}
		c.log.Error("image upload rejected", zap.String("error", msg))
		return "", fmt.Errorf("%w: %s", ErrUploadRejected, msg)
	}
	if out.Data.URL == "" {
		return "", fmt.Errorf("%w: response has no url", ErrUploadRejected)
	}

	c.log.Debug("image uploaded", zap.String("url", out.Data.URL), zap.Int("bytes", len(raw)))
	return out.Data.URL, nil
}

// errorText renders the error field, which ImgBB sends either as a string
// or as an object.
func errorText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return string(raw)
}
