package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/codescrafter/luxury-backend-sub000/internal/apperr"
)

// Client uploads rendered artifacts (QR PNGs) to the media service and
// returns a durable URL. Bounded timeout, bounded retries.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Retries    int
}

func NewClient(baseURL string, timeout time.Duration, retries int) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: timeout},
		Retries:    retries,
	}
}

type uploadResponse struct {
	URL string `json:"url"`
}

func (c *Client) Upload(ctx context.Context, filename string, data []byte) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= c.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", apperr.Unavailable(ctx.Err(), "media upload cancelled")
			case <-time.After(time.Duration(attempt) * 250 * time.Millisecond):
			}
		}

		url, retryable, err := c.uploadOnce(ctx, filename, data)
		if err == nil {
			return url, nil
		}
		if !retryable {
			return "", err
		}
		lastErr = err
	}
	return "", apperr.Unavailable(lastErr, "media service unreachable")
}

func (c *Client) uploadOnce(ctx context.Context, filename string, data []byte) (string, bool, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", false, err
	}
	if _, err := part.Write(data); err != nil {
		return "", false, err
	}
	if err := writer.Close(); err != nil {
		return "", false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/internal/v1/media", &body)
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return "", true, fmt.Errorf("media service returned status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", false, apperr.Unavailable(fmt.Errorf("media service returned status %d", resp.StatusCode), "media upload rejected")
	}

	var uploaded uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return "", false, apperr.Unavailable(err, "media service returned malformed response")
	}
	return uploaded.URL, false, nil
}
