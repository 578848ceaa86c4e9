package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/codescrafter/luxury-backend-sub000/internal/apperr"
	"github.com/codescrafter/luxury-backend-sub000/internal/models"
)

// TokenSource yields a service-to-service bearer token.
type TokenSource func(ctx context.Context) (string, error)

// Client talks to the product catalog service. Lookups carry a bounded
// timeout and a small retry budget; exhaustion surfaces as Unavailable,
// never as a business-rule failure.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Token      TokenSource
	Retries    int
}

func NewClient(baseURL string, timeout time.Duration, retries int, token TokenSource) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: timeout},
		Token:      token,
		Retries:    retries,
	}
}

// Lookup fetches the catalog's view of a product. NotFound means the
// product does not exist; transient transport failures are retried.
func (c *Client) Lookup(ctx context.Context, productType models.ProductType, productID string) (*models.Product, error) {
	url := fmt.Sprintf("%s/internal/v1/products/%s/%s", c.BaseURL, productType, productID)

	var lastErr error
	for attempt := 0; attempt <= c.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, apperr.Unavailable(ctx.Err(), "catalog lookup cancelled")
			case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
			}
		}

		product, retryable, err := c.lookupOnce(ctx, url)
		if err == nil {
			return product, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}
	return nil, apperr.Unavailable(lastErr, "catalog service unreachable")
}

func (c *Client) lookupOnce(ctx context.Context, url string) (*models.Product, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}
	if c.Token != nil {
		token, err := c.Token(ctx)
		if err != nil {
			return nil, true, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var product models.Product
		if err := json.NewDecoder(resp.Body).Decode(&product); err != nil {
			return nil, false, apperr.Unavailable(err, "catalog returned malformed product")
		}
		return &product, false, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, apperr.NotFound("product not found in catalog")
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("catalog returned status %d", resp.StatusCode)
	default:
		return nil, false, apperr.Unavailable(fmt.Errorf("catalog returned status %d", resp.StatusCode), "catalog lookup failed")
	}
}
