package edgar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrDocumentUnavailable marks a fetch that failed for transient upstream
// reasons (network error, timeout, non-200). Callers treat it as retryable
// on a future run and must never cache it.
var ErrDocumentUnavailable = errors.New("document unavailable")

// Client is an HTTP client for the EDGAR full-text archive.
// SEC requires a descriptive User-Agent on every request.
type Client struct {
	userAgent  string
	httpClient *http.Client
}

// NewClient creates a new EDGAR client.
func NewClient(userAgent string) *Client {
	return &Client{
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Fetch retrieves one archive URL and returns its body as text. Any
// transport failure, timeout, or non-200 status surfaces as
// ErrDocumentUnavailable so a hung upstream converts to a per-filing
// failure rather than stalling the batch.
func (c *Client) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrDocumentUnavailable, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %s returned status %d", ErrDocumentUnavailable, url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read body of %s: %v", ErrDocumentUnavailable, url, err)
	}
	return string(body), nil
}
