/**
 * @description
 * Client for the relay service's escrow release trigger, used by the scheduler.
 */
package releaseclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yaairnaavaa/veridoc-ai-sub000/internal/domain"
)

const releasePath = "/internal/escrow/release"

var ErrUnauthorized = errors.New("release trigger rejected the shared secret")

// Client triggers escrow release runs.
type Client struct {
	baseURL    string
	secret     string
	httpClient *http.Client
}

// NewClient creates a release trigger client. timeout bounds the whole run, which
// includes every ledger transfer of the batch.
func NewClient(baseURL, secret string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		secret:     strings.TrimSpace(secret),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// TriggerRelease runs one release batch and returns its summary.
func (c *Client) TriggerRelease(ctx context.Context) (*domain.ReleaseSummary, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("relay service base URL is not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+releasePath, bytes.NewBufferString("{}"))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.secret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read release response: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error   string `json:"error"`
			Details string `json:"details"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("relay service returned status %d: %s", resp.StatusCode, apiErr.Error)
		}
		return nil, fmt.Errorf("relay service returned status %d", resp.StatusCode)
	}

	var summary domain.ReleaseSummary
	if err := json.Unmarshal(body, &summary); err != nil {
		return nil, fmt.Errorf("failed to parse release summary: %w", err)
	}
	return &summary, nil
}
