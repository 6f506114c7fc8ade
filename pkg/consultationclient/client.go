/**
 * @description
 * Client for the external consultation record store: lists consultations whose
 * escrow is due for release and acknowledges a completed release.
 */
package consultationclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yaairnaavaa/veridoc-ai-sub000/internal/domain"
)

// Client is a client for the consultation record store.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a record store client. baseURL is the consultations collection,
// e.g. https://app.example.com/api/consultations.
func NewClient(baseURL string, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// GetPendingRelease returns consultations that are delivered, unreleased and past
// their holdback. The store may answer with a bare array or {"consultations": [...]}.
func (c *Client) GetPendingRelease(ctx context.Context) ([]domain.Consultation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/pending-release", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read pending-release response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("record store returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return decodeConsultations(body)
}

func decodeConsultations(body []byte) ([]domain.Consultation, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var list []domain.Consultation
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("failed to parse pending-release response: %w", err)
		}
		return list, nil
	}
	var wrapped struct {
		Consultations []domain.Consultation `json:"consultations"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to parse pending-release response: %w", err)
	}
	return wrapped.Consultations, nil
}

// MarkReleased records the payout hashes against the consultation.
func (c *Client) MarkReleased(ctx context.Context, consultationID string, payload domain.ReleasePayload) error {
	if strings.TrimSpace(consultationID) == "" {
		return fmt.Errorf("consultation ID is required")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/release", c.baseURL, url.PathEscape(consultationID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("record store returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Internal-API-Key", c.apiKey)
	}
}
