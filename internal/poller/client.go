package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ticket-marketplace/models"
)

// HTTPStatusClient polls the purchase status endpoint over JSON/HTTP.
type HTTPStatusClient struct {
	baseURL string
	hc      *http.Client
}

func NewHTTPStatusClient(baseURL string) *HTTPStatusClient {
	return &HTTPStatusClient{
		baseURL: baseURL,
		hc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *HTTPStatusClient) PurchaseStatus(ctx context.Context, purchaseID string) (models.PurchaseStatus, error) {
	url := fmt.Sprintf("%s/api/v1/purchases/%s/status", c.baseURL, purchaseID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("poll status: unexpected response %d", resp.StatusCode)
	}

	var body struct {
		Status models.PurchaseStatus `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("poll status: decode: %w", err)
	}
	return body.Status, nil
}
