package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const requestTimeout = 10 * time.Second

// Client fetches alert rules from the rule store service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a rule store client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

type alertsResponse struct {
	Alerts []AlertRule `json:"alerts"`
}

// Fetch returns all alert rules configured for owner. The owner address is
// normalized to lower-case hex in the request path. Callers filter by status
// during matching; the store returns every rule it holds for the owner.
func (c *Client) Fetch(ctx context.Context, owner common.Address) ([]AlertRule, error) {
	url := fmt.Sprintf("%s/alerts/%s", c.baseURL, strings.ToLower(owner.Hex()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create rule store request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rule store request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("rule store returned status %d", resp.StatusCode)
	}

	var parsed alertsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode rule store response: %w", err)
	}

	return parsed.Alerts, nil
}
