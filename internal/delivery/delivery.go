// Package delivery posts fired alerts to the notification backend.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Investorold/KPi-Vault-sub000/internal/events"
)

const requestTimeout = 30 * time.Second

// Client sends worker-authenticated trigger notifications. There is no retry
// here: a failed delivery releases the processing key and waits for the
// event to be redelivered.
type Client struct {
	baseURL    string
	workerKey  string
	workerAddr common.Address
	httpClient *http.Client
}

// NewClient creates a delivery client. workerKey is the shared secret the
// backend expects in x-alert-worker-key; workerAddr identifies the worker in
// x-wallet-address.
func NewClient(baseURL, workerKey string, workerAddr common.Address) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		workerKey:  workerKey,
		workerAddr: workerAddr,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

type triggerRequest struct {
	OwnerAddress string                `json:"ownerAddress"`
	MetricID     string                `json:"metricId"`
	EntryIndex   uint64                `json:"entryIndex"`
	Payload      events.TriggerPayload `json:"payload"`
}

// PostTrigger notifies the backend that ruleID fired for one ledger entry.
// Any transport error or non-2xx response is a delivery failure.
func (c *Client) PostTrigger(ctx context.Context, ruleID string, owner common.Address, metricKey string, entryIndex uint64, payload events.TriggerPayload) error {
	body, err := json.Marshal(triggerRequest{
		OwnerAddress: strings.ToLower(owner.Hex()),
		MetricID:     metricKey,
		EntryIndex:   entryIndex,
		Payload:      payload,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal trigger payload: %w", err)
	}

	url := fmt.Sprintf("%s/alerts/%s/trigger", c.baseURL, ruleID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create delivery request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-alert-worker-key", c.workerKey)
	req.Header.Set("x-wallet-address", c.workerAddr.Hex())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delivery request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("delivery backend returned status %d", resp.StatusCode)
	}
	return nil
}
