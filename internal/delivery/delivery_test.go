package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Investorold/KPi-Vault-sub000/internal/events"
)

func TestClient_PostTrigger(t *testing.T) {
	owner := common.HexToAddress("0xAbCd000000000000000000000000000000000001")
	workerAddr := common.HexToAddress("0x1111000000000000000000000000000000000002")
	threshold := 100.0

	var gotPath, gotKey, gotWallet string
	var gotBody triggerRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-alert-worker-key")
		gotWallet = r.Header.Get("x-wallet-address")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret-key", workerAddr)
	payload := events.TriggerPayload{
		CurrentValue: 150,
		Threshold:    &threshold,
		Direction:    "above",
		MetricID:     "0x1234",
		RuleID:       "rule-1",
	}

	err := client.PostTrigger(context.Background(), "rule-1", owner, "0x1234", 3, payload)
	if err != nil {
		t.Fatalf("PostTrigger() error = %v", err)
	}

	if gotPath != "/alerts/rule-1/trigger" {
		t.Errorf("PostTrigger() path = %q, want /alerts/rule-1/trigger", gotPath)
	}
	if gotKey != "secret-key" {
		t.Errorf("PostTrigger() x-alert-worker-key = %q, want secret-key", gotKey)
	}
	if gotWallet != workerAddr.Hex() {
		t.Errorf("PostTrigger() x-wallet-address = %q, want %q", gotWallet, workerAddr.Hex())
	}
	if gotBody.OwnerAddress != "0xabcd000000000000000000000000000000000001" {
		t.Errorf("PostTrigger() ownerAddress = %q, want lower-case owner", gotBody.OwnerAddress)
	}
	if gotBody.EntryIndex != 3 {
		t.Errorf("PostTrigger() entryIndex = %d, want 3", gotBody.EntryIndex)
	}
	if gotBody.Payload.CurrentValue != 150 {
		t.Errorf("PostTrigger() payload currentValue = %v, want 150", gotBody.Payload.CurrentValue)
	}
}

func TestClient_PostTriggerNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret-key", common.Address{})
	err := client.PostTrigger(context.Background(), "rule-1", common.Address{}, "0x1234", 0, events.TriggerPayload{})
	if err == nil {
		t.Error("PostTrigger() error = nil, want delivery failure on status 403")
	}
}

func TestClient_PostTriggerTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // closed before the call

	client := NewClient(server.URL, "secret-key", common.Address{})
	err := client.PostTrigger(context.Background(), "rule-1", common.Address{}, "0x1234", 0, events.TriggerPayload{})
	if err == nil {
		t.Error("PostTrigger() error = nil, want transport error")
	}
}
