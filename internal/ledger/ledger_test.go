package ledger

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(vaultABI))
	if err != nil {
		t.Fatalf("abi.JSON() error = %v", err)
	}
	return &Client{abi: parsed}
}

func metricRecordedLog(t *testing.T, c *Client, owner common.Address, metricID common.Hash, timestamp, entryIndex uint64) types.Log {
	t.Helper()
	data, err := c.abi.Events["MetricRecorded"].Inputs.NonIndexed().Pack(timestamp, entryIndex)
	if err != nil {
		t.Fatalf("packing event data: %v", err)
	}
	return types.Log{
		Topics: []common.Hash{
			c.abi.Events["MetricRecorded"].ID,
			common.BytesToHash(owner.Bytes()),
			metricID,
		},
		Data: data,
	}
}

func TestParseMetricRecorded(t *testing.T) {
	c := newTestClient(t)
	owner := common.HexToAddress("0xAbCd000000000000000000000000000000000001")
	metricID := crypto.Keccak256Hash([]byte("revenue"))

	ev, err := c.parseMetricRecorded(metricRecordedLog(t, c, owner, metricID, 1700000000, 7))
	if err != nil {
		t.Fatalf("parseMetricRecorded() error = %v", err)
	}
	if ev.Owner != owner {
		t.Errorf("Owner = %s, want %s", ev.Owner.Hex(), owner.Hex())
	}
	if ev.MetricID != metricID {
		t.Errorf("MetricID = %s, want %s", ev.MetricID.Hex(), metricID.Hex())
	}
	if ev.Timestamp != 1700000000 {
		t.Errorf("Timestamp = %d, want 1700000000", ev.Timestamp)
	}
	if ev.EntryIndex != 7 {
		t.Errorf("EntryIndex = %d, want 7", ev.EntryIndex)
	}
}

func TestParseMetricRecorded_TooFewTopics(t *testing.T) {
	c := newTestClient(t)
	lg := types.Log{Topics: []common.Hash{c.abi.Events["MetricRecorded"].ID}}

	if _, err := c.parseMetricRecorded(lg); err == nil {
		t.Error("parseMetricRecorded() error = nil, want error for missing topics")
	}
}

func TestParseMetricRecorded_MalformedData(t *testing.T) {
	c := newTestClient(t)
	owner := common.HexToAddress("0xAbCd000000000000000000000000000000000001")
	lg := metricRecordedLog(t, c, owner, crypto.Keccak256Hash([]byte("revenue")), 1, 1)
	lg.Data = lg.Data[:len(lg.Data)-1]

	if _, err := c.parseMetricRecorded(lg); err == nil {
		t.Error("parseMetricRecorded() error = nil, want error for truncated data")
	}
}

func TestClassifyWriteError(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		wantAuthorized bool
	}{
		{name: "auditor revert", err: fmt.Errorf("execution reverted: caller not authorized"), wantAuthorized: true},
		{name: "unauthorized caller", err: fmt.Errorf("execution reverted: Unauthorized()"), wantAuthorized: true},
		{name: "out of gas", err: fmt.Errorf("gas required exceeds allowance"), wantAuthorized: false},
		{name: "connection drop", err: fmt.Errorf("connection reset by peer"), wantAuthorized: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyWriteError(tt.err)
			if got == nil {
				t.Fatal("classifyWriteError() = nil, want error")
			}
			if errors.Is(got, ErrNotAuthorized) != tt.wantAuthorized {
				t.Errorf("errors.Is(got, ErrNotAuthorized) = %v, want %v", !tt.wantAuthorized, tt.wantAuthorized)
			}
		})
	}
}
