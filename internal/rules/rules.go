// Package rules defines the alert rule model and the HTTP client for the
// external rule store.
package rules

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Status is the lifecycle state of an alert rule. Only active rules are
// eligible for matching.
type Status string

const (
	StatusActive  Status = "active"
	StatusPaused  Status = "paused"
	StatusDeleted Status = "deleted"
)

// Config holds the condition parameters of a rule. A rule may configure a
// threshold comparison, a percent-change comparison, or both; percent-change
// wins when a previous value is available.
type Config struct {
	Direction     string   `json:"direction,omitempty"`
	Threshold     *float64 `json:"threshold,omitempty"`
	ChangePercent *float64 `json:"changePercent,omitempty"`
}

// AlertRule is an owner-defined alert condition stored in the rule store.
// The worker only reads rules; creation and updates happen elsewhere.
type AlertRule struct {
	ID              string   `json:"id"`
	Owner           string   `json:"owner"`
	MetricID        string   `json:"metricId"`
	Name            string   `json:"name"`
	RuleType        string   `json:"ruleType"`
	Config          Config   `json:"config"`
	Commitment      string   `json:"commitment"`
	Channels        []string `json:"channels"`
	Status          Status   `json:"status"`
	LastTriggeredAt int64    `json:"lastTriggeredAt,omitempty"`
}

// MetricKey returns the lower-case 0x hex keccak256 hash of the rule's
// opaque metric identifier. Ledger events carry the hashed form, so this is
// the comparable key for matching.
func (r *AlertRule) MetricKey() string {
	return crypto.Keccak256Hash([]byte(r.MetricID)).Hex()
}

// CommitmentHash parses the rule's commitment into the 32-byte form written
// to the audit log.
func (r *AlertRule) CommitmentHash() common.Hash {
	return common.HexToHash(r.Commitment)
}
