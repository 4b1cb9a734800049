// Package events defines the event and payload structures that flow through
// the alert worker pipeline.
package events

import "github.com/ethereum/go-ethereum/common"

// MetricEvent is one MetricRecorded notification emitted by the KPI vault
// ledger. It is immutable; the worker receives one per recorded entry.
type MetricEvent struct {
	Owner      common.Address
	MetricID   common.Hash
	Timestamp  uint64
	EntryIndex uint64
}

// TriggerPayload carries the evidence for a fired alert rule. It is built
// once per trigger and handed unchanged to the audit log and the
// notification backend.
type TriggerPayload struct {
	CurrentValue        float64  `json:"currentValue"`
	PreviousValue       *float64 `json:"previousValue,omitempty"`
	Threshold           *float64 `json:"threshold,omitempty"`
	Direction           string   `json:"direction,omitempty"`
	ChangePercentTarget *float64 `json:"changePercentTarget,omitempty"`
	ChangePercentActual *float64 `json:"changePercentActual,omitempty"`
	MetricID            string   `json:"metricId"`
	RuleID              string   `json:"ruleId"`
}
