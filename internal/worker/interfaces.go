// Package worker drives the metric-event alert pipeline.
package worker

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Investorold/KPi-Vault-sub000/internal/events"
	"github.com/Investorold/KPi-Vault-sub000/internal/ledger"
	"github.com/Investorold/KPi-Vault-sub000/internal/rules"
)

// RuleSource returns the alert rules configured for an owner.
type RuleSource interface {
	Fetch(ctx context.Context, owner common.Address) ([]rules.AlertRule, error)
}

// EntrySource reads the encrypted entries stored for an owner's metric.
type EntrySource interface {
	Entries(ctx context.Context, owner common.Address, metricID common.Hash) ([]ledger.Entry, error)
}

// AuditLogger writes the best-effort on-ledger audit record for a fired
// rule.
type AuditLogger interface {
	LogTrigger(ctx context.Context, owner common.Address, metricID common.Hash, entryIndex uint64, commitment common.Hash) error
}

// TriggerSender delivers a fired alert to the notification backend.
type TriggerSender interface {
	PostTrigger(ctx context.Context, ruleID string, owner common.Address, metricKey string, entryIndex uint64, payload events.TriggerPayload) error
}
