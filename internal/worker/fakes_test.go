package worker

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Investorold/KPi-Vault-sub000/internal/events"
	"github.com/Investorold/KPi-Vault-sub000/internal/ledger"
	"github.com/Investorold/KPi-Vault-sub000/internal/oracle"
	"github.com/Investorold/KPi-Vault-sub000/internal/rules"
)

// FakeRuleSource is a test fake for RuleSource.
type FakeRuleSource struct {
	Rules    []rules.AlertRule
	FetchErr error
	Calls    int
}

func (f *FakeRuleSource) Fetch(ctx context.Context, owner common.Address) ([]rules.AlertRule, error) {
	f.Calls++
	if f.FetchErr != nil {
		return nil, f.FetchErr
	}
	return f.Rules, nil
}

// FakeEntrySource is a test fake for EntrySource.
type FakeEntrySource struct {
	Result   []ledger.Entry
	FetchErr error
	Calls    int
}

func (f *FakeEntrySource) Entries(ctx context.Context, owner common.Address, metricID common.Hash) ([]ledger.Entry, error) {
	f.Calls++
	if f.FetchErr != nil {
		return nil, f.FetchErr
	}
	return f.Result, nil
}

// FakeAuditLogger is a test fake for AuditLogger.
type FakeAuditLogger struct {
	LogErr error
	Calls  int
}

func (f *FakeAuditLogger) LogTrigger(ctx context.Context, owner common.Address, metricID common.Hash, entryIndex uint64, commitment common.Hash) error {
	f.Calls++
	return f.LogErr
}

// SentTrigger records one PostTrigger call.
type SentTrigger struct {
	RuleID     string
	EntryIndex uint64
	Payload    events.TriggerPayload
}

// FakeTriggerSender is a test fake for TriggerSender.
type FakeTriggerSender struct {
	Sent    []SentTrigger
	PostErr error
}

func (f *FakeTriggerSender) PostTrigger(ctx context.Context, ruleID string, owner common.Address, metricKey string, entryIndex uint64, payload events.TriggerPayload) error {
	if f.PostErr != nil {
		return f.PostErr
	}
	f.Sent = append(f.Sent, SentTrigger{RuleID: ruleID, EntryIndex: entryIndex, Payload: payload})
	return nil
}

// FakeDecryptor is a test fake for oracle.Decryptor keyed by value handle.
type FakeDecryptor struct {
	Offline bool
	Values  map[common.Hash]*oracle.DecryptedValue
	Errs    map[common.Hash]error
	Calls   int
}

func (f *FakeDecryptor) Enabled() bool { return !f.Offline }

func (f *FakeDecryptor) Decrypt(ctx context.Context, entry ledger.Entry) (*oracle.DecryptedValue, error) {
	f.Calls++
	if err, ok := f.Errs[entry.ValueHandle]; ok {
		return nil, err
	}
	if v, ok := f.Values[entry.ValueHandle]; ok {
		return v, nil
	}
	return nil, oracle.ErrMissingCiphertext
}
