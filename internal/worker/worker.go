package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Investorold/KPi-Vault-sub000/internal/dedup"
	"github.com/Investorold/KPi-Vault-sub000/internal/evaluator"
	"github.com/Investorold/KPi-Vault-sub000/internal/events"
	"github.com/Investorold/KPi-Vault-sub000/internal/ledger"
	"github.com/Investorold/KPi-Vault-sub000/internal/matcher"
	"github.com/Investorold/KPi-Vault-sub000/internal/metrics"
	"github.com/Investorold/KPi-Vault-sub000/internal/oracle"
	"github.com/Investorold/KPi-Vault-sub000/internal/rules"
)

// DefaultWorkerCount is the number of goroutines draining the event sink.
const DefaultWorkerCount = 4

// Worker runs the pipeline for each incoming metric event: fetch rules,
// match, claim, decrypt, evaluate, audit, deliver. All failures are
// contained at the smallest scope; nothing here terminates the run loop.
type Worker struct {
	rules     RuleSource
	entries   EntrySource
	audit     AuditLogger
	sender    TriggerSender
	decryptor oracle.Decryptor
	gate      dedup.Gate
	metrics   metrics.Recorder
	workers   int
}

// New creates a Worker. The gate is injected so tests own a fresh one; m may
// be nil for no metrics reporting.
func New(ruleSource RuleSource, entrySource EntrySource, audit AuditLogger, sender TriggerSender, decryptor oracle.Decryptor, gate dedup.Gate, m metrics.Recorder) *Worker {
	if m == nil {
		m = metrics.NoOp{}
	}
	return &Worker{
		rules:     ruleSource,
		entries:   entrySource,
		audit:     audit,
		sender:    sender,
		decryptor: decryptor,
		gate:      gate,
		metrics:   m,
		workers:   DefaultWorkerCount,
	}
}

// SetWorkerCount overrides the sink drain concurrency. Must be called before
// Run.
func (w *Worker) SetWorkerCount(n int) {
	if n > 0 {
		w.workers = n
	}
}

// Run drains sink with a fixed pool of goroutines until ctx is cancelled or
// sink is closed. Events may arrive and be handled concurrently; the gate is
// the only state shared between them.
func (w *Worker) Run(ctx context.Context, sink <-chan events.MetricEvent) {
	slog.Info("Starting alert pipeline", "workers", w.workers)

	var wg sync.WaitGroup
	for i := 0; i < w.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-sink:
					if !ok {
						return
					}
					w.metrics.RecordReceived()
					w.HandleEvent(ctx, ev)
				}
			}
		}()
	}
	wg.Wait()

	slog.Info("Alert pipeline stopped")
}

// HandleEvent runs the full pipeline for one MetricRecorded event.
func (w *Worker) HandleEvent(ctx context.Context, ev events.MetricEvent) {
	start := time.Now()
	owner := ev.Owner.Hex()
	metricKey := ev.MetricID.Hex()

	ruleList, err := w.rules.Fetch(ctx, ev.Owner)
	if err != nil {
		w.metrics.RecordError()
		slog.Error("Dropping event: rule fetch failed",
			"owner", owner, "metric", metricKey, "entry", ev.EntryIndex, "error", err)
		return
	}

	matched := matcher.Match(metricKey, ruleList)
	if len(matched) == 0 {
		slog.Debug("Dropping event: no matching rules",
			"owner", owner, "metric", metricKey, "entry", ev.EntryIndex)
		return
	}

	if !w.decryptor.Enabled() {
		slog.Info("Dropping event: decryption capability disabled, listener-only mode",
			"owner", owner, "metric", metricKey, "entry", ev.EntryIndex, "matched_rules", len(matched))
		return
	}

	entries, err := w.entries.Entries(ctx, ev.Owner, ev.MetricID)
	if err != nil {
		w.metrics.RecordError()
		slog.Error("Dropping event: entry fetch failed",
			"owner", owner, "metric", metricKey, "entry", ev.EntryIndex, "error", err)
		return
	}
	if ev.EntryIndex >= uint64(len(entries)) {
		w.metrics.RecordError()
		slog.Error("Dropping event: entry index out of range",
			"owner", owner, "metric", metricKey, "entry", ev.EntryIndex, "entries", len(entries))
		return
	}

	// One decryption per entry per event; rules on the same entry share it.
	cache := make(map[uint64]*oracle.DecryptedValue)

	for i := range matched {
		w.metrics.IncrementCustom("rules_matched")
		w.processRule(ctx, ev, matched[i], metricKey, entries, cache)
	}

	w.metrics.RecordProcessed(time.Since(start))
}

// processRule evaluates one matched rule. A failure here never aborts
// sibling rules.
func (w *Worker) processRule(ctx context.Context, ev events.MetricEvent, rule rules.AlertRule, metricKey string, entries []ledger.Entry, cache map[uint64]*oracle.DecryptedValue) {
	key := dedup.Key(ev.Owner.Hex(), metricKey, ev.EntryIndex, rule.ID)

	claimed, err := w.gate.TryClaim(ctx, key)
	if err != nil {
		w.metrics.RecordError()
		slog.Error("Skipping rule: claim check failed", "key", key, "error", err)
		return
	}
	if !claimed {
		slog.Debug("Skipping rule: key already claimed or processed", "key", key)
		return
	}

	current, err := w.decryptEntry(ctx, entries, ev.EntryIndex, cache)
	if err != nil {
		w.release(ctx, key)
		w.metrics.RecordError()
		slog.Error("Releasing rule: decryption failed",
			"key", key, "rule", rule.ID, "error", err)
		return
	}

	var previous *float64
	if rule.Config.ChangePercent != nil && ev.EntryIndex > 0 {
		prev, err := w.decryptEntry(ctx, entries, ev.EntryIndex-1, cache)
		if err != nil {
			// A percent-change rule degrades to no-previous-value rather
			// than aborting; it then never triggers.
			slog.Warn("Previous entry decryption failed, evaluating without it",
				"key", key, "rule", rule.ID, "error", err)
		} else {
			previous = &prev.Value
		}
	}

	decision := evaluator.Evaluate(rule.Config, current.Value, previous)
	if !decision.Triggered {
		w.release(ctx, key)
		slog.Debug("Rule not triggered", "key", key, "rule", rule.ID, "value", current.Value)
		return
	}

	payload := buildPayload(rule, metricKey, decision)

	w.logAudit(ctx, ev, rule, key)

	if err := w.sender.PostTrigger(ctx, rule.ID, ev.Owner, metricKey, ev.EntryIndex, payload); err != nil {
		w.release(ctx, key)
		w.metrics.RecordError()
		w.metrics.IncrementCustom("delivery_failures")
		slog.Error("Delivery failed, key released for redelivery",
			"key", key, "rule", rule.ID, "error", err)
		return
	}

	if err := w.gate.MarkProcessed(ctx, key); err != nil {
		slog.Warn("Failed to mark key processed", "key", key, "error", err)
	}
	w.metrics.IncrementCustom("triggers_delivered")
	slog.Info("Alert triggered and delivered",
		"key", key, "rule", rule.ID, "value", current.Value)
}

// decryptEntry decrypts one entry through the per-event cache.
func (w *Worker) decryptEntry(ctx context.Context, entries []ledger.Entry, index uint64, cache map[uint64]*oracle.DecryptedValue) (*oracle.DecryptedValue, error) {
	if v, ok := cache[index]; ok {
		return v, nil
	}
	if index >= uint64(len(entries)) {
		return nil, fmt.Errorf("entry index %d out of range", index)
	}
	v, err := w.decryptor.Decrypt(ctx, entries[index])
	if err != nil {
		return nil, err
	}
	cache[index] = v
	return v, nil
}

// logAudit writes the on-ledger audit record. It never blocks delivery: an
// authorization failure is a warning, anything else an error, and both fall
// through to the delivery POST.
func (w *Worker) logAudit(ctx context.Context, ev events.MetricEvent, rule rules.AlertRule, key string) {
	err := w.audit.LogTrigger(ctx, ev.Owner, ev.MetricID, ev.EntryIndex, rule.CommitmentHash())
	switch {
	case err == nil:
	case errors.Is(err, ledger.ErrNotAuthorized):
		w.metrics.IncrementCustom("audit_skipped_unauthorized")
		slog.Warn("Audit log skipped: worker not authorized", "key", key)
	default:
		w.metrics.RecordError()
		slog.Error("Audit log write failed", "key", key, "error", err)
	}
}

func (w *Worker) release(ctx context.Context, key string) {
	if err := w.gate.Release(ctx, key); err != nil {
		slog.Warn("Failed to release processing key", "key", key, "error", err)
	}
}

func buildPayload(rule rules.AlertRule, metricKey string, decision evaluator.Decision) events.TriggerPayload {
	ev := decision.Evidence
	return events.TriggerPayload{
		CurrentValue:        ev.CurrentValue,
		PreviousValue:       ev.PreviousValue,
		Threshold:           ev.Threshold,
		Direction:           ev.Direction,
		ChangePercentTarget: ev.ChangePercentTarget,
		ChangePercentActual: ev.ChangePercentActual,
		MetricID:            metricKey,
		RuleID:              rule.ID,
	}
}
