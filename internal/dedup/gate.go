// Package dedup provides the idempotency gate that guarantees at most one
// concurrent evaluation per processing key.
package dedup

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Key derives the processing key for one (event, rule) pairing. The owner
// address is normalized to lower case so the same event always produces the
// same key.
func Key(owner, metricKey string, entryIndex uint64, ruleID string) string {
	return fmt.Sprintf("%s:%s:%d:%s", strings.ToLower(owner), metricKey, entryIndex, ruleID)
}

// Gate tracks processing keys through their claim lifecycle:
// unseen -> in flight -> processed, or back to unseen on release.
type Gate interface {
	// TryClaim atomically claims key iff it is neither in flight nor
	// processed. A false return means another evaluation owns the key (or
	// already finished it) and the caller must skip it, not retry.
	TryClaim(ctx context.Context, key string) (bool, error)

	// MarkProcessed moves a claimed key to its terminal processed state.
	// Processed keys are never re-evaluated.
	MarkProcessed(ctx context.Context, key string) error

	// Release returns a claimed key to the unseen state so a redelivered
	// event can retry it.
	Release(ctx context.Context, key string) error
}

type keyState int

const (
	stateInFlight keyState = iota + 1
	stateProcessed
)

// MemoryGate is the in-process Gate. Keys are remembered for the process
// lifetime; the map grows unbounded, which is accepted for this worker.
type MemoryGate struct {
	mu   sync.Mutex
	keys map[string]keyState
}

// NewMemoryGate creates an empty in-memory gate.
func NewMemoryGate() *MemoryGate {
	return &MemoryGate{keys: make(map[string]keyState)}
}

func (g *MemoryGate) TryClaim(_ context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.keys[key]; exists {
		return false, nil
	}
	g.keys[key] = stateInFlight
	return true, nil
}

func (g *MemoryGate) MarkProcessed(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.keys[key] = stateProcessed
	return nil
}

func (g *MemoryGate) Release(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.keys[key] == stateInFlight {
		delete(g.keys, key)
	}
	return nil
}
