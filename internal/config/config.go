// Package config provides configuration parsing and validation for the
// alert worker.
package config

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config holds all configuration parameters for the alert worker. Endpoint
// values come from flags with environment fallbacks; the two secrets
// (WorkerPrivateKey, DeliveryKey) come from the environment only.
type Config struct {
	LedgerRPCURL      string
	LedgerContract    string
	RuleStoreURL      string
	DeliveryURL       string
	DeliveryKey       string
	WorkerPrivateKey  string
	OracleURL         string // empty = listener-only mode
	RedisAddr         string // empty = in-memory gate, no metrics reporting
	HeartbeatInterval time.Duration
	WorkerCount       int
}

// Validate checks that all required configuration fields are set and have
// valid values. The process refuses to start when it fails.
func (c *Config) Validate() error {
	if c.LedgerRPCURL == "" {
		return fmt.Errorf("ledger-rpc-url cannot be empty")
	}
	if c.LedgerContract == "" {
		return fmt.Errorf("ledger-contract cannot be empty")
	}
	if !common.IsHexAddress(c.LedgerContract) {
		return fmt.Errorf("ledger-contract %q is not a valid address", c.LedgerContract)
	}
	if c.RuleStoreURL == "" {
		return fmt.Errorf("rule-store-url cannot be empty")
	}
	if c.DeliveryURL == "" {
		return fmt.Errorf("delivery-url cannot be empty")
	}
	if c.DeliveryKey == "" {
		return fmt.Errorf("ALERT_WORKER_KEY cannot be empty")
	}
	if c.WorkerPrivateKey == "" {
		return fmt.Errorf("WORKER_PRIVATE_KEY cannot be empty")
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat-interval must be > 0")
	}
	if c.WorkerCount <= 0 {
		return fmt.Errorf("worker-count must be > 0")
	}
	return nil
}

// ListenerOnly reports whether the worker runs without the decryption
// capability.
func (c *Config) ListenerOnly() bool {
	return c.OracleURL == ""
}
