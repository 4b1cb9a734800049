// Package ledger wraps the KPI vault contract: the MetricRecorded event
// subscription, encrypted entry reads, and the best-effort audit-log write.
package ledger

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// ErrNotAuthorized marks an audit write rejected because the worker does not
// (yet) hold the auditor role on the vault. The pipeline tolerates it.
var ErrNotAuthorized = errors.New("worker not authorized for audit log")

// Entry is one stored metric entry. The value and note fields are opaque
// ciphertext handles until the decryption oracle reveals them; a zero handle
// means no ciphertext was recorded.
type Entry struct {
	MetricID    common.Hash
	Timestamp   uint64
	ValueHandle common.Hash
	NoteHandle  common.Hash
}

// vaultABI describes the slice of the vault contract the worker touches.
const vaultABI = `[
  {"type":"event","name":"MetricRecorded","anonymous":false,"inputs":[
    {"name":"owner","type":"address","indexed":true},
    {"name":"metricId","type":"bytes32","indexed":true},
    {"name":"timestamp","type":"uint64","indexed":false},
    {"name":"entryIndex","type":"uint64","indexed":false}]},
  {"type":"function","name":"getEntries","stateMutability":"view","inputs":[
    {"name":"owner","type":"address"},
    {"name":"metricId","type":"bytes32"}],
   "outputs":[{"name":"","type":"tuple[]","components":[
    {"name":"metricId","type":"bytes32"},
    {"name":"timestamp","type":"uint64"},
    {"name":"value","type":"bytes32"},
    {"name":"note","type":"bytes32"}]}]},
  {"type":"function","name":"logTrigger","stateMutability":"nonpayable","inputs":[
    {"name":"owner","type":"address"},
    {"name":"metricId","type":"bytes32"},
    {"name":"entryIndex","type":"uint64"},
    {"name":"ruleCommitment","type":"bytes32"},
    {"name":"timestamp","type":"uint64"}],"outputs":[]}
]`

// vaultEntry mirrors the contract's entry tuple for ABI decoding.
type vaultEntry struct {
	MetricId  [32]byte
	Timestamp uint64
	Value     [32]byte
	Note      [32]byte
}
