// Package oracle models the capability-gated decryption service that can
// reveal the plaintext of an encrypted ledger entry. The capability is
// selected at construction time: Client when the relayer is reachable,
// Disabled when the worker runs listener-only.
package oracle

import (
	"context"
	"errors"

	"github.com/Investorold/KPi-Vault-sub000/internal/ledger"
)

// ValueScale is the fixed integer scaling applied by the vault: values are
// stored with two implied decimal places. Dividing the relayer's raw integer
// by this constant recovers the decimal metric value.
const ValueScale = 100

// ErrDisabled is returned by the Disabled stub. It is expected, not a
// failure; the worker degrades to listener-only behavior.
var ErrDisabled = errors.New("decryption oracle disabled")

// ErrMissingCiphertext marks an entry whose value handle is zero; there is
// nothing to decrypt for it.
var ErrMissingCiphertext = errors.New("entry has no ciphertext handle")

// DecryptedValue is one revealed ledger entry.
type DecryptedValue struct {
	Value float64
	Note  string
}

// Decryptor reveals the plaintext of an encrypted ledger entry.
type Decryptor interface {
	// Enabled reports whether the decryption capability is available.
	Enabled() bool

	// Decrypt reveals entry's value and, when present, its note in one
	// authenticated round trip.
	Decrypt(ctx context.Context, entry ledger.Entry) (*DecryptedValue, error)
}

// Disabled is the stub Decryptor used when the worker runs without the
// decryption capability.
type Disabled struct{}

func (Disabled) Enabled() bool { return false }

func (Disabled) Decrypt(context.Context, ledger.Entry) (*DecryptedValue, error) {
	return nil, ErrDisabled
}
