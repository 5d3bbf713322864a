// Copyright (c) 2025 The utxocore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package psbtmatch

import (
	"errors"
	"fmt"
)

var (
	// ErrCorruptMetadata is the sentinel wrapped by every
	// CorruptionError. Metadata that claims ownership by this wallet's
	// keys but cannot be reconciled with the actual script is never
	// downgraded to "external": it signals corruption or tampering and
	// must halt processing of the transaction.
	ErrCorruptMetadata = errors.New("corrupt wallet metadata")

	// ErrMissingUtxoInfo is returned when an input carries derivation
	// metadata claiming this wallet's keys but neither a witness UTXO
	// nor the full previous transaction, leaving no script to verify
	// the claim against. Metadata naming only foreign keys does not
	// trigger this: such inputs are simply external.
	ErrMissingUtxoInfo = errors.New("input missing utxo information")

	// ErrPrevIndexOutOfRange is returned when an input's previous output
	// index does not exist in the supplied previous transaction.
	ErrPrevIndexOutOfRange = errors.New("previous output index out of range")
)

// Corruption reasons. These are stable strings surfaced to callers for
// diagnostics; tests match on them.
const (
	// ReasonInconsistentPaths indicates the derivation paths embedded in
	// the metadata do not agree on a single (chain, index) or do not
	// follow the key's configured prefix.
	ReasonInconsistentPaths = "inconsistent derivation paths"

	// ReasonInvalidPath indicates a derivation path too short to carry a
	// (chain, index) suffix.
	ReasonInvalidPath = "invalid derivation path"

	// ReasonInvalidChainCode indicates the chain level of the derivation
	// path is not a defined chain code.
	ReasonInvalidChainCode = "invalid chain code"

	// ReasonPubKeyMismatch indicates a metadata public key does not match
	// the key derived for the claimed path.
	ReasonPubKeyMismatch = "public key mismatch"

	// ReasonScriptMismatch indicates the script derived for the claimed
	// (chain, index) does not equal the actual script. This is the
	// critical safety branch: such an item is never classified external.
	ReasonScriptMismatch = "script mismatch"
)

// CorruptionError reports that an input or output carries metadata claiming
// this wallet's keys that cannot be verified. Index is -1 until the error is
// attributed to a transaction position by ParseTransaction.
type CorruptionError struct {
	// Index is the input or output position within the transaction.
	Index int

	// IsInput is true when the offending item is an input.
	IsInput bool

	// Reason is one of the Reason constants above.
	Reason string
}

// newCorruption returns a CorruptionError not yet attributed to a
// transaction position.
func newCorruption(reason string) *CorruptionError {
	return &CorruptionError{Index: -1, Reason: reason}
}

// Error implements the error interface.
func (e *CorruptionError) Error() string {
	side := "output"
	if e.IsInput {
		side = "input"
	}
	if e.Index < 0 {
		return fmt.Sprintf("corrupt %s: %s", side, e.Reason)
	}

	return fmt.Sprintf("corrupt %s %d: %s", side, e.Index, e.Reason)
}

// Unwrap allows errors.Is(err, ErrCorruptMetadata).
func (e *CorruptionError) Unwrap() error {
	return ErrCorruptMetadata
}
