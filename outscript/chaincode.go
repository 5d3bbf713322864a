// Copyright (c) 2025 The utxocore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package outscript builds the canonical output scripts of a fixed-script
// 2-of-3 wallet from a derived key triple, and maintains the static registry
// of permitted replay-protection output scripts.
package outscript

import (
	"errors"
	"fmt"
)

// ScriptVariant selects one of the fixed script templates a wallet can pay
// to. The set is closed; all dispatch over it is exhaustive.
type ScriptVariant uint8

const (
	// VariantLegacy is a 2-of-3 CHECKMULTISIG redeem script wrapped in
	// P2SH.
	VariantLegacy ScriptVariant = iota

	// VariantP2SHP2WSH is the same 2-of-3 witness script wrapped first
	// as P2WSH and then again in P2SH.
	VariantP2SHP2WSH

	// VariantP2WSH is the 2-of-3 witness script paid to directly via a
	// native version 0 witness program.
	VariantP2WSH

	// VariantP2TR is a taproot output keyed by the BIP86-tweaked user
	// key.
	VariantP2TR

	// VariantP2TRMuSig2 is a taproot output keyed by the MuSig2
	// aggregate of the user and bitgo keys.
	VariantP2TRMuSig2
)

// String returns a human-readable name for the script variant.
func (v ScriptVariant) String() string {
	switch v {
	case VariantLegacy:
		return "p2sh"
	case VariantP2SHP2WSH:
		return "p2shP2wsh"
	case VariantP2WSH:
		return "p2wsh"
	case VariantP2TR:
		return "p2tr"
	case VariantP2TRMuSig2:
		return "p2trMusig2"
	default:
		return fmt.Sprintf("variant<%d>", uint8(v))
	}
}

// ChainCode is the integer discriminant embedded in a wallet derivation
// path's chain level. It selects both a script variant and whether the
// derived script belongs to the external (receive) or internal (change)
// branch.
//
// The mapping is fixed: each variant owns a decade, the external branch is
// the even code and the internal branch the odd one.
//
//	 0 /  1   p2sh        external / internal
//	10 / 11   p2shP2wsh   external / internal
//	20 / 21   p2wsh       external / internal
//	30 / 31   p2tr        external / internal
//	40 / 41   p2trMusig2  external / internal
type ChainCode uint32

var (
	// ErrInvalidChainCode is returned when a chain value does not name
	// one of the ten defined codes.
	ErrInvalidChainCode = errors.New("invalid chain code")

	// ErrUnknownVariant is returned when a script variant outside the
	// closed set is requested.
	ErrUnknownVariant = errors.New("unknown script variant")
)

// ChainCodes returns all defined chain codes in ascending order.
func ChainCodes() []ChainCode {
	return []ChainCode{0, 1, 10, 11, 20, 21, 30, 31, 40, 41}
}

// Valid reports whether the chain code is one of the ten defined codes.
func (c ChainCode) Valid() bool {
	return c%10 <= 1 && c/10 <= 4
}

// Internal reports whether the chain code selects the internal (change)
// branch.
func (c ChainCode) Internal() bool {
	return c%10 == 1
}

// Variant returns the script variant the chain code selects.
func (c ChainCode) Variant() (ScriptVariant, error) {
	if !c.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidChainCode, c)
	}

	return ScriptVariant(c / 10), nil
}

// ChainCodeForVariant returns the chain code of the given variant and
// branch.
func ChainCodeForVariant(v ScriptVariant, internal bool) ChainCode {
	code := ChainCode(v) * 10
	if internal {
		code++
	}

	return code
}
