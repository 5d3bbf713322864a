// Copyright (c) 2025 The utxocore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package outscript

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/lightningnetwork/lnd/fn/v2"
)

var (
	// ErrEmptyScript is returned when a registry is built from an empty
	// script.
	ErrEmptyScript = errors.New("empty replay protection script")
)

// Registry is a static set of output scripts recognized as required
// replay-protection outputs on forked chains. These scripts are independent
// of the wallet keys: spending one only proves the transaction is valid on
// the intended fork. A Registry is immutable after construction and safe
// for concurrent use.
type Registry struct {
	scripts fn.Set[string]
}

// NewRegistryFromScripts builds a registry directly from raw output
// scripts.
func NewRegistryFromScripts(scripts [][]byte) (*Registry, error) {
	set := fn.NewSet[string]()
	for i, script := range scripts {
		if len(script) == 0 {
			return nil, fmt.Errorf("%w: script %d",
				ErrEmptyScript, i)
		}
		set.Add(string(script))
	}

	return &Registry{scripts: set}, nil
}

// NewRegistryFromAddresses builds a registry from address strings, decoded
// against the given network.
func NewRegistryFromAddresses(addrs []string,
	net *chaincfg.Params) (*Registry, error) {

	scripts := make([][]byte, 0, len(addrs))
	for _, encoded := range addrs {
		addr, err := btcutil.DecodeAddress(encoded, net)
		if err != nil {
			return nil, fmt.Errorf("unable to decode replay "+
				"protection address %q: %w", encoded, err)
		}
		script, err := txscript.PayToAddrScript(addr)
		if err != nil {
			return nil, fmt.Errorf("unable to build script for "+
				"address %q: %w", encoded, err)
		}
		scripts = append(scripts, script)
	}

	return NewRegistryFromScripts(scripts)
}

// NewRegistryFromPubKeys builds a registry from compressed public keys,
// deriving the canonical P2SH-wrapped pay-to-pubkey script for each.
func NewRegistryFromPubKeys(pubKeys [][]byte) (*Registry, error) {
	scripts := make([][]byte, 0, len(pubKeys))
	for i, pubKey := range pubKeys {
		// Reject anything that is not a valid curve point up front so
		// the registry never contains an unspendable script.
		if _, err := btcec.ParsePubKey(pubKey); err != nil {
			return nil, fmt.Errorf("invalid replay protection "+
				"pubkey %d: %w", i, err)
		}

		redeem, err := txscript.NewScriptBuilder().
			AddData(pubKey).
			AddOp(txscript.OP_CHECKSIG).
			Script()
		if err != nil {
			return nil, fmt.Errorf("unable to build p2pk script "+
				"for pubkey %d: %w", i, err)
		}
		script, err := p2shScript(redeem)
		if err != nil {
			return nil, fmt.Errorf("unable to build p2sh script "+
				"for pubkey %d: %w", i, err)
		}
		scripts = append(scripts, script)
	}

	return NewRegistryFromScripts(scripts)
}

// Contains reports whether the given output script is a registered
// replay-protection script.
func (r *Registry) Contains(script []byte) bool {
	if r == nil {
		return false
	}

	return r.scripts.Contains(string(script))
}

// Size returns the number of registered scripts.
func (r *Registry) Size() int {
	if r == nil {
		return 0
	}

	return len(r.scripts)
}
