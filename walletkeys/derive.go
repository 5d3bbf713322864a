// Copyright (c) 2025 The utxocore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package walletkeys

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
)

var (
	// ErrHardenedChainIndex is returned when the chain or index level of
	// a requested derivation has the hardened bit set.
	ErrHardenedChainIndex = errors.New(
		"chain and index must be non-hardened",
	)
)

// DerivedKeyTriple is the result of deriving all three root keys to the same
// (chain, index), in user/backup/bitgo order. It is a pure function of the
// root keys and the (chain, index) pair.
type DerivedKeyTriple [NumKeys]*btcec.PublicKey

// Serialized returns the compressed serialization of each key in the triple.
func (t DerivedKeyTriple) Serialized() [NumKeys][]byte {
	var out [NumKeys][]byte
	for i, key := range t {
		out[i] = key.SerializeCompressed()
	}

	return out
}

// Derive derives the public key triple for the given (chain, index). Each
// root key is extended along its own prefix, then by the chain level and the
// index level, all non-hardened. If any of the three derivations fails the
// whole call fails, preserving the failing key and level in the returned
// error.
func (r *RootWalletKeys) Derive(chain, index uint32) (DerivedKeyTriple,
	error) {

	var triple DerivedKeyTriple
	if chain >= hdkeychain.HardenedKeyStart ||
		index >= hdkeychain.HardenedKeyStart {

		return triple, fmt.Errorf("%w: chain=%d index=%d",
			ErrHardenedChainIndex, chain, index)
	}

	for i := range r.keys {
		key, err := r.deriveKey(i, chain, index)
		if err != nil {
			return triple, err
		}

		triple[i], err = key.ECPubKey()
		if err != nil {
			return triple, fmt.Errorf("unable to obtain derived "+
				"pubkey of key %d: %w", i, err)
		}
	}

	return triple, nil
}

// deriveKey extends the root key at position i along its prefix and the
// final chain/index levels.
func (r *RootWalletKeys) deriveKey(i int, chain,
	index uint32) (*hdkeychain.ExtendedKey, error) {

	key := r.keys[i]
	path := r.DerivationPath(i, chain, index)
	for depth, level := range path {
		child, err := key.Derive(level)
		if err != nil {
			return nil, fmt.Errorf("unable to derive key %d at "+
				"path level %d (child %d): %w", i, depth,
				level, err)
		}
		key = child
	}

	return key, nil
}

// DerivationPath returns the full non-hardened derivation path applied to
// the root key at position i for the given (chain, index): the key's prefix
// followed by the chain and index levels. This is the path embedded in PSBT
// BIP32 derivation metadata for wallet inputs and outputs.
func (r *RootWalletKeys) DerivationPath(i int, chain, index uint32) []uint32 {
	path := make([]uint32, 0, len(r.prefixes[i])+2)
	path = append(path, r.prefixes[i]...)
	path = append(path, chain, index)

	return path
}
