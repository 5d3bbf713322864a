// Copyright (c) 2025 The utxocore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package walletkeys holds the root key material of a fixed-script 2-of-3
// wallet and derives the per-(chain, index) public key triples that all
// wallet output scripts are built from.
package walletkeys

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
)

const (
	// KeyIndexUser is the position of the user key in a key triple.
	KeyIndexUser = 0

	// KeyIndexBackup is the position of the backup key in a key triple.
	KeyIndexBackup = 1

	// KeyIndexBitGo is the position of the cosigner key in a key triple.
	KeyIndexBitGo = 2

	// NumKeys is the number of root keys a wallet carries.
	NumKeys = 3
)

var (
	// ErrMissingKey is returned when a root key slot is nil.
	ErrMissingKey = errors.New("missing root key")

	// ErrHardenedPrefix is returned when a derivation prefix contains a
	// hardened element. All wallet derivations are non-hardened so that
	// they can be performed from extended public keys alone.
	ErrHardenedPrefix = errors.New("derivation prefix must be non-hardened")

	// ErrBadPrefixString is returned when a derivation prefix string
	// cannot be parsed.
	ErrBadPrefixString = errors.New("malformed derivation prefix")
)

// DefaultPrefix returns the default derivation prefix m/0/0 applied to a
// root key before the chain and index levels. A fresh slice is returned on
// every call so callers cannot alias the package default.
func DefaultPrefix() []uint32 {
	return []uint32{0, 0}
}

// RootWalletKeys is the read-only root key material of a wallet: three
// extended public keys in user/backup/bitgo order, each with its own
// non-hardened derivation prefix. The prefixes are normally identical but
// are tracked per key because externally created wallets may differ.
//
// A RootWalletKeys is immutable after construction and safe for concurrent
// use. It never holds private key material; private extended keys passed to
// the constructor are neutered.
type RootWalletKeys struct {
	keys     [NumKeys]*hdkeychain.ExtendedKey
	prefixes [NumKeys][]uint32
}

// NewRootWalletKeys constructs a RootWalletKeys from the three root extended
// keys. A nil prefix slot selects the default m/0/0 prefix for that key.
func NewRootWalletKeys(keys [NumKeys]*hdkeychain.ExtendedKey,
	prefixes [NumKeys][]uint32) (*RootWalletKeys, error) {

	rw := &RootWalletKeys{}
	for i, key := range keys {
		if key == nil {
			return nil, fmt.Errorf("%w: key %d", ErrMissingKey, i)
		}

		if key.IsPrivate() {
			pub, err := key.Neuter()
			if err != nil {
				return nil, fmt.Errorf("unable to neuter "+
					"key %d: %w", i, err)
			}
			key = pub
		}
		rw.keys[i] = key

		prefix := prefixes[i]
		if prefix == nil {
			prefix = DefaultPrefix()
		}
		for _, level := range prefix {
			if level >= hdkeychain.HardenedKeyStart {
				return nil, fmt.Errorf("%w: key %d level %d",
					ErrHardenedPrefix, i, level)
			}
		}
		rw.prefixes[i] = append([]uint32(nil), prefix...)
	}

	return rw, nil
}

// NewRootWalletKeysFromStrings constructs a RootWalletKeys from base58
// extended key strings and optional prefix strings of the form "m/0/0". An
// empty prefix string selects the default prefix for that key.
func NewRootWalletKeysFromStrings(xpubs [NumKeys]string,
	prefixes [NumKeys]string) (*RootWalletKeys, error) {

	var (
		keys       [NumKeys]*hdkeychain.ExtendedKey
		prefixes32 [NumKeys][]uint32
		err        error
	)
	for i, xpub := range xpubs {
		keys[i], err = hdkeychain.NewKeyFromString(xpub)
		if err != nil {
			return nil, fmt.Errorf("unable to parse key %d: %w",
				i, err)
		}

		if prefixes[i] == "" {
			continue
		}
		prefixes32[i], err = ParsePrefix(prefixes[i])
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
	}

	return NewRootWalletKeys(keys, prefixes32)
}

// ParsePrefix parses a derivation prefix string of the form "m/0/0" into its
// path elements. Hardened markers are rejected, as are empty paths.
func ParsePrefix(prefix string) ([]uint32, error) {
	parts := strings.Split(prefix, "/")
	if len(parts) < 2 || parts[0] != "m" {
		return nil, fmt.Errorf("%w: %q", ErrBadPrefixString, prefix)
	}

	path := make([]uint32, 0, len(parts)-1)
	for _, part := range parts[1:] {
		if strings.HasSuffix(part, "'") ||
			strings.HasSuffix(part, "h") {

			return nil, fmt.Errorf("%w: %q", ErrHardenedPrefix,
				prefix)
		}

		level, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrBadPrefixString,
				prefix)
		}
		if level >= uint64(hdkeychain.HardenedKeyStart) {
			return nil, fmt.Errorf("%w: %q", ErrHardenedPrefix,
				prefix)
		}
		path = append(path, uint32(level))
	}

	return path, nil
}

// Key returns the root extended public key at position i.
func (r *RootWalletKeys) Key(i int) *hdkeychain.ExtendedKey {
	return r.keys[i]
}

// Prefix returns a copy of the derivation prefix of the key at position i.
func (r *RootWalletKeys) Prefix(i int) []uint32 {
	return append([]uint32(nil), r.prefixes[i]...)
}

// Fingerprints returns the BIP32 fingerprint of each root key, encoded the
// way the psbt package stores the MasterKeyFingerprint field: the first four
// bytes of the key's identifier (hash160 of the compressed public key), read
// little-endian.
func (r *RootWalletKeys) Fingerprints() ([NumKeys]uint32, error) {
	var fps [NumKeys]uint32
	for i, key := range r.keys {
		pub, err := key.ECPubKey()
		if err != nil {
			return fps, fmt.Errorf("unable to obtain pubkey of "+
				"key %d: %w", i, err)
		}
		id := btcutil.Hash160(pub.SerializeCompressed())
		fps[i] = binary.LittleEndian.Uint32(id[:4])
	}

	return fps, nil
}
