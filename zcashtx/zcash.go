// Copyright (c) 2025 The utxocore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package zcashtx decodes and encodes the Zcash transaction envelope. The
// top bit of the version field marks an Overwinter transaction, which adds
// a version-group id after the version and an expiry height after the lock
// time. Everything after the expiry height — the Sapling and Orchard
// shielded fields — is captured as an opaque byte blob and replayed
// verbatim on encode; this engine never structure-decodes it, so fields it
// does not anticipate cannot be lost.
package zcashtx

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/bitgo/utxocore/internal/txwire"
	"github.com/btcsuite/btcd/wire"
)

// overwinterMask is the version bit marking an overwintered transaction.
const overwinterMask = uint32(1) << 31

var (
	// ErrNotOverwintered is returned when encoding a non-overwintered
	// transaction that carries overwinter-only fields. The fields have
	// no place in the base encoding and must never be dropped silently.
	ErrNotOverwintered = errors.New(
		"overwinter fields present on non-overwintered transaction",
	)

	// ErrTrailingBytes is returned when decoding a non-overwintered
	// transaction leaves unconsumed bytes.
	ErrTrailingBytes = errors.New("unexpected trailing bytes")
)

// TxParts is a decoded Zcash transaction: the base transaction fields plus
// the Overwinter side fields. Field changes must preserve the overwinter
// invariant checked by Encode.
type TxParts struct {
	// Version is the transaction version with the overwinter bit
	// stripped.
	Version uint32

	// Overwintered marks the extended Overwinter format.
	Overwintered bool

	// VersionGroupID disambiguates transaction formats across network
	// upgrades. Present exactly when Overwintered is set.
	VersionGroupID uint32

	// TxIn and TxOut are the transparent inputs and outputs in the base
	// Bitcoin non-witness encoding.
	TxIn  []*wire.TxIn
	TxOut []*wire.TxOut

	// LockTime is the transaction lock time.
	LockTime uint32

	// ExpiryHeight is the block height after which the transaction
	// expires. Present exactly when Overwintered is set.
	ExpiryHeight uint32

	// SaplingData is every byte after the expiry height, verbatim: the
	// value balance and shielded spend/output arrays this engine does
	// not interpret. Empty for non-overwintered transactions.
	SaplingData []byte
}

// Decode reads a Zcash transaction from buf. The overwintered branch
// consumes the remainder of the buffer into SaplingData; the plain branch
// requires the buffer to be fully consumed.
func Decode(buf []byte) (*TxParts, error) {
	r := bytes.NewReader(buf)

	header, err := txwire.ReadUint32(r, "version")
	if err != nil {
		return nil, err
	}

	parts := &TxParts{
		Version:      header &^ overwinterMask,
		Overwintered: header&overwinterMask != 0,
	}

	if parts.Overwintered {
		parts.VersionGroupID, err = txwire.ReadUint32(
			r, "version group id",
		)
		if err != nil {
			return nil, err
		}
	}

	parts.TxIn, err = txwire.ReadTxIns(r)
	if err != nil {
		return nil, err
	}
	parts.TxOut, err = txwire.ReadTxOuts(r)
	if err != nil {
		return nil, err
	}
	parts.LockTime, err = txwire.ReadUint32(r, "lock time")
	if err != nil {
		return nil, err
	}

	if !parts.Overwintered {
		if r.Len() != 0 {
			return nil, fmt.Errorf("%w: %d bytes after lock time",
				ErrTrailingBytes, r.Len())
		}

		return parts, nil
	}

	parts.ExpiryHeight, err = txwire.ReadUint32(r, "expiry height")
	if err != nil {
		return nil, err
	}

	if r.Len() > 0 {
		parts.SaplingData = make([]byte, r.Len())
		if _, err := io.ReadFull(r, parts.SaplingData); err != nil {
			return nil, fmt.Errorf("reading sapling data: %w",
				err)
		}
	}

	return parts, nil
}

// Encode writes the transaction to w as the exact inverse of Decode,
// replaying SaplingData unchanged.
func (p *TxParts) Encode(w io.Writer) error {
	if !p.Overwintered {
		if p.VersionGroupID != 0 || p.ExpiryHeight != 0 ||
			len(p.SaplingData) != 0 {

			return ErrNotOverwintered
		}
	}

	header := p.Version
	if p.Overwintered {
		header |= overwinterMask
	}
	if err := txwire.WriteUint32(w, header); err != nil {
		return fmt.Errorf("writing version: %w", err)
	}

	if p.Overwintered {
		err := txwire.WriteUint32(w, p.VersionGroupID)
		if err != nil {
			return fmt.Errorf("writing version group id: %w", err)
		}
	}

	if err := txwire.WriteTxIns(w, p.TxIn); err != nil {
		return err
	}
	if err := txwire.WriteTxOuts(w, p.TxOut); err != nil {
		return err
	}
	if err := txwire.WriteUint32(w, p.LockTime); err != nil {
		return fmt.Errorf("writing lock time: %w", err)
	}

	if p.Overwintered {
		if err := txwire.WriteUint32(w, p.ExpiryHeight); err != nil {
			return fmt.Errorf("writing expiry height: %w", err)
		}
		if _, err := w.Write(p.SaplingData); err != nil {
			return fmt.Errorf("writing sapling data: %w", err)
		}
	}

	return nil
}

// EncodeBytes serializes the transaction to a fresh byte slice.
func (p *TxParts) EncodeBytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := p.Encode(&buf); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
