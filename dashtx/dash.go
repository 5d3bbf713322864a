// Copyright (c) 2025 The utxocore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package dashtx decodes and encodes the Dash transaction envelope. Dash
// splits the 32-bit version field of the base Bitcoin format into a 16-bit
// transaction version and a 16-bit special-transaction type; a non-zero
// type appends a length-prefixed extra payload after the lock time. The
// payload is carried verbatim: its interpretation belongs to Dash
// consensus, and a decode→encode round trip must reproduce the input
// bytes exactly.
package dashtx

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/bitgo/utxocore/internal/txwire"
	"github.com/btcsuite/btcd/wire"
)

var (
	// ErrUnexpectedPayload is returned when encoding a transaction of
	// type 0 that carries an extra payload. Type 0 is the ordinary
	// transaction format and has no payload field to carry it in;
	// dropping the payload silently would corrupt the transaction.
	ErrUnexpectedPayload = errors.New(
		"extra payload present on transaction type 0",
	)

	// ErrTrailingBytes is returned when decode leaves unconsumed bytes.
	// Trailing bytes are never ignored: they would be lost on re-encode.
	ErrTrailingBytes = errors.New("unexpected trailing bytes")
)

// TxParts is a decoded Dash transaction: the base transaction fields plus
// the special-transaction side fields. Field changes must preserve the
// type/payload invariant checked by Encode.
type TxParts struct {
	// Version is the base transaction version, the low 16 bits of the
	// wire version field.
	Version uint16

	// Type is the special-transaction type, the high 16 bits of the
	// wire version field. Zero for ordinary transactions.
	Type uint16

	// TxIn and TxOut are the transaction inputs and outputs in the base
	// Bitcoin non-witness encoding.
	TxIn  []*wire.TxIn
	TxOut []*wire.TxOut

	// LockTime is the transaction lock time.
	LockTime uint32

	// ExtraPayload is the opaque special-transaction payload. Present
	// exactly when Type is non-zero.
	ExtraPayload []byte
}

// Decode reads a Dash transaction from r. Errors name the field that
// failed; no partial result is returned.
func Decode(r io.Reader) (*TxParts, error) {
	version, err := txwire.ReadUint32(r, "version")
	if err != nil {
		return nil, err
	}

	parts := &TxParts{
		Version: uint16(version & 0xffff),
		Type:    uint16(version >> 16),
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

	if parts.Type != 0 {
		parts.ExtraPayload, err = txwire.ReadVarBytes(
			r, "extra payload",
		)
		if err != nil {
			return nil, err
		}
	}

	return parts, nil
}

// DecodeBytes decodes a Dash transaction from buf and requires every byte
// to be consumed.
func DecodeBytes(buf []byte) (*TxParts, error) {
	r := bytes.NewReader(buf)
	parts, err := Decode(r)
	if err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d bytes after lock time",
			ErrTrailingBytes, r.Len())
	}

	return parts, nil
}

// Encode writes the transaction to w as the exact inverse of Decode.
// Encoding is deterministic: identical parts produce identical bytes.
func (p *TxParts) Encode(w io.Writer) error {
	if p.Type == 0 && len(p.ExtraPayload) != 0 {
		return ErrUnexpectedPayload
	}

	version := uint32(p.Version) | uint32(p.Type)<<16
	if err := txwire.WriteUint32(w, version); err != nil {
		return fmt.Errorf("writing version: %w", err)
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

	if p.Type != 0 {
		if err := txwire.WriteVarBytes(w, p.ExtraPayload); err != nil {
			return fmt.Errorf("writing extra payload: %w", err)
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
