// Copyright (c) 2025 The utxocore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package txwire provides the shared readers and writers for the
// non-witness Bitcoin transaction body fields that the chain envelope
// codecs wrap. Every helper matches the reference serialization
// bit-for-bit; any short read is surfaced with the failing field name.
package txwire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/wire"
)

// pver is the protocol version passed to the wire var-int and var-bytes
// helpers. The transaction body encoding does not vary with it.
const pver = 0

// ReadUint32 reads a little-endian uint32, naming the field on failure.
func ReadUint32(r io.Reader, field string) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("reading %s: %w", field, err)
	}

	return binary.LittleEndian.Uint32(buf[:]), nil
}

// WriteUint32 writes a little-endian uint32.
func WriteUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])

	return err
}

// ReadUint64 reads a little-endian uint64, naming the field on failure.
func ReadUint64(r io.Reader, field string) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("reading %s: %w", field, err)
	}

	return binary.LittleEndian.Uint64(buf[:]), nil
}

// WriteUint64 writes a little-endian uint64.
func WriteUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])

	return err
}

// ReadTxIns reads a var-int input count followed by that many inputs.
func ReadTxIns(r io.Reader) ([]*wire.TxIn, error) {
	count, err := wire.ReadVarInt(r, pver)
	if err != nil {
		return nil, fmt.Errorf("reading input count: %w", err)
	}

	// Grown incrementally so a hostile count cannot force a huge
	// allocation before the stream runs dry.
	txIns := make([]*wire.TxIn, 0)
	for i := uint64(0); i < count; i++ {
		txIn, err := ReadTxIn(r)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		txIns = append(txIns, txIn)
	}

	return txIns, nil
}

// ReadTxIn reads a single transaction input.
func ReadTxIn(r io.Reader) (*wire.TxIn, error) {
	txIn := &wire.TxIn{}
	_, err := io.ReadFull(r, txIn.PreviousOutPoint.Hash[:])
	if err != nil {
		return nil, fmt.Errorf("reading prevout hash: %w", err)
	}

	txIn.PreviousOutPoint.Index, err = ReadUint32(r, "prevout index")
	if err != nil {
		return nil, err
	}

	txIn.SignatureScript, err = wire.ReadVarBytes(
		r, pver, wire.MaxMessagePayload, "signature script",
	)
	if err != nil {
		return nil, err
	}

	txIn.Sequence, err = ReadUint32(r, "sequence")
	if err != nil {
		return nil, err
	}

	return txIn, nil
}

// WriteTxIns writes a var-int input count followed by the inputs.
func WriteTxIns(w io.Writer, txIns []*wire.TxIn) error {
	if err := wire.WriteVarInt(w, pver, uint64(len(txIns))); err != nil {
		return fmt.Errorf("writing input count: %w", err)
	}
	for i, txIn := range txIns {
		if err := WriteTxIn(w, txIn); err != nil {
			return fmt.Errorf("input %d: %w", i, err)
		}
	}

	return nil
}

// WriteTxIn writes a single transaction input.
func WriteTxIn(w io.Writer, txIn *wire.TxIn) error {
	if _, err := w.Write(txIn.PreviousOutPoint.Hash[:]); err != nil {
		return fmt.Errorf("writing prevout hash: %w", err)
	}
	if err := WriteUint32(w, txIn.PreviousOutPoint.Index); err != nil {
		return fmt.Errorf("writing prevout index: %w", err)
	}
	err := wire.WriteVarBytes(w, pver, txIn.SignatureScript)
	if err != nil {
		return fmt.Errorf("writing signature script: %w", err)
	}
	if err := WriteUint32(w, txIn.Sequence); err != nil {
		return fmt.Errorf("writing sequence: %w", err)
	}

	return nil
}

// ReadTxOuts reads a var-int output count followed by that many outputs.
func ReadTxOuts(r io.Reader) ([]*wire.TxOut, error) {
	count, err := wire.ReadVarInt(r, pver)
	if err != nil {
		return nil, fmt.Errorf("reading output count: %w", err)
	}

	txOuts := make([]*wire.TxOut, 0)
	for i := uint64(0); i < count; i++ {
		txOut, err := ReadTxOut(r)
		if err != nil {
			return nil, fmt.Errorf("output %d: %w", i, err)
		}
		txOuts = append(txOuts, txOut)
	}

	return txOuts, nil
}

// ReadTxOut reads a single transaction output.
func ReadTxOut(r io.Reader) (*wire.TxOut, error) {
	value, err := ReadUint64(r, "output value")
	if err != nil {
		return nil, err
	}

	pkScript, err := wire.ReadVarBytes(
		r, pver, wire.MaxMessagePayload, "pk script",
	)
	if err != nil {
		return nil, err
	}

	return &wire.TxOut{
		Value:    int64(value),
		PkScript: pkScript,
	}, nil
}

// WriteTxOuts writes a var-int output count followed by the outputs.
func WriteTxOuts(w io.Writer, txOuts []*wire.TxOut) error {
	err := wire.WriteVarInt(w, pver, uint64(len(txOuts)))
	if err != nil {
		return fmt.Errorf("writing output count: %w", err)
	}
	for i, txOut := range txOuts {
		if err := wire.WriteTxOut(w, pver, 0, txOut); err != nil {
			return fmt.Errorf("output %d: %w", i, err)
		}
	}

	return nil
}

// ReadVarBytes reads a var-int length prefixed byte slice, naming the field
// on failure.
func ReadVarBytes(r io.Reader, field string) ([]byte, error) {
	return wire.ReadVarBytes(r, pver, wire.MaxMessagePayload, field)
}

// WriteVarBytes writes a var-int length prefixed byte slice.
func WriteVarBytes(w io.Writer, b []byte) error {
	return wire.WriteVarBytes(w, pver, b)
}
