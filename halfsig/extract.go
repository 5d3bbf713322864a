// Copyright (c) 2025 The utxocore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package halfsig reconstructs the legacy half-signed wire encoding from a
// partially signed transaction: the single collected signature is placed
// directly into the scriptSig or witness with empty pushes standing in for
// the signatures still missing. This layout predates PSBT and is what
// cosigning services historically exchanged; its byte layout is
// compatibility-critical.
package halfsig

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

var (
	// ErrNoInputs is returned when the packet has no inputs.
	ErrNoInputs = errors.New("transaction has no inputs")

	// ErrNoOutputs is returned when the packet has no outputs.
	ErrNoOutputs = errors.New("transaction has no outputs")

	// ErrMissingScripts is returned for an input carrying neither a
	// witness script nor a redeem script, leaving no multisig script to
	// build the legacy layout from.
	ErrMissingScripts = errors.New(
		"input has neither witness nor redeem script",
	)

	// ErrTaprootInput is returned when a taproot-signed input is
	// present. Taproot spends are not representable in the legacy
	// layout.
	ErrTaprootInput = errors.New(
		"taproot inputs cannot be encoded in the legacy format",
	)

	// ErrSigCount is returned when an input does not carry exactly one
	// partial signature. The legacy extraction only supports the
	// half-signed stage with a single current signer.
	ErrSigCount = errors.New(
		"input must have exactly one partial signature",
	)

	// ErrNotMultisig is returned when an input's script is not a 2-of-3
	// CHECKMULTISIG script.
	ErrNotMultisig = errors.New("script is not a 2-of-3 multisig script")

	// ErrUnknownSigner is returned when the partial signature's public
	// key is not one of the three keys in the multisig script.
	ErrUnknownSigner = errors.New(
		"signature does not belong to script",
	)
)

// Extract rebuilds the legacy half-signed transaction from a signed PSBT.
// The returned transaction is a deep copy of the packet's unsigned
// transaction with scriptSig and witness fields populated; the packet is
// not modified.
func Extract(packet *psbt.Packet) (*wire.MsgTx, error) {
	tx := packet.UnsignedTx
	if len(tx.TxIn) == 0 {
		return nil, ErrNoInputs
	}
	if len(tx.TxOut) == 0 {
		return nil, ErrNoOutputs
	}

	signed := tx.Copy()
	for i := range packet.Inputs {
		err := fillInput(signed.TxIn[i], &packet.Inputs[i])
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
	}

	return signed, nil
}

// fillInput populates the scriptSig and witness of a single input in the
// legacy half-signed layout.
func fillInput(txIn *wire.TxIn, pIn *psbt.PInput) error {
	if isTaprootInput(pIn) {
		return ErrTaprootInput
	}

	script := pIn.WitnessScript
	segwit := script != nil
	if script == nil {
		script = pIn.RedeemScript
	}
	if script == nil {
		return ErrMissingScripts
	}

	if len(pIn.PartialSigs) != 1 {
		return fmt.Errorf("%w: have %d", ErrSigCount,
			len(pIn.PartialSigs))
	}
	sig := pIn.PartialSigs[0]

	keys, err := multisigKeys(script)
	if err != nil {
		return err
	}
	slot := -1
	for j, key := range keys {
		if bytes.Equal(sig.PubKey, key) {
			slot = j
			break
		}
	}
	if slot == -1 {
		return ErrUnknownSigner
	}

	if segwit {
		return fillSegwit(txIn, pIn, script, sig.Signature, slot)
	}

	return fillLegacy(txIn, script, sig.Signature, slot)
}

// fillSegwit builds the witness stack for P2WSH and P2SH-P2WSH spends: a
// leading empty element for the CHECKMULTISIG off-by-one, one element per
// key slot with only the present signature filled in, and the witness
// script itself. For the nested case the scriptSig pushes the witness
// program so the outer P2SH hash still verifies.
func fillSegwit(txIn *wire.TxIn, pIn *psbt.PInput, script, sig []byte,
	slot int) error {

	witness := make(wire.TxWitness, 0, 5)
	witness = append(witness, []byte{})
	for j := 0; j < 3; j++ {
		if j == slot {
			witness = append(witness, sig)
		} else {
			witness = append(witness, []byte{})
		}
	}
	witness = append(witness, script)
	txIn.Witness = witness

	txIn.SignatureScript = nil
	if pIn.RedeemScript != nil {
		scriptSig, err := txscript.NewScriptBuilder().
			AddData(pIn.RedeemScript).
			Script()
		if err != nil {
			return fmt.Errorf("unable to build scriptSig: %w",
				err)
		}
		txIn.SignatureScript = scriptSig
	}

	return nil
}

// fillLegacy builds the plain P2SH scriptSig: OP_0, then per key slot the
// signature push or an OP_0 placeholder, then the redeem script push.
func fillLegacy(txIn *wire.TxIn, script, sig []byte, slot int) error {
	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_0)
	for j := 0; j < 3; j++ {
		if j == slot {
			builder.AddData(sig)
		} else {
			builder.AddOp(txscript.OP_0)
		}
	}
	builder.AddData(script)

	scriptSig, err := builder.Script()
	if err != nil {
		return fmt.Errorf("unable to build scriptSig: %w", err)
	}
	txIn.SignatureScript = scriptSig
	txIn.Witness = nil

	return nil
}

// isTaprootInput reports whether any taproot signing metadata is present on
// the input.
func isTaprootInput(pIn *psbt.PInput) bool {
	return len(pIn.TaprootBip32Derivation) > 0 ||
		len(pIn.TaprootKeySpendSig) > 0 ||
		len(pIn.TaprootScriptSpendSig) > 0 ||
		len(pIn.TaprootLeafScript) > 0 ||
		len(pIn.TaprootInternalKey) > 0
}

// multisigKeys parses a 2-of-3 CHECKMULTISIG script and returns the three
// serialized public keys in script order.
func multisigKeys(script []byte) ([][]byte, error) {
	const scriptVersion = 0

	var keys [][]byte
	tokenizer := txscript.MakeScriptTokenizer(scriptVersion, script)

	if !tokenizer.Next() || tokenizer.Opcode() != txscript.OP_2 {
		return nil, ErrNotMultisig
	}
	for j := 0; j < 3; j++ {
		if !tokenizer.Next() {
			return nil, ErrNotMultisig
		}
		key := tokenizer.Data()
		if len(key) != btcec.PubKeyBytesLenCompressed {
			return nil, ErrNotMultisig
		}
		keys = append(keys, key)
	}
	if !tokenizer.Next() || tokenizer.Opcode() != txscript.OP_3 {
		return nil, ErrNotMultisig
	}
	if !tokenizer.Next() ||
		tokenizer.Opcode() != txscript.OP_CHECKMULTISIG {

		return nil, ErrNotMultisig
	}
	if tokenizer.Next() || tokenizer.Err() != nil {
		return nil, ErrNotMultisig
	}

	return keys, nil
}
