// Copyright (c) 2025 The utxocore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package outscript

import (
	"crypto/sha256"
	"fmt"

	"github.com/bitgo/utxocore/walletkeys"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr/musig2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
)

// SpendInfo describes a wallet output script together with the auxiliary
// scripts a spender must present. RedeemScript and WitnessScript are nil for
// variants that do not use them.
type SpendInfo struct {
	// PkScript is the output script placed in the transaction output.
	PkScript []byte

	// RedeemScript is the script hashed into a P2SH PkScript. For the
	// nested segwit variant this is the witness program, not the
	// multisig script.
	RedeemScript []byte

	// WitnessScript is the 2-of-3 multisig script revealed in the
	// witness for segwit variants, or hashed into the P2SH redeem script
	// for the legacy variant (where it doubles as the RedeemScript).
	WitnessScript []byte
}

// BuildScript returns the output script of the given variant for a derived
// key triple. The result is a pure function of its inputs: byte-identical
// output for byte-identical keys, on every call.
func BuildScript(triple walletkeys.DerivedKeyTriple,
	variant ScriptVariant) ([]byte, error) {

	info, err := BuildSpendInfo(triple, variant)
	if err != nil {
		return nil, err
	}

	return info.PkScript, nil
}

// BuildSpendInfo returns the output script of the given variant along with
// the redeem/witness scripts needed to spend it.
func BuildSpendInfo(triple walletkeys.DerivedKeyTriple,
	variant ScriptVariant) (*SpendInfo, error) {

	switch variant {
	case VariantLegacy:
		redeem, err := Multisig2of3Script(triple)
		if err != nil {
			return nil, err
		}
		pkScript, err := p2shScript(redeem)
		if err != nil {
			return nil, err
		}

		return &SpendInfo{
			PkScript:      pkScript,
			RedeemScript:  redeem,
			WitnessScript: redeem,
		}, nil

	case VariantP2SHP2WSH:
		witness, err := Multisig2of3Script(triple)
		if err != nil {
			return nil, err
		}
		program, err := p2wshScript(witness)
		if err != nil {
			return nil, err
		}
		pkScript, err := p2shScript(program)
		if err != nil {
			return nil, err
		}

		return &SpendInfo{
			PkScript:      pkScript,
			RedeemScript:  program,
			WitnessScript: witness,
		}, nil

	case VariantP2WSH:
		witness, err := Multisig2of3Script(triple)
		if err != nil {
			return nil, err
		}
		pkScript, err := p2wshScript(witness)
		if err != nil {
			return nil, err
		}

		return &SpendInfo{
			PkScript:      pkScript,
			WitnessScript: witness,
		}, nil

	case VariantP2TR:
		outputKey := txscript.ComputeTaprootKeyNoScript(
			triple[walletkeys.KeyIndexUser],
		)
		pkScript, err := txscript.PayToTaprootScript(outputKey)
		if err != nil {
			return nil, fmt.Errorf("unable to build taproot "+
				"script: %w", err)
		}

		return &SpendInfo{PkScript: pkScript}, nil

	case VariantP2TRMuSig2:
		outputKey, err := aggregateMuSig2Key(
			triple[walletkeys.KeyIndexUser],
			triple[walletkeys.KeyIndexBitGo],
		)
		if err != nil {
			return nil, err
		}
		pkScript, err := txscript.PayToTaprootScript(outputKey)
		if err != nil {
			return nil, fmt.Errorf("unable to build taproot "+
				"script: %w", err)
		}

		return &SpendInfo{PkScript: pkScript}, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownVariant, variant)
	}
}

// BuildScriptForChain derives nothing itself; it maps the chain code to its
// variant and builds the script for an already-derived triple.
func BuildScriptForChain(triple walletkeys.DerivedKeyTriple,
	chain ChainCode) ([]byte, error) {

	variant, err := chain.Variant()
	if err != nil {
		return nil, err
	}

	return BuildScript(triple, variant)
}

// Multisig2of3Script builds the canonical 2-of-3 CHECKMULTISIG script over
// the triple in fixed user/backup/bitgo order. Keys are never reordered:
// the slot a signature occupies in a half-signed transaction is defined by
// this ordering.
func Multisig2of3Script(triple walletkeys.DerivedKeyTriple) ([]byte, error) {
	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_2)
	for _, key := range triple {
		builder.AddData(key.SerializeCompressed())
	}
	builder.AddOp(txscript.OP_3)
	builder.AddOp(txscript.OP_CHECKMULTISIG)

	script, err := builder.Script()
	if err != nil {
		return nil, fmt.Errorf("unable to build multisig script: %w",
			err)
	}

	return script, nil
}

// aggregateMuSig2Key computes the MuSig2 aggregate of the user and bitgo
// keys with the BIP86 taproot tweak applied, yielding the taproot output
// key of the p2trMusig2 variant.
func aggregateMuSig2Key(user, bitgo *btcec.PublicKey) (*btcec.PublicKey,
	error) {

	aggKey, _, _, err := musig2.AggregateKeys(
		[]*btcec.PublicKey{user, bitgo}, true,
		musig2.WithBIP86KeyTweak(),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to aggregate musig2 key: %w",
			err)
	}

	return aggKey.FinalKey, nil
}

// p2shScript wraps the given script in a pay-to-script-hash output script.
func p2shScript(redeem []byte) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_HASH160).
		AddData(btcutil.Hash160(redeem)).
		AddOp(txscript.OP_EQUAL).
		Script()
}

// p2wshScript wraps the given script in a version 0 witness program.
func p2wshScript(witness []byte) ([]byte, error) {
	hash := sha256.Sum256(witness)

	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(hash[:]).
		Script()
}
