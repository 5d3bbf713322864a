// Copyright (c) 2025 The utxocore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package halfsig

import (
	"bytes"
	"crypto/sha256"
	"testing"

	"github.com/bitgo/utxocore/outscript"
	"github.com/bitgo/utxocore/walletkeys"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

// testSig is a placeholder DER signature. The extractor treats signatures as
// opaque bytes.
var testSig = bytes.Repeat([]byte{0x30}, 71)

// testMultisig derives a key triple from fixed seeds and builds its 2-of-3
// multisig script.
func testMultisig(t *testing.T) (walletkeys.DerivedKeyTriple, []byte) {
	t.Helper()

	var keys [walletkeys.NumKeys]*hdkeychain.ExtendedKey
	for i := range keys {
		seed := bytes.Repeat([]byte{byte(i + 1)}, 32)
		master, err := hdkeychain.NewMaster(
			seed, &chaincfg.RegressionNetParams,
		)
		require.NoError(t, err)
		keys[i] = master
	}
	rw, err := walletkeys.NewRootWalletKeys(
		keys, [walletkeys.NumKeys][]uint32{},
	)
	require.NoError(t, err)

	triple, err := rw.Derive(0, 0)
	require.NoError(t, err)
	script, err := outscript.Multisig2of3Script(triple)
	require.NoError(t, err)

	return triple, script
}

// testPacket wraps the given inputs in a packet with a matching unsigned
// transaction and a single output.
func testPacket(inputs ...psbt.PInput) *psbt.Packet {
	tx := &wire.MsgTx{Version: 2}
	for range inputs {
		tx.TxIn = append(tx.TxIn, &wire.TxIn{})
	}
	tx.TxOut = []*wire.TxOut{{Value: 1000, PkScript: []byte{0x51}}}

	return &psbt.Packet{
		UnsignedTx: tx,
		Inputs:     inputs,
		Outputs:    []psbt.POutput{{}},
	}
}

// TestExtractSegwitSlots checks the P2WSH witness layout for each possible
// signer: a leading empty element, three signature slots in key order with
// only the signer's slot filled, then the witness script.
func TestExtractSegwitSlots(t *testing.T) {
	t.Parallel()

	triple, script := testMultisig(t)

	for slot := 0; slot < walletkeys.NumKeys; slot++ {
		packet := testPacket(psbt.PInput{
			WitnessScript: script,
			PartialSigs: []*psbt.PartialSig{{
				PubKey:    triple[slot].SerializeCompressed(),
				Signature: testSig,
			}},
		})

		signed, err := Extract(packet)
		require.NoError(t, err, "slot %d", slot)

		witness := signed.TxIn[0].Witness
		require.Len(t, witness, 5)
		require.Empty(t, witness[0])
		for j := 0; j < 3; j++ {
			if j == slot {
				require.Equal(t, testSig, witness[1+j])
			} else {
				require.Empty(t, witness[1+j])
			}
		}
		require.Equal(t, script, witness[4])
		require.Nil(t, signed.TxIn[0].SignatureScript)
	}
}

// TestExtractNestedSegwit checks the P2SH-P2WSH case: the witness layout is
// the same as plain P2WSH, and the scriptSig carries a single push of the
// witness program so the outer P2SH hash verifies.
func TestExtractNestedSegwit(t *testing.T) {
	t.Parallel()

	triple, script := testMultisig(t)

	witnessHash := sha256.Sum256(script)
	program, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(witnessHash[:]).
		Script()
	require.NoError(t, err)

	packet := testPacket(psbt.PInput{
		WitnessScript: script,
		RedeemScript:  program,
		PartialSigs: []*psbt.PartialSig{{
			PubKey:    triple[walletkeys.KeyIndexBackup].SerializeCompressed(),
			Signature: testSig,
		}},
	})

	signed, err := Extract(packet)
	require.NoError(t, err)

	witness := signed.TxIn[0].Witness
	require.Len(t, witness, 5)
	require.Empty(t, witness[0])
	require.Empty(t, witness[1])
	require.Equal(t, testSig, witness[2])
	require.Empty(t, witness[3])
	require.Equal(t, script, witness[4])

	wantScriptSig, err := txscript.NewScriptBuilder().
		AddData(program).
		Script()
	require.NoError(t, err)
	require.Equal(t, wantScriptSig, signed.TxIn[0].SignatureScript)
}

// TestExtractLegacy checks the plain P2SH scriptSig layout: OP_0, a
// signature push or OP_0 placeholder per key slot, then the redeem script.
func TestExtractLegacy(t *testing.T) {
	t.Parallel()

	triple, script := testMultisig(t)

	packet := testPacket(psbt.PInput{
		RedeemScript: script,
		PartialSigs: []*psbt.PartialSig{{
			PubKey:    triple[walletkeys.KeyIndexUser].SerializeCompressed(),
			Signature: testSig,
		}},
	})

	signed, err := Extract(packet)
	require.NoError(t, err)
	require.Nil(t, signed.TxIn[0].Witness)

	want, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(testSig).
		AddOp(txscript.OP_0).
		AddOp(txscript.OP_0).
		AddData(script).
		Script()
	require.NoError(t, err)
	require.Equal(t, want, signed.TxIn[0].SignatureScript)
}

// TestExtractDoesNotMutatePacket checks that extraction works on a copy and
// leaves the packet's unsigned transaction untouched.
func TestExtractDoesNotMutatePacket(t *testing.T) {
	t.Parallel()

	triple, script := testMultisig(t)

	packet := testPacket(psbt.PInput{
		WitnessScript: script,
		PartialSigs: []*psbt.PartialSig{{
			PubKey:    triple[0].SerializeCompressed(),
			Signature: testSig,
		}},
	})

	_, err := Extract(packet)
	require.NoError(t, err)

	require.Nil(t, packet.UnsignedTx.TxIn[0].SignatureScript)
	require.Nil(t, packet.UnsignedTx.TxIn[0].Witness)
}

// TestExtractErrors covers the rejection cases.
func TestExtractErrors(t *testing.T) {
	t.Parallel()

	triple, script := testMultisig(t)

	sigFor := func(slot int) []*psbt.PartialSig {
		return []*psbt.PartialSig{{
			PubKey:    triple[slot].SerializeCompressed(),
			Signature: testSig,
		}}
	}

	tests := []struct {
		name   string
		packet *psbt.Packet
		err    error
	}{{
		name: "no inputs",
		packet: &psbt.Packet{
			UnsignedTx: &wire.MsgTx{
				TxOut: []*wire.TxOut{{}},
			},
		},
		err: ErrNoInputs,
	}, {
		name: "no outputs",
		packet: &psbt.Packet{
			UnsignedTx: &wire.MsgTx{
				TxIn: []*wire.TxIn{{}},
			},
			Inputs: []psbt.PInput{{}},
		},
		err: ErrNoOutputs,
	}, {
		name:   "missing scripts",
		packet: testPacket(psbt.PInput{PartialSigs: sigFor(0)}),
		err:    ErrMissingScripts,
	}, {
		name: "taproot input",
		packet: testPacket(psbt.PInput{
			WitnessScript:      script,
			PartialSigs:        sigFor(0),
			TaprootInternalKey: bytes.Repeat([]byte{2}, 32),
		}),
		err: ErrTaprootInput,
	}, {
		name: "no signature",
		packet: testPacket(psbt.PInput{
			WitnessScript: script,
		}),
		err: ErrSigCount,
	}, {
		name: "two signatures",
		packet: testPacket(psbt.PInput{
			WitnessScript: script,
			PartialSigs:   append(sigFor(0), sigFor(1)...),
		}),
		err: ErrSigCount,
	}, {
		name: "not multisig",
		packet: testPacket(psbt.PInput{
			WitnessScript: []byte{txscript.OP_TRUE},
			PartialSigs:   sigFor(0),
		}),
		err: ErrNotMultisig,
	}, {
		name: "unknown signer",
		packet: testPacket(psbt.PInput{
			WitnessScript: script,
			PartialSigs: []*psbt.PartialSig{{
				PubKey:    bytes.Repeat([]byte{3}, 33),
				Signature: testSig,
			}},
		}),
		err: ErrUnknownSigner,
	}}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			_, err := Extract(test.packet)
			require.ErrorIs(t, err, test.err)
		})
	}
}
