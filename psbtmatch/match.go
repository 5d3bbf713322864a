// Copyright (c) 2025 The utxocore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package psbtmatch classifies the inputs and outputs of a partially signed
// transaction against a wallet's root keys. Each item is either owned by
// the wallet at a specific (chain, index), external to the wallet, or
// corrupt: its embedded metadata claims the wallet's keys but the script
// derived for the claimed path does not match the actual script.
package psbtmatch

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/bitgo/utxocore/outscript"
	"github.com/bitgo/utxocore/walletkeys"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// Status is the ownership classification of a successfully parsed input or
// output. Corruption is not a status: metadata that claims the wallet's keys
// but cannot be verified fails the parse with a CorruptionError instead.
type Status uint8

const (
	// StatusExternal marks an item not controlled by this wallet.
	StatusExternal Status = iota

	// StatusWalletOwned marks an item whose script the wallet controls
	// at a verified (chain, index).
	StatusWalletOwned
)

// String returns a human-readable name for the status.
func (s Status) String() string {
	switch s {
	case StatusExternal:
		return "external"
	case StatusWalletOwned:
		return "walletOwned"
	default:
		return fmt.Sprintf("status<%d>", uint8(s))
	}
}

// ScriptId locates a wallet-owned script: the chain code naming the script
// variant and branch, and the address index within that chain.
type ScriptId struct {
	// Chain is the chain code of the derivation.
	Chain outscript.ChainCode

	// Index is the non-hardened address index.
	Index uint32
}

// String returns the conventional chain/index rendering of the id.
func (s ScriptId) String() string {
	return fmt.Sprintf("%d/%d", s.Chain, s.Index)
}

// ParsedOutput is the classification result for a single transaction
// output. It is created fresh per call and never mutated afterwards.
type ParsedOutput struct {
	// Address is the standard-form address of the output script, or
	// empty when the script has no recognized standard form.
	Address string

	// PkScript is the raw output script.
	PkScript []byte

	// Value is the output amount.
	Value btcutil.Amount

	// ScriptId is the wallet derivation of the output script, or None
	// when the output is not controlled by this wallet.
	ScriptId fn.Option[ScriptId]
}

// Status returns the ownership classification of the output.
func (p ParsedOutput) Status() Status {
	if p.ScriptId.IsSome() {
		return StatusWalletOwned
	}

	return StatusExternal
}

// ParsedInput is the classification result for a single transaction input.
type ParsedInput struct {
	// Address is the standard-form address of the spent output script,
	// or empty when unknown or nonstandard.
	Address string

	// PkScript is the output script being spent, when known.
	PkScript []byte

	// Value is the value of the spent output, when known.
	Value btcutil.Amount

	// ScriptId is the wallet derivation of the spent script, or None
	// when the input does not spend a wallet script.
	ScriptId fn.Option[ScriptId]

	// ReplayProtection is true when the spent script is a registered
	// replay-protection script rather than a wallet or external script.
	ReplayProtection bool
}

// Status returns the ownership classification of the input.
func (p ParsedInput) Status() Status {
	if p.ScriptId.IsSome() {
		return StatusWalletOwned
	}

	return StatusExternal
}

// Parsed is the ordered classification of every input and output of a
// transaction. Result order corresponds to transaction position.
type Parsed struct {
	Inputs  []ParsedInput
	Outputs []ParsedOutput
}

// keyOrigin is a normalized derivation record from either the BIP32 or the
// taproot key-origin metadata of an input or output.
type keyOrigin struct {
	pubKey      []byte
	fingerprint uint32
	path        []uint32
	xOnly       bool
}

// originsOf flattens the two metadata lists into normalized records.
func originsOf(bip32 []*psbt.Bip32Derivation,
	taproot []*psbt.TaprootBip32Derivation) []keyOrigin {

	origins := make([]keyOrigin, 0, len(bip32)+len(taproot))
	for _, d := range bip32 {
		origins = append(origins, keyOrigin{
			pubKey:      d.PubKey,
			fingerprint: d.MasterKeyFingerprint,
			path:        d.Bip32Path,
		})
	}
	for _, d := range taproot {
		origins = append(origins, keyOrigin{
			pubKey:      d.XOnlyPubKey,
			fingerprint: d.MasterKeyFingerprint,
			path:        d.Bip32Path,
			xOnly:       true,
		})
	}

	return origins
}

// claim is a metadata entry whose fingerprint matches one of the wallet's
// root keys, tagged with that key's slot.
type claim struct {
	origin keyOrigin
	slot   int
}

// walletClaims picks out the metadata entries that reference this wallet's
// root keys by fingerprint. Entries for foreign fingerprints belong to other
// signers and say nothing about ownership.
func walletClaims(keys *walletkeys.RootWalletKeys,
	origins []keyOrigin) ([]claim, error) {

	fps, err := keys.Fingerprints()
	if err != nil {
		return nil, err
	}

	var claims []claim
	for _, origin := range origins {
		for slot, fp := range fps {
			if origin.fingerprint == fp {
				claims = append(claims, claim{origin, slot})
				break
			}
		}
	}

	return claims, nil
}

// classify runs the core decision algorithm for one item:
//
//  1. No metadata referencing this wallet's keys: external, None.
//  2. Metadata referencing this wallet: all paths must agree on one
//     (chain, index) along each key's configured prefix, the claimed public
//     keys must match the derived triple, and the derived script must equal
//     the actual script. Any violation is a CorruptionError, never
//     "external".
func classify(keys *walletkeys.RootWalletKeys, origins []keyOrigin,
	script []byte) (fn.Option[ScriptId], error) {

	none := fn.None[ScriptId]()

	claims, err := walletClaims(keys, origins)
	if err != nil {
		return none, err
	}
	if len(claims) == 0 {
		return none, nil
	}

	// Every claim must carry the same (chain, index) suffix, reached
	// through the claimed key's own prefix.
	var (
		chain, index uint32
		first        = true
	)
	for _, c := range claims {
		path := c.origin.path
		if len(path) < 2 {
			return none, newCorruption(ReasonInvalidPath)
		}
		cChain, cIndex := path[len(path)-2], path[len(path)-1]

		want := keys.DerivationPath(c.slot, cChain, cIndex)
		if !pathsEqual(path, want) {
			return none, newCorruption(ReasonInconsistentPaths)
		}

		if first {
			chain, index = cChain, cIndex
			first = false
			continue
		}
		if cChain != chain || cIndex != index {
			return none, newCorruption(ReasonInconsistentPaths)
		}
	}

	chainCode := outscript.ChainCode(chain)
	if !chainCode.Valid() {
		return none, newCorruption(ReasonInvalidChainCode)
	}

	// Derivation failures are ordinary errors: the metadata is not
	// necessarily corrupt, the caller simply cannot verify it.
	triple, err := keys.Derive(chain, index)
	if err != nil {
		return none, err
	}

	for _, c := range claims {
		derived := triple[c.slot].SerializeCompressed()
		if c.origin.xOnly {
			derived = derived[1:]
		}
		if !bytes.Equal(c.origin.pubKey, derived) {
			return none, newCorruption(ReasonPubKeyMismatch)
		}
	}

	expected, err := outscript.BuildScriptForChain(triple, chainCode)
	if err != nil {
		return none, err
	}
	if !bytes.Equal(expected, script) {
		return none, newCorruption(ReasonScriptMismatch)
	}

	return fn.Some(ScriptId{Chain: chainCode, Index: index}), nil
}

// pathsEqual reports whether two derivation paths are identical.
func pathsEqual(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}

// MatchOutput classifies a single transaction output against the wallet
// keys. The psbt output carries the derivation metadata; the wire output
// carries the script and value.
func MatchOutput(keys *walletkeys.RootWalletKeys, pOut *psbt.POutput,
	txOut *wire.TxOut, net *chaincfg.Params) (ParsedOutput, error) {

	origins := originsOf(
		pOut.Bip32Derivation, pOut.TaprootBip32Derivation,
	)
	scriptId, err := classify(keys, origins, txOut.PkScript)
	if err != nil {
		return ParsedOutput{}, err
	}

	return ParsedOutput{
		Address:  scriptAddress(txOut.PkScript, net),
		PkScript: txOut.PkScript,
		Value:    btcutil.Amount(txOut.Value),
		ScriptId: scriptId,
	}, nil
}

// MatchInput classifies a single transaction input against the wallet keys
// and the optional replay-protection registry. The spent output script is
// taken from the input's witness UTXO when present, falling back to the
// referenced output of the full previous transaction.
func MatchInput(keys *walletkeys.RootWalletKeys, pIn *psbt.PInput,
	txIn *wire.TxIn, net *chaincfg.Params,
	registry *outscript.Registry) (ParsedInput, error) {

	prevOut, err := spentOutput(pIn, txIn)
	if err != nil {
		return ParsedInput{}, err
	}

	origins := originsOf(pIn.Bip32Derivation, pIn.TaprootBip32Derivation)
	if len(origins) == 0 {
		parsed := ParsedInput{ScriptId: fn.None[ScriptId]()}
		if prevOut != nil {
			parsed.Address = scriptAddress(prevOut.PkScript, net)
			parsed.PkScript = prevOut.PkScript
			parsed.Value = btcutil.Amount(prevOut.Value)
			parsed.ReplayProtection = registry.Contains(
				prevOut.PkScript,
			)
		}

		return parsed, nil
	}

	if prevOut == nil {
		claims, err := walletClaims(keys, origins)
		if err != nil {
			return ParsedInput{}, err
		}

		// Metadata naming only foreign root keys belongs to other
		// signers; with no spent script there is nothing further to
		// verify and the input is external.
		if len(claims) == 0 {
			return ParsedInput{ScriptId: fn.None[ScriptId]()}, nil
		}

		// A claim on this wallet's keys is only verifiable against
		// the spent script. Refusing to classify here is deliberate:
		// guessing "external" for a claimed input would reopen the
		// misattribution bug class.
		return ParsedInput{}, ErrMissingUtxoInfo
	}

	scriptId, err := classify(keys, origins, prevOut.PkScript)
	if err != nil {
		return ParsedInput{}, err
	}

	return ParsedInput{
		Address:  scriptAddress(prevOut.PkScript, net),
		PkScript: prevOut.PkScript,
		Value:    btcutil.Amount(prevOut.Value),
		ScriptId: scriptId,
	}, nil
}

// spentOutput resolves the output an input spends from the information
// embedded in the psbt input, or nil when none is present.
func spentOutput(pIn *psbt.PInput, txIn *wire.TxIn) (*wire.TxOut, error) {
	if pIn.WitnessUtxo != nil {
		return pIn.WitnessUtxo, nil
	}
	if pIn.NonWitnessUtxo != nil {
		idx := txIn.PreviousOutPoint.Index
		if idx >= uint32(len(pIn.NonWitnessUtxo.TxOut)) {
			return nil, fmt.Errorf("%w: %d",
				ErrPrevIndexOutOfRange, idx)
		}

		return pIn.NonWitnessUtxo.TxOut[idx], nil
	}

	return nil, nil
}

// ParseTransaction classifies every input and output of the packet, in
// transaction order. The first corrupt item aborts the whole parse with the
// item's position recorded in the returned CorruptionError; classification
// of one item never depends on any other.
func ParseTransaction(keys *walletkeys.RootWalletKeys, packet *psbt.Packet,
	net *chaincfg.Params,
	registry *outscript.Registry) (*Parsed, error) {

	tx := packet.UnsignedTx
	parsed := &Parsed{
		Inputs:  make([]ParsedInput, 0, len(tx.TxIn)),
		Outputs: make([]ParsedOutput, 0, len(tx.TxOut)),
	}

	for i := range tx.TxIn {
		in, err := MatchInput(
			keys, &packet.Inputs[i], tx.TxIn[i], net, registry,
		)
		if err != nil {
			return nil, attribute(err, i, true)
		}
		log.Debugf("input %d: scriptId=%v replayProtection=%v",
			i, in.ScriptId, in.ReplayProtection)
		parsed.Inputs = append(parsed.Inputs, in)
	}

	for i := range tx.TxOut {
		out, err := MatchOutput(
			keys, &packet.Outputs[i], tx.TxOut[i], net,
		)
		if err != nil {
			return nil, attribute(err, i, false)
		}
		log.Debugf("output %d: scriptId=%v value=%v",
			i, out.ScriptId, out.Value)
		parsed.Outputs = append(parsed.Outputs, out)
	}

	return parsed, nil
}

// attribute records the transaction position on corruption errors and adds
// positional context to everything else.
func attribute(err error, index int, isInput bool) error {
	var corrupt *CorruptionError
	if errors.As(err, &corrupt) {
		corrupt.Index = index
		corrupt.IsInput = isInput

		return corrupt
	}

	side := "output"
	if isInput {
		side = "input"
	}

	return fmt.Errorf("%s %d: %w", side, index, err)
}

// scriptAddress renders the standard-form address of a script, or empty
// when the script has no single standard address.
func scriptAddress(script []byte, net *chaincfg.Params) string {
	if net == nil {
		return ""
	}
	_, addrs, _, err := txscript.ExtractPkScriptAddrs(script, net)
	if err != nil || len(addrs) != 1 {
		return ""
	}

	return addrs[0].EncodeAddress()
}
