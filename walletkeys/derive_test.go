// Copyright (c) 2025 The utxocore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package walletkeys

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/stretchr/testify/require"
)

// TestDeriveDeterministic checks that deriving the same (chain, index)
// repeatedly yields byte-identical key triples.
func TestDeriveDeterministic(t *testing.T) {
	t.Parallel()

	rw := testRootWalletKeys(t)

	for _, chain := range []uint32{0, 1, 20, 40} {
		first, err := rw.Derive(chain, 7)
		require.NoError(t, err)

		second, err := rw.Derive(chain, 7)
		require.NoError(t, err)

		require.Equal(t, first.Serialized(), second.Serialized())
	}
}

// TestDeriveDistinct checks that different (chain, index) pairs and
// different key slots never collide.
func TestDeriveDistinct(t *testing.T) {
	t.Parallel()

	rw := testRootWalletKeys(t)

	a, err := rw.Derive(0, 0)
	require.NoError(t, err)
	b, err := rw.Derive(0, 1)
	require.NoError(t, err)
	c, err := rw.Derive(1, 0)
	require.NoError(t, err)

	require.NotEqual(t, a.Serialized(), b.Serialized())
	require.NotEqual(t, a.Serialized(), c.Serialized())

	// Within one triple the three keys come from independent roots.
	require.NotEqual(
		t, a[KeyIndexUser].SerializeCompressed(),
		a[KeyIndexBackup].SerializeCompressed(),
	)
}

// TestDeriveMatchesManualDerivation checks the derivation against a manual
// walk along prefix/chain/index with hdkeychain directly.
func TestDeriveMatchesManualDerivation(t *testing.T) {
	t.Parallel()

	const (
		chain = uint32(20)
		index = uint32(3)
	)

	rw := testRootWalletKeys(t)

	triple, err := rw.Derive(chain, index)
	require.NoError(t, err)

	for i := 0; i < NumKeys; i++ {
		key := rw.Key(i)
		for _, level := range []uint32{0, 0, chain, index} {
			key, err = key.Derive(level)
			require.NoError(t, err)
		}
		pub, err := key.ECPubKey()
		require.NoError(t, err)

		require.Equal(
			t, pub.SerializeCompressed(),
			triple[i].SerializeCompressed(),
		)
	}
}

// TestDeriveHardenedRejected checks that hardened chain or index values are
// refused outright.
func TestDeriveHardenedRejected(t *testing.T) {
	t.Parallel()

	rw := testRootWalletKeys(t)

	_, err := rw.Derive(hdkeychain.HardenedKeyStart, 0)
	require.ErrorIs(t, err, ErrHardenedChainIndex)

	_, err = rw.Derive(0, hdkeychain.HardenedKeyStart|5)
	require.ErrorIs(t, err, ErrHardenedChainIndex)
}

// TestDerivationPath checks the full path exposed for PSBT metadata.
func TestDerivationPath(t *testing.T) {
	t.Parallel()

	rw, err := NewRootWalletKeys(testKeys(t), [NumKeys][]uint32{
		{0, 0},
		{4, 5, 6},
		nil,
	})
	require.NoError(t, err)

	require.Equal(t, []uint32{0, 0, 10, 2}, rw.DerivationPath(0, 10, 2))
	require.Equal(
		t, []uint32{4, 5, 6, 10, 2}, rw.DerivationPath(1, 10, 2),
	)
	require.Equal(t, []uint32{0, 0, 10, 2}, rw.DerivationPath(2, 10, 2))
}

// TestPrefixAffectsDerivation checks that a different prefix yields a
// different triple for the same (chain, index).
func TestPrefixAffectsDerivation(t *testing.T) {
	t.Parallel()

	defaultKeys := testRootWalletKeys(t)
	customKeys, err := NewRootWalletKeys(
		testKeys(t),
		[NumKeys][]uint32{{1, 1}, {1, 1}, {1, 1}},
	)
	require.NoError(t, err)

	a, err := defaultKeys.Derive(0, 0)
	require.NoError(t, err)
	b, err := customKeys.Derive(0, 0)
	require.NoError(t, err)

	require.NotEqual(t, a.Serialized(), b.Serialized())
}
