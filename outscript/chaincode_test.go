// Copyright (c) 2025 The utxocore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package outscript

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestChainCodeMapping checks the documented code-to-variant mapping.
func TestChainCodeMapping(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		code     ChainCode
		variant  ScriptVariant
		internal bool
	}{
		{0, VariantLegacy, false},
		{1, VariantLegacy, true},
		{10, VariantP2SHP2WSH, false},
		{11, VariantP2SHP2WSH, true},
		{20, VariantP2WSH, false},
		{21, VariantP2WSH, true},
		{30, VariantP2TR, false},
		{31, VariantP2TR, true},
		{40, VariantP2TRMuSig2, false},
		{41, VariantP2TRMuSig2, true},
	}

	for _, tc := range testCases {
		require.True(t, tc.code.Valid(), "code %d", tc.code)

		variant, err := tc.code.Variant()
		require.NoError(t, err)
		require.Equal(t, tc.variant, variant, "code %d", tc.code)
		require.Equal(
			t, tc.internal, tc.code.Internal(), "code %d", tc.code,
		)
		require.Equal(
			t, tc.code,
			ChainCodeForVariant(tc.variant, tc.internal),
		)
	}

	require.Len(t, ChainCodes(), len(testCases))
}

// TestChainCodeInvalid checks that codes outside the defined set are
// rejected.
func TestChainCodeInvalid(t *testing.T) {
	t.Parallel()

	for _, code := range []ChainCode{2, 5, 9, 12, 25, 42, 50, 100, 1000} {
		require.False(t, code.Valid(), "code %d", code)

		_, err := code.Variant()
		require.ErrorIs(t, err, ErrInvalidChainCode, "code %d", code)
	}
}

// TestVariantString checks the rendering of variant names.
func TestVariantString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "p2sh", VariantLegacy.String())
	require.Equal(t, "p2trMusig2", VariantP2TRMuSig2.String())
	require.Equal(t, "variant<7>", ScriptVariant(7).String())
}
