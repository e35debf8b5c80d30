package evm

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/stretchr/testify/require"
)

func TestStoreBatchEncodingPadsBatchIDIntoBytes32(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(storeBatchABI))
	require.NoError(t, err)

	var batchID [16]byte
	copy(batchID[:], []byte("0123456789abcdef"))
	var paddedBatchID [32]byte
	copy(paddedBatchID[16:], batchID[:])

	var merkleRoot [32]byte
	for i := range merkleRoot {
		merkleRoot[i] = byte(i)
	}

	data, err := parsed.Pack("storeBatch", merkleRoot, paddedBatchID, uint32(42))
	require.NoError(t, err)

	// 4-byte selector + 3 × 32-byte arguments.
	require.Len(t, data, 4+32*3)

	for i := 0; i < 16; i++ {
		require.Equal(t, byte(0), data[4+32+i], "batch id argument must be left-padded with zeroes")
	}
	for i := 0; i < 16; i++ {
		require.Equal(t, batchID[i], data[4+32+16+i])
	}
}
