package types

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToIdentifier(t *testing.T) {
	evm := "0x1234567890123456789012345678901234567890"

	tests := []struct {
		name     string
		input    string
		expected string
		hasError bool
	}{
		{
			name:     "evm address is left padded",
			input:    evm,
			expected: "0x0000000000000000000000001234567890123456789012345678901234567890",
		},
		{
			name:     "bytes32 is kept",
			input:    "0x1111111111111111111111111111111111111111111111111111111111111111",
			expected: "0x1111111111111111111111111111111111111111111111111111111111111111",
		},
		{
			name:     "starknet felt",
			input:    "0x01234567890abcdef1234567890abcdef1234567890abcdef1234567890abc",
			expected: "0x0001234567890abcdef1234567890abcdef1234567890abcdef1234567890abc",
		},
		{name: "empty", input: "", hasError: true},
		{name: "invalid hex", input: "0xzz34567890123456789012345678901234567890", hasError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := ToIdentifier(tt.input)
			if tt.hasError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, id.Hex())
		})
	}
}

func TestIdentifierToAddress(t *testing.T) {
	addr := common.HexToAddress("0x1234567890123456789012345678901234567890")

	got, err := IdentifierToAddress(IdentifierFromAddress(addr))
	require.NoError(t, err)
	assert.Equal(t, addr, got)

	_, err = IdentifierToAddress(common.HexToHash("0x1100000000000000000000001234567890123456789012345678901234567890"))
	assert.Error(t, err)

	viaString, err := ToEVMAddress(IdentifierFromAddress(addr).Hex())
	require.NoError(t, err)
	assert.Equal(t, addr, viaString)
}

func TestIdentifierToFelt(t *testing.T) {
	id, err := ToIdentifier("0x0abc")
	require.NoError(t, err)

	f, err := IdentifierToFelt(id)
	require.NoError(t, err)
	assert.Equal(t, id, IdentifierFromFelt(f))

	_, err = IdentifierToFelt(common.HexToHash("0xffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"))
	assert.Error(t, err)
}

func TestAddressKinds(t *testing.T) {
	assert.True(t, IsEVMAddress("0x1234567890123456789012345678901234567890"))
	assert.False(t, IsEVMAddress("0x1234"))
	assert.True(t, IsStarknetAddress("0x01234567890abcdef1234567890abcdef1234567890abcdef1234567890abc"))
	assert.False(t, IsStarknetAddress("0x1234567890123456789012345678901234567890"))
}
