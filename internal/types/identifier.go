package types

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/starknet.go/utils"
	"github.com/ethereum/go-ethereum/common"
)

// Identifier is a 32-byte reference to an account, token or contract on any
// domain. EVM addresses are right-aligned, Starknet felts are stored as-is.
type Identifier = common.Hash

// IdentifierFromAddress left-pads an EVM address to 32 bytes.
func IdentifierFromAddress(addr common.Address) Identifier {
	var id Identifier
	copy(id[12:], addr.Bytes())
	return id
}

// IdentifierFromFelt converts a Starknet felt into an identifier.
func IdentifierFromFelt(f *felt.Felt) Identifier {
	if f == nil {
		return Identifier{}
	}
	return Identifier(f.Bytes())
}

// ToIdentifier parses an EVM address (40 hex chars), a Starknet felt
// (up to 63 hex chars) or a raw bytes32 value (64 hex chars).
func ToIdentifier(address string) (Identifier, error) {
	cleanAddr := strings.TrimPrefix(address, "0x")

	switch {
	case len(cleanAddr) == 64:
		b, err := hex.DecodeString(cleanAddr)
		if err != nil {
			return Identifier{}, fmt.Errorf("failed to decode bytes32 address: %w", err)
		}
		return common.BytesToHash(b), nil
	case len(cleanAddr) == 40:
		if !common.IsHexAddress(address) {
			return Identifier{}, fmt.Errorf("invalid EVM address: %s", address)
		}
		return IdentifierFromAddress(common.HexToAddress(address)), nil
	case len(cleanAddr) > 0 && len(cleanAddr) < 64:
		f, err := utils.HexToFelt(address)
		if err != nil {
			return Identifier{}, fmt.Errorf("failed to decode Starknet address: %w", err)
		}
		return IdentifierFromFelt(f), nil
	}

	return Identifier{}, fmt.Errorf("unsupported address format: %s", address)
}

// ToEVMAddress converts a string address to an EVM address. Bytes32 values
// must carry the address in their low 20 bytes.
func ToEVMAddress(address string) (common.Address, error) {
	cleanAddr := strings.TrimPrefix(address, "0x")

	if len(cleanAddr) == 40 {
		if !common.IsHexAddress(address) {
			return common.Address{}, fmt.Errorf("invalid EVM address: %s", address)
		}
		return common.HexToAddress(address), nil
	}

	if len(cleanAddr) == 64 {
		id, err := ToIdentifier(address)
		if err != nil {
			return common.Address{}, err
		}
		return IdentifierToAddress(id)
	}

	return common.Address{}, fmt.Errorf("unsupported address format: %s", address)
}

// IdentifierToAddress extracts the EVM address held by id. It fails when the
// upper 12 bytes are not zero.
func IdentifierToAddress(id Identifier) (common.Address, error) {
	for _, b := range id[:12] {
		if b != 0 {
			return common.Address{}, fmt.Errorf("identifier %s is not an EVM address", id.Hex())
		}
	}
	return common.BytesToAddress(id[12:]), nil
}

// ToStarknetAddress converts a string address to a Starknet felt.
func ToStarknetAddress(address string) (*felt.Felt, error) {
	f, err := utils.HexToFelt(address)
	if err != nil {
		return nil, fmt.Errorf("failed to convert address to felt: %w", err)
	}
	return f, nil
}

// IdentifierToFelt converts id into a felt, rejecting values outside the
// field.
func IdentifierToFelt(id Identifier) (*felt.Felt, error) {
	f := new(felt.Felt).SetBytes(id[:])
	if f.Bytes() != id {
		return nil, fmt.Errorf("identifier %s exceeds the Starknet field", id.Hex())
	}
	return f, nil
}

// IsStarknetAddress checks if an address string represents a Starknet address
func IsStarknetAddress(address string) bool {
	cleanAddr := strings.TrimPrefix(address, "0x")
	return len(cleanAddr) > 40 && len(cleanAddr) < 64
}

// IsEVMAddress checks if an address string represents an EVM address
func IsEVMAddress(address string) bool {
	return common.IsHexAddress(address)
}
