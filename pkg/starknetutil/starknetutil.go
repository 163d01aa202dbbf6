package starknetutil

import (
	"context"
	"fmt"
	"math/big"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/starknet.go/rpc"
	"github.com/NethermindEth/starknet.go/utils"
)

const U128BitShift = 128

var u128Mask = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), U128BitShift), big.NewInt(1))

// Caller is the subset of the Starknet provider used for view calls.
type Caller interface {
	Call(ctx context.Context, call rpc.FunctionCall, blockID rpc.BlockID) ([]*felt.Felt, error)
}

// ConvertBigIntToU256Felts splits value into Cairo u256 (low, high) limbs.
func ConvertBigIntToU256Felts(value *big.Int) (*felt.Felt, *felt.Felt) {
	if value == nil {
		value = new(big.Int)
	}
	low := new(big.Int).And(value, u128Mask)
	high := new(big.Int).Rsh(value, U128BitShift)
	return utils.BigIntToFelt(low), utils.BigIntToFelt(high)
}

// U256FromFelts joins Cairo u256 limbs.
func U256FromFelts(low, high *felt.Felt) *big.Int {
	l := utils.FeltToBigInt(low)
	h := utils.FeltToBigInt(high)
	return new(big.Int).Add(l, new(big.Int).Lsh(h, U128BitShift))
}

// ERC20Balance reads a Cairo ERC20 balance_of.
func ERC20Balance(ctx context.Context, caller Caller, tokenAddress, ownerAddress string) (*big.Int, error) {
	token, err := utils.HexToFelt(tokenAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid token address: %w", err)
	}
	owner, err := utils.HexToFelt(ownerAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid owner address: %w", err)
	}

	call := rpc.FunctionCall{
		ContractAddress:    token,
		EntryPointSelector: utils.GetSelectorFromNameFelt("balance_of"),
		Calldata:           []*felt.Felt{owner},
	}
	resp, err := caller.Call(ctx, call, rpc.WithBlockTag("latest"))
	if err != nil {
		return nil, fmt.Errorf("starknet balance_of call failed: %w", err)
	}
	if len(resp) < 2 {
		return nil, fmt.Errorf("starknet balance_of response too short: %d", len(resp))
	}
	return U256FromFelts(resp[0], resp[1]), nil
}
