package filler

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/holiman/uint256"

	"github.com/catalystsystem/catalyst-intent-sub001/internal/types"
	"github.com/catalystsystem/catalyst-intent-sub001/pkg/ethutil"
	"github.com/catalystsystem/catalyst-intent-sub001/pkg/starknetutil"
)

var ErrInsufficientBalance = errors.New("insufficient balance")

// BalanceSource reads token balances on one destination domain.
type BalanceSource interface {
	BalanceOf(ctx context.Context, token, holder types.Identifier) (*uint256.Int, error)
}

// Destination delivers tokens on one destination domain.
type Destination interface {
	BalanceSource
	Transfer(ctx context.Context, token, from, to types.Identifier, amount *uint256.Int) error
}

type holding struct {
	token  types.Identifier
	holder types.Identifier
}

// MemoryDestination is an in-memory destination ledger.
type MemoryDestination struct {
	mu       sync.Mutex
	balances map[holding]*uint256.Int
}

func NewMemoryDestination() *MemoryDestination {
	return &MemoryDestination{balances: make(map[holding]*uint256.Int)}
}

func (d *MemoryDestination) Mint(token, holder types.Identifier, amount *uint256.Int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := holding{token, holder}
	d.balances[key] = new(uint256.Int).Add(d.balance(key), amount)
}

func (d *MemoryDestination) BalanceOf(_ context.Context, token, holder types.Identifier) (*uint256.Int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return new(uint256.Int).Set(d.balance(holding{token, holder})), nil
}

func (d *MemoryDestination) Transfer(_ context.Context, token, from, to types.Identifier, amount *uint256.Int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	src := holding{token, from}
	if d.balance(src).Lt(amount) {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, d.balance(src).Dec(), amount.Dec())
	}
	if from == to {
		return nil
	}
	dst := holding{token, to}
	sum, overflow := new(uint256.Int).AddOverflow(d.balance(dst), amount)
	if overflow {
		return fmt.Errorf("balance overflow for %s", to.Hex())
	}
	d.balances[src] = new(uint256.Int).Sub(d.balance(src), amount)
	d.balances[dst] = sum
	return nil
}

func (d *MemoryDestination) balance(key holding) *uint256.Int {
	if v, ok := d.balances[key]; ok {
		return v
	}
	return new(uint256.Int)
}

// EVMBalances reads ERC20 balances from an EVM chain.
type EVMBalances struct {
	client ethereum.ContractCaller
}

func NewEVMBalances(client ethereum.ContractCaller) *EVMBalances {
	return &EVMBalances{client: client}
}

func (b *EVMBalances) BalanceOf(ctx context.Context, token, holder types.Identifier) (*uint256.Int, error) {
	tokenAddr, err := types.IdentifierToAddress(token)
	if err != nil {
		return nil, err
	}
	holderAddr, err := types.IdentifierToAddress(holder)
	if err != nil {
		return nil, err
	}
	balance, err := ethutil.ERC20Balance(ctx, b.client, tokenAddr, holderAddr)
	if err != nil {
		return nil, err
	}
	return toUint256(balance)
}

// StarknetBalances reads ERC20 balances from Starknet.
type StarknetBalances struct {
	caller starknetutil.Caller
}

func NewStarknetBalances(caller starknetutil.Caller) *StarknetBalances {
	return &StarknetBalances{caller: caller}
}

func (b *StarknetBalances) BalanceOf(ctx context.Context, token, holder types.Identifier) (*uint256.Int, error) {
	tokenFelt, err := types.IdentifierToFelt(token)
	if err != nil {
		return nil, err
	}
	holderFelt, err := types.IdentifierToFelt(holder)
	if err != nil {
		return nil, err
	}
	balance, err := starknetutil.ERC20Balance(ctx, b.caller, tokenFelt.String(), holderFelt.String())
	if err != nil {
		return nil, err
	}
	return toUint256(balance)
}

func toUint256(v *big.Int) (*uint256.Int, error) {
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, fmt.Errorf("balance %s exceeds 256 bits", v.String())
	}
	return out, nil
}
