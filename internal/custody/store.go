package custody

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Balance is the free balance of Token held by Owner.
type Balance struct {
	Owner  common.Address
	Token  common.Address
	Amount *uint256.Int
}

// Escrow is the amount of Token locked for OrderID.
type Escrow struct {
	OrderID common.Hash
	Token   common.Address
	Amount  *uint256.Int
}

// Nonce is a spent permit nonce.
type Nonce struct {
	Owner common.Address
	Nonce *uint256.Int
}

// Entries is a set of ledger rows. Loaded, it is the whole ledger; saved, it
// holds the rows one movement changed.
type Entries struct {
	Balances []Balance
	Escrows  []Escrow
	Nonces   []Nonce
	// Released lists orders whose escrow was paid out.
	Released []common.Hash
}

// Store persists the ledger. SaveLedger must apply entries atomically.
type Store interface {
	LoadLedger(ctx context.Context) (Entries, error)
	SaveLedger(ctx context.Context, entries Entries) error
	Close()
}
