package inmemory

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/catalystsystem/catalyst-intent-sub001/internal/custody"
)

type escrowKey struct {
	orderID common.Hash
	token   common.Address
}

type accountKey struct {
	owner common.Address
	token common.Address
}

type nonceKey struct {
	owner common.Address
	nonce uint256.Int
}

type ledgerRepository struct {
	lock     sync.RWMutex
	balances map[accountKey]uint256.Int
	escrows  map[escrowKey]uint256.Int
	nonces   map[nonceKey]struct{}
}

func NewLedgerRepository(_ ...interface{}) (custody.Store, error) {
	return &ledgerRepository{
		balances: make(map[accountKey]uint256.Int),
		escrows:  make(map[escrowKey]uint256.Int),
		nonces:   make(map[nonceKey]struct{}),
	}, nil
}

func (r *ledgerRepository) LoadLedger(_ context.Context) (custody.Entries, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	var entries custody.Entries
	for key, amount := range r.balances {
		entries.Balances = append(entries.Balances, custody.Balance{Owner: key.owner, Token: key.token, Amount: new(uint256.Int).Set(&amount)})
	}
	for key, amount := range r.escrows {
		entries.Escrows = append(entries.Escrows, custody.Escrow{OrderID: key.orderID, Token: key.token, Amount: new(uint256.Int).Set(&amount)})
	}
	for key := range r.nonces {
		entries.Nonces = append(entries.Nonces, custody.Nonce{Owner: key.owner, Nonce: new(uint256.Int).Set(&key.nonce)})
	}
	return entries, nil
}

func (r *ledgerRepository) SaveLedger(_ context.Context, entries custody.Entries) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	for _, orderID := range entries.Released {
		for key := range r.escrows {
			if key.orderID == orderID {
				delete(r.escrows, key)
			}
		}
	}
	for _, b := range entries.Balances {
		r.balances[accountKey{b.Owner, b.Token}] = *b.Amount
	}
	for _, e := range entries.Escrows {
		r.escrows[escrowKey{e.OrderID, e.Token}] = *e.Amount
	}
	for _, n := range entries.Nonces {
		r.nonces[nonceKey{n.Owner, *n.Nonce}] = struct{}{}
	}
	return nil
}

func (r *ledgerRepository) Close() {}
