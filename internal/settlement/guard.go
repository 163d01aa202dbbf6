package settlement

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// orderGuard rejects re-entry into an order that is mid-transition.
type orderGuard struct {
	mu   sync.Mutex
	busy map[common.Hash]struct{}
}

func newOrderGuard() *orderGuard {
	return &orderGuard{busy: make(map[common.Hash]struct{})}
}

func (g *orderGuard) acquire(orderID common.Hash) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.busy[orderID]; ok {
		return nil, ErrReentrantCall
	}
	g.busy[orderID] = struct{}{}

	return func() {
		g.mu.Lock()
		delete(g.busy, orderID)
		g.mu.Unlock()
	}, nil
}
