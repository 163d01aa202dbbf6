package custody

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// NonceTracker records spent permit nonces per owner. Nonces are unordered:
// any unused value is accepted once.
type NonceTracker struct {
	mu   sync.RWMutex
	used map[common.Address]map[uint256.Int]struct{}
}

// NewNonceTracker creates a new nonce tracker
func NewNonceTracker() *NonceTracker {
	return &NonceTracker{used: make(map[common.Address]map[uint256.Int]struct{})}
}

// IsUsed reports whether owner already spent nonce.
func (nt *NonceTracker) IsUsed(owner common.Address, nonce *uint256.Int) bool {
	nt.mu.RLock()
	defer nt.mu.RUnlock()
	_, ok := nt.used[owner][*nonce]
	return ok
}

// Use marks nonce as spent. It returns false when it already was.
func (nt *NonceTracker) Use(owner common.Address, nonce *uint256.Int) bool {
	nt.mu.Lock()
	defer nt.mu.Unlock()

	if _, ok := nt.used[owner]; !ok {
		nt.used[owner] = make(map[uint256.Int]struct{})
	}
	if _, ok := nt.used[owner][*nonce]; ok {
		return false
	}
	nt.used[owner][*nonce] = struct{}{}
	return true
}
