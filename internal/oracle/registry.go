// Package oracle answers whether order outputs were delivered on their
// destination domains.
package oracle

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/catalystsystem/catalyst-intent-sub001/internal/orderhash"
	"github.com/catalystsystem/catalyst-intent-sub001/internal/types"
)

// Attestation is the fulfillment record of one output.
type Attestation struct {
	Solver    types.Identifier
	Timestamp uint32
}

// Registry keeps attestations in memory. Fillers or relays feed it through
// Attest and settlers query it through IsProven.
type Registry struct {
	mu    sync.RWMutex
	fills map[common.Hash]map[common.Hash]Attestation
}

func NewRegistry() *Registry {
	return &Registry{fills: make(map[common.Hash]map[common.Hash]Attestation)}
}

// Attest records that outputHash of orderID was filled by solver at
// timestamp. The first attestation of an output is kept.
func (r *Registry) Attest(_ context.Context, orderID, outputHash common.Hash, solver types.Identifier, timestamp uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	fills, ok := r.fills[orderID]
	if !ok {
		fills = make(map[common.Hash]Attestation)
		r.fills[orderID] = fills
	}
	if _, ok := fills[outputHash]; !ok {
		fills[outputHash] = Attestation{Solver: solver, Timestamp: timestamp}
	}
	return nil
}

// Attestation returns the recorded fill of outputHash, if any.
func (r *Registry) Attestation(orderID, outputHash common.Hash) (Attestation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.fills[orderID][outputHash]
	return a, ok
}

// IsProven implements settlement.ProofOracle.
func (r *Registry) IsProven(_ context.Context, orderID common.Hash, outputs []types.OutputDescription, fillDeadline uint32) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fills := r.fills[orderID]
	for _, hash := range orderhash.OutputHashes(outputs) {
		a, ok := fills[hash]
		if !ok || a.Timestamp > fillDeadline {
			return false, nil
		}
	}
	return true, nil
}
