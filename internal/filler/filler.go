// Package filler is a minimal destination-side solver: it delivers order
// outputs, keeps fill records and reports them to a proof oracle.
package filler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"github.com/catalystsystem/catalyst-intent-sub001/internal/orderhash"
	"github.com/catalystsystem/catalyst-intent-sub001/internal/types"
)

var (
	ErrFillDeadlinePassed = errors.New("fill deadline passed")
	ErrUnknownDestination = errors.New("no destination for chain")
)

// Attester receives fill attestations, see oracle.Registry.
type Attester interface {
	Attest(ctx context.Context, orderID, outputHash common.Hash, solver types.Identifier, timestamp uint32) error
}

// FillRecord is the destination-side proof that an output was delivered.
type FillRecord struct {
	OrderID    common.Hash      `json:"orderId"`
	OutputHash common.Hash      `json:"outputHash"`
	Solver     types.Identifier `json:"solver"`
	Timestamp  uint32           `json:"timestamp"`
	Amount     *uint256.Int     `json:"amount"`
}

type recordKey struct {
	orderID    common.Hash
	outputHash common.Hash
}

type Config struct {
	// Solver is the filler's identity on every destination.
	Solver types.Identifier
	// Destinations maps chain id to the ledger the solver delivers on.
	Destinations map[uint64]Destination
	// Balances optionally overrides where balance checks read from.
	Balances map[uint64]BalanceSource
	Attester Attester
	// AttestTimeout bounds one attestation. Defaults to DefaultAttestTimeout.
	AttestTimeout time.Duration
	Clock         func() time.Time
	Logger        *logrus.Logger
}

const DefaultAttestTimeout = 10 * time.Second

type Filler struct {
	solver        types.Identifier
	destinations  map[uint64]Destination
	balances      map[uint64]BalanceSource
	attester      Attester
	attestTimeout time.Duration
	clock         func() time.Time
	log           *logrus.Entry
	processor     *ParallelProcessor

	mu      sync.Mutex
	records map[recordKey]FillRecord
}

func New(cfg Config) *Filler {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	attestTimeout := cfg.AttestTimeout
	if attestTimeout <= 0 {
		attestTimeout = DefaultAttestTimeout
	}
	log := logger.WithFields(logrus.Fields{"component": "filler", "solver": cfg.Solver.Hex()})
	return &Filler{
		solver:        cfg.Solver,
		destinations:  cfg.Destinations,
		balances:      cfg.Balances,
		attester:      cfg.Attester,
		attestTimeout: attestTimeout,
		clock:         clock,
		log:           log,
		processor:     &ParallelProcessor{log: log},
		records:       make(map[recordKey]FillRecord),
	}
}

// Fill delivers every output of orderID at the amount resolved for now and
// attests each delivery. Outputs that were already filled are not
// delivered again.
func (f *Filler) Fill(ctx context.Context, orderID common.Hash, fillDeadline uint32, outputs []types.OutputDescription) ([]FillRecord, error) {
	now := uint32(f.clock().Unix())
	if now > fillDeadline {
		return nil, ErrFillDeadlinePassed
	}
	if err := f.checkOutputs(outputs); err != nil {
		return nil, err
	}

	amounts := make([]*uint256.Int, len(outputs))
	pending := make([]types.OutputDescription, 0, len(outputs))
	pendingAmounts := make([]*uint256.Int, 0, len(outputs))
	for i, output := range outputs {
		amount, err := types.ResolveAmount(output, now)
		if err != nil {
			return nil, fmt.Errorf("output %d: %w", i, err)
		}
		amounts[i] = amount
		if _, ok := f.Record(orderID, orderhash.OutputHash(output)); !ok {
			pending = append(pending, output)
			pendingAmounts = append(pendingAmounts, amount)
		}
	}
	if len(pending) > 0 {
		if err := f.enoughBalanceOnDestination(ctx, pending, pendingAmounts); err != nil {
			return nil, err
		}
	}

	records := make([]FillRecord, len(outputs))
	err := f.processor.ProcessOutputsInParallel(ctx, outputs, func(ctx context.Context, idx int, output types.OutputDescription) error {
		record, err := f.fillOutput(ctx, orderID, output, amounts[idx], now)
		if err != nil {
			return err
		}
		records[idx] = record
		return nil
	})
	if err != nil {
		return nil, err
	}

	f.log.WithFields(logrus.Fields{"order_id": orderID.Hex(), "outputs": len(outputs)}).Info("order filled")
	return records, nil
}

func (f *Filler) fillOutput(ctx context.Context, orderID common.Hash, output types.OutputDescription, amount *uint256.Int, now uint32) (FillRecord, error) {
	key := recordKey{orderID: orderID, outputHash: orderhash.OutputHash(output)}

	f.mu.Lock()
	if existing, ok := f.records[key]; ok {
		f.mu.Unlock()
		return existing, nil
	}
	// Reserved before the transfer so concurrent fills of one output deliver once.
	record := FillRecord{OrderID: orderID, OutputHash: key.outputHash, Solver: f.solver, Timestamp: now, Amount: amount}
	f.records[key] = record
	f.mu.Unlock()

	destination := f.destinations[types.AmountOrZero(output.ChainID).Uint64()]
	if err := destination.Transfer(ctx, output.Token, f.solver, output.Recipient, amount); err != nil {
		f.mu.Lock()
		delete(f.records, key)
		f.mu.Unlock()
		return FillRecord{}, fmt.Errorf("failed to deliver %s: %w", output.Token.Hex(), err)
	}

	if f.attester != nil {
		attestCtx, cancel := context.WithTimeout(ctx, f.attestTimeout)
		defer cancel()
		err := f.processor.ProcessWithTimeout(attestCtx, func(ctx context.Context) error {
			return f.attester.Attest(ctx, orderID, key.outputHash, f.solver, now)
		}, "attestation")
		if err != nil {
			return record, fmt.Errorf("failed to attest fill: %w", err)
		}
	}
	return record, nil
}

// Record returns the fill record of one output.
func (f *Filler) Record(orderID, outputHash common.Hash) (FillRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[recordKey{orderID, outputHash}]
	return r, ok
}

func (f *Filler) balanceSource(chainID uint64) (BalanceSource, error) {
	if source, ok := f.balances[chainID]; ok {
		return source, nil
	}
	if dest, ok := f.destinations[chainID]; ok {
		return dest, nil
	}
	return nil, fmt.Errorf("%w %d", ErrUnknownDestination, chainID)
}
