package oracle

import (
	"context"
	"fmt"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/starknet.go/rpc"
	"github.com/NethermindEth/starknet.go/utils"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/catalystsystem/catalyst-intent-sub001/internal/orderhash"
	"github.com/catalystsystem/catalyst-intent-sub001/internal/types"
	"github.com/catalystsystem/catalyst-intent-sub001/pkg/starknetutil"
)

// StarknetOracle queries an oracle contract on Starknet through
// is_proven(order_id: u256, output_hashes: Array<u256>, fill_deadline: u64).
type StarknetOracle struct {
	caller  starknetutil.Caller
	address *felt.Felt
	log     *logrus.Entry
}

func NewStarknetOracle(caller starknetutil.Caller, address string, logger *logrus.Logger) (*StarknetOracle, error) {
	addr, err := types.ToStarknetAddress(address)
	if err != nil {
		return nil, fmt.Errorf("invalid Starknet oracle address: %w", err)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &StarknetOracle{
		caller:  caller,
		address: addr,
		log:     logger.WithFields(logrus.Fields{"component": "starknet-oracle", "oracle": addr.String()}),
	}, nil
}

// DialStarknetOracle connects to a Starknet RPC endpoint.
func DialStarknetOracle(rpcURL, address string, logger *logrus.Logger) (*StarknetOracle, error) {
	provider, err := rpc.NewProvider(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", rpcURL, err)
	}
	return NewStarknetOracle(provider, address, logger)
}

// IsProven implements settlement.ProofOracle.
func (o *StarknetOracle) IsProven(ctx context.Context, orderID common.Hash, outputs []types.OutputDescription, fillDeadline uint32) (bool, error) {
	call := rpc.FunctionCall{
		ContractAddress:    o.address,
		EntryPointSelector: utils.GetSelectorFromNameFelt("is_proven"),
		Calldata:           ProvenCalldata(orderID, orderhash.OutputHashes(outputs), fillDeadline),
	}
	resp, err := o.caller.Call(ctx, call, rpc.WithBlockTag("latest"))
	if err != nil {
		return false, fmt.Errorf("starknet is_proven call failed: %w", err)
	}
	if len(resp) < 1 {
		return false, fmt.Errorf("starknet is_proven response empty")
	}
	proven := !resp[0].IsZero()
	o.log.WithFields(logrus.Fields{"order_id": orderID.Hex(), "proven": proven}).Debug("queried starknet oracle")
	return proven, nil
}

// ProvenCalldata serializes is_proven arguments with u256 values split into
// (low, high) felts.
func ProvenCalldata(orderID common.Hash, outputHashes []common.Hash, fillDeadline uint32) []*felt.Felt {
	calldata := make([]*felt.Felt, 0, 4+2*len(outputHashes))
	low, high := starknetutil.ConvertBigIntToU256Felts(orderID.Big())
	calldata = append(calldata, low, high, utils.Uint64ToFelt(uint64(len(outputHashes))))
	for _, h := range outputHashes {
		low, high := starknetutil.ConvertBigIntToU256Felts(h.Big())
		calldata = append(calldata, low, high)
	}
	return append(calldata, utils.Uint64ToFelt(uint64(fillDeadline)))
}
