package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"github.com/catalystsystem/catalyst-intent-sub001/internal/orderhash"
	"github.com/catalystsystem/catalyst-intent-sub001/internal/types"
)

const evmOracleABI = `[{"type":"function","name":"isProven","stateMutability":"view","inputs":[{"name":"orderId","type":"bytes32"},{"name":"outputHashes","type":"bytes32[]"},{"name":"fillDeadline","type":"uint32"}],"outputs":[{"name":"","type":"bool"}]}]`

// EVMOracle queries an oracle contract on an EVM chain.
type EVMOracle struct {
	client  bind.ContractCaller
	closer  func()
	address common.Address
	abi     abi.ABI
	log     *logrus.Entry
}

// NewEVMOracle wraps an existing client.
func NewEVMOracle(client bind.ContractCaller, address common.Address, logger *logrus.Logger) (*EVMOracle, error) {
	parsed, err := abi.JSON(strings.NewReader(evmOracleABI))
	if err != nil {
		return nil, fmt.Errorf("oracle abi parse failed: %w", err)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &EVMOracle{
		client:  client,
		address: address,
		abi:     parsed,
		log:     logger.WithFields(logrus.Fields{"component": "evm-oracle", "oracle": address.Hex()}),
	}, nil
}

// DialEVMOracle connects to rpcURL and checks that the oracle is deployed.
func DialEVMOracle(ctx context.Context, rpcURL string, address common.Address, logger *logrus.Logger) (*EVMOracle, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", rpcURL, err)
	}
	o, err := NewEVMOracle(client, address, logger)
	if err != nil {
		client.Close()
		return nil, err
	}
	o.closer = client.Close
	if err := o.Verify(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return o, nil
}

// Verify checks that the oracle address holds code.
func (o *EVMOracle) Verify(ctx context.Context) error {
	code, err := o.client.CodeAt(ctx, o.address, nil)
	if err != nil {
		return fmt.Errorf("failed to get code at %s: %w", o.address.Hex(), err)
	}
	if len(code) == 0 {
		return fmt.Errorf("no code found at address %s", o.address.Hex())
	}
	o.log.WithField("code_size", len(code)).Debug("oracle contract found")
	return nil
}

// IsProven implements settlement.ProofOracle.
func (o *EVMOracle) IsProven(ctx context.Context, orderID common.Hash, outputs []types.OutputDescription, fillDeadline uint32) (bool, error) {
	callData, err := o.abi.Pack("isProven", orderID, orderhash.OutputHashes(outputs), fillDeadline)
	if err != nil {
		return false, fmt.Errorf("pack isProven failed: %w", err)
	}
	resp, err := o.client.CallContract(ctx, ethereum.CallMsg{To: &o.address, Data: callData}, (*big.Int)(nil))
	if err != nil {
		return false, fmt.Errorf("isProven call failed: %w", err)
	}
	out, err := o.abi.Unpack("isProven", resp)
	if err != nil {
		return false, fmt.Errorf("unpack isProven failed: %w", err)
	}
	if len(out) != 1 {
		return false, fmt.Errorf("unexpected isProven output length: %d", len(out))
	}
	proven, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected isProven output type %T", out[0])
	}
	return proven, nil
}

func (o *EVMOracle) Close() {
	if o.closer != nil {
		o.closer()
	}
}
