// Package listener follows oracle contracts for proof attestations.
package listener

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/catalystsystem/catalyst-intent-sub001/internal/types"
)

const oracleEventsABI = `[{"anonymous":false,"name":"OutputProven","type":"event","inputs":[
	{"indexed":true,"name":"orderId","type":"bytes32"},
	{"indexed":true,"name":"outputHash","type":"bytes32"},
	{"indexed":false,"name":"solver","type":"bytes32"},
	{"indexed":false,"name":"timestamp","type":"uint32"}]}]`

var (
	oracleEvents       = mustParseABI(oracleEventsABI)
	outputProvenTopic  = oracleEvents.Events["OutputProven"].ID
	defaultPollPeriod  = time.Second
	defaultMaxBlockRng = uint64(500)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// ProvenEvent is one output attestation observed on an oracle.
type ProvenEvent struct {
	Network     string
	OrderID     common.Hash
	OutputHash  common.Hash
	Solver      types.Identifier
	Timestamp   uint32
	BlockNumber uint64
}

// EventHandler is called once per observed attestation.
type EventHandler func(ctx context.Context, event ProvenEvent) error

// LogSource is the subset of ethclient.Client the listener polls.
type LogSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]ethtypes.Log, error)
}

type ListenerConfig struct {
	ChainName       string
	ContractAddress common.Address
	// InitialBlock 0 starts from the current head.
	InitialBlock       uint64
	PollInterval       time.Duration
	ConfirmationBlocks uint64
	MaxBlockRange      uint64
	// OnProcessed is called after each fully handled block range.
	OnProcessed func(block uint64)
}

// EVMListener polls an EVM oracle for OutputProven logs.
type EVMListener struct {
	config             ListenerConfig
	client             LogSource
	log                *logrus.Entry
	lastProcessedBlock uint64
	mu                 sync.RWMutex
}

func NewEVMListener(ctx context.Context, config ListenerConfig, client LogSource, logger *logrus.Logger) (*EVMListener, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaultPollPeriod
	}
	if config.MaxBlockRange == 0 {
		config.MaxBlockRange = defaultMaxBlockRng
	}

	var lastProcessedBlock uint64
	if config.InitialBlock == 0 {
		head, err := client.BlockNumber(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get current block number: %w", err)
		}
		lastProcessedBlock = head
	} else {
		lastProcessedBlock = config.InitialBlock - 1
	}

	return &EVMListener{
		config:             config,
		client:             client,
		log:                logger.WithFields(logrus.Fields{"component": "listener", "network": config.ChainName}),
		lastProcessedBlock: lastProcessedBlock,
	}, nil
}

// Run polls until ctx is done.
func (l *EVMListener) Run(ctx context.Context, handler EventHandler) {
	l.log.Info("starting oracle listener")
	ticker := time.NewTicker(l.config.PollInterval)
	defer ticker.Stop()

	for {
		if err := l.Poll(ctx, handler); err != nil && ctx.Err() == nil {
			l.log.WithError(err).Warn("failed to process block range")
		}
		select {
		case <-ctx.Done():
			l.log.Info("oracle listener stopped")
			return
		case <-ticker.C:
		}
	}
}

// Poll processes every confirmed block after the last processed one.
func (l *EVMListener) Poll(ctx context.Context, handler EventHandler) error {
	head, err := l.client.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("failed to get current block number: %w", err)
	}
	if head < l.config.ConfirmationBlocks {
		return nil
	}
	toBlock := head - l.config.ConfirmationBlocks

	for from := l.GetLastProcessedBlock() + 1; from <= toBlock; {
		end := from + l.config.MaxBlockRange - 1
		if end > toBlock {
			end = toBlock
		}
		if err := l.processBlockRange(ctx, from, end, handler); err != nil {
			return fmt.Errorf("failed to process blocks %d-%d: %w", from, end, err)
		}
		l.mu.Lock()
		l.lastProcessedBlock = end
		l.mu.Unlock()
		if l.config.OnProcessed != nil {
			l.config.OnProcessed(end)
		}
		from = end + 1
	}
	return nil
}

// GetLastProcessedBlock returns the last processed block number
func (l *EVMListener) GetLastProcessedBlock() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastProcessedBlock
}

func (l *EVMListener) processBlockRange(ctx context.Context, fromBlock, toBlock uint64, handler EventHandler) error {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{l.config.ContractAddress},
		Topics:    [][]common.Hash{{outputProvenTopic}},
	}
	logs, err := l.client.FilterLogs(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to filter logs: %w", err)
	}
	if len(logs) > 0 {
		l.log.WithField("count", len(logs)).Debug("found proven outputs")
	}

	for _, vLog := range logs {
		event, err := l.parseProvenEvent(vLog)
		if err != nil {
			l.log.WithError(err).WithField("tx", vLog.TxHash.Hex()).Warn("skipping malformed log")
			continue
		}
		if err := handler(ctx, event); err != nil {
			l.log.WithError(err).WithField("order_id", event.OrderID.Hex()).Warn("failed to handle proven output")
		}
	}
	return nil
}

func (l *EVMListener) parseProvenEvent(vLog ethtypes.Log) (ProvenEvent, error) {
	if len(vLog.Topics) < 3 {
		return ProvenEvent{}, fmt.Errorf("missing indexed topics")
	}
	var data struct {
		Solver    [32]byte
		Timestamp uint32
	}
	if err := oracleEvents.UnpackIntoInterface(&data, "OutputProven", vLog.Data); err != nil {
		return ProvenEvent{}, fmt.Errorf("failed to unpack log data: %w", err)
	}
	return ProvenEvent{
		Network:     l.config.ChainName,
		OrderID:     vLog.Topics[1],
		OutputHash:  vLog.Topics[2],
		Solver:      common.Hash(data.Solver),
		Timestamp:   data.Timestamp,
		BlockNumber: vLog.BlockNumber,
	}, nil
}
