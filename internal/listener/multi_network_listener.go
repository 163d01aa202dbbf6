package listener

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"github.com/catalystsystem/catalyst-intent-sub001/internal/config"
)

// DialFunc opens a log source for an RPC endpoint.
type DialFunc func(ctx context.Context, rpcURL string) (LogSource, error)

// DialEthclient dials with go-ethereum's ethclient.
func DialEthclient(ctx context.Context, rpcURL string) (LogSource, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// MultiNetworkListener listens to every EVM oracle network simultaneously
type MultiNetworkListener struct {
	networks    []config.NetworkConfig
	dial        DialFunc
	checkpoints *Checkpoints
	logger      *logrus.Logger
	listeners   map[string]*EVMListener
	wg          sync.WaitGroup
	mu          sync.RWMutex
}

// NewMultiNetworkListener resumes each network from checkpoints when they
// were written for the same oracle. checkpoints may be nil.
func NewMultiNetworkListener(networks []config.NetworkConfig, dial DialFunc, checkpoints *Checkpoints, logger *logrus.Logger) *MultiNetworkListener {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if dial == nil {
		dial = DialEthclient
	}
	if checkpoints == nil {
		checkpoints, _ = LoadCheckpoints("")
	}
	return &MultiNetworkListener{
		networks:    networks,
		dial:        dial,
		checkpoints: checkpoints,
		logger:      logger,
		listeners:   make(map[string]*EVMListener),
	}
}

// Start launches one listener per EVM network. Networks that fail to start
// are logged and skipped.
func (m *MultiNetworkListener) Start(ctx context.Context, handler EventHandler) int {
	for _, network := range m.networks {
		if network.OracleKind != config.OracleKindEVM {
			continue
		}
		if err := m.createNetworkListener(ctx, network, handler); err != nil {
			m.logger.WithError(err).WithField("network", network.Name).Error("failed to create listener")
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	m.logger.WithField("networks", len(m.listeners)).Info("multi-network listener started")
	return len(m.listeners)
}

func (m *MultiNetworkListener) createNetworkListener(ctx context.Context, network config.NetworkConfig, handler EventHandler) error {
	client, err := m.dial(ctx, network.RPCURL)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", network.RPCURL, err)
	}
	oracleAddress := common.HexToAddress(network.OracleAddress)
	initialBlock := network.StartBlock
	if cp, ok := m.checkpoints.Get(network.Name); ok && common.HexToAddress(cp.OracleAddress) == oracleAddress {
		if cp.LastIndexedBlock+1 > initialBlock {
			initialBlock = cp.LastIndexedBlock + 1
		}
	}

	listener, err := NewEVMListener(ctx, ListenerConfig{
		ChainName:          network.Name,
		ContractAddress:    oracleAddress,
		InitialBlock:       initialBlock,
		PollInterval:       network.PollInterval,
		ConfirmationBlocks: network.ConfirmationBlocks,
		MaxBlockRange:      network.MaxBlockRange,
		OnProcessed: func(block uint64) {
			err := m.checkpoints.Update(network.Name, NetworkCheckpoint{
				ChainID:          network.ChainID,
				OracleAddress:    oracleAddress.Hex(),
				LastIndexedBlock: block,
			})
			if err != nil {
				m.logger.WithError(err).WithField("network", network.Name).Warn("failed to save checkpoint")
			}
		},
	}, client, m.logger)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.listeners[network.Name] = listener
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		listener.Run(ctx, handler)
	}()
	return nil
}

// Wait blocks until every listener has returned after ctx is done.
func (m *MultiNetworkListener) Wait() {
	m.wg.Wait()
}

// GetLastProcessedBlock returns the last processed block of a network.
func (m *MultiNetworkListener) GetLastProcessedBlock(network string) (uint64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.listeners[network]
	if !ok {
		return 0, false
	}
	return l.GetLastProcessedBlock(), true
}
