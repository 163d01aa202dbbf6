package listener

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catalystsystem/catalyst-intent-sub001/internal/config"
)

var oracleAddr = common.HexToAddress("0x0fac1e0000000000000000000000000000000001")

type fakeChain struct {
	mu      sync.Mutex
	head    uint64
	logs    []ethtypes.Log
	queries []ethereum.FilterQuery
	err     error
}

func (c *fakeChain) BlockNumber(context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head, c.err
}

func (c *fakeChain) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]ethtypes.Log, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries = append(c.queries, q)
	var out []ethtypes.Log
	for _, l := range c.logs {
		if l.BlockNumber >= q.FromBlock.Uint64() && l.BlockNumber <= q.ToBlock.Uint64() {
			out = append(out, l)
		}
	}
	return out, nil
}

func provenLog(t *testing.T, block uint64, orderID, outputHash common.Hash, timestamp uint32) ethtypes.Log {
	t.Helper()
	data, err := oracleEvents.Events["OutputProven"].Inputs.NonIndexed().Pack(
		[32]byte(common.HexToHash("0x5011e4")), timestamp,
	)
	require.NoError(t, err)
	return ethtypes.Log{
		Address:     oracleAddr,
		Topics:      []common.Hash{outputProvenTopic, orderID, outputHash},
		Data:        data,
		BlockNumber: block,
	}
}

type collector struct {
	mu     sync.Mutex
	events []ProvenEvent
}

func (c *collector) handle(_ context.Context, e ProvenEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestEVMListenerPoll(t *testing.T) {
	ctx := context.Background()
	order1 := common.HexToHash("0x01")
	order2 := common.HexToHash("0x02")
	chain := &fakeChain{
		head: 20,
		logs: []ethtypes.Log{
			provenLog(t, 12, order1, common.HexToHash("0xa1"), 1_000),
			provenLog(t, 18, order2, common.HexToHash("0xa2"), 1_001),
			{BlockNumber: 15, Topics: []common.Hash{outputProvenTopic}},
		},
	}

	l, err := NewEVMListener(ctx, ListenerConfig{
		ChainName:          "Local",
		ContractAddress:    oracleAddr,
		InitialBlock:       10,
		ConfirmationBlocks: 2,
		MaxBlockRange:      4,
	}, chain, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), l.GetLastProcessedBlock())

	var c collector
	require.NoError(t, l.Poll(ctx, c.handle))

	assert.Equal(t, uint64(18), l.GetLastProcessedBlock())
	require.Len(t, c.events, 2)
	assert.Equal(t, order1, c.events[0].OrderID)
	assert.Equal(t, common.HexToHash("0xa1"), c.events[0].OutputHash)
	assert.Equal(t, common.HexToHash("0x5011e4"), c.events[0].Solver)
	assert.Equal(t, uint32(1_000), c.events[0].Timestamp)
	assert.Equal(t, "Local", c.events[0].Network)
	assert.Equal(t, uint64(18), c.events[1].BlockNumber)

	require.Len(t, chain.queries, 3)
	assert.Equal(t, uint64(10), chain.queries[0].FromBlock.Uint64())
	assert.Equal(t, uint64(13), chain.queries[0].ToBlock.Uint64())
	assert.Equal(t, uint64(18), chain.queries[2].ToBlock.Uint64())
	assert.Equal(t, []common.Address{oracleAddr}, chain.queries[0].Addresses)

	t.Run("no new blocks", func(t *testing.T) {
		require.NoError(t, l.Poll(ctx, c.handle))
		assert.Len(t, chain.queries, 3)
	})
}

func TestEVMListenerStartsAtHead(t *testing.T) {
	chain := &fakeChain{head: 42}
	l, err := NewEVMListener(context.Background(), ListenerConfig{ContractAddress: oracleAddr}, chain, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), l.GetLastProcessedBlock())

	chain.err = fmt.Errorf("rpc down")
	_, err = NewEVMListener(context.Background(), ListenerConfig{ContractAddress: oracleAddr}, chain, nil)
	assert.Error(t, err)
}

func TestMultiNetworkListener(t *testing.T) {
	chain := &fakeChain{head: 5}
	chain.logs = []ethtypes.Log{provenLog(t, 3, common.HexToHash("0x03"), common.HexToHash("0xa3"), 7)}

	networks := []config.NetworkConfig{
		{Name: "Local EVM", RPCURL: "http://evm", OracleKind: config.OracleKindEVM, OracleAddress: oracleAddr.Hex(), StartBlock: 1, PollInterval: 10 * time.Millisecond},
		{Name: "Broken", RPCURL: "http://broken", OracleKind: config.OracleKindEVM, OracleAddress: oracleAddr.Hex()},
		{Name: "Starknet", RPCURL: "http://starknet", OracleKind: config.OracleKindStarknet},
	}
	dial := func(_ context.Context, rpcURL string) (LogSource, error) {
		if rpcURL == "http://broken" {
			return nil, fmt.Errorf("connection refused")
		}
		return chain, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := NewMultiNetworkListener(networks, dial, nil, nil)
	var c collector
	assert.Equal(t, 1, m.Start(ctx, c.handle))

	require.Eventually(t, func() bool { return c.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		block, ok := m.GetLastProcessedBlock("Local EVM")
		return ok && block == 5
	}, 2*time.Second, 10*time.Millisecond)

	_, ok := m.GetLastProcessedBlock("Starknet")
	assert.False(t, ok)

	cancel()
	m.Wait()
}

func TestCheckpoints(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", CheckpointFile)

	cps, err := LoadCheckpoints(path)
	require.NoError(t, err)
	_, ok := cps.Get("Local EVM")
	assert.False(t, ok)

	require.NoError(t, cps.Update("Local EVM", NetworkCheckpoint{
		ChainID:          31337,
		OracleAddress:    oracleAddr.Hex(),
		LastIndexedBlock: 40,
	}))

	reloaded, err := LoadCheckpoints(path)
	require.NoError(t, err)
	cp, ok := reloaded.Get("Local EVM")
	require.True(t, ok)
	assert.Equal(t, uint64(40), cp.LastIndexedBlock)
	assert.NotEmpty(t, cp.LastUpdated)

	t.Run("resume from checkpoint", func(t *testing.T) {
		chain := &fakeChain{head: 50}
		chain.logs = []ethtypes.Log{
			provenLog(t, 30, common.HexToHash("0x30"), common.HexToHash("0xb0"), 1),
			provenLog(t, 45, common.HexToHash("0x45"), common.HexToHash("0xb1"), 2),
		}
		networks := []config.NetworkConfig{{
			Name: "Local EVM", ChainID: 31337, RPCURL: "http://evm", OracleKind: config.OracleKindEVM,
			OracleAddress: oracleAddr.Hex(), StartBlock: 1, PollInterval: 10 * time.Millisecond,
		}}
		dial := func(context.Context, string) (LogSource, error) { return chain, nil }

		ctx, cancel := context.WithCancel(context.Background())
		m := NewMultiNetworkListener(networks, dial, reloaded, nil)
		var c collector
		require.Equal(t, 1, m.Start(ctx, c.handle))

		require.Eventually(t, func() bool {
			cp, _ := reloaded.Get("Local EVM")
			return cp.LastIndexedBlock == 50
		}, 2*time.Second, 10*time.Millisecond)
		cancel()
		m.Wait()

		require.Equal(t, 1, c.count())
		assert.Equal(t, common.HexToHash("0x45"), c.events[0].OrderID)
	})

	t.Run("missing file path keeps memory state", func(t *testing.T) {
		mem, err := LoadCheckpoints("")
		require.NoError(t, err)
		require.NoError(t, mem.Update("x", NetworkCheckpoint{LastIndexedBlock: 1}))
		cp, ok := mem.Get("x")
		assert.True(t, ok)
		assert.Equal(t, uint64(1), cp.LastIndexedBlock)
	})
}
