package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Oracle kinds understood by the settler.
const (
	OracleKindMemory   = "memory"
	OracleKindEVM      = "evm"
	OracleKindStarknet = "starknet"
)

// NetworkConfig describes one proof oracle deployment the settler trusts.
type NetworkConfig struct {
	Name    string
	RPCURL  string
	ChainID uint64
	// LocalOracle is the address orders name in their localOracle field.
	LocalOracle common.Address
	// OracleAddress is the contract queried over RPCURL; a Starknet felt for
	// starknet oracles.
	OracleAddress string
	OracleKind    string
	// Listener-specific configuration, EVM oracles only
	StartBlock         uint64 // 0 = start from the current head
	PollInterval       time.Duration
	ConfirmationBlocks uint64
	MaxBlockRange      uint64
}

// Enabled reports whether orders can be routed to this network's oracle.
func (n NetworkConfig) Enabled() bool {
	if n.LocalOracle == (common.Address{}) {
		return false
	}
	return n.OracleKind == OracleKindMemory || n.OracleAddress != ""
}

func (n NetworkConfig) validate() error {
	switch n.OracleKind {
	case OracleKindMemory, OracleKindEVM, OracleKindStarknet:
	default:
		return fmt.Errorf("network %s: invalid oracle kind %q", n.Name, n.OracleKind)
	}
	if n.OracleKind != OracleKindMemory && n.RPCURL == "" {
		return fmt.Errorf("network %s: missing rpc url", n.Name)
	}
	return nil
}

// getEnvWithDefault gets an environment variable with a default fallback
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvUint64 gets an environment variable as uint64 with a default fallback
func getEnvUint64(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := parseUint64(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvInt gets an environment variable as int with a default fallback
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func parseUint64(s string) (uint64, error) {
	var result uint64
	_, err := fmt.Sscanf(s, "%d", &result)
	return result, err
}

func envNetwork(name, prefix, rpcDefault string, chainID uint64, kind string) NetworkConfig {
	return NetworkConfig{
		Name:          name,
		RPCURL:        getEnvWithDefault(prefix+"_RPC_URL", rpcDefault),
		ChainID:       getEnvUint64(prefix+"_CHAIN_ID", chainID),
		LocalOracle:   common.HexToAddress(getEnvWithDefault(prefix+"_LOCAL_ORACLE", "")),
		OracleAddress: getEnvWithDefault(prefix+"_ORACLE_ADDRESS", ""),
		OracleKind:    strings.ToLower(getEnvWithDefault(prefix+"_ORACLE_KIND", kind)),

		StartBlock:         getEnvUint64(prefix+"_START_BLOCK", 0),
		PollInterval:       time.Duration(getEnvInt("POLL_INTERVAL_MS", 1000)) * time.Millisecond,
		ConfirmationBlocks: getEnvUint64("CONFIRMATION_BLOCKS", 0),
		MaxBlockRange:      getEnvUint64("MAX_BLOCK_RANGE", 500),
	}
}

// Networks contains all oracle network configurations
var Networks = defaultNetworks()

func defaultNetworks() map[string]NetworkConfig {
	return map[string]NetworkConfig{
		"Sepolia":          envNetwork("Sepolia", "SEPOLIA", "http://localhost:8545", 11155111, OracleKindEVM),
		"Optimism Sepolia": envNetwork("Optimism Sepolia", "OPTIMISM", "http://localhost:8546", 11155420, OracleKindEVM),
		"Arbitrum Sepolia": envNetwork("Arbitrum Sepolia", "ARBITRUM", "http://localhost:8547", 421614, OracleKindEVM),
		"Base Sepolia":     envNetwork("Base Sepolia", "BASE", "http://localhost:8548", 84532, OracleKindEVM),
		"Starknet Sepolia": envNetwork("Starknet Sepolia", "STARKNET", "http://localhost:5050", 23448591, OracleKindStarknet),
		"Local":            envNetwork("Local", "LOCAL", "", 0, OracleKindMemory),
	}
}

// InitializeNetworks re-reads the network table; call it after loading .env.
func InitializeNetworks() {
	Networks = defaultNetworks()
}

// GetNetworkNames returns all available network names, sorted
func GetNetworkNames() []string {
	names := make([]string, 0, len(Networks))
	for name := range Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OracleNetworks returns the enabled networks in name order. Two networks
// may not claim the same local oracle.
func OracleNetworks() ([]NetworkConfig, error) {
	seen := make(map[common.Address]string)
	var out []NetworkConfig
	for _, name := range GetNetworkNames() {
		n := Networks[name]
		if !n.Enabled() {
			continue
		}
		if err := n.validate(); err != nil {
			return nil, err
		}
		if other, dup := seen[n.LocalOracle]; dup {
			return nil, fmt.Errorf("local oracle %s configured for both %s and %s", n.LocalOracle.Hex(), other, name)
		}
		seen[n.LocalOracle] = name
		out = append(out, n)
	}
	return out, nil
}
