// Package config loads settler configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	LogLevel  string
	LogFormat string

	ChainID         *uint256.Int
	SettlerAddress  common.Address
	CustodyAddress  common.Address
	Governor        common.Address
	FeeRecipient    common.Address
	GovernanceFee   uint16
	FeeChangeDelay  time.Duration
	FraudOwnerShare uint16

	DbType  string
	Datadir string

	HTTPAddr string

	KeeperEnabled       bool
	KeeperAddress       common.Address
	KeeperSweepInterval time.Duration
}

var (
	LogLevel            = "LOG_LEVEL"
	LogFormat           = "LOG_FORMAT"
	ChainID             = "CHAIN_ID"
	SettlerAddress      = "ADDRESS"
	CustodyAddress      = "CUSTODY_ADDRESS"
	Governor            = "GOVERNOR"
	FeeRecipient        = "FEE_RECIPIENT"
	GovernanceFee       = "GOVERNANCE_FEE"
	GovernanceFeeDelay  = "GOVERNANCE_FEE_DELAY"
	FraudOwnerShare     = "FRAUD_OWNER_SHARE"
	DbType              = "DB_TYPE"
	Datadir             = "DATADIR"
	HTTPAddr            = "HTTP_ADDR"
	KeeperEnabled       = "KEEPER_ENABLED"
	KeeperAddress       = "KEEPER_ADDRESS"
	KeeperSweepInterval = "KEEPER_SWEEP_INTERVAL"

	defaultCustodyAddress      = "0x000000000022D473030F116dDEE9F6B43aC78BA3"
	defaultLogLevel            = "info"
	defaultLogFormat           = "text"
	defaultChainID             = uint64(1)
	defaultFeeDelay            = 7 * 24 * time.Hour
	defaultFraudOwnerShare     = 5_000
	defaultDbType              = "badger"
	defaultDatadir             = "data"
	defaultHTTPAddr            = ":8080"
	defaultKeeperSweepInterval = 30 * time.Second

	supportedDbTypes = map[string]struct{}{
		"memory": {},
		"badger": {},
		"sqlite": {},
	}
)

// LoadConfig reads SETTLER_* variables, after loading envFiles if they exist.
func LoadConfig(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix("SETTLER")
	v.AutomaticEnv()

	v.SetDefault(LogLevel, defaultLogLevel)
	v.SetDefault(LogFormat, defaultLogFormat)
	v.SetDefault(ChainID, defaultChainID)
	v.SetDefault(CustodyAddress, defaultCustodyAddress)
	v.SetDefault(GovernanceFee, 0)
	v.SetDefault(GovernanceFeeDelay, defaultFeeDelay)
	v.SetDefault(FraudOwnerShare, defaultFraudOwnerShare)
	v.SetDefault(DbType, defaultDbType)
	v.SetDefault(Datadir, defaultDatadir)
	v.SetDefault(HTTPAddr, defaultHTTPAddr)
	v.SetDefault(KeeperEnabled, false)
	v.SetDefault(KeeperSweepInterval, defaultKeeperSweepInterval)

	settler, err := address(v, SettlerAddress, true)
	if err != nil {
		return nil, err
	}
	custodian, err := address(v, CustodyAddress, true)
	if err != nil {
		return nil, err
	}
	governor, err := address(v, Governor, true)
	if err != nil {
		return nil, err
	}
	feeRecipient, err := address(v, FeeRecipient, false)
	if err != nil {
		return nil, err
	}
	keeper, err := address(v, KeeperAddress, false)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		LogLevel:            v.GetString(LogLevel),
		LogFormat:           v.GetString(LogFormat),
		ChainID:             uint256.NewInt(v.GetUint64(ChainID)),
		SettlerAddress:      settler,
		CustodyAddress:      custodian,
		Governor:            governor,
		FeeRecipient:        feeRecipient,
		GovernanceFee:       uint16(v.GetUint32(GovernanceFee)),
		FeeChangeDelay:      v.GetDuration(GovernanceFeeDelay),
		FraudOwnerShare:     uint16(v.GetUint32(FraudOwnerShare)),
		DbType:              strings.ToLower(v.GetString(DbType)),
		Datadir:             v.GetString(Datadir),
		HTTPAddr:            v.GetString(HTTPAddr),
		KeeperEnabled:       v.GetBool(KeeperEnabled),
		KeeperAddress:       keeper,
		KeeperSweepInterval: v.GetDuration(KeeperSweepInterval),
	}
	if cfg.KeeperAddress == (common.Address{}) {
		cfg.KeeperAddress = cfg.Governor
	}

	if err := cfg.validate(v); err != nil {
		return nil, err
	}
	if cfg.DbType != "memory" && cfg.Datadir != "" {
		if err := makeDirectoryIfNotExists(cfg.Datadir); err != nil {
			return nil, fmt.Errorf("error while creating datadir: %s", err)
		}
	}
	return cfg, nil
}

func (c *Config) validate(v *viper.Viper) error {
	if _, ok := supportedDbTypes[c.DbType]; !ok {
		return fmt.Errorf("invalid db type: %s", c.DbType)
	}
	if c.ChainID.IsZero() {
		return fmt.Errorf("chain id must be set")
	}
	if v.GetUint32(GovernanceFee) > 2_500 {
		return fmt.Errorf("governance fee %d exceeds 2500 bps", v.GetUint32(GovernanceFee))
	}
	if v.GetUint32(FraudOwnerShare) > 10_000 {
		return fmt.Errorf("fraud owner share %d exceeds 10000 bps", v.GetUint32(FraudOwnerShare))
	}
	if c.KeeperEnabled && c.KeeperSweepInterval < time.Second {
		return fmt.Errorf("keeper sweep interval must be at least 1s")
	}
	return nil
}

func address(v *viper.Viper, key string, required bool) (common.Address, error) {
	raw := v.GetString(key)
	if raw == "" {
		if required {
			return common.Address{}, fmt.Errorf("missing %s", strings.ToLower(key))
		}
		return common.Address{}, nil
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("invalid %s: %s", strings.ToLower(key), raw)
	}
	return common.HexToAddress(raw), nil
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}
