package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/catalystsystem/catalyst-intent-sub001/internal/api"
	"github.com/catalystsystem/catalyst-intent-sub001/internal/config"
	"github.com/catalystsystem/catalyst-intent-sub001/internal/custody"
	"github.com/catalystsystem/catalyst-intent-sub001/internal/events"
	"github.com/catalystsystem/catalyst-intent-sub001/internal/keeper"
	"github.com/catalystsystem/catalyst-intent-sub001/internal/listener"
	"github.com/catalystsystem/catalyst-intent-sub001/internal/oracle"
	"github.com/catalystsystem/catalyst-intent-sub001/internal/settlement"
	"github.com/catalystsystem/catalyst-intent-sub001/internal/store"
)

var serveCmd = &cli.Command{
	Name:   "serve",
	Usage:  "Run the settler with its HTTP API and keeper",
	Action: serveAction,
}

func serveAction(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String(envFileFlag.Name))
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	config.InitializeNetworks()

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.WithFields(logrus.Fields{
		"chain_id": cfg.ChainID.Dec(),
		"settler":  cfg.SettlerAddress.Hex(),
		"db":       cfg.DbType,
	}).Info("starting settler")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var storeConfig []interface{}
	switch cfg.DbType {
	case "badger":
		storeConfig = []interface{}{cfg.Datadir, nil}
	case "sqlite":
		storeConfig = []interface{}{cfg.Datadir}
	}
	repos, err := store.NewService(store.ServiceConfig{
		DataStoreType:   cfg.DbType,
		DataStoreConfig: storeConfig,
	})
	if err != nil {
		return err
	}
	defer repos.Close()

	ledger, err := custody.OpenLedger(ctx, custody.Config{
		ChainID: cfg.ChainID,
		Address: cfg.CustodyAddress,
		Spender: cfg.SettlerAddress,
		Logger:  logger,
		Store:   repos.Ledger(),
	})
	if err != nil {
		return err
	}

	bus := events.NewBus(logger)
	defer bus.Close()

	opts := []settlement.Option{
		settlement.WithLogger(logger),
		settlement.WithPublisher(bus),
		settlement.WithCallback(events.NewCallbackPublisher(bus.Publisher())),
	}
	networks, err := config.OracleNetworks()
	if err != nil {
		return err
	}
	oracleOpts, registry, closeOracles, err := dialOracles(ctx, networks, logger)
	if err != nil {
		return err
	}
	defer closeOracles()
	opts = append(opts, oracleOpts...)

	settler, err := settlement.NewSettler(settlement.Config{
		ChainID:         cfg.ChainID,
		Address:         cfg.SettlerAddress,
		Governor:        cfg.Governor,
		FeeRecipient:    cfg.FeeRecipient,
		InitialFee:      cfg.GovernanceFee,
		FeeChangeDelay:  cfg.FeeChangeDelay,
		FraudOwnerShare: cfg.FraudOwnerShare,
	}, repos.Claims(), ledger, opts...)
	if err != nil {
		return err
	}

	if cfg.KeeperEnabled {
		k := keeper.New(settler, keeper.Config{
			Caller:   cfg.KeeperAddress,
			Interval: cfg.KeeperSweepInterval,
			Logger:   logger,
		})
		bus.RegisterEventsHandler(settlement.OrderTopic, k.HandleEvents(ctx))
		defer bus.ClearRegisteredHandlers(settlement.OrderTopic)
		if err := k.Start(ctx); err != nil {
			return err
		}
		defer k.Stop()

		var checkpointPath string
		if cfg.DbType != "memory" && cfg.Datadir != "" {
			checkpointPath = filepath.Join(cfg.Datadir, listener.CheckpointFile)
		}
		checkpoints, err := listener.LoadCheckpoints(checkpointPath)
		if err != nil {
			return err
		}
		watcher := listener.NewMultiNetworkListener(networks, listener.DialEthclient, checkpoints, logger)
		if n := watcher.Start(ctx, func(ctx context.Context, e listener.ProvenEvent) error {
			_, err := k.Settle(ctx, e.OrderID)
			return err
		}); n > 0 {
			defer func() {
				cancel()
				watcher.Wait()
			}()
		}
	}

	handler := api.NewHandler(settler)
	if cfg.DbType == "memory" {
		handler.Faucet = ledger
		logger.Warn("custody faucet enabled")
	}
	if registry != nil {
		handler.Attester = registry
	}
	server := api.NewServer(handler, logger)
	if err := server.ListenAndServe(ctx, cfg.HTTPAddr); err != nil {
		return err
	}
	logger.Info("settler shutdown complete")
	return nil
}

// dialOracles connects to every configured oracle network. Memory networks
// share the returned registry.
func dialOracles(ctx context.Context, networks []config.NetworkConfig, logger *logrus.Logger) ([]settlement.Option, *oracle.Registry, func(), error) {
	var (
		opts     []settlement.Option
		registry *oracle.Registry
		closers  []func()
	)
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	for _, n := range networks {
		var proofOracle settlement.ProofOracle
		switch n.OracleKind {
		case config.OracleKindMemory:
			if registry == nil {
				registry = oracle.NewRegistry()
			}
			proofOracle = registry
		case config.OracleKindEVM:
			o, err := oracle.DialEVMOracle(ctx, n.RPCURL, common.HexToAddress(n.OracleAddress), logger)
			if err != nil {
				closeAll()
				return nil, nil, nil, fmt.Errorf("failed to dial %s oracle: %w", n.Name, err)
			}
			closers = append(closers, o.Close)
			proofOracle = o
		case config.OracleKindStarknet:
			o, err := oracle.DialStarknetOracle(n.RPCURL, n.OracleAddress, logger)
			if err != nil {
				closeAll()
				return nil, nil, nil, fmt.Errorf("failed to dial %s oracle: %w", n.Name, err)
			}
			proofOracle = o
		}
		logger.WithFields(logrus.Fields{
			"network":      n.Name,
			"kind":         n.OracleKind,
			"local_oracle": n.LocalOracle.Hex(),
		}).Info("oracle registered")
		opts = append(opts, settlement.WithOracle(n.LocalOracle, proofOracle))
	}
	return opts, registry, closeAll, nil
}
