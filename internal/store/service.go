// Package store builds the repositories selected by configuration.
package store

import (
	"fmt"

	"github.com/catalystsystem/catalyst-intent-sub001/internal/custody"
	"github.com/catalystsystem/catalyst-intent-sub001/internal/settlement"
	badgerdb "github.com/catalystsystem/catalyst-intent-sub001/internal/store/badger"
	"github.com/catalystsystem/catalyst-intent-sub001/internal/store/inmemory"
	sqlitedb "github.com/catalystsystem/catalyst-intent-sub001/internal/store/sqlite"
)

var (
	claimStoreTypes = map[string]func(...interface{}) (settlement.Repository, error){
		"memory": inmemory.NewRepository,
		"badger": badgerdb.NewClaimRepository,
		"sqlite": sqlitedb.NewClaimRepository,
	}
	ledgerStoreTypes = map[string]func(...interface{}) (custody.Store, error){
		"memory": inmemory.NewLedgerRepository,
		"badger": badgerdb.NewLedgerRepository,
		"sqlite": sqlitedb.NewLedgerRepository,
	}
)

type ServiceConfig struct {
	DataStoreType   string
	DataStoreConfig []interface{}
}

// RepoManager gives access to every repository of one data store.
type RepoManager interface {
	Claims() settlement.Repository
	Ledger() custody.Store
	Close()
}

type service struct {
	claimStore  settlement.Repository
	ledgerStore custody.Store
}

// NewService opens the repositories named by config.DataStoreType.
func NewService(config ServiceConfig) (RepoManager, error) {
	claimStoreFactory, ok := claimStoreTypes[config.DataStoreType]
	if !ok {
		return nil, fmt.Errorf("invalid data store type: %s", config.DataStoreType)
	}
	ledgerStoreFactory, ok := ledgerStoreTypes[config.DataStoreType]
	if !ok {
		return nil, fmt.Errorf("invalid data store type: %s", config.DataStoreType)
	}

	claimStore, err := claimStoreFactory(config.DataStoreConfig...)
	if err != nil {
		return nil, fmt.Errorf("failed to create claim store: %w", err)
	}
	ledgerStore, err := ledgerStoreFactory(config.DataStoreConfig...)
	if err != nil {
		claimStore.Close()
		return nil, fmt.Errorf("failed to create ledger store: %w", err)
	}

	return &service{claimStore: claimStore, ledgerStore: ledgerStore}, nil
}

func (s *service) Claims() settlement.Repository {
	return s.claimStore
}

func (s *service) Ledger() custody.Store {
	return s.ledgerStore
}

func (s *service) Close() {
	s.claimStore.Close()
	s.ledgerStore.Close()
}
