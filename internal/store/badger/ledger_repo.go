package badgerdb

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/timshannon/badgerhold/v4"

	"github.com/catalystsystem/catalyst-intent-sub001/internal/custody"
)

const ledgerStoreDir = "ledger"

type balanceDTO struct {
	Key    string `badgerhold:"key"`
	Owner  string
	Token  string
	Amount string
}

type escrowDTO struct {
	Key     string `badgerhold:"key"`
	OrderID string `badgerholdIndex:"OrderID"`
	Token   string
	Amount  string
}

type nonceDTO struct {
	Key   string `badgerhold:"key"`
	Owner string
	Nonce string
}

type ledgerRepository struct {
	store *badgerhold.Store
}

// NewLedgerRepository expects (baseDir string, logger badger.Logger), like
// NewClaimRepository.
func NewLedgerRepository(config ...interface{}) (custody.Store, error) {
	if len(config) != 2 {
		return nil, fmt.Errorf("invalid config")
	}
	baseDir, ok := config[0].(string)
	if !ok {
		return nil, fmt.Errorf("invalid base directory")
	}
	var logger badger.Logger
	if config[1] != nil {
		logger, ok = config[1].(badger.Logger)
		if !ok {
			return nil, fmt.Errorf("invalid logger")
		}
	}

	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, ledgerStoreDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger store: %s", err)
	}
	return &ledgerRepository{store}, nil
}

func (r *ledgerRepository) LoadLedger(ctx context.Context) (custody.Entries, error) {
	var entries custody.Entries

	var balances []balanceDTO
	if err := r.store.Find(&balances, nil); err != nil {
		return entries, fmt.Errorf("failed to load balances: %w", err)
	}
	for _, dto := range balances {
		amount, err := uint256.FromDecimal(dto.Amount)
		if err != nil {
			return entries, fmt.Errorf("invalid balance %s: %w", dto.Key, err)
		}
		entries.Balances = append(entries.Balances, custody.Balance{
			Owner:  common.HexToAddress(dto.Owner),
			Token:  common.HexToAddress(dto.Token),
			Amount: amount,
		})
	}

	var escrows []escrowDTO
	if err := r.store.Find(&escrows, nil); err != nil {
		return entries, fmt.Errorf("failed to load escrows: %w", err)
	}
	for _, dto := range escrows {
		amount, err := uint256.FromDecimal(dto.Amount)
		if err != nil {
			return entries, fmt.Errorf("invalid escrow %s: %w", dto.Key, err)
		}
		entries.Escrows = append(entries.Escrows, custody.Escrow{
			OrderID: common.HexToHash(dto.OrderID),
			Token:   common.HexToAddress(dto.Token),
			Amount:  amount,
		})
	}

	var nonces []nonceDTO
	if err := r.store.Find(&nonces, nil); err != nil {
		return entries, fmt.Errorf("failed to load nonces: %w", err)
	}
	for _, dto := range nonces {
		nonce, err := uint256.FromDecimal(dto.Nonce)
		if err != nil {
			return entries, fmt.Errorf("invalid nonce %s: %w", dto.Key, err)
		}
		entries.Nonces = append(entries.Nonces, custody.Nonce{Owner: common.HexToAddress(dto.Owner), Nonce: nonce})
	}
	return entries, nil
}

func (r *ledgerRepository) SaveLedger(ctx context.Context, entries custody.Entries) error {
	return retry(func() error {
		return r.store.Badger().Update(func(tx *badger.Txn) error {
			for _, orderID := range entries.Released {
				query := badgerhold.Where("OrderID").Eq(orderID.Hex())
				if err := r.store.TxDeleteMatching(tx, &escrowDTO{}, query); err != nil {
					return err
				}
			}
			for _, b := range entries.Balances {
				dto := balanceDTO{
					Key:    b.Owner.Hex() + ":" + b.Token.Hex(),
					Owner:  b.Owner.Hex(),
					Token:  b.Token.Hex(),
					Amount: b.Amount.Dec(),
				}
				if err := r.store.TxUpsert(tx, dto.Key, &dto); err != nil {
					return err
				}
			}
			for _, e := range entries.Escrows {
				dto := escrowDTO{
					Key:     e.OrderID.Hex() + ":" + e.Token.Hex(),
					OrderID: e.OrderID.Hex(),
					Token:   e.Token.Hex(),
					Amount:  e.Amount.Dec(),
				}
				if err := r.store.TxUpsert(tx, dto.Key, &dto); err != nil {
					return err
				}
			}
			for _, n := range entries.Nonces {
				dto := nonceDTO{
					Key:   n.Owner.Hex() + ":" + n.Nonce.Dec(),
					Owner: n.Owner.Hex(),
					Nonce: n.Nonce.Dec(),
				}
				if err := r.store.TxUpsert(tx, dto.Key, &dto); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

func (r *ledgerRepository) Close() {
	r.store.Close()
}
