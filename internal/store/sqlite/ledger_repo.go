package sqlitedb

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/catalystsystem/catalyst-intent-sub001/internal/custody"
)

const ledgerDbFile = "ledger.db"

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS balances (
	owner TEXT NOT NULL,
	token TEXT NOT NULL,
	amount TEXT NOT NULL,
	PRIMARY KEY (owner, token)
);
CREATE TABLE IF NOT EXISTS escrows (
	order_id TEXT NOT NULL,
	token TEXT NOT NULL,
	amount TEXT NOT NULL,
	PRIMARY KEY (order_id, token)
);
CREATE TABLE IF NOT EXISTS nonces (
	owner TEXT NOT NULL,
	nonce TEXT NOT NULL,
	PRIMARY KEY (owner, nonce)
);`

const (
	upsertBalance = `INSERT INTO balances (owner, token, amount) VALUES (?, ?, ?)
ON CONFLICT(owner, token) DO UPDATE SET amount = excluded.amount`
	upsertEscrow = `INSERT INTO escrows (order_id, token, amount) VALUES (?, ?, ?)
ON CONFLICT(order_id, token) DO UPDATE SET amount = excluded.amount`
	deleteEscrow  = `DELETE FROM escrows WHERE order_id = ?`
	insertNonce   = `INSERT OR IGNORE INTO nonces (owner, nonce) VALUES (?, ?)`
	selectBalance = `SELECT owner, token, amount FROM balances`
	selectEscrow  = `SELECT order_id, token, amount FROM escrows`
	selectNonce   = `SELECT owner, nonce FROM nonces`
)

type ledgerRepository struct {
	db *sql.DB
}

// NewLedgerRepository expects (baseDir string). The ledger lives in its own
// database file next to the claims.
func NewLedgerRepository(config ...interface{}) (custody.Store, error) {
	if len(config) < 1 {
		return nil, fmt.Errorf("invalid config")
	}
	baseDir, ok := config[0].(string)
	if !ok {
		return nil, fmt.Errorf("invalid base directory")
	}

	var path string
	if len(baseDir) > 0 {
		path = filepath.Join(baseDir, ledgerDbFile)
	}
	db, err := OpenDb(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(ledgerSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &ledgerRepository{db}, nil
}

func (r *ledgerRepository) LoadLedger(ctx context.Context) (custody.Entries, error) {
	var entries custody.Entries

	err := queryRows(ctx, r.db, selectBalance, func(rows *sql.Rows) error {
		var owner, token, amount string
		if err := rows.Scan(&owner, &token, &amount); err != nil {
			return err
		}
		value, err := uint256.FromDecimal(amount)
		if err != nil {
			return fmt.Errorf("invalid balance of %s: %w", owner, err)
		}
		entries.Balances = append(entries.Balances, custody.Balance{
			Owner:  common.HexToAddress(owner),
			Token:  common.HexToAddress(token),
			Amount: value,
		})
		return nil
	})
	if err != nil {
		return entries, fmt.Errorf("failed to load balances: %w", err)
	}

	err = queryRows(ctx, r.db, selectEscrow, func(rows *sql.Rows) error {
		var orderID, token, amount string
		if err := rows.Scan(&orderID, &token, &amount); err != nil {
			return err
		}
		value, err := uint256.FromDecimal(amount)
		if err != nil {
			return fmt.Errorf("invalid escrow of %s: %w", orderID, err)
		}
		entries.Escrows = append(entries.Escrows, custody.Escrow{
			OrderID: common.HexToHash(orderID),
			Token:   common.HexToAddress(token),
			Amount:  value,
		})
		return nil
	})
	if err != nil {
		return entries, fmt.Errorf("failed to load escrows: %w", err)
	}

	err = queryRows(ctx, r.db, selectNonce, func(rows *sql.Rows) error {
		var owner, nonce string
		if err := rows.Scan(&owner, &nonce); err != nil {
			return err
		}
		value, err := uint256.FromDecimal(nonce)
		if err != nil {
			return fmt.Errorf("invalid nonce of %s: %w", owner, err)
		}
		entries.Nonces = append(entries.Nonces, custody.Nonce{Owner: common.HexToAddress(owner), Nonce: value})
		return nil
	})
	if err != nil {
		return entries, fmt.Errorf("failed to load nonces: %w", err)
	}
	return entries, nil
}

func (r *ledgerRepository) SaveLedger(ctx context.Context, entries custody.Entries) error {
	return execTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, orderID := range entries.Released {
			if _, err := tx.ExecContext(ctx, deleteEscrow, orderID.Hex()); err != nil {
				return err
			}
		}
		for _, b := range entries.Balances {
			if _, err := tx.ExecContext(ctx, upsertBalance, b.Owner.Hex(), b.Token.Hex(), b.Amount.Dec()); err != nil {
				return err
			}
		}
		for _, e := range entries.Escrows {
			if _, err := tx.ExecContext(ctx, upsertEscrow, e.OrderID.Hex(), e.Token.Hex(), e.Amount.Dec()); err != nil {
				return err
			}
		}
		for _, n := range entries.Nonces {
			if _, err := tx.ExecContext(ctx, insertNonce, n.Owner.Hex(), n.Nonce.Dec()); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *ledgerRepository) Close() {
	r.db.Close()
}
