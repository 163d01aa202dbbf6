package sqlitedb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/catalystsystem/catalyst-intent-sub001/internal/settlement"
)

const schema = `
CREATE TABLE IF NOT EXISTS claims (
	order_id TEXT PRIMARY KEY,
	status INTEGER NOT NULL,
	data BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS claims_status ON claims (status);
CREATE TABLE IF NOT EXISTS deposits (
	order_id TEXT PRIMARY KEY,
	status INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	data BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS purchases (
	digest TEXT PRIMARY KEY
);`

const (
	upsertClaim = `INSERT INTO claims (order_id, status, data) VALUES (?, ?, ?)
ON CONFLICT(order_id) DO UPDATE SET status = excluded.status, data = excluded.data`
	selectClaim   = `SELECT data FROM claims WHERE order_id = ?`
	upsertDeposit = `INSERT INTO deposits (order_id, status) VALUES (?, ?)
ON CONFLICT(order_id) DO UPDATE SET status = excluded.status`
	selectDeposit = `SELECT status FROM deposits WHERE order_id = ?`
	upsertSetting = `INSERT INTO settings (key, data) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET data = excluded.data`
	selectSetting  = `SELECT data FROM settings WHERE key = ?`
	insertPurchase = `INSERT OR IGNORE INTO purchases (digest) VALUES (?)`
	selectPurchase = `SELECT COUNT(*) FROM purchases WHERE digest = ?`
	deletePurchase = `DELETE FROM purchases WHERE digest = ?`

	feeScheduleKey = "governance_fee"
)

type claimRepository struct {
	db *sql.DB
}

// NewClaimRepository expects (baseDir string). An empty baseDir keeps the
// database in memory.
func NewClaimRepository(config ...interface{}) (settlement.Repository, error) {
	if len(config) < 1 {
		return nil, fmt.Errorf("invalid config")
	}
	baseDir, ok := config[0].(string)
	if !ok {
		return nil, fmt.Errorf("invalid base directory")
	}

	var path string
	if len(baseDir) > 0 {
		path = filepath.Join(baseDir, dbFile)
	}
	db, err := OpenDb(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &claimRepository{db}, nil
}

func (r *claimRepository) GetClaim(ctx context.Context, orderID common.Hash) (*settlement.Claim, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx, selectClaim, orderID.Hex()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get claim: %w", err)
	}
	var claim settlement.Claim
	if err := json.Unmarshal(data, &claim); err != nil {
		return nil, fmt.Errorf("failed to decode claim: %w", err)
	}
	return &claim, nil
}

func (r *claimRepository) PutClaim(ctx context.Context, claim settlement.Claim) error {
	data, err := json.Marshal(claim)
	if err != nil {
		return fmt.Errorf("failed to encode claim: %w", err)
	}
	return execTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, upsertClaim, claim.OrderID.Hex(), int(claim.Status), data)
		return err
	})
}

func (r *claimRepository) ListClaims(ctx context.Context, statuses ...settlement.OrderStatus) ([]settlement.Claim, error) {
	query := `SELECT data FROM claims`
	args := make([]interface{}, 0, len(statuses))
	if len(statuses) > 0 {
		placeholders := make([]string, 0, len(statuses))
		for _, s := range statuses {
			placeholders = append(placeholders, "?")
			args = append(args, int(s))
		}
		query += fmt.Sprintf(" WHERE status IN (%s)", strings.Join(placeholders, ", "))
	}
	query += ` ORDER BY order_id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}
	defer rows.Close()

	claims := make([]settlement.Claim, 0)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var claim settlement.Claim
		if err := json.Unmarshal(data, &claim); err != nil {
			return nil, fmt.Errorf("failed to decode claim: %w", err)
		}
		claims = append(claims, claim)
	}
	return claims, rows.Err()
}

func (r *claimRepository) GetDeposit(ctx context.Context, orderID common.Hash) (settlement.DepositStatus, error) {
	var status int
	err := r.db.QueryRowContext(ctx, selectDeposit, orderID.Hex()).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return settlement.DepositNone, nil
	}
	if err != nil {
		return settlement.DepositNone, fmt.Errorf("failed to get deposit: %w", err)
	}
	return settlement.DepositStatus(status), nil
}

func (r *claimRepository) PutDeposit(ctx context.Context, orderID common.Hash, status settlement.DepositStatus) error {
	return execTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, upsertDeposit, orderID.Hex(), int(status))
		return err
	})
}

func (r *claimRepository) GetFeeSchedule(ctx context.Context) (*settlement.FeeSchedule, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx, selectSetting, feeScheduleKey).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fee schedule: %w", err)
	}
	var fee settlement.FeeSchedule
	if err := json.Unmarshal(data, &fee); err != nil {
		return nil, fmt.Errorf("failed to decode fee schedule: %w", err)
	}
	return &fee, nil
}

func (r *claimRepository) PutFeeSchedule(ctx context.Context, fee settlement.FeeSchedule) error {
	data, err := json.Marshal(fee)
	if err != nil {
		return fmt.Errorf("failed to encode fee schedule: %w", err)
	}
	return execTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, upsertSetting, feeScheduleKey, data)
		return err
	})
}

func (r *claimRepository) AddPurchase(ctx context.Context, digest common.Hash) (bool, error) {
	var added bool
	err := execTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, insertPurchase, digest.Hex())
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		added = n == 1
		return nil
	})
	if err != nil {
		return false, err
	}
	return added, nil
}

func (r *claimRepository) HasPurchase(ctx context.Context, digest common.Hash) (bool, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, selectPurchase, digest.Hex()).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to get purchase: %w", err)
	}
	return n > 0, nil
}

func (r *claimRepository) DeletePurchase(ctx context.Context, digest common.Hash) error {
	return execTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, deletePurchase, digest.Hex())
		return err
	})
}

func (r *claimRepository) Close() {
	r.db.Close()
}
