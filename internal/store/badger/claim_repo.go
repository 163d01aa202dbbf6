package badgerdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/timshannon/badgerhold/v4"

	"github.com/catalystsystem/catalyst-intent-sub001/internal/settlement"
)

const claimStoreDir = "claims"

type claimDTO struct {
	OrderID string `badgerhold:"key"`
	Status  int    `badgerholdIndex:"Status"`
	Data    []byte
}

type depositDTO struct {
	OrderID string `badgerhold:"key"`
	Status  int
}

type feeDTO struct {
	Key      string `badgerhold:"key"`
	Schedule settlement.FeeSchedule
}

type purchaseDTO struct {
	Digest string `badgerhold:"key"`
}

const feeScheduleKey = "governance-fee"

type claimRepository struct {
	store *badgerhold.Store
}

// NewClaimRepository expects (baseDir string, logger badger.Logger). An
// empty baseDir keeps everything in memory.
func NewClaimRepository(config ...interface{}) (settlement.Repository, error) {
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
		dir = filepath.Join(baseDir, claimStoreDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open claim store: %s", err)
	}

	return &claimRepository{store}, nil
}

func (r *claimRepository) GetClaim(ctx context.Context, orderID common.Hash) (*settlement.Claim, error) {
	var dto claimDTO
	err := r.store.Get(orderID.Hex(), &dto)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get claim: %w", err)
	}
	return decodeClaim(dto)
}

func (r *claimRepository) PutClaim(ctx context.Context, claim settlement.Claim) error {
	data, err := json.Marshal(claim)
	if err != nil {
		return fmt.Errorf("failed to encode claim: %w", err)
	}
	dto := claimDTO{
		OrderID: claim.OrderID.Hex(),
		Status:  int(claim.Status),
		Data:    data,
	}
	return retry(func() error {
		return r.store.Upsert(dto.OrderID, &dto)
	})
}

func (r *claimRepository) ListClaims(ctx context.Context, statuses ...settlement.OrderStatus) ([]settlement.Claim, error) {
	var query *badgerhold.Query
	if len(statuses) > 0 {
		values := make([]interface{}, 0, len(statuses))
		for _, s := range statuses {
			values = append(values, int(s))
		}
		query = badgerhold.Where("Status").In(values...)
	}

	var dtos []claimDTO
	if err := r.store.Find(&dtos, query); err != nil {
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}

	claims := make([]settlement.Claim, 0, len(dtos))
	for _, dto := range dtos {
		claim, err := decodeClaim(dto)
		if err != nil {
			return nil, err
		}
		claims = append(claims, *claim)
	}
	sort.Slice(claims, func(i, j int) bool {
		return claims[i].OrderID.Cmp(claims[j].OrderID) < 0
	})
	return claims, nil
}

func (r *claimRepository) GetDeposit(ctx context.Context, orderID common.Hash) (settlement.DepositStatus, error) {
	var dto depositDTO
	err := r.store.Get(orderID.Hex(), &dto)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return settlement.DepositNone, nil
	}
	if err != nil {
		return settlement.DepositNone, fmt.Errorf("failed to get deposit: %w", err)
	}
	return settlement.DepositStatus(dto.Status), nil
}

func (r *claimRepository) PutDeposit(ctx context.Context, orderID common.Hash, status settlement.DepositStatus) error {
	dto := depositDTO{OrderID: orderID.Hex(), Status: int(status)}
	return retry(func() error {
		return r.store.Upsert(dto.OrderID, &dto)
	})
}

func (r *claimRepository) GetFeeSchedule(ctx context.Context) (*settlement.FeeSchedule, error) {
	var dto feeDTO
	err := r.store.Get(feeScheduleKey, &dto)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fee schedule: %w", err)
	}
	return &dto.Schedule, nil
}

func (r *claimRepository) PutFeeSchedule(ctx context.Context, fee settlement.FeeSchedule) error {
	dto := feeDTO{Key: feeScheduleKey, Schedule: fee}
	return retry(func() error {
		return r.store.Upsert(dto.Key, &dto)
	})
}

func (r *claimRepository) AddPurchase(ctx context.Context, digest common.Hash) (bool, error) {
	dto := purchaseDTO{Digest: digest.Hex()}
	err := retry(func() error {
		return r.store.Insert(dto.Digest, &dto)
	})
	if errors.Is(err, badgerhold.ErrKeyExists) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to add purchase: %w", err)
	}
	return true, nil
}

func (r *claimRepository) HasPurchase(ctx context.Context, digest common.Hash) (bool, error) {
	var dto purchaseDTO
	err := r.store.Get(digest.Hex(), &dto)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get purchase: %w", err)
	}
	return true, nil
}

func (r *claimRepository) DeletePurchase(ctx context.Context, digest common.Hash) error {
	err := retry(func() error {
		return r.store.Delete(digest.Hex(), &purchaseDTO{})
	})
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil
	}
	return err
}

func (r *claimRepository) Close() {
	r.store.Close()
}

func decodeClaim(dto claimDTO) (*settlement.Claim, error) {
	var claim settlement.Claim
	if err := json.Unmarshal(dto.Data, &claim); err != nil {
		return nil, fmt.Errorf("failed to decode claim %s: %w", dto.OrderID, err)
	}
	return &claim, nil
}
