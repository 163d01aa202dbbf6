package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/catalystsystem/catalyst-intent-sub001/internal/settlement"
)

type repository struct {
	lock      sync.RWMutex
	claims    map[common.Hash]settlement.Claim
	deposits  map[common.Hash]settlement.DepositStatus
	fee       *settlement.FeeSchedule
	purchases map[common.Hash]struct{}
}

func NewRepository(_ ...interface{}) (settlement.Repository, error) {
	return &repository{
		claims:    make(map[common.Hash]settlement.Claim),
		deposits:  make(map[common.Hash]settlement.DepositStatus),
		purchases: make(map[common.Hash]struct{}),
	}, nil
}

func (r *repository) GetClaim(_ context.Context, orderID common.Hash) (*settlement.Claim, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	claim, ok := r.claims[orderID]
	if !ok {
		return nil, nil
	}
	return &claim, nil
}

func (r *repository) PutClaim(_ context.Context, claim settlement.Claim) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.claims[claim.OrderID] = claim
	return nil
}

func (r *repository) ListClaims(_ context.Context, statuses ...settlement.OrderStatus) ([]settlement.Claim, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	claims := make([]settlement.Claim, 0)
	for _, claim := range r.claims {
		if matchStatus(claim.Status, statuses) {
			claims = append(claims, claim)
		}
	}
	sort.Slice(claims, func(i, j int) bool {
		return claims[i].OrderID.Cmp(claims[j].OrderID) < 0
	})
	return claims, nil
}

func (r *repository) GetDeposit(_ context.Context, orderID common.Hash) (settlement.DepositStatus, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	return r.deposits[orderID], nil
}

func (r *repository) PutDeposit(_ context.Context, orderID common.Hash, status settlement.DepositStatus) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.deposits[orderID] = status
	return nil
}

func (r *repository) GetFeeSchedule(_ context.Context) (*settlement.FeeSchedule, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	if r.fee == nil {
		return nil, nil
	}
	fee := *r.fee
	return &fee, nil
}

func (r *repository) PutFeeSchedule(_ context.Context, fee settlement.FeeSchedule) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.fee = &fee
	return nil
}

func (r *repository) AddPurchase(_ context.Context, digest common.Hash) (bool, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.purchases[digest]; ok {
		return false, nil
	}
	r.purchases[digest] = struct{}{}
	return true, nil
}

func (r *repository) HasPurchase(_ context.Context, digest common.Hash) (bool, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	_, ok := r.purchases[digest]
	return ok, nil
}

func (r *repository) DeletePurchase(_ context.Context, digest common.Hash) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	delete(r.purchases, digest)
	return nil
}

func (r *repository) Close() {}

func matchStatus(status settlement.OrderStatus, statuses []settlement.OrderStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}
