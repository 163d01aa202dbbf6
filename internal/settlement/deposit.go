package settlement

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/catalystsystem/catalyst-intent-sub001/internal/types"
)

// Deposit escrows the order inputs from caller ahead of any claim, so the
// order can later be claimed without an owner signature.
func (s *Settler) Deposit(ctx context.Context, caller common.Address, order types.Order) (common.Hash, error) {
	orderID := s.OrderIdentifier(order)
	release, err := s.guard.acquire(orderID)
	if err != nil {
		return orderID, err
	}
	defer release()

	if err := s.checkOrigin(order); err != nil {
		return orderID, err
	}
	if s.Now() > order.Expires {
		return orderID, ErrOrderExpired
	}

	status, err := s.GetDeposit(ctx, orderID)
	if err != nil {
		return orderID, err
	}
	if status != DepositNone {
		return orderID, fmt.Errorf("%w: deposit is %s", ErrAlreadyDeposited, status)
	}
	claim, err := s.GetClaim(ctx, orderID)
	if err != nil {
		return orderID, err
	}
	if claim.Status != StatusUnfilled {
		return orderID, statusError("deposit", claim.Status)
	}

	if err := s.repo.PutDeposit(ctx, orderID, DepositDeposited); err != nil {
		return orderID, fmt.Errorf("failed to persist deposit: %w", err)
	}
	if err := s.custody.Lock(ctx, orderID, inputPulls(caller, order.Inputs), nil); err != nil {
		s.restoreDeposit(ctx, orderID, DepositNone)
		return orderID, fmt.Errorf("failed to escrow deposit: %w", err)
	}

	s.log.WithFields(logrus.Fields{"order_id": orderID.Hex(), "actor": caller.Hex()}).Info("order deposited")
	s.publish(ctx, OrderDeposited{
		OrderEvent: s.orderEvent(orderID, EventTypeOrderDeposited, caller),
		Owner:      order.User,
	})
	return orderID, nil
}

// CancelDeposit returns deposited inputs to the owner. The owner may cancel
// at any time before a claim; anyone may cancel once the order expired.
func (s *Settler) CancelDeposit(ctx context.Context, caller common.Address, order types.Order) error {
	orderID := s.OrderIdentifier(order)
	release, err := s.guard.acquire(orderID)
	if err != nil {
		return err
	}
	defer release()

	status, err := s.GetDeposit(ctx, orderID)
	if err != nil {
		return err
	}
	if status != DepositDeposited {
		return fmt.Errorf("%w: deposit is %s", ErrNotDeposited, status)
	}
	if caller != order.User && s.Now() <= order.Expires {
		return ErrNotOrderOwner
	}

	if err := s.repo.PutDeposit(ctx, orderID, DepositWithdrawn); err != nil {
		return fmt.Errorf("failed to persist deposit: %w", err)
	}
	if err := s.custody.Release(ctx, orderID, refundPayouts(order)); err != nil {
		s.restoreDeposit(ctx, orderID, DepositDeposited)
		return fmt.Errorf("failed to refund deposit: %w", err)
	}

	s.log.WithFields(logrus.Fields{"order_id": orderID.Hex(), "actor": caller.Hex()}).Info("deposit cancelled")
	s.publish(ctx, DepositCancelled{
		OrderEvent: s.orderEvent(orderID, EventTypeDepositCancelled, caller),
		Owner:      order.User,
	})
	return nil
}

func (s *Settler) restoreDeposit(ctx context.Context, orderID common.Hash, status DepositStatus) {
	if err := s.repo.PutDeposit(ctx, orderID, status); err != nil {
		s.log.WithError(err).WithField("order_id", orderID.Hex()).Error("failed to restore deposit status")
	}
}
