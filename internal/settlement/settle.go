package settlement

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/catalystsystem/catalyst-intent-sub001/internal/types"
)

// Prove pays the filler once the order's oracle attests every output. It is
// available while the claim is Claimed or Challenged, with no deadline.
func (s *Settler) Prove(ctx context.Context, caller common.Address, order types.Order) error {
	orderID := s.OrderIdentifier(order)
	release, err := s.guard.acquire(orderID)
	if err != nil {
		return err
	}
	defer release()

	prev, err := s.GetClaim(ctx, orderID)
	if err != nil {
		return err
	}
	if !prev.Open() {
		return statusError("prove", prev.Status)
	}
	payouts, err := s.fillerPayouts(prev)
	if err != nil {
		return err
	}

	next := prev
	next.Status = StatusProven
	err = s.transition(ctx, prev, next, func() error {
		proven, err := s.isProven(ctx, orderID, order)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCannotProve, err)
		}
		if !proven {
			return ErrCannotProve
		}
		if err := s.custody.Release(ctx, orderID, payouts); err != nil {
			return fmt.Errorf("failed to release escrow: %w", err)
		}
		return nil
	})
	if err != nil {
		s.log.WithError(err).WithField("order_id", orderID.Hex()).Debug("prove rejected")
		return err
	}

	s.log.WithFields(logrus.Fields{
		"order_id": orderID.Hex(),
		"actor":    caller.Hex(),
		"filler":   prev.Filler.Hex(),
	}).Info("order proven")
	s.publish(ctx, OrderProven{
		OrderEvent: s.orderEvent(orderID, EventTypeOrderProven, caller),
		Filler:     prev.Filler,
	})
	s.notifyFiller(ctx, prev)
	return nil
}

// OptimisticPayout pays the filler without a proof once the challenge
// deadline passed on an undisputed claim.
func (s *Settler) OptimisticPayout(ctx context.Context, caller common.Address, order types.Order) error {
	orderID := s.OrderIdentifier(order)
	release, err := s.guard.acquire(orderID)
	if err != nil {
		return err
	}
	defer release()

	prev, err := s.GetClaim(ctx, orderID)
	if err != nil {
		return err
	}
	if prev.Status != StatusClaimed {
		return statusError("optimistically settle", prev.Status)
	}
	if s.Now() <= order.ChallengeDeadline {
		return ErrChallengeDeadlineNotPassed
	}
	payouts, err := s.fillerPayouts(prev)
	if err != nil {
		return err
	}

	next := prev
	next.Status = StatusOptimisticallyFilled
	err = s.transition(ctx, prev, next, func() error {
		if err := s.custody.Release(ctx, orderID, payouts); err != nil {
			return fmt.Errorf("failed to release escrow: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{
		"order_id": orderID.Hex(),
		"actor":    caller.Hex(),
		"filler":   prev.Filler.Hex(),
	}).Info("order optimistically filled")
	s.publish(ctx, OrderOptimisticallyFilled{
		OrderEvent: s.orderEvent(orderID, EventTypeOrderOptimisticallyFilled, caller),
		Filler:     prev.Filler,
	})
	s.notifyFiller(ctx, prev)
	return nil
}

func (s *Settler) isProven(ctx context.Context, orderID common.Hash, order types.Order) (bool, error) {
	oracle, ok := s.oracles[order.LocalOracle]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownOracle, order.LocalOracle.Hex())
	}
	return oracle.IsProven(ctx, orderID, order.Outputs, order.FillDeadline)
}

func (s *Settler) notifyFiller(ctx context.Context, claim Claim) {
	if claim.Identifier == (common.Hash{}) {
		return
	}
	s.notify(ctx, claim.Filler, claim.OrderID, claim.Identifier, nil)
}
