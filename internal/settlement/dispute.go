package settlement

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/catalystsystem/catalyst-intent-sub001/internal/types"
)

// Dispute bonds the challenger collateral against a Claimed order before its
// challenge deadline. The claim can then only be proven or found fraudulent.
func (s *Settler) Dispute(ctx context.Context, challenger common.Address, order types.Order) error {
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
		return statusError("dispute", prev.Status)
	}
	if s.Now() > order.ChallengeDeadline {
		return ErrChallengeDeadlinePassed
	}

	next := prev
	next.Status = StatusChallenged
	next.Challenger = challenger

	var pulls []Pull
	if amount := types.AmountOrZero(order.Collateral.ChallengerAmount); !amount.IsZero() {
		pulls = []Pull{{From: challenger, Token: order.Collateral.Token, Amount: amount}}
	}
	err = s.transition(ctx, prev, next, func() error {
		if err := s.custody.Lock(ctx, orderID, pulls, nil); err != nil {
			return fmt.Errorf("failed to escrow challenger collateral: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{"order_id": orderID.Hex(), "actor": challenger.Hex()}).Info("order disputed")
	s.publish(ctx, OrderDisputed{
		OrderEvent: s.orderEvent(orderID, EventTypeOrderDisputed, challenger),
		Challenger: challenger,
	})
	return nil
}

// CompleteDispute finalizes a Challenged claim as fraud once the proof
// deadline passed. The owner is refunded and the challenger rewarded.
func (s *Settler) CompleteDispute(ctx context.Context, caller common.Address, order types.Order) error {
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
	if prev.Status != StatusChallenged {
		return statusError("complete dispute of", prev.Status)
	}
	if s.Now() <= order.ProofDeadline {
		return ErrProofDeadlineNotPassed
	}
	payouts, err := s.fraudPayouts(prev)
	if err != nil {
		return err
	}

	next := prev
	next.Status = StatusFraud
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
		"order_id":   orderID.Hex(),
		"actor":      caller.Hex(),
		"challenger": prev.Challenger.Hex(),
	}).Info("fraud accepted")
	s.publish(ctx, FraudAccepted{
		OrderEvent: s.orderEvent(orderID, EventTypeFraudAccepted, caller),
		Challenger: prev.Challenger,
	})
	return nil
}
