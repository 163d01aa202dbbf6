package settlement

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/catalystsystem/catalyst-intent-sub001/internal/orderhash"
	"github.com/catalystsystem/catalyst-intent-sub001/internal/types"
)

// ClaimRequest is a filler's commitment to an order.
type ClaimRequest struct {
	// Caller posts the filler collateral.
	Caller common.Address
	Order  types.Order
	// Signature is the owner's permit over the order witness. It is ignored
	// when the inputs were deposited in advance.
	Signature  []byte
	FillerData types.FillerData
}

// ClaimOrder turns a signed or deposited order into an active claim.
// Mandatory-proof orders start out Challenged with the owner as challenger.
func (s *Settler) ClaimOrder(ctx context.Context, req ClaimRequest) (Claim, error) {
	order := req.Order
	orderID := s.OrderIdentifier(order)
	release, err := s.guard.acquire(orderID)
	if err != nil {
		return Claim{}, err
	}
	defer release()

	if err := s.checkOrigin(order); err != nil {
		return Claim{}, err
	}
	if !order.DeadlinesOrdered() {
		return Claim{}, fmt.Errorf("%w: fill %d, challenge %d, proof %d", ErrInvalidDeadlines,
			order.FillDeadline, order.ChallengeDeadline, order.ProofDeadline)
	}
	now := s.Now()
	if now > order.Expires {
		return Claim{}, ErrOrderExpired
	}
	if req.FillerData.PurchaseDiscount > types.MaxDiscount {
		return Claim{}, ErrInvalidDiscount
	}

	prev, err := s.GetClaim(ctx, orderID)
	if err != nil {
		return Claim{}, err
	}
	if prev.Status != StatusUnfilled {
		return Claim{}, statusError("claim", prev.Status)
	}
	deposit, err := s.GetDeposit(ctx, orderID)
	if err != nil {
		return Claim{}, err
	}
	if deposit != DepositNone && deposit != DepositDeposited {
		return Claim{}, fmt.Errorf("%w: deposit is %s", ErrStatusMismatch, deposit)
	}

	filler := req.FillerData.Filler
	if filler == (common.Address{}) {
		filler = req.Caller
	}
	next := Claim{
		OrderID:          orderID,
		Order:            order,
		Status:           StatusClaimed,
		Filler:           filler,
		Identifier:       req.FillerData.Identifier,
		PurchaseDeadline: req.FillerData.PurchaseDeadline,
		PurchaseDiscount: req.FillerData.PurchaseDiscount,
		ClaimedAt:        now,
	}
	if order.RequiresProof() {
		next.Status = StatusChallenged
		next.Challenger = order.User
	}

	var permit *Permit
	if deposit == DepositNone {
		witness, err := orderhash.Witness(order)
		if err != nil {
			return Claim{}, err
		}
		permit = &Permit{
			Owner:     order.User,
			Assets:    order.Inputs,
			Nonce:     types.AmountOrZero(order.Nonce),
			Deadline:  order.Expires,
			Witness:   witness,
			Signature: req.Signature,
		}
	}
	pulls := []Pull{{
		From:   req.Caller,
		Token:  order.Collateral.Token,
		Amount: types.AmountOrZero(order.Collateral.FillerAmount),
	}}
	if pulls[0].Amount.IsZero() {
		pulls = nil
	}

	err = s.transition(ctx, prev, next, func() error {
		if deposit == DepositDeposited {
			if err := s.repo.PutDeposit(ctx, orderID, DepositClaimed); err != nil {
				return fmt.Errorf("failed to persist deposit: %w", err)
			}
		}
		if err := s.custody.Lock(ctx, orderID, pulls, permit); err != nil {
			if deposit == DepositDeposited {
				s.restoreDeposit(ctx, orderID, DepositDeposited)
			}
			return fmt.Errorf("failed to escrow claim: %w", err)
		}
		return nil
	})
	if err != nil {
		return Claim{}, err
	}

	s.log.WithFields(logrus.Fields{
		"order_id": orderID.Hex(),
		"actor":    req.Caller.Hex(),
		"status":   next.Status.String(),
	}).Info("order claimed")
	s.publish(ctx, OrderClaimed{
		OrderEvent: s.orderEvent(orderID, EventTypeOrderClaimed, req.Caller),
		Filler:     next.Filler,
		Status:     next.Status,
	})
	return next, nil
}
