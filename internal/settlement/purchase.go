package settlement

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"github.com/catalystsystem/catalyst-intent-sub001/internal/orderhash"
	"github.com/catalystsystem/catalyst-intent-sub001/internal/types"
	"github.com/catalystsystem/catalyst-intent-sub001/pkg/ethutil"
)

// PurchaseRequest buys the filler position of an open claim.
type PurchaseRequest struct {
	Purchaser common.Address
	Order     types.Order
	Purchase  types.OrderPurchase
	// Signature is the current filler's signature over the purchase digest.
	Signature []byte
	// MinDiscount is the lowest recorded discount the purchaser accepts.
	MinDiscount uint16
}

// PurchaseOrder moves the claim to the purchase destination. The purchaser
// pays the previous filler its collateral plus the discounted inputs.
func (s *Settler) PurchaseOrder(ctx context.Context, req PurchaseRequest) error {
	orderID := s.OrderIdentifier(req.Order)
	purchase := req.Purchase
	if purchase.OrderID != orderID || purchase.OriginSettler != s.address {
		return ErrPurchaseMismatch
	}
	if purchase.Discount > types.MaxDiscount {
		return ErrInvalidDiscount
	}

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
		return statusError("purchase", prev.Status)
	}
	now := s.Now()
	if now > prev.PurchaseDeadline {
		return ErrPurchaseDeadlinePassed
	}
	if now > purchase.Expires {
		return ErrPurchaseExpired
	}
	if req.MinDiscount > prev.PurchaseDiscount {
		return fmt.Errorf("%w: recorded %d, requested %d", ErrDiscountTooLow, prev.PurchaseDiscount, req.MinDiscount)
	}

	digest, err := orderhash.PurchaseDigest(s.chainID, s.address, purchase)
	if err != nil {
		return err
	}
	used, err := s.repo.HasPurchase(ctx, digest)
	if err != nil {
		return fmt.Errorf("failed to check purchase: %w", err)
	}
	if used {
		return ErrPurchaseUsed
	}
	signer, err := ethutil.RecoverSigner(digest, req.Signature)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPurchaseSignature, err)
	}
	if signer != prev.Filler {
		return ErrInvalidPurchaseSignature
	}
	added, err := s.repo.AddPurchase(ctx, digest)
	if err != nil {
		return fmt.Errorf("failed to record purchase: %w", err)
	}
	if !added {
		return ErrPurchaseUsed
	}

	payments := purchasePayments(req.Purchaser, prev)

	newFiller := purchase.Destination
	if newFiller == (common.Address{}) {
		newFiller = req.Purchaser
	}
	next := prev
	next.Filler = newFiller
	next.Identifier = common.Hash{}
	next.PurchaseDeadline = now + purchase.TimeToBuy
	next.PurchaseDiscount = purchase.Discount

	err = s.transition(ctx, prev, next, func() error {
		if err := s.custody.Transfer(ctx, payments); err != nil {
			return fmt.Errorf("failed to pay previous filler: %w", err)
		}
		return nil
	})
	if err != nil {
		s.releasePurchase(ctx, digest)
		return err
	}

	s.log.WithFields(logrus.Fields{
		"order_id":        orderID.Hex(),
		"actor":           req.Purchaser.Hex(),
		"previous_filler": prev.Filler.Hex(),
		"filler":          newFiller.Hex(),
	}).Info("order purchased")
	s.publish(ctx, OrderPurchased{
		OrderEvent:     s.orderEvent(orderID, EventTypeOrderPurchased, req.Purchaser),
		PreviousFiller: prev.Filler,
		NewFiller:      newFiller,
		Discount:       purchase.Discount,
	})
	if len(purchase.Call) > 0 {
		s.notify(ctx, newFiller, orderID, common.Hash{}, purchase.Call)
	}
	return nil
}

// ModifyPurchaseTerms lets the current filler change its resale terms and
// beneficiary while the claim is open.
func (s *Settler) ModifyPurchaseTerms(ctx context.Context, caller common.Address, orderID common.Hash, terms types.FillerData) error {
	if terms.PurchaseDiscount > types.MaxDiscount {
		return ErrInvalidDiscount
	}

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
		return statusError("modify purchase terms of", prev.Status)
	}
	if caller != prev.Filler {
		return ErrNotFiller
	}

	next := prev
	if terms.Filler != (common.Address{}) {
		next.Filler = terms.Filler
	}
	next.PurchaseDeadline = terms.PurchaseDeadline
	next.PurchaseDiscount = terms.PurchaseDiscount
	next.Identifier = terms.Identifier
	if err := s.repo.PutClaim(ctx, next); err != nil {
		return fmt.Errorf("failed to persist claim %s: %w", orderID.Hex(), err)
	}

	s.log.WithFields(logrus.Fields{"order_id": orderID.Hex(), "actor": caller.Hex()}).Info("purchase terms modified")
	s.publish(ctx, PurchaseTermsModified{
		OrderEvent:       s.orderEvent(orderID, EventTypePurchaseTermsModified, caller),
		Filler:           next.Filler,
		PurchaseDeadline: next.PurchaseDeadline,
		PurchaseDiscount: next.PurchaseDiscount,
	})
	return nil
}

func purchasePayments(purchaser common.Address, claim Claim) []Payment {
	order := claim.Order
	payments := make([]Payment, 0, len(order.Inputs)+1)
	add := func(token common.Address, amount *uint256.Int) {
		if amount.IsZero() {
			return
		}
		payments = append(payments, Payment{From: purchaser, To: claim.Filler, Token: token, Amount: amount})
	}
	add(order.Collateral.Token, new(uint256.Int).Set(types.AmountOrZero(order.Collateral.FillerAmount)))
	for _, in := range order.Inputs {
		add(in.Token, applyDiscount(types.AmountOrZero(in.Amount), claim.PurchaseDiscount))
	}
	return payments
}

func (s *Settler) releasePurchase(ctx context.Context, digest common.Hash) {
	if err := s.repo.DeletePurchase(ctx, digest); err != nil {
		s.log.WithError(err).WithField("digest", digest.Hex()).Error("failed to release purchase digest")
	}
}
