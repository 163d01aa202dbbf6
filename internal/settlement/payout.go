package settlement

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/catalystsystem/catalyst-intent-sub001/internal/types"
)

// fillerPayouts rewards the filler of claim: inputs net of the governance
// fee, its collateral and, if the claim was challenged, the challenger's
// collateral.
func (s *Settler) fillerPayouts(claim Claim) ([]Payout, error) {
	order := claim.Order
	fee := s.GovernanceFee().Current

	payouts := make([]Payout, 0, 2*len(order.Inputs)+1)
	for _, in := range order.Inputs {
		amount := types.AmountOrZero(in.Amount)
		governance := calcFee(amount, fee)
		payouts = append(payouts,
			Payout{To: claim.Filler, Token: in.Token, Amount: new(uint256.Int).Sub(amount, governance)},
			Payout{To: s.feeRecipient, Token: in.Token, Amount: governance},
		)
	}

	collateral := new(uint256.Int).Set(types.AmountOrZero(order.Collateral.FillerAmount))
	if claim.Status == StatusChallenged {
		if _, overflow := collateral.AddOverflow(collateral, types.AmountOrZero(order.Collateral.ChallengerAmount)); overflow {
			return nil, ErrArithmeticOverflow
		}
	}
	payouts = append(payouts, Payout{To: claim.Filler, Token: order.Collateral.Token, Amount: collateral})

	return compact(payouts), nil
}

// fraudPayouts refunds the owner and splits the filler collateral between
// owner and challenger.
func (s *Settler) fraudPayouts(claim Claim) ([]Payout, error) {
	order := claim.Order

	payouts := make([]Payout, 0, len(order.Inputs)+2)
	for _, in := range order.Inputs {
		payouts = append(payouts, Payout{To: order.User, Token: in.Token, Amount: types.AmountOrZero(in.Amount)})
	}

	fillerCollateral := types.AmountOrZero(order.Collateral.FillerAmount)
	ownerShare := share(fillerCollateral, s.fraudShare)
	challengerShare := new(uint256.Int).Sub(fillerCollateral, ownerShare)
	if _, overflow := challengerShare.AddOverflow(challengerShare, types.AmountOrZero(order.Collateral.ChallengerAmount)); overflow {
		return nil, ErrArithmeticOverflow
	}

	payouts = append(payouts,
		Payout{To: order.User, Token: order.Collateral.Token, Amount: ownerShare},
		Payout{To: claim.Challenger, Token: order.Collateral.Token, Amount: challengerShare},
	)
	return compact(payouts), nil
}

// refundPayouts returns deposited inputs to the owner.
func refundPayouts(order types.Order) []Payout {
	payouts := make([]Payout, 0, len(order.Inputs))
	for _, in := range order.Inputs {
		payouts = append(payouts, Payout{To: order.User, Token: in.Token, Amount: types.AmountOrZero(in.Amount)})
	}
	return compact(payouts)
}

func compact(payouts []Payout) []Payout {
	out := payouts[:0]
	for _, p := range payouts {
		if p.Amount != nil && !p.Amount.IsZero() {
			out = append(out, p)
		}
	}
	return out
}

func inputPulls(from common.Address, inputs []types.Input) []Pull {
	pulls := make([]Pull, 0, len(inputs))
	for _, in := range inputs {
		amount := types.AmountOrZero(in.Amount)
		if amount.IsZero() {
			continue
		}
		pulls = append(pulls, Pull{From: from, Token: in.Token, Amount: amount})
	}
	return pulls
}
