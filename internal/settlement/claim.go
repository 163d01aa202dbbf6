package settlement

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/catalystsystem/catalyst-intent-sub001/internal/types"
)

// OrderStatus is the lifecycle state of a claimed order.
type OrderStatus int

const (
	StatusUnfilled OrderStatus = iota
	StatusClaimed
	StatusChallenged
	StatusFraud
	StatusOptimisticallyFilled
	StatusProven
)

func (s OrderStatus) String() string {
	switch s {
	case StatusUnfilled:
		return "Unfilled"
	case StatusClaimed:
		return "Claimed"
	case StatusChallenged:
		return "Challenged"
	case StatusFraud:
		return "Fraud"
	case StatusOptimisticallyFilled:
		return "OptimisticallyFilled"
	case StatusProven:
		return "Proven"
	default:
		return "Unknown"
	}
}

// IsTerminal reports whether no further transition is possible.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusFraud || s == StatusOptimisticallyFilled || s == StatusProven
}

// ParseOrderStatus is the inverse of OrderStatus.String.
func ParseOrderStatus(s string) (OrderStatus, bool) {
	for st := StatusUnfilled; st <= StatusProven; st++ {
		if st.String() == s {
			return st, true
		}
	}
	return StatusUnfilled, false
}

// DepositStatus tracks inputs escrowed ahead of a claim.
type DepositStatus int

const (
	DepositNone DepositStatus = iota
	DepositDeposited
	DepositClaimed
	DepositWithdrawn
)

func (s DepositStatus) String() string {
	switch s {
	case DepositNone:
		return "None"
	case DepositDeposited:
		return "Deposited"
	case DepositClaimed:
		return "Claimed"
	case DepositWithdrawn:
		return "Withdrawn"
	default:
		return "Unknown"
	}
}

// Claim is the settlement record of one order.
type Claim struct {
	OrderID          common.Hash    `json:"orderId"`
	Order            types.Order    `json:"order"`
	Status           OrderStatus    `json:"status"`
	Filler           common.Address `json:"filler"`
	Challenger       common.Address `json:"challenger"`
	Identifier       common.Hash    `json:"identifier"`
	PurchaseDeadline uint32         `json:"purchaseDeadline"`
	PurchaseDiscount uint16         `json:"purchaseDiscount"`
	ClaimedAt        uint32         `json:"claimedAt"`
}

// Open reports whether the claim still holds escrow awaiting settlement.
func (c Claim) Open() bool {
	return c.Status == StatusClaimed || c.Status == StatusChallenged
}
