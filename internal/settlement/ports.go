package settlement

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/catalystsystem/catalyst-intent-sub001/internal/types"
)

// Repository persists claims, deposits and the settler-wide state: the fee
// schedule and consumed purchase digests. A missing claim or fee schedule is
// reported as (nil, nil).
type Repository interface {
	GetClaim(ctx context.Context, orderID common.Hash) (*Claim, error)
	PutClaim(ctx context.Context, claim Claim) error
	ListClaims(ctx context.Context, statuses ...OrderStatus) ([]Claim, error)
	GetDeposit(ctx context.Context, orderID common.Hash) (DepositStatus, error)
	PutDeposit(ctx context.Context, orderID common.Hash, status DepositStatus) error
	GetFeeSchedule(ctx context.Context) (*FeeSchedule, error)
	PutFeeSchedule(ctx context.Context, fee FeeSchedule) error
	// AddPurchase records digest. It returns false if digest was present.
	AddPurchase(ctx context.Context, digest common.Hash) (bool, error)
	HasPurchase(ctx context.Context, digest common.Hash) (bool, error)
	DeletePurchase(ctx context.Context, digest common.Hash) error
	Close()
}

// Pull moves Amount of Token from From into the escrow of an order.
type Pull struct {
	From   common.Address
	Token  common.Address
	Amount *uint256.Int
}

// Permit is an owner-signed authorization to pull Assets into escrow, bound
// to the order witness.
type Permit struct {
	Owner     common.Address
	Assets    []types.Input
	Nonce     *uint256.Int
	Deadline  uint32
	Witness   common.Hash
	Signature []byte
}

// Payout moves escrowed funds of an order to To.
type Payout struct {
	To     common.Address
	Token  common.Address
	Amount *uint256.Int
}

// Payment moves funds directly between two accounts.
type Payment struct {
	From   common.Address
	To     common.Address
	Token  common.Address
	Amount *uint256.Int
}

// Custody moves tokens. Every call is atomic: either all movements apply or
// none do.
type Custody interface {
	// Lock pulls into escrow. When permit is set its assets are pulled from
	// the permit owner after the signature has been verified.
	Lock(ctx context.Context, orderID common.Hash, pulls []Pull, permit *Permit) error
	// Release pays out escrow. Payouts must drain the order's escrow exactly.
	Release(ctx context.Context, orderID common.Hash, payouts []Payout) error
	Transfer(ctx context.Context, payments []Payment) error
}

// ProofOracle answers whether every output was delivered before fillDeadline.
type ProofOracle interface {
	IsProven(ctx context.Context, orderID common.Hash, outputs []types.OutputDescription, fillDeadline uint32) (bool, error)
}

// Callback notifies external contracts after payouts and purchases.
type Callback interface {
	Notify(ctx context.Context, target common.Address, orderID common.Hash, identifier common.Hash, payload []byte) error
}

// EventPublisher receives one event per state transition.
type EventPublisher interface {
	Publish(ctx context.Context, events ...Event) error
}
