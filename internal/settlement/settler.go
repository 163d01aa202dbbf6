// Package settlement implements the origin-chain settler: escrow intake,
// proof and optimistic payouts, disputes, claim purchases and the governance
// fee.
package settlement

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"github.com/catalystsystem/catalyst-intent-sub001/internal/orderhash"
	"github.com/catalystsystem/catalyst-intent-sub001/internal/types"
)

// Config describes one settler deployment.
type Config struct {
	ChainID *uint256.Int
	Address common.Address

	Governor     common.Address
	FeeRecipient common.Address
	// InitialFee is the governance fee in basis points at startup.
	InitialFee     uint16
	FeeChangeDelay time.Duration

	// FraudOwnerShare is the share of filler collateral, in basis points,
	// returned to the owner on fraud. Zero selects one half.
	FraudOwnerShare uint16
}

type Option func(*Settler)

// WithOracle routes proof queries for orders naming addr as local oracle.
func WithOracle(addr common.Address, oracle ProofOracle) Option {
	return func(s *Settler) { s.oracles[addr] = oracle }
}

func WithCallback(cb Callback) Option {
	return func(s *Settler) { s.callback = cb }
}

func WithPublisher(p EventPublisher) Option {
	return func(s *Settler) { s.publisher = p }
}

func WithLogger(l *logrus.Logger) Option {
	return func(s *Settler) { s.log = l.WithField("component", "settler") }
}

func WithClock(now func() time.Time) Option {
	return func(s *Settler) { s.clock = now }
}

// Settler owns the claim state machine of one origin-chain deployment.
type Settler struct {
	chainID *uint256.Int
	address common.Address

	repo      Repository
	custody   Custody
	oracles   map[common.Address]ProofOracle
	callback  Callback
	publisher EventPublisher
	clock     func() time.Time
	log       *logrus.Entry
	guard     *orderGuard

	governor       common.Address
	feeRecipient   common.Address
	feeChangeDelay time.Duration
	feeMu          sync.RWMutex
	fee            FeeSchedule
	fraudShare     uint16
}

func NewSettler(cfg Config, repo Repository, custody Custody, opts ...Option) (*Settler, error) {
	if repo == nil {
		return nil, fmt.Errorf("missing repository")
	}
	if custody == nil {
		return nil, fmt.Errorf("missing custody")
	}
	if cfg.ChainID == nil || cfg.ChainID.IsZero() {
		return nil, fmt.Errorf("missing chain id")
	}
	if cfg.FraudOwnerShare > BasisPoints {
		return nil, fmt.Errorf("fraud owner share exceeds %d bps", BasisPoints)
	}
	if cfg.InitialFee > MaxGovernanceFee {
		return nil, fmt.Errorf("%w: %d > %d", ErrFeeTooHigh, cfg.InitialFee, MaxGovernanceFee)
	}

	s := &Settler{
		chainID:        new(uint256.Int).Set(cfg.ChainID),
		address:        cfg.Address,
		repo:           repo,
		custody:        custody,
		oracles:        make(map[common.Address]ProofOracle),
		clock:          time.Now,
		log:            logrus.StandardLogger().WithField("component", "settler"),
		guard:          newOrderGuard(),
		governor:       cfg.Governor,
		feeRecipient:   cfg.FeeRecipient,
		feeChangeDelay: cfg.FeeChangeDelay,
		fee:            FeeSchedule{Current: cfg.InitialFee},
		fraudShare:     cfg.FraudOwnerShare,
	}
	if s.feeRecipient == (common.Address{}) {
		s.feeRecipient = cfg.Governor
	}
	if s.fraudShare == 0 {
		s.fraudShare = BasisPoints / 2
	}
	if s.feeChangeDelay <= 0 {
		s.feeChangeDelay = DefaultFeeChangeDelay
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.restoreFee(context.Background(), cfg.InitialFee); err != nil {
		return nil, err
	}
	return s, nil
}

// restoreFee loads the persisted fee schedule. Only the first start persists
// initial, so a changed configuration never skips the timelock.
func (s *Settler) restoreFee(ctx context.Context, initial uint16) error {
	stored, err := s.repo.GetFeeSchedule(ctx)
	if err != nil {
		return fmt.Errorf("failed to load fee schedule: %w", err)
	}
	if stored != nil {
		if stored.Current != initial {
			s.log.WithFields(logrus.Fields{"fee": stored.Current, "configured": initial}).Warn("ignoring configured governance fee, using persisted schedule")
		}
		s.fee = *stored
		return nil
	}
	if err := s.repo.PutFeeSchedule(ctx, s.fee); err != nil {
		return fmt.Errorf("failed to persist fee schedule: %w", err)
	}
	return nil
}

func (s *Settler) Address() common.Address { return s.address }

func (s *Settler) ChainID() *uint256.Int { return new(uint256.Int).Set(s.chainID) }

// OrderIdentifier returns the identity of order on this settler.
func (s *Settler) OrderIdentifier(order types.Order) common.Hash {
	return orderhash.OrderIdentifier(s.address, order)
}

// GetClaim returns the claim of orderID, or an Unfilled record if none exists.
func (s *Settler) GetClaim(ctx context.Context, orderID common.Hash) (Claim, error) {
	claim, err := s.repo.GetClaim(ctx, orderID)
	if err != nil {
		return Claim{}, fmt.Errorf("failed to load claim %s: %w", orderID.Hex(), err)
	}
	if claim == nil {
		return Claim{OrderID: orderID, Status: StatusUnfilled}, nil
	}
	return *claim, nil
}

// OpenClaims lists claims still holding escrow.
func (s *Settler) OpenClaims(ctx context.Context) ([]Claim, error) {
	return s.ListClaims(ctx, StatusClaimed, StatusChallenged)
}

// ListClaims returns the stored claims in any of statuses, or every claim
// when statuses is empty.
func (s *Settler) ListClaims(ctx context.Context, statuses ...OrderStatus) ([]Claim, error) {
	claims, err := s.repo.ListClaims(ctx, statuses...)
	if err != nil {
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}
	return claims, nil
}

// GetDeposit returns the deposit status of orderID.
func (s *Settler) GetDeposit(ctx context.Context, orderID common.Hash) (DepositStatus, error) {
	status, err := s.repo.GetDeposit(ctx, orderID)
	if err != nil {
		return DepositNone, fmt.Errorf("failed to load deposit %s: %w", orderID.Hex(), err)
	}
	return status, nil
}

// Now is the settler clock as a unix timestamp.
func (s *Settler) Now() uint32 {
	return uint32(s.clock().Unix())
}

// transition persists next and runs effects. If effects fail, prev is
// restored and the effect error returned.
func (s *Settler) transition(ctx context.Context, prev, next Claim, effects func() error) error {
	if err := s.repo.PutClaim(ctx, next); err != nil {
		return fmt.Errorf("failed to persist claim %s: %w", next.OrderID.Hex(), err)
	}
	if err := effects(); err != nil {
		if rbErr := s.repo.PutClaim(ctx, prev); rbErr != nil {
			s.log.WithError(rbErr).WithField("order", next.OrderID.Hex()).Error("failed to restore claim after aborted transition")
		}
		return err
	}
	return nil
}

func (s *Settler) publish(ctx context.Context, events ...Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		s.log.WithError(err).Warn("failed to publish settlement events")
	}
}

// notify delivers a callback. Failures never undo the settlement.
func (s *Settler) notify(ctx context.Context, target common.Address, orderID, identifier common.Hash, payload []byte) {
	if s.callback == nil {
		return
	}
	if err := s.callback.Notify(ctx, target, orderID, identifier, payload); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"order":  orderID.Hex(),
			"target": target.Hex(),
		}).Warn("settlement callback failed")
	}
}

func (s *Settler) orderEvent(orderID common.Hash, typ EventType, actor common.Address) OrderEvent {
	return OrderEvent{OrderID: orderID, Type: typ, Actor: actor, Timestamp: s.Now()}
}

func (s *Settler) checkOrigin(order types.Order) error {
	if !types.AmountOrZero(order.OriginChainID).Eq(s.chainID) {
		return fmt.Errorf("%w: %s", ErrWrongOriginChain, types.AmountOrZero(order.OriginChainID).Dec())
	}
	return nil
}

func statusError(op string, status OrderStatus) error {
	return fmt.Errorf("%w: cannot %s order in status %s", ErrStatusMismatch, op, status)
}
