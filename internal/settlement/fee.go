package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
)

const (
	// BasisPoints is the denominator of fees and discounts.
	BasisPoints = 10_000
	// MaxGovernanceFee caps the governance fee at 25%.
	MaxGovernanceFee uint16 = 2_500
	// DefaultFeeChangeDelay is the timelock between scheduling and applying
	// a new governance fee.
	DefaultFeeChangeDelay = 7 * 24 * time.Hour
)

// FeeSchedule is the active governance fee and an optional pending change.
type FeeSchedule struct {
	Current     uint16 `json:"current"`
	Pending     uint16 `json:"pending"`
	HasPending  bool   `json:"hasPending"`
	ActivatesAt uint32 `json:"activatesAt"`
}

// GovernanceFee returns the current fee schedule.
func (s *Settler) GovernanceFee() FeeSchedule {
	s.feeMu.RLock()
	defer s.feeMu.RUnlock()
	return s.fee
}

// Governor returns the only account allowed to change the fee.
func (s *Settler) Governor() common.Address { return s.governor }

// ScheduleGovernanceFee queues fee to take effect after the timelock.
func (s *Settler) ScheduleGovernanceFee(ctx context.Context, caller common.Address, fee uint16) error {
	if caller != s.governor {
		return ErrNotGovernor
	}
	if fee > MaxGovernanceFee {
		return fmt.Errorf("%w: %d > %d", ErrFeeTooHigh, fee, MaxGovernanceFee)
	}

	now := s.Now()
	activatesAt := now + uint32(s.feeChangeDelay/time.Second)

	s.feeMu.Lock()
	next := s.fee
	next.Pending = fee
	next.HasPending = true
	next.ActivatesAt = activatesAt
	if err := s.repo.PutFeeSchedule(ctx, next); err != nil {
		s.feeMu.Unlock()
		return fmt.Errorf("failed to persist fee schedule: %w", err)
	}
	s.fee = next
	s.feeMu.Unlock()

	s.log.WithFields(logrus.Fields{"fee": fee, "activates_at": activatesAt}).Info("governance fee change scheduled")
	s.publish(ctx, GovernanceFeeScheduled{
		GovernanceEvent: GovernanceEvent{Type: EventTypeGovernanceFeeScheduled, Timestamp: now},
		Fee:             fee,
		ActivatesAt:     activatesAt,
	})
	return nil
}

// ApplyGovernanceFee activates the pending fee once its timelock elapsed.
// Anyone may call it.
func (s *Settler) ApplyGovernanceFee(ctx context.Context) error {
	now := s.Now()

	s.feeMu.Lock()
	if !s.fee.HasPending {
		s.feeMu.Unlock()
		return ErrNoPendingFee
	}
	if now < s.fee.ActivatesAt {
		activatesAt := s.fee.ActivatesAt
		s.feeMu.Unlock()
		return fmt.Errorf("%w: activates at %d", ErrFeeChangeTooEarly, activatesAt)
	}
	previous := s.fee.Current
	next := FeeSchedule{Current: s.fee.Pending}
	if err := s.repo.PutFeeSchedule(ctx, next); err != nil {
		s.feeMu.Unlock()
		return fmt.Errorf("failed to persist fee schedule: %w", err)
	}
	s.fee = next
	current := s.fee.Current
	s.feeMu.Unlock()

	s.log.WithFields(logrus.Fields{"previous": previous, "fee": current}).Info("governance fee applied")
	s.publish(ctx, GovernanceFeeApplied{
		GovernanceEvent: GovernanceEvent{Type: EventTypeGovernanceFeeApplied, Timestamp: now},
		Previous:        previous,
		Fee:             current,
	})
	return nil
}

// calcFee returns amount * fee / BasisPoints. If the product overflows the
// fee is waived.
func calcFee(amount *uint256.Int, fee uint16) *uint256.Int {
	if fee == 0 || amount.IsZero() {
		return new(uint256.Int)
	}
	product, overflow := new(uint256.Int).MulOverflow(amount, uint256.NewInt(uint64(fee)))
	if overflow {
		return new(uint256.Int)
	}
	return product.Div(product, uint256.NewInt(BasisPoints))
}

// share returns amount * bps / BasisPoints for bps <= BasisPoints. When the
// product overflows the division happens first, so the result never exceeds
// amount.
func share(amount *uint256.Int, bps uint16) *uint256.Int {
	cut, overflow := new(uint256.Int).MulOverflow(amount, uint256.NewInt(uint64(bps)))
	if overflow {
		cut = new(uint256.Int).Div(amount, uint256.NewInt(BasisPoints))
		return cut.Mul(cut, uint256.NewInt(uint64(bps)))
	}
	return cut.Div(cut, uint256.NewInt(BasisPoints))
}

// applyDiscount returns amount less its discount.
func applyDiscount(amount *uint256.Int, discount uint16) *uint256.Int {
	return new(uint256.Int).Sub(amount, share(amount, discount))
}
