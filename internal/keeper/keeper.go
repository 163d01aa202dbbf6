// Package keeper drives time based settlement: optimistic payouts, proofs,
// expired disputes and pending governance fees.
package keeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/catalystsystem/catalyst-intent-sub001/internal/settlement"
	"github.com/catalystsystem/catalyst-intent-sub001/internal/types"
)

// Settler is the part of settlement.Settler the keeper drives.
type Settler interface {
	OpenClaims(ctx context.Context) ([]settlement.Claim, error)
	GetClaim(ctx context.Context, orderID common.Hash) (settlement.Claim, error)
	Prove(ctx context.Context, caller common.Address, order types.Order) error
	OptimisticPayout(ctx context.Context, caller common.Address, order types.Order) error
	CompleteDispute(ctx context.Context, caller common.Address, order types.Order) error
	GovernanceFee() settlement.FeeSchedule
	ApplyGovernanceFee(ctx context.Context) error
	Now() uint32
}

type Config struct {
	// Caller is the account the keeper acts as.
	Caller   common.Address
	Interval time.Duration
	Logger   *logrus.Logger
}

// Result counts the transitions performed by one sweep.
type Result struct {
	Proven     int
	Optimistic int
	Fraud      int
	FeeApplied bool
}

type Keeper struct {
	settler   Settler
	caller    common.Address
	interval  time.Duration
	scheduler *gocron.Scheduler
	log       *logrus.Entry

	mu  sync.Mutex
	tag string
}

func New(settler Settler, cfg Config) *Keeper {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Keeper{
		settler:   settler,
		caller:    cfg.Caller,
		interval:  interval,
		scheduler: gocron.NewScheduler(time.UTC),
		log:       logger.WithField("component", "keeper"),
	}
}

// Start runs Sweep every interval until Stop.
func (k *Keeper) Start(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.tag = uuid.New().String()
	_, err := k.scheduler.Every(k.interval).Tag(k.tag).Do(func() {
		if _, err := k.Sweep(ctx); err != nil {
			k.log.WithError(err).Warn("sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}
	k.scheduler.StartAsync()
	k.log.WithField("interval", k.interval).Info("keeper started")
	return nil
}

func (k *Keeper) Stop() {
	k.scheduler.Stop()
	k.log.Info("keeper stopped")
}

// ScheduleOnce runs a settlement attempt for orderID at the given unix time.
func (k *Keeper) ScheduleOnce(ctx context.Context, orderID common.Hash, at uint32) error {
	delay := int64(at) - int64(k.settler.Now())
	if delay < 0 {
		return fmt.Errorf("cannot schedule task in the past")
	}
	if delay == 0 {
		delay = 1
	}
	_, err := k.scheduler.Every(int(delay)).Seconds().WaitForSchedule().LimitRunsTo(1).Tag(orderID.Hex(), uuid.New().String()).Do(func() {
		if _, err := k.Settle(ctx, orderID); err != nil {
			k.log.WithError(err).WithField("order_id", orderID.Hex()).Warn("failed to load claim")
		}
	})
	return err
}

// Settle makes one settlement attempt for a single order.
func (k *Keeper) Settle(ctx context.Context, orderID common.Hash) (Result, error) {
	var res Result
	claim, err := k.settler.GetClaim(ctx, orderID)
	if err != nil {
		return res, err
	}
	k.settle(ctx, claim, &res)
	return res, nil
}

// HandleEvents schedules a settlement attempt once a claimed order's
// challenge window or a disputed order's proof window closes.
func (k *Keeper) HandleEvents(ctx context.Context) func(events []settlement.Event) {
	return func(events []settlement.Event) {
		for _, event := range events {
			var orderID common.Hash
			switch e := event.(type) {
			case settlement.OrderClaimed:
				orderID = e.OrderID
			case settlement.OrderDisputed:
				orderID = e.OrderID
			default:
				continue
			}
			claim, err := k.settler.GetClaim(ctx, orderID)
			if err != nil || !claim.Open() {
				continue
			}
			at := claim.Order.ChallengeDeadline + 1
			if claim.Status == settlement.StatusChallenged {
				at = claim.Order.ProofDeadline + 1
			}
			if err := k.ScheduleOnce(ctx, orderID, at); err != nil {
				k.log.WithError(err).WithField("order_id", orderID.Hex()).Debug("settlement not scheduled")
			}
		}
	}
}

// Sweep attempts to settle every open claim and applies a due fee change.
func (k *Keeper) Sweep(ctx context.Context) (Result, error) {
	var res Result

	claims, err := k.settler.OpenClaims(ctx)
	if err != nil {
		return res, err
	}
	for _, claim := range claims {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		k.settle(ctx, claim, &res)
	}

	fee := k.settler.GovernanceFee()
	if fee.HasPending && k.settler.Now() >= fee.ActivatesAt {
		if err := k.settler.ApplyGovernanceFee(ctx); err != nil {
			k.log.WithError(err).Warn("failed to apply governance fee")
		} else {
			res.FeeApplied = true
		}
	}

	if res != (Result{}) {
		k.log.WithFields(logrus.Fields{
			"proven":      res.Proven,
			"optimistic":  res.Optimistic,
			"fraud":       res.Fraud,
			"fee_applied": res.FeeApplied,
		}).Info("sweep completed")
	}
	return res, nil
}

func (k *Keeper) settle(ctx context.Context, claim settlement.Claim, res *Result) {
	if !claim.Open() {
		return
	}
	order := claim.Order
	logger := k.log.WithField("order_id", claim.OrderID.Hex())

	err := k.settler.Prove(ctx, k.caller, order)
	if err == nil {
		res.Proven++
		return
	}
	if !errors.Is(err, settlement.ErrCannotProve) {
		logger.WithError(err).Debug("prove skipped")
	}

	now := k.settler.Now()
	switch {
	case claim.Status == settlement.StatusClaimed && now > order.ChallengeDeadline:
		if err := k.settler.OptimisticPayout(ctx, k.caller, order); err != nil {
			logger.WithError(err).Warn("optimistic payout failed")
			return
		}
		res.Optimistic++
	case claim.Status == settlement.StatusChallenged && now > order.ProofDeadline:
		if err := k.settler.CompleteDispute(ctx, k.caller, order); err != nil {
			logger.WithError(err).Warn("complete dispute failed")
			return
		}
		res.Fraud++
	}
}
