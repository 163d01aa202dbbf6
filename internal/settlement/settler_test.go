package settlement_test

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catalystsystem/catalyst-intent-sub001/internal/custody"
	"github.com/catalystsystem/catalyst-intent-sub001/internal/oracle"
	"github.com/catalystsystem/catalyst-intent-sub001/internal/orderhash"
	"github.com/catalystsystem/catalyst-intent-sub001/internal/settlement"
	"github.com/catalystsystem/catalyst-intent-sub001/internal/store/inmemory"
	"github.com/catalystsystem/catalyst-intent-sub001/internal/types"
	"github.com/catalystsystem/catalyst-intent-sub001/pkg/ethutil"
)

const start = 1_700_000_000

var (
	chainID     = uint256.NewInt(1)
	settlerAddr = common.HexToAddress("0x5e771e0000000000000000000000000000000001")
	custodian   = common.HexToAddress("0x000000000022d473030f116ddee9f6b43ac78ba3")
	oracleAddr  = common.HexToAddress("0x0fac1e0000000000000000000000000000000001")
	governor    = common.HexToAddress("0x6000000000000000000000000000000000000001")
	inputToken  = common.HexToAddress("0xaaaa000000000000000000000000000000000001")
	bondToken   = common.HexToAddress("0xbbbb000000000000000000000000000000000002")
	challenger  = common.HexToAddress("0xc000000000000000000000000000000000000003")
	purchaser   = common.HexToAddress("0xd000000000000000000000000000000000000004")
)

type recorder struct {
	mu     sync.Mutex
	events []settlement.Event
}

func (r *recorder) Publish(_ context.Context, events ...settlement.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

func (r *recorder) eventTypes() []settlement.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]settlement.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.GetType())
	}
	return out
}

type callbackFunc func(ctx context.Context, target common.Address, orderID, identifier common.Hash, payload []byte) error

func (f callbackFunc) Notify(ctx context.Context, target common.Address, orderID, identifier common.Hash, payload []byte) error {
	return f(ctx, target, orderID, identifier, payload)
}

type staticOracle bool

func (o staticOracle) IsProven(context.Context, common.Hash, []types.OutputDescription, uint32) (bool, error) {
	return bool(o), nil
}

type env struct {
	t        *testing.T
	now      uint32
	settler  *settlement.Settler
	ledger   *custody.Ledger
	registry *oracle.Registry
	events   *recorder
	repo     settlement.Repository

	ownerKey  *ecdsa.PrivateKey
	owner     common.Address
	fillerKey *ecdsa.PrivateKey
	filler    common.Address

	callback settlement.Callback
}

type envOption func(*settlement.Config)

func newEnv(t *testing.T, opts ...envOption) *env {
	t.Helper()
	e := &env{t: t, now: start, events: &recorder{}, registry: oracle.NewRegistry()}
	clock := func() time.Time { return time.Unix(int64(e.now), 0) }

	var err error
	e.ownerKey, err = crypto.GenerateKey()
	require.NoError(t, err)
	e.owner = crypto.PubkeyToAddress(e.ownerKey.PublicKey)
	e.fillerKey, err = crypto.GenerateKey()
	require.NoError(t, err)
	e.filler = crypto.PubkeyToAddress(e.fillerKey.PublicKey)

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	e.ledger = custody.NewLedger(custody.Config{
		ChainID: chainID,
		Address: custodian,
		Spender: settlerAddr,
		Clock:   clock,
		Logger:  logger,
	})
	e.repo, err = inmemory.NewRepository()
	require.NoError(t, err)

	cfg := settlement.Config{
		ChainID:        chainID,
		Address:        settlerAddr,
		Governor:       governor,
		FeeChangeDelay: time.Hour,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	e.settler, err = settlement.NewSettler(cfg, e.repo, e.ledger,
		settlement.WithOracle(oracleAddr, e.registry),
		settlement.WithPublisher(e.events),
		settlement.WithCallback(callbackFunc(func(ctx context.Context, target common.Address, orderID, identifier common.Hash, payload []byte) error {
			if e.callback == nil {
				return nil
			}
			return e.callback.Notify(ctx, target, orderID, identifier, payload)
		})),
		settlement.WithLogger(logger),
		settlement.WithClock(clock),
	)
	require.NoError(t, err)
	return e
}

func withFee(fee uint16) envOption {
	return func(c *settlement.Config) { c.InitialFee = fee }
}

func (e *env) order() types.Order {
	return types.Order{
		User:              e.owner,
		Nonce:             uint256.NewInt(1),
		OriginChainID:     chainID,
		Expires:           start + 100,
		FillDeadline:      start + 100,
		ChallengeDeadline: start + 200,
		ProofDeadline:     start + 300,
		LocalOracle:       oracleAddr,
		Collateral: types.Collateral{
			Token:            bondToken,
			FillerAmount:     uint256.NewInt(10),
			ChallengerAmount: uint256.NewInt(10),
		},
		Inputs: []types.Input{{Token: inputToken, Amount: uint256.NewInt(100)}},
		Outputs: []types.OutputDescription{{
			RemoteOracle: common.HexToHash("0x01"),
			ChainID:      uint256.NewInt(10),
			Token:        common.HexToHash("0xee"),
			Amount:       uint256.NewInt(99),
			Recipient:    types.IdentifierFromAddress(e.owner),
		}},
	}
}

func (e *env) fund(order types.Order) {
	e.t.Helper()
	for _, in := range order.Inputs {
		require.NoError(e.t, e.ledger.Mint(context.Background(), order.User, in.Token, in.Amount))
	}
	require.NoError(e.t, e.ledger.Mint(context.Background(), e.filler, order.Collateral.Token, order.Collateral.FillerAmount))
}

func (e *env) sign(order types.Order) []byte {
	e.t.Helper()
	witness, err := orderhash.Witness(order)
	require.NoError(e.t, err)
	sig, err := custody.SignPermit(e.ownerKey, chainID, custodian, settlerAddr, settlement.Permit{
		Owner:    order.User,
		Assets:   order.Inputs,
		Nonce:    order.Nonce,
		Deadline: order.Expires,
		Witness:  witness,
	})
	require.NoError(e.t, err)
	return sig
}

func (e *env) claim(order types.Order, data types.FillerData) settlement.Claim {
	e.t.Helper()
	claim, err := e.settler.ClaimOrder(context.Background(), settlement.ClaimRequest{
		Caller:     e.filler,
		Order:      order,
		Signature:  e.sign(order),
		FillerData: data,
	})
	require.NoError(e.t, err)
	return claim
}

func (e *env) attest(order types.Order, at uint32) {
	e.t.Helper()
	orderID := e.settler.OrderIdentifier(order)
	for _, h := range orderhash.OutputHashes(order.Outputs) {
		require.NoError(e.t, e.registry.Attest(context.Background(), orderID, h, types.IdentifierFromAddress(e.filler), at))
	}
}

func (e *env) status(order types.Order) settlement.OrderStatus {
	e.t.Helper()
	claim, err := e.settler.GetClaim(context.Background(), e.settler.OrderIdentifier(order))
	require.NoError(e.t, err)
	return claim.Status
}

func (e *env) balance(owner, token common.Address) uint64 {
	return e.ledger.BalanceOf(owner, token).Uint64()
}

func TestNewSettler(t *testing.T) {
	repo, err := inmemory.NewRepository()
	require.NoError(t, err)
	ledger := custody.NewLedger(custody.Config{ChainID: chainID})

	_, err = settlement.NewSettler(settlement.Config{Address: settlerAddr}, repo, ledger)
	assert.ErrorContains(t, err, "missing chain id")

	_, err = settlement.NewSettler(settlement.Config{ChainID: chainID, InitialFee: 2_501}, repo, ledger)
	assert.ErrorIs(t, err, settlement.ErrFeeTooHigh)

	_, err = settlement.NewSettler(settlement.Config{ChainID: chainID, FraudOwnerShare: 10_001}, repo, ledger)
	assert.Error(t, err)

	_, err = settlement.NewSettler(settlement.Config{ChainID: chainID}, nil, ledger)
	assert.ErrorContains(t, err, "missing repository")
}

func TestClaimAndProve(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, withFee(100))
	order := e.order()
	e.fund(order)

	claim := e.claim(order, types.FillerData{})
	assert.Equal(t, settlement.StatusClaimed, claim.Status)
	assert.Equal(t, e.filler, claim.Filler)
	assert.Equal(t, uint64(0), e.balance(e.owner, inputToken))
	assert.Equal(t, uint64(0), e.balance(e.filler, bondToken))

	t.Run("rejects unproven outputs", func(t *testing.T) {
		err := e.settler.Prove(ctx, e.filler, order)
		assert.ErrorIs(t, err, settlement.ErrCannotProve)
		assert.Equal(t, settlement.StatusClaimed, e.status(order))
	})

	t.Run("pays filler net of fee", func(t *testing.T) {
		e.attest(order, order.FillDeadline)
		require.NoError(t, e.settler.Prove(ctx, e.filler, order))
		assert.Equal(t, settlement.StatusProven, e.status(order))
		assert.Equal(t, uint64(99), e.balance(e.filler, inputToken))
		assert.Equal(t, uint64(1), e.balance(governor, inputToken))
		assert.Equal(t, uint64(10), e.balance(e.filler, bondToken))
		assert.True(t, e.ledger.EscrowOf(claim.OrderID, inputToken).IsZero())
	})

	t.Run("cannot settle twice", func(t *testing.T) {
		assert.ErrorIs(t, e.settler.Prove(ctx, e.filler, order), settlement.ErrStatusMismatch)
		assert.ErrorIs(t, e.settler.OptimisticPayout(ctx, e.filler, order), settlement.ErrStatusMismatch)
	})

	assert.Equal(t, []settlement.EventType{
		settlement.EventTypeOrderClaimed,
		settlement.EventTypeOrderProven,
	}, e.events.eventTypes())
}

func TestClaimOrderValidation(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	tests := []struct {
		name   string
		mutate func(*types.Order)
		data   types.FillerData
		want   error
	}{
		{
			name:   "wrong origin chain",
			mutate: func(o *types.Order) { o.OriginChainID = uint256.NewInt(2) },
			want:   settlement.ErrWrongOriginChain,
		},
		{
			name:   "fill after challenge deadline",
			mutate: func(o *types.Order) { o.FillDeadline = o.ChallengeDeadline + 1 },
			want:   settlement.ErrInvalidDeadlines,
		},
		{
			name:   "challenge after proof deadline",
			mutate: func(o *types.Order) { o.ChallengeDeadline = o.ProofDeadline + 1 },
			want:   settlement.ErrInvalidDeadlines,
		},
		{
			name:   "expired",
			mutate: func(o *types.Order) { o.Expires = start - 1 },
			want:   settlement.ErrOrderExpired,
		},
		{
			name:   "discount above denominator",
			mutate: func(o *types.Order) {},
			data:   types.FillerData{PurchaseDiscount: 10_001},
			want:   settlement.ErrInvalidDiscount,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := e.order()
			tt.mutate(&order)
			_, err := e.settler.ClaimOrder(ctx, settlement.ClaimRequest{
				Caller:     e.filler,
				Order:      order,
				FillerData: tt.data,
			})
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("bad permit signature rolls back", func(t *testing.T) {
		order := e.order()
		e.fund(order)
		_, err := e.settler.ClaimOrder(ctx, settlement.ClaimRequest{
			Caller:    e.filler,
			Order:     order,
			Signature: make([]byte, 65),
		})
		assert.Error(t, err)
		assert.Equal(t, settlement.StatusUnfilled, e.status(order))
		assert.Equal(t, uint64(10), e.balance(e.filler, bondToken))
		assert.Equal(t, uint64(100), e.balance(e.owner, inputToken))
	})

	t.Run("second claim is rejected", func(t *testing.T) {
		order := e.order()
		order.Nonce = uint256.NewInt(2)
		e.fund(order)
		e.claim(order, types.FillerData{})
		_, err := e.settler.ClaimOrder(ctx, settlement.ClaimRequest{Caller: e.filler, Order: order, Signature: e.sign(order)})
		assert.ErrorIs(t, err, settlement.ErrStatusMismatch)
	})
}

func TestOptimisticPayout(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	order := e.order()
	e.fund(order)
	e.claim(order, types.FillerData{})

	err := e.settler.OptimisticPayout(ctx, e.filler, order)
	assert.ErrorIs(t, err, settlement.ErrChallengeDeadlineNotPassed)

	e.now = order.ChallengeDeadline
	err = e.settler.OptimisticPayout(ctx, e.filler, order)
	assert.ErrorIs(t, err, settlement.ErrChallengeDeadlineNotPassed)

	e.now = order.ChallengeDeadline + 1
	require.NoError(t, e.settler.OptimisticPayout(ctx, e.filler, order))
	assert.Equal(t, settlement.StatusOptimisticallyFilled, e.status(order))
	assert.Equal(t, uint64(100), e.balance(e.filler, inputToken))
	assert.Equal(t, uint64(10), e.balance(e.filler, bondToken))

	err = e.settler.OptimisticPayout(ctx, e.filler, order)
	assert.ErrorIs(t, err, settlement.ErrStatusMismatch)
}

func TestDisputeAndFraud(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	order := e.order()
	e.fund(order)
	require.NoError(t, e.ledger.Mint(context.Background(), challenger, bondToken, uint256.NewInt(10)))
	e.claim(order, types.FillerData{})

	require.NoError(t, e.settler.Dispute(ctx, challenger, order))
	assert.Equal(t, settlement.StatusChallenged, e.status(order))
	assert.Equal(t, uint64(0), e.balance(challenger, bondToken))

	t.Run("no optimistic payout once challenged", func(t *testing.T) {
		e.now = order.ChallengeDeadline + 1
		assert.ErrorIs(t, e.settler.OptimisticPayout(ctx, e.filler, order), settlement.ErrStatusMismatch)
	})

	t.Run("fraud waits for the proof deadline", func(t *testing.T) {
		e.now = order.ProofDeadline
		assert.ErrorIs(t, e.settler.CompleteDispute(ctx, challenger, order), settlement.ErrProofDeadlineNotPassed)
	})

	t.Run("fraud refunds owner and rewards challenger", func(t *testing.T) {
		e.now = order.ProofDeadline + 1
		require.NoError(t, e.settler.CompleteDispute(ctx, challenger, order))
		assert.Equal(t, settlement.StatusFraud, e.status(order))
		assert.Equal(t, uint64(100), e.balance(e.owner, inputToken))
		assert.Equal(t, uint64(5), e.balance(e.owner, bondToken))
		assert.Equal(t, uint64(15), e.balance(challenger, bondToken))
		assert.Equal(t, uint64(0), e.balance(e.filler, bondToken))
	})

	t.Run("proof after fraud is rejected", func(t *testing.T) {
		e.attest(order, order.FillDeadline)
		assert.ErrorIs(t, e.settler.Prove(ctx, e.filler, order), settlement.ErrStatusMismatch)
	})
}

func TestDisputeThenProve(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	order := e.order()
	e.fund(order)
	require.NoError(t, e.ledger.Mint(context.Background(), challenger, bondToken, uint256.NewInt(10)))
	e.claim(order, types.FillerData{})

	e.now = order.ChallengeDeadline + 1
	assert.ErrorIs(t, e.settler.Dispute(ctx, challenger, order), settlement.ErrChallengeDeadlinePassed)

	e.now = order.ChallengeDeadline
	require.NoError(t, e.settler.Dispute(ctx, challenger, order))
	assert.ErrorIs(t, e.settler.Dispute(ctx, challenger, order), settlement.ErrStatusMismatch)

	e.attest(order, order.FillDeadline)
	e.now = order.ProofDeadline + 1000
	require.NoError(t, e.settler.Prove(ctx, e.filler, order))
	assert.Equal(t, uint64(20), e.balance(e.filler, bondToken))
	assert.Equal(t, uint64(100), e.balance(e.filler, inputToken))
}

func TestMandatoryProof(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	order := e.order()
	order.ChallengeDeadline = order.ProofDeadline
	order.Collateral.ChallengerAmount = nil
	e.fund(order)

	claim := e.claim(order, types.FillerData{})
	assert.Equal(t, settlement.StatusChallenged, claim.Status)
	assert.Equal(t, e.owner, claim.Challenger)

	e.now = order.ProofDeadline + 1
	assert.ErrorIs(t, e.settler.OptimisticPayout(ctx, e.filler, order), settlement.ErrStatusMismatch)
	require.NoError(t, e.settler.CompleteDispute(ctx, e.owner, order))
	assert.Equal(t, uint64(100), e.balance(e.owner, inputToken))
	assert.Equal(t, uint64(10), e.balance(e.owner, bondToken))
}

func TestLateFillIsNotProven(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	order := e.order()
	e.fund(order)
	e.claim(order, types.FillerData{})

	e.attest(order, order.FillDeadline+1)
	assert.ErrorIs(t, e.settler.Prove(ctx, e.filler, order), settlement.ErrCannotProve)
	assert.Equal(t, settlement.StatusClaimed, e.status(order))
}

func TestUnknownOracle(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	order := e.order()
	order.LocalOracle = common.HexToAddress("0x99")
	e.fund(order)
	e.claim(order, types.FillerData{})

	err := e.settler.Prove(ctx, e.filler, order)
	assert.ErrorIs(t, err, settlement.ErrCannotProve)
	assert.ErrorIs(t, err, settlement.ErrUnknownOracle)
	assert.Equal(t, settlement.StatusClaimed, e.status(order))
}

func TestPurchaseOrder(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	order := e.order()
	e.fund(order)
	require.NoError(t, e.ledger.Mint(context.Background(), purchaser, bondToken, uint256.NewInt(10)))
	require.NoError(t, e.ledger.Mint(context.Background(), purchaser, inputToken, uint256.NewInt(100)))
	claim := e.claim(order, types.FillerData{PurchaseDeadline: start + 50, PurchaseDiscount: 200})

	purchase := types.OrderPurchase{
		OrderID:       claim.OrderID,
		OriginSettler: settlerAddr,
		Destination:   purchaser,
		Call:          []byte{0xca, 0x11},
		Discount:      300,
		TimeToBuy:     60,
		Expires:       start + 50,
	}
	digest, err := orderhash.PurchaseDigest(chainID, settlerAddr, purchase)
	require.NoError(t, err)
	sig, err := ethutil.SignDigest(e.fillerKey, digest)
	require.NoError(t, err)

	var notified []common.Address
	e.callback = callbackFunc(func(_ context.Context, target common.Address, _, _ common.Hash, payload []byte) error {
		notified = append(notified, target)
		assert.Equal(t, []byte{0xca, 0x11}, payload)
		return nil
	})

	req := settlement.PurchaseRequest{
		Purchaser: purchaser,
		Order:     order,
		Purchase:  purchase,
		Signature: sig,
	}

	t.Run("rejects higher minimum discount", func(t *testing.T) {
		r := req
		r.MinDiscount = 250
		assert.ErrorIs(t, e.settler.PurchaseOrder(ctx, r), settlement.ErrDiscountTooLow)
	})

	t.Run("rejects foreign signature", func(t *testing.T) {
		forged, err := ethutil.SignDigest(e.ownerKey, digest)
		require.NoError(t, err)
		r := req
		r.Signature = forged
		assert.ErrorIs(t, e.settler.PurchaseOrder(ctx, r), settlement.ErrInvalidPurchaseSignature)
	})

	t.Run("rejects mismatched order", func(t *testing.T) {
		r := req
		r.Purchase.OrderID = common.HexToHash("0x01")
		assert.ErrorIs(t, e.settler.PurchaseOrder(ctx, r), settlement.ErrPurchaseMismatch)
	})

	t.Run("transfers the claim", func(t *testing.T) {
		r := req
		r.MinDiscount = 150
		require.NoError(t, e.settler.PurchaseOrder(ctx, r))

		got, err := e.settler.GetClaim(ctx, claim.OrderID)
		require.NoError(t, err)
		assert.Equal(t, purchaser, got.Filler)
		assert.Equal(t, uint16(300), got.PurchaseDiscount)
		assert.Equal(t, uint32(start+60), got.PurchaseDeadline)
		assert.Equal(t, settlement.StatusClaimed, got.Status)

		assert.Equal(t, uint64(10), e.balance(e.filler, bondToken))
		assert.Equal(t, uint64(98), e.balance(e.filler, inputToken))
		assert.Equal(t, uint64(2), e.balance(purchaser, inputToken))
		assert.Equal(t, uint64(0), e.balance(purchaser, bondToken))
		assert.Equal(t, []common.Address{purchaser}, notified)
	})

	t.Run("signature cannot be replayed", func(t *testing.T) {
		assert.ErrorIs(t, e.settler.PurchaseOrder(ctx, req), settlement.ErrPurchaseUsed)
	})

	t.Run("new filler is paid", func(t *testing.T) {
		e.now = order.ChallengeDeadline + 1
		require.NoError(t, e.settler.OptimisticPayout(ctx, purchaser, order))
		assert.Equal(t, uint64(102), e.balance(purchaser, inputToken))
		assert.Equal(t, uint64(10), e.balance(purchaser, bondToken))
	})
}

func TestPurchaseDeadline(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	order := e.order()
	e.fund(order)
	claim := e.claim(order, types.FillerData{PurchaseDeadline: start + 10, PurchaseDiscount: 100})

	purchase := types.OrderPurchase{OrderID: claim.OrderID, OriginSettler: settlerAddr, Expires: start + 100}
	digest, err := orderhash.PurchaseDigest(chainID, settlerAddr, purchase)
	require.NoError(t, err)
	sig, err := ethutil.SignDigest(e.fillerKey, digest)
	require.NoError(t, err)

	e.now = start + 11
	err = e.settler.PurchaseOrder(ctx, settlement.PurchaseRequest{Purchaser: purchaser, Order: order, Purchase: purchase, Signature: sig})
	assert.ErrorIs(t, err, settlement.ErrPurchaseDeadlinePassed)
}

func TestModifyPurchaseTerms(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	order := e.order()
	e.fund(order)
	claim := e.claim(order, types.FillerData{})

	terms := types.FillerData{PurchaseDeadline: start + 30, PurchaseDiscount: 500}
	assert.ErrorIs(t, e.settler.ModifyPurchaseTerms(ctx, purchaser, claim.OrderID, terms), settlement.ErrNotFiller)
	require.NoError(t, e.settler.ModifyPurchaseTerms(ctx, e.filler, claim.OrderID, terms))

	got, err := e.settler.GetClaim(ctx, claim.OrderID)
	require.NoError(t, err)
	assert.Equal(t, uint16(500), got.PurchaseDiscount)
	assert.Equal(t, uint32(start+30), got.PurchaseDeadline)
	assert.Equal(t, e.filler, got.Filler)
}

func TestDepositFlow(t *testing.T) {
	ctx := context.Background()

	t.Run("deposit then claim without signature", func(t *testing.T) {
		e := newEnv(t)
		order := e.order()
		e.fund(order)

		orderID, err := e.settler.Deposit(ctx, e.owner, order)
		require.NoError(t, err)
		assert.Equal(t, uint64(100), e.ledger.EscrowOf(orderID, inputToken).Uint64())

		_, err = e.settler.Deposit(ctx, e.owner, order)
		assert.ErrorIs(t, err, settlement.ErrAlreadyDeposited)

		_, err = e.settler.ClaimOrder(ctx, settlement.ClaimRequest{Caller: e.filler, Order: order})
		require.NoError(t, err)
		status, err := e.settler.GetDeposit(ctx, orderID)
		require.NoError(t, err)
		assert.Equal(t, settlement.DepositClaimed, status)

		assert.ErrorIs(t, e.settler.CancelDeposit(ctx, e.owner, order), settlement.ErrNotDeposited)
	})

	t.Run("cancel refunds owner", func(t *testing.T) {
		e := newEnv(t)
		order := e.order()
		e.fund(order)
		orderID, err := e.settler.Deposit(ctx, e.owner, order)
		require.NoError(t, err)

		assert.ErrorIs(t, e.settler.CancelDeposit(ctx, purchaser, order), settlement.ErrNotOrderOwner)

		e.now = order.Expires + 1
		require.NoError(t, e.settler.CancelDeposit(ctx, purchaser, order))
		assert.Equal(t, uint64(100), e.balance(e.owner, inputToken))
		status, err := e.settler.GetDeposit(ctx, orderID)
		require.NoError(t, err)
		assert.Equal(t, settlement.DepositWithdrawn, status)

		_, err = e.settler.ClaimOrder(ctx, settlement.ClaimRequest{Caller: e.filler, Order: order})
		assert.Error(t, err)
	})

	t.Run("failed deposit restores status", func(t *testing.T) {
		e := newEnv(t)
		order := e.order()
		orderID, err := e.settler.Deposit(ctx, e.owner, order)
		assert.ErrorIs(t, err, custody.ErrInsufficientBalance)
		status, err := e.settler.GetDeposit(ctx, orderID)
		require.NoError(t, err)
		assert.Equal(t, settlement.DepositNone, status)
	})
}

func TestGovernanceFee(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	assert.ErrorIs(t, e.settler.ScheduleGovernanceFee(ctx, purchaser, 100), settlement.ErrNotGovernor)
	assert.ErrorIs(t, e.settler.ScheduleGovernanceFee(ctx, governor, 2_501), settlement.ErrFeeTooHigh)
	assert.ErrorIs(t, e.settler.ApplyGovernanceFee(ctx), settlement.ErrNoPendingFee)

	require.NoError(t, e.settler.ScheduleGovernanceFee(ctx, governor, 2_500))
	schedule := e.settler.GovernanceFee()
	assert.Equal(t, uint16(0), schedule.Current)
	assert.True(t, schedule.HasPending)
	assert.Equal(t, uint32(start+3600), schedule.ActivatesAt)

	e.now = start + 3599
	assert.ErrorIs(t, e.settler.ApplyGovernanceFee(ctx), settlement.ErrFeeChangeTooEarly)

	e.now = start + 3600
	require.NoError(t, e.settler.ApplyGovernanceFee(ctx))
	assert.Equal(t, settlement.FeeSchedule{Current: 2_500}, e.settler.GovernanceFee())

	assert.Equal(t, []settlement.EventType{
		settlement.EventTypeGovernanceFeeScheduled,
		settlement.EventTypeGovernanceFeeApplied,
	}, e.events.eventTypes())
}

func TestFeeOverflowIsWaived(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, withFee(100))
	order := e.order()
	huge := new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 255), uint256.NewInt(1))
	order.Inputs[0].Amount = huge
	e.fund(order)
	e.claim(order, types.FillerData{})

	e.now = order.ChallengeDeadline + 1
	require.NoError(t, e.settler.OptimisticPayout(ctx, e.filler, order))
	assert.True(t, huge.Eq(e.ledger.BalanceOf(e.filler, inputToken)))
	assert.True(t, e.ledger.BalanceOf(governor, inputToken).IsZero())
}

func TestCallbacks(t *testing.T) {
	ctx := context.Background()

	t.Run("failure does not revert settlement", func(t *testing.T) {
		e := newEnv(t)
		order := e.order()
		e.fund(order)
		identifier := common.HexToHash("0x1d")
		e.claim(order, types.FillerData{Identifier: identifier})

		var gotIdentifier common.Hash
		e.callback = callbackFunc(func(_ context.Context, target common.Address, _, id common.Hash, _ []byte) error {
			gotIdentifier = id
			return errors.New("callback reverted")
		})
		e.attest(order, order.FillDeadline)
		require.NoError(t, e.settler.Prove(ctx, e.filler, order))
		assert.Equal(t, identifier, gotIdentifier)
		assert.Equal(t, settlement.StatusProven, e.status(order))
	})

	t.Run("reentrant calls are rejected", func(t *testing.T) {
		e := newEnv(t)
		order := e.order()
		e.fund(order)
		e.claim(order, types.FillerData{Identifier: common.HexToHash("0x1d")})

		var reentryErr error
		e.callback = callbackFunc(func(ctx context.Context, _ common.Address, _, _ common.Hash, _ []byte) error {
			reentryErr = e.settler.OptimisticPayout(ctx, e.filler, order)
			return reentryErr
		})
		e.now = order.ChallengeDeadline + 1
		require.NoError(t, e.settler.OptimisticPayout(ctx, e.filler, order))
		assert.ErrorIs(t, reentryErr, settlement.ErrReentrantCall)
		assert.Equal(t, uint64(100), e.balance(e.filler, inputToken))
	})
}

func TestProveWithStaticOracle(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	order := e.order()
	order.LocalOracle = common.HexToAddress("0x77")
	e.fund(order)

	s, err := settlement.NewSettler(settlement.Config{ChainID: chainID, Address: settlerAddr}, e.repo, e.ledger,
		settlement.WithOracle(order.LocalOracle, staticOracle(true)),
		settlement.WithClock(func() time.Time { return time.Unix(int64(e.now), 0) }),
	)
	require.NoError(t, err)

	_, err = s.ClaimOrder(ctx, settlement.ClaimRequest{Caller: e.filler, Order: order, Signature: e.sign(order)})
	require.NoError(t, err)
	require.NoError(t, s.Prove(ctx, e.filler, order))
	assert.Equal(t, uint64(100), e.balance(e.filler, inputToken))
}

func TestFraudScenarioCollateralSplit(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	order := e.order()
	order.FillDeadline = start + 10
	order.ChallengeDeadline = start + 10
	order.ProofDeadline = start + 1000
	order.Collateral.ChallengerAmount = uint256.NewInt(5)
	e.fund(order)
	require.NoError(t, e.ledger.Mint(context.Background(), challenger, bondToken, uint256.NewInt(5)))

	e.claim(order, types.FillerData{})
	require.NoError(t, e.settler.Dispute(ctx, challenger, order))

	e.now = start + 1001
	require.NoError(t, e.settler.CompleteDispute(ctx, challenger, order))
	assert.Equal(t, uint64(100), e.balance(e.owner, inputToken))
	assert.Equal(t, uint64(5), e.balance(e.owner, bondToken))
	assert.Equal(t, uint64(10), e.balance(challenger, bondToken))
	assert.ErrorIs(t, e.settler.CompleteDispute(ctx, challenger, order), settlement.ErrStatusMismatch)
}

func TestCollateralConservationWithZeroAmounts(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	order := e.order()
	order.Collateral.FillerAmount = uint256.NewInt(0)
	order.Collateral.ChallengerAmount = uint256.NewInt(0)
	order.ProofDeadline = order.ChallengeDeadline + 1
	e.fund(order)
	claim := e.claim(order, types.FillerData{})

	require.NoError(t, e.settler.Dispute(ctx, challenger, order))
	e.now = order.ProofDeadline + 1
	require.NoError(t, e.settler.CompleteDispute(ctx, challenger, order))
	assert.Equal(t, uint64(100), e.balance(e.owner, inputToken))
	assert.True(t, e.ledger.EscrowOf(claim.OrderID, bondToken).IsZero())
}
