// Package custody is a token custodian: account balances, per-order escrow
// and permit based pulls. State lives in memory and, when a Store is
// configured, every movement is persisted before it is applied.
package custody

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"github.com/catalystsystem/catalyst-intent-sub001/internal/settlement"
	"github.com/catalystsystem/catalyst-intent-sub001/internal/types"
	"github.com/catalystsystem/catalyst-intent-sub001/pkg/ethutil"
)

var (
	ErrInvalidSignature    = errors.New("invalid permit signature")
	ErrPermitExpired       = errors.New("permit expired")
	ErrNonceUsed           = errors.New("permit nonce already used")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrEscrowMismatch      = errors.New("payouts do not match escrow")
	ErrBalanceOverflow     = errors.New("balance overflow")
)

type Config struct {
	ChainID *uint256.Int
	// Address is the custodian's own identity in permit signatures.
	Address common.Address
	// Spender is the only account permits may name, usually the settler.
	Spender common.Address
	Clock   func() time.Time
	Logger  *logrus.Logger
	// Store persists the ledger. Nil keeps it in memory only.
	Store Store
}

type balanceKey struct {
	owner common.Address
	token common.Address
}

// Ledger implements settlement.Custody.
type Ledger struct {
	chainID *uint256.Int
	address common.Address
	spender common.Address
	clock   func() time.Time
	log     *logrus.Entry
	nonces  *NonceTracker
	store   Store

	mu       sync.Mutex
	balances map[balanceKey]*uint256.Int
	escrow   map[common.Hash]map[common.Address]*uint256.Int
}

func NewLedger(cfg Config) *Ledger {
	l := &Ledger{
		chainID:  types.AmountOrZero(cfg.ChainID),
		address:  cfg.Address,
		spender:  cfg.Spender,
		clock:    cfg.Clock,
		nonces:   NewNonceTracker(),
		store:    cfg.Store,
		balances: make(map[balanceKey]*uint256.Int),
		escrow:   make(map[common.Hash]map[common.Address]*uint256.Int),
	}
	if l.clock == nil {
		l.clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	l.log = logger.WithField("component", "custody")
	return l
}

// OpenLedger creates a ledger and loads the state persisted in cfg.Store.
func OpenLedger(ctx context.Context, cfg Config) (*Ledger, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("missing ledger store")
	}
	l := NewLedger(cfg)
	entries, err := cfg.Store.LoadLedger(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}
	for _, b := range entries.Balances {
		l.balances[balanceKey{b.Owner, b.Token}] = valueOrZero(b.Amount)
	}
	for _, e := range entries.Escrows {
		if l.escrow[e.OrderID] == nil {
			l.escrow[e.OrderID] = make(map[common.Address]*uint256.Int)
		}
		l.escrow[e.OrderID][e.Token] = valueOrZero(e.Amount)
	}
	for _, n := range entries.Nonces {
		l.nonces.Use(n.Owner, types.AmountOrZero(n.Nonce))
	}
	l.log.WithFields(logrus.Fields{
		"balances": len(entries.Balances),
		"escrows":  len(l.escrow),
		"nonces":   len(entries.Nonces),
	}).Info("ledger restored")
	return l, nil
}

func (l *Ledger) Address() common.Address { return l.address }

// Mint credits amount of token to owner.
func (l *Ledger) Mint(ctx context.Context, owner, token common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	credits := map[balanceKey]*uint256.Int{{owner, token}: types.AmountOrZero(amount)}
	if err := l.checkCredits(credits, nil); err != nil {
		return err
	}
	next := l.nextBalances(nil, credits)
	if err := l.commit(ctx, Entries{Balances: balanceEntries(next)}); err != nil {
		return err
	}
	l.applyBalances(next)
	return nil
}

// BalanceOf returns owner's free balance of token.
func (l *Ledger) BalanceOf(owner, token common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(uint256.Int).Set(l.balance(balanceKey{owner, token}))
}

// EscrowOf returns the escrowed amount of token for orderID.
func (l *Ledger) EscrowOf(orderID common.Hash, token common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if v, ok := l.escrow[orderID][token]; ok {
		return new(uint256.Int).Set(v)
	}
	return new(uint256.Int)
}

// Lock implements settlement.Custody.
func (l *Ledger) Lock(ctx context.Context, orderID common.Hash, pulls []settlement.Pull, permit *settlement.Permit) error {
	all := append([]settlement.Pull(nil), pulls...)
	if permit != nil {
		if err := l.verifyPermit(*permit); err != nil {
			return err
		}
		for _, a := range permit.Assets {
			all = append(all, settlement.Pull{From: permit.Owner, Token: a.Token, Amount: types.AmountOrZero(a.Amount)})
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	debits := make(map[balanceKey]*uint256.Int)
	credits := make(map[common.Address]*uint256.Int)
	for _, p := range all {
		if err := addTo(debits, balanceKey{p.From, p.Token}, p.Amount); err != nil {
			return err
		}
		if err := addTo(credits, p.Token, p.Amount); err != nil {
			return err
		}
	}
	if err := l.checkDebits(debits); err != nil {
		return err
	}
	escrow := make(map[common.Address]*uint256.Int, len(l.escrow[orderID])+len(credits))
	for token, amount := range l.escrow[orderID] {
		escrow[token] = amount
	}
	for token, amount := range credits {
		sum, overflow := new(uint256.Int).AddOverflow(valueOrZero(escrow[token]), amount)
		if overflow {
			return ErrBalanceOverflow
		}
		escrow[token] = sum
	}
	entries := Entries{}
	if permit != nil {
		nonce := types.AmountOrZero(permit.Nonce)
		if l.nonces.IsUsed(permit.Owner, nonce) {
			return ErrNonceUsed
		}
		entries.Nonces = []Nonce{{Owner: permit.Owner, Nonce: nonce}}
	}
	next := l.nextBalances(debits, nil)
	entries.Balances = balanceEntries(next)
	for token, amount := range escrow {
		entries.Escrows = append(entries.Escrows, Escrow{OrderID: orderID, Token: token, Amount: amount})
	}
	if err := l.commit(ctx, entries); err != nil {
		return err
	}
	if permit != nil {
		l.nonces.Use(permit.Owner, types.AmountOrZero(permit.Nonce))
	}
	l.applyBalances(next)
	l.escrow[orderID] = escrow

	l.log.WithFields(logrus.Fields{"order_id": orderID.Hex(), "pulls": len(all)}).Debug("escrow locked")
	return nil
}

// Release implements settlement.Custody. Payouts must account for every
// escrowed token of orderID exactly.
func (l *Ledger) Release(ctx context.Context, orderID common.Hash, payouts []settlement.Payout) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	totals := make(map[common.Address]*uint256.Int)
	for _, p := range payouts {
		if err := addTo(totals, p.Token, p.Amount); err != nil {
			return err
		}
	}
	escrow := l.escrow[orderID]
	for token, amount := range totals {
		if !amount.Eq(valueOrZero(escrow[token])) {
			return fmt.Errorf("%w: token %s pays %s of %s", ErrEscrowMismatch, token.Hex(), amount.Dec(), valueOrZero(escrow[token]).Dec())
		}
	}
	for token, amount := range escrow {
		if _, ok := totals[token]; !ok && !amount.IsZero() {
			return fmt.Errorf("%w: token %s left %s in escrow", ErrEscrowMismatch, token.Hex(), amount.Dec())
		}
	}

	credits := make(map[balanceKey]*uint256.Int)
	for _, p := range payouts {
		if err := addTo(credits, balanceKey{p.To, p.Token}, p.Amount); err != nil {
			return err
		}
	}
	if err := l.checkCredits(credits, nil); err != nil {
		return err
	}
	next := l.nextBalances(nil, credits)
	if err := l.commit(ctx, Entries{Balances: balanceEntries(next), Released: []common.Hash{orderID}}); err != nil {
		return err
	}
	l.applyBalances(next)
	delete(l.escrow, orderID)

	l.log.WithFields(logrus.Fields{"order_id": orderID.Hex(), "payouts": len(payouts)}).Debug("escrow released")
	return nil
}

// Transfer implements settlement.Custody.
func (l *Ledger) Transfer(ctx context.Context, payments []settlement.Payment) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	debits := make(map[balanceKey]*uint256.Int)
	credits := make(map[balanceKey]*uint256.Int)
	for _, p := range payments {
		if err := addTo(debits, balanceKey{p.From, p.Token}, p.Amount); err != nil {
			return err
		}
		if err := addTo(credits, balanceKey{p.To, p.Token}, p.Amount); err != nil {
			return err
		}
	}
	if err := l.checkDebits(debits); err != nil {
		return err
	}
	if err := l.checkCredits(credits, debits); err != nil {
		return err
	}
	next := l.nextBalances(debits, credits)
	if err := l.commit(ctx, Entries{Balances: balanceEntries(next)}); err != nil {
		return err
	}
	l.applyBalances(next)
	return nil
}

// commit persists the rows of one movement. Callers apply them in memory
// only after it succeeds.
func (l *Ledger) commit(ctx context.Context, entries Entries) error {
	if l.store == nil {
		return nil
	}
	if err := l.store.SaveLedger(ctx, entries); err != nil {
		return fmt.Errorf("failed to persist ledger: %w", err)
	}
	return nil
}

func (l *Ledger) verifyPermit(permit settlement.Permit) error {
	if uint32(l.clock().Unix()) > permit.Deadline {
		return ErrPermitExpired
	}
	if l.nonces.IsUsed(permit.Owner, types.AmountOrZero(permit.Nonce)) {
		return ErrNonceUsed
	}
	digest, err := PermitDigest(l.chainID, l.address, l.spender, permit)
	if err != nil {
		return err
	}
	signer, err := ethutil.RecoverSigner(digest, permit.Signature)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	if signer != permit.Owner {
		return fmt.Errorf("%w: signed by %s", ErrInvalidSignature, signer.Hex())
	}
	return nil
}

func (l *Ledger) balance(key balanceKey) *uint256.Int {
	return valueOrZero(l.balances[key])
}

func (l *Ledger) checkDebits(debits map[balanceKey]*uint256.Int) error {
	for key, amount := range debits {
		if l.balance(key).Lt(amount) {
			return fmt.Errorf("%w: %s holds %s of %s, needs %s", ErrInsufficientBalance,
				key.owner.Hex(), l.balance(key).Dec(), key.token.Hex(), amount.Dec())
		}
	}
	return nil
}

// checkCredits verifies credits fit once debits were applied.
func (l *Ledger) checkCredits(credits, debits map[balanceKey]*uint256.Int) error {
	for key, amount := range credits {
		after := new(uint256.Int).Sub(l.balance(key), valueOrZero(debits[key]))
		if _, overflow := after.AddOverflow(after, amount); overflow {
			return ErrBalanceOverflow
		}
	}
	return nil
}

// nextBalances returns the balances of every touched account once debits
// and credits apply. Both must have been checked.
func (l *Ledger) nextBalances(debits, credits map[balanceKey]*uint256.Int) map[balanceKey]*uint256.Int {
	next := make(map[balanceKey]*uint256.Int, len(debits)+len(credits))
	for key, amount := range debits {
		next[key] = new(uint256.Int).Sub(l.balance(key), amount)
	}
	for key, amount := range credits {
		base, ok := next[key]
		if !ok {
			base = l.balance(key)
		}
		next[key] = new(uint256.Int).Add(base, amount)
	}
	return next
}

func (l *Ledger) applyBalances(next map[balanceKey]*uint256.Int) {
	for key, amount := range next {
		l.balances[key] = amount
	}
}

func balanceEntries(next map[balanceKey]*uint256.Int) []Balance {
	out := make([]Balance, 0, len(next))
	for key, amount := range next {
		out = append(out, Balance{Owner: key.owner, Token: key.token, Amount: amount})
	}
	return out
}

func addTo[K comparable](m map[K]*uint256.Int, key K, amount *uint256.Int) error {
	sum, overflow := new(uint256.Int).AddOverflow(valueOrZero(m[key]), types.AmountOrZero(amount))
	if overflow {
		return ErrBalanceOverflow
	}
	m[key] = sum
	return nil
}

func valueOrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
