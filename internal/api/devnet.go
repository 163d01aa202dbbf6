package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/catalystsystem/catalyst-intent-sub001/internal/orderhash"
	"github.com/catalystsystem/catalyst-intent-sub001/internal/types"
)

// Faucet credits custody balances, see custody.Ledger.
type Faucet interface {
	Mint(ctx context.Context, owner, token common.Address, amount *uint256.Int) error
}

// Attester records output fills, see oracle.Registry.
type Attester interface {
	Attest(ctx context.Context, orderID, outputHash common.Hash, solver types.Identifier, timestamp uint32) error
}

type mintRequest struct {
	Owner  common.Address `json:"owner"`
	Token  common.Address `json:"token"`
	Amount *uint256.Int   `json:"amount"`
}

type attestRequest struct {
	OrderID   common.Hash             `json:"orderId"`
	Output    types.OutputDescription `json:"output"`
	Solver    types.Identifier        `json:"solver"`
	Timestamp uint32                  `json:"timestamp"`
}

// Mint funds owner's custody balance.
func (h *Handler) Mint(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.Owner == (common.Address{}) || req.Token == (common.Address{}) {
		writeError(w, http.StatusBadRequest, "missing owner or token")
		return
	}
	if req.Amount == nil || req.Amount.IsZero() {
		writeError(w, http.StatusBadRequest, "missing amount")
		return
	}
	if err := h.Faucet.Mint(r.Context(), req.Owner, req.Token, req.Amount); err != nil {
		writeSettlementError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"owner":  req.Owner.Hex(),
		"token":  req.Token.Hex(),
		"amount": req.Amount.Dec(),
	})
}

// Attest records one output fill with the in-memory oracle.
func (h *Handler) Attest(w http.ResponseWriter, r *http.Request) {
	var req attestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.OrderID == (common.Hash{}) {
		writeError(w, http.StatusBadRequest, "missing order id")
		return
	}
	if req.Timestamp == 0 {
		writeError(w, http.StatusBadRequest, "missing timestamp")
		return
	}
	outputHash := orderhash.OutputHash(req.Output)
	if err := h.Attester.Attest(r.Context(), req.OrderID, outputHash, req.Solver, req.Timestamp); err != nil {
		writeSettlementError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"orderId":    req.OrderID.Hex(),
		"outputHash": outputHash.Hex(),
	})
}
