package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"

	"github.com/catalystsystem/catalyst-intent-sub001/internal/custody"
	"github.com/catalystsystem/catalyst-intent-sub001/internal/orderhash"
	"github.com/catalystsystem/catalyst-intent-sub001/internal/settlement"
	"github.com/catalystsystem/catalyst-intent-sub001/internal/types"
)

// Settler is the part of settlement.Settler served over HTTP.
type Settler interface {
	OrderIdentifier(order types.Order) common.Hash
	GetClaim(ctx context.Context, orderID common.Hash) (settlement.Claim, error)
	ListClaims(ctx context.Context, statuses ...settlement.OrderStatus) ([]settlement.Claim, error)
	GetDeposit(ctx context.Context, orderID common.Hash) (settlement.DepositStatus, error)
	GovernanceFee() settlement.FeeSchedule

	ClaimOrder(ctx context.Context, req settlement.ClaimRequest) (settlement.Claim, error)
	Deposit(ctx context.Context, caller common.Address, order types.Order) (common.Hash, error)
	CancelDeposit(ctx context.Context, caller common.Address, order types.Order) error
	PurchaseOrder(ctx context.Context, req settlement.PurchaseRequest) error
	ModifyPurchaseTerms(ctx context.Context, caller common.Address, orderID common.Hash, terms types.FillerData) error

	Prove(ctx context.Context, caller common.Address, order types.Order) error
	OptimisticPayout(ctx context.Context, caller common.Address, order types.Order) error
	Dispute(ctx context.Context, challenger common.Address, order types.Order) error
	CompleteDispute(ctx context.Context, caller common.Address, order types.Order) error

	ScheduleGovernanceFee(ctx context.Context, caller common.Address, fee uint16) error
	ApplyGovernanceFee(ctx context.Context) error
}

type orderAction func(ctx context.Context, caller common.Address, order types.Order) error

type actionRequest struct {
	Caller common.Address `json:"caller"`
	Order  types.Order    `json:"order"`
}

type claimRequest struct {
	Caller     common.Address   `json:"caller"`
	Order      types.Order      `json:"order"`
	Signature  hexutil.Bytes    `json:"signature"`
	FillerData types.FillerData `json:"fillerData"`
}

type purchaseRequest struct {
	Purchaser   common.Address      `json:"purchaser"`
	Order       types.Order         `json:"order"`
	Purchase    types.OrderPurchase `json:"purchase"`
	Signature   hexutil.Bytes       `json:"signature"`
	MinDiscount uint16              `json:"minDiscount"`
}

type purchaseTermsRequest struct {
	Caller  common.Address   `json:"caller"`
	OrderID common.Hash      `json:"orderId"`
	Terms   types.FillerData `json:"terms"`
}

type feeRequest struct {
	Caller common.Address `json:"caller"`
	Fee    uint16         `json:"fee"`
}

// Handler serves the settler. Faucet and Attester are optional and only
// set for in-memory deployments.
type Handler struct {
	Settler  Settler
	Faucet   Faucet
	Attester Attester
}

func NewHandler(settler Settler) *Handler {
	return &Handler{Settler: settler}
}

type claimResponse struct {
	OrderID          string       `json:"orderId"`
	Status           string       `json:"status"`
	Filler           string       `json:"filler,omitempty"`
	Challenger       string       `json:"challenger,omitempty"`
	Identifier       string       `json:"identifier,omitempty"`
	PurchaseDeadline uint32       `json:"purchaseDeadline,omitempty"`
	PurchaseDiscount uint16       `json:"purchaseDiscount,omitempty"`
	ClaimedAt        uint32       `json:"claimedAt,omitempty"`
	Order            *types.Order `json:"order,omitempty"`
}

type orderIDResponse struct {
	OrderID string `json:"orderId"`
	Witness string `json:"witness"`
}

type depositResponse struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseOrderID(w, r)
	if !ok {
		return
	}
	claim, err := h.Settler.GetClaim(r.Context(), orderID)
	if err != nil {
		writeSettlementError(w, err)
		return
	}
	claim.OrderID = orderID
	writeJSON(w, http.StatusOK, newClaimResponse(claim))
}

// ListOrders returns the stored claims, filtered by the comma separated
// status query parameter.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	var statuses []settlement.OrderStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			status, ok := settlement.ParseOrderStatus(strings.TrimSpace(name))
			if !ok {
				writeError(w, http.StatusBadRequest, "invalid status: "+name)
				return
			}
			statuses = append(statuses, status)
		}
	}
	claims, err := h.Settler.ListClaims(r.Context(), statuses...)
	if err != nil {
		writeSettlementError(w, err)
		return
	}
	resp := make([]claimResponse, 0, len(claims))
	for _, claim := range claims {
		resp = append(resp, newClaimResponse(claim))
	}
	writeJSON(w, http.StatusOK, resp)
}

func newClaimResponse(claim settlement.Claim) claimResponse {
	resp := claimResponse{
		OrderID: claim.OrderID.Hex(),
		Status:  claim.Status.String(),
	}
	if claim.Status != settlement.StatusUnfilled {
		order := claim.Order
		resp.Filler = claim.Filler.Hex()
		resp.PurchaseDeadline = claim.PurchaseDeadline
		resp.PurchaseDiscount = claim.PurchaseDiscount
		resp.ClaimedAt = claim.ClaimedAt
		resp.Order = &order
		if claim.Challenger != (common.Address{}) {
			resp.Challenger = claim.Challenger.Hex()
		}
		if claim.Identifier != (common.Hash{}) {
			resp.Identifier = claim.Identifier.Hex()
		}
	}
	return resp
}

func (h *Handler) GetDeposit(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseOrderID(w, r)
	if !ok {
		return
	}
	status, err := h.Settler.GetDeposit(r.Context(), orderID)
	if err != nil {
		writeSettlementError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, depositResponse{OrderID: orderID.Hex(), Status: status.String()})
}

// OrderID computes the identifier and witness of the posted order.
func (h *Handler) OrderID(w http.ResponseWriter, r *http.Request) {
	var order types.Order
	if err := json.NewDecoder(r.Body).Decode(&order); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if !order.DeadlinesOrdered() {
		writeSettlementError(w, settlement.ErrInvalidDeadlines)
		return
	}
	witness, err := orderhash.Witness(order)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, orderIDResponse{
		OrderID: h.Settler.OrderIdentifier(order).Hex(),
		Witness: witness.Hex(),
	})
}

func (h *Handler) GetGovernanceFee(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Settler.GovernanceFee())
}

// ClaimOrder claims a signed or deposited order for the caller.
func (h *Handler) ClaimOrder(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.Caller == (common.Address{}) {
		writeError(w, http.StatusBadRequest, "missing caller")
		return
	}
	claim, err := h.Settler.ClaimOrder(r.Context(), settlement.ClaimRequest{
		Caller:     req.Caller,
		Order:      req.Order,
		Signature:  req.Signature,
		FillerData: req.FillerData,
	})
	if err != nil {
		writeSettlementError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newClaimResponse(claim))
}

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, func(ctx context.Context, caller common.Address, order types.Order) error {
		_, err := h.Settler.Deposit(ctx, caller, order)
		return err
	})
}

func (h *Handler) CancelDeposit(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.Settler.CancelDeposit)
}

// PurchaseOrder buys the filler position of an open claim.
func (h *Handler) PurchaseOrder(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.Purchaser == (common.Address{}) {
		writeError(w, http.StatusBadRequest, "missing purchaser")
		return
	}
	err := h.Settler.PurchaseOrder(r.Context(), settlement.PurchaseRequest{
		Purchaser:   req.Purchaser,
		Order:       req.Order,
		Purchase:    req.Purchase,
		Signature:   req.Signature,
		MinDiscount: req.MinDiscount,
	})
	if err != nil {
		writeSettlementError(w, err)
		return
	}
	h.writeClaim(w, r, h.Settler.OrderIdentifier(req.Order))
}

func (h *Handler) ModifyPurchaseTerms(w http.ResponseWriter, r *http.Request) {
	var req purchaseTermsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.Caller == (common.Address{}) {
		writeError(w, http.StatusBadRequest, "missing caller")
		return
	}
	if err := h.Settler.ModifyPurchaseTerms(r.Context(), req.Caller, req.OrderID, req.Terms); err != nil {
		writeSettlementError(w, err)
		return
	}
	h.writeClaim(w, r, req.OrderID)
}

// ScheduleGovernanceFee starts the timelock for a new fee.
func (h *Handler) ScheduleGovernanceFee(w http.ResponseWriter, r *http.Request) {
	var req feeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := h.Settler.ScheduleGovernanceFee(r.Context(), req.Caller, req.Fee); err != nil {
		writeSettlementError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Settler.GovernanceFee())
}

// ApplyGovernanceFee activates a pending fee once its timelock passed.
func (h *Handler) ApplyGovernanceFee(w http.ResponseWriter, r *http.Request) {
	if err := h.Settler.ApplyGovernanceFee(r.Context()); err != nil {
		writeSettlementError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Settler.GovernanceFee())
}

func (h *Handler) Prove(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.Settler.Prove)
}

func (h *Handler) OptimisticPayout(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.Settler.OptimisticPayout)
}

func (h *Handler) Dispute(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.Settler.Dispute)
}

func (h *Handler) CompleteDispute(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.Settler.CompleteDispute)
}

// act runs a settlement transition and answers with the resulting claim.
func (h *Handler) act(w http.ResponseWriter, r *http.Request, action orderAction) {
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.Caller == (common.Address{}) {
		writeError(w, http.StatusBadRequest, "missing caller")
		return
	}
	if err := action(r.Context(), req.Caller, req.Order); err != nil {
		writeSettlementError(w, err)
		return
	}
	h.writeClaim(w, r, h.Settler.OrderIdentifier(req.Order))
}

func (h *Handler) writeClaim(w http.ResponseWriter, r *http.Request, orderID common.Hash) {
	claim, err := h.Settler.GetClaim(r.Context(), orderID)
	if err != nil {
		writeSettlementError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"orderId": orderID.Hex(),
		"status":  claim.Status.String(),
	})
}

func parseOrderID(w http.ResponseWriter, r *http.Request) (common.Hash, bool) {
	raw := chi.URLParam(r, "orderId")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return common.Hash{}, false
	}
	id, err := types.ToIdentifier(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return common.Hash{}, false
	}
	return id, true
}

// StatusFor maps settlement and custody errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, settlement.ErrStatusMismatch),
		errors.Is(err, settlement.ErrAlreadyDeposited),
		errors.Is(err, settlement.ErrNotDeposited),
		errors.Is(err, settlement.ErrPurchaseUsed),
		errors.Is(err, settlement.ErrReentrantCall),
		errors.Is(err, custody.ErrNonceUsed):
		return http.StatusConflict
	case errors.Is(err, settlement.ErrNotGovernor),
		errors.Is(err, settlement.ErrNotFiller),
		errors.Is(err, settlement.ErrNotOrderOwner),
		errors.Is(err, settlement.ErrInvalidPurchaseSignature),
		errors.Is(err, custody.ErrInvalidSignature):
		return http.StatusForbidden
	case errors.Is(err, settlement.ErrInvalidDeadlines),
		errors.Is(err, settlement.ErrWrongOriginChain),
		errors.Is(err, settlement.ErrInvalidDiscount),
		errors.Is(err, settlement.ErrFeeTooHigh),
		errors.Is(err, settlement.ErrPurchaseMismatch),
		errors.Is(err, settlement.ErrUnknownOracle):
		return http.StatusBadRequest
	case errors.Is(err, settlement.ErrCannotProve),
		errors.Is(err, settlement.ErrOrderExpired),
		errors.Is(err, settlement.ErrChallengeDeadlinePassed),
		errors.Is(err, settlement.ErrChallengeDeadlineNotPassed),
		errors.Is(err, settlement.ErrProofDeadlineNotPassed),
		errors.Is(err, settlement.ErrPurchaseDeadlinePassed),
		errors.Is(err, settlement.ErrPurchaseExpired),
		errors.Is(err, settlement.ErrDiscountTooLow),
		errors.Is(err, settlement.ErrNoPendingFee),
		errors.Is(err, settlement.ErrFeeChangeTooEarly),
		errors.Is(err, custody.ErrPermitExpired),
		errors.Is(err, custody.ErrInsufficientBalance),
		errors.Is(err, custody.ErrBalanceOverflow):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeSettlementError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeError(w, status, msg)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
