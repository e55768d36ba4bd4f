package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/thezfz/corebank-sub000/internal/services"
)

// InvestmentHandler is the thin HTTP caller over the investment engine.
type InvestmentHandler struct {
	investments *services.InvestmentService
	validator   *services.ValidationHelper
}

func NewInvestmentHandler(investments *services.InvestmentService) *InvestmentHandler {
	return &InvestmentHandler{
		investments: investments,
		validator:   services.NewValidationHelper(),
	}
}

type PurchaseRequest struct {
	UserID    string `json:"user_id" validate:"required"`
	AccountID string `json:"account_id" validate:"required"`
	ProductID string `json:"product_id" validate:"required"`
	Amount    string `json:"amount" validate:"required"`
}

type RedeemRequest struct {
	UserID    string `json:"user_id" validate:"required"`
	HoldingID string `json:"holding_id" validate:"required"`
	Shares    string `json:"shares,omitempty"` // empty means full redemption
}

func (h *InvestmentHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		services.SendErrorResponse(w, "Invalid amount", http.StatusBadRequest, nil)
		return
	}

	investmentTx, err := h.investments.Purchase(r.Context(), req.UserID, req.AccountID, req.ProductID, amount)
	if err != nil {
		services.SendErrorResponse(w, err.Error(), services.StatusForError(err), nil)
		return
	}

	writeJSON(w, http.StatusCreated, investmentTx)
}

func (h *InvestmentHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	var shares *decimal.Decimal
	if req.Shares != "" {
		parsed, err := decimal.NewFromString(req.Shares)
		if err != nil {
			services.SendErrorResponse(w, "Invalid shares", http.StatusBadRequest, nil)
			return
		}
		shares = &parsed
	}

	investmentTx, err := h.investments.Redeem(r.Context(), req.UserID, req.HoldingID, shares)
	if err != nil {
		services.SendErrorResponse(w, err.Error(), services.StatusForError(err), nil)
		return
	}

	writeJSON(w, http.StatusCreated, investmentTx)
}

func (h *InvestmentHandler) ListHoldings(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	holdings, err := h.investments.ListHoldings(r.Context(), userID)
	if err != nil {
		services.SendErrorResponse(w, err.Error(), services.StatusForError(err), nil)
		return
	}

	writeJSON(w, http.StatusOK, holdings)
}

func (h *InvestmentHandler) GetHolding(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		services.SendErrorResponse(w, "user_id is required", http.StatusBadRequest, nil)
		return
	}
	holdingID := chi.URLParam(r, "holdingID")

	holding, err := h.investments.GetHolding(r.Context(), userID, holdingID)
	if err != nil {
		services.SendErrorResponse(w, err.Error(), services.StatusForError(err), nil)
		return
	}

	writeJSON(w, http.StatusOK, holding)
}
