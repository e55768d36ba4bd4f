package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/thezfz/corebank-sub000/internal/config"
	"github.com/thezfz/corebank-sub000/internal/models"
	"github.com/thezfz/corebank-sub000/internal/services"
)

// LedgerHandler is the thin HTTP caller over the ledger engine. It owns no
// money semantics: it parses, validates, invokes one engine operation and
// maps the error kind to a status. Retries are the caller's business; the
// engine does not deduplicate.
type LedgerHandler struct {
	ledger    *services.LedgerService
	validator *services.ValidationHelper
	pageSize  int
}

func NewLedgerHandler(ledger *services.LedgerService, cfg *config.EngineConfig) *LedgerHandler {
	return &LedgerHandler{
		ledger:    ledger,
		validator: services.NewValidationHelper(),
		pageSize:  cfg.MovementPageSize,
	}
}

type MovementRequest struct {
	Amount      string `json:"amount" validate:"required"`
	Description string `json:"description"`
}

type TransferRequest struct {
	FromAccountID string `json:"from_account_id" validate:"required"`
	ToAccountID   string `json:"to_account_id" validate:"required"`
	Amount        string `json:"amount" validate:"required"`
	Description   string `json:"description"`
}

func (h *LedgerHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.movement(w, r, h.ledger.Deposit)
}

func (h *LedgerHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.movement(w, r, h.ledger.Withdraw)
}

func (h *LedgerHandler) movement(w http.ResponseWriter, r *http.Request, op func(string, decimal.Decimal, string) (*models.MovementRecord, error)) {
	accountID := chi.URLParam(r, "accountID")

	var req MovementRequest
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

	record, err := op(accountID, amount, req.Description)
	if err != nil {
		services.SendErrorResponse(w, err.Error(), services.StatusForError(err), nil)
		return
	}

	writeJSON(w, http.StatusCreated, record)
}

func (h *LedgerHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
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

	debit, credit, err := h.ledger.Transfer(req.FromAccountID, req.ToAccountID, amount, req.Description)
	if err != nil {
		services.SendErrorResponse(w, err.Error(), services.StatusForError(err), nil)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"debit":  debit,
		"credit": credit,
	})
}

func (h *LedgerHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	account, err := h.ledger.GetBalance(accountID)
	if err != nil {
		services.SendErrorResponse(w, err.Error(), services.StatusForError(err), nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"account_id": account.ID,
		"number":     account.Number,
		"balance":    account.Balance,
	})
}

func (h *LedgerHandler) ListMovements(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	entries, err := h.ledger.ListMovements(accountID, h.pageSize)
	if err != nil {
		services.SendErrorResponse(w, err.Error(), services.StatusForError(err), nil)
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
