package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/trucost-labs/trucost-engine/pkg/apperrors"
	"github.com/trucost-labs/trucost-engine/pkg/models"
	"github.com/trucost-labs/trucost-engine/pkg/services"
)

// RegisterAccountRequest for PUT /api/accounts/{accountID}
type RegisterAccountRequest struct {
	UsageAccountName string `json:"usage_account_name"`
	PayerAccountID   string `json:"payer_account_id"`
	PayerAccountName string `json:"payer_account_name"`
	Active           *bool  `json:"active,omitempty"`
}

// AccountListResponse for GET /api/accounts
type AccountListResponse struct {
	Accounts []*models.Account `json:"accounts"`
}

// AccountHandler handles account directory HTTP requests.
type AccountHandler struct {
	accountService services.AccountService
	logger         *zap.Logger
}

// NewAccountHandler creates a new account handler.
func NewAccountHandler(accountService services.AccountService, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
		logger:         logger.Named("account-handler"),
	}
}

// RegisterRoutes registers the account handler's routes on the given mux.
func (h *AccountHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("PUT /api/accounts/{accountID}", h.Register)
	mux.HandleFunc("GET /api/accounts/{accountID}", h.Get)
	mux.HandleFunc("GET /api/accounts", h.List)
}

// Register handles PUT /api/accounts/{accountID}. Registration is
// idempotent; re-registering an account refreshes its directory entry.
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	accountID := r.PathValue("accountID")

	var req RegisterAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	account := &models.Account{
		UsageAccountID:   accountID,
		UsageAccountName: req.UsageAccountName,
		PayerAccountID:   req.PayerAccountID,
		PayerAccountName: req.PayerAccountName,
		Active:           true,
	}
	if req.Active != nil {
		account.Active = *req.Active
	}

	if err := h.accountService.Register(r.Context(), account); err != nil {
		h.logger.Error("Failed to register account",
			zap.String("usage_account_id", accountID), zap.Error(err))
		_ = WriteServiceError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, account)
}

// Get handles GET /api/accounts/{accountID}.
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	accountID := r.PathValue("accountID")

	account, err := h.accountService.Get(r.Context(), accountID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrUnknownTenant) {
			h.logger.Error("Failed to load account",
				zap.String("usage_account_id", accountID), zap.Error(err))
		}
		_ = WriteServiceError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, account)
}

// List handles GET /api/accounts.
func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accountService.List(r.Context())
	if err != nil {
		h.logger.Error("Failed to list accounts", zap.Error(err))
		_ = WriteServiceError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, AccountListResponse{Accounts: accounts})
}
