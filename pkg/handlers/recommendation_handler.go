package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/trucost-labs/trucost-engine/pkg/apperrors"
	"github.com/trucost-labs/trucost-engine/pkg/jsonutil"
	"github.com/trucost-labs/trucost-engine/pkg/models"
	"github.com/trucost-labs/trucost-engine/pkg/repositories"
	"github.com/trucost-labs/trucost-engine/pkg/retry"
	"github.com/trucost-labs/trucost-engine/pkg/services"
)

// ============================================================================
// Request/Response Types
// ============================================================================

// UpsertRecommendationResponse for POST /api/accounts/{accountID}/recommendations
type UpsertRecommendationResponse struct {
	Status string `json:"status"` // "created" or "updated"
}

// upsertRecommendationRequest shadows year and month so batch loaders that
// emit them as bare numbers are still accepted.
type upsertRecommendationRequest struct {
	models.RecommendationRecord
	Year  json.RawMessage `json:"year"`
	Month json.RawMessage `json:"month"`
}

// AchievedSavingsRequest for POST /api/accounts/{accountID}/recommendations/achieved-savings
type AchievedSavingsRequest struct {
	QueryTitle string          `json:"query_title"`
	ResourceID string          `json:"resource_id"`
	Year       json.RawMessage `json:"year"`
	Month      json.RawMessage `json:"month"`
	Amount     decimal.Decimal `json:"amount"`
}

// RecommendationListResponse for GET /api/accounts/{accountID}/recommendations
type RecommendationListResponse struct {
	Records []*models.RecommendationRecord `json:"records"`
	Total   int                            `json:"total"`
	Summary *models.CostSummary            `json:"summary"`
}

// ============================================================================
// Handler
// ============================================================================

// RecommendationHandler handles recommendation HTTP requests. All routes are
// scoped by the usage account in the path; the service layer resolves the
// account to its partition before touching storage.
type RecommendationHandler struct {
	recService services.RecommendationService
	retryCfg   *retry.Config
	logger     *zap.Logger
}

// NewRecommendationHandler creates a new recommendation handler.
func NewRecommendationHandler(recService services.RecommendationService, logger *zap.Logger) *RecommendationHandler {
	return &RecommendationHandler{
		recService: recService,
		retryCfg:   retry.DefaultConfig(),
		logger:     logger.Named("recommendation-handler"),
	}
}

// RegisterRoutes registers the recommendation handler's routes on the given mux.
func (h *RecommendationHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/accounts/{accountID}/recommendations", h.Upsert)
	mux.HandleFunc("GET /api/accounts/{accountID}/recommendations", h.List)
	mux.HandleFunc("GET /api/accounts/{accountID}/recommendations/facets", h.Facets)
	mux.HandleFunc("GET /api/accounts/{accountID}/recommendations/lookup", h.Lookup)
	mux.HandleFunc("POST /api/accounts/{accountID}/recommendations/achieved-savings", h.SetAchievedSavings)
}

// Upsert handles POST /api/accounts/{accountID}/recommendations.
// Ingestion retries transparently when the account's partition is still
// coming up, so batch loaders do not have to implement their own backoff.
func (h *RecommendationHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	accountID := r.PathValue("accountID")

	var req upsertRecommendationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	rec := req.RecommendationRecord
	rec.Year = jsonutil.FlexibleStringValue(req.Year)
	rec.Month = jsonutil.FlexibleStringValue(req.Month)

	var created bool
	err := retry.DoIfRetryable(r.Context(), h.retryCfg, func() error {
		var upsertErr error
		created, upsertErr = h.recService.Upsert(r.Context(), accountID, &rec)
		return upsertErr
	})
	if err != nil {
		h.logger.Error("Failed to upsert recommendation",
			zap.String("usage_account_id", accountID),
			zap.String("query_title", rec.QueryTitle),
			zap.String("resource_id", rec.ResourceID),
			zap.Error(err))
		_ = WriteServiceError(w, err)
		return
	}

	if created {
		_ = WriteJSON(w, http.StatusCreated, UpsertRecommendationResponse{Status: "created"})
		return
	}
	_ = WriteJSON(w, http.StatusOK, UpsertRecommendationResponse{Status: "updated"})
}

// SetAchievedSavings handles POST /api/accounts/{accountID}/recommendations/achieved-savings.
func (h *RecommendationHandler) SetAchievedSavings(w http.ResponseWriter, r *http.Request) {
	accountID := r.PathValue("accountID")

	var req AchievedSavingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	key := models.RecommendationKey{
		UsageAccountID: accountID,
		QueryTitle:     req.QueryTitle,
		ResourceID:     req.ResourceID,
		Year:           jsonutil.FlexibleStringValue(req.Year),
		Month:          jsonutil.FlexibleStringValue(req.Month),
	}
	if err := h.recService.RecordAchievedSavings(r.Context(), accountID, key, req.Amount); err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) && !errors.Is(err, apperrors.ErrInvalidAmount) {
			h.logger.Error("Failed to record achieved savings",
				zap.String("usage_account_id", accountID),
				zap.String("query_title", req.QueryTitle),
				zap.Error(err))
		}
		_ = WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Lookup handles GET /api/accounts/{accountID}/recommendations/lookup.
// The natural key is four query parameters; the account comes from the path.
func (h *RecommendationHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	accountID := r.PathValue("accountID")
	q := r.URL.Query()

	key := models.RecommendationKey{
		UsageAccountID: accountID,
		QueryTitle:     q.Get("query_title"),
		ResourceID:     q.Get("resource_id"),
		Year:           q.Get("year"),
		Month:          q.Get("month"),
	}
	if err := key.Validate(); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	rec, err := h.recService.Get(r.Context(), accountID, key)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			h.logger.Error("Failed to look up recommendation",
				zap.String("usage_account_id", accountID), zap.Error(err))
		}
		_ = WriteServiceError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, rec)
}

// List handles GET /api/accounts/{accountID}/recommendations.
func (h *RecommendationHandler) List(w http.ResponseWriter, r *http.Request) {
	accountID := r.PathValue("accountID")
	q := r.URL.Query()

	opts := repositories.ListRecommendationsOptions{
		Offset:      queryInt(r, "offset", 0),
		Limit:       queryInt(r, "limit", 100),
		QueryTitle:  q.Get("query_title"),
		ProductCode: q.Get("product_code"),
		Year:        q.Get("year"),
		Month:       q.Get("month"),
	}

	records, total, summary, err := h.recService.List(r.Context(), accountID, opts)
	if err != nil {
		h.logger.Error("Failed to list recommendations",
			zap.String("usage_account_id", accountID), zap.Error(err))
		_ = WriteServiceError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, RecommendationListResponse{
		Records: records,
		Total:   total,
		Summary: summary,
	})
}

// Facets handles GET /api/accounts/{accountID}/recommendations/facets.
func (h *RecommendationHandler) Facets(w http.ResponseWriter, r *http.Request) {
	accountID := r.PathValue("accountID")

	facets, err := h.recService.Facets(r.Context(), accountID)
	if err != nil {
		h.logger.Error("Failed to load recommendation facets",
			zap.String("usage_account_id", accountID), zap.Error(err))
		_ = WriteServiceError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, facets)
}
