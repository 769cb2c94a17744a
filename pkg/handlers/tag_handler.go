package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/trucost-labs/trucost-engine/pkg/apperrors"
	"github.com/trucost-labs/trucost-engine/pkg/models"
	"github.com/trucost-labs/trucost-engine/pkg/repositories"
	"github.com/trucost-labs/trucost-engine/pkg/services"
)

// ============================================================================
// Request/Response Types
// ============================================================================

// ApplyTagUpdateResponse for POST /api/tag-updates
type ApplyTagUpdateResponse struct {
	Status string `json:"status"` // "applied" or "stale_discarded"
}

// AssignTagsRequest for POST /api/resource-tags/assign
type AssignTagsRequest struct {
	ResourceIDs []string         `json:"resource_ids"`
	Fields      models.TagFields `json:"fields"`
}

// AssignTagsResponse for POST /api/resource-tags/assign
type AssignTagsResponse struct {
	Requested int `json:"requested"`
	Applied   int `json:"applied"`
}

// TagListResponse for GET /api/resource-tags
type TagListResponse struct {
	Records []*models.ResourceTagRecord `json:"records"`
	Total   int                         `json:"total"`
}

// EffectiveTagsResponse for GET /api/resource-tags/{resourceID}/effective
type EffectiveTagsResponse struct {
	ResourceID string            `json:"resource_id"`
	Tags       map[string]string `json:"tags"`
}

// ============================================================================
// Handler
// ============================================================================

// TagHandler handles resource tag HTTP requests.
type TagHandler struct {
	tagService services.TagService
	logger     *zap.Logger
}

// NewTagHandler creates a new tag handler.
func NewTagHandler(tagService services.TagService, logger *zap.Logger) *TagHandler {
	return &TagHandler{
		tagService: tagService,
		logger:     logger.Named("tag-handler"),
	}
}

// RegisterRoutes registers the tag handler's routes on the given mux.
func (h *TagHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/tag-updates", h.ApplyUpdate)
	mux.HandleFunc("GET /api/resource-tags", h.List)
	mux.HandleFunc("GET /api/resource-tags/facets", h.Facets)
	mux.HandleFunc("POST /api/resource-tags/assign", h.Assign)
	mux.HandleFunc("GET /api/resource-tags/{resourceID}", h.Get)
	mux.HandleFunc("DELETE /api/resource-tags/{resourceID}", h.Delete)
	mux.HandleFunc("GET /api/resource-tags/{resourceID}/effective", h.GetEffective)
}

// ApplyUpdate handles POST /api/tag-updates.
// The body is one TagUpdate event from the billing sync or a user edit.
func (h *TagHandler) ApplyUpdate(w http.ResponseWriter, r *http.Request) {
	var update models.TagUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	applied, err := h.tagService.ApplyUpdate(r.Context(), update)
	if err != nil {
		h.logger.Error("Failed to apply tag update",
			zap.String("resource_id", update.ResourceID), zap.Error(err))
		_ = WriteServiceError(w, err)
		return
	}

	status := "applied"
	if !applied {
		status = "stale_discarded"
	}
	_ = WriteJSON(w, http.StatusOK, ApplyTagUpdateResponse{Status: status})
}

// Get handles GET /api/resource-tags/{resourceID}.
func (h *TagHandler) Get(w http.ResponseWriter, r *http.Request) {
	resourceID := r.PathValue("resourceID")

	record, err := h.tagService.GetRecord(r.Context(), resourceID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			h.logger.Error("Failed to load tag record",
				zap.String("resource_id", resourceID), zap.Error(err))
		}
		_ = WriteServiceError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, record)
}

// GetEffective handles GET /api/resource-tags/{resourceID}/effective.
func (h *TagHandler) GetEffective(w http.ResponseWriter, r *http.Request) {
	resourceID := r.PathValue("resourceID")

	tags, err := h.tagService.GetEffectiveTags(r.Context(), resourceID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			h.logger.Error("Failed to resolve effective tags",
				zap.String("resource_id", resourceID), zap.Error(err))
		}
		_ = WriteServiceError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, EffectiveTagsResponse{ResourceID: resourceID, Tags: tags})
}

// Assign handles POST /api/resource-tags/assign.
func (h *TagHandler) Assign(w http.ResponseWriter, r *http.Request) {
	var req AssignTagsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if len(req.ResourceIDs) == 0 {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "resource_ids is required")
		return
	}

	applied, err := h.tagService.AssignTags(r.Context(), req.ResourceIDs, req.Fields)
	if err != nil {
		h.logger.Error("Failed to assign tags in bulk", zap.Error(err))
		_ = WriteServiceError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, AssignTagsResponse{
		Requested: len(req.ResourceIDs),
		Applied:   applied,
	})
}

// List handles GET /api/resource-tags.
func (h *TagHandler) List(w http.ResponseWriter, r *http.Request) {
	opts := repositories.ListTagsOptions{
		Offset:    queryInt(r, "offset", 0),
		Limit:     queryInt(r, "limit", 100),
		UpdatedBy: models.TagSource(r.URL.Query().Get("updated_by")),
	}

	records, total, err := h.tagService.List(r.Context(), opts)
	if err != nil {
		h.logger.Error("Failed to list tag records", zap.Error(err))
		_ = WriteServiceError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, TagListResponse{Records: records, Total: total})
}

// Facets handles GET /api/resource-tags/facets.
func (h *TagHandler) Facets(w http.ResponseWriter, r *http.Request) {
	facets, err := h.tagService.Facets(r.Context())
	if err != nil {
		h.logger.Error("Failed to load tag facets", zap.Error(err))
		_ = WriteServiceError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, facets)
}

// Delete handles DELETE /api/resource-tags/{resourceID}.
func (h *TagHandler) Delete(w http.ResponseWriter, r *http.Request) {
	resourceID := r.PathValue("resourceID")

	if err := h.tagService.Delete(r.Context(), resourceID); err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			h.logger.Error("Failed to delete tag record",
				zap.String("resource_id", resourceID), zap.Error(err))
		}
		_ = WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// queryInt parses an integer query parameter with a fallback.
func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
