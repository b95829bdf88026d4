package rename

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/medianamer-platform/medianamer/internal/api"
	"github.com/medianamer-platform/medianamer/internal/auth"
	"github.com/medianamer-platform/medianamer/internal/ratelimit"
)

type Handler struct {
	svc      *Service
	validate *validator.Validate
}

func NewHandler(svc *Service) *Handler {
	return &Handler{
		svc:      svc,
		validate: validator.New(),
	}
}

type renameRequest struct {
	SelectedName string `json:"selected_name" validate:"omitempty,max=80"`
}

type bulkRequest struct {
	ResourceIDs []string `json:"resource_ids" validate:"required,min=1,max=50,dive,required"`
}

// Rename serves POST /media/{resourceID}/rename.
func (h *Handler) Rename(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetClaims(r.Context())
	if claims == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}
	resourceID := chi.URLParam(r, "resourceID")

	var req renameRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.HandleError(w, api.NewBadRequestError("invalid JSON body"))
			return
		}
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	result, err := h.svc.Rename(r.Context(), claims.UserID, resourceID, req.SelectedName, claims.Admin)
	if err != nil {
		h.handleServiceError(w, err, claims.UserID)
		return
	}

	api.JSON(w, http.StatusOK, result)
}

// Suggest serves GET /media/{resourceID}/suggestions.
func (h *Handler) Suggest(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetClaims(r.Context())
	if claims == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}
	resourceID := chi.URLParam(r, "resourceID")

	count := 0
	if c := r.URL.Query().Get("count"); c != "" {
		parsed, err := strconv.Atoi(c)
		if err != nil || parsed < 1 || parsed > 10 {
			api.HandleError(w, api.NewValidationError("count must be between 1 and 10"))
			return
		}
		count = parsed
	}

	result, err := h.svc.Suggest(r.Context(), claims.UserID, resourceID, count, claims.Admin)
	if err != nil {
		h.handleServiceError(w, err, claims.UserID)
		return
	}

	api.JSON(w, http.StatusOK, result)
}

// RenameBulk serves POST /media/rename-bulk.
func (h *Handler) RenameBulk(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetClaims(r.Context())
	if claims == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	var req bulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid JSON body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	result, err := h.svc.RenameBulk(r.Context(), claims.UserID, req.ResourceIDs, claims.Admin)
	if err != nil {
		h.handleServiceError(w, err, claims.UserID)
		return
	}

	api.JSON(w, http.StatusOK, result)
}

// History serves GET /media/{resourceID}/history.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetClaims(r.Context())
	if claims == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}
	resourceID := chi.URLParam(r, "resourceID")
	if resourceID == "" {
		api.HandleError(w, api.NewValidationError("resource id is required"))
		return
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil {
			limit = parsed
		}
	}

	records, err := h.svc.History(r.Context(), resourceID, limit)
	if err != nil {
		slog.Error("fetching rename history", "error", err, "resource", resourceID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if records == nil {
		records = []OperationRecord{}
	}

	api.JSON(w, http.StatusOK, map[string]any{
		"resource_id": resourceID,
		"history":     records,
	})
}

func (h *Handler) handleServiceError(w http.ResponseWriter, err error, ownerID string) {
	var limitErr *ratelimit.LimitExceededError
	if errors.As(err, &limitErr) {
		w.Header().Set("Retry-After", strconv.Itoa(int(limitErr.RetryAfter.Seconds())))
		api.HandleError(w, api.ErrTooManyRequests)
		return
	}
	slog.Error("rename operation failed", "error", err, "owner", ownerID)
	api.HandleError(w, api.ErrInternalServer)
}
