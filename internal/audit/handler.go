package audit

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/medianamer-platform/medianamer/internal/api"
	"github.com/medianamer-platform/medianamer/internal/auth"
)

// Handler serves the owner-scoped audit log listing.
type Handler struct {
	repo *Repository
}

func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// List returns paginated audit logs for the authenticated user.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetClaims(r.Context())
	if claims == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	params := DefaultListParams()
	params.EventType = r.URL.Query().Get("event_type")
	params.Severity = r.URL.Query().Get("severity")
	if p := r.URL.Query().Get("page"); p != "" {
		if page, err := strconv.Atoi(p); err == nil && page > 0 {
			params.Page = page
		}
	}
	if ps := r.URL.Query().Get("page_size"); ps != "" {
		if pageSize, err := strconv.Atoi(ps); err == nil && pageSize > 0 && pageSize <= 100 {
			params.PageSize = pageSize
		}
	}

	logs, totalCount, err := h.repo.ListByOwner(r.Context(), claims.UserID, params)
	if err != nil {
		slog.Error("listing audit logs", "error", err, "owner", claims.UserID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONPaginated(w, http.StatusOK, logs, totalCount, params.Page, params.PageSize)
}
