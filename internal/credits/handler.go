package credits

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/medianamer-platform/medianamer/internal/api"
	"github.com/medianamer-platform/medianamer/internal/auth"
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

// Status serves GET /credits.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetClaims(r.Context())
	if claims == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	status, err := h.svc.Status(r.Context(), claims.UserID)
	if err != nil {
		slog.Error("fetching credit status", "error", err, "owner", claims.UserID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, status)
}

// Grant serves POST /credits/grant, the idempotent free-credit grant.
func (h *Handler) Grant(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetClaims(r.Context())
	if claims == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	granted, err := h.svc.InitializeFreeCredits(r.Context(), claims.UserID)
	if err != nil {
		slog.Error("granting free credits", "error", err, "owner", claims.UserID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, map[string]bool{"granted": granted})
}

type resetRequest struct {
	OwnerID    string `json:"owner_id" validate:"required"`
	NewBalance int    `json:"new_balance" validate:"gte=0"`
}

// Reset serves POST /credits/reset. Admin-only; enforced by middleware.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	entry, err := h.svc.Reset(r.Context(), req.OwnerID, req.NewBalance)
	if err != nil {
		if errors.Is(err, ErrInsufficientBalance) {
			api.HandleError(w, api.ErrPaymentRequired)
			return
		}
		slog.Error("resetting balance", "error", err, "owner", req.OwnerID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, entry)
}
