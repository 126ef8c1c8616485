package authz

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/vantage-tms/vantage-tms/internal/platform/httpx"
	"github.com/vantage-tms/vantage-tms/internal/shared"
)

// Handler exposes permission management over HTTP.
type Handler struct {
	logger    *slog.Logger
	resolver  *Resolver
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, resolver *Resolver) *Handler {
	return &Handler{logger: logger, resolver: resolver, validator: validator.New()}
}

// MountRoutes registers permission routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/me", h.showOwnPermissions)
	r.Put("/{principalID}/permissions", h.updatePermission)
}

func (h *Handler) showOwnPermissions(w http.ResponseWriter, r *http.Request) {
	eff, err := h.resolver.EffectiveFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, eff)
}

type updatePermissionRequest struct {
	Section string `json:"section" validate:"required"`
	Key     string `json:"key" validate:"required"`
	Value   bool   `json:"value"`
}

func (h *Handler) updatePermission(w http.ResponseWriter, r *http.Request) {
	actorID := shared.PrincipalFromContext(r.Context())
	if actorID == "" {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}

	var req updatePermissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Body", "expected JSON permission update")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	targetID := chi.URLParam(r, "principalID")
	if err := h.resolver.UpdatePermission(r.Context(), actorID, targetID, req.Section, req.Key, req.Value); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "updated"})
}
