package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/vantage-tms/vantage-tms/internal/authz"
	"github.com/vantage-tms/vantage-tms/internal/platform/httpx"
	"github.com/vantage-tms/vantage-tms/internal/shared"
)

// Handler exposes linkage operations over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	authz     authz.Middleware
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw authz.Middleware) *Handler {
	return &Handler{logger: logger, service: service, authz: mw, validator: validator.New()}
}

// MountRoutes registers transport linkage routes. Reads are gated on the
// view capability here; connect and disconnect carry their own edit gate
// inside the service.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.Require(authz.SectionTransports, authz.PermView))
		r.Get("/", h.list)
		r.Get("/{transportID}/linkage", h.showLinkage)
	})
	r.Post("/{transportID}/connect", h.connect)
	r.Post("/{transportID}/disconnect", h.disconnect)
}

type listResponse struct {
	Transports []Transport       `json:"transports"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, perPage := shared.PageFromQuery(r.URL.Query())
	transports, pagination, err := h.service.List(r.Context(), page, perPage)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if transports == nil {
		transports = []Transport{}
	}
	httpx.JSON(w, http.StatusOK, listResponse{Transports: transports, Pagination: pagination})
}

func (h *Handler) showLinkage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.transportID(w, r)
	if !ok {
		return
	}
	view, err := h.service.LinkageView(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

type connectRequest struct {
	TargetID int64 `json:"target_id" validate:"required,gt=0"`
}

func (h *Handler) connect(w http.ResponseWriter, r *http.Request) {
	sourceID, ok := h.transportID(w, r)
	if !ok {
		return
	}
	actorID := shared.PrincipalFromContext(r.Context())

	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Body", "expected JSON connect request")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	if err := h.service.Connect(r.Context(), actorID, sourceID, req.TargetID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "connected"})
}

func (h *Handler) disconnect(w http.ResponseWriter, r *http.Request) {
	id, ok := h.transportID(w, r)
	if !ok {
		return
	}
	actorID := shared.PrincipalFromContext(r.Context())

	if err := h.service.Disconnect(r.Context(), actorID, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "disconnected"})
}

func (h *Handler) transportID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "transportID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "transport id must be a positive integer")
		return 0, false
	}
	return id, true
}
