package session

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/vantage-tms/vantage-tms/internal/platform/httpx"
	"github.com/vantage-tms/vantage-tms/internal/shared"
)

// Handler exposes login/logout over HTTP. Credentials travel as JSON
// bodies; the issued token is set as an HttpOnly cookie.
type Handler struct {
	logger     *slog.Logger
	service    *Service
	validator  *validator.Validate
	csrf       *shared.CSRFManager
	cookieName string
	secure     bool
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, csrf *shared.CSRFManager, cookieName string, secure bool) *Handler {
	return &Handler{
		logger:     logger,
		service:    service,
		validator:  validator.New(),
		csrf:       csrf,
		cookieName: cookieName,
		secure:     secure,
	}
}

// MountRoutes registers auth routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type loginResponse struct {
	PrincipalID string    `json:"principal_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Body", "expected JSON credentials")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	sess, err := h.service.Login(r.Context(), req.Email, req.Password, r.RemoteAddr, r.UserAgent())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteStrictMode,
	})
	if h.csrf != nil {
		w.Header().Set(shared.CSRFHeader, h.csrf.Token(sess.Token))
	}
	httpx.JSON(w, http.StatusOK, loginResponse{PrincipalID: sess.PrincipalID, ExpiresAt: sess.ExpiresAt})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := shared.TokenFromContext(r.Context())
	if token == "" {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	if err := h.service.Logout(r.Context(), token); err != nil {
		httpx.RespondError(w, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteStrictMode,
	})
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}
