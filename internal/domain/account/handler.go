package account

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/gooddeeds/gooddeeds-api/internal/middleware"
	"github.com/gooddeeds/gooddeeds-api/internal/pkg/response"
	"github.com/gooddeeds/gooddeeds-api/internal/pkg/validator"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Bootstrap(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}
	email := middleware.GetEmail(r.Context())

	// The body is optional; an empty bootstrap is the common case
	var req BootstrapRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if fieldErrors := validator.Validate(req); fieldErrors != nil {
		response.ValidationError(w, fieldErrors)
		return
	}

	profile, err := h.svc.EnsureInitialized(r.Context(), userID, email, req)
	if err != nil {
		if errors.Is(err, ErrInvalidReferralCode) {
			response.BadRequest(w, "referral code not recognized")
			return
		}
		response.InternalError(w)
		return
	}

	response.OK(w, profile)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	profile, err := h.svc.Profile(r.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			response.NotFound(w, "profile not found, bootstrap the account first")
			return
		}
		response.InternalError(w)
		return
	}

	response.OK(w, profile)
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Post("/bootstrap", h.Bootstrap)
	r.Get("/me", h.Me)
	return r
}
