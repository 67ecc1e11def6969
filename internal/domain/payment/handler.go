package payment

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/gooddeeds/gooddeeds-api/internal/domain/plan"
	"github.com/gooddeeds/gooddeeds-api/internal/domain/wallet"
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

func (h *Handler) Initialize(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}
	email := middleware.GetEmail(r.Context())

	var req InitializeRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if fieldErrors := validator.Validate(req); fieldErrors != nil {
		response.ValidationError(w, fieldErrors)
		return
	}

	checkout, err := h.svc.Initialize(r.Context(), userID, email, req)
	if err != nil {
		writePaymentError(w, err)
		return
	}

	response.OK(w, checkout)
}

func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req ConfirmRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if fieldErrors := validator.Validate(req); fieldErrors != nil {
		response.ValidationError(w, fieldErrors)
		return
	}

	outcome, err := h.svc.Confirm(r.Context(), userID, req)
	if err != nil {
		writePaymentError(w, err)
		return
	}

	response.OK(w, outcome)
}

func writePaymentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrPaymentNotVerified):
		response.PaymentRequired(w, "payment could not be verified")
	case errors.Is(err, ErrPlanRequired):
		response.BadRequest(w, "bundle purchase requires a valid plan_id")
	case errors.Is(err, ErrAmountMismatch):
		response.BadRequest(w, "amount does not match the plan price")
	case errors.Is(err, ErrInvalidPurpose):
		response.BadRequest(w, "unknown payment purpose")
	case errors.Is(err, plan.ErrPlanNotFound):
		response.NotFound(w, "data plan not found")
	case errors.Is(err, wallet.ErrInsufficientFunds):
		response.PaymentRequired(w, "insufficient wallet balance for purchase")
	case errors.Is(err, wallet.ErrReferenceConflict):
		response.Conflict(w, "payment reference already used with different details")
	default:
		response.InternalError(w)
	}
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Post("/initialize", h.Initialize)
	r.Post("/confirm", h.Confirm)
	return r
}
