package plan

import (
	"errors"
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

type switchRequest struct {
	PlanType string `json:"plan_type" validate:"required,plan_type"`
}

func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.svc.ListPlans(r.Context())
	if err != nil {
		response.InternalError(w)
		return
	}
	response.OK(w, plans)
}

func (h *Handler) CurrentPlan(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	p, err := h.svc.GetUserPlan(r.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrUserPlanNotFound) {
			response.NotFound(w, "no plan found, initialize the account first")
			return
		}
		response.InternalError(w)
		return
	}
	response.OK(w, p)
}

func (h *Handler) Switch(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req switchRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if fieldErrors := validator.Validate(req); fieldErrors != nil {
		response.ValidationError(w, fieldErrors)
		return
	}

	p, err := h.svc.Switch(r.Context(), userID, PlanType(req.PlanType))
	if err != nil {
		switch {
		case errors.Is(err, ErrPlanSwitchDenied):
			response.Forbidden(w, "free plan is a one-time onboarding offer and is no longer available")
		case errors.Is(err, ErrPurchaseRequired):
			response.PaymentRequired(w, "a bundle purchase is required to switch to bundle mode")
		case errors.Is(err, ErrUserPlanNotFound):
			response.NotFound(w, "no plan found, initialize the account first")
		case errors.Is(err, ErrInvalidPlanType):
			response.BadRequest(w, "invalid plan type")
		default:
			response.InternalError(w)
		}
		return
	}

	response.OK(w, p)
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListPlans)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/me", h.CurrentPlan)
		r.Post("/switch", h.Switch)
	})
	return r
}
