package usage

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/gooddeeds/gooddeeds-api/internal/domain/plan"
	"github.com/gooddeeds/gooddeeds-api/internal/middleware"
	"github.com/gooddeeds/gooddeeds-api/internal/pkg/response"
	"github.com/gooddeeds/gooddeeds-api/internal/pkg/validator"
)

type Handler struct {
	svc    *Service
	stream *StreamHandler
}

func NewHandler(svc *Service, stream *StreamHandler) *Handler {
	return &Handler{svc: svc, stream: stream}
}

func (h *Handler) Consume(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req Event
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if fieldErrors := validator.Validate(req); fieldErrors != nil {
		response.ValidationError(w, fieldErrors)
		return
	}

	record, err := h.svc.Consume(r.Context(), userID, req.AmountMB, req.Activity)
	if err != nil {
		writeConsumeError(w, err)
		return
	}

	response.Created(w, record)
}

func writeConsumeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidUsage):
		response.BadRequest(w, "usage amount must be greater than zero")
	case errors.Is(err, ErrUsageDenied):
		response.PaymentRequired(w, "insufficient wallet balance for pay-as-you-go usage")
	case errors.Is(err, ErrAllowanceExhausted):
		response.Conflict(w, "data allowance exhausted, purchase a bundle or switch plans")
	case errors.Is(err, plan.ErrUserPlanNotFound):
		response.NotFound(w, "no plan found, initialize the account first")
	default:
		response.InternalError(w)
	}
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	records, err := h.svc.History(r.Context(), userID, limit, offset)
	if err != nil {
		response.InternalError(w)
		return
	}

	response.OK(w, records)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	stats, err := h.svc.Stats(r.Context(), userID)
	if err != nil {
		response.InternalError(w)
		return
	}

	response.OK(w, stats)
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Post("/consume", h.Consume)
	r.Get("/history", h.History)
	r.Get("/stats", h.Stats)
	if h.stream != nil {
		r.Get("/stream", h.stream.Serve)
	}
	return r
}
