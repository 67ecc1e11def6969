package usage

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/gooddeeds/gooddeeds-api/internal/domain/plan"
	"github.com/gooddeeds/gooddeeds-api/internal/middleware"
	"github.com/gooddeeds/gooddeeds-api/internal/pkg/response"
)

const (
	maxFrameSize = 4096
	readWait     = 120 * time.Second
	writeWait    = 10 * time.Second
)

// streamResult is the per-event answer sent back to the reporter. Denials
// carry a code so the client can prompt for a top-up or plan switch.
type streamResult struct {
	Success bool    `json:"success"`
	Code    string  `json:"code,omitempty"`
	Record  *Record `json:"record,omitempty"`
}

// StreamHandler ingests usage events from the connectivity reporter over a
// websocket, one consume per frame
type StreamHandler struct {
	svc      *Service
	upgrader websocket.Upgrader
}

func NewStreamHandler(svc *Service, allowedOrigins []string) *StreamHandler {
	return &StreamHandler{
		svc: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")

				// Allow all in development
				if len(allowedOrigins) == 0 {
					return true
				}

				for _, allowed := range allowedOrigins {
					if origin == allowed {
						return true
					}
				}

				log.Warn().Str("origin", origin).Msg("usage stream origin rejected")
				return false
			},
		},
	}
}

// Serve handles WS /usage/stream
func (h *StreamHandler) Serve(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "Authentication required")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("usage stream upgrade failed")
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxFrameSize)

	for {
		conn.SetReadDeadline(time.Now().Add(readWait))

		var event Event
		if err := conn.ReadJSON(&event); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Str("user_id", userID.String()).Msg("usage stream read error")
			}
			return
		}

		result := h.consume(r, userID, event)

		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(result); err != nil {
			log.Error().Err(err).Str("user_id", userID.String()).Msg("usage stream write error")
			return
		}
	}
}

func (h *StreamHandler) consume(r *http.Request, userID uuid.UUID, event Event) streamResult {
	record, err := h.svc.Consume(r.Context(), userID, event.AmountMB, event.Activity)
	if err == nil {
		return streamResult{Success: true, Record: record}
	}

	switch {
	case errors.Is(err, ErrInvalidUsage):
		return streamResult{Code: "INVALID_USAGE"}
	case errors.Is(err, ErrUsageDenied):
		return streamResult{Code: "USAGE_DENIED"}
	case errors.Is(err, ErrAllowanceExhausted):
		return streamResult{Code: "ALLOWANCE_EXHAUSTED"}
	case errors.Is(err, plan.ErrUserPlanNotFound):
		return streamResult{Code: "PLAN_NOT_FOUND"}
	default:
		return streamResult{Code: "INTERNAL_ERROR"}
	}
}
