package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"orbnet/internal/core/domain"
	"orbnet/internal/core/ports"
	apperrors "orbnet/pkg/errors"
	"orbnet/pkg/utils"
	"orbnet/pkg/validation"
)

// SignalHandler serves the session signal stream: host and viewer each
// append their negotiation messages and poll for the other side's.
type SignalHandler struct {
	signals  ports.SignalStore
	sessions ports.SessionStore
	metrics  ports.MetricsRecorder
}

func NewSignalHandler(signals ports.SignalStore, sessions ports.SessionStore, metrics ports.MetricsRecorder) *SignalHandler {
	return &SignalHandler{
		signals:  signals,
		sessions: sessions,
		metrics:  metrics,
	}
}

func (h *SignalHandler) SetupRoutes(api *gin.RouterGroup) {
	api.GET("/sessions/:id/signals", h.ListSignals)
	api.POST("/sessions/:id/signals", h.CreateSignal)
}

type createSignalRequest struct {
	Role    string          `json:"role" binding:"required"`
	Kind    string          `json:"kind" binding:"required"`
	Payload json.RawMessage `json:"payload" binding:"required"`
}

// ListSignals returns all retained signals sorting strictly after the
// (since, after_id) cursor, oldest first. An absent cursor means the
// start of the stream.
func (h *SignalHandler) ListSignals(c *gin.Context) {
	sessionID := c.Param("id")
	if err := validation.ValidateSessionID(sessionID); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}

	cursor, err := parseCursor(c)
	if err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}

	session := domain.SessionID(sessionID)
	signals, err := h.signals.ListSince(c.Request.Context(), session, cursor)
	if err != nil {
		c.Error(err)
		return
	}
	if signals == nil {
		signals = []*domain.Signal{}
	}

	h.metrics.RecordFetch(session, len(signals))

	c.JSON(http.StatusOK, gin.H{"signals": signals})
}

// CreateSignal appends one signal to the session's stream. The relay
// assigns the id and created_at; clients must not supply them.
func (h *SignalHandler) CreateSignal(c *gin.Context) {
	sessionID := c.Param("id")
	if err := validation.ValidateSessionID(sessionID); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}

	var req createSignalRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError("invalid request format"))
		return
	}

	if err := validation.ValidateSignalRole(req.Role); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}
	if err := validation.ValidateSignalKind(req.Kind); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}
	if err := validation.ValidateSignalPayload(req.Payload); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}

	session := domain.SessionID(sessionID)

	// Signals for a finished or unknown session are refused rather
	// than silently retained past their usefulness.
	live, err := h.sessions.GetByID(c.Request.Context(), session)
	if err != nil {
		c.Error(err)
		return
	}
	if live.Status == domain.StatusEnded {
		c.Error(domain.ErrSessionEnded)
		return
	}

	sig, err := h.signals.Append(
		c.Request.Context(),
		session,
		domain.SignalRole(req.Role),
		domain.SignalKind(req.Kind),
		req.Payload,
	)
	if err != nil {
		c.Error(err)
		return
	}

	h.metrics.RecordSignal(session, sig.Kind)

	c.JSON(http.StatusCreated, gin.H{"signal": sig})
}

// parseCursor reads the since/after_id query pair. Both absent yields
// the zero cursor, which precedes every signal.
func parseCursor(c *gin.Context) (domain.Cursor, error) {
	var cursor domain.Cursor

	if since := c.Query("since"); since != "" {
		ts, err := utils.ParseTimestamp(since)
		if err != nil {
			return domain.Cursor{}, err
		}
		cursor.CreatedAt = ts
	}

	if afterID := c.Query("after_id"); afterID != "" {
		id, err := strconv.ParseInt(afterID, 10, 64)
		if err != nil {
			return domain.Cursor{}, err
		}
		cursor.ID = domain.SignalID(id)
	}

	return cursor, nil
}
