package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"orbnet/internal/core/domain"
	"orbnet/internal/core/ports"
	"orbnet/internal/infrastructure/middleware"
	apperrors "orbnet/pkg/errors"
	"orbnet/pkg/validation"
)

// SessionHandler serves livestream lifecycle and chat.
type SessionHandler struct {
	livestreams ports.LivestreamService
}

func NewSessionHandler(livestreams ports.LivestreamService) *SessionHandler {
	return &SessionHandler{
		livestreams: livestreams,
	}
}

func (h *SessionHandler) SetupRoutes(api *gin.RouterGroup) {
	api.POST("/sessions", h.GoLive)
	api.GET("/sessions", h.ListSessions)
	api.GET("/sessions/:id", h.GetSession)
	api.POST("/sessions/:id/end", h.EndSession)
	api.POST("/sessions/:id/join", h.JoinSession)
	api.POST("/sessions/:id/leave", h.LeaveSession)
	api.POST("/sessions/:id/like", h.LikeSession)
	api.GET("/sessions/:id/messages", h.ListMessages)
	api.POST("/sessions/:id/messages", h.PostMessage)
}

type goLiveRequest struct {
	Title string `json:"title" binding:"required,max=200"`
}

type postMessageRequest struct {
	Body string `json:"body" binding:"required"`
}

// GoLive starts a broadcast hosted by the authenticated participant.
func (h *SessionHandler) GoLive(c *gin.Context) {
	host, ok := middleware.Participant(c)
	if !ok {
		c.Error(apperrors.NewUnauthorizedError("no authenticated participant"))
		return
	}

	var req goLiveRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError("invalid request format"))
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	if err := validation.ValidateSessionTitle(req.Title); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}

	session, err := h.livestreams.GoLive(c.Request.Context(), req.Title, *host)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"session": session})
}

func (h *SessionHandler) ListSessions(c *gin.Context) {
	sessions, err := h.livestreams.ListLive(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	if sessions == nil {
		sessions = []*domain.LivestreamSession{}
	}

	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}

	session, err := h.livestreams.Get(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"session": session})
}

// EndSession finishes a broadcast. Only the host may end its own
// session.
func (h *SessionHandler) EndSession(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}

	caller, ok := middleware.Participant(c)
	if !ok {
		c.Error(apperrors.NewUnauthorizedError("no authenticated participant"))
		return
	}

	session, err := h.livestreams.Get(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	if session.Host.ID != caller.ID {
		c.Error(apperrors.NewForbiddenError("only the host may end the session"))
		return
	}

	ended, err := h.livestreams.End(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"session": ended})
}

func (h *SessionHandler) JoinSession(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}

	session, err := h.livestreams.Join(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"session": session})
}

func (h *SessionHandler) LeaveSession(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}

	session, err := h.livestreams.Leave(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"session": session})
}

func (h *SessionHandler) LikeSession(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}

	session, err := h.livestreams.Like(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"session": session})
}

func (h *SessionHandler) ListMessages(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}

	messages, err := h.livestreams.ListMessages(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	if messages == nil {
		messages = []*domain.ChatMessage{}
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (h *SessionHandler) PostMessage(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}

	author, ok := middleware.Participant(c)
	if !ok {
		c.Error(apperrors.NewUnauthorizedError("no authenticated participant"))
		return
	}

	var req postMessageRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError("invalid request format"))
		return
	}

	msg, err := h.livestreams.PostMessage(c.Request.Context(), id, *author, req.Body)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

func (h *SessionHandler) sessionID(c *gin.Context) (domain.SessionID, bool) {
	id := c.Param("id")
	if err := validation.ValidateSessionID(id); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return "", false
	}
	return domain.SessionID(id), true
}
