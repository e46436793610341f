package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"orbnet/internal/core/domain"
	"orbnet/internal/core/ports"
	apperrors "orbnet/pkg/errors"
	"orbnet/pkg/utils"
	"orbnet/pkg/validation"
)

// AuthHandler mints participant tokens. There is no account store:
// identity is whatever the client announces, the token just makes it
// tamper-proof for the rest of the API.
type AuthHandler struct {
	authService ports.AuthService
	tokenTTL    time.Duration
}

func NewAuthHandler(authService ports.AuthService, tokenTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		tokenTTL:    tokenTTL,
	}
}

func (h *AuthHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1/auth")
	{
		api.POST("/token", h.IssueToken)
	}
}

type tokenRequest struct {
	ID       string `json:"id" binding:"max=100"`
	Username string `json:"username" binding:"required,min=1,max=50"`
	Image    string `json:"image" binding:"max=500"`
}

// IssueToken returns a signed token for the announced identity. An
// omitted id gets a freshly generated one.
func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError("invalid request format"))
		return
	}

	req.Username = utils.SanitizeString(strings.TrimSpace(req.Username))
	if err := validation.ValidateDisplayName(req.Username); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}

	if req.ID == "" {
		req.ID = utils.GenerateParticipantID()
	} else if err := validation.ValidateParticipantID(req.ID); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}

	participant := domain.Participant{
		ID:       domain.ParticipantID(req.ID),
		Username: req.Username,
		Image:    req.Image,
	}

	token, err := h.authService.IssueToken(c.Request.Context(), participant)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"token":       token,
		"participant": participant,
		"expires_in":  int(h.tokenTTL / time.Second),
	})
}
