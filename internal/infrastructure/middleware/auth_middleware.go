package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"orbnet/internal/core/domain"
	"orbnet/internal/core/ports"
	"orbnet/internal/core/services"
)

const participantKey = "participant"

// AuthMiddleware validates the bearer token and stores the participant
// on the gin context and on the request context for code below the
// transport layer.
func AuthMiddleware(auth ports.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			c.Abort()
			return
		}

		participant, err := auth.ValidateToken(c.Request.Context(), parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			c.Abort()
			return
		}

		setParticipant(c, participant)
		c.Next()
	}
}

// WebSocketAuthMiddleware authenticates upgrade requests. Browser
// WebSocket clients cannot set an Authorization header, so the token
// also rides in the query string; a bearer header wins when both are
// present.
func WebSocketAuthMiddleware(auth ports.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var token string
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				token = parts[1]
			}
		}
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "token required"})
			c.Abort()
			return
		}

		participant, err := auth.ValidateToken(c.Request.Context(), token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			c.Abort()
			return
		}

		setParticipant(c, participant)
		c.Next()
	}
}

func setParticipant(c *gin.Context, p *domain.Participant) {
	c.Set(participantKey, p)
	c.Request = c.Request.WithContext(services.ContextWithParticipant(c.Request.Context(), p))
}

// Participant returns the authenticated participant stored by the auth
// middleware.
func Participant(c *gin.Context) (*domain.Participant, bool) {
	v, ok := c.Get(participantKey)
	if !ok {
		return nil, false
	}
	p, ok := v.(*domain.Participant)
	return p, ok && p != nil
}
