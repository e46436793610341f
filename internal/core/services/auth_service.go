package services

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"orbnet/internal/core/domain"
	"orbnet/internal/core/ports"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrUnauthorized = errors.New("unauthorized")
)

// Claims is the JWT payload: participant identity plus the registered
// set. The identity provider stays a black box; the relay only signs
// and validates what it was handed.
type Claims struct {
	ParticipantID domain.ParticipantID `json:"participant_id"`
	Username      string               `json:"username"`
	Image         string               `json:"image,omitempty"`
	jwt.RegisteredClaims
}

type authService struct {
	secret   []byte
	tokenTTL time.Duration
}

func NewAuthService(secret string, tokenTTL time.Duration) ports.AuthService {
	return &authService{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
	}
}

func (s *authService) IssueToken(ctx context.Context, p domain.Participant) (string, error) {
	now := time.Now()
	claims := &Claims{
		ParticipantID: p.ID,
		Username:      p.Username,
		Image:         p.Image,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(p.ID),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *authService) ValidateToken(ctx context.Context, tokenString string) (*domain.Participant, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.ParticipantID == "" {
		return nil, ErrInvalidToken
	}

	return &domain.Participant{
		ID:       claims.ParticipantID,
		Username: claims.Username,
		Image:    claims.Image,
	}, nil
}

type participantContextKey struct{}

// ContextWithParticipant stores the authenticated participant for
// downstream handlers.
func ContextWithParticipant(ctx context.Context, p *domain.Participant) context.Context {
	return context.WithValue(ctx, participantContextKey{}, p)
}

// ParticipantFromContext returns the authenticated participant, or
// ErrUnauthorized when the request never passed the auth middleware.
func ParticipantFromContext(ctx context.Context) (*domain.Participant, error) {
	p, ok := ctx.Value(participantContextKey{}).(*domain.Participant)
	if !ok || p == nil {
		return nil, ErrUnauthorized
	}
	return p, nil
}
