package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"orbnet/internal/core/domain"
	"orbnet/internal/core/ports"
	"orbnet/internal/core/services"
	"orbnet/internal/infrastructure/middleware"
	"orbnet/internal/infrastructure/repositories/memory"
)

type sessionEnvelope struct {
	Session *domain.LivestreamSession `json:"session"`
}

type sessionFixture struct {
	router *gin.Engine
	auth   ports.AuthService
}

func newSessionRouter(t *testing.T) *sessionFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	auth := services.NewAuthService("test-secret", time.Hour)
	livestreams := services.NewLivestreamService(
		memory.NewMemorySessionStore(),
		services.NewMetricsService(),
	)

	router := gin.New()
	router.Use(middleware.ErrorHandlerMiddleware(zaptest.NewLogger(t).Sugar()))

	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(auth))
	NewSessionHandler(livestreams).SetupRoutes(api)

	return &sessionFixture{router: router, auth: auth}
}

func (f *sessionFixture) token(t *testing.T, p domain.Participant) string {
	t.Helper()
	token, err := f.auth.IssueToken(context.Background(), p)
	require.NoError(t, err)
	return token
}

func (f *sessionFixture) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *sessionFixture) goLive(t *testing.T, token string) *domain.LivestreamSession {
	t.Helper()
	w := f.do(t, http.MethodPost, "/api/v1/sessions", token, `{"title":"morning orbs"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var env sessionEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.NotNil(t, env.Session)
	return env.Session
}

func TestGoLiveAndGet(t *testing.T) {
	f := newSessionRouter(t)
	host := domain.Participant{ID: "host_1", Username: "Hana"}
	token := f.token(t, host)

	session := f.goLive(t, token)
	assert.Equal(t, "morning orbs", session.Title)
	assert.Equal(t, domain.StatusLive, session.Status)
	assert.Equal(t, host.ID, session.Host.ID)

	w := f.do(t, http.MethodGet, "/api/v1/sessions/"+string(session.ID), token, "")
	require.Equal(t, http.StatusOK, w.Code)

	var env sessionEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, session.ID, env.Session.ID)
}

func TestJoinLeaveTracksViewers(t *testing.T) {
	f := newSessionRouter(t)
	token := f.token(t, domain.Participant{ID: "host_1", Username: "Hana"})
	session := f.goLive(t, token)

	base := "/api/v1/sessions/" + string(session.ID)

	w := f.do(t, http.MethodPost, base+"/join", token, "")
	require.Equal(t, http.StatusOK, w.Code)

	var env sessionEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, 1, env.Session.ViewerCount)
	assert.Equal(t, 1, env.Session.PeakViewers)

	w = f.do(t, http.MethodPost, base+"/leave", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, 0, env.Session.ViewerCount)
	assert.Equal(t, 1, env.Session.PeakViewers)
}

func TestLikeIncrements(t *testing.T) {
	f := newSessionRouter(t)
	token := f.token(t, domain.Participant{ID: "host_1", Username: "Hana"})
	session := f.goLive(t, token)

	base := "/api/v1/sessions/" + string(session.ID)
	for i := 0; i < 3; i++ {
		w := f.do(t, http.MethodPost, base+"/like", token, "")
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := f.do(t, http.MethodGet, base, token, "")
	var env sessionEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, 3, env.Session.TotalLikes)
}

func TestChatRoundTrip(t *testing.T) {
	f := newSessionRouter(t)
	token := f.token(t, domain.Participant{ID: "user_1", Username: "Kei"})
	session := f.goLive(t, token)

	base := "/api/v1/sessions/" + string(session.ID)

	w := f.do(t, http.MethodPost, base+"/messages", token, `{"body":"hello orbs"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(t, http.MethodGet, base+"/messages", token, "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Messages []*domain.ChatMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Messages, 1)
	assert.Equal(t, "hello orbs", body.Messages[0].Body)
	assert.Equal(t, domain.ParticipantID("user_1"), body.Messages[0].Author.ID)
}

func TestEndSessionHostOnly(t *testing.T) {
	f := newSessionRouter(t)
	hostToken := f.token(t, domain.Participant{ID: "host_1", Username: "Hana"})
	viewerToken := f.token(t, domain.Participant{ID: "user_2", Username: "Kei"})
	session := f.goLive(t, hostToken)

	endPath := fmt.Sprintf("/api/v1/sessions/%s/end", session.ID)

	w := f.do(t, http.MethodPost, endPath, viewerToken, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodPost, endPath, hostToken, "")
	require.Equal(t, http.StatusOK, w.Code)

	var env sessionEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, domain.StatusEnded, env.Session.Status)
	require.NotNil(t, env.Session.EndedAt)

	// Joining a finished session is gone, not not-found.
	w = f.do(t, http.MethodPost, "/api/v1/sessions/"+string(session.ID)+"/join", hostToken, "")
	assert.Equal(t, http.StatusGone, w.Code)
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	f := newSessionRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
