package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orbnet/internal/core/domain"
)

func TestFetch_BuildsCursorQuery(t *testing.T) {
	epoch := time.Date(2025, 6, 1, 12, 0, 0, 500, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/sessions/session_1/signals", r.URL.Path)
		assert.Equal(t, "Bearer token-a", r.Header.Get("Authorization"))
		assert.Equal(t, epoch.Format(time.RFC3339Nano), r.URL.Query().Get("since"))
		assert.Equal(t, "7", r.URL.Query().Get("after_id"))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"signals": []*domain.Signal{
				{ID: 8, Session: "session_1", Role: domain.RoleHost, Kind: domain.KindOffer, Payload: json.RawMessage(`{"type":"offer","sdp":"v=0"}`), CreatedAt: epoch.Add(time.Second)},
				{ID: 9, Session: "session_1", Role: domain.RoleHost, Kind: domain.KindCandidate, Payload: json.RawMessage(`{"candidate":"c1"}`), CreatedAt: epoch.Add(2 * time.Second)},
			},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "token-a")
	signals, err := client.Fetch(context.Background(), "session_1", domain.Cursor{CreatedAt: epoch, ID: 7})
	require.NoError(t, err)
	require.Len(t, signals, 2)
	assert.Equal(t, domain.SignalID(8), signals[0].ID)
	assert.Equal(t, domain.KindCandidate, signals[1].Kind)
}

func TestFetch_ZeroCursorSendsNoParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.False(t, r.URL.Query().Has("since"))
		assert.False(t, r.URL.Query().Has("after_id"))
		json.NewEncoder(w).Encode(map[string]interface{}{"signals": []*domain.Signal{}})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "")
	signals, err := client.Fetch(context.Background(), "session_1", domain.Cursor{})
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestPublish_PostsSignal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/sessions/session_1/signals", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req publishRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, domain.RoleViewer, req.Role)
		assert.Equal(t, domain.KindAnswer, req.Kind)
		assert.JSONEq(t, `{"type":"answer","sdp":"v=0"}`, string(req.Payload))

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"signal": &domain.Signal{
				ID:        3,
				Session:   "session_1",
				Role:      req.Role,
				Kind:      req.Kind,
				Payload:   req.Payload,
				CreatedAt: time.Now(),
			},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "token-a")
	sig, err := client.Publish(context.Background(), "session_1", domain.RoleViewer, domain.KindAnswer, json.RawMessage(`{"type":"answer","sdp":"v=0"}`))
	require.NoError(t, err)
	assert.Equal(t, domain.SignalID(3), sig.ID)
	assert.False(t, sig.CreatedAt.IsZero())
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   error
	}{
		{"not found", http.StatusNotFound, domain.ErrSessionNotFound},
		{"bad request", http.StatusBadRequest, domain.ErrMalformedSignal},
		{"store down", http.StatusServiceUnavailable, domain.ErrStoreUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tc.status)
			}))
			defer srv.Close()

			client := NewClient(srv.URL, "")
			_, err := client.Fetch(context.Background(), "session_1", domain.Cursor{})
			assert.ErrorIs(t, err, tc.want)

			_, err = client.Publish(context.Background(), "session_1", domain.RoleHost, domain.KindOffer, json.RawMessage(`{}`))
			assert.ErrorIs(t, err, tc.want)
		})
	}
}
