package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"orbnet/internal/core/domain"
)

const requestTimeout = 30 * time.Second

// Client speaks the relay's REST signal endpoints on behalf of one
// authenticated participant. It never retries on its own; the
// consumer's poll loop owns pacing and the negotiator forbids
// automatic resends.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

type publishRequest struct {
	Role    domain.SignalRole `json:"role"`
	Kind    domain.SignalKind `json:"kind"`
	Payload json.RawMessage   `json:"payload"`
}

type signalListResponse struct {
	Signals []*domain.Signal `json:"signals"`
}

type signalCreateResponse struct {
	Signal *domain.Signal `json:"signal"`
}

// Fetch returns the signals sorting strictly after the cursor, in
// (created_at, id) order. An unknown session yields an empty list, not
// an error.
func (c *Client) Fetch(ctx context.Context, session domain.SessionID, cursor domain.Cursor) ([]*domain.Signal, error) {
	q := url.Values{}
	if !cursor.CreatedAt.IsZero() {
		q.Set("since", cursor.CreatedAt.Format(time.RFC3339Nano))
	}
	if cursor.ID > 0 {
		q.Set("after_id", strconv.FormatInt(int64(cursor.ID), 10))
	}

	endpoint := fmt.Sprintf("%s/api/v1/sessions/%s/signals", c.baseURL, session)
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}

	var out signalListResponse
	if err := c.do(req, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out.Signals, nil
}

// Publish appends one signal to the session's stream. The relay
// assigns the id and created_at.
func (c *Client) Publish(ctx context.Context, session domain.SessionID, role domain.SignalRole, kind domain.SignalKind, payload json.RawMessage) (*domain.Signal, error) {
	body, err := json.Marshal(publishRequest{Role: role, Kind: kind, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("encode publish request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/v1/sessions/%s/signals", c.baseURL, session)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build publish request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var out signalCreateResponse
	if err := c.do(req, http.StatusCreated, &out); err != nil {
		return nil, err
	}
	if out.Signal == nil {
		return nil, fmt.Errorf("relay returned no signal")
	}
	return out.Signal, nil
}

func (c *Client) do(req *http.Request, wantStatus int, out interface{}) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("relay request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("relay response read: %w", err)
	}

	if resp.StatusCode != wantStatus {
		return c.statusError(resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("relay response decode: %w", err)
	}
	return nil
}

// statusError maps relay responses onto the domain sentinels so
// callers can errors.Is instead of matching status codes.
func (c *Client) statusError(status int, body []byte) error {
	detail := strings.TrimSpace(string(body))
	switch status {
	case http.StatusNotFound:
		return fmt.Errorf("relay: %w", domain.ErrSessionNotFound)
	case http.StatusBadRequest:
		return fmt.Errorf("relay rejected request (%s): %w", detail, domain.ErrMalformedSignal)
	case http.StatusServiceUnavailable:
		return fmt.Errorf("relay: %w", domain.ErrStoreUnavailable)
	default:
		return fmt.Errorf("relay returned %d: %s", status, detail)
	}
}
