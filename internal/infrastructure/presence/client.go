package presence

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"orbnet/internal/core/domain"
	"orbnet/pkg/retry"
)

const (
	dialTimeout  = 10 * time.Second
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	maxFrameSize = 4096
)

var ErrChannelClosed = errors.New("presence channel closed")

// Channel is the client half of the hub: it dials the relay's room
// endpoint and implements the presence channel port. Events() closes
// when the connection is gone; the caller decides whether to redial.
type Channel struct {
	baseURL string
	room    domain.RoomID
	token   string
	logger  *zap.SugaredLogger

	conn     *websocket.Conn
	incoming chan domain.Event
	outgoing chan []byte
	done     chan struct{}

	closeOnce sync.Once
}

func NewChannel(baseURL string, room domain.RoomID, token string, logger *zap.SugaredLogger) *Channel {
	return &Channel{
		baseURL:  baseURL,
		room:     room,
		token:    token,
		logger:   logger,
		incoming: make(chan domain.Event, 16),
		outgoing: make(chan []byte, 16),
		done:     make(chan struct{}),
	}
}

// Connect dials the relay and starts the read/write pumps. The dial
// retries with backoff; an established connection is never redialed
// from here.
func (c *Channel) Connect(ctx context.Context) error {
	endpoint, err := c.endpoint()
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, err := retry.RetryWithResult(ctx, retry.DefaultConfig(), func() (*websocket.Conn, error) {
		conn, _, err := dialer.DialContext(ctx, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", endpoint, err)
		}
		return conn, nil
	})
	if err != nil {
		return err
	}

	c.conn = conn
	c.logger.Infow("presence channel connected", "room", c.room)

	go c.readPump()
	go c.writePump()
	return nil
}

// The relay authenticates WebSocket upgrades by query parameter, not
// header, so browser clients can connect too.
func (c *Channel) endpoint() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid relay url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/rooms/" + string(c.room)
	q := u.Query()
	q.Set("token", c.token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Channel) Publish(ctx context.Context, ev domain.Event) error {
	data, err := ev.Encode()
	if err != nil {
		return err
	}

	select {
	case c.outgoing <- data:
		return nil
	case <-c.done:
		return ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Channel) Events() <-chan domain.Event {
	return c.incoming
}

func (c *Channel) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *Channel) readPump() {
	defer func() {
		c.conn.Close()
		close(c.incoming)
	}()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warnw("presence channel read failed", "room", c.room, "error", err)
			}
			return
		}

		ev, err := domain.DecodeEvent(data)
		if err != nil {
			c.logger.Warnw("dropping malformed presence frame", "room", c.room, "error", err)
			continue
		}

		select {
		case c.incoming <- ev:
		case <-c.done:
			return
		}
	}
}

func (c *Channel) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
