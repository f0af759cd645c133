// Package signaling is the client end of the conference signaling socket:
// correlated request/response calls plus a stream of pushed events.
package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Conference/internal/core"
	"github.com/dkeye/Conference/internal/protocol"
)

const (
	DefaultRequestTimeout = 10 * time.Second

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
)

type Option func(*Channel)

func WithRequestTimeout(d time.Duration) Option {
	return func(c *Channel) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithDialer(d *websocket.Dialer) Option {
	return func(c *Channel) { c.dialer = d }
}

func WithHeader(h http.Header) Option {
	return func(c *Channel) { c.header = h }
}

// Channel is safe for concurrent use. Requests issued before Connect or after the
// socket drops fail with core.ErrChannelUnavailable; nothing is queued.
type Channel struct {
	url     string
	dialer  *websocket.Dialer
	header  http.Header
	timeout time.Duration
	logger  zerolog.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	nextID   uint64
	pending  map[uint64]chan protocol.Message
	outgoing chan []byte
	done     chan struct{}
	handler  func(protocol.Event)
}

var _ core.Signaler = (*Channel)(nil)

func NewChannel(url string, opts ...Option) *Channel {
	c := &Channel{
		url:     url,
		dialer:  websocket.DefaultDialer,
		timeout: DefaultRequestTimeout,
		logger:  log.With().Str("module", "signaling").Logger(),
		pending: make(map[uint64]chan protocol.Message),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe sets the single dispatcher for pushed events.
// It runs on the read goroutine, so events are seen in arrival order.
func (c *Channel) Subscribe(handler func(protocol.Event)) {
	c.mu.Lock()
	c.handler = handler
	c.mu.Unlock()
}

func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return errors.New("signaling channel already connected")
	}
	c.mu.Unlock()

	conn, _, err := c.dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		return core.NewOpError("connect", fmt.Errorf("%w: %v", core.ErrChannelUnavailable, err), c.url)
	}
	conn.SetReadLimit(maxMessageSize)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	c.mu.Lock()
	c.conn = conn
	c.outgoing = make(chan []byte, 32)
	c.done = make(chan struct{})
	out, done := c.outgoing, c.done
	c.mu.Unlock()

	go c.readPump(conn, done)
	go c.writePump(conn, out, done)
	c.logger.Info().Str("url", c.url).Msg("connected")
	return nil
}

// Done is closed once the connection is gone.
func (c *Channel) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return c.done
}

func (c *Channel) Request(ctx context.Context, method protocol.Method, payload, out any) error {
	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return core.NewOpError(string(method), core.ErrChannelUnavailable, "")
	}
	c.nextID++
	id := c.nextID
	replies := make(chan protocol.Message, 1)
	c.pending[id] = replies
	outgoing, done := c.outgoing, c.done
	c.mu.Unlock()
	defer c.forget(id)

	msg, err := protocol.NewRequest(id, method, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case outgoing <- data:
	case <-done:
		return core.NewOpError(string(method), core.ErrChannelUnavailable, "")
	case <-timer.C:
		return core.NewOpError(string(method), core.ErrChannelTimeout, c.timeout.String())
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case resp, ok := <-replies:
		if !ok {
			return core.NewOpError(string(method), core.ErrChannelUnavailable, "connection lost")
		}
		if !resp.OK {
			return &core.RemoteError{Method: string(method), Reason: resp.Error}
		}
		if err := resp.Decode(out); err != nil {
			return core.NewOpError(string(method), err, "decode response")
		}
		return nil
	case <-timer.C:
		c.logger.Warn().Str("method", string(method)).Uint64("id", id).Msg("request timed out")
		return core.NewOpError(string(method), core.ErrChannelTimeout, c.timeout.String())
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Channel) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Channel) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	return conn.Close()
}

func (c *Channel) readPump(conn *websocket.Conn, done chan struct{}) {
	defer c.teardown(conn, done)

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug().Err(err).Msg("read stopped")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn().Err(err).Msg("bad frame")
			continue
		}
		switch {
		case msg.Response:
			c.mu.Lock()
			replies, ok := c.pending[msg.ID]
			delete(c.pending, msg.ID)
			c.mu.Unlock()
			if !ok {
				c.logger.Debug().Uint64("id", msg.ID).Msg("late response dropped")
				continue
			}
			replies <- msg
		case msg.Notification:
			ev, err := protocol.DecodeEvent(msg.Method, msg.Data)
			if err != nil {
				c.logger.Warn().Err(err).Msg("bad notification")
				continue
			}
			c.mu.Lock()
			handler := c.handler
			c.mu.Unlock()
			if handler != nil {
				handler(ev)
			}
		default:
			c.logger.Warn().Str("method", msg.Method).Msg("unexpected frame")
		}
	}
}

func (c *Channel) writePump(conn *websocket.Conn, outgoing <-chan []byte, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data := <-outgoing:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug().Err(err).Msg("write stopped")
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				return
			}
		case <-done:
			return
		}
	}
}

// teardown fails every pending request and marks the channel unavailable.
func (c *Channel) teardown(conn *websocket.Conn, done chan struct{}) {
	_ = conn.Close()
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	pending := c.pending
	c.pending = make(map[uint64]chan protocol.Message)
	c.mu.Unlock()

	for _, replies := range pending {
		close(replies)
	}
	close(done)
	c.logger.Info().Int("failed_requests", len(pending)).Msg("disconnected")
}
