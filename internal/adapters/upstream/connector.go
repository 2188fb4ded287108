// Package upstream dials the live gateway over websocket and turns its
// frames into session events.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/okian/livebid/internal/domain/session"
	"github.com/okian/livebid/internal/domain/types"
	"github.com/okian/livebid/pkg/logger"
	"github.com/okian/livebid/pkg/metrics"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultTripAfter        = 5
	defaultOpenTimeout      = 30 * time.Second
	maxFrameSize            = 1 << 20
	maxErrorBody            = 1024
)

// Connector implements session.Connector against a websocket gateway.
type Connector struct {
	base      *url.URL
	dialer    *websocket.Dialer
	cb        *gobreaker.CircuitBreaker[*websocket.Conn]
	tripAfter uint32
	openFor   time.Duration
	log       logger.Logger
}

// New creates a connector for the gateway at rawURL.
func New(rawURL string, opts ...Option) (*Connector, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("%w: scheme %q", ErrInvalidURL, u.Scheme)
	}

	c := &Connector{
		base:      u,
		dialer:    &websocket.Dialer{HandshakeTimeout: defaultHandshakeTimeout, Proxy: http.ProxyFromEnvironment},
		tripAfter: defaultTripAfter,
		openFor:   defaultOpenTimeout,
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.cb = gobreaker.NewCircuitBreaker[*websocket.Conn](gobreaker.Settings{
		Name:        "upstream",
		MaxRequests: 1,
		Timeout:     c.openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= c.tripAfter
		},
		// Rejections for a specific room are not gateway health problems.
		IsSuccessful: func(err error) bool {
			var he *HandshakeError
			if errors.As(err, &he) {
				return he.Status < http.StatusInternalServerError
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn(context.Background(), "circuit breaker state change",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()))
		},
	})
	return c, nil
}

// Connect dials the gateway for broadcasterID. On success a reader goroutine
// delivers frames to h until the connection ends.
func (c *Connector) Connect(ctx context.Context, broadcasterID string, creds session.Credentials, h session.Handler) (session.Upstream, error) {
	ws, err := c.cb.Execute(func() (*websocket.Conn, error) {
		return c.dial(ctx, broadcasterID, creds)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.RecordErrorByComponent("upstream", "circuit_open")
			return nil, ErrCircuitOpen
		}
		return nil, err
	}

	ws.SetReadLimit(maxFrameSize)
	conn := &Conn{ws: ws, broadcaster: broadcasterID, log: c.log, done: make(chan struct{})}
	go conn.readLoop(h)
	return conn, nil
}

func (c *Connector) dial(ctx context.Context, broadcasterID string, creds session.Credentials) (*websocket.Conn, error) {
	ws, resp, err := c.dialer.DialContext(ctx, c.endpoint(broadcasterID, creds), nil)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			return nil, &HandshakeError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		}
		return nil, fmt.Errorf("upstream dial: %w", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return ws, nil
}

func (c *Connector) endpoint(broadcasterID string, creds session.Credentials) string {
	u := *c.base
	q := u.Query()
	q.Set("uniqueId", broadcasterID)
	if creds.SessionID != "" {
		q.Set("sessionId", creds.SessionID)
	}
	if creds.TargetIDC != "" {
		q.Set("ttTargetIdc", creds.TargetIDC)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// State reports the breaker state for stats.
func (c *Connector) State() string {
	return c.cb.State().String()
}

// frame is one gateway message.
type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Conn is one live gateway connection.
type Conn struct {
	ws          *websocket.Conn
	broadcaster string
	log         logger.Logger
	closed      atomic.Bool
	closeOnce   sync.Once
	done        chan struct{}
}

// Close ends the connection. It never waits for the reader so it is safe to
// call from inside a handler.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = c.ws.Close()
	})
	return err
}

// Done is closed when the reader exits.
func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) readLoop(h session.Handler) {
	defer close(c.done)
	ctx := context.Background()
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			_ = c.ws.Close()
			h(session.Event{Type: types.TypeDisconnected, Data: disconnectData(err)})
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil || f.Type == "" {
			c.log.Debug(ctx, "unreadable upstream frame", logger.String("broadcaster", c.broadcaster))
			continue
		}
		h(session.Event{Type: f.Type, Data: f.Data})
	}
}

func disconnectData(err error) json.RawMessage {
	detail := struct {
		Code   int    `json:"code"`
		Reason string `json:"reason,omitempty"`
	}{Code: websocket.CloseAbnormalClosure, Reason: err.Error()}

	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		detail.Code = ce.Code
		detail.Reason = ce.Text
	}
	b, _ := json.Marshal(detail)
	return b
}
