package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/okian/livebid/internal/domain/session"
	"github.com/okian/livebid/internal/domain/types"
	"github.com/okian/livebid/pkg/logger"
)

// Client is one subscriber connection. It implements fanout.Subscriber.
type Client struct {
	id        string
	conn      *websocket.Conn
	srv       *Server
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	alive     atomic.Bool
	publisher bool
	limiter   *rate.Limiter
	log       logger.Logger
}

// ID returns the subscriber id.
func (c *Client) ID() string { return c.id }

// Send queues msg without blocking.
func (c *Client) Send(msg types.Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Type, err)
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- b:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrSendBufferFull
	}
}

// terminate closes the socket; the read pump then runs cleanup.
func (c *Client) terminate(reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
			time.Now().Add(c.srv.writeTimeout))
		_ = c.conn.Close()
	})
}

func (c *Client) writePump() {
	for {
		select {
		case b := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.srv.writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				c.log.Debug(context.Background(), "write failed", logger.String("subscriber", c.id), logger.Error(err))
				c.terminate("write failed")
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Client) readPump(ctx context.Context) {
	defer c.srv.drop(ctx, c)

	c.conn.SetReadLimit(c.srv.maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.alive.Store(true)
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.log.Debug(ctx, "subscriber read failed", logger.String("subscriber", c.id), logger.Error(err))
			}
			return
		}
		c.alive.Store(true)
		if !c.limiter.Allow() {
			c.reply(ctx, ErrRateLimited.Error())
			continue
		}
		c.handle(ctx, data)
	}
}

func (c *Client) handle(ctx context.Context, data []byte) {
	msg, err := types.Parse(data)
	if err != nil {
		c.reply(ctx, "invalid message: expected a JSON object with a type")
		return
	}

	switch msg.Type {
	case types.TypeConnect:
		if msg.UniqueID == "" {
			c.reply(ctx, "uniqueId is required")
			return
		}
		creds := session.Credentials{SessionID: msg.SessionID, TargetIDC: msg.TargetIDC}
		if err := c.srv.sessions.Attach(ctx, c.id, msg.UniqueID, creds); err != nil {
			if errors.Is(err, session.ErrInvalidBroadcaster) {
				c.reply(ctx, "uniqueId is required")
				return
			}
			c.reply(ctx, err.Error())
		}
	case types.TypeDisconnect:
		c.srv.sessions.Detach(ctx, c.id)
	case types.TypeLeaderboardUpdate:
		if !c.publisher {
			c.reply(ctx, ErrForbidden.Error())
			return
		}
		c.srv.hub.PublishGlobal(ctx, types.NewLeaderboardUpdate(msg.Donors))
	default:
		c.reply(ctx, fmt.Sprintf("%s: %q", ErrUnknownMessage, msg.Type))
	}
}

func (c *Client) reply(ctx context.Context, text string) {
	if err := c.Send(types.NewError(text, false)); err != nil {
		c.log.Debug(ctx, "reply dropped", logger.String("subscriber", c.id), logger.Error(err))
	}
}
