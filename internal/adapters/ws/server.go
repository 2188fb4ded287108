// Package ws is the subscriber websocket transport.
package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/okian/livebid/internal/domain/fanout"
	"github.com/okian/livebid/internal/domain/session"
	"github.com/okian/livebid/internal/domain/types"
	"github.com/okian/livebid/pkg/logger"
)

const (
	DefaultLivenessInterval = 30 * time.Second
	DefaultSendBuffer       = 256
	defaultWriteTimeout     = 10 * time.Second
	defaultMaxMessageSize   = 64 << 10
	defaultRate             = 10
	defaultBurst            = 20
)

// Sessions attaches subscribers to broadcasters.
type Sessions interface {
	Attach(ctx context.Context, subscriberID, broadcasterID string, creds session.Credentials) error
	Detach(ctx context.Context, subscriberID string)
}

// Hub is the fanout side of a subscriber.
type Hub interface {
	Register(ctx context.Context, sub fanout.Subscriber)
	Unregister(ctx context.Context, id string)
	PublishGlobal(ctx context.Context, msg types.Message)
}

// Server upgrades HTTP requests and owns the resulting clients.
type Server struct {
	upgrader websocket.Upgrader
	sessions Sessions
	hub      Hub

	clock          clockwork.Clock
	interval       time.Duration
	writeTimeout   time.Duration
	maxMessageSize int64
	sendBuffer     int
	rate           rate.Limit
	burst          int
	publisherToken string
	log            logger.Logger

	mu      sync.Mutex
	clients map[string]*Client
	stop    chan struct{}
	once    sync.Once
}

// NewServer creates a transport bound to sessions and hub.
func NewServer(sessions Sessions, hub Hub, opts ...Option) *Server {
	s := &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		sessions:       sessions,
		hub:            hub,
		clock:          clockwork.NewRealClock(),
		interval:       DefaultLivenessInterval,
		writeTimeout:   defaultWriteTimeout,
		maxMessageSize: defaultMaxMessageSize,
		sendBuffer:     DefaultSendBuffer,
		rate:           defaultRate,
		burst:          defaultBurst,
		log:            logger.Nop(),
		clients:        make(map[string]*Client),
		stop:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServeHTTP upgrades the request and starts the client pumps.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}

	c := &Client{
		id:        uuid.NewString(),
		conn:      conn,
		srv:       s,
		send:      make(chan []byte, s.sendBuffer),
		done:      make(chan struct{}),
		publisher: s.publisherToken == "" || r.URL.Query().Get("token") == s.publisherToken,
		limiter:   rate.NewLimiter(s.rate, s.burst),
		log:       s.log,
	}
	c.alive.Store(true)

	ctx := context.Background()
	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()
	s.hub.Register(ctx, c)

	go c.writePump()
	go c.readPump(ctx)
	s.log.Info(ctx, "subscriber connected",
		logger.String("subscriber", c.id),
		logger.String("remote", r.RemoteAddr),
		logger.Bool("publisher", c.publisher))
}

// drop detaches and forgets a client. Safe to call more than once.
func (s *Server) drop(ctx context.Context, c *Client) {
	s.mu.Lock()
	_, ok := s.clients[c.id]
	delete(s.clients, c.id)
	s.mu.Unlock()

	c.terminate("bye")
	if !ok {
		return
	}
	s.sessions.Detach(ctx, c.id)
	s.hub.Unregister(ctx, c.id)
	s.log.Info(ctx, "subscriber disconnected", logger.String("subscriber", c.id))
}

// Run drives the liveness sweep until ctx is done or Close is called.
func (s *Server) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.Chan():
			s.Sweep(ctx)
		}
	}
}

// Sweep closes clients that did not answer the previous probe and probes
// the rest.
func (s *Server) Sweep(ctx context.Context) {
	s.mu.Lock()
	clients := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		if !c.alive.Swap(false) {
			s.log.Info(ctx, "subscriber unresponsive", logger.String("subscriber", c.id))
			c.terminate("liveness timeout")
			continue
		}
		if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeTimeout)); err != nil {
			c.terminate("ping failed")
		}
	}
}

// Count returns the number of connected clients.
func (s *Server) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Close terminates every client and stops the sweeper.
func (s *Server) Close() {
	s.once.Do(func() { close(s.stop) })
	s.mu.Lock()
	clients := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()
	for _, c := range clients {
		c.terminate("server shutdown")
	}
}
