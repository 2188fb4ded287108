package fakelive

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/okian/livebid/pkg/logger"
)

const writeWait = 5 * time.Second

// streamEndAction is the upstream code for "broadcaster ended the live".
const streamEndAction = 3

// Server upgrades gateway connections and streams generated frames.
type Server struct {
	cfg      Config
	gen      *Generator
	upgrader websocket.Upgrader
	log      logger.Logger

	offline      map[string]struct{}
	verification map[string]struct{}

	connections atomic.Int64
	rejected    atomic.Int64
	scenarios   atomic.Int64
	frames      atomic.Int64
	duplicates  atomic.Int64

	wg   sync.WaitGroup
	stop chan struct{}
	once sync.Once
}

// NewServer creates a simulator. A nil log discards output.
func NewServer(cfg Config, log logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	return &Server{
		cfg:          cfg,
		gen:          NewGenerator(cfg),
		upgrader:     websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		log:          log,
		offline:      toSet(cfg.OfflineIDs),
		verification: toSet(cfg.VerificationIDs),
		stop:         make(chan struct{}),
	}
}

func toSet(ids []string) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[strings.ToLower(strings.TrimSpace(id))] = struct{}{}
	}
	return out
}

// Generator exposes the expected totals for verification.
func (s *Server) Generator() *Generator { return s.gen }

// Stats returns a snapshot of the counters.
func (s *Server) Stats() Stats {
	return Stats{
		Connections: s.connections.Load(),
		Rejected:    s.rejected.Load(),
		Scenarios:   s.scenarios.Load(),
		Frames:      s.frames.Load(),
		Duplicates:  s.duplicates.Load(),
	}
}

// ServeHTTP handles one gateway dial: ?uniqueId=<broadcaster>.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("uniqueId")))
	switch {
	case id == "":
		s.reject(ctx, w, id, http.StatusBadRequest, "uniqueId is required")
		return
	case s.has(s.offline, id):
		s.reject(ctx, w, id, http.StatusNotFound, "failed to retrieve room id: user_not_found")
		return
	case s.has(s.verification, id):
		s.reject(ctx, w, id, http.StatusForbidden, "captcha verification required")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn(ctx, "upgrade failed", logger.Error(err))
		return
	}
	s.connections.Add(1)
	s.log.Info(ctx, "gateway connection",
		logger.String("broadcaster", id),
		logger.Bool("session", r.URL.Query().Get("sessionId") != ""))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.stream(context.Background(), conn, id)
	}()
}

func (s *Server) has(set map[string]struct{}, id string) bool {
	_, ok := set[id]
	return ok
}

func (s *Server) reject(ctx context.Context, w http.ResponseWriter, id string, status int, body string) {
	s.rejected.Add(1)
	s.log.Info(ctx, "gateway rejected dial", logger.String("broadcaster", id), logger.Int("status", status))
	http.Error(w, body, status)
}

// stream writes connected, then one scenario per interval until the peer
// goes away, the stream is configured to end or the server closes.
func (s *Server) stream(ctx context.Context, conn *websocket.Conn, id string) {
	defer conn.Close()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	roomID, _ := json.Marshal(map[string]string{"roomId": "room-" + id})
	if err := s.write(conn, Frame{Type: "connected", Data: roomID}); err != nil {
		return
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	sent := 0
	for {
		select {
		case <-gone:
			return
		case <-s.stop:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "gateway shutdown"),
				time.Now().Add(writeWait))
			return
		case <-ticker.C:
		}

		frames, dup := s.gen.Next()
		s.scenarios.Add(1)
		if dup {
			s.duplicates.Add(1)
		}
		for _, f := range frames {
			if err := s.write(conn, f); err != nil {
				s.log.Debug(ctx, "write failed", logger.String("broadcaster", id), logger.Error(err))
				return
			}
		}
		sent++
		if s.cfg.StreamEndAfter > 0 && sent >= s.cfg.StreamEndAfter {
			data, _ := json.Marshal(map[string]int{"action": streamEndAction})
			_ = s.write(conn, Frame{Type: "streamEnd", Data: data})
			s.log.Info(ctx, "stream ended", logger.String("broadcaster", id), logger.Int("scenarios", sent))
			return
		}
	}
}

func (s *Server) write(conn *websocket.Conn, f Frame) error {
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return err
	}
	s.frames.Add(1)
	return nil
}

// Close ends every stream and waits for the writers.
func (s *Server) Close() {
	s.once.Do(func() { close(s.stop) })
	s.wg.Wait()
}
