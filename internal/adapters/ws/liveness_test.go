package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/okian/livebid/internal/domain/fanout"
	"github.com/okian/livebid/internal/domain/session"
	. "github.com/smartystreets/goconvey/convey"
)

type noopSessions struct{}

func (noopSessions) Attach(context.Context, string, string, session.Credentials) error { return nil }
func (noopSessions) Detach(context.Context, string)                                    {}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func onlyClient(s *Server) *Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		return c
	}
	return nil
}

func TestSweep(t *testing.T) {
	Convey("Given one connected subscriber", t, func() {
		ctx := context.Background()
		s := NewServer(noopSessions{}, fanout.New())
		hs := httptest.NewServer(s)
		Reset(func() {
			s.Close()
			hs.Close()
		})
		conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(hs.URL, "http"), nil)
		So(err, ShouldBeNil)
		defer conn.Close()
		So(eventually(func() bool { return s.Count() == 1 }), ShouldBeTrue)
		c := onlyClient(s)

		Convey("When it answers probes", func() {
			go func() {
				for {
					if _, _, err := conn.ReadMessage(); err != nil {
						return
					}
				}
			}()
			s.Sweep(ctx)
			So(eventually(c.alive.Load), ShouldBeTrue)
			s.Sweep(ctx)

			Convey("Then it stays connected", func() {
				So(s.Count(), ShouldEqual, 1)
			})
		})

		Convey("When it never answers", func() {
			s.Sweep(ctx)
			s.Sweep(ctx)

			Convey("Then it is closed within two intervals", func() {
				So(eventually(func() bool { return s.Count() == 0 }), ShouldBeTrue)
			})
		})
	})
}
