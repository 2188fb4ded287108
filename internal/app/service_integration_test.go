package service_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	service "github.com/okian/livebid/internal/app"
	"github.com/okian/livebid/internal/config"
	"github.com/okian/livebid/internal/domain/session"
	"github.com/okian/livebid/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

type nopUpstream struct{}

func (nopUpstream) Close() error { return nil }

// liveGateway stands in for the upstream connector and lets tests push
// events for a broadcaster.
type liveGateway struct {
	mu       sync.Mutex
	handlers map[string]session.Handler
}

func newLiveGateway() *liveGateway {
	return &liveGateway{handlers: make(map[string]session.Handler)}
}

func (g *liveGateway) Connect(_ context.Context, bid string, _ session.Credentials, h session.Handler) (session.Upstream, error) {
	g.mu.Lock()
	g.handlers[bid] = h
	g.mu.Unlock()
	h(session.Event{Type: types.TypeConnected, Data: json.RawMessage(`{"roomId":"42"}`)})
	return nopUpstream{}, nil
}

func (g *liveGateway) push(bid, typ, data string) {
	g.mu.Lock()
	h := g.handlers[bid]
	g.mu.Unlock()
	h(session.Event{Type: typ, Data: json.RawMessage(data)})
}

func (g *liveGateway) connected(bid string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.handlers[bid] != nil
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

// readUntil returns the first frame of type typ.
func readUntil(conn *websocket.Conn, typ string) types.Message {
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		So(err, ShouldBeNil)
		var m types.Message
		So(json.Unmarshal(data, &m), ShouldBeNil)
		if m.Type == typ {
			return m
		}
	}
}

func TestServiceIntegration(t *testing.T) {
	Convey("Given a running relay with a fake upstream", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		cfg := config.New()
		cfg.InitialDurationSec = 30
		gw := newLiveGateway()
		cs := &captureSink{}
		svc := service.New(
			service.WithConfig(cfg),
			service.WithConnector(gw),
			service.WithResultSink(cs),
		)
		So(svc.Start(ctx), ShouldBeNil)
		srv := httptest.NewServer(svc.Handler())
		defer srv.Close()
		defer func() { _ = svc.Stop(ctx) }()

		wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		So(err, ShouldBeNil)
		defer conn.Close()

		Convey("When a subscriber connects to a broadcaster", func() {
			So(conn.WriteJSON(map[string]string{"type": "connect", "uniqueId": "@Host"}), ShouldBeNil)
			connected := readUntil(conn, types.TypeConnected)
			So(string(connected.Data), ShouldContainSubstring, `"uniqueId":"host"`)
			So(waitFor(func() bool { return gw.connected("host") }), ShouldBeTrue)

			Convey("And the upstream emits a streak, a duplicate and a high-value gift", func() {
				gw.push("host", types.TypeGift, `{"user":{"userId":"1","uniqueId":"fan1","nickname":"Fan One"},"giftId":"5655","diamondCount":5,"repeatCount":3,"repeatEnd":false,"groupId":"g1"}`)
				gw.push("host", types.TypeGift, `{"user":{"userId":"1","uniqueId":"fan1","nickname":"Fan One"},"giftId":"5655","diamondCount":5,"repeatCount":3,"repeatEnd":true,"groupId":"g1"}`)
				gw.push("host", types.TypeGift, `{"user":{"userId":"1","uniqueId":"fan1","nickname":"Fan One"},"giftId":"5655","diamondCount":5,"repeatCount":3,"repeatEnd":true,"groupId":"g1"}`)
				gw.push("host", types.TypeGift, `{"user":{"userId":"2","uniqueId":"Whale"},"giftId":"7934","diamondCount":500,"repeatCount":1,"logId":"l9"}`)

				Convey("Then the raw gifts are relayed and the leaderboard is credited once per gift", func() {
					readUntil(conn, types.TypeGift)
					board := svc.Leaderboard()
					So(waitFor(func() bool { return board.Count(ctx) == 2 }), ShouldBeTrue)

					fan, err := board.Get(ctx, "fan1")
					So(err, ShouldBeNil)
					So(fan.TotalCoins, ShouldEqual, 15)
					whale, err := board.Get(ctx, "whale")
					So(err, ShouldBeNil)
					So(whale.TotalCoins, ShouldEqual, 500)
					So(whale.Rank, ShouldEqual, 1)

					resp, err := http.Get(srv.URL + "/leaderboard?limit=1")
					So(err, ShouldBeNil)
					defer resp.Body.Close()
					var body struct {
						Count  int `json:"count"`
						Donors []struct {
							UniqueID string `json:"uniqueId"`
						} `json:"donors"`
					}
					So(json.NewDecoder(resp.Body).Decode(&body), ShouldBeNil)
					So(body.Count, ShouldEqual, 2)
					So(body.Donors[0].UniqueID, ShouldEqual, "Whale")
				})
			})

			Convey("And an auction is started over HTTP", func() {
				resp, err := http.Post(srv.URL+"/auction/start", "application/json", nil)
				So(err, ShouldBeNil)
				_ = resp.Body.Close()

				Convey("Then subscribers get a timer update", func() {
					So(resp.StatusCode, ShouldEqual, http.StatusOK)
					m := readUntil(conn, types.TypeTimerUpdate)
					var tu types.TimerUpdate
					So(json.Unmarshal(m.Data, &tu), ShouldBeNil)
					So(tu.Phase, ShouldEqual, "INITIAL")
					So(tu.Running, ShouldBeTrue)
				})
			})

			Convey("And the stream ends", func() {
				gw.push("host", types.TypeStreamEnd, `{"action":3}`)

				Convey("Then the subscriber is told and the session is gone", func() {
					readUntil(conn, types.TypeStreamEnd)
					So(waitFor(func() bool {
						sessions, _ := svc.GetStats()["sessions"].([]session.Info)
						return len(sessions) == 0
					}), ShouldBeTrue)
				})
			})
		})
	})
}
