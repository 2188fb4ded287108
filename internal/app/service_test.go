package service_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	service "github.com/okian/livebid/internal/app"
	"github.com/okian/livebid/internal/config"
	"github.com/okian/livebid/internal/domain/model"
	"github.com/okian/livebid/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type captureSink struct {
	mu      sync.Mutex
	results []model.RoundResult
	closed  atomic.Bool
}

func (c *captureSink) Publish(_ context.Context, r model.RoundResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, r)
	return nil
}

func (c *captureSink) Close() error {
	c.closed.Store(true)
	return nil
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()

		Convey("Then nothing is running yet", func() {
			So(svc, ShouldNotBeNil)
			So(svc.Handler(), ShouldBeNil)
			So(svc.GetStats()["started"], ShouldEqual, false)
			So(svc.Stop(context.Background()), ShouldBeNil)
		})
	})
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a service over the default upstream and log sink", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		svc := service.New(service.WithLogger(logger.Named("test")))
		Reset(func() { _ = svc.Stop(context.Background()) })

		Convey("When starting the service", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)

			Convey("Then it reports its components", func() {
				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, true)
				So(stats["donors"], ShouldEqual, 0)
				So(stats["subscribers"], ShouldEqual, 0)
				So(stats["upstreamBreaker"], ShouldEqual, "closed")
				So(svc.Handler(), ShouldNotBeNil)
			})

			Convey("And stopping it", func() {
				So(svc.Stop(ctx), ShouldBeNil)
				So(svc.Stop(ctx), ShouldBeNil)

				Convey("Then it is marked as stopped", func() {
					So(svc.GetStats()["started"], ShouldEqual, false)
				})
			})
		})
	})
}

func TestService_StartErrors(t *testing.T) {
	Convey("Given misconfigured services", t, func() {
		ctx := context.Background()

		Convey("When the upstream URL is not a websocket URL", func() {
			cfg := config.New()
			cfg.UpstreamURL = "http://gateway.local/live"
			err := service.New(service.WithConfig(cfg)).Start(ctx)

			Convey("Then Start fails", func() {
				So(err, ShouldNotBeNil)
			})
		})

		Convey("When NATS is unreachable", func() {
			cfg := config.New()
			cfg.NATSURL = "nats://127.0.0.1:1"
			err := service.New(service.WithConfig(cfg)).Start(ctx)

			Convey("Then Start fails", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}

func TestService_Sink(t *testing.T) {
	Convey("Given a service with an injected sink", t, func() {
		ctx := context.Background()
		cs := &captureSink{}
		svc := service.New(service.WithResultSink(cs))
		So(svc.Start(ctx), ShouldBeNil)
		Reset(func() { _ = svc.Stop(ctx) })

		Convey("When the service stops", func() {
			So(svc.Stop(ctx), ShouldBeNil)

			Convey("Then the sink is closed", func() {
				So(cs.closed.Load(), ShouldBeTrue)
			})
		})
	})
}
