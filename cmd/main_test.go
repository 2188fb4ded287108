package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	app "github.com/okian/livebid/internal/app"
	"github.com/okian/livebid/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestLoadDotEnv(t *testing.T) {
	convey.Convey("Given .env handling", t, func() {
		convey.Convey("When the file is missing", func() {
			err := loadDotEnv(filepath.Join(t.TempDir(), ".env"))

			convey.Convey("Then it is not an error", func() {
				convey.So(err, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the file exists", func() {
			path := filepath.Join(t.TempDir(), ".env")
			convey.So(os.WriteFile(path, []byte("LIVEBID_TEST_DOTENV=from-file\n"), 0o600), convey.ShouldBeNil)
			t.Setenv("LIVEBID_TEST_DOTENV", "")
			_ = os.Unsetenv("LIVEBID_TEST_DOTENV")

			convey.Convey("Then its values reach the environment", func() {
				convey.So(loadDotEnv(path), convey.ShouldBeNil)
				convey.So(os.Getenv("LIVEBID_TEST_DOTENV"), convey.ShouldEqual, "from-file")
			})
		})
	})
}

func TestMainApplicationIntegration(t *testing.T) {
	convey.Convey("Given the assembled application", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		t.Setenv("LIVEBID_ADDR", ":0")
		t.Setenv("LIVEBID_QUEUE_SIZE", "100")
		cfg, err := config.Load(ctx)
		convey.So(err, convey.ShouldBeNil)

		svc := app.New(app.WithConfig(cfg))
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		srv := newHTTPServer(cfg.Addr, svc.Handler())

		convey.Convey("Then the server carries the configured timeouts", func() {
			convey.So(srv.Addr, convey.ShouldEqual, ":0")
			convey.So(srv.ReadHeaderTimeout, convey.ShouldEqual, readHeaderTimeout)
			convey.So(srv.IdleTimeout, convey.ShouldEqual, idleTimeout)
		})

		convey.Convey("Then health and stats are served", func() {
			w := httptest.NewRecorder()
			srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)

			w = httptest.NewRecorder()
			srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats", nil))
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(w.Body.String(), convey.ShouldContainSubstring, `"queueSize":100`)
		})
	})
}

func TestSampleSystemMetrics(t *testing.T) {
	convey.Convey("Given a cancelled context", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		convey.Convey("Then the updater returns without panicking", func() {
			convey.So(func() { sampleSystemMetrics(ctx, 10*time.Millisecond) }, convey.ShouldNotPanic)
		})
	})
}
