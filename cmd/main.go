// Command livebid runs the live gift relay: upstream sessions, the gift
// leaderboard, the auction timer and the subscriber websocket.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	app "github.com/okian/livebid/internal/app"
	"github.com/okian/livebid/internal/config"
	"github.com/okian/livebid/pkg/logger"
	"github.com/okian/livebid/pkg/metrics"
)

const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "livebid:", err)
		os.Exit(1)
	}
}

func run() error {
	// Values already in the environment win over .env.
	if err := loadDotEnv(".env"); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	if err := logger.Init(logger.WithJSON(os.Getenv("LIVEBID_LOG_JSON") == "true")); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; using info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	svc := app.New(app.WithConfig(cfg), app.WithLogger(log))
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start relay: %w", err)
	}

	go sampleSystemMetrics(ctx, metrics.Global().SampleInterval())
	go svc.RunStatsUpdater(ctx)

	srv := newHTTPServer(cfg.Addr, svc.Handler())
	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "relay listening", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	log.Info(ctx, "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Subscriber sockets are hijacked, so the service closes them before
	// the HTTP server drains plain requests.
	errs := []error{svc.Stop(shutdownCtx), srv.Shutdown(shutdownCtx)}
	select {
	case err := <-serveErr:
		errs = append(errs, fmt.Errorf("http server: %w", err))
	default:
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	log.Info(ctx, "relay stopped")
	return nil
}

// loadDotEnv loads path into the environment when it exists.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func newHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// sampleSystemMetrics refreshes memory and goroutine gauges until ctx is done.
func sampleSystemMetrics(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	metrics.CollectSystem()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.CollectSystem()
		}
	}
}
