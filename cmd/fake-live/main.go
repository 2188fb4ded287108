package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/okian/livebid/internal/fakelive"
	"github.com/okian/livebid/pkg/logger"
)

const shutdownTimeout = 5 * time.Second

func main() {
	def := fakelive.DefaultConfig()
	var (
		addr      = flag.String("addr", def.Addr, "Listen address")
		interval  = flag.Duration("interval", def.Interval, "Delay between gift scenarios")
		donors    = flag.Int("donors", def.Donors, "Size of the simulated donor pool")
		highEvery = flag.Int("high-every", def.HighValueEvery, "Every n-th scenario is an instant high-value gift")
		dupEvery  = flag.Int("dup-every", def.DuplicateEvery, "Every n-th streak repeats its terminal frame")
		endAfter  = flag.Int("end-after", def.StreamEndAfter, "Send streamEnd after n scenarios (0 never ends)")
		offline   = flag.String("offline", strings.Join(def.OfflineIDs, ","), "Ids answered with 404 user_not_found")
		verify    = flag.String("verify", strings.Join(def.VerificationIDs, ","), "Ids answered with a captcha challenge")
		help      = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		fakelive.ShowHelp()
		return
	}

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	log := logger.Named("fake-live")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sim := fakelive.NewServer(fakelive.Config{
		Addr:            *addr,
		Interval:        *interval,
		Donors:          *donors,
		HighValueEvery:  *highEvery,
		DuplicateEvery:  *dupEvery,
		StreamEndAfter:  *endAfter,
		OfflineIDs:      splitIDs(*offline),
		VerificationIDs: splitIDs(*verify),
	}, log)

	mux := http.NewServeMux()
	mux.Handle("/live", sim)
	srv := &http.Server{Addr: *addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info(ctx, "fake live gateway listening", logger.String("addr", *addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "gateway server failed", logger.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	sim.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "gateway shutdown failed", logger.Error(err))
	}
	fakelive.LogStats(context.Background(), log, sim)
}

func splitIDs(s string) []string {
	var out []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}
