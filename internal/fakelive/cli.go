package fakelive

import (
	"context"
	"os"

	"github.com/okian/livebid/pkg/logger"
)

// ShowHelp prints usage information for the simulator.
func ShowHelp() {
	os.Stdout.WriteString(`Fake Live Gateway
=================

A local websocket server that speaks the upstream gateway frame format so the
relay can be exercised end to end without a real live platform.

Usage:
  go run ./cmd/fake-live [options]

Options:
  -addr string
        Listen address (default ":8089")
  -interval duration
        Delay between gift scenarios (default 500ms)
  -donors int
        Size of the simulated donor pool (default 12)
  -high-every int
        Every n-th scenario is an instant high-value gift (default 7)
  -dup-every int
        Every n-th streak repeats its terminal frame (default 4)
  -end-after int
        Send streamEnd after n scenarios, 0 never ends (default 0)
  -offline string
        Comma-separated ids answered with 404 user_not_found (default "ghost")
  -verify string
        Comma-separated ids answered with a captcha challenge (default "captcha")
  -help
        Show this help message

Point the relay at it with LIVEBID_UPSTREAM_URL=ws://localhost:8089/live.
`)
}

// LogStats writes the final counters.
func LogStats(ctx context.Context, log logger.Logger, s *Server) {
	st := s.Stats()
	log.Info(ctx, "final statistics",
		logger.Int64("connections", st.Connections),
		logger.Int64("rejected", st.Rejected),
		logger.Int64("scenarios", st.Scenarios),
		logger.Int64("frames", st.Frames),
		logger.Int64("duplicates", st.Duplicates),
		logger.Any("expected", s.Generator().Expected()))
}
