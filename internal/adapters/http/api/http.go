// Package api wires the HTTP surface: subscriber upgrades, leaderboard
// reads, auction control, stats and metrics.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/goccy/go-json"

	"github.com/okian/livebid/internal/adapters/http/swagger"
	"github.com/okian/livebid/internal/domain/auction"
	"github.com/okian/livebid/internal/domain/model"
	"github.com/okian/livebid/pkg/logger"
)

const defaultMaxLimit = 100

// Board is the leaderboard as seen by HTTP handlers.
type Board interface {
	RankedTop(ctx context.Context, n int) []model.Donor
	Get(ctx context.Context, identity string) (model.Donor, error)
	Count(ctx context.Context) int
	Frozen() bool
	Reset(ctx context.Context)
}

// Auction is the timer control surface.
type Auction interface {
	State() auction.State
	Start(ctx context.Context) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Reset(ctx context.Context)
}

// Server holds the route handlers.
type Server struct {
	health        *HealthHandler
	statsProvider StatsProvider
	leaderboard   *LeaderboardHandler
	auction       *AuctionHandler
	ws            http.Handler

	origins []string
	log     logger.Logger
}

// NewServer creates the API server. ws handles subscriber upgrades.
func NewServer(board Board, timer Auction, stats StatsProvider, ws http.Handler, opts ...Option) *Server {
	s := &Server{
		health:        NewHealthHandler(),
		statsProvider: stats,
		leaderboard:   NewLeaderboardHandler(board, defaultMaxLimit),
		auction:       NewAuctionHandler(timer, board),
		ws:            ws,
		origins:       []string{"*"},
		log:           logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Group(func(r chi.Router) {
		r.Use(RequestMetrics)

		r.Get("/healthz", s.health.HandleHealth)
		r.Get("/metrics", s.health.HandleMetrics)
		r.Get("/stats", s.handleStats)

		r.Route("/leaderboard", func(r chi.Router) {
			r.Get("/", s.leaderboard.HandleGetLeaderboard)
			r.Get("/{id}", s.leaderboard.HandleGetDonor)
		})

		r.Route("/auction", func(r chi.Router) {
			r.Get("/", s.auction.HandleState)
			r.Post("/start", s.auction.HandleStart)
			r.Post("/pause", s.auction.HandlePause)
			r.Post("/resume", s.auction.HandleResume)
			r.Post("/reset", s.auction.HandleReset)
		})
	})

	swagger.Register(r)

	// Long-lived; not metered.
	if s.ws != nil {
		r.Get("/ws", s.ws.ServeHTTP)
	}
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
