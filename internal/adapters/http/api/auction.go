package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/okian/livebid/internal/domain/auction"
	"github.com/okian/livebid/pkg/logger"
)

// AuctionHandler exposes the timer controls.
type AuctionHandler struct {
	timer Auction
	board Board
	log   logger.Logger
}

// NewAuctionHandler creates a new auction handler.
func NewAuctionHandler(timer Auction, board Board) *AuctionHandler {
	return &AuctionHandler{timer: timer, board: board, log: logger.Nop()}
}

// HandleState handles GET /auction.
func (h *AuctionHandler) HandleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.timer.State())
}

// HandleStart handles POST /auction/start. With reset=true the leaderboard
// is cleared for a new round first.
func (h *AuctionHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reset, _ := strconv.ParseBool(r.URL.Query().Get("reset"))
	if reset {
		if h.timer.State().Phase.Active() {
			h.fail(w, r, auction.ErrAlreadyActive)
			return
		}
		h.board.Reset(ctx)
	}
	if err := h.timer.Start(ctx); err != nil {
		h.fail(w, r, err)
		return
	}
	h.log.Info(ctx, "auction started", logger.Bool("reset", reset))
	writeJSON(w, http.StatusOK, h.timer.State())
}

// HandlePause handles POST /auction/pause.
func (h *AuctionHandler) HandlePause(w http.ResponseWriter, r *http.Request) {
	if err := h.timer.Pause(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.timer.State())
}

// HandleResume handles POST /auction/resume.
func (h *AuctionHandler) HandleResume(w http.ResponseWriter, r *http.Request) {
	if err := h.timer.Resume(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.timer.State())
}

// HandleReset handles POST /auction/reset.
func (h *AuctionHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	h.timer.Reset(r.Context())
	writeJSON(w, http.StatusOK, h.timer.State())
}

func (h *AuctionHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auction.ErrAlreadyActive),
		errors.Is(err, auction.ErrNotActive),
		errors.Is(err, auction.ErrAlreadyPaused),
		errors.Is(err, auction.ErrNotPaused),
		errors.Is(err, auction.ErrFinished):
		writeError(w, http.StatusConflict, "invalid_transition", err)
	default:
		h.log.Error(r.Context(), "auction control failed", logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
