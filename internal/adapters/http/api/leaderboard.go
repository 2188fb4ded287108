package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/okian/livebid/internal/adapters/repository"
	"github.com/okian/livebid/internal/domain/model"
)

// LeaderboardHandler serves ranked donors.
type LeaderboardHandler struct {
	board    Board
	maxLimit int
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(board Board, maxLimit int) *LeaderboardHandler {
	return &LeaderboardHandler{board: board, maxLimit: maxLimit}
}

type leaderboardResponse struct {
	Frozen bool          `json:"frozen"`
	Count  int           `json:"count"`
	Donors []model.Donor `json:"donors"`
}

// HandleGetLeaderboard handles GET /leaderboard?limit=N. Without limit the
// configured maximum is used.
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	n := h.maxLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		if v > h.maxLimit {
			writeError(w, http.StatusBadRequest, "limit_exceeded", NewKind(op, ErrLimitExceeded))
			return
		}
		n = v
	}

	ctx := r.Context()
	writeJSON(w, http.StatusOK, leaderboardResponse{
		Frozen: h.board.Frozen(),
		Count:  h.board.Count(ctx),
		Donors: h.board.RankedTop(ctx, n),
	})
}

// HandleGetDonor handles GET /leaderboard/{id}.
func (h *LeaderboardHandler) HandleGetDonor(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	donor, err := h.board.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, donor)
}
