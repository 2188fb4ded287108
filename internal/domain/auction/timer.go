package auction

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/okian/livebid/internal/domain/leaderboard"
	"github.com/okian/livebid/internal/domain/model"
	"github.com/okian/livebid/internal/domain/types"
	"github.com/okian/livebid/pkg/logger"
	"github.com/okian/livebid/pkg/metrics"
)

// Phase of the auction countdown.
type Phase string

const (
	PhaseIdle     Phase = "IDLE"
	PhaseInitial  Phase = "INITIAL"
	PhaseDelay    Phase = "DELAY"
	PhaseTieBreak Phase = "TIE_BREAK"
	PhaseFinished Phase = "FINISHED"
)

// Code is the numeric value exported as the phase gauge.
func (p Phase) Code() int {
	switch p {
	case PhaseInitial:
		return 1
	case PhaseDelay:
		return 2
	case PhaseTieBreak:
		return 3
	case PhaseFinished:
		return 4
	default:
		return 0
	}
}

// Active reports whether the countdown is in progress (running or paused).
func (p Phase) Active() bool {
	return p == PhaseInitial || p == PhaseDelay || p == PhaseTieBreak
}

// Defaults, in seconds.
const (
	DefaultInitialSeconds   = 60
	DefaultDelaySeconds     = 10
	DefaultTieSeconds       = 30
	DefaultMaxTieExtensions = 5
)

const tickInterval = time.Second

// Board is the part of the leaderboard the timer drives.
type Board interface {
	CheckTie(ctx context.Context) model.TieResult
	Freeze(ctx context.Context) *model.Donor
	Unfreeze(ctx context.Context)
	Ranked(ctx context.Context) []model.Donor
}

// Publisher receives timer-update and auction-finished messages.
type Publisher interface {
	PublishGlobal(ctx context.Context, msg types.Message)
}

// ResultSink persists finished rounds.
type ResultSink interface {
	Publish(ctx context.Context, r model.RoundResult) error
}

// State is a snapshot of the timer.
type State struct {
	RoundID       string       `json:"roundId,omitempty"`
	Phase         Phase        `json:"phase"`
	TimeLeft      int          `json:"timeLeft"`
	TieExtensions int          `json:"tieExtensions"`
	Running       bool         `json:"running"`
	Winner        *model.Donor `json:"winner,omitempty"`
}

// Timer is the auction phase state machine.
//
// Each tick decrements the remaining time and, when it reaches zero, runs the
// boundary logic for the current phase in the same tick. Every tick carries a
// generation; ticks from a cancelled task are ignored.
type Timer struct {
	mu sync.Mutex

	initial, delay, tie int
	maxTies             int

	phase     Phase
	remaining int
	ties      int
	running   bool
	roundID   string
	winner    *model.Donor

	gen  uint64
	task Task

	board Board
	pub   Publisher
	sink  ResultSink
	sched Scheduler
	clock clockwork.Clock
	log   logger.Logger
}

// NewTimer creates an idle timer bound to board.
func NewTimer(board Board, opts ...Option) *Timer {
	t := &Timer{
		initial: DefaultInitialSeconds,
		delay:   DefaultDelaySeconds,
		tie:     DefaultTieSeconds,
		maxTies: DefaultMaxTieExtensions,
		phase:   PhaseIdle,
		board:   board,
		clock:   clockwork.NewRealClock(),
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.sched == nil {
		t.sched = NewClockScheduler(t.clock)
	}
	t.remaining = t.initial
	return t
}

// State returns the current snapshot.
func (t *Timer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stateLocked()
}

// Start begins a new round from IDLE or FINISHED.
func (t *Timer) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.phase.Active() {
		return ErrAlreadyActive
	}
	t.phase = PhaseInitial
	t.remaining = t.initial
	t.ties = 0
	t.winner = nil
	t.roundID = uuid.NewString()
	t.board.Unfreeze(ctx)
	t.scheduleLocked()

	t.log.Info(ctx, "auction started",
		logger.String("round", t.roundID),
		logger.Int("initial", t.initial),
		logger.Int("delay", t.delay))
	t.publishLocked(ctx)
	return nil
}

// Pause stops ticking without changing phase or remaining time.
func (t *Timer) Pause(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.phase.Active() {
		return ErrNotActive
	}
	if !t.running {
		return ErrAlreadyPaused
	}
	t.cancelLocked()
	t.log.Info(ctx, "auction paused", logger.String("phase", string(t.phase)), logger.Int("time_left", t.remaining))
	t.publishLocked(ctx)
	return nil
}

// Resume restarts ticking from the current phase and remaining time.
func (t *Timer) Resume(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case t.phase == PhaseFinished:
		return ErrFinished
	case !t.phase.Active():
		return ErrNotActive
	case t.running:
		return ErrNotPaused
	}
	t.scheduleLocked()
	t.log.Info(ctx, "auction resumed", logger.String("phase", string(t.phase)), logger.Int("time_left", t.remaining))
	t.publishLocked(ctx)
	return nil
}

// Reset stops ticking and returns to IDLE. The leaderboard freeze state is untouched.
func (t *Timer) Reset(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cancelLocked()
	t.phase = PhaseIdle
	t.remaining = t.initial
	t.ties = 0
	t.winner = nil
	t.roundID = ""
	t.log.Info(ctx, "auction reset")
	t.publishLocked(ctx)
}

// scheduleLocked starts a tick task for a new generation.
func (t *Timer) scheduleLocked() {
	t.cancelLocked()
	t.gen++
	gen := t.gen
	t.running = true
	t.task = t.sched.Every(tickInterval, func() { t.tick(gen) })
}

// cancelLocked stops the tick task; late ticks from it are dropped by generation.
func (t *Timer) cancelLocked() {
	if t.task != nil {
		t.task.Stop()
		t.task = nil
	}
	t.gen++
	t.running = false
}

func (t *Timer) tick(gen uint64) {
	ctx := context.Background()
	var result *model.RoundResult

	t.mu.Lock()
	if gen != t.gen || !t.running {
		t.mu.Unlock()
		return
	}
	metrics.RecordTimerTick()
	if t.remaining > 0 {
		t.remaining--
	}
	if t.remaining == 0 {
		result = t.boundaryLocked(ctx)
	}
	t.publishLocked(ctx)
	if result != nil {
		t.publishFinishedLocked(ctx, result)
	}
	t.mu.Unlock()

	if result != nil && t.sink != nil {
		// Sinks count and log their own outcome.
		_ = t.sink.Publish(ctx, *result)
	}
}

// boundaryLocked handles a phase reaching zero. It returns the round result
// when the auction finishes.
func (t *Timer) boundaryLocked(ctx context.Context) *model.RoundResult {
	if t.phase == PhaseInitial && t.delay > 0 {
		t.setPhaseLocked(ctx, PhaseDelay, t.delay)
		return nil
	}

	tie := t.board.CheckTie(ctx)
	if tie.IsTie && t.ties < t.maxTies {
		t.ties++
		t.board.Unfreeze(ctx)
		metrics.RecordTieExtension()
		t.log.Info(ctx, "tie at boundary, extending",
			logger.Int("extension", t.ties),
			logger.Int("tied", len(tie.Tied)),
			logger.Int64("top_total", tie.TopTotal))
		t.setPhaseLocked(ctx, PhaseTieBreak, t.tie)
		return nil
	}
	return t.finishLocked(ctx)
}

func (t *Timer) finishLocked(ctx context.Context) *model.RoundResult {
	t.cancelLocked()
	t.phase = PhaseFinished
	t.remaining = 0
	metrics.UpdateAuctionPhase(t.phase.Code())
	metrics.RecordRoundFinished()

	t.winner = t.board.Freeze(ctx)
	donors := t.board.Ranked(ctx)
	var total int64
	for _, d := range donors {
		total += d.TotalCoins
	}

	fields := []logger.Field{logger.String("round", t.roundID), logger.Int("tie_extensions", t.ties)}
	if t.winner != nil {
		fields = append(fields, logger.String("winner", t.winner.UniqueID), logger.Int64("winner_coins", t.winner.TotalCoins))
	}
	t.log.Info(ctx, "auction finished", fields...)

	return &model.RoundResult{
		RoundID:       t.roundID,
		Winner:        t.winner,
		TotalCoins:    total,
		Donors:        donors,
		TieExtensions: t.ties,
		FinishedAt:    t.clock.Now().UTC(),
	}
}

func (t *Timer) setPhaseLocked(ctx context.Context, p Phase, seconds int) {
	t.log.Info(ctx, "auction phase", logger.String("from", string(t.phase)), logger.String("to", string(p)), logger.Int("seconds", seconds))
	t.phase = p
	t.remaining = seconds
	metrics.UpdateAuctionPhase(p.Code())
}

func (t *Timer) stateLocked() State {
	return State{
		RoundID:       t.roundID,
		Phase:         t.phase,
		TimeLeft:      t.remaining,
		TieExtensions: t.ties,
		Running:       t.running,
		Winner:        t.winner,
	}
}

func (t *Timer) messageLocked() string {
	switch t.phase {
	case PhaseInitial:
		return "Auction in progress"
	case PhaseDelay:
		return "Last call"
	case PhaseTieBreak:
		return fmt.Sprintf("Tie break %d/%d", t.ties, t.maxTies)
	case PhaseFinished:
		if t.winner == nil {
			return "Auction finished without bids"
		}
		return fmt.Sprintf("Winner: %s", t.winner.Label)
	default:
		return ""
	}
}

func (t *Timer) publishLocked(ctx context.Context) {
	metrics.UpdateAuctionPhase(t.phase.Code())
	if t.pub == nil {
		return
	}
	msg, err := types.NewData(types.TypeTimerUpdate, types.TimerUpdate{
		TimeLeft:      t.remaining,
		Phase:         string(t.phase),
		Message:       t.messageLocked(),
		TieExtensions: t.ties,
		Running:       t.running,
	})
	if err != nil {
		t.log.Error(ctx, "encode timer update", logger.Error(err))
		return
	}
	t.pub.PublishGlobal(ctx, msg)
}

func (t *Timer) publishFinishedLocked(ctx context.Context, r *model.RoundResult) {
	if t.pub == nil {
		return
	}
	var winner *types.DonorEntry
	if r.Winner != nil {
		w := leaderboard.ToEntry(*r.Winner)
		winner = &w
	}
	msg, err := types.NewData(types.TypeAuctionFinished, types.AuctionFinished{
		Winner:     winner,
		TotalCoins: r.TotalCoins,
		Donors:     leaderboard.ToEntries(r.Donors),
	})
	if err != nil {
		t.log.Error(ctx, "encode auction finished", logger.Error(err))
		return
	}
	t.pub.PublishGlobal(ctx, msg)
}
