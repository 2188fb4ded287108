// Package leaderboard accumulates coin awards per donor for one auction round.
package leaderboard

import (
	"context"
	"strings"
	"sync"

	"github.com/okian/livebid/internal/adapters/repository"
	"github.com/okian/livebid/internal/domain/model"
	"github.com/okian/livebid/internal/domain/types"
	"github.com/okian/livebid/pkg/logger"
	"github.com/okian/livebid/pkg/metrics"
)

// Publisher receives the full ranked set after every change.
type Publisher interface {
	PublishGlobal(ctx context.Context, msg types.Message)
}

// Leaderboard is the donor set of the active round plus a frozen flag.
// Mutation and the broadcast that follows happen under one lock so
// subscribers observe updates in the order they were applied.
type Leaderboard struct {
	mu     sync.Mutex
	store  repository.Store
	frozen bool
	pub    Publisher
	log    logger.Logger
}

// New creates an empty, unfrozen leaderboard.
func New(opts ...Option) *Leaderboard {
	l := &Leaderboard{log: logger.Nop()}
	for _, opt := range opts {
		opt(l)
	}
	if l.store == nil {
		l.store = repository.NewTreapStore()
	}
	return l
}

// Key folds an identity to its aggregation key.
func Key(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}

// Record credits coins to identity. It returns false without mutating
// anything when the board is frozen, identity is empty or coins <= 0.
func (l *Leaderboard) Record(ctx context.Context, identity, label string, coins int64, avatar string) bool {
	key := Key(identity)

	l.mu.Lock()
	defer l.mu.Unlock()

	switch {
	case l.frozen:
		metrics.RecordLeaderboardRejection("frozen")
		l.log.Debug(ctx, "record rejected: frozen", logger.String("donor", identity), logger.Int64("coins", coins))
		return false
	case key == "" || coins <= 0:
		metrics.RecordLeaderboardRejection("invalid")
		return false
	}

	if _, err := l.store.Add(ctx, key, strings.TrimSpace(identity), label, coins, avatar); err != nil {
		metrics.RecordErrorByComponent("leaderboard", "store")
		l.log.Warn(ctx, "store rejected record", logger.String("donor", identity), logger.Error(err))
		return false
	}
	metrics.RecordLeaderboardUpdate()
	l.publishLocked(ctx)
	return true
}

// RecordAward is Record for an accepted award.
func (l *Leaderboard) RecordAward(ctx context.Context, a *model.CoinAward) bool {
	if a == nil {
		return false
	}
	return l.Record(ctx, a.UniqueID, a.Label, a.Coins, a.Avatar)
}

// RankedTop returns up to n donors, strictly descending by total.
func (l *Leaderboard) RankedTop(ctx context.Context, n int) []model.Donor {
	if n < 1 {
		return []model.Donor{}
	}
	entries, err := l.store.TopN(ctx, n)
	if err != nil {
		return []model.Donor{}
	}
	return toDonors(entries)
}

// Ranked returns every donor in rank order.
func (l *Leaderboard) Ranked(ctx context.Context) []model.Donor {
	return toDonors(l.store.All(ctx))
}

// Get returns one donor by identity.
func (l *Leaderboard) Get(ctx context.Context, identity string) (model.Donor, error) {
	e, err := l.store.Get(ctx, Key(identity))
	if err != nil {
		return model.Donor{}, err
	}
	return toDonor(e), nil
}

// Count returns the number of donors in the round.
func (l *Leaderboard) Count(ctx context.Context) int {
	return l.store.Count(ctx)
}

// CheckTie reports whether two or more donors share the top total.
func (l *Leaderboard) CheckTie(ctx context.Context) model.TieResult {
	all := l.store.All(ctx)
	if len(all) < 2 {
		return model.TieResult{Tied: []model.Donor{}}
	}
	top := all[0].Total
	tied := make([]model.Donor, 0, 2)
	for _, e := range all {
		if e.Total != top {
			break
		}
		tied = append(tied, toDonor(e))
	}
	return model.TieResult{IsTie: len(tied) >= 2, Tied: tied, TopTotal: top}
}

// Freeze stops accepting records and returns the current leader, if any.
func (l *Leaderboard) Freeze(ctx context.Context) *model.Donor {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.frozen = true
	l.log.Info(ctx, "leaderboard frozen")
	l.publishLocked(ctx)

	top, err := l.store.TopN(ctx, 1)
	if err != nil || len(top) == 0 {
		return nil
	}
	d := toDonor(top[0])
	return &d
}

// Unfreeze resumes accepting records.
func (l *Leaderboard) Unfreeze(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frozen = false
}

// Frozen reports whether records are currently rejected.
func (l *Leaderboard) Frozen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.frozen
}

// Reset clears every donor and the frozen flag for a new round.
func (l *Leaderboard) Reset(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.store.Reset(ctx)
	l.frozen = false
	l.log.Info(ctx, "leaderboard reset")
	l.publishLocked(ctx)
}

// publishLocked must be called with l.mu held.
func (l *Leaderboard) publishLocked(ctx context.Context) {
	all := l.store.All(ctx)
	metrics.UpdateDonorCount(len(all))
	if l.pub == nil {
		return
	}
	l.pub.PublishGlobal(ctx, types.NewLeaderboardUpdate(ToEntries(toDonors(all))))
}

// ToEntries converts donors to their wire form.
func ToEntries(donors []model.Donor) []types.DonorEntry {
	out := make([]types.DonorEntry, len(donors))
	for i, d := range donors {
		out[i] = ToEntry(d)
	}
	return out
}

// ToEntry converts one donor to its wire form.
func ToEntry(d model.Donor) types.DonorEntry {
	return types.DonorEntry{
		UniqueID:          d.UniqueID,
		Label:             d.Label,
		TotalCoins:        d.TotalCoins,
		ProfilePictureURL: d.Avatar,
	}
}

func toDonors(entries []repository.Entry) []model.Donor {
	out := make([]model.Donor, len(entries))
	for i, e := range entries {
		out[i] = toDonor(e)
	}
	return out
}

func toDonor(e repository.Entry) model.Donor {
	return model.Donor{
		Rank:       e.Rank,
		UniqueID:   e.UniqueID,
		Label:      e.Label,
		TotalCoins: e.Total,
		Avatar:     e.Avatar,
	}
}
