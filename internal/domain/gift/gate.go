// Package gift turns raw upstream gift notifications into deduplicated coin awards.
package gift

import (
	"context"
	"math"

	"github.com/okian/livebid/internal/domain/dedupe"
	"github.com/okian/livebid/internal/domain/model"
	"github.com/okian/livebid/pkg/logger"
	"github.com/okian/livebid/pkg/metrics"
)

// DefaultHighValueThreshold is the diamond value at which a single,
// non-terminal gift counts immediately.
const DefaultHighValueThreshold = 99

// Outcome tells the caller why Ingest did or did not produce an award.
type Outcome int

const (
	Accepted Outcome = iota
	Duplicate
	StreakPending
	NonPositive
	Invalid
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Duplicate:
		return "duplicate"
	case StreakPending:
		return "streak_pending"
	case NonPositive:
		return "non_positive"
	case Invalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Gate is the dedup gate. It owns its dedup window; nothing else may write to it.
type Gate struct {
	seen      dedupe.Deduper
	threshold int64
	log       logger.Logger
}

// NewGate creates a gate with a private dedup window.
func NewGate(opts ...Option) *Gate {
	g := &Gate{
		threshold: DefaultHighValueThreshold,
		log:       logger.Nop(),
	}
	var dopts []dedupe.Option
	for _, opt := range opts {
		opt(g, &dopts)
	}
	g.seen = dedupe.NewInMemoryDeduper(dopts...)
	return g
}

// Ingest parses a raw payload and applies the dedup and coin policy.
// A nil award is not an error; the outcome says why it was withheld.
func (g *Gate) Ingest(ctx context.Context, payload []byte) (*model.CoinAward, Outcome) {
	ev, err := Parse(payload)
	if err != nil {
		g.log.Debug(ctx, "gift rejected", logger.Error(err))
		metrics.RecordGift(Invalid.String())
		return nil, Invalid
	}
	return g.IngestEvent(ctx, ev)
}

// IngestEvent applies the dedup and coin policy to an already parsed event.
func (g *Gate) IngestEvent(ctx context.Context, ev model.GiftEvent) (*model.CoinAward, Outcome) {
	award, outcome := g.evaluate(ctx, ev)
	metrics.RecordGift(outcome.String())
	if award != nil {
		metrics.RecordCoinsAwarded(award.Coins)
	} else {
		g.log.Debug(ctx, "gift withheld",
			logger.String("sender", ev.UniqueID),
			logger.String("gift", ev.GiftID),
			logger.String("outcome", outcome.String()))
	}
	return award, outcome
}

func (g *Gate) evaluate(ctx context.Context, ev model.GiftEvent) (*model.CoinAward, Outcome) {
	if ev.UniqueID == "" {
		return nil, Invalid
	}
	key := DedupKey(ev)
	if g.seen.SeenAndRecord(ctx, key) {
		return nil, Duplicate
	}
	// Ordinary gifts arrive twice: once while the streak runs and once when it
	// ends. Only the terminal event carries the final repeat count.
	if !ev.StreakEnded && (ev.DiamondCount < g.threshold || ev.RepeatCount != 1) {
		return nil, StreakPending
	}
	if ev.DiamondCount <= 0 || ev.RepeatCount <= 0 {
		return nil, NonPositive
	}
	if ev.RepeatCount > math.MaxInt64/ev.DiamondCount {
		return nil, Invalid
	}
	coins := ev.DiamondCount * ev.RepeatCount
	return &model.CoinAward{
		UniqueID: ev.UniqueID,
		Label:    ev.Nickname,
		Coins:    coins,
		Avatar:   ev.Avatar,
		DedupKey: key,
	}, Accepted
}
