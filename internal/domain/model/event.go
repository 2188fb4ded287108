// Package model contains domain models passed between layers.
package model

import (
	"time"

	"github.com/goccy/go-json"
)

// GiftEnvelope carries one raw upstream gift payload through the ingest queue.
// The payload is kept verbatim; interpretation happens in the gift gate.
type GiftEnvelope struct {
	BroadcasterID string
	Payload       json.RawMessage
	ReceivedAt    time.Time
}

// GiftEvent is the normalized view of a single upstream gift notification.
// It is ephemeral and never retained past dedup processing.
type GiftEvent struct {
	SenderID     string // stable sender id used for the dedup key
	UniqueID     string // contributor identity (handle)
	Nickname     string // display label
	Avatar       string // optional profile picture reference
	GiftID       string
	DiamondCount int64
	RepeatCount  int64
	StreakEnded  bool
	GroupID      string
	LogID        string
	Fallback     string // msg id or create time, used when group/log ids are absent
}

// CoinAward is an accepted, normalized unit of contribution.
type CoinAward struct {
	UniqueID string
	Label    string
	Coins    int64
	Avatar   string
	DedupKey string
}

// Donor is a contributor's cumulative standing within the current round.
type Donor struct {
	Rank       int    `json:"rank"`
	UniqueID   string `json:"uniqueId"`
	Label      string `json:"label"`
	TotalCoins int64  `json:"totalCoins"`
	Avatar     string `json:"profilePictureUrl,omitempty"`
}

// TieResult reports whether the top of the leaderboard is shared.
type TieResult struct {
	IsTie    bool
	Tied     []Donor
	TopTotal int64
}

// RoundResult is handed to the persistence sink once per finished auction.
type RoundResult struct {
	RoundID       string    `json:"roundId"`
	Winner        *Donor    `json:"winner,omitempty"`
	TotalCoins    int64     `json:"totalCoins"`
	Donors        []Donor   `json:"donors"`
	TieExtensions int       `json:"tieExtensions"`
	FinishedAt    time.Time `json:"finishedAt"`
}
