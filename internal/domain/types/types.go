// Package types contains the wire protocol shared by subscribers and the relay.
package types

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// Message types exchanged with subscribers.
const (
	// Upstream lifecycle, relayed verbatim.
	TypeConnected    = "connected"
	TypeDisconnected = "disconnected"
	TypeStreamEnd    = "streamEnd"
	TypeGift         = "gift"
	TypeChat         = "chat"
	TypeError        = "error"

	// State sync.
	TypeLeaderboardUpdate = "leaderboard-update"
	TypeTimerUpdate       = "timer-update"
	TypeAuctionFinished   = "auction-finished"

	// Inbound only.
	TypeConnect    = "connect"
	TypeDisconnect = "disconnect"
)

// ErrMalformed is returned when an inbound frame is not a JSON object with a type.
var ErrMalformed = errors.New("malformed message")

// Message is one JSON frame on the subscriber socket.
// Inbound frames use Type plus the connect fields; outbound frames use
// Type plus Data, Message/NeedsAuth or Donors depending on the type.
type Message struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Message   string          `json:"message,omitempty"`
	NeedsAuth *bool           `json:"needsAuth,omitempty"`
	Donors    []DonorEntry    `json:"donors,omitempty"`

	UniqueID  string `json:"uniqueId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	TargetIDC string `json:"ttTargetIdc,omitempty"`
}

// MarshalJSON always emits a donors array for leaderboard updates, even an empty one.
func (m Message) MarshalJSON() ([]byte, error) {
	type alias Message
	if m.Type != TypeLeaderboardUpdate {
		return json.Marshal(alias(m))
	}
	donors := m.Donors
	if donors == nil {
		donors = []DonorEntry{}
	}
	return json.Marshal(struct {
		alias
		Donors []DonorEntry `json:"donors"`
	}{alias: alias(m), Donors: donors})
}

// DonorEntry is a donor as presented to display surfaces.
type DonorEntry struct {
	UniqueID          string `json:"uniqueId"`
	Label             string `json:"label"`
	TotalCoins        int64  `json:"totalCoins"`
	ProfilePictureURL string `json:"profilePictureUrl,omitempty"`
}

// LifecycleData is the data object of connected/disconnected/streamEnd.
type LifecycleData struct {
	UniqueID string `json:"uniqueId"`
	State    any    `json:"state,omitempty"`
	Code     *int   `json:"code,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Action   *int   `json:"action,omitempty"`
}

// TimerUpdate is the data object of timer-update.
type TimerUpdate struct {
	TimeLeft      int    `json:"timeLeft"`
	Phase         string `json:"phase"`
	Message       string `json:"message,omitempty"`
	TieExtensions int    `json:"tieExtensions"`
	Running       bool   `json:"running"`
}

// AuctionFinished is the data object of auction-finished.
type AuctionFinished struct {
	Winner     *DonorEntry  `json:"winner"`
	TotalCoins int64        `json:"totalCoins"`
	Donors     []DonorEntry `json:"donors"`
}

// NewError builds an error frame. needsAuth is only set when true.
func NewError(msg string, needsAuth bool) Message {
	m := Message{Type: TypeError, Message: msg}
	if needsAuth {
		t := true
		m.NeedsAuth = &t
	}
	return m
}

// NewLeaderboardUpdate builds a full ranked snapshot frame.
func NewLeaderboardUpdate(donors []DonorEntry) Message {
	return Message{Type: TypeLeaderboardUpdate, Donors: donors}
}

// NewData builds a frame of the given type with v encoded as data.
func NewData(typ string, v any) (Message, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s data: %w", typ, err)
	}
	return Message{Type: typ, Data: b}, nil
}

// Parse decodes an inbound frame.
func Parse(b []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if m.Type == "" {
		return Message{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return m, nil
}
