package fakelive

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"sync"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Gift catalogue, diamond values per unit.
var catalogue = []struct {
	id       string
	diamonds int64
}{
	{"5655", 1},  // rose
	{"5269", 5},  // finger heart
	{"6064", 10}, // perfume
	{"5879", 30}, // doughnut
}

const (
	highValueGiftID   = "7934"
	highValueDiamonds = 500
	maxRepeat         = 9
)

// Frame is one gateway message.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type giftUser struct {
	UserID            string `json:"userId"`
	UniqueID          string `json:"uniqueId"`
	Nickname          string `json:"nickname"`
	ProfilePictureURL string `json:"profilePictureUrl,omitempty"`
}

type giftData struct {
	User         giftUser `json:"user"`
	GiftID       string   `json:"giftId"`
	DiamondCount int64    `json:"diamondCount"`
	RepeatCount  int64    `json:"repeatCount"`
	RepeatEnd    bool     `json:"repeatEnd"`
	GroupID      string   `json:"groupId,omitempty"`
	LogID        string   `json:"logId,omitempty"`
}

// Generator produces gift scenarios and tracks the coins a correct relay
// should credit for them.
type Generator struct {
	cfg Config

	mu       sync.Mutex
	n        int
	expected map[string]int64
}

// NewGenerator creates a generator over cfg's donor pool.
func NewGenerator(cfg Config) *Generator {
	if cfg.Donors < 1 {
		cfg.Donors = 1
	}
	return &Generator{cfg: cfg, expected: make(map[string]int64)}
}

// Next returns the frames of the next scenario: a streak pair, or an
// instant high-value gift. Some streaks repeat their terminal frame.
func (g *Generator) Next() ([]Frame, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++

	donor := randInt(g.cfg.Donors)
	user := giftUser{
		UserID:            strconv.Itoa(7000 + donor),
		UniqueID:          "fan_" + strconv.Itoa(donor),
		Nickname:          "Fan " + strconv.Itoa(donor),
		ProfilePictureURL: "https://example.invalid/avatar/" + strconv.Itoa(donor) + ".png",
	}

	if g.cfg.HighValueEvery > 0 && g.n%g.cfg.HighValueEvery == 0 {
		g.expected[user.UniqueID] += highValueDiamonds
		return []Frame{giftFrame(giftData{
			User:         user,
			GiftID:       highValueGiftID,
			DiamondCount: highValueDiamonds,
			RepeatCount:  1,
			LogID:        uuid.NewString(),
		})}, false
	}

	gift := catalogue[randInt(len(catalogue))]
	repeat := int64(randInt(maxRepeat) + 1)
	group := uuid.NewString()
	running := giftData{
		User:         user,
		GiftID:       gift.id,
		DiamondCount: gift.diamonds,
		RepeatCount:  repeat,
		GroupID:      group,
	}
	final := running
	final.RepeatEnd = true
	g.expected[user.UniqueID] += gift.diamonds * repeat

	frames := []Frame{giftFrame(running), giftFrame(final)}
	dup := g.cfg.DuplicateEvery > 0 && g.n%g.cfg.DuplicateEvery == 0
	if dup {
		frames = append(frames, giftFrame(final))
	}
	return frames, dup
}

// Expected returns a copy of the coins per donor a relay should hold.
func (g *Generator) Expected() map[string]int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]int64, len(g.expected))
	for k, v := range g.expected {
		out[k] = v
	}
	return out
}

func giftFrame(d giftData) Frame {
	b, _ := json.Marshal(d)
	return Frame{Type: "gift", Data: b}
}

// randInt returns a uniform int in [0, n) using crypto/rand.
func randInt(n int) int {
	if n <= 1 {
		return 0
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}
