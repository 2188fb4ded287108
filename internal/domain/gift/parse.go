package gift

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/okian/livebid/internal/domain/model"
)

// ErrNoSender is returned when a payload carries no usable sender identity.
var ErrNoSender = errors.New("gift payload has no sender identity")

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(b)
	return nil
}

// flexInt accepts a JSON number or a numeric string.
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	s := strings.Trim(string(b), `"`)
	if s == "" {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*f = flexInt(n)
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", s)
	}
	*f = flexInt(int64(v))
	return nil
}

// flexBool accepts true/false, "true"/"false" and 0/1.
type flexBool bool

func (f *flexBool) UnmarshalJSON(b []byte) error {
	switch strings.ToLower(strings.Trim(string(bytes.TrimSpace(b)), `"`)) {
	case "true", "1":
		*f = true
	default:
		*f = false
	}
	return nil
}

type urlList struct {
	URLs    []string `json:"urls"`
	URLList []string `json:"urlList"`
}

func (u *urlList) first() string {
	if u == nil {
		return ""
	}
	for _, s := range u.URLs {
		if s != "" {
			return s
		}
	}
	for _, s := range u.URLList {
		if s != "" {
			return s
		}
	}
	return ""
}

type rawUser struct {
	UserID            flexString `json:"userId"`
	UniqueID          flexString `json:"uniqueId"`
	Nickname          flexString `json:"nickname"`
	ProfilePictureURL flexString `json:"profilePictureUrl"`
	ProfilePicture    *urlList   `json:"profilePicture"`
	AvatarThumb       *urlList   `json:"avatarThumb"`
}

type rawGift struct {
	User *rawUser `json:"user"`

	UserID            flexString `json:"userId"`
	UniqueID          flexString `json:"uniqueId"`
	Nickname          flexString `json:"nickname"`
	ProfilePictureURL flexString `json:"profilePictureUrl"`
	UserDetails       *struct {
		ProfilePictureURLs []string `json:"profilePictureUrls"`
	} `json:"userDetails"`

	GiftID       flexString `json:"giftId"`
	DiamondCount flexInt    `json:"diamondCount"`
	GiftDetails  *struct {
		DiamondCount flexInt `json:"diamondCount"`
	} `json:"giftDetails"`
	RepeatCount flexInt  `json:"repeatCount"`
	RepeatEnd   flexBool `json:"repeatEnd"`
	StreakEnded flexBool `json:"streakEnded"`

	GroupID    flexString `json:"groupId"`
	LogID      flexString `json:"logId"`
	MsgID      flexString `json:"msgId"`
	CreateTime flexString `json:"createTime"`
}

func firstNonEmpty(vals ...flexString) string {
	for _, v := range vals {
		if s := strings.TrimSpace(string(v)); s != "" {
			return s
		}
	}
	return ""
}

// Parse normalizes an upstream gift payload. Both the nested "user" shape and
// the flat shape are accepted; nested fields win when both are present.
func Parse(payload []byte) (model.GiftEvent, error) {
	var raw rawGift
	if err := json.Unmarshal(payload, &raw); err != nil {
		return model.GiftEvent{}, fmt.Errorf("decode gift: %w", err)
	}
	user := raw.User
	if user == nil {
		user = &rawUser{}
	}

	ev := model.GiftEvent{
		UniqueID:     firstNonEmpty(user.UniqueID, raw.UniqueID, user.UserID, raw.UserID),
		SenderID:     firstNonEmpty(user.UserID, raw.UserID, user.UniqueID, raw.UniqueID),
		Nickname:     firstNonEmpty(user.Nickname, raw.Nickname),
		Avatar:       avatar(&raw, user),
		GiftID:       firstNonEmpty(raw.GiftID),
		DiamondCount: int64(raw.DiamondCount),
		RepeatCount:  int64(raw.RepeatCount),
		StreakEnded:  bool(raw.RepeatEnd) || bool(raw.StreakEnded),
		GroupID:      firstNonEmpty(raw.GroupID),
		LogID:        firstNonEmpty(raw.LogID),
		Fallback:     firstNonEmpty(raw.MsgID, raw.CreateTime),
	}
	if ev.DiamondCount == 0 && raw.GiftDetails != nil {
		ev.DiamondCount = int64(raw.GiftDetails.DiamondCount)
	}
	// An absent repeat count means a single gift.
	if ev.RepeatCount == 0 {
		ev.RepeatCount = 1
	}
	if ev.UniqueID == "" {
		return ev, ErrNoSender
	}
	if ev.Nickname == "" {
		ev.Nickname = ev.UniqueID
	}
	return ev, nil
}

// avatar resolves the profile picture in a fixed priority order.
func avatar(raw *rawGift, user *rawUser) string {
	if s := firstNonEmpty(user.ProfilePictureURL, raw.ProfilePictureURL); s != "" {
		return s
	}
	if s := user.ProfilePicture.first(); s != "" {
		return s
	}
	if raw.UserDetails != nil {
		for _, s := range raw.UserDetails.ProfilePictureURLs {
			if s != "" {
				return s
			}
		}
	}
	return user.AvatarThumb.first()
}

// DedupKey builds {senderId}_{giftId}_{streakEnded}_{repeatCount}_{group|log|fallback}.
func DedupKey(ev model.GiftEvent) string {
	tail := ev.GroupID
	if tail == "" {
		tail = ev.LogID
	}
	if tail == "" {
		tail = ev.Fallback
	}
	if tail == "" {
		tail = "na"
	}
	return fmt.Sprintf("%s_%s_%t_%d_%s", ev.SenderID, ev.GiftID, ev.StreakEnded, ev.RepeatCount, tail)
}
