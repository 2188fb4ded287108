package session

import (
	"strings"
)

// Failure categories.
const (
	CategorySignService  = "sign_service"
	CategoryRoomNotFound = "room_not_found"
	CategoryVerification = "verification_required"
	CategoryUnclassified = "unclassified"
)

// Rule maps a raw upstream failure to a user-facing message.
type Rule struct {
	Name      string
	Match     func(err error) bool
	Message   string
	NeedsAuth bool
}

// Classification is the outcome of running the rules against an error.
type Classification struct {
	Category  string
	Message   string
	NeedsAuth bool
}

// ContainsAny matches errors whose text contains any of subs, ignoring case.
func ContainsAny(subs ...string) func(error) bool {
	lowered := make([]string, 0, len(subs))
	for _, s := range subs {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			lowered = append(lowered, s)
		}
	}
	return func(err error) bool {
		if err == nil {
			return false
		}
		text := strings.ToLower(err.Error())
		for _, s := range lowered {
			if strings.Contains(text, s) {
				return true
			}
		}
		return false
	}
}

// DefaultRules are the built-in categories, evaluated after any extra rules.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:      CategorySignService,
			Match:     ContainsAny("sign api", "sign server", "sign service", "signature", "signing", "rate limit", "gateway"),
			Message:   "The live signing service is unavailable right now. Try again shortly or connect with a session id.",
			NeedsAuth: true,
		},
		{
			Name:      CategoryRoomNotFound,
			Match:     ContainsAny("room not found", "user_not_found", "failed to retrieve room id", "room id", "not live", "offline", "live has ended"),
			Message:   "This broadcaster is not live at the moment.",
			NeedsAuth: false,
		},
		{
			Name:      CategoryVerification,
			Match:     ContainsAny("captcha", "verify", "verification"),
			Message:   "The upstream asked for a verification challenge. Connect with a session id to continue.",
			NeedsAuth: true,
		},
	}
}

// Classifier evaluates an ordered rule list; the first match wins.
type Classifier struct {
	rules []Rule
}

// NewClassifier puts extra rules ahead of the defaults.
func NewClassifier(extra ...Rule) *Classifier {
	rules := make([]Rule, 0, len(extra)+3)
	for _, r := range extra {
		if r.Match != nil {
			rules = append(rules, r)
		}
	}
	rules = append(rules, DefaultRules()...)
	return &Classifier{rules: rules}
}

// Classify maps err to a category. Unmatched errors keep their raw message.
func (c *Classifier) Classify(err error) Classification {
	if err == nil {
		return Classification{Category: CategoryUnclassified}
	}
	for _, r := range c.rules {
		if r.Match(err) {
			return Classification{Category: r.Name, Message: r.Message, NeedsAuth: r.NeedsAuth}
		}
	}
	return Classification{Category: CategoryUnclassified, Message: err.Error()}
}
