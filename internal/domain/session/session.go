// Package session keeps at most one upstream live connection per broadcaster
// and relays its lifecycle to every attached subscriber.
package session

import (
	"context"
	"errors"
	"strings"

	"github.com/goccy/go-json"
	"github.com/okian/livebid/internal/domain/types"
)

// ErrInvalidBroadcaster is returned for identities that normalize to empty.
var ErrInvalidBroadcaster = errors.New("invalid broadcaster id")

// Normalize lower-cases, trims and strips a leading @ from a broadcaster id.
func Normalize(id string) string {
	id = strings.TrimSpace(id)
	id = strings.TrimPrefix(id, "@")
	return strings.ToLower(strings.TrimSpace(id))
}

// Credentials are optional upstream session hints.
type Credentials struct {
	SessionID string
	TargetIDC string
}

// Empty reports whether no credential is set.
func (c Credentials) Empty() bool {
	return c.SessionID == "" && c.TargetIDC == ""
}

// CredentialsProvider supplies process-level credentials. It is consulted
// only when a connect starts, never mid-session.
type CredentialsProvider interface {
	Credentials(ctx context.Context, broadcasterID string) Credentials
}

// StaticCredentials always returns the same credentials.
type StaticCredentials Credentials

func (s StaticCredentials) Credentials(context.Context, string) Credentials {
	return Credentials(s)
}

// Event is one upstream notification for a broadcaster.
type Event struct {
	Type          string
	BroadcasterID string
	Data          json.RawMessage
}

// Handler receives upstream events. Calls for one connection are sequential.
type Handler func(Event)

// Upstream is a live upstream connection.
type Upstream interface {
	Close() error
}

// Connector opens upstream connections. Connect blocks until the connection
// is established or fails; after success events are delivered to h.
type Connector interface {
	Connect(ctx context.Context, broadcasterID string, creds Credentials, h Handler) (Upstream, error)
}

// Relay is the subscriber side the registry writes to.
type Relay interface {
	Join(ctx context.Context, broadcasterID, subscriberID string)
	Leave(ctx context.Context, subscriberID string)
	Publish(ctx context.Context, broadcasterID string, msg types.Message)
	Send(ctx context.Context, subscriberID string, msg types.Message)
}

// Info describes a session for stats endpoints.
type Info struct {
	BroadcasterID string `json:"broadcasterId"`
	Subscribers   int    `json:"subscribers"`
	Live          bool   `json:"live"`
	Pending       bool   `json:"pending"`
}

// streamSession is owned by the registry map; only the registry mutates it.
type streamSession struct {
	id          string
	upstream    Upstream
	subs        map[string]struct{}
	pending     bool
	established bool
	gen         uint64 // bumped per connect attempt
	dropped     bool   // current attempt's upstream ended before Connect returned
	state       json.RawMessage
	creds       Credentials
	cancel      context.CancelFunc
}
