package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/okian/livebid/internal/domain/types"
	"github.com/okian/livebid/pkg/logger"
	"github.com/okian/livebid/pkg/metrics"
)

// DefaultConnectTimeout bounds a single upstream connect attempt.
const DefaultConnectTimeout = 15 * time.Second

// Registry owns every stream session. All session state changes go through
// its mutex; upstream handles are closed outside of it.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*streamSession
	attached map[string]string // subscriber -> broadcaster

	relay      Relay
	connector  Connector
	creds      CredentialsProvider
	classifier *Classifier
	timeout    time.Duration
	onEvent    func(context.Context, Event)
	log        logger.Logger

	wg     sync.WaitGroup
	closed bool
}

// NewRegistry creates a registry. connector and relay are required.
func NewRegistry(connector Connector, relay Relay, opts ...Option) *Registry {
	r := &Registry{
		sessions:   make(map[string]*streamSession),
		attached:   make(map[string]string),
		relay:      relay,
		connector:  connector,
		creds:      StaticCredentials{},
		classifier: NewClassifier(),
		timeout:    DefaultConnectTimeout,
		log:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ErrClosed is returned by Attach after Close.
var ErrClosed = errors.New("registry closed")

// Attach binds a subscriber to a broadcaster, moving it off any previous
// one. A live session is shared; otherwise a connect is started unless one
// is already pending. creds, when non-empty, override the provider's.
func (r *Registry) Attach(ctx context.Context, subscriberID, rawID string, creds Credentials) error {
	bid := Normalize(rawID)
	if bid == "" {
		return ErrInvalidBroadcaster
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}

	var stale Upstream
	if cur, ok := r.attached[subscriberID]; ok && cur != bid {
		stale = r.detachLocked(ctx, subscriberID)
	}

	s, ok := r.sessions[bid]
	if !ok {
		s = &streamSession{id: bid, subs: make(map[string]struct{})}
		r.sessions[bid] = s
		metrics.UpdateActiveSessions(len(r.sessions))
	}
	s.subs[subscriberID] = struct{}{}
	r.attached[subscriberID] = bid
	r.relay.Join(ctx, bid, subscriberID)
	if !creds.Empty() {
		s.creds = creds
	}

	switch {
	case s.upstream != nil:
		r.relay.Send(ctx, subscriberID, r.connectedMessage(s))
	case !s.pending:
		r.startConnectLocked(ctx, s)
	}
	r.mu.Unlock()

	closeUpstream(ctx, r.log, stale)
	r.log.Info(ctx, "subscriber attached",
		logger.String("subscriber", subscriberID),
		logger.String("broadcaster", bid))
	return nil
}

// Detach unbinds a subscriber. Idempotent. The last subscriber leaving
// tears the session down.
func (r *Registry) Detach(ctx context.Context, subscriberID string) {
	r.mu.Lock()
	up := r.detachLocked(ctx, subscriberID)
	r.mu.Unlock()
	closeUpstream(ctx, r.log, up)
}

func (r *Registry) detachLocked(ctx context.Context, subscriberID string) Upstream {
	bid, ok := r.attached[subscriberID]
	if !ok {
		return nil
	}
	delete(r.attached, subscriberID)
	r.relay.Leave(ctx, subscriberID)

	s, ok := r.sessions[bid]
	if !ok {
		return nil
	}
	delete(s.subs, subscriberID)
	if len(s.subs) > 0 {
		return nil
	}
	return r.teardownLocked(ctx, s)
}

// teardownLocked removes s and returns its upstream for closing.
func (r *Registry) teardownLocked(ctx context.Context, s *streamSession) Upstream {
	if r.sessions[s.id] == s {
		delete(r.sessions, s.id)
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	for sub := range s.subs {
		if r.attached[sub] == s.id {
			delete(r.attached, sub)
			r.relay.Leave(ctx, sub)
		}
	}
	s.subs = map[string]struct{}{}
	up := s.upstream
	s.upstream = nil
	s.pending = false

	metrics.UpdateActiveSessions(len(r.sessions))
	r.log.Info(ctx, "session torn down", logger.String("broadcaster", s.id))
	return up
}

func (r *Registry) startConnectLocked(ctx context.Context, s *streamSession) {
	creds := s.creds
	if creds.Empty() {
		creds = r.creds.Credentials(ctx, s.id)
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	s.pending = true
	s.dropped = false
	s.cancel = cancel
	s.gen++
	gen := s.gen

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		r.connect(cctx, s, gen, creds)
	}()
}

func (r *Registry) connect(ctx context.Context, s *streamSession, gen uint64, creds Credentials) {
	r.log.Debug(ctx, "connecting upstream", logger.String("broadcaster", s.id))
	up, err := r.connector.Connect(ctx, s.id, creds, func(ev Event) {
		ev.BroadcasterID = s.id
		r.handle(s, gen, ev)
	})

	r.mu.Lock()
	if r.sessions[s.id] != s || s.gen != gen {
		r.mu.Unlock()
		metrics.RecordUpstreamConnect("abandoned")
		closeUpstream(ctx, r.log, up)
		return
	}
	s.pending = false
	s.cancel = nil

	if err != nil {
		cls := r.classifier.Classify(err)
		metrics.RecordUpstreamConnect("error")
		metrics.RecordUpstreamFailure(cls.Category)
		r.log.Warn(ctx, "upstream connect failed",
			logger.String("broadcaster", s.id),
			logger.String("category", cls.Category),
			logger.Error(err))

		r.relay.Publish(ctx, s.id, types.NewError(cls.Message, cls.NeedsAuth))
		var stale Upstream
		if !s.established {
			stale = r.teardownLocked(ctx, s)
		}
		r.mu.Unlock()
		closeUpstream(ctx, r.log, stale)
		return
	}

	s.established = true
	if s.dropped {
		// The connection ended before Connect returned; the session stays
		// without upstream so the next Attach dials again.
		s.dropped = false
		r.mu.Unlock()
		metrics.RecordUpstreamConnect("dropped")
		r.log.Warn(ctx, "upstream dropped during connect", logger.String("broadcaster", s.id))
		closeUpstream(ctx, r.log, up)
		return
	}
	s.upstream = up
	r.mu.Unlock()
	metrics.RecordUpstreamConnect("ok")
	r.log.Info(ctx, "upstream connected", logger.String("broadcaster", s.id))
}

// upstreamDetail carries the optional fields of lifecycle events.
type upstreamDetail struct {
	Code    *int   `json:"code"`
	Reason  string `json:"reason"`
	Action  *int   `json:"action"`
	Message string `json:"message"`
}

// handle relays one upstream event. Events from a session, or a connect
// attempt, that is no longer current are dropped.
func (r *Registry) handle(s *streamSession, gen uint64, ev Event) {
	ctx := context.Background()

	r.mu.Lock()
	if r.sessions[s.id] != s || s.gen != gen {
		r.mu.Unlock()
		r.log.Debug(ctx, "late upstream event dropped",
			logger.String("broadcaster", s.id),
			logger.String("type", ev.Type))
		return
	}
	metrics.RecordUpstreamEvent(ev.Type)

	var detail upstreamDetail
	if len(ev.Data) > 0 {
		_ = json.Unmarshal(ev.Data, &detail)
	}

	var stale Upstream
	switch ev.Type {
	case types.TypeConnected:
		s.state = ev.Data
		r.relay.Publish(ctx, s.id, r.connectedMessage(s))
	case types.TypeDisconnected:
		stale = s.upstream
		s.upstream = nil
		if s.pending {
			s.dropped = true
		}
		r.relay.Publish(ctx, s.id, lifecycle(types.TypeDisconnected, types.LifecycleData{
			UniqueID: s.id, Code: detail.Code, Reason: detail.Reason,
		}))
	case types.TypeStreamEnd:
		r.relay.Publish(ctx, s.id, lifecycle(types.TypeStreamEnd, types.LifecycleData{
			UniqueID: s.id, Action: detail.Action,
		}))
		stale = r.teardownLocked(ctx, s)
	case types.TypeError:
		msg := detail.Message
		if msg == "" {
			msg = "upstream error"
		}
		cls := r.classifier.Classify(errors.New(msg))
		metrics.RecordUpstreamFailure(cls.Category)
		r.relay.Publish(ctx, s.id, types.NewError(cls.Message, cls.NeedsAuth))
	default:
		r.relay.Publish(ctx, s.id, types.Message{Type: ev.Type, Data: ev.Data})
	}
	hook := r.onEvent
	r.mu.Unlock()

	closeUpstream(ctx, r.log, stale)
	if hook != nil {
		hook(ctx, ev)
	}
}

func (r *Registry) connectedMessage(s *streamSession) types.Message {
	data := types.LifecycleData{UniqueID: s.id}
	if len(s.state) > 0 {
		data.State = s.state
	}
	return lifecycle(types.TypeConnected, data)
}

func lifecycle(typ string, data types.LifecycleData) types.Message {
	m, err := types.NewData(typ, data)
	if err != nil {
		return types.Message{Type: typ}
	}
	return m
}

// Sessions lists the current sessions ordered by broadcaster id.
func (r *Registry) Sessions() []Info {
	r.mu.Lock()
	out := make([]Info, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, Info{
			BroadcasterID: s.id,
			Subscribers:   len(s.subs),
			Live:          s.upstream != nil,
			Pending:       s.pending,
		})
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].BroadcasterID < out[j].BroadcasterID })
	return out
}

// Close tears every session down and waits for in-flight connects.
func (r *Registry) Close(ctx context.Context) {
	r.mu.Lock()
	r.closed = true
	var ups []Upstream
	for _, s := range r.sessions {
		if up := r.teardownLocked(ctx, s); up != nil {
			ups = append(ups, up)
		}
	}
	r.mu.Unlock()

	for _, up := range ups {
		closeUpstream(ctx, r.log, up)
	}
	r.wg.Wait()
}

func closeUpstream(ctx context.Context, log logger.Logger, up Upstream) {
	if up == nil {
		return
	}
	if err := up.Close(); err != nil {
		log.Debug(ctx, "upstream close", logger.Error(err))
	}
}
