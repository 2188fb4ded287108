package repository

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/okian/livebid/pkg/metrics"
)

// Treap-based, in-memory Store implementation.
//
// Ordering: total DESC, then seq ASC, so equal totals keep the order in which
// donors first contributed. "less" means ranks earlier, which makes in-order
// traversal produce the leaderboard from best to worst.

type node struct {
	key   string
	total int64
	seq   uint64
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

func less(aTotal int64, aSeq uint64, bTotal int64, bSeq uint64) bool {
	if aTotal != bTotal {
		return aTotal > bTotal
	}
	return aSeq < bSeq
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n, in *node) *node {
	if n == nil {
		in.size = 1
		return in
	}
	if less(in.total, in.seq, n.total, n.seq) {
		n.left = insert(n.left, in)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, in)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, total int64, seq uint64) *node {
	if n == nil {
		return nil
	}
	switch {
	case total == n.total && seq == n.seq:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, total, seq)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, total, seq)
		}
	case less(total, seq, n.total, n.seq):
		n.left = deleteNode(n.left, total, seq)
	default:
		n.right = deleteNode(n.right, total, seq)
	}
	fix(n)
	return n
}

// countAbove returns how many nodes have a total strictly greater than total.
func countAbove(n *node, total int64) int {
	c := 0
	for n != nil {
		if n.total > total {
			c += 1 + nsize(n.left)
			n = n.right
		} else {
			n = n.left
		}
	}
	return c
}

// collect appends up to limit entries in rank order.
func collect(n *node, limit int, byKey map[string]*record, out *[]Entry) {
	if n == nil || len(*out) >= limit {
		return
	}
	collect(n.left, limit, byKey, out)
	if len(*out) < limit {
		if rec, ok := byKey[n.key]; ok {
			*out = append(*out, rec.entry(n.key))
		}
	}
	if len(*out) < limit {
		collect(n.right, limit, byKey, out)
	}
}

type record struct {
	uniqueID string
	label    string
	avatar   string
	total    int64
	seq      uint64
}

func (r *record) entry(key string) Entry {
	return Entry{Key: key, UniqueID: r.uniqueID, Label: r.label, Total: r.total, Avatar: r.avatar, Seq: r.seq}
}

// TreapStore is a Store backed by a size-augmented treap.
type TreapStore struct {
	mu      sync.RWMutex
	root    *node
	byKey   map[string]*record
	nextSeq uint64
	prio    func() uint64
}

// NewTreapStore constructs an empty store.
func NewTreapStore(opts ...Option) *TreapStore {
	s := &TreapStore{
		byKey: make(map[string]*record),
		prio:  rand.Uint64,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add implements Store.Add in O(log n) expected time.
func (s *TreapStore) Add(ctx context.Context, key, uniqueID, label string, coins int64, avatar string) (Entry, error) {
	if key == "" {
		metrics.RecordErrorByComponent("repository", "empty_key")
		return Entry{}, ErrEmptyKey
	}
	if coins <= 0 {
		metrics.RecordErrorByComponent("repository", "invalid_amount")
		return Entry{}, ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byKey[key]
	if ok {
		s.root = deleteNode(s.root, rec.total, rec.seq)
	} else {
		s.nextSeq++
		rec = &record{uniqueID: uniqueID, label: uniqueID, seq: s.nextSeq}
		s.byKey[key] = rec
	}
	rec.total += coins
	if label != "" {
		rec.label = label
	}
	if avatar != "" {
		rec.avatar = avatar
	}
	s.root = insert(s.root, &node{key: key, total: rec.total, seq: rec.seq, prio: s.prio()})

	e := rec.entry(key)
	e.Rank = countAbove(s.root, rec.total) + 1
	return e, nil
}

// Get returns the donor with its rank in O(log n) expected time.
func (s *TreapStore) Get(ctx context.Context, key string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byKey[key]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return Entry{}, ErrNotFound
	}
	e := rec.entry(key)
	e.Rank = countAbove(s.root, rec.total) + 1
	return e, nil
}

// TopN returns the top n donors.
func (s *TreapStore) TopN(ctx context.Context, n int) ([]Entry, error) {
	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, min(n, len(s.byKey)))
	collect(s.root, n, s.byKey, &out)
	assignRanksWithTies(out)
	return out, nil
}

// All returns every donor in rank order.
func (s *TreapStore) All(ctx context.Context) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, len(s.byKey))
	collect(s.root, len(s.byKey), s.byKey, &out)
	assignRanksWithTies(out)
	return out
}

// Count returns the number of donors.
func (s *TreapStore) Count(ctx context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byKey)
}

// Reset drops every donor and restarts first-contribution ordering.
func (s *TreapStore) Reset(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.root = nil
	s.byKey = make(map[string]*record)
	s.nextSeq = 0
}

// assignRanksWithTies gives equal totals the same rank; the next distinct
// total is ranked by its position (1, 1, 3).
func assignRanksWithTies(entries []Entry) {
	for i := range entries {
		if i > 0 && entries[i].Total == entries[i-1].Total {
			entries[i].Rank = entries[i-1].Rank
			continue
		}
		entries[i].Rank = i + 1
	}
}
