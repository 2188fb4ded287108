package repository

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"testing"
)

func TestTreapStore_BasicOperations(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore()

	if count := store.Count(ctx); count != 0 {
		t.Errorf("expected count 0, got %d", count)
	}

	e, err := store.Add(ctx, "alice", "Alice", "Alice A.", 100, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Rank != 1 || e.Total != 100 {
		t.Errorf("expected rank 1 total 100, got %+v", e)
	}

	e, err = store.Add(ctx, "alice", "ALICE", "", 20, "https://cdn/a.png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Total != 120 {
		t.Errorf("expected total 120, got %d", e.Total)
	}
	if e.UniqueID != "Alice" {
		t.Errorf("expected first-seen identity to be kept, got %q", e.UniqueID)
	}
	if e.Label != "Alice A." {
		t.Errorf("empty label must not replace, got %q", e.Label)
	}
	if e.Avatar != "https://cdn/a.png" {
		t.Errorf("expected avatar to be set, got %q", e.Avatar)
	}
	if count := store.Count(ctx); count != 1 {
		t.Errorf("expected count 1, got %d", count)
	}

	got, err := store.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Total != 120 || got.Rank != 1 {
		t.Errorf("unexpected entry %+v", got)
	}
}

func TestTreapStore_LabelDefaultsToIdentity(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore()

	e, _ := store.Add(ctx, "bob", "bob", "", 5, "")
	if e.Label != "bob" {
		t.Errorf("expected label to default to identity, got %q", e.Label)
	}
}

func TestTreapStore_Ordering(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore()

	for _, d := range []struct {
		key   string
		coins int64
	}{{"a", 50}, {"b", 120}, {"c", 120}, {"d", 10}} {
		if _, err := store.Add(ctx, d.key, d.key, "", d.coins, ""); err != nil {
			t.Fatalf("add %s: %v", d.key, err)
		}
	}

	all := store.All(ctx)
	want := []struct {
		key   string
		total int64
		rank  int
	}{{"b", 120, 1}, {"c", 120, 1}, {"a", 50, 3}, {"d", 10, 4}}
	if len(all) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(all))
	}
	for i, w := range want {
		if all[i].Key != w.key || all[i].Total != w.total || all[i].Rank != w.rank {
			t.Errorf("position %d: want %+v, got %+v", i, w, all[i])
		}
	}

	top, err := store.TopN(ctx, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(top) != 2 || top[0].Key != "b" || top[1].Key != "c" {
		t.Errorf("unexpected top 2: %+v", top)
	}

	if e, _ := store.Get(ctx, "a"); e.Rank != 3 {
		t.Errorf("expected rank 3 for a, got %d", e.Rank)
	}
}

func TestTreapStore_TieKeepsFirstContributionOrder(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore()

	// c contributes first, b overtakes later but only matches c's total.
	_, _ = store.Add(ctx, "c", "c", "", 100, "")
	_, _ = store.Add(ctx, "b", "b", "", 40, "")
	_, _ = store.Add(ctx, "b", "b", "", 60, "")

	all := store.All(ctx)
	if all[0].Key != "c" || all[1].Key != "b" {
		t.Errorf("expected first contributor first among equals, got %s then %s", all[0].Key, all[1].Key)
	}
}

func TestTreapStore_Errors(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore()

	if _, err := store.Add(ctx, "", "x", "", 10, ""); !errors.Is(err, ErrEmptyKey) {
		t.Errorf("expected ErrEmptyKey, got %v", err)
	}
	if _, err := store.Add(ctx, "x", "x", "", 0, ""); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := store.Add(ctx, "x", "x", "", -5, ""); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.TopN(ctx, 0); !errors.Is(err, ErrInvalidLimit) {
		t.Errorf("expected ErrInvalidLimit, got %v", err)
	}
	if store.Count(ctx) != 0 {
		t.Errorf("rejected adds must not create donors")
	}
}

func TestTreapStore_Reset(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore()

	_, _ = store.Add(ctx, "a", "a", "", 10, "")
	_, _ = store.Add(ctx, "b", "b", "", 20, "")
	store.Reset(ctx)

	if store.Count(ctx) != 0 || len(store.All(ctx)) != 0 {
		t.Fatalf("expected empty store after reset")
	}
	e, _ := store.Add(ctx, "b", "b", "", 5, "")
	if e.Seq != 1 || e.Total != 5 {
		t.Errorf("expected fresh donor after reset, got %+v", e)
	}
}

func TestTreapStore_RankCorrectnessUnderRandomLoad(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewPCG(1, 2))
	store := NewTreapStore(WithPriority(rng.Uint64))

	totals := map[string]int64{}
	first := map[string]int{}
	for i := 0; i < 2000; i++ {
		key := fmt.Sprintf("donor-%d", rng.IntN(200))
		coins := int64(rng.IntN(50) + 1)
		if _, ok := first[key]; !ok {
			first[key] = len(first)
		}
		totals[key] += coins
		if _, err := store.Add(ctx, key, key, "", coins, ""); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	keys := make([]string, 0, len(totals))
	for k := range totals {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if totals[keys[i]] != totals[keys[j]] {
			return totals[keys[i]] > totals[keys[j]]
		}
		return first[keys[i]] < first[keys[j]]
	})

	all := store.All(ctx)
	if len(all) != len(keys) {
		t.Fatalf("expected %d donors, got %d", len(keys), len(all))
	}
	for i, k := range keys {
		if all[i].Key != k || all[i].Total != totals[k] {
			t.Fatalf("position %d: want %s/%d, got %s/%d", i, k, totals[k], all[i].Key, all[i].Total)
		}
		got, err := store.Get(ctx, k)
		if err != nil {
			t.Fatalf("get %s: %v", k, err)
		}
		if got.Rank != all[i].Rank {
			t.Fatalf("rank mismatch for %s: Get=%d All=%d", k, got.Rank, all[i].Rank)
		}
	}
	if nsize(store.root) != len(keys) {
		t.Errorf("size augmentation out of sync: %d vs %d", nsize(store.root), len(keys))
	}
}

func TestTreapStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore()

	const goroutines, perGoroutine = 8, 250
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				_, _ = store.Add(ctx, fmt.Sprintf("d-%d", i%20), "x", "", 1, "")
				_, _ = store.TopN(ctx, 5)
			}
		}(g)
	}
	wg.Wait()

	var sum int64
	for _, e := range store.All(ctx) {
		sum += e.Total
	}
	if sum != goroutines*perGoroutine {
		t.Errorf("expected %d coins in total, got %d", goroutines*perGoroutine, sum)
	}
}

func BenchmarkTreapStore_Add(b *testing.B) {
	ctx := context.Background()
	store := NewTreapStore()
	keys := make([]string, 10000)
	for i := range keys {
		keys[i] = fmt.Sprintf("donor-%d", i)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = store.Add(ctx, keys[i%len(keys)], "x", "", int64(i%97+1), "")
	}
}

func BenchmarkTreapStore_All(b *testing.B) {
	ctx := context.Background()
	store := NewTreapStore()
	for i := 0; i < 1000; i++ {
		_, _ = store.Add(ctx, fmt.Sprintf("donor-%d", i), "x", "", int64(i%97+1), "")
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = store.All(ctx)
	}
}
