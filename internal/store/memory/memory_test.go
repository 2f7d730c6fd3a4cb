package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"syncplane/internal/model"
	"syncplane/internal/store"
)

func TestStore_CreateMachineConflict(t *testing.T) {
	s := New()
	ctx := context.Background()
	m := model.Machine{ID: "m1", AccountID: "a", Metadata: "meta", MetadataVersion: 1, LastActiveAt: 1000, CreatedAt: 1000, UpdatedAt: 1000}

	if err := s.CreateMachine(ctx, m); err != nil {
		t.Fatalf("CreateMachine: %v", err)
	}
	if err := s.CreateMachine(ctx, m); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	// Same id under another account is a distinct row.
	other := m
	other.AccountID = "b"
	if err := s.CreateMachine(ctx, other); err != nil {
		t.Fatalf("CreateMachine other account: %v", err)
	}
}

func TestStore_FindMachineNotFound(t *testing.T) {
	s := New()
	_, err := s.FindMachine(context.Background(), "a", "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_AllocateSeqConcurrent(t *testing.T) {
	s := New()
	ctx := context.Background()
	const n = 100

	results := make([]int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			seq, err := s.AllocateSeq(ctx, "a")
			if err != nil {
				t.Errorf("AllocateSeq: %v", err)
				return
			}
			results[i] = seq
		}(i)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i] < results[j] })
	for i, seq := range results {
		if seq != int64(i+1) {
			t.Fatalf("expected %d distinct increasing values, got %v", n, results)
		}
	}

	// Accounts do not share counters.
	seq, _ := s.AllocateSeq(ctx, "b")
	if seq != 1 {
		t.Fatalf("expected fresh counter for account b, got %d", seq)
	}
}

func TestStore_DeactivateMachineCAS(t *testing.T) {
	s := New()
	ctx := context.Background()
	m := model.Machine{ID: "m1", AccountID: "a", Active: true, LastActiveAt: 1000}
	if err := s.CreateMachine(ctx, m); err != nil {
		t.Fatalf("CreateMachine: %v", err)
	}

	ok, err := s.DeactivateMachine(ctx, "a", "m1", 2000)
	if err != nil || !ok {
		t.Fatalf("expected deactivate to match, got ok=%v err=%v", ok, err)
	}

	// Already inactive: the compare-and-set must not match again.
	ok, err = s.DeactivateMachine(ctx, "a", "m1", 3000)
	if err != nil || ok {
		t.Fatalf("expected no match on inactive row, got ok=%v err=%v", ok, err)
	}
}

func TestStore_StaleScans(t *testing.T) {
	s := New()
	ctx := context.Background()

	_ = s.CreateMachine(ctx, model.Machine{ID: "stale", AccountID: "a", Active: true, LastActiveAt: 100})
	_ = s.CreateMachine(ctx, model.Machine{ID: "fresh", AccountID: "a", Active: true, LastActiveAt: 900})
	_ = s.CreateMachine(ctx, model.Machine{ID: "inactive", AccountID: "a", Active: false, LastActiveAt: 50})

	stale, err := s.FindStaleActiveMachines(ctx, 500)
	if err != nil {
		t.Fatalf("FindStaleActiveMachines: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != "stale" {
		t.Fatalf("expected only the stale active machine, got %v", stale)
	}
}

func TestStore_TouchMachineActivity(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.CreateMachine(ctx, model.Machine{ID: "m1", AccountID: "a", Active: false, LastActiveAt: 1000})

	ok, err := s.TouchMachineActivity(ctx, "a", "m1", 2000, 2000)
	if err != nil || !ok {
		t.Fatalf("expected touch to succeed, got ok=%v err=%v", ok, err)
	}
	m, err := s.FindMachine(ctx, "a", "m1")
	if err != nil {
		t.Fatalf("FindMachine: %v", err)
	}
	if !m.Active || m.LastActiveAt != 2000 {
		t.Fatalf("expected active with advanced lastActiveAt, got %+v", m)
	}

	// A stale ping must not move lastActiveAt backwards.
	if _, err := s.TouchMachineActivity(ctx, "a", "m1", 1500, 2500); err != nil {
		t.Fatalf("TouchMachineActivity: %v", err)
	}
	m, _ = s.FindMachine(ctx, "a", "m1")
	if m.LastActiveAt != 2000 {
		t.Fatalf("expected lastActiveAt unchanged, got %d", m.LastActiveAt)
	}

	ok, _ = s.TouchMachineActivity(ctx, "a", "missing", 2000, 2000)
	if ok {
		t.Fatalf("expected touch on missing machine to report false")
	}
}

func TestStore_GetOrCreateSessionByTag(t *testing.T) {
	s := New()
	ctx := context.Background()

	first, created, err := s.GetOrCreateSession(ctx, model.Session{ID: "s1", AccountID: "a", Tag: "t1", LastActiveAt: 1000})
	if err != nil || !created {
		t.Fatalf("expected create, got created=%v err=%v", created, err)
	}

	second, created, err := s.GetOrCreateSession(ctx, model.Session{ID: "s2", AccountID: "a", Tag: "t1", LastActiveAt: 2000})
	if err != nil || created {
		t.Fatalf("expected existing row, got created=%v err=%v", created, err)
	}
	if second.ID != first.ID || second.LastActiveAt != 1000 {
		t.Fatalf("expected winner's record unchanged, got %+v", second)
	}
}

func TestStore_DeactivateSessionCAS(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, _, _ = s.GetOrCreateSession(ctx, model.Session{ID: "s1", AccountID: "a", Tag: "t1", Active: true, LastActiveAt: 100})

	ok, err := s.DeactivateSession(ctx, "a", "s1", 200)
	if err != nil || !ok {
		t.Fatalf("expected deactivate to match, got ok=%v err=%v", ok, err)
	}
	ok, _ = s.DeactivateSession(ctx, "a", "s1", 300)
	if ok {
		t.Fatalf("expected no match on inactive session")
	}
}
