package presence

import (
	"fmt"
	"sync"
	"testing"
)

func TestAddAndSnapshot(t *testing.T) {
	r := NewRegistry()

	snap := r.Add("g1", "alice")
	if len(snap) != 1 || snap[0] != "alice" {
		t.Fatalf("expected [alice], got %v", snap)
	}

	snap = r.Add("g1", "bob")
	if len(snap) != 2 {
		t.Fatalf("expected 2 users, got %v", snap)
	}
	// Snapshots are sorted.
	if snap[0] != "alice" || snap[1] != "bob" {
		t.Errorf("expected sorted snapshot, got %v", snap)
	}
}

func TestRemoveDeletesEmptyGroup(t *testing.T) {
	r := NewRegistry()

	r.Add("g1", "alice")
	snap := r.Remove("g1", "alice")
	if len(snap) != 0 {
		t.Errorf("expected empty snapshot, got %v", snap)
	}
	if r.Rooms() != 0 {
		t.Errorf("expected empty group to be deleted, %d rooms remain", r.Rooms())
	}
}

func TestMultipleConnectionsSameUser(t *testing.T) {
	r := NewRegistry()

	// Two tabs for the same user: user stays online until both disconnect.
	r.Add("g1", "alice")
	r.Add("g1", "alice")

	snap := r.Remove("g1", "alice")
	if len(snap) != 1 || snap[0] != "alice" {
		t.Fatalf("expected alice still present after one of two connections left, got %v", snap)
	}

	snap = r.Remove("g1", "alice")
	if len(snap) != 0 {
		t.Errorf("expected alice gone after last connection left, got %v", snap)
	}
}

func TestRemoveUnknown(t *testing.T) {
	r := NewRegistry()

	if snap := r.Remove("missing", "alice"); len(snap) != 0 {
		t.Errorf("expected empty snapshot for unknown group, got %v", snap)
	}

	r.Add("g1", "bob")
	if snap := r.Remove("g1", "alice"); len(snap) != 1 || snap[0] != "bob" {
		t.Errorf("removing a user who never joined must not disturb others, got %v", snap)
	}
}

func TestSnapshotUnknownGroup(t *testing.T) {
	r := NewRegistry()
	snap := r.Snapshot("nope")
	if snap == nil {
		t.Fatal("expected non-nil empty slice, got nil")
	}
	if len(snap) != 0 {
		t.Errorf("expected empty snapshot, got %v", snap)
	}
}

func TestConcurrentJoinDisconnect(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("user-%d", i)
			r.Add("g1", user)
			r.Remove("g1", user)
		}(i)
	}
	wg.Wait()

	if r.Rooms() != 0 {
		t.Errorf("expected no rooms after all users left, got %d (snapshot %v)",
			r.Rooms(), r.Snapshot("g1"))
	}
}
