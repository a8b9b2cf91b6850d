package session

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func newState(id string) *State {
	now := time.Now()
	return &State{id: id, sampleRate: 16000, createdAt: now, lastActivity: now}
}

func TestStoreGetOrCreate(t *testing.T) {
	s := newStore()

	state, created := s.getOrCreate("a", func() *State { return newState("a") })
	if !created {
		t.Error("First getOrCreate should create")
	}
	if state.id != "a" {
		t.Errorf("Expected id a, got %s", state.id)
	}

	again, created := s.getOrCreate("a", func() *State { return newState("a") })
	if created {
		t.Error("Second getOrCreate should not create")
	}
	if again != state {
		t.Error("Expected the same state instance")
	}
}

func TestStoreDelete(t *testing.T) {
	s := newStore()
	s.getOrCreate("a", func() *State { return newState("a") })

	if !s.delete("a") {
		t.Error("Deleting an existing session should report true")
	}
	if s.delete("a") {
		t.Error("Deleting twice should report false")
	}
	if _, ok := s.get("a"); ok {
		t.Error("Deleted session should not be retrievable")
	}
}

func TestStoreCountAndForEach(t *testing.T) {
	s := newStore()
	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("session-%d", i)
		s.getOrCreate(id, func() *State { return newState(id) })
	}

	if s.count() != 50 {
		t.Errorf("Expected 50 sessions, got %d", s.count())
	}

	seen := make(map[string]bool)
	s.forEach(func(id string, state *State) {
		seen[id] = true
	})
	if len(seen) != 50 {
		t.Errorf("forEach visited %d sessions, expected 50", len(seen))
	}
}

func TestStoreConcurrentAccess(t *testing.T) {
	s := newStore()
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				id := fmt.Sprintf("s-%d-%d", n, j)
				s.getOrCreate(id, func() *State { return newState(id) })
				s.get(id)
				if j%2 == 0 {
					s.delete(id)
				}
			}
		}(i)
	}
	wg.Wait()

	if s.count() != 16*50 {
		t.Errorf("Expected %d surviving sessions, got %d", 16*50, s.count())
	}
}
