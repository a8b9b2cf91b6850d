package session

import (
	"hash/fnv"
	"sync"
)

// shardCount is a power of two so the shard index is a cheap mask.
const shardCount = 32

// store is a sharded session map. Insertion and lookup of distinct keys run
// on independent shard locks, so sessions do not contend with each other;
// per-session exclusivity comes from each State's own mutex, not from the
// store.
type store struct {
	shards [shardCount]shard
}

type shard struct {
	mu       sync.RWMutex
	sessions map[string]*State
}

func newStore() *store {
	s := &store{}
	for i := range s.shards {
		s.shards[i].sessions = make(map[string]*State)
	}
	return s
}

func (s *store) shardFor(id string) *shard {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &s.shards[h.Sum32()&(shardCount-1)]
}

// get returns the session for id, if present.
func (s *store) get(id string) (*State, bool) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	state, ok := sh.sessions[id]
	return state, ok
}

// getOrCreate returns the session for id, creating it with init when absent.
// The second return value reports whether the session was created.
func (s *store) getOrCreate(id string, init func() *State) (*State, bool) {
	sh := s.shardFor(id)

	sh.mu.RLock()
	state, ok := sh.sessions[id]
	sh.mu.RUnlock()
	if ok {
		return state, false
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if state, ok := sh.sessions[id]; ok {
		return state, false
	}
	state = init()
	sh.sessions[id] = state
	return state, true
}

// delete removes the session for id, reporting whether it existed.
func (s *store) delete(id string) bool {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.sessions[id]; !ok {
		return false
	}
	delete(sh.sessions, id)
	return true
}

// count returns the number of live sessions.
func (s *store) count() int {
	total := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		total += len(sh.sessions)
		sh.mu.RUnlock()
	}
	return total
}

// forEach calls fn for every live session. fn must not call back into the
// store for the same shard.
func (s *store) forEach(fn func(id string, state *State)) {
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		snapshot := make(map[string]*State, len(sh.sessions))
		for id, state := range sh.sessions {
			snapshot[id] = state
		}
		sh.mu.RUnlock()

		for id, state := range snapshot {
			fn(id, state)
		}
	}
}
