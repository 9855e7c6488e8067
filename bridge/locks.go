package bridge

import (
	"sort"
	"sync"
	"time"
)

// maxSessionLocks and sessionLockMaxAge bound the lock map per spec.md
// §4.7/§5: at-most-one-orchestrator-per-session is enforced by a per-session
// mutex, evicted once the map grows past maxSessionLocks entries or an entry
// has sat idle past sessionLockMaxAge. Grounded on dev/global_state.go's
// GlobalState, which tracks one mutable flag per running flow under a single
// mutex; here that's generalized to one mutex per session, held for a
// bounded map instead of the teacher's single always-resident struct.
const (
	maxSessionLocks  = 1000
	sessionLockMaxAge = time.Hour
)

type lockEntry struct {
	mu       sync.Mutex
	lastUsed time.Time
}

// sessionLocks implements the "at-most-one-orchestrator" guarantee
// (testable property 8). TryAcquire never blocks: a session already locked
// returns ok=false immediately, which callers surface to the client as
// Conflict.
type sessionLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{entries: make(map[string]*lockEntry)}
}

// TryAcquire attempts to take the lock for sessionId. On success it returns
// a release func that must be called exactly once (typically deferred)
// when the orchestrator run reaches LoopEventFinished.
func (l *sessionLocks) TryAcquire(sessionId string) (release func(), ok bool) {
	l.mu.Lock()
	entry, exists := l.entries[sessionId]
	if !exists {
		entry = &lockEntry{}
		l.entries[sessionId] = entry
	}
	entry.lastUsed = time.Now()
	l.mu.Unlock()

	if !entry.mu.TryLock() {
		return nil, false
	}

	var once sync.Once
	release = func() {
		once.Do(func() {
			entry.mu.Unlock()
			l.evict()
		})
	}
	return release, true
}

// evict prunes idle entries once the map exceeds maxSessionLocks, and always
// prunes entries older than sessionLockMaxAge. An entry currently held
// (TryLock fails) is never evicted out from under its holder.
func (l *sessionLocks) evict() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	for id, entry := range l.entries {
		if now.Sub(entry.lastUsed) <= sessionLockMaxAge {
			continue
		}
		if entry.mu.TryLock() {
			entry.mu.Unlock()
			delete(l.entries, id)
		}
	}

	if len(l.entries) <= maxSessionLocks {
		return
	}

	type candidate struct {
		id       string
		lastUsed time.Time
	}
	candidates := make([]candidate, 0, len(l.entries))
	for id, entry := range l.entries {
		candidates = append(candidates, candidate{id, entry.lastUsed})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].lastUsed.Before(candidates[j].lastUsed) })

	for _, c := range candidates {
		if len(l.entries) <= maxSessionLocks {
			return
		}
		entry := l.entries[c.id]
		if entry.mu.TryLock() {
			entry.mu.Unlock()
			delete(l.entries, c.id)
		}
	}
}
