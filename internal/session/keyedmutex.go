// ABOUTME: Per-key mutex used to serialize session starts for the same user
// ABOUTME: Locks are created on first use and kept for the process lifetime

package session

import "sync"

// keyedMutex hands out one mutex per key. Entries are never removed; the key
// space is the active workforce, which is small and bounded.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for key, creating it if needed. Returns the unlock
// function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
