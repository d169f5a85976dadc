package gate

import "sync"

type keyedEntry struct {
	sync.Mutex
	refs int
}

// keyedMutex serializes callers that share a key. Entries are reference
// counted and removed when the last holder unlocks, so the map only holds
// identities with a submission in flight.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{
		entries: make(map[string]*keyedEntry),
	}
}

// Lock blocks until the key is free and returns the function that releases
// it.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &keyedEntry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.Lock()

	return func() {
		e.Unlock()

		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
