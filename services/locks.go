package services

import "sync"

// keyedMutex hands out one mutex per aggregate key so check-then-act
// sequences on a given group or message are atomic with respect to
// other mutators of the same aggregate, while operations on disjoint
// aggregates interleave freely.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*lockEntry)}
}

// lock blocks until the key's mutex is held and returns the matching
// unlock. Entries are reference counted and removed once unused, so the
// map does not grow with the number of aggregates ever touched.
func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &lockEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.Lock()
	return func() {
		entry.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
