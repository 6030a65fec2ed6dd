package inventory

import (
	"sort"
	"sync"
)

// keyLocker serializes ledger writes per StockKey inside one process. Row
// locks and the compare-and-set update cover writers in other processes.
type keyLocker struct {
	mu    sync.Mutex
	locks map[StockKey]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocker() *keyLocker {
	return &keyLocker{locks: make(map[StockKey]*keyLock)}
}

// Lock acquires every key in a stable order and returns the release func.
func (l *keyLocker) Lock(keys ...StockKey) func() {
	ordered := uniqueSorted(keys)
	held := make([]*keyLock, 0, len(ordered))
	for _, key := range ordered {
		held = append(held, l.acquire(key))
	}
	return func() {
		for i := len(ordered) - 1; i >= 0; i-- {
			l.release(ordered[i], held[i])
		}
	}
}

func (l *keyLocker) acquire(key StockKey) *keyLock {
	l.mu.Lock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &keyLock{}
		l.locks[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return entry
}

func (l *keyLocker) release(key StockKey, entry *keyLock) {
	entry.mu.Unlock()

	l.mu.Lock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
}

func uniqueSorted(keys []StockKey) []StockKey {
	out := make([]StockKey, 0, len(keys))
	seen := make(map[StockKey]struct{}, len(keys))
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].less(out[j]) })
	return out
}
