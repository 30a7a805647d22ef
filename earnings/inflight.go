package earnings

import "sync"

// InFlight tracks which pilot-days have a save running. It is the only
// mutable state shared between concurrent saves, and it is scoped per key:
// saves for different pilots never wait on each other.
type InFlight struct {
	mu   sync.Mutex
	keys map[Key]struct{}
}

func NewInFlight() *InFlight {
	return &InFlight{keys: make(map[Key]struct{})}
}

// TryAcquire marks key as saving. It returns false if key is already saving.
func (f *InFlight) TryAcquire(key Key) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, busy := f.keys[key]; busy {
		return false
	}
	f.keys[key] = struct{}{}
	return true
}

// Release clears key. Safe to call for keys that are not held.
func (f *InFlight) Release(key Key) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.keys, key)
}

func (f *InFlight) Busy(key Key) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, busy := f.keys[key]
	return busy
}
