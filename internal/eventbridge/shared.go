package eventbridge

import "sync"

// SharedState holds the state both workers read and write: the anti-echo
// lock and the current fan/flap level cache.
//
// The lock is set by the dispatcher after it successfully issues a hub
// action, and cleared by the poller once it has consumed the next poll
// result. While set, poll results are treated as visualization-only.
type SharedState struct {
	mu        sync.Mutex
	locked    bool
	fanLevel  int
	flapLevel int
}

// NewSharedState returns an unlocked state with both levels at zero.
func NewSharedState() *SharedState {
	return &SharedState{}
}

// Locked reports whether the anti-echo lock is set.
func (s *SharedState) Locked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked
}

// SetLock sets or clears the anti-echo lock.
func (s *SharedState) SetLock(locked bool) {
	s.mu.Lock()
	s.locked = locked
	s.mu.Unlock()
}

// TakeLock clears the anti-echo lock and reports whether it was set.
// Reading and clearing happen under one acquisition, so a SetLock(true)
// that lands after TakeLock survives until the next call.
func (s *SharedState) TakeLock() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	locked := s.locked
	s.locked = false
	return locked
}

// FanLevel returns the last known fan level.
func (s *SharedState) FanLevel() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fanLevel
}

// SetFanLevel records the fan level reported by the hub.
func (s *SharedState) SetFanLevel(level int) {
	s.mu.Lock()
	s.fanLevel = level
	s.mu.Unlock()
}

// FlapLevel returns the last known flap level.
func (s *SharedState) FlapLevel() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flapLevel
}

// SetFlapLevel records the flap level reported by the hub.
func (s *SharedState) SetFlapLevel(level int) {
	s.mu.Lock()
	s.flapLevel = level
	s.mu.Unlock()
}

// Snapshot returns the lock and both levels under a single acquisition.
func (s *SharedState) Snapshot() (locked bool, fan, flap int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked, s.fanLevel, s.flapLevel
}
