package device

import (
	"sync"
	"time"
)

// Scheduler runs keyed one-shot timers. Arming a key that is already armed
// replaces the previous timer, so only the last arm fires.
//
// Implementations must be safe for concurrent use.
type Scheduler interface {
	// Arm schedules fn to run after d, cancelling any timer under key.
	Arm(key string, d time.Duration, fn func())

	// Cancel stops the timer under key. It reports whether one was armed.
	Cancel(key string) bool

	// Stop cancels every timer. Later Arm calls are ignored.
	Stop()
}

// Ensure TimerScheduler implements Scheduler.
var _ Scheduler = (*TimerScheduler)(nil)

// TimerScheduler is a Scheduler backed by time.AfterFunc.
type TimerScheduler struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

// NewTimerScheduler creates an empty scheduler.
func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{timers: make(map[string]*time.Timer)}
}

// Arm implements Scheduler.
func (s *TimerScheduler) Arm(key string, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armLocked(key, d, fn)
}

// armLocked replaces the timer under key. A timer that has already fired
// but not yet taken s.mu sees it was replaced and does not run fn.
func (s *TimerScheduler) armLocked(key string, d time.Duration, fn func()) {
	if s.stopped {
		return
	}
	if t, ok := s.timers[key]; ok {
		t.Stop()
	}

	var t *time.Timer
	t = time.AfterFunc(d, func() {
		s.mu.Lock()
		if s.timers[key] != t {
			s.mu.Unlock()
			return
		}
		delete(s.timers, key)
		s.mu.Unlock()
		fn()
	})
	s.timers[key] = t
}

// Cancel implements Scheduler.
func (s *TimerScheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.timers[key]
	if !ok {
		return false
	}
	delete(s.timers, key)
	return t.Stop()
}

// Stop implements Scheduler.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for key, t := range s.timers {
		t.Stop()
		delete(s.timers, key)
	}
}
