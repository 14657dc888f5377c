package device

import (
	"time"

	"github.com/nerrad567/localtuya-core/internal/tuya"
)

// observed is one cached raw datapoint and when it was reported.
type observed struct {
	value any
	at    time.Time
}

// cachedState is the last raw state reported by the device.
//
// A full STATUS replaces it wholesale; a partial report is merged. Each
// datapoint keeps its own observation time so that merged values age
// independently of the last full refresh. Not safe for concurrent use;
// guarded by Client.mu.
type cachedState struct {
	values      map[string]observed
	refreshedAt time.Time // last full refresh, never moves backwards
	valid       bool

	// retained holds the values dropped by invalidate. Reads never see
	// them; they only serve as the base for bit and blob packing.
	retained map[string]any
}

// stamp returns now, or the previous refresh time if the clock stepped back.
func (s *cachedState) stamp(now time.Time) time.Time {
	if now.Before(s.refreshedAt) {
		return s.refreshedAt
	}
	return now
}

// replace installs a complete datapoint map.
func (s *cachedState) replace(dps tuya.DPS, now time.Time) {
	now = s.stamp(now)
	s.values = make(map[string]observed, len(dps))
	for dp, v := range dps {
		s.values[dp] = observed{value: v, at: now}
	}
	s.refreshedAt = now
	s.valid = true
	s.retained = nil
}

// merge folds a partial report into the cache without touching the
// refresh time.
func (s *cachedState) merge(dps tuya.DPS, now time.Time) {
	if len(dps) == 0 {
		return
	}
	now = s.stamp(now)
	if s.values == nil {
		s.values = make(map[string]observed, len(dps))
	}
	for dp, v := range dps {
		s.values[dp] = observed{value: v, at: now}
	}
}

// invalidate drops every cached value from reads. The next refresh is
// always due.
func (s *cachedState) invalidate() {
	if len(s.values) > 0 {
		if s.retained == nil {
			s.retained = make(map[string]any, len(s.values))
		}
		for dp, o := range s.values {
			s.retained[dp] = o.value
		}
	}
	s.values = nil
	s.valid = false
}

// fresh returns the cached raw value of dp if it is within horizon.
func (s *cachedState) fresh(dp string, now time.Time, horizon time.Duration) (any, bool) {
	o, ok := s.values[dp]
	if !ok || now.Sub(o.at) > horizon {
		return nil, false
	}
	return o.value, true
}

// last returns the most recent raw value of dp regardless of age,
// including values retained across an invalidation.
func (s *cachedState) last(dp string) (any, bool) {
	if o, ok := s.values[dp]; ok {
		return o.value, true
	}
	v, ok := s.retained[dp]
	return v, ok
}

// stale reports whether a full refresh is due.
func (s *cachedState) stale(now time.Time, horizon time.Duration) bool {
	return !s.valid || now.Sub(s.refreshedAt) > horizon
}

// snapshot copies every cached value.
func (s *cachedState) snapshot() tuya.DPS {
	out := make(tuya.DPS, len(s.values))
	for dp, o := range s.values {
		out[dp] = o.value
	}
	return out
}
