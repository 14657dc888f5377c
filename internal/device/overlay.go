package device

import (
	"time"

	"github.com/nerrad567/localtuya-core/internal/codec"
	"github.com/nerrad567/localtuya-core/internal/tuya"
)

// pendingWrite is a raw value written or anticipated but not yet confirmed.
type pendingWrite struct {
	value     any
	createdAt time.Time
}

// overlay holds pending writes that shadow the cached state.
//
// An entry is removed when it is superseded by a newer write to the same
// datapoint, when the device reports an equal value, or once it is older
// than timeout. Expired entries are dropped lazily on access. Guarded by
// Client.mu.
type overlay struct {
	entries map[string]pendingWrite
	timeout time.Duration
}

func newOverlay(timeout time.Duration) overlay {
	return overlay{entries: make(map[string]pendingWrite), timeout: timeout}
}

// put records (or supersedes) a pending value.
func (o *overlay) put(dp string, value any, now time.Time) {
	o.entries[dp] = pendingWrite{value: value, createdAt: now}
}

// get returns the pending value of dp if it has not expired.
func (o *overlay) get(dp string, now time.Time) (any, bool) {
	e, ok := o.entries[dp]
	if !ok {
		return nil, false
	}
	if now.Sub(e.createdAt) >= o.timeout {
		delete(o.entries, dp)
		return nil, false
	}
	return e.value, true
}

// confirm drops entries whose value the device has reported.
// It returns the number of entries removed.
func (o *overlay) confirm(dps tuya.DPS) int {
	removed := 0
	for dp, reported := range dps {
		if e, ok := o.entries[dp]; ok && codec.Equal(e.value, reported) {
			delete(o.entries, dp)
			removed++
		}
	}
	return removed
}

// active copies every unexpired entry.
func (o *overlay) active(now time.Time) tuya.DPS {
	out := make(tuya.DPS, len(o.entries))
	for dp := range o.entries {
		if v, ok := o.get(dp, now); ok {
			out[dp] = v
		}
	}
	return out
}

func (o *overlay) len() int {
	return len(o.entries)
}
