package device

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/localtuya-core/internal/profile"
	"github.com/nerrad567/localtuya-core/internal/tuya"
)

const testProfileYAML = `
id: test_heater
name: "{device_id} heater"
primary:
  entity: climate
  properties: [power, target_temperature, current_temperature, mode]
datapoints:
  - {id: "1", type: boolean, property: power}
  - id: "2"
    type: integer
    property: target_temperature_c
    transform: {type: scale, scale: 1, min: 5, max: 35}
  - id: "3"
    type: integer
    property: current_temperature
    readonly: true
    transform: {type: scale, scale: 10}
  - id: "4"
    type: string
    property: mode
    transform:
      type: enum
      values: {low: "1", high: "2"}
  - id: "5"
    type: integer
    property: alarm_mute
    transform: {type: bitfield, offset: 4, width: 1}
  - id: "19"
    type: string
    property: unit
    transform:
      type: enum
      values: {celsius: "c", fahrenheit: "f"}
  - id: "24"
    type: integer
    property: target_temperature_f
    transform: {type: scale, scale: 1, min: 41, max: 95}
redirects:
  - property: target_temperature
    selector: unit
    targets: {celsius: target_temperature_c, fahrenheit: target_temperature_f}
    default: target_temperature_c
`

func testProfile(t *testing.T) *profile.Profile {
	t.Helper()
	p, err := profile.Parse([]byte(testProfileYAML), "")
	if err != nil {
		t.Fatalf("profile.Parse() error = %v", err)
	}
	return p
}

func testIdentity() Identity {
	return Identity{
		ID:       "bf0123456789abcdef",
		Address:  "127.0.0.1",
		LocalKey: "0123456789abcdef",
	}
}

// fakeRequest is one request seen by a fakeDevice.
type fakeRequest struct {
	kind tuya.CommandKind
	dps  tuya.DPS
}

// fakeDevice is an in-memory device. It is its own tuya.Connector; every
// dial reopens it.
type fakeDevice struct {
	mu       sync.Mutex
	state    tuya.DPS
	requests []fakeRequest
	dials    int
	closed   bool

	// failures fails the next n requests; failAll fails every request.
	failures int
	failAll  bool

	// echoSet makes SET responses report the written datapoints.
	echoSet bool

	// block, when set, holds every request until closed.
	block   chan struct{}
	started chan struct{}
}

var _ tuya.Connector = (*fakeDevice)(nil)

func newFakeDevice(state tuya.DPS) *fakeDevice {
	return &fakeDevice{state: state.Clone()}
}

func (d *fakeDevice) dial(context.Context, tuya.Config) (tuya.Connector, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	d.closed = false
	return d, nil
}

func (d *fakeDevice) Request(ctx context.Context, kind tuya.CommandKind, dps tuya.DPS) (tuya.DPS, error) {
	d.mu.Lock()
	d.requests = append(d.requests, fakeRequest{kind: kind, dps: dps.Clone()})
	block, started := d.block, d.started
	d.mu.Unlock()

	if block != nil {
		if started != nil {
			select {
			case started <- struct{}{}:
			default:
			}
		}
		select {
		case <-block:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", tuya.ErrConnection, ctx.Err())
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.failAll || d.failures > 0 {
		if d.failures > 0 {
			d.failures--
		}
		return nil, fmt.Errorf("%w: injected failure", tuya.ErrConnection)
	}

	switch kind {
	case tuya.KindStatus:
		return d.state.Clone(), nil
	case tuya.KindSet:
		d.state.Merge(dps)
		if d.echoSet {
			return dps.Clone(), nil
		}
		return tuya.DPS{}, nil
	default:
		return nil, nil
	}
}

func (d *fakeDevice) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.closed
}

func (d *fakeDevice) Stats() tuya.Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return tuya.Stats{RequestsTotal: uint64(len(d.requests)), Connected: !d.closed}
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

func (d *fakeDevice) set(dp string, v any) {
	d.mu.Lock()
	d.state[dp] = v
	d.mu.Unlock()
}

func (d *fakeDevice) fail(all bool, n int) {
	d.mu.Lock()
	d.failAll = all
	d.failures = n
	d.mu.Unlock()
}

// requestsOf returns the requests of one kind.
func (d *fakeDevice) requestsOf(kind tuya.CommandKind) []fakeRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []fakeRequest
	for _, r := range d.requests {
		if r.kind == kind {
			out = append(out, r)
		}
	}
	return out
}

// manualScheduler only fires when told to.
type manualScheduler struct {
	mu    sync.Mutex
	armed map[string]func()
	arms  int
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{armed: make(map[string]func())}
}

func (s *manualScheduler) Arm(key string, _ time.Duration, fn func()) {
	s.mu.Lock()
	s.armed[key] = fn
	s.arms++
	s.mu.Unlock()
}

func (s *manualScheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.armed[key]
	delete(s.armed, key)
	return ok
}

func (s *manualScheduler) Stop() {
	s.mu.Lock()
	s.armed = make(map[string]func())
	s.mu.Unlock()
}

// fireAll runs every armed timer on the calling goroutine.
func (s *manualScheduler) fireAll() int {
	s.mu.Lock()
	fns := make([]func(), 0, len(s.armed))
	for key, fn := range s.armed {
		fns = append(fns, fn)
		delete(s.armed, key)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	return len(fns)
}

func (s *manualScheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.armed)
}

// fakeClock is a settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// testRig bundles a client with its fakes.
type testRig struct {
	client *Client
	device *fakeDevice
	sched  *manualScheduler
	clock  *fakeClock
}

func newTestRig(t *testing.T, state tuya.DPS, opts Options) *testRig {
	t.Helper()

	rig := &testRig{
		device: newFakeDevice(state),
		sched:  newManualScheduler(),
		clock:  newFakeClock(),
	}
	opts.Dial = rig.device.dial
	opts.Scheduler = rig.sched
	opts.Clock = rig.clock.Now

	c, err := New(testIdentity(), testProfile(t), opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	rig.client = c
	return rig
}

// get fails the test if the property is not exposed.
func (r *testRig) get(t *testing.T, name string) any {
	t.Helper()
	v, err := r.client.GetProperty(name)
	if err != nil {
		t.Fatalf("GetProperty(%q) error = %v", name, err)
	}
	return v
}

func (r *testRig) refresh(t *testing.T) {
	t.Helper()
	if err := r.client.ForceRefresh(context.Background()); err != nil {
		t.Fatalf("ForceRefresh() error = %v", err)
	}
}
