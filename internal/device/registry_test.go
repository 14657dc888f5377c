package device

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/nerrad567/localtuya-core/internal/tuya"
)

func newRegistryClient(t *testing.T, id string, dev *fakeDevice) *Client {
	t.Helper()

	identity := testIdentity()
	identity.ID = id
	c, err := New(identity, testProfile(t), Options{Dial: dev.dial, Scheduler: newManualScheduler()})
	if err != nil {
		t.Fatalf("New(%s) error = %v", id, err)
	}
	return c
}

func TestRegistryAddGetRemove(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	dev := newFakeDevice(heaterState())
	b := newRegistryClient(t, "dev-b", dev)
	a := newRegistryClient(t, "dev-a", dev)

	for _, c := range []*Client{b, a} {
		if err := r.Add(c); err != nil {
			t.Fatalf("Add(%s) error = %v", c.ID(), err)
		}
	}
	if err := r.Add(a); !errors.Is(err, ErrDeviceExists) {
		t.Errorf("duplicate Add() error = %v, want ErrDeviceExists", err)
	}

	got, err := r.Get("dev-a")
	if err != nil || got != a {
		t.Fatalf("Get(dev-a) = %v, %v", got, err)
	}
	if _, err := r.Get("missing"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrDeviceNotFound", err)
	}

	list := r.List()
	if len(list) != 2 || list[0].ID() != "dev-a" || list[1].ID() != "dev-b" {
		t.Errorf("List() order = %v", []string{list[0].ID(), list[1].ID()})
	}

	if err := r.Remove("dev-a"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if r.Count() != 1 {
		t.Errorf("Count() = %d, want 1", r.Count())
	}
	if err := a.Refresh(context.Background()); !errors.Is(err, ErrClientClosed) {
		t.Errorf("removed client Refresh() error = %v, want ErrClientClosed", err)
	}
	if err := r.Remove("dev-a"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("second Remove() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestRegistrySubscribe(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	dev := newFakeDevice(heaterState())
	c := newRegistryClient(t, "dev-a", dev)
	if err := r.Add(c); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	var (
		mu  sync.Mutex
		got []StateChange
	)
	unsubscribe := r.Subscribe(func(change StateChange) {
		mu.Lock()
		got = append(got, change)
		mu.Unlock()
	})

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	unsubscribe()
	if err := c.ForceRefresh(context.Background()); err != nil {
		t.Fatalf("ForceRefresh() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("changes = %d, want 1", len(got))
	}
	if got[0].DeviceID != "dev-a" || got[0].Source != SourceRefresh {
		t.Errorf("change = %+v", got[0])
	}
}

func TestRegistryRefreshAll(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	healthy := newFakeDevice(heaterState())
	broken := newFakeDevice(heaterState())
	broken.fail(true, 0)

	for id, dev := range map[string]*fakeDevice{"dev-ok": healthy, "dev-broken": broken} {
		if err := r.Add(newRegistryClient(t, id, dev)); err != nil {
			t.Fatalf("Add(%s) error = %v", id, err)
		}
	}

	failed, err := r.RefreshAll(context.Background())
	if failed != 1 {
		t.Errorf("failed = %d, want 1", failed)
	}
	if !errors.Is(err, tuya.ErrConnection) {
		t.Errorf("RefreshAll() error = %v, want ErrConnection", err)
	}

	stats := r.Stats()
	if stats.TotalDevices != 2 || stats.ValidCaches != 1 || stats.ConnectedDevices != 1 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestRegistryClose(t *testing.T) {
	r := NewRegistry()
	dev := newFakeDevice(heaterState())
	c := newRegistryClient(t, "dev-a", dev)
	if err := r.Add(c); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if r.Count() != 0 {
		t.Errorf("Count() after Close = %d, want 0", r.Count())
	}
	if _, err := c.SetPropertiesAsync(map[string]any{"power": true}); !errors.Is(err, ErrClientClosed) {
		t.Errorf("SetPropertiesAsync() error = %v, want ErrClientClosed", err)
	}
}
