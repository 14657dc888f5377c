package tuya

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/localtuya-core/internal/device"
)

type staticStats device.RegistryStats

func (s staticStats) Stats() device.RegistryStats { return device.RegistryStats(s) }

func TestDetermineStatus(t *testing.T) {
	tests := []struct {
		name       string
		publisher  HealthPublisher
		stats      StatsSource
		wantStatus HealthStatus
		wantReason string
	}{
		{
			name:       "no publisher",
			wantStatus: HealthDegraded,
			wantReason: "MQTT disconnected",
		},
		{
			name:       "mqtt down",
			publisher:  &MockMQTTClient{connected: false},
			stats:      staticStats{TotalDevices: 1, ConnectedDevices: 1},
			wantStatus: HealthDegraded,
			wantReason: "MQTT disconnected",
		},
		{
			name:       "device unreachable",
			publisher:  NewMockMQTTClient(),
			stats:      staticStats{TotalDevices: 3, ConnectedDevices: 2},
			wantStatus: HealthDegraded,
			wantReason: "1 of 3 devices unreachable",
		},
		{
			name:       "healthy",
			publisher:  NewMockMQTTClient(),
			stats:      staticStats{TotalDevices: 2, ConnectedDevices: 2},
			wantStatus: HealthHealthy,
		},
		{
			name:       "no devices",
			publisher:  NewMockMQTTClient(),
			wantStatus: HealthHealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthReporter(HealthReporterConfig{BridgeID: "b", Publisher: tt.publisher, Stats: tt.stats})
			status, reason := h.determineStatus()
			if status != tt.wantStatus || reason != tt.wantReason {
				t.Errorf("determineStatus() = %q, %q; want %q, %q", status, reason, tt.wantStatus, tt.wantReason)
			}
		})
	}
}

func TestHealthReporterPublishes(t *testing.T) {
	mq := NewMockMQTTClient()
	h := NewHealthReporter(HealthReporterConfig{
		BridgeID:  "bridge-1",
		Version:   "1.2.3",
		Interval:  10 * time.Millisecond,
		Publisher: mq,
		Stats:     staticStats{TotalDevices: 2, ConnectedDevices: 1, ValidCaches: 1},
	})

	h.Start(context.Background())
	waitFor(t, "periodic health", func() bool { return len(mq.publishedTo("localtuya/health/bridge")) >= 2 })
	h.Stop()
	h.Stop()

	msgs := mq.publishedTo("localtuya/health/bridge")
	var first, last HealthMessage
	if err := json.Unmarshal(msgs[0].Payload, &first); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := json.Unmarshal(msgs[len(msgs)-1].Payload, &last); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if first.BridgeID != "bridge-1" || first.Version != "1.2.3" {
		t.Errorf("first = %+v", first)
	}
	if first.Status != HealthDegraded || first.Reason != "1 of 2 devices unreachable" {
		t.Errorf("first status = %q (%q)", first.Status, first.Reason)
	}
	if first.Devices.TotalDevices != 2 || first.Devices.ValidCaches != 1 {
		t.Errorf("first devices = %+v", first.Devices)
	}
	if last.Status != HealthStopping {
		t.Errorf("last status = %q, want stopping", last.Status)
	}
	for _, m := range msgs {
		if !m.Retained || m.QoS != 1 {
			t.Errorf("health published with qos=%d retained=%v", m.QoS, m.Retained)
		}
	}
}

func TestHealthReporterStopsOnContext(t *testing.T) {
	mq := NewMockMQTTClient()
	h := NewHealthReporter(HealthReporterConfig{BridgeID: "b", Interval: time.Hour, Publisher: mq})

	ctx, cancel := context.WithCancel(context.Background())
	h.Start(ctx)
	waitFor(t, "initial health", func() bool { return len(mq.publishedTo("localtuya/health/bridge")) == 1 })
	cancel()

	done := make(chan struct{})
	go func() {
		h.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not return after context cancellation")
	}
}

type failingPublisher struct{}

func (failingPublisher) Publish(string, []byte, byte, bool) error { return errors.New("broker gone") }
func (failingPublisher) IsConnected() bool                        { return true }

func TestHealthReporterPublishError(t *testing.T) {
	h := NewHealthReporter(HealthReporterConfig{BridgeID: "b", Publisher: failingPublisher{}})
	if err := h.PublishNow(); err == nil {
		t.Error("PublishNow() should return the publish error")
	}
	if err := h.PublishStarting(); err == nil {
		t.Error("PublishStarting() should return the publish error")
	}
}
