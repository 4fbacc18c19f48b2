package telemetry

import (
	"testing"

	"go.opentelemetry.io/otel/metric/noop"
)

func TestNew_WithExplicitMeter(t *testing.T) {
	m, err := New(noop.NewMeterProvider().Meter("test"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// recording on a no-op provider must be safe
	m.ConnectionOpened(1)
	m.ConnectionClosed(1)
	m.MessagePosted(1)
	m.EventRejected(1, "empty")
	m.TypingChanged(1, true)
	m.BroadcastDelivered(1, 3)
	m.BroadcastDropped(1, 1)
	m.NotificationSent(false)
}

func TestNew_GlobalProvider(t *testing.T) {
	if _, err := New(nil); err != nil {
		t.Fatalf("New(nil) error = %v", err)
	}
}
