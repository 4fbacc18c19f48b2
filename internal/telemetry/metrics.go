// Package telemetry records real-time session metrics through OpenTelemetry.
// Setup installs an exporting provider; without it the global no-op provider is used.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "debatehall"

// Metrics implements the hub and router observers
type Metrics struct {
	connections   metric.Int64UpDownCounter
	messages      metric.Int64Counter
	rejected      metric.Int64Counter
	typing        metric.Int64Counter
	delivered     metric.Int64Counter
	dropped       metric.Int64Counter
	notifications metric.Int64Counter
}

// New builds the instruments on meter; a nil meter uses the global provider
func New(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}

	m := &Metrics{}
	var err error
	if m.connections, err = meter.Int64UpDownCounter("debatehall_connections_active",
		metric.WithDescription("Open real-time connections")); err != nil {
		return nil, fmt.Errorf("connections instrument: %w", err)
	}
	if m.messages, err = meter.Int64Counter("debatehall_messages_total",
		metric.WithDescription("Chat messages appended")); err != nil {
		return nil, fmt.Errorf("messages instrument: %w", err)
	}
	if m.rejected, err = meter.Int64Counter("debatehall_events_rejected_total",
		metric.WithDescription("Inbound events answered with an error")); err != nil {
		return nil, fmt.Errorf("rejected instrument: %w", err)
	}
	if m.typing, err = meter.Int64Counter("debatehall_typing_updates_total",
		metric.WithDescription("Typing indicator changes broadcast")); err != nil {
		return nil, fmt.Errorf("typing instrument: %w", err)
	}
	if m.delivered, err = meter.Int64Counter("debatehall_broadcast_delivered_total",
		metric.WithDescription("Frames enqueued to connections")); err != nil {
		return nil, fmt.Errorf("delivered instrument: %w", err)
	}
	if m.dropped, err = meter.Int64Counter("debatehall_broadcast_dropped_total",
		metric.WithDescription("Frames dropped on full or closed connections")); err != nil {
		return nil, fmt.Errorf("dropped instrument: %w", err)
	}
	if m.notifications, err = meter.Int64Counter("debatehall_notifications_total",
		metric.WithDescription("Message posted notifications handed to the sink")); err != nil {
		return nil, fmt.Errorf("notifications instrument: %w", err)
	}
	return m, nil
}

func session(sessionID int64) metric.MeasurementOption {
	return metric.WithAttributes(attribute.Int64("session_id", sessionID))
}

func (m *Metrics) ConnectionOpened(sessionID int64) {
	m.connections.Add(context.Background(), 1, session(sessionID))
}

func (m *Metrics) ConnectionClosed(sessionID int64) {
	m.connections.Add(context.Background(), -1, session(sessionID))
}

func (m *Metrics) MessagePosted(sessionID int64) {
	m.messages.Add(context.Background(), 1, session(sessionID))
}

func (m *Metrics) EventRejected(sessionID int64, reason string) {
	m.rejected.Add(context.Background(), 1, metric.WithAttributes(
		attribute.Int64("session_id", sessionID),
		attribute.String("reason", reason),
	))
}

func (m *Metrics) TypingChanged(sessionID int64, typing bool) {
	m.typing.Add(context.Background(), 1, metric.WithAttributes(
		attribute.Int64("session_id", sessionID),
		attribute.Bool("is_typing", typing),
	))
}

func (m *Metrics) BroadcastDelivered(sessionID int64, count int) {
	m.delivered.Add(context.Background(), int64(count), session(sessionID))
}

func (m *Metrics) BroadcastDropped(sessionID int64, count int) {
	m.dropped.Add(context.Background(), int64(count), session(sessionID))
}

func (m *Metrics) NotificationSent(ok bool) {
	m.notifications.Add(context.Background(), 1, metric.WithAttributes(attribute.Bool("ok", ok)))
}
