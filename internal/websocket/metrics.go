package websocket

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// hubMetrics are the hub's instruments. A nil *hubMetrics records nothing.
type hubMetrics struct {
	clients   metric.Int64UpDownCounter
	messages  metric.Int64Counter
	dropped   metric.Int64Counter
	connected metric.Int64Counter
}

func newHubMetrics(meter metric.Meter) (*hubMetrics, error) {
	if meter == nil {
		return nil, nil
	}

	var (
		m   hubMetrics
		err error
	)
	if m.clients, err = meter.Int64UpDownCounter("websocket_clients",
		metric.WithDescription("Currently connected websocket clients")); err != nil {
		return nil, err
	}
	if m.messages, err = meter.Int64Counter("websocket_messages_sent_total",
		metric.WithDescription("Messages queued to websocket clients, by type")); err != nil {
		return nil, err
	}
	if m.dropped, err = meter.Int64Counter("websocket_messages_dropped_total",
		metric.WithDescription("Broadcasts dropped because the hub or a client was saturated")); err != nil {
		return nil, err
	}
	if m.connected, err = meter.Int64Counter("websocket_connections_total",
		metric.WithDescription("Websocket connections accepted")); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *hubMetrics) clientJoined(ctx context.Context) {
	if m == nil {
		return
	}
	m.connected.Add(ctx, 1)
	m.clients.Add(ctx, 1)
}

func (m *hubMetrics) clientLeft(ctx context.Context) {
	if m == nil {
		return
	}
	m.clients.Add(ctx, -1)
}

func (m *hubMetrics) sent(ctx context.Context, msgType string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.messages.Add(ctx, int64(n), metric.WithAttributes(attribute.String("type", msgType)))
}

func (m *hubMetrics) drop(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.dropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
