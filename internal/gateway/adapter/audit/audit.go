// Package audit provides gateway.AuditSink implementations.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"marketgate/internal/domain"
	gw "marketgate/internal/gateway"
	"marketgate/internal/platform/telemetry"
)

// DefaultSubject is the NATS subject security events are published on.
const DefaultSubject = "marketgate.security.events"

// LogSink writes security events as WARN records.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink. A nil logger uses slog.Default().
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Record implements gateway.AuditSink.
func (s *LogSink) Record(ctx context.Context, ev domain.SecurityEvent) error {
	s.logger.WarnContext(ctx, "security event",
		"event_kind", string(ev.Kind),
		"event_id", ev.ID,
		"principal_id", ev.PrincipalID,
		"principal_label", ev.PrincipalLabel,
		"attempted_tenant_id", int64(ev.AttemptedTenantID),
		"raw_claim", ev.RawClaim,
		"path", ev.Path,
		"method", ev.Method,
		"request_id", ev.RequestID,
		"reason", ev.Reason,
		"occurred_at", ev.OccurredAt,
	)
	return nil
}

// publisher is the subset of *nats.Conn used by NATSSink.
type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes security events as JSON for downstream SIEM consumers.
type NATSSink struct {
	pub     publisher
	subject string
	conn    *nats.Conn
}

// NewNATSSink wraps an existing publisher.
func NewNATSSink(pub publisher, subject string) *NATSSink {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSSink{pub: pub, subject: subject}
}

// ConnectNATS dials url and returns a sink owning the connection.
func ConnectNATS(url, subject string) (*NATSSink, error) {
	nc, err := nats.Connect(url,
		nats.Name("marketgate-audit"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	s := NewNATSSink(nc, subject)
	s.conn = nc
	return s, nil
}

// Record implements gateway.AuditSink.
func (s *NATSSink) Record(_ context.Context, ev domain.SecurityEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode security event: %w", err)
	}
	if err := s.pub.Publish(s.subject, data); err != nil {
		return fmt.Errorf("publish security event: %w", err)
	}
	return nil
}

// Close drains the owned connection, flushing buffered events.
func (s *NATSSink) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Drain()
}

// Named pairs a sink with its metrics label.
type Named struct {
	Name string
	Sink gw.AuditSink
}

// Multi fans an event out to every sink. A failing sink does not stop the others.
type Multi struct {
	sinks   []Named
	metrics *telemetry.GatewayMetrics
}

// NewMulti creates a fan-out sink. metrics may be nil.
func NewMulti(m *telemetry.GatewayMetrics, sinks ...Named) *Multi {
	return &Multi{sinks: sinks, metrics: m}
}

// Record implements gateway.AuditSink. The returned error joins every sink failure.
func (m *Multi) Record(ctx context.Context, ev domain.SecurityEvent) error {
	var errs []error
	for _, n := range m.sinks {
		if err := n.Sink.Record(ctx, ev); err != nil {
			m.metrics.RecordAuditEvent(ctx, n.Name, "failure")
			errs = append(errs, fmt.Errorf("%s: %w", n.Name, err))
			continue
		}
		m.metrics.RecordAuditEvent(ctx, n.Name, "success")
	}
	return errors.Join(errs...)
}
