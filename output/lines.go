package output

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"espmonitor/stream"
)

// LineMirror republishes every serial line to NATS as {ts, line} JSON.
// A nil *LineMirror is a valid no-op sink.
type LineMirror struct {
	conn    Publisher
	subject string
	logger  *slog.Logger

	published atomic.Int64
	failed    atomic.Int64
}

// NewLineMirror creates a LineMirror, or returns nil when conn is nil
func NewLineMirror(conn Publisher, subject string, logger *slog.Logger) *LineMirror {
	if conn == nil {
		return nil
	}
	logger.Info("Mirroring serial lines to NATS", "subject", subject)
	return &LineMirror{
		conn:    conn,
		subject: subject,
		logger:  logger,
	}
}

// Publish sends one line. Failures are counted and logged, never returned;
// the serial read loop must not stall on NATS.
func (m *LineMirror) Publish(line stream.Line) {
	if m == nil || !m.conn.IsConnected() {
		return
	}

	data, err := json.Marshal(line)
	if err != nil {
		m.logger.Error("Failed to marshal line", "error", err)
		return
	}

	if err := m.conn.Publish(m.subject, data); err != nil {
		// Only log the first failure of a run to keep a flapping link quiet
		if m.failed.Add(1) == 1 {
			m.logger.Warn("Failed to mirror line to NATS", "subject", m.subject, "error", err)
		}
		return
	}
	m.failed.Store(0)
	m.published.Add(1)
}

// Published returns how many lines were mirrored
func (m *LineMirror) Published() int64 {
	if m == nil {
		return 0
	}
	return m.published.Load()
}
