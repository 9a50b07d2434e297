package output

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSConnection manages the optional NATS connection shared by the
// line mirror, event and heartbeat publishers
type NATSConnection struct {
	conn   *nats.Conn
	url    string
	logger *slog.Logger
	mu     sync.RWMutex
}

// NATSOptions holds connection tuning
type NATSOptions struct {
	Name          string        // client name shown by the server
	MaxReconnects int           // -1 = unlimited
	ReconnectWait time.Duration // wait between reconnect attempts
}

// NewNATSConnection connects to url. The connection keeps retrying in the
// background after the first successful connect.
func NewNATSConnection(url string, opts NATSOptions, logger *slog.Logger) (*NATSConnection, error) {
	natsOpts := []nats.Option{
		nats.MaxReconnects(opts.MaxReconnects),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("Reconnected to NATS", "url", nc.ConnectedUrl())
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warn("Disconnected from NATS", "error", err)
			}
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}
	if opts.Name != "" {
		natsOpts = append(natsOpts, nats.Name(opts.Name))
	}
	if opts.ReconnectWait > 0 {
		natsOpts = append(natsOpts, nats.ReconnectWait(opts.ReconnectWait))
	}

	conn, err := nats.Connect(url, natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}

	logger.Info("Connected to NATS", "url", url)

	return &NATSConnection{
		conn:   conn,
		url:    url,
		logger: logger,
	}, nil
}

// Publish sends data on subject
func (nc *NATSConnection) Publish(subject string, data []byte) error {
	nc.mu.RLock()
	conn := nc.conn
	nc.mu.RUnlock()

	if conn == nil {
		return nats.ErrConnectionClosed
	}
	return conn.Publish(subject, data)
}

// Close drains pending publishes and closes the connection
func (nc *NATSConnection) Close() {
	nc.mu.Lock()
	defer nc.mu.Unlock()

	if nc.conn != nil {
		if err := nc.conn.Flush(); err != nil {
			nc.logger.Debug("NATS flush on close failed", "error", err)
		}
		nc.conn.Close()
		nc.conn = nil
		nc.logger.Info("Closed NATS connection")
	}
}

// IsConnected returns true if connected to NATS
func (nc *NATSConnection) IsConnected() bool {
	nc.mu.RLock()
	defer nc.mu.RUnlock()
	return nc.conn != nil && nc.conn.IsConnected()
}

// BuildLinesSubject constructs the line mirror subject: {prefix}.lines.{instance}
func BuildLinesSubject(subjectPrefix, instanceID string) string {
	return subjectPrefix + ".lines." + instanceID
}

// BuildHealthSubject constructs the heartbeat subject: {prefix}.health.{instance}
func BuildHealthSubject(subjectPrefix, instanceID string) string {
	return subjectPrefix + ".health." + instanceID
}
