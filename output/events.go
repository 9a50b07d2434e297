package output

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Event types - these are the discrete events we publish
const (
	EventServiceStart         = "service_start"
	EventServiceStop          = "service_stop"
	EventAttached             = "attached"
	EventDetached             = "detached"
	EventReadFailure          = "read_failure"
	EventNetworkConnected     = "network_connected"
	EventNetworkDisconnected  = "network_disconnected"
	EventNetworkControlFailed = "network_control_failed"
)

// Event is the base structure for all events published to NATS.
// Keep it simple and flat for easy querying.
type Event struct {
	ID         string         `json:"id"` // Unique per event, lets consumers drop redeliveries
	Timestamp  time.Time      `json:"ts"`
	Type       string         `json:"type"`
	InstanceID string         `json:"instance"`
	Device     string         `json:"dev,omitempty"`     // /dev/ttyUSB0, etc
	MAC        string         `json:"mac,omitempty"`     // Hardware address for network events
	Message    string         `json:"msg,omitempty"`     // Human-readable message
	Details    map[string]any `json:"details,omitempty"` // Optional extra data
}

// EventCallback is the function signature for event handlers.
// Components call this when events occur; they don't know about NATS.
type EventCallback func(event Event)

// Publisher is the subset of a NATS connection used by the publishers
type Publisher interface {
	Publish(subject string, data []byte) error
	IsConnected() bool
}

// EventPublisher publishes discrete events to NATS.
// It's designed to be optional - if nil, nothing breaks.
type EventPublisher struct {
	conn       Publisher
	subject    string
	instanceID string
	logger     *slog.Logger
}

// EventPublisherConfig contains configuration for EventPublisher
type EventPublisherConfig struct {
	Conn       Publisher
	Subject    string // e.g., "espmon.events.bench-01"
	InstanceID string
	Logger     *slog.Logger
}

// NewEventPublisher creates a new EventPublisher.
// Returns nil if conn is nil (disabled mode).
func NewEventPublisher(cfg *EventPublisherConfig) *EventPublisher {
	if cfg == nil || cfg.Conn == nil {
		return nil
	}

	return &EventPublisher{
		conn:       cfg.Conn,
		subject:    cfg.Subject,
		instanceID: cfg.InstanceID,
		logger:     cfg.Logger,
	}
}

// Publish sends an event to NATS. Safe to call on nil receiver.
func (e *EventPublisher) Publish(event Event) {
	if e == nil || e.conn == nil || !e.conn.IsConnected() {
		return
	}

	// Fill in defaults
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.InstanceID == "" {
		event.InstanceID = e.instanceID
	}

	data, err := json.Marshal(event)
	if err != nil {
		e.logger.Error("Failed to marshal event", "error", err, "type", event.Type)
		return
	}

	if err := e.conn.Publish(e.subject, data); err != nil {
		e.logger.Warn("Failed to publish event", "error", err, "type", event.Type)
		return
	}

	e.logger.Debug("Published event",
		"type", event.Type,
		"device", event.Device,
		"message", event.Message)
}

// PublishServiceStart publishes a service start event
func (e *EventPublisher) PublishServiceStart(version string) {
	e.Publish(Event{
		Type:    EventServiceStart,
		Message: "ESPMonitor service started",
		Details: map[string]any{"version": version},
	})
}

// PublishServiceStop publishes a service stop event
func (e *EventPublisher) PublishServiceStop(reason string) {
	e.Publish(Event{
		Type:    EventServiceStop,
		Message: "ESPMonitor service stopping",
		Details: map[string]any{"reason": reason},
	})
}

// BuildEventsSubject constructs the events subject: {prefix}.events.{instance}
func BuildEventsSubject(subjectPrefix, instanceID string) string {
	return subjectPrefix + ".events." + instanceID
}
