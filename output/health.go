package output

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// HealthPublisher publishes periodic status heartbeats to NATS so a fleet
// of bench monitors can be watched from one place
type HealthPublisher struct {
	conn       Publisher
	subject    string
	instanceID string
	startTime  time.Time
	interval   time.Duration
	logger     *slog.Logger

	statsFunc func() HealthStats

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// HealthStats is the service state carried by a heartbeat
type HealthStats struct {
	Attached         bool   `json:"attached"`
	State            string `json:"state"`
	Port             string `json:"port,omitempty"`
	BaudRate         int    `json:"baudrate,omitempty"`
	Generation       uint64 `json:"generation"`
	LinesRead        int64  `json:"lines"`
	BytesRead        int64  `json:"bytes"`
	LastError        string `json:"last_error,omitempty"`
	NetworkConnected bool   `json:"network_connected"`
	MACAddress       string `json:"mac_address,omitempty"`
	Subscribers      int    `json:"subscribers"`
}

// HealthMessage is the JSON payload published to NATS
type HealthMessage struct {
	Version    int         `json:"v"`
	Timestamp  string      `json:"ts"`
	InstanceID string      `json:"instance_id"`
	UptimeSec  int64       `json:"uptime_sec"`
	Status     HealthStats `json:"status"`
}

// HealthPublisherConfig contains configuration for HealthPublisher
type HealthPublisherConfig struct {
	Conn       Publisher
	Subject    string        // e.g., "espmon.health.bench-01"
	InstanceID string        // e.g., "bench-01"
	Interval   time.Duration // How often to publish (default 60s)
	Logger     *slog.Logger
	StatsFunc  func() HealthStats
}

// NewHealthPublisher creates a new HealthPublisher
func NewHealthPublisher(cfg *HealthPublisherConfig) *HealthPublisher {
	interval := cfg.Interval
	if interval == 0 {
		interval = 60 * time.Second
	}

	return &HealthPublisher{
		conn:       cfg.Conn,
		subject:    cfg.Subject,
		instanceID: cfg.InstanceID,
		startTime:  time.Now(),
		interval:   interval,
		logger:     cfg.Logger,
		statsFunc:  cfg.StatsFunc,
		stopCh:     make(chan struct{}),
	}
}

// Start begins publishing heartbeats
func (h *HealthPublisher) Start() {
	h.wg.Add(1)
	go h.publishLoop()
	h.logger.Info("Health publisher started",
		"subject", h.subject,
		"interval", h.interval)
}

// Stop publishes a final heartbeat and stops. Safe to call twice.
func (h *HealthPublisher) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
		h.wg.Wait()
		h.logger.Info("Health publisher stopped")
	})
}

func (h *HealthPublisher) publishLoop() {
	defer h.wg.Done()

	h.publish()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			h.publish()
			return
		case <-ticker.C:
			h.publish()
		}
	}
}

func (h *HealthPublisher) publish() {
	if h.conn == nil || !h.conn.IsConnected() {
		h.logger.Debug("Skipping health publish - NATS not connected")
		return
	}

	data, err := json.Marshal(h.message())
	if err != nil {
		h.logger.Error("Failed to marshal health message", "error", err)
		return
	}

	if err := h.conn.Publish(h.subject, data); err != nil {
		h.logger.Warn("Failed to publish health message", "error", err)
		return
	}

	h.logger.Debug("Published health heartbeat", "subject", h.subject)
}

func (h *HealthPublisher) message() HealthMessage {
	msg := HealthMessage{
		Version:    1,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		InstanceID: h.instanceID,
		UptimeSec:  int64(time.Since(h.startTime).Seconds()),
	}
	if h.statsFunc != nil {
		msg.Status = h.statsFunc()
	}
	return msg
}
