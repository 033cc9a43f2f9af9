package dstiny

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/dstiny-bridge/internal/eventbridge"
	"github.com/nerrad567/dstiny-bridge/internal/infrastructure/mqtt"
)

// BridgeID names this bridge in MQTT topics and health messages.
const BridgeID = "dstiny"

// DefaultHealthInterval is how often health is published.
const DefaultHealthInterval = 30 * time.Second

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthOffline  HealthStatus = "offline"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is published retained on the bridge health topic.
type HealthMessage struct {
	Bridge        string       `json:"bridge"`
	Timestamp     time.Time    `json:"timestamp"`
	Status        HealthStatus `json:"status"`
	Version       string       `json:"version"`
	UptimeSeconds int64        `json:"uptime_seconds"`

	// Session is the bus session state.
	Session string `json:"session,omitempty"`

	// SerialPort is the device path of the bus link.
	SerialPort string `json:"serial_port,omitempty"`

	QueueLength   int    `json:"queue_length"`
	EventsDropped uint64 `json:"events_dropped"`

	// Levels mirror the hub's current fan/flap state.
	FanLevel  int  `json:"fan_level"`
	FlapLevel int  `json:"flap_level"`
	Locked    bool `json:"locked"`

	Reason string `json:"reason,omitempty"`
}

// SessionStateMessage is published retained whenever the session changes state.
type SessionStateMessage struct {
	Bridge    string    `json:"bridge"`
	Timestamp time.Time `json:"timestamp"`
	State     string    `json:"state"`
}

// HealthPublisher is the interface for publishing health messages.
// This is typically implemented by an MQTT client.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// StateSource reports the current session state.
type StateSource interface {
	State() State
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	Version    string
	SerialPort string

	// Interval defaults to DefaultHealthInterval.
	Interval time.Duration

	Publisher HealthPublisher
	Session   StateSource
	Queue     *eventbridge.Queue
	Shared    *eventbridge.SharedState
}

// HealthReporter publishes bridge health to MQTT at regular intervals.
type HealthReporter struct {
	cfg       HealthReporterConfig
	startTime time.Time
	topics    mqtt.Topics

	session   StateSource
	sessionMu sync.RWMutex

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewHealthReporter creates a health reporter. Call Start to begin reporting.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	if cfg.Interval == 0 {
		cfg.Interval = DefaultHealthInterval
	}
	return &HealthReporter{
		cfg:       cfg,
		session:   cfg.Session,
		startTime: time.Now(),
		done:      make(chan struct{}),
	}
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// SetSession sets the session whose state is reported.
func (h *HealthReporter) SetSession(session StateSource) {
	h.sessionMu.Lock()
	h.session = session
	h.sessionMu.Unlock()
}

func (h *HealthReporter) getSession() StateSource {
	h.sessionMu.RLock()
	defer h.sessionMu.RUnlock()
	return h.session
}

// Start begins periodic health reporting until ctx is cancelled or Stop
// is called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		//nolint:errcheck // best-effort during shutdown
		h.publishStatus(HealthStopping, "")
	})
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publishStatus(HealthStarting, "bridge starting")
}

// PublishNow publishes the current health status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publishStatus(status, reason)
}

// PublishSessionState publishes the session state. It is meant to be
// passed as SessionConfig.OnStateChange.
func (h *HealthReporter) PublishSessionState(s State) {
	if h.cfg.Publisher == nil {
		return
	}
	payload, err := json.Marshal(SessionStateMessage{
		Bridge:    BridgeID,
		Timestamp: time.Now().UTC(),
		State:     s.String(),
	})
	if err != nil {
		h.logError("failed to encode session state", err)
		return
	}
	if err := h.cfg.Publisher.Publish(h.topics.BridgeState(BridgeID, "session"), payload, 1, true); err != nil {
		h.logError("failed to publish session state", err)
	}
}

// LWT returns the Last Will and Testament registered with the broker: an
// offline HealthMessage on the bridge health topic.
func LWT() (topic string, payload []byte, err error) {
	payload, err = json.Marshal(HealthMessage{
		Bridge:    BridgeID,
		Timestamp: time.Now().UTC(),
		Status:    HealthOffline,
		Reason:    "unexpected_disconnect",
	})
	return mqtt.Topics{}.BridgeHealth(BridgeID), payload, err
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.logError("failed to publish initial health", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logError("failed to publish health", err)
			}
		}
	}
}

// determineStatus evaluates the current bridge status.
func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.cfg.Publisher == nil || !h.cfg.Publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}
	if session := h.getSession(); session != nil {
		if s := session.State(); s != StateOnline {
			return HealthDegraded, "bus session " + s.String()
		}
	}
	return HealthHealthy, ""
}

// buildMessage assembles a health message from the current state.
func (h *HealthReporter) buildMessage(status HealthStatus, reason string) HealthMessage {
	msg := HealthMessage{
		Bridge:        BridgeID,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       h.cfg.Version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		SerialPort:    h.cfg.SerialPort,
		Reason:        reason,
	}
	if session := h.getSession(); session != nil {
		msg.Session = session.State().String()
	}
	if h.cfg.Queue != nil {
		msg.QueueLength = h.cfg.Queue.Len()
		msg.EventsDropped = h.cfg.Queue.Dropped()
	}
	if h.cfg.Shared != nil {
		msg.Locked, msg.FanLevel, msg.FlapLevel = h.cfg.Shared.Snapshot()
	}
	return msg
}

func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.cfg.Publisher == nil {
		return nil
	}

	payload, err := json.Marshal(h.buildMessage(status, reason))
	if err != nil {
		return err
	}

	// QoS 1, retained
	return h.cfg.Publisher.Publish(h.topics.BridgeHealth(BridgeID), payload, 1, true)
}

func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
