package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/nerrad567/dstiny-bridge/internal/bridges/dstiny"
	"github.com/nerrad567/dstiny-bridge/internal/eventbridge"
)

// Poll outcomes reported to the Observer.
const (
	PollEvent = "event"
	PollEmpty = "empty"
	PollIdle  = "idle"
	PollError = "error"
)

// Level origins reported to the Recorder.
const (
	OriginField         = "field"
	OriginVisualization = "visualization"
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Observer receives poll statistics. *dstiny.Metrics satisfies it.
type Observer interface {
	PollResult(result string)
	EventDropped()
}

// Recorder stores reported levels as telemetry. The InfluxDB client
// satisfies it.
type Recorder interface {
	WriteLevel(channel string, level int, origin string)
}

// PollerConfig holds the collaborators of a Poller.
type PollerConfig struct {
	Hub   Adapter
	Queue *eventbridge.Queue
	State *eventbridge.SharedState

	// Optional.
	Observer Observer
	Recorder Recorder
	Logger   Logger

	// InitialBackoff is the first reconnect delay. Zero means 500ms.
	InitialBackoff time.Duration

	// MaxBackoff caps the reconnect delay. Zero means one minute.
	MaxBackoff time.Duration
}

// Poller is the hub worker. It keeps a hub session open, long-polls for
// changes and turns them into bus status events.
type Poller struct {
	hub        Adapter
	queue      *eventbridge.Queue
	state      *eventbridge.SharedState
	observer   Observer
	recorder   Recorder

	initialBackoff time.Duration
	maxBackoff     time.Duration

	logger   Logger
	loggerMu sync.RWMutex
}

// NewPoller creates a poller.
func NewPoller(cfg PollerConfig) *Poller {
	maxBackoff := cfg.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = time.Minute
	}
	initial := cfg.InitialBackoff
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	return &Poller{
		hub:            cfg.Hub,
		queue:          cfg.Queue,
		state:          cfg.State,
		observer:       cfg.Observer,
		recorder:       cfg.Recorder,
		initialBackoff: initial,
		maxBackoff:     maxBackoff,
		logger:         cfg.Logger,
	}
}

// SetLogger sets the logger for this poller.
func (p *Poller) SetLogger(logger Logger) {
	p.loggerMu.Lock()
	p.logger = logger
	p.loggerMu.Unlock()
}

// Run bootstraps and long-polls until ctx is cancelled. Hub errors are
// never fatal: a failed poll waits out an exponential backoff and opens a
// new session.
func (p *Poller) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.initialBackoff
	b.MaxInterval = p.maxBackoff
	b.MaxElapsedTime = 0
	b.Reset()

	connected := false
	for ctx.Err() == nil {
		if !connected {
			p.logInfo("bootstrapping hub session")
			if err := p.hub.Bootstrap(ctx); err != nil {
				p.logError("hub bootstrap failed", "error", err)
				if !p.wait(ctx, b.NextBackOff()) {
					break
				}
				continue
			}
			connected = true
			b.Reset()
			p.logInfo("hub session established")
		}

		if err := p.PollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			p.logWarn("hub long poll failed", "error", err)
			connected = false
			if !p.wait(ctx, b.NextBackOff()) {
				break
			}
			continue
		}
		b.Reset()
	}
	return nil
}

// PollOnce performs one long poll and handles its result.
// The anti-echo lock is consumed by every answered poll. An idle poll
// leaves it untouched and the session open.
func (p *Poller) PollOnce(ctx context.Context) error {
	batch, err := p.hub.LongPoll(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		if errors.Is(err, ErrPollIdle) || errors.Is(err, context.DeadlineExceeded) {
			p.observe(PollIdle)
			p.logDebug("hub long poll idle, reissuing")
			return nil
		}
		p.observe(PollError)
		return err
	}
	locked := p.state.TakeLock()

	result, err := p.hub.DecodeEvent(batch)
	if err != nil {
		p.observe(PollError)
		p.logWarn("undecodable hub event", "error", err)
		return nil
	}
	if result.Empty() {
		p.observe(PollEmpty)
		return nil
	}

	p.observe(PollEvent)
	p.handle(result, locked)
	return nil
}

// Handle consumes the anti-echo lock, updates the level cache and queues
// status events for result. Events are visualization-only when the lock
// was set.
func (p *Poller) Handle(result PollResult) {
	p.handle(result, p.state.TakeLock())
}

func (p *Poller) handle(result PollResult, locked bool) {
	sensor, origin := dstiny.SensorField, OriginField
	if locked {
		sensor, origin = dstiny.SensorVisualization, OriginVisualization
		p.logInfo("hub event caused by bridge action, forwarding for visualization")
	}

	if result.Fan != nil {
		p.state.SetFanLevel(*result.Fan)
		p.record("fan", *result.Fan, origin)
	}
	if result.Flap != nil {
		p.state.SetFlapLevel(*result.Flap)
		p.record("flap", *result.Flap, origin)
	}

	if result.Fan != nil || result.Flap != nil {
		_, fan, flap := p.state.Snapshot()
		p.logInfo("hub fan/flap change", "fan", fan, "flap", flap, "sensor", sensor)
		p.enqueue(eventbridge.Event{
			Index:    dstiny.DeviceFanFlap,
			Value:    uint16(clampByte(fan))<<8 | uint16(clampByte(flap)),
			SensorID: sensor,
			Kind:     eventbridge.KindStatus,
		})
	}

	if result.Window != nil {
		p.logInfo("hub window change", "value", *result.Window, "sensor", sensor)
		p.record("window", *result.Window, origin)
		p.enqueue(eventbridge.Event{
			Index:    dstiny.DeviceWindow,
			Value:    uint16(*result.Window & 0xFF),
			SensorID: sensor,
			Kind:     eventbridge.KindStatus,
		})
	}
}

func (p *Poller) enqueue(e eventbridge.Event) {
	if p.queue.Enqueue(e) {
		return
	}
	if p.observer != nil {
		p.observer.EventDropped()
	}
	p.logWarn("event queue full, dropping event", "event", e.String())
}

func (p *Poller) observe(result string) {
	if p.observer != nil {
		p.observer.PollResult(result)
	}
}

func (p *Poller) record(channel string, level int, origin string) {
	if p.recorder != nil {
		p.recorder.WriteLevel(channel, level, origin)
	}
}

// wait sleeps for d unless ctx ends first. d of backoff.Stop never ends.
func (p *Poller) wait(ctx context.Context, d time.Duration) bool {
	if d == backoff.Stop {
		d = p.maxBackoff
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func clampByte(v int) int {
	return min(max(v, 0), 0xFF)
}

func (p *Poller) getLogger() Logger {
	p.loggerMu.RLock()
	defer p.loggerMu.RUnlock()
	return p.logger
}

func (p *Poller) logDebug(msg string, keysAndValues ...any) {
	if logger := p.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (p *Poller) logInfo(msg string, keysAndValues ...any) {
	if logger := p.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (p *Poller) logWarn(msg string, keysAndValues ...any) {
	if logger := p.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (p *Poller) logError(msg string, keysAndValues ...any) {
	if logger := p.getLogger(); logger != nil {
		logger.Error(msg, keysAndValues...)
	}
}
