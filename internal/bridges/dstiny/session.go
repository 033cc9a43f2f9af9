package dstiny

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nerrad567/dstiny-bridge/internal/eventbridge"
)

// Session timing defaults.
const (
	// DefaultEventPacing is the pause after each event written to the bus.
	DefaultEventPacing = 5 * time.Second

	// DefaultIdleDelay is the pause between loop iterations.
	DefaultIdleDelay = 100 * time.Millisecond

	// transportErrorDelay is the pause after a failed read.
	transportErrorDelay = time.Second
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// SessionConfig holds the collaborators and settings of a Session.
type SessionConfig struct {
	Device     *Device
	Dispatcher *Dispatcher
	Queue      *eventbridge.Queue
	BringUp    BringUpConfig

	// EventPacing defaults to DefaultEventPacing.
	EventPacing time.Duration

	// IdleDelay defaults to DefaultIdleDelay. Negative disables it.
	IdleDelay time.Duration

	// OnStateChange is called after every state change. Optional.
	OnStateChange func(State)

	Metrics *Metrics
	Logger  Logger
}

// Session is the bus worker. It owns the serial link, runs the session
// state machine and forwards queued hub events while online.
//
// Thread Safety: Run must be called once; State may be called from any
// goroutine.
type Session struct {
	device     *Device
	dispatcher *Dispatcher
	queue      *eventbridge.Queue
	bringUp    BringUpConfig
	pacing     time.Duration
	idleDelay  time.Duration
	onChange   func(State)
	metrics    *Metrics

	state   State
	stateMu sync.RWMutex

	// lastLogged suppresses identical consecutive telegram logs.
	lastLogged string

	logger   Logger
	loggerMu sync.RWMutex
}

// NewSession creates a session in StateInit.
func NewSession(cfg SessionConfig) *Session {
	pacing := cfg.EventPacing
	if pacing == 0 {
		pacing = DefaultEventPacing
	}
	idle := cfg.IdleDelay
	if idle == 0 {
		idle = DefaultIdleDelay
	}
	if idle < 0 {
		idle = 0
	}

	s := &Session{
		device:     cfg.Device,
		dispatcher: cfg.Dispatcher,
		queue:      cfg.Queue,
		bringUp:    cfg.BringUp,
		pacing:     pacing,
		idleDelay:  idle,
		onChange:   cfg.OnStateChange,
		metrics:    cfg.Metrics,
		state:      StateInit,
		logger:     cfg.Logger,
	}
	s.metrics.state(StateInit)
	return s
}

// SetLogger sets the logger for this session.
func (s *Session) SetLogger(logger Logger) {
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
}

// State returns the current session state.
func (s *Session) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// Run processes the bus until ctx is cancelled or the transport is closed.
// Cancellation returns nil.
func (s *Session) Run(ctx context.Context) error {
	s.logInfo("bus session started", "state", s.State().String())
	defer s.logInfo("bus session stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := s.Step(ctx); err != nil {
			if errors.Is(err, ErrTransportClosed) {
				return err
			}
			s.logError("bus read failed", "error", err)
			if !sleepCtx(ctx, transportErrorDelay) {
				return nil
			}
			continue
		}

		if !sleepCtx(ctx, s.idleDelay) {
			return nil
		}
	}
}

// Step performs one loop iteration: read one telegram and act on it, or,
// when online and nothing arrived, forward queued events.
func (s *Session) Step(ctx context.Context) error {
	t, ok, err := s.device.ReadTelegram()
	if err != nil {
		return err
	}
	if ok {
		s.handle(ctx, t)
		return nil
	}
	if s.State() == StateOnline {
		s.drain(ctx)
	}
	return nil
}

// handle feeds one telegram through the state machine and runs its effects.
func (s *Session) handle(ctx context.Context, t Telegram) {
	state := s.State()
	s.logTelegram(state, t)

	next, effects := Transition(state, SignalOf(t))
	for _, effect := range effects {
		switch effect {
		case EffectBringUp:
			s.logInfo("module identified, bringing up")
			if err := s.device.BringUp(ctx, s.bringUp); err != nil {
				s.logWarn("bring-up incomplete", "error", err)
			}
		case EffectRegister:
			if err := s.device.Register(ctx, s.bringUp.DeviceMask); err != nil {
				s.logWarn("re-registration failed", "error", err)
				next, _ = Transition(next, SignalRegistrationFailed)
			}
		case EffectDispatch:
			if err := s.dispatcher.Dispatch(ctx, t); err != nil {
				s.logWarn("dispatch failed", "telegram", t.String(), "error", err)
			}
		}
	}

	s.setState(next)
}

// logTelegram logs received telegrams. Online, identical repeats are
// suppressed.
func (s *Session) logTelegram(state State, t Telegram) {
	text := t.String()
	if state == StateOnline {
		if text == s.lastLogged {
			return
		}
		s.lastLogged = text
	}
	s.logInfo("bus telegram", "telegram", text, "state", state.String())
}

func (s *Session) setState(next State) {
	s.stateMu.Lock()
	prev := s.state
	s.state = next
	s.stateMu.Unlock()

	if prev == next {
		return
	}
	s.logInfo("bus session state changed", "from", prev.String(), "to", next.String())
	s.metrics.state(next)
	if s.onChange != nil {
		s.onChange(next)
	}
}

// drain writes every queued status event to the bus, pausing after each.
func (s *Session) drain(ctx context.Context) {
	for {
		e, ok := s.queue.Dequeue()
		if !ok {
			return
		}

		if e.Kind == eventbridge.KindStatus {
			s.logInfo("transmitting event", "event", e.String())
			if err := s.device.SendEvent(ctx, e.Index, e.SensorID, e.Value); err != nil {
				s.logWarn("event not delivered", "event", e.String(), "error", err)
			}
		} else {
			s.logDebug("ignoring event", "event", e.String())
		}

		if !sleepCtx(ctx, s.pacing) {
			return
		}
	}
}

// sleepCtx waits for d or until ctx is done. It returns false on
// cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
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

func (s *Session) getLogger() Logger {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	return s.logger
}

func (s *Session) logDebug(msg string, keysAndValues ...any) {
	if logger := s.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (s *Session) logInfo(msg string, keysAndValues ...any) {
	if logger := s.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (s *Session) logWarn(msg string, keysAndValues ...any) {
	if logger := s.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (s *Session) logError(msg string, keysAndValues ...any) {
	if logger := s.getLogger(); logger != nil {
		logger.Error(msg, keysAndValues...)
	}
}
