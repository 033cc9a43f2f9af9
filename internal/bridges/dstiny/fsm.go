package dstiny

// State is the bus session state.
type State int

// Session states.
const (
	// StateInit waits for the module to identify, then brings it up.
	StateInit State = iota

	// StateRestart re-registers a module that identified while online.
	StateRestart

	// StateOnline dispatches bus commands and forwards hub events.
	StateOnline
)

// String returns the state name used in logs and metrics.
func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateRestart:
		return "restart"
	case StateOnline:
		return "online"
	default:
		return "unknown"
	}
}

// Signal is an input to the session state machine.
type Signal int

// Session signals.
const (
	// SignalOther is any valid telegram that is not identification.
	SignalOther Signal = iota

	// SignalIdentify is an 's' telegram with argument 0x00.
	SignalIdentify

	// SignalOnline is an 's' telegram with argument 0x20.
	SignalOnline

	// SignalRegistrationFailed reports that re-registration got no answer.
	SignalRegistrationFailed
)

// String returns the signal name.
func (s Signal) String() string {
	switch s {
	case SignalOther:
		return "other"
	case SignalIdentify:
		return "identify"
	case SignalOnline:
		return "online"
	case SignalRegistrationFailed:
		return "registration_failed"
	default:
		return "unknown"
	}
}

// Effect is an action the session performs after a transition.
type Effect int

// Session effects.
const (
	// EffectBringUp runs the full bring-up sequence.
	EffectBringUp Effect = iota + 1

	// EffectRegister re-sends the registration telegram.
	EffectRegister

	// EffectDispatch hands the telegram to the dispatcher.
	EffectDispatch
)

// String returns the effect name.
func (e Effect) String() string {
	switch e {
	case EffectBringUp:
		return "bring_up"
	case EffectRegister:
		return "register"
	case EffectDispatch:
		return "dispatch"
	default:
		return "none"
	}
}

// SignalOf classifies a telegram.
func SignalOf(t Telegram) Signal {
	switch {
	case t.IsIdentify():
		return SignalIdentify
	case t.IsOnline():
		return SignalOnline
	default:
		return SignalOther
	}
}

// Transition returns the next state and the effects to perform.
// It has no side effects.
func Transition(state State, signal Signal) (State, []Effect) {
	switch state {
	case StateInit:
		switch signal {
		case SignalIdentify:
			return StateInit, []Effect{EffectBringUp}
		case SignalOnline:
			return StateOnline, nil
		}
		return StateInit, nil

	case StateRestart:
		switch signal {
		case SignalIdentify:
			return StateRestart, []Effect{EffectRegister}
		case SignalRegistrationFailed:
			return StateInit, nil
		case SignalOnline:
			return StateOnline, nil
		}
		return StateRestart, nil

	case StateOnline:
		if signal == SignalIdentify {
			return StateRestart, nil
		}
		if signal == SignalRegistrationFailed {
			return StateOnline, nil
		}
		return StateOnline, []Effect{EffectDispatch}
	}

	return StateInit, nil
}
