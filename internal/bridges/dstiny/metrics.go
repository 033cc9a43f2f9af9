package dstiny

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts bus and hub activity for the /metrics endpoint.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	telegramsTx   prometheus.Counter
	telegramsRx   prometheus.Counter
	invalidRx     prometheus.Counter
	retries       prometheus.Counter
	noResponse    prometheus.Counter
	hubActions    *prometheus.CounterVec
	polls         *prometheus.CounterVec
	eventsSent    prometheus.Counter
	eventsDropped prometheus.Counter
	sessionState  *prometheus.GaugeVec
}

// NewMetrics creates the bridge collectors. Call Register to expose them.
func NewMetrics() *Metrics {
	return &Metrics{
		telegramsTx: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dsbridge_bus_telegrams_sent_total",
			Help: "Telegrams written to the bus module",
		}),
		telegramsRx: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dsbridge_bus_telegrams_received_total",
			Help: "Valid telegrams received from the bus module",
		}),
		invalidRx: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dsbridge_bus_telegrams_invalid_total",
			Help: "Lines discarded because they failed to decode",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dsbridge_bus_retries_total",
			Help: "Request retransmissions",
		}),
		noResponse: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dsbridge_bus_no_response_total",
			Help: "Requests that got no valid answer after all retries",
		}),
		hubActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dsbridge_hub_actions_total",
			Help: "Hub actions issued from bus scene calls",
		}, []string{"action", "result"}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dsbridge_hub_polls_total",
			Help: "Hub long-poll results",
		}, []string{"result"}),
		eventsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dsbridge_events_sent_total",
			Help: "Status events written onto the bus",
		}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dsbridge_events_dropped_total",
			Help: "Status events dropped because the queue was full",
		}),
		sessionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dsbridge_session_state",
			Help: "1 for the current bus session state",
		}, []string{"state"}),
	}
}

// Register adds all collectors to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.telegramsTx, m.telegramsRx, m.invalidRx, m.retries, m.noResponse,
		m.hubActions, m.polls, m.eventsSent, m.eventsDropped, m.sessionState,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) telegramSent() {
	if m != nil {
		m.telegramsTx.Inc()
	}
}

func (m *Metrics) telegramReceived() {
	if m != nil {
		m.telegramsRx.Inc()
	}
}

func (m *Metrics) invalidReceived() {
	if m != nil {
		m.invalidRx.Inc()
	}
}

func (m *Metrics) retried() {
	if m != nil {
		m.retries.Inc()
	}
}

func (m *Metrics) unanswered() {
	if m != nil {
		m.noResponse.Inc()
	}
}

func (m *Metrics) eventSent() {
	if m != nil {
		m.eventsSent.Inc()
	}
}

func (m *Metrics) hubAction(action string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.hubActions.WithLabelValues(action, result).Inc()
}

func (m *Metrics) state(s State) {
	if m == nil {
		return
	}
	for _, st := range []State{StateInit, StateRestart, StateOnline} {
		v := 0.0
		if st == s {
			v = 1
		}
		m.sessionState.WithLabelValues(st.String()).Set(v)
	}
}

// PollResult counts one hub long-poll outcome ("event", "empty", "idle", "error").
func (m *Metrics) PollResult(result string) {
	if m != nil {
		m.polls.WithLabelValues(result).Inc()
	}
}

// EventDropped counts an event the queue refused.
func (m *Metrics) EventDropped() {
	if m != nil {
		m.eventsDropped.Inc()
	}
}
