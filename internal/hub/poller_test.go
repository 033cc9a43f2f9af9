package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/dstiny-bridge/internal/bridges/dstiny"
	"github.com/nerrad567/dstiny-bridge/internal/eventbridge"
)

func intPtr(v int) *int { return &v }

// fakeAdapter serves scripted poll results.
type fakeAdapter struct {
	mu            sync.Mutex
	bootstrapErrs []error
	bootstraps    int
	polls         []pollStep
	pollCount     int
	lastResult    PollResult
	decodeErr     error
}

type pollStep struct {
	result PollResult
	err    error
}

func (f *fakeAdapter) Bootstrap(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bootstraps++
	if len(f.bootstrapErrs) > 0 {
		err := f.bootstrapErrs[0]
		f.bootstrapErrs = f.bootstrapErrs[1:]
		return err
	}
	return nil
}

func (f *fakeAdapter) LongPoll(ctx context.Context) (EventBatch, error) {
	f.mu.Lock()
	if len(f.polls) == 0 {
		f.mu.Unlock()
		<-ctx.Done()
		return EventBatch{}, ctx.Err()
	}
	step := f.polls[0]
	f.polls = f.polls[1:]
	f.pollCount++
	f.lastResult = step.result
	f.mu.Unlock()

	if step.err != nil {
		return EventBatch{}, step.err
	}
	return EventBatch{}, nil
}

func (f *fakeAdapter) DecodeEvent(EventBatch) (PollResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastResult, f.decodeErr
}

func (f *fakeAdapter) SetExhaustAir(context.Context, int) error     { return nil }
func (f *fakeAdapter) SetSupplyAir(context.Context, int) error      { return nil }
func (f *fakeAdapter) SetLightIntensity(context.Context, int) error { return nil }

type fakeObserver struct {
	mu      sync.Mutex
	results []string
	dropped int
}

func (o *fakeObserver) PollResult(r string) {
	o.mu.Lock()
	o.results = append(o.results, r)
	o.mu.Unlock()
}

func (o *fakeObserver) EventDropped() {
	o.mu.Lock()
	o.dropped++
	o.mu.Unlock()
}

type levelPoint struct {
	channel string
	level   int
	origin  string
}

type fakeRecorder struct {
	mu     sync.Mutex
	points []levelPoint
}

func (r *fakeRecorder) WriteLevel(channel string, level int, origin string) {
	r.mu.Lock()
	r.points = append(r.points, levelPoint{channel, level, origin})
	r.mu.Unlock()
}

type pollerFixture struct {
	hub      *fakeAdapter
	queue    *eventbridge.Queue
	state    *eventbridge.SharedState
	observer *fakeObserver
	recorder *fakeRecorder
	poller   *Poller
}

func newPollerFixture(hub *fakeAdapter, queueSize int) *pollerFixture {
	f := &pollerFixture{
		hub:      hub,
		queue:    eventbridge.NewQueue(queueSize),
		state:    eventbridge.NewSharedState(),
		observer: &fakeObserver{},
		recorder: &fakeRecorder{},
	}
	f.poller = NewPoller(PollerConfig{
		Hub:            hub,
		Queue:          f.queue,
		State:          f.state,
		Observer:       f.observer,
		Recorder:       f.recorder,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	})
	return f
}

func (f *pollerFixture) drain() []eventbridge.Event {
	var out []eventbridge.Event
	for {
		e, ok := f.queue.Dequeue()
		if !ok {
			return out
		}
		out = append(out, e)
	}
}

func TestPoller_FieldOriginatedChange(t *testing.T) {
	f := newPollerFixture(&fakeAdapter{}, 8)

	f.poller.Handle(PollResult{Fan: intPtr(44), Flap: intPtr(22)})

	events := f.drain()
	if len(events) != 1 {
		t.Fatalf("events = %v, want 1", events)
	}
	want := eventbridge.Event{Index: dstiny.DeviceFanFlap, Value: 44<<8 | 22, SensorID: dstiny.SensorField, Kind: eventbridge.KindStatus}
	if events[0] != want {
		t.Errorf("event = %v, want %v", events[0], want)
	}
	if f.state.FanLevel() != 44 || f.state.FlapLevel() != 22 {
		t.Errorf("cache = %d/%d, want 44/22", f.state.FanLevel(), f.state.FlapLevel())
	}
	if len(f.recorder.points) != 2 || f.recorder.points[0] != (levelPoint{"fan", 44, OriginField}) {
		t.Errorf("recorded = %v", f.recorder.points)
	}
}

func TestPoller_MissingHalfFilledFromCache(t *testing.T) {
	f := newPollerFixture(&fakeAdapter{}, 8)
	f.state.SetFanLevel(66)

	f.poller.Handle(PollResult{Flap: intPtr(11)})

	events := f.drain()
	if len(events) != 1 || events[0].Value != 66<<8|11 {
		t.Fatalf("events = %v, want value %04X", events, 66<<8|11)
	}
}

func TestPoller_VisualizationOnlyWhileLocked(t *testing.T) {
	f := newPollerFixture(&fakeAdapter{}, 8)
	f.state.SetLock(true)

	f.poller.Handle(PollResult{Fan: intPtr(33), Window: intPtr(0x101)})

	events := f.drain()
	if len(events) != 2 {
		t.Fatalf("events = %v, want 2", events)
	}
	for _, e := range events {
		if e.SensorID != dstiny.SensorVisualization {
			t.Errorf("event %v not marked visualization-only", e)
		}
	}
	if events[1].Index != dstiny.DeviceWindow || events[1].Value != 0x01 {
		t.Errorf("window event = %v", events[1])
	}
}

func TestPoller_QueueFullDropsNewest(t *testing.T) {
	f := newPollerFixture(&fakeAdapter{}, 1)

	f.poller.Handle(PollResult{Fan: intPtr(10), Window: intPtr(1)})

	events := f.drain()
	if len(events) != 1 || events[0].Index != dstiny.DeviceFanFlap {
		t.Fatalf("events = %v, want only the fan/flap event", events)
	}
	if f.observer.dropped != 1 {
		t.Errorf("dropped = %d, want 1", f.observer.dropped)
	}
}

func TestPoller_PollOnceClearsLock(t *testing.T) {
	tests := []struct {
		name       string
		step       pollStep
		decodeErr  error
		wantResult string
		wantEvents int
	}{
		{"event", pollStep{result: PollResult{Window: intPtr(1)}}, nil, PollEvent, 1},
		{"empty", pollStep{}, nil, PollEmpty, 0},
		{"undecodable", pollStep{}, errors.New("bad"), PollError, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := &fakeAdapter{polls: []pollStep{tt.step}, decodeErr: tt.decodeErr}
			f := newPollerFixture(hub, 8)
			f.state.SetLock(true)

			if err := f.poller.PollOnce(context.Background()); err != nil {
				t.Fatalf("PollOnce() error = %v", err)
			}
			if f.state.Locked() {
				t.Error("lock still set after poll result")
			}
			if len(f.observer.results) != 1 || f.observer.results[0] != tt.wantResult {
				t.Errorf("observed = %v, want %s", f.observer.results, tt.wantResult)
			}
			if got := len(f.drain()); got != tt.wantEvents {
				t.Errorf("events = %d, want %d", got, tt.wantEvents)
			}
		})
	}
}

func TestPoller_PollOnceTransportErrorKeepsLock(t *testing.T) {
	hub := &fakeAdapter{polls: []pollStep{{err: errors.New("connection reset")}}}
	f := newPollerFixture(hub, 8)
	f.state.SetLock(true)

	if err := f.poller.PollOnce(context.Background()); err == nil {
		t.Fatal("PollOnce() error = nil, want transport error")
	}
	if !f.state.Locked() {
		t.Error("lock cleared without a poll result")
	}
}

func TestPoller_RunReconnects(t *testing.T) {
	hub := &fakeAdapter{
		bootstrapErrs: []error{errors.New("refused")},
		polls: []pollStep{
			{result: PollResult{Fan: intPtr(22)}},
			{err: errors.New("connection reset")},
			{result: PollResult{Flap: intPtr(55)}},
		},
	}
	f := newPollerFixture(hub, 8)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.poller.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for f.queue.Len() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not stop")
	}

	hub.mu.Lock()
	bootstraps := hub.bootstraps
	hub.mu.Unlock()
	// Failed first attempt, success, and a new session after the reset.
	if bootstraps != 3 {
		t.Errorf("bootstraps = %d, want 3", bootstraps)
	}

	events := f.drain()
	if len(events) != 2 || events[1].Value != 22<<8|55 {
		t.Errorf("events = %v", events)
	}
}

// lockingRecorder sets the anti-echo lock while the poller is handling a
// result, the way a dispatcher action can land mid-poll.
type lockingRecorder struct {
	state *eventbridge.SharedState
}

func (r *lockingRecorder) WriteLevel(string, int, string) {
	r.state.SetLock(true)
}

func TestPoller_LockSetDuringHandlingSurvives(t *testing.T) {
	hub := &fakeAdapter{polls: []pollStep{{result: PollResult{Fan: intPtr(40)}}}}
	f := newPollerFixture(hub, 8)
	f.poller.recorder = &lockingRecorder{state: f.state}

	if err := f.poller.PollOnce(context.Background()); err != nil {
		t.Fatalf("PollOnce() error = %v", err)
	}
	if !f.state.Locked() {
		t.Error("lock set while handling the poll result was cleared")
	}

	events := f.drain()
	if len(events) != 1 || events[0].SensorID != dstiny.SensorField {
		t.Errorf("events = %v, want one field-originated event", events)
	}
}

func TestPoller_HandleConsumesLock(t *testing.T) {
	f := newPollerFixture(&fakeAdapter{}, 8)
	f.state.SetLock(true)

	f.poller.Handle(PollResult{Fan: intPtr(1)})
	f.poller.Handle(PollResult{Fan: intPtr(2)})

	events := f.drain()
	if len(events) != 2 {
		t.Fatalf("events = %v, want 2", events)
	}
	if events[0].SensorID != dstiny.SensorVisualization || events[1].SensorID != dstiny.SensorField {
		t.Errorf("sensors = %d, %d; want visualization then field", events[0].SensorID, events[1].SensorID)
	}
}

func TestPoller_IdlePollKeepsSessionAndLock(t *testing.T) {
	idle := fmt.Errorf("waiting for events: %w", context.DeadlineExceeded)
	hub := &fakeAdapter{polls: []pollStep{{err: idle}}}
	f := newPollerFixture(hub, 8)
	f.state.SetLock(true)

	if err := f.poller.PollOnce(context.Background()); err != nil {
		t.Fatalf("PollOnce() error = %v, want nil for an idle poll", err)
	}
	if !f.state.Locked() {
		t.Error("idle poll cleared the lock")
	}
	if len(f.observer.results) != 1 || f.observer.results[0] != PollIdle {
		t.Errorf("observed = %v, want [idle]", f.observer.results)
	}
}

func TestPoller_RunReissuesIdlePolls(t *testing.T) {
	hub := &fakeAdapter{
		polls: []pollStep{
			{err: fmt.Errorf("%w: %w", ErrPollIdle, context.DeadlineExceeded)},
			{err: fmt.Errorf("waiting for events: %w", context.DeadlineExceeded)},
			{result: PollResult{Window: intPtr(1)}},
		},
	}
	f := newPollerFixture(hub, 8)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.poller.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for f.queue.Len() < 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not stop")
	}

	hub.mu.Lock()
	bootstraps := hub.bootstraps
	hub.mu.Unlock()
	if bootstraps != 1 {
		t.Errorf("bootstraps = %d, want 1", bootstraps)
	}

	f.observer.mu.Lock()
	results := append([]string(nil), f.observer.results...)
	f.observer.mu.Unlock()
	want := []string{PollIdle, PollIdle, PollEvent}
	if len(results) != len(want) {
		t.Fatalf("observed = %v, want %v", results, want)
	}
	for i := range want {
		if results[i] != want[i] {
			t.Errorf("observed = %v, want %v", results, want)
			break
		}
	}
}
