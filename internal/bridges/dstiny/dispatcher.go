package dstiny

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nerrad567/dstiny-bridge/internal/eventbridge"
	"github.com/nerrad567/dstiny-bridge/internal/scenes"
)

// Scene telegram constants.
const (
	// sceneCallCommand is the bus command code of a scene call.
	sceneCallCommand byte = 0x08

	// sceneValueMarker is the high byte of a scene call value.
	sceneValueMarker byte = 0x02

	// maxGroupZone is the highest zone value of a group address.
	maxGroupZone = 15
)

// Hub action names for logs and metrics.
const (
	actionExhaustAir = "set_exhaust_air"
	actionSupplyAir  = "set_supply_air"
	actionLight      = "set_light_intensity"
)

// HubActions are the hub operations triggered by bus scene calls.
type HubActions interface {
	SetExhaustAir(ctx context.Context, level int) error
	SetSupplyAir(ctx context.Context, level int) error
	SetLightIntensity(ctx context.Context, level int) error
}

// Dispatcher interprets telegrams received while online.
//
// Pass-through telegrams read and write the scene configuration; scene
// telegrams become hub actions. Anything else is ignored.
type Dispatcher struct {
	device  *Device
	store   scenes.Store
	hub     HubActions
	state   *eventbridge.SharedState
	metrics *Metrics

	logger   Logger
	loggerMu sync.RWMutex
}

// DispatcherConfig holds the collaborators of a Dispatcher.
type DispatcherConfig struct {
	Device  *Device
	Store   scenes.Store
	Hub     HubActions
	State   *eventbridge.SharedState
	Metrics *Metrics
	Logger  Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	return &Dispatcher{
		device:  cfg.Device,
		store:   cfg.Store,
		hub:     cfg.Hub,
		state:   cfg.State,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}
}

// Dispatch handles one telegram. Unknown commands, registers and scenes
// return nil.
func (d *Dispatcher) Dispatch(ctx context.Context, t Telegram) error {
	switch t.Command {
	case CmdPassThrough:
		return d.passThrough(ctx, t)
	case CmdScene:
		return d.scene(ctx, t)
	default:
		return nil
	}
}

// passThrough serves configuration register access on the fan/flap device.
func (d *Dispatcher) passThrough(ctx context.Context, t Telegram) error {
	if t.Index != DeviceFanFlap || len(t.Args) < 4 {
		return nil
	}

	reg := int(t.Arg(2))
	channel := scenes.RegisterChannel(reg)
	if channel == scenes.ChannelNone {
		return nil
	}

	switch t.Arg(0) {
	case opReadWord:
		value, err := d.readRegisterPair(ctx, reg, channel)
		if err != nil {
			return err
		}
		if err := d.device.PassThroughReply(ctx, t, value); err != nil {
			return fmt.Errorf("replying to register %d read: %w", reg, err)
		}
		return nil

	case opWriteWord:
		level := int(t.Arg(3))
		if err := d.store.Set(ctx, scenes.FanFlapSection, reg, level); err != nil {
			return fmt.Errorf("storing register %d: %w", reg, err)
		}
		d.logInfo("scene level configured", "channel", channelName(channel), "register", reg, "level", level)
		return nil
	}
	return nil
}

// readRegisterPair returns reg in the low byte and reg+1 in the high byte.
// A missing low or fan high half reads as 0; a missing flap high half
// leaves the value at the low byte.
func (d *Dispatcher) readRegisterPair(ctx context.Context, reg int, channel scenes.Channel) (uint16, error) {
	low, err := d.level(ctx, reg)
	if err != nil {
		return 0, err
	}
	high, err := d.level(ctx, reg+1)
	if err != nil {
		return 0, err
	}
	if high < 0 {
		if channel == scenes.ChannelFlap {
			return uint16(byteLevel(low)), nil
		}
		high = 0
	}
	return uint16(byteLevel(low)) | uint16(byteLevel(high))<<8, nil
}

// byteLevel clamps a stored level into one register byte.
func byteLevel(v int) byte {
	return byte(min(max(v, 0), 0xFF))
}

// level returns the stored level, or -1 when the register is not set.
func (d *Dispatcher) level(ctx context.Context, reg int) (int, error) {
	v, err := d.store.Get(ctx, scenes.FanFlapSection, reg)
	if errors.Is(err, scenes.ErrNotFound) {
		return -1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading register %d: %w", reg, err)
	}
	return v, nil
}

// scene handles a scene call. Group addressed calls drive the light;
// individually addressed calls drive the fan or flap.
func (d *Dispatcher) scene(ctx context.Context, t Telegram) error {
	if len(t.Args) < 5 {
		return nil
	}

	addr := uint16(t.Arg(1))<<8 | uint16(t.Arg(0))
	if t.Arg(2) != sceneCallCommand || t.Arg(4) != sceneValueMarker {
		return nil
	}
	scene := int(t.Arg(3))
	zone := addr >> 6

	if zone <= maxGroupZone {
		d.logInfo("group scene", "index", t.Index, "scene", scene, "group", addr&0x3F)
		if t.Index != DeviceLight {
			return nil
		}
		intensity, ok := scenes.LightSceneIntensity[scene]
		if !ok {
			return nil
		}
		err := d.hub.SetLightIntensity(ctx, intensity)
		d.metrics.hubAction(actionLight, err)
		if err != nil {
			return fmt.Errorf("setting light intensity %d: %w", intensity, err)
		}
		return nil
	}

	d.logInfo("individual scene", "index", t.Index, "scene", scene)
	if t.Index != DeviceFanFlap {
		return nil
	}
	channel, reg, ok := scenes.SceneRegister(scene)
	if !ok {
		return nil
	}

	level, err := d.level(ctx, reg)
	if err != nil {
		return err
	}
	if level < 0 {
		return nil
	}

	var (
		current int
		action  string
		call    func(context.Context, int) error
	)
	if channel == scenes.ChannelFan {
		current, action, call = d.state.FanLevel(), actionExhaustAir, d.hub.SetExhaustAir
	} else {
		current, action, call = d.state.FlapLevel(), actionSupplyAir, d.hub.SetSupplyAir
	}

	// The hub emits no event for an unchanged level, which would leave
	// the lock set.
	if level == current {
		d.logDebug("scene level already current", "channel", channelName(channel), "level", level)
		return nil
	}

	err = call(ctx, level)
	d.metrics.hubAction(action, err)
	if err != nil {
		return fmt.Errorf("%s %d: %w", action, level, err)
	}
	d.state.SetLock(true)
	d.logInfo("scene sent to hub", "channel", channelName(channel), "scene", scene, "level", level)
	return nil
}

func channelName(c scenes.Channel) string {
	switch c {
	case scenes.ChannelFan:
		return "fan"
	case scenes.ChannelFlap:
		return "flap"
	default:
		return "none"
	}
}

func (d *Dispatcher) logInfo(msg string, keysAndValues ...any) {
	d.loggerMu.RLock()
	logger := d.logger
	d.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (d *Dispatcher) logDebug(msg string, keysAndValues ...any) {
	d.loggerMu.RLock()
	logger := d.logger
	d.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
