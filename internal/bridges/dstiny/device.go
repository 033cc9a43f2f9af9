package dstiny

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Logical device indexes exposed by the module.
const (
	// DeviceFanFlap is the extractor hood fan and flap.
	DeviceFanFlap uint8 = 1

	// DeviceLight is the hood light.
	DeviceLight uint8 = 2

	// DeviceWindow is the window contact.
	DeviceWindow uint8 = 3
)

// Bus groups the devices join.
const (
	// GroupLight is the light group.
	GroupLight = 1

	// GroupVentilation is the ventilation group.
	GroupVentilation = 10

	// maxGroup is the highest addressable group.
	maxGroup = 63
)

// Status sensor ids.
const (
	// StatusRegisterBase is the register of status sensor 0.
	StatusRegisterBase = 0x10

	// SensorField marks a status value originating from the field.
	SensorField uint8 = 9

	// SensorVisualization marks a status value only for visualization.
	SensorVisualization uint8 = 10
)

// Config telegram operation codes (args[0]).
const (
	opWriteByte   byte = 0x00
	opWriteWord   byte = 0x02
	opReadWord    byte = 0x03
	opStatusValue byte = 0x06
	opPollEvent   byte = 0x07
)

// Memory locations written during bring-up.
const (
	bankGroups      byte = 0x01
	bankConfig      byte = 0x03
	offsetOutput    byte = 0x00
	offsetLTNumGrp  byte = 0x01
	offsetDSCmd     byte = 0x32
	offsetHeartbeat byte = 0x3A

	// lightNumGroup is LTNUMGRP 0x15 (light, room push button).
	lightNumGroup byte = 0x15

	// lightOutputSwitched sets the light output to switched mode.
	lightOutputSwitched byte = 0x10

	// registerBank/registerOffset/registerLen address the device mask.
	registerBank   byte = 0x40
	registerOffset byte = 0x04
	registerLen    byte = 0x01
)

// DefaultRetries is the number of retransmissions after the first send.
const DefaultRetries = 3

// Device performs request/response operations against the bus module.
//
// Thread Safety: requests are serialized; Device may be shared.
type Device struct {
	transport Transport
	retries   int
	metrics   *Metrics

	mu sync.Mutex

	logger   Logger
	loggerMu sync.RWMutex
}

// DeviceOptions configures a Device.
type DeviceOptions struct {
	// Retries after the first send. Zero means DefaultRetries; negative
	// disables retransmission.
	Retries int

	// Metrics is optional.
	Metrics *Metrics

	// Logger is optional.
	Logger Logger
}

// NewDevice wraps a transport.
func NewDevice(t Transport, opts DeviceOptions) *Device {
	retries := opts.Retries
	if retries == 0 {
		retries = DefaultRetries
	}
	if retries < 0 {
		retries = 0
	}
	return &Device{
		transport: t,
		retries:   retries,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
	}
}

// SetLogger sets the logger for this device.
func (d *Device) SetLogger(logger Logger) {
	d.loggerMu.Lock()
	d.logger = logger
	d.loggerMu.Unlock()
}

// ReadTelegram reads one line and decodes it.
//
// Returns:
//   - Telegram, true: a valid telegram arrived
//   - false, nil: nothing arrived or the line was invalid
//   - error: the transport failed
func (d *Device) ReadTelegram() (Telegram, bool, error) {
	line, err := d.transport.ReadLine()
	if err != nil {
		return Telegram{}, false, err
	}
	if line == "" {
		return Telegram{}, false, nil
	}
	t, err := Decode(line)
	if err != nil {
		d.metrics.invalidReceived()
		d.logDebug("discarding bus line", "line", line, "error", err)
		return Telegram{}, false, nil
	}
	d.metrics.telegramReceived()
	return t, true, nil
}

// Request sends t and waits for one valid answer. A missing or invalid
// answer causes a resend, up to the configured retries.
func (d *Device) Request(ctx context.Context, t Telegram) (Telegram, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	wire := []byte(t.Encode())
	for attempt := 0; attempt <= d.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return Telegram{}, err
		}
		if attempt > 0 {
			d.metrics.retried()
		}

		d.logDebug("bus write", "telegram", t.String(), "attempt", attempt+1)
		if _, err := d.transport.Write(wire); err != nil {
			return Telegram{}, fmt.Errorf("writing %s: %w", t, err)
		}
		d.metrics.telegramSent()

		answer, ok, err := d.ReadTelegram()
		if err != nil {
			return Telegram{}, fmt.Errorf("reading answer to %s: %w", t, err)
		}
		if ok {
			d.logDebug("bus answer", "telegram", answer.String())
			return answer, nil
		}
	}

	d.metrics.unanswered()
	d.logWarn("no response from bus module", "telegram", t.String(), "sends", d.retries+1)
	return Telegram{}, fmt.Errorf("%w: %s", ErrNoResponse, t)
}

// ReadWord reads a 16-bit word from device memory.
// The value is in args[3] (low) and args[4] (high) of the answer.
func (d *Device) ReadWord(ctx context.Context, index uint8, bank, offset byte) (Telegram, error) {
	return d.Request(ctx, NewTelegram(CmdConfig, index, opReadWord, bank, offset, 0x00, 0x00))
}

// WriteByte writes one byte of device memory.
func (d *Device) WriteByte(ctx context.Context, index uint8, bank, offset, value byte) error {
	_, err := d.Request(ctx, NewTelegram(CmdConfig, index, opWriteByte, bank, offset, value, 0x00))
	return err
}

// Register announces the logical devices selected by mask (bit n = device n).
func (d *Device) Register(ctx context.Context, mask byte) error {
	_, err := d.Request(ctx, NewTelegram(CmdConfig, 0, opWriteWord, registerBank, registerOffset, registerLen, mask))
	return err
}

// ActivateCommands sets the command forwarding mode of a device:
// 0 = none, 1 = device and activated group in zone, 2 = all groups in zone.
func (d *Device) ActivateCommands(ctx context.Context, index uint8, mode byte) error {
	return d.WriteByte(ctx, index, bankConfig, offsetDSCmd, mode)
}

// groupLocation returns the mask register and base group of a group's band.
func groupLocation(group int) (addr byte, base int, err error) {
	switch {
	case group < 0 || group > maxGroup:
		return 0, 0, fmt.Errorf("%w: %d", ErrUnknownGroup, group)
	case group <= 15:
		return 0x10, 0, nil
	case group <= 31:
		return 0x12, 16, nil
	case group <= 47:
		return 0x14, 32, nil
	default:
		return 0x16, 48, nil
	}
}

// JoinGroup adds the device to group (0-63).
func (d *Device) JoinGroup(ctx context.Context, index uint8, group int) error {
	return d.updateGroup(ctx, index, group, true)
}

// LeaveGroup removes the device from group (0-63).
func (d *Device) LeaveGroup(ctx context.Context, index uint8, group int) error {
	return d.updateGroup(ctx, index, group, false)
}

// updateGroup read-modify-writes the 16-bit membership mask of the band.
func (d *Device) updateGroup(ctx context.Context, index uint8, group int, join bool) error {
	addr, base, err := groupLocation(group)
	if err != nil {
		return err
	}

	current, err := d.ReadWord(ctx, index, bankGroups, addr)
	if err != nil {
		return fmt.Errorf("reading group mask: %w", err)
	}
	if len(current.Args) < 5 {
		return fmt.Errorf("%w: group mask answer %s", ErrUnexpectedResponse, current)
	}

	mask := uint16(current.Args[3]) | uint16(current.Args[4])<<8
	bit := uint16(1) << uint(group-base)
	if join {
		mask |= bit
	} else {
		mask &^= bit
	}

	_, err = d.Request(ctx, NewTelegram(CmdConfig, index, opWriteWord, bankGroups, addr, byte(mask), byte(mask>>8)))
	if err != nil {
		return fmt.Errorf("writing group mask: %w", err)
	}
	return nil
}

// PassThroughReply answers a pass-through read telegram with value.
func (d *Device) PassThroughReply(ctx context.Context, req Telegram, value uint16) error {
	_, err := d.Request(ctx, NewTelegram(CmdPassThroughReply, req.Index,
		opReadWord, req.Arg(1), req.Arg(2), byte(value), byte(value>>8)))
	return err
}

// WriteStatusValue writes value into the status register of a device.
func (d *Device) WriteStatusValue(ctx context.Context, index uint8, register byte, value uint16) error {
	_, err := d.Request(ctx, NewTelegram(CmdConfig, index, opStatusValue, register, 0x00, byte(value), byte(value>>8)))
	return err
}

// StatusPollEvent asks the module to emit a status poll event for sensor.
// The module must answer with an 'e' telegram.
func (d *Device) StatusPollEvent(ctx context.Context, index uint8, sensor uint8) error {
	answer, err := d.Request(ctx, NewTelegram(CmdGenerateEvent, index, opPollEvent, sensor, 0x00))
	if err != nil {
		return err
	}
	if answer.Command != CmdEvent {
		return fmt.Errorf("%w: poll event answered with %s", ErrUnexpectedResponse, answer)
	}
	return nil
}

// SendEvent writes a status event onto the bus and triggers its poll event.
func (d *Device) SendEvent(ctx context.Context, index uint8, sensor uint8, value uint16) error {
	if err := d.WriteStatusValue(ctx, index, StatusRegisterBase+sensor, value); err != nil {
		return fmt.Errorf("writing status value: %w", err)
	}
	if err := d.StatusPollEvent(ctx, index, sensor); err != nil {
		return fmt.Errorf("generating poll event: %w", err)
	}
	d.metrics.eventSent()
	return nil
}

// BringUpConfig holds the values written during bring-up.
type BringUpConfig struct {
	// HeartbeatSeconds is the module heartbeat interval.
	HeartbeatSeconds byte

	// CommandMode is the forwarding mode passed to ActivateCommands.
	CommandMode byte

	// DeviceMask selects the logical devices to register.
	DeviceMask byte
}

// DefaultBringUpConfig returns heartbeat 30s, forwarding mode 1, mask 0x07.
func DefaultBringUpConfig() BringUpConfig {
	return BringUpConfig{HeartbeatSeconds: 30, CommandMode: 1, DeviceMask: 0x07}
}

// BringUp configures a freshly identified module and registers its devices.
// Every step is attempted; failures are joined into the returned error.
func (d *Device) BringUp(ctx context.Context, cfg BringUpConfig) error {
	steps := []struct {
		name string
		run  func() error
	}{
		{"heartbeat", func() error { return d.WriteByte(ctx, 0, bankConfig, offsetHeartbeat, cfg.HeartbeatSeconds) }},
		{"fan/flap ventilation group", func() error { return d.JoinGroup(ctx, DeviceFanFlap, GroupVentilation) }},
		{"window ventilation group", func() error { return d.JoinGroup(ctx, DeviceWindow, GroupVentilation) }},
		{"light LTNUMGRP", func() error { return d.WriteByte(ctx, DeviceLight, bankConfig, offsetLTNumGrp, lightNumGroup) }},
		{"light group", func() error { return d.JoinGroup(ctx, DeviceLight, GroupLight) }},
		{"light output mode", func() error { return d.WriteByte(ctx, DeviceLight, bankConfig, offsetOutput, lightOutputSwitched) }},
		{"light forwarding", func() error { return d.ActivateCommands(ctx, DeviceLight, cfg.CommandMode) }},
		{"fan/flap forwarding", func() error { return d.ActivateCommands(ctx, DeviceFanFlap, cfg.CommandMode) }},
		{"register", func() error { return d.Register(ctx, cfg.DeviceMask) }},
	}

	var errs []error
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := step.run(); err != nil {
			d.logWarn("bring-up step failed", "step", step.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
		}
	}
	return errors.Join(errs...)
}

func (d *Device) logDebug(msg string, keysAndValues ...any) {
	d.loggerMu.RLock()
	logger := d.logger
	d.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (d *Device) logWarn(msg string, keysAndValues ...any) {
	d.loggerMu.RLock()
	logger := d.logger
	d.loggerMu.RUnlock()

	if logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}
