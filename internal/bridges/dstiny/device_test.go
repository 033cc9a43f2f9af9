package dstiny

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestDevice_RequestNoResponse(t *testing.T) {
	bus := &fakeBus{}
	dev := NewDevice(bus, DeviceOptions{})

	_, err := dev.Request(context.Background(), NewTelegram(CmdConfig, 1, 0x00, 0x03, 0x3A, 30, 0))
	if !errors.Is(err, ErrNoResponse) {
		t.Fatalf("Request() error = %v, want ErrNoResponse", err)
	}
	if got := len(bus.written()); got != DefaultRetries+1 {
		t.Errorf("sends = %d, want %d", got, DefaultRetries+1)
	}
}

func TestDevice_RequestRetriesOnInvalidAnswer(t *testing.T) {
	calls := 0
	bus := &fakeBus{}
	bus.respond = func(tel Telegram) string {
		calls++
		if calls < 3 {
			return "garbage\r\n"
		}
		return tel.Encode()
	}
	dev := NewDevice(bus, DeviceOptions{})

	req := NewTelegram(CmdConfig, 2, 0x00, 0x03, 0x00, 0x10, 0x00)
	answer, err := dev.Request(context.Background(), req)
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if answer.String() != req.String() {
		t.Errorf("answer = %v, want %v", answer, req)
	}
	if got := len(bus.written()); got != 3 {
		t.Errorf("sends = %d, want 3", got)
	}
}

func TestDevice_RequestCustomRetries(t *testing.T) {
	bus := &fakeBus{}
	dev := NewDevice(bus, DeviceOptions{Retries: -1})

	if _, err := dev.Request(context.Background(), NewTelegram(CmdStatus, 0, 0x00)); !errors.Is(err, ErrNoResponse) {
		t.Fatalf("Request() error = %v", err)
	}
	if got := len(bus.written()); got != 1 {
		t.Errorf("sends = %d, want 1", got)
	}
}

func TestDevice_RequestCancelled(t *testing.T) {
	bus := &fakeBus{}
	dev := NewDevice(bus, DeviceOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := dev.Request(ctx, NewTelegram(CmdStatus, 0, 0x00)); !errors.Is(err, context.Canceled) {
		t.Fatalf("Request() error = %v, want context.Canceled", err)
	}
	if got := len(bus.written()); got != 0 {
		t.Errorf("sends = %d, want 0", got)
	}
}

func TestDevice_JoinLeaveGroup(t *testing.T) {
	sim := newModuleSim()
	bus := &fakeBus{respond: sim.respond}
	dev := NewDevice(bus, DeviceOptions{})
	ctx := context.Background()

	if err := dev.JoinGroup(ctx, DeviceFanFlap, GroupVentilation); err != nil {
		t.Fatalf("JoinGroup() error = %v", err)
	}

	writes := bus.written()
	last := writes[len(writes)-1]
	want := []byte{opWriteWord, bankGroups, 0x10, 0x00, 0x04}
	if !bytes.Equal(last.Args, want) {
		t.Errorf("mask write args = % X, want % X", last.Args, want)
	}

	// Joining again leaves the mask unchanged.
	if err := dev.JoinGroup(ctx, DeviceFanFlap, GroupVentilation); err != nil {
		t.Fatalf("second JoinGroup() error = %v", err)
	}
	if got := sim.word(DeviceFanFlap, bankGroups, 0x10); got != 0x0400 {
		t.Errorf("mask after rejoin = %04X, want 0400", got)
	}

	if err := dev.LeaveGroup(ctx, DeviceFanFlap, GroupVentilation); err != nil {
		t.Fatalf("LeaveGroup() error = %v", err)
	}
	if got := sim.word(DeviceFanFlap, bankGroups, 0x10); got != 0 {
		t.Errorf("mask after leave = %04X, want 0000", got)
	}
}

func TestDevice_GroupBands(t *testing.T) {
	tests := []struct {
		group int
		addr  byte
		mask  uint16
	}{
		{0, 0x10, 0x0001},
		{15, 0x10, 0x8000},
		{16, 0x12, 0x0001},
		{40, 0x14, 0x0100},
		{48, 0x16, 0x0001},
		{63, 0x16, 0x8000},
	}

	for _, tt := range tests {
		sim := newModuleSim()
		dev := NewDevice(&fakeBus{respond: sim.respond}, DeviceOptions{})

		if err := dev.JoinGroup(context.Background(), DeviceLight, tt.group); err != nil {
			t.Fatalf("JoinGroup(%d) error = %v", tt.group, err)
		}
		if got := sim.word(DeviceLight, bankGroups, tt.addr); got != tt.mask {
			t.Errorf("group %d: mask at %02X = %04X, want %04X", tt.group, tt.addr, got, tt.mask)
		}
	}
}

func TestDevice_UnknownGroup(t *testing.T) {
	for _, group := range []int{64, 100, -1} {
		bus := &fakeBus{respond: newModuleSim().respond}
		dev := NewDevice(bus, DeviceOptions{})

		if err := dev.JoinGroup(context.Background(), DeviceLight, group); !errors.Is(err, ErrUnknownGroup) {
			t.Errorf("JoinGroup(%d) error = %v, want ErrUnknownGroup", group, err)
		}
		if err := dev.LeaveGroup(context.Background(), DeviceLight, group); !errors.Is(err, ErrUnknownGroup) {
			t.Errorf("LeaveGroup(%d) error = %v, want ErrUnknownGroup", group, err)
		}
		if n := len(bus.written()); n != 0 {
			t.Errorf("group %d: %d bus writes, want 0", group, n)
		}
	}
}

func TestDevice_SendEvent(t *testing.T) {
	bus := &fakeBus{respond: newModuleSim().respond}
	dev := NewDevice(bus, DeviceOptions{})

	if err := dev.SendEvent(context.Background(), DeviceFanFlap, SensorField, 0x1632); err != nil {
		t.Fatalf("SendEvent() error = %v", err)
	}

	writes := bus.written()
	if len(writes) != 2 {
		t.Fatalf("writes = %d, want 2", len(writes))
	}
	if want := []byte{opStatusValue, 0x19, 0x00, 0x32, 0x16}; writes[0].Command != CmdConfig || !bytes.Equal(writes[0].Args, want) {
		t.Errorf("status write = %v, want c args % X", writes[0], want)
	}
	if want := []byte{opPollEvent, SensorField, 0x00}; writes[1].Command != CmdGenerateEvent || !bytes.Equal(writes[1].Args, want) {
		t.Errorf("poll event = %v, want g args % X", writes[1], want)
	}
}

func TestDevice_StatusPollEventUnexpectedAnswer(t *testing.T) {
	bus := &fakeBus{respond: func(tel Telegram) string { return tel.Encode() }}
	dev := NewDevice(bus, DeviceOptions{})

	if err := dev.StatusPollEvent(context.Background(), DeviceWindow, SensorField); !errors.Is(err, ErrUnexpectedResponse) {
		t.Errorf("StatusPollEvent() error = %v, want ErrUnexpectedResponse", err)
	}
}

func TestDevice_PassThroughReply(t *testing.T) {
	bus := &fakeBus{respond: newModuleSim().respond}
	dev := NewDevice(bus, DeviceOptions{})

	req := NewTelegram(CmdPassThrough, DeviceFanFlap, opReadWord, 0x7F, 0x10, 0, 0)
	if err := dev.PassThroughReply(context.Background(), req, 0x2B0B); err != nil {
		t.Fatalf("PassThroughReply() error = %v", err)
	}

	w := bus.written()[0]
	if w.Command != CmdPassThroughReply || w.Index != DeviceFanFlap {
		t.Errorf("reply = %v", w)
	}
	if want := []byte{opReadWord, 0x7F, 0x10, 0x0B, 0x2B}; !bytes.Equal(w.Args, want) {
		t.Errorf("reply args = % X, want % X", w.Args, want)
	}
}

func TestDevice_BringUp(t *testing.T) {
	sim := newModuleSim()
	bus := &fakeBus{respond: sim.respond}
	dev := NewDevice(bus, DeviceOptions{})

	if err := dev.BringUp(context.Background(), DefaultBringUpConfig()); err != nil {
		t.Fatalf("BringUp() error = %v", err)
	}

	var got []Telegram
	for _, w := range bus.written() {
		if w.Arg(0) != opReadWord {
			got = append(got, w)
		}
	}

	want := []Telegram{
		NewTelegram(CmdConfig, 0, 0x00, 0x03, 0x3A, 30, 0x00),
		NewTelegram(CmdConfig, DeviceFanFlap, 0x02, 0x01, 0x10, 0x00, 0x04),
		NewTelegram(CmdConfig, DeviceWindow, 0x02, 0x01, 0x10, 0x00, 0x04),
		NewTelegram(CmdConfig, DeviceLight, 0x00, 0x03, 0x01, 0x15, 0x00),
		NewTelegram(CmdConfig, DeviceLight, 0x02, 0x01, 0x10, 0x02, 0x00),
		NewTelegram(CmdConfig, DeviceLight, 0x00, 0x03, 0x00, 0x10, 0x00),
		NewTelegram(CmdConfig, DeviceLight, 0x00, 0x03, 0x32, 0x01, 0x00),
		NewTelegram(CmdConfig, DeviceFanFlap, 0x00, 0x03, 0x32, 0x01, 0x00),
		NewTelegram(CmdConfig, 0, 0x02, 0x40, 0x04, 0x01, 0x07),
	}

	if len(got) != len(want) {
		t.Fatalf("bring-up wrote %d telegrams, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i].String() != want[i].String() {
			t.Errorf("step %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDevice_BringUpContinuesAfterFailure(t *testing.T) {
	bus := &fakeBus{}
	dev := NewDevice(bus, DeviceOptions{Retries: -1})

	err := dev.BringUp(context.Background(), DefaultBringUpConfig())
	if !errors.Is(err, ErrNoResponse) {
		t.Fatalf("BringUp() error = %v, want ErrNoResponse", err)
	}
	// Group joins stop after their failed read; every other step still sends.
	if got := len(bus.written()); got != 9 {
		t.Errorf("sends = %d, want 9", got)
	}
}
