package eventbridge

import "fmt"

// Kind classifies an Event.
type Kind int

const (
	// KindStatus is written to a status register and followed by a poll event.
	KindStatus Kind = iota

	// KindBinary is a binary input change. The bus worker currently ignores it.
	KindBinary
)

// String returns the kind name used in logs.
func (k Kind) String() string {
	switch k {
	case KindStatus:
		return "Status"
	case KindBinary:
		return "Binary"
	default:
		return "Unknown"
	}
}

// Event is a single hub-originated change destined for the device bus.
type Event struct {
	// Index is the logical device index on the bus (0-15).
	Index uint8

	// Value is the 16-bit payload; for fan/flap it is (fan<<8)|flap.
	Value uint16

	// SensorID selects the status register and poll sensor.
	SensorID uint8

	Kind Kind
}

// String returns a human-readable representation of the event.
func (e Event) String() string {
	return fmt.Sprintf("index:%d value:(%d,%d) (%04X) sensor:%d kind:%s",
		e.Index, e.Value>>8, e.Value&0xFF, e.Value, e.SensorID, e.Kind)
}
