// Package dstiny implements the device-bus side of the bridge.
//
// The dstiny module is a serial controller that represents several logical
// devices on the building bus. It speaks a line-oriented protocol of hex
// telegrams, each protected by a CRC-8 checksum. This package encodes and
// decodes those telegrams, drives request/response exchanges with retry,
// runs the session state machine, and dispatches inbound bus commands to
// the hub.
//
// # Architecture
//
//	┌──────────┐  serial  ┌─────────────────────────┐  HubActions  ┌──────────┐
//	│  dstiny  │◄────────►│ Session ─► Dispatcher   │─────────────►│   Hub    │
//	│  module  │          │    ▲                    │              │ (poller) │
//	└──────────┘          │    └── eventbridge.Queue│◄─────────────┤          │
//	                      └─────────────────────────┘              └──────────┘
//
// # Wire Format
//
//	<cmd:1 char><index:1 hex><arg:2 hex>...<crc:2 hex>\r\n
//
// The checksum is CRC-8 with polynomial 0xD5, initial value 0 and no
// reflection (CRC-8/DVB-S2), computed over the ASCII text preceding it.
//
// Example:
//
//	t := dstiny.Telegram{Command: 's', Index: 0, Args: []byte{0x20}}
//	line := t.Encode() // "s020XX\r\n"
//
// # Thread Safety
//
// Session is owned by the bus worker goroutine. Device serializes its
// requests. Dispatcher only touches shared state through
// eventbridge.SharedState.
package dstiny
