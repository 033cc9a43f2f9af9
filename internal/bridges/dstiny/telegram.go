package dstiny

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sigurn/crc8"
)

// Command characters used on the bus.
const (
	// CmdStatus carries identification and heartbeat ('s').
	CmdStatus byte = 's'

	// CmdConfig reads and writes device memory ('c').
	CmdConfig byte = 'c'

	// CmdPassThrough is a pass-through register access from the bus ('p').
	CmdPassThrough byte = 'p'

	// CmdPassThroughReply answers a pass-through read ('q').
	CmdPassThroughReply byte = 'q'

	// CmdScene is a scene invocation from the bus ('i').
	CmdScene byte = 'i'

	// CmdGenerateEvent asks the module to emit a status poll event ('g').
	CmdGenerateEvent byte = 'g'

	// CmdEvent is the module's acknowledgement of a generated event ('e').
	CmdEvent byte = 'e'
)

// Identification arguments of an 's' telegram.
const (
	// StatusIdentify is sent by the module when it wants to be registered.
	StatusIdentify byte = 0x00

	// StatusOnline is sent by the module once it is registered on the bus.
	StatusOnline byte = 0x20
)

// lineTerminator ends every telegram on the wire.
const lineTerminator = "\r\n"

// maxIndex is the largest device index representable by one hex digit.
const maxIndex = 0x0F

// headerLen is the command character plus the index digit.
const headerLen = 2

// checksumLen is the number of hex digits of the CRC.
const checksumLen = 2

var crcTable = crc8.MakeTable(crc8.CRC8_DVB_S2)

// Checksum computes the CRC-8 of the telegram text preceding the checksum
// field.
func Checksum(body []byte) byte {
	return crc8.Checksum(body, crcTable)
}

// Telegram is one framed message on the device bus.
type Telegram struct {
	// Command is the single command character (e.g. 's', 'c', 'p').
	Command byte

	// Index is the logical device index (0-15).
	Index uint8

	// Args are the positional byte arguments.
	Args []byte
}

// body renders the text the checksum is computed over.
func (t Telegram) body() string {
	var b strings.Builder
	b.Grow(headerLen + 2*len(t.Args))
	b.WriteByte(t.Command)
	fmt.Fprintf(&b, "%1X", t.Index&maxIndex)
	for _, a := range t.Args {
		fmt.Fprintf(&b, "%02X", a)
	}
	return b.String()
}

// Checksum returns the integrity check of t.
func (t Telegram) Checksum() byte {
	return Checksum([]byte(t.body()))
}

// Encode renders t in wire format, including the CRLF terminator.
func (t Telegram) Encode() string {
	body := t.body()
	return fmt.Sprintf("%s%02X%s", body, Checksum([]byte(body)), lineTerminator)
}

// String returns the wire text without the terminator, as used in logs.
func (t Telegram) String() string {
	return strings.TrimSuffix(t.Encode(), lineTerminator)
}

// Arg returns argument i, or 0 when t has fewer arguments.
func (t Telegram) Arg(i int) byte {
	if i < 0 || i >= len(t.Args) {
		return 0
	}
	return t.Args[i]
}

// IsIdentify reports whether t is an identification request ('s', 0x00).
func (t Telegram) IsIdentify() bool {
	return t.Command == CmdStatus && len(t.Args) > 0 && t.Args[0] == StatusIdentify
}

// IsOnline reports whether t signals the module is online ('s', 0x20).
func (t Telegram) IsOnline() bool {
	return t.Command == CmdStatus && len(t.Args) > 0 && t.Args[0] == StatusOnline
}

// Decode parses one line read from the bus.
//
// The trailing CR/LF is optional. Every failure wraps ErrInvalidTelegram:
//   - ErrMalformedTelegram: too short, bad hex, odd argument length
//   - ErrChecksumMismatch: the received CRC differs from the computed one
//   - ErrEmptyPayload: valid header and CRC but no arguments
func Decode(line string) (Telegram, error) {
	text := strings.TrimRight(line, lineTerminator)
	if len(text) < headerLen+checksumLen {
		return Telegram{}, fmt.Errorf("%w: %d characters", ErrMalformedTelegram, len(text))
	}

	payload := text[:len(text)-checksumLen]
	received, err := strconv.ParseUint(text[len(text)-checksumLen:], 16, 8)
	if err != nil {
		return Telegram{}, fmt.Errorf("%w: checksum field %q", ErrMalformedTelegram, text[len(text)-checksumLen:])
	}

	if computed := Checksum([]byte(payload)); byte(received) != computed {
		return Telegram{}, fmt.Errorf("%w: received %02X, computed %02X", ErrChecksumMismatch, received, computed)
	}

	index, err := strconv.ParseUint(payload[1:headerLen], 16, 8)
	if err != nil {
		return Telegram{}, fmt.Errorf("%w: index %q", ErrMalformedTelegram, payload[1:headerLen])
	}

	argText := payload[headerLen:]
	if argText == "" {
		return Telegram{}, ErrEmptyPayload
	}
	if len(argText)%2 != 0 {
		return Telegram{}, fmt.Errorf("%w: odd argument length %d", ErrMalformedTelegram, len(argText))
	}

	args := make([]byte, 0, len(argText)/2)
	for i := 0; i < len(argText); i += 2 {
		v, err := strconv.ParseUint(argText[i:i+2], 16, 8)
		if err != nil {
			return Telegram{}, fmt.Errorf("%w: argument %q", ErrMalformedTelegram, argText[i:i+2])
		}
		args = append(args, byte(v))
	}

	return Telegram{
		Command: payload[0],
		Index:   uint8(index),
		Args:    args,
	}, nil
}

// NewTelegram builds a telegram, copying args.
func NewTelegram(cmd byte, index uint8, args ...byte) Telegram {
	a := make([]byte, len(args))
	copy(a, args)
	return Telegram{Command: cmd, Index: index, Args: a}
}
