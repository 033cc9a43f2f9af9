package dstiny

import (
	"errors"
	"fmt"
)

// Domain errors for the dstiny bridge package.
var (
	// ErrInvalidTelegram is the parent of every decode failure.
	// Callers treat it as "no telegram".
	ErrInvalidTelegram = errors.New("dstiny: invalid telegram")

	// ErrChecksumMismatch is returned when the received CRC does not match.
	ErrChecksumMismatch = fmt.Errorf("%w: checksum mismatch", ErrInvalidTelegram)

	// ErrMalformedTelegram is returned for unparsable hex or a short line.
	ErrMalformedTelegram = fmt.Errorf("%w: malformed", ErrInvalidTelegram)

	// ErrEmptyPayload is returned when a valid header carries no arguments.
	ErrEmptyPayload = fmt.Errorf("%w: empty payload", ErrInvalidTelegram)

	// ErrNoResponse is returned when a request got no valid answer
	// after all retries.
	ErrNoResponse = errors.New("dstiny: no response")

	// ErrUnexpectedResponse is returned when an answer has the wrong shape.
	ErrUnexpectedResponse = errors.New("dstiny: unexpected response")

	// ErrUnknownGroup is returned for group numbers above 63.
	ErrUnknownGroup = errors.New("dstiny: unknown group")

	// ErrTransportClosed is returned by a transport after Close.
	ErrTransportClosed = errors.New("dstiny: transport closed")
)
