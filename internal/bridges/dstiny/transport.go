package dstiny

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
)

// Serial link defaults.
const (
	// DefaultBaudRate is the bus module's fixed line speed.
	DefaultBaudRate = 19200

	// DefaultReadTimeout bounds a single ReadLine call.
	DefaultReadTimeout = 500 * time.Millisecond

	// readChunk is the size of one read from the port.
	readChunk = 64
)

// Transport is a line-oriented duplex link to the bus module.
//
// ReadLine returns one line including its terminator, or "" with a nil
// error when nothing complete arrived within the read timeout.
type Transport interface {
	ReadLine() (string, error)
	Write(p []byte) (int, error)
	Close() error
}

// SerialConfig configures a serial transport.
type SerialConfig struct {
	// Port is the device path, e.g. /dev/ttyUSB0.
	Port string

	// BaudRate defaults to 19200.
	BaudRate int

	// ReadTimeout defaults to 500ms.
	ReadTimeout time.Duration
}

// SerialTransport implements Transport on a serial port (8N1).
//
// Thread Safety: ReadLine and Write may be called from one goroutine each.
type SerialTransport struct {
	port portIO
	path string

	// pending holds bytes read past the last returned line.
	pending []byte
	readMu  sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
}

// OpenSerial opens the configured port.
//
// Parameters:
//   - cfg: Port path and line settings
//
// Returns:
//   - *SerialTransport: Open transport, caller must Close
//   - error: If the port cannot be opened or configured
func OpenSerial(cfg SerialConfig) (*SerialTransport, error) {
	baud := cfg.BaudRate
	if baud == 0 {
		baud = DefaultBaudRate
	}
	timeout := cfg.ReadTimeout
	if timeout == 0 {
		timeout = DefaultReadTimeout
	}

	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("opening serial port %s: %w", cfg.Port, err)
	}

	if err := port.SetReadTimeout(timeout); err != nil {
		port.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("setting read timeout on %s: %w", cfg.Port, err)
	}

	return newSerialTransport(port, cfg.Port), nil
}

// portIO is the subset of serial.Port the transport uses.
type portIO interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

func newSerialTransport(port portIO, path string) *SerialTransport {
	return &SerialTransport{
		port:   port,
		path:   path,
		closed: make(chan struct{}),
	}
}

// Path returns the device path of the port.
func (s *SerialTransport) Path() string {
	return s.path
}

// ReadLine reads until a newline or the port's read timeout expires.
// Partial data survives a timeout and is completed by the next call.
func (s *SerialTransport) ReadLine() (string, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()

	buf := make([]byte, readChunk)
	for {
		if line, ok := s.takeLine(); ok {
			return line, nil
		}

		select {
		case <-s.closed:
			return "", ErrTransportClosed
		default:
		}

		n, err := s.port.Read(buf)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", s.path, err)
		}
		if n == 0 {
			return "", nil
		}
		s.pending = append(s.pending, buf[:n]...)
	}
}

// takeLine removes and returns the first complete line in pending.
func (s *SerialTransport) takeLine() (string, bool) {
	i := bytes.IndexByte(s.pending, '\n')
	if i < 0 {
		return "", false
	}
	line := string(s.pending[:i+1])
	s.pending = append(s.pending[:0], s.pending[i+1:]...)
	return line, true
}

// Write sends p to the port.
func (s *SerialTransport) Write(p []byte) (int, error) {
	select {
	case <-s.closed:
		return 0, ErrTransportClosed
	default:
	}
	return s.port.Write(p)
}

// Close closes the port. Safe to call multiple times.
func (s *SerialTransport) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.port.Close()
	})
	return err
}
