// Copyright © 2024 Jeff Berkowitz (pdxjjb@gmail.com)

package console

import (
	"fmt"
	"syscall"
	"time"

	"go.bug.st/serial"
)

// readPollTimeout is how long ReadByte waits for a byte before reporting
// none available; short enough that polling it from a scheduler loop
// doesn't stall the rest of the system.
const readPollTimeout = 2 * time.Millisecond

// Serial is a cpu.Console backed by a real serial port, for driving this
// kernel against actual UART hardware rather than an in-process UART.
type Serial struct {
	port serial.Port
}

// OpenSerial opens deviceName at baudRate, 8N1, exactly as the original
// hardware tooling does.
func OpenSerial(deviceName string, baudRate int) (*Serial, error) {
	mode := &serial.Mode{BaudRate: baudRate, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit}
	port, err := serial.Open(deviceName, mode)
	if err != nil {
		return nil, err
	}
	return &Serial{port: port}, nil
}

func (s *Serial) Close() error { return s.port.Close() }

// WriteByte blocks until b has been accepted by the port, retrying on the
// EINTR that Go's goroutine scheduler can surface mid-syscall.
func (s *Serial) WriteByte(b byte) error {
	buf := []byte{b}
	for {
		n, err := s.port.Write(buf)
		if isRetryable(err) {
			continue
		}
		if err != nil {
			return err
		}
		if n != 1 {
			return fmt.Errorf("console: serial write consumed %d bytes, expected 1", n)
		}
		return nil
	}
}

// ReadByte polls for one byte with a short timeout, returning ok=false if
// nothing arrived - never blocking the caller for long.
func (s *Serial) ReadByte() (byte, bool) {
	buf := make([]byte, 1)
	s.port.SetReadTimeout(readPollTimeout)
	for {
		n, err := s.port.Read(buf)
		if isRetryable(err) {
			continue
		}
		if err != nil || n == 0 {
			return 0, false
		}
		return buf[0], true
	}
}

func isRetryable(err error) bool {
	const eIntr = 4
	errno, ok := err.(syscall.Errno)
	return ok && errno == eIntr
}
