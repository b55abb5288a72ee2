// Copyright © 2024 Jeff Berkowitz (pdxjjb@gmail.com)
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.

package cpu

// Console is the byte-oriented I/O device every build wires to the io
// syscall family (syscall.Print, syscall.Read1, syscall.HexPrint). It is
// deliberately minimal: a single blocking writer and a single non-blocking
// reader, mirroring the Nano's bit-banged UART rather than a buffered tty.
type Console interface {
	// WriteByte blocks until b has been accepted by the device.
	WriteByte(b byte) error
	// ReadByte returns the next buffered byte, or ok=false if none is
	// available yet; it never blocks.
	ReadByte() (b byte, ok bool)
}
