//go:build rp2040

package main

import (
	"machine"
	"time"
)

// InitUSB configures the USB CDC serial console.
func InitUSB() {
	machine.Serial.Configure(machine.UARTConfig{})
}

// usbReader turns the byte oriented serial API into an io.Reader. It
// blocks until at least one byte is buffered, echoes what it reads and
// maps carriage returns to newlines so terminals that send CR work.
type usbReader struct{}

func (usbReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for machine.Serial.Buffered() == 0 {
		time.Sleep(5 * time.Millisecond)
	}

	n := 0
	for n < len(p) && machine.Serial.Buffered() > 0 {
		b, err := machine.Serial.ReadByte()
		if err != nil {
			return n, err
		}
		if b == '\r' {
			b = '\n'
		}
		p[n] = b
		n++
	}
	echo(p[:n])
	return n, nil
}

func echo(data []byte) {
	for _, b := range data {
		if b == '\n' {
			machine.Serial.Write([]byte("\r\n"))
			continue
		}
		machine.Serial.WriteByte(b)
	}
}

// usbWriter adds the carriage return serial terminals expect.
type usbWriter struct{}

func (usbWriter) Write(p []byte) (int, error) {
	start := 0
	for i, b := range p {
		if b != '\n' {
			continue
		}
		if _, err := machine.Serial.Write(p[start:i]); err != nil {
			return start, err
		}
		if _, err := machine.Serial.Write([]byte("\r\n")); err != nil {
			return i, err
		}
		start = i + 1
	}
	if _, err := machine.Serial.Write(p[start:]); err != nil {
		return start, err
	}
	return len(p), nil
}
