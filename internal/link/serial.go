package link

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// SerialTransport is the serial port the link runs over.
type SerialTransport struct {
	port serial.Port
}

// OpenSerial opens portName at baud, 8N1. Reads time out after readTimeout so
// the receive loop can observe cancellation.
func OpenSerial(portName string, baud int, readTimeout time.Duration) (*SerialTransport, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", portName, err)
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", portName, err)
	}
	return &SerialTransport{port: port}, nil
}

func (s *SerialTransport) Read(p []byte) (int, error)  { return s.port.Read(p) }
func (s *SerialTransport) Write(p []byte) (int, error) { return s.port.Write(p) }

// Close closes the port.
func (s *SerialTransport) Close() error { return s.port.Close() }

// Ports lists the serial ports present on the system.
func Ports() ([]string, error) {
	return serial.GetPortsList()
}
