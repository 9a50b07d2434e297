package serial

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"
)

// ErrPortClosed is returned by Read and Write after Close
var ErrPortClosed = errors.New("port closed")

// Port is an open serial connection.
// Close must unblock a Read that is waiting for data.
type Port interface {
	io.ReadWriteCloser
	Device() string
}

// Opener opens serial ports by path and baud rate
type Opener interface {
	Open(device string, baudRate int) (Port, error)
}

// RealOpener opens ports through go.bug.st/serial
type RealOpener struct {
	// ReadTimeout bounds a single Read; zero blocks until data arrives or the
	// port is closed.
	ReadTimeout time.Duration
}

// Open opens device at baudRate with 8N1 framing
func (o RealOpener) Open(device string, baudRate int) (Port, error) {
	return NewRealPort(device, baudRate, o.ReadTimeout)
}

// RealPort implements Port using go.bug.st/serial
type RealPort struct {
	device   string
	port     serial.Port
	baudRate int
	isOpen   bool
	mu       sync.Mutex
}

// NewRealPort opens device and returns the wrapped port
func NewRealPort(device string, baudRate int, readTimeout time.Duration) (*RealPort, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", device, err)
	}

	timeout := serial.NoTimeout
	if readTimeout > 0 {
		timeout = readTimeout
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}

	// Drop whatever the driver buffered before we attached
	_ = port.ResetInputBuffer()

	return &RealPort{
		device:   device,
		port:     port,
		baudRate: baudRate,
		isOpen:   true,
	}, nil
}

// Read implements io.Reader
func (r *RealPort) Read(p []byte) (n int, err error) {
	r.mu.Lock()
	port := r.port
	r.mu.Unlock()

	if port == nil {
		return 0, ErrPortClosed
	}

	return port.Read(p)
}

// Write implements io.Writer
func (r *RealPort) Write(p []byte) (n int, err error) {
	r.mu.Lock()
	port := r.port
	r.mu.Unlock()

	if port == nil {
		return 0, ErrPortClosed
	}

	return port.Write(p)
}

// Close implements io.Closer
func (r *RealPort) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isOpen || r.port == nil {
		return nil
	}

	err := r.port.Close()
	r.port = nil
	r.isOpen = false

	return err
}

// Device returns the device path
func (r *RealPort) Device() string {
	return r.device
}

// BaudRate returns the configured baud rate
func (r *RealPort) BaudRate() int {
	return r.baudRate
}

// IsOpen returns true if the port is open
func (r *RealPort) IsOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isOpen
}

// PortWithStats wraps a Port to track statistics
type PortWithStats struct {
	Port
	bytesRead    atomic.Int64
	bytesWritten atomic.Int64
	linesRead    atomic.Int64
}

// NewPortWithStats creates a new PortWithStats
func NewPortWithStats(port Port) *PortWithStats {
	return &PortWithStats{Port: port}
}

// Read implements io.Reader and tracks bytes read
func (p *PortWithStats) Read(b []byte) (int, error) {
	n, err := p.Port.Read(b)
	p.bytesRead.Add(int64(n))
	return n, err
}

// Write implements io.Writer and tracks bytes written
func (p *PortWithStats) Write(b []byte) (int, error) {
	n, err := p.Port.Write(b)
	p.bytesWritten.Add(int64(n))
	return n, err
}

// LineRead increments the line counter
func (p *PortWithStats) LineRead() {
	p.linesRead.Add(1)
}

// Stats returns current statistics
func (p *PortWithStats) Stats() (bytesRead, bytesWritten, linesRead int64) {
	return p.bytesRead.Load(), p.bytesWritten.Load(), p.linesRead.Load()
}

// DescribeOpenError turns a go.bug.st/serial error into an operator-facing reason
func DescribeOpenError(err error) string {
	var portErr *serial.PortError
	if !errors.As(err, &portErr) {
		return err.Error()
	}

	switch portErr.Code() {
	case serial.PortBusy:
		return "port is in use by another process"
	case serial.PortNotFound:
		return "device not found"
	case serial.PermissionDenied:
		return "permission denied"
	case serial.InvalidSpeed:
		return "baud rate not supported by the device"
	default:
		return portErr.EncodedErrorString()
	}
}
