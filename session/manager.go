package session

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"espmonitor/output"
	"espmonitor/serial"
	"espmonitor/stream"
)

const (
	// MaxLineLength caps a single emitted line; longer runs are split
	MaxLineLength = 64 * 1024

	readBufferSize = 4096

	// ErrorLinePrefix marks the synthetic line published when a read fails
	ErrorLinePrefix = "[serial error] "
)

// LineSink receives every line read from the attached device
type LineSink interface {
	Publish(line stream.Line)
}

// Info is a point-in-time view of the session
type Info struct {
	State      State
	Port       string
	BaudRate   int
	Generation uint64
	AttachedAt time.Time
	LastError  error
	LinesRead  int64
	BytesRead  int64
}

// ManagerConfig wires a Manager to its collaborators
type ManagerConfig struct {
	Opener  serial.Opener
	Sinks   []LineSink
	OnEvent output.EventCallback // optional
	Logger  *slog.Logger
}

// attachment is one open port and the read loop bound to it
type attachment struct {
	gen        uint64
	port       *serial.PortWithStats
	device     string
	baudRate   int
	attachedAt time.Time

	stopping atomic.Bool   // set before the port is closed on purpose
	done     chan struct{} // closed when the read loop exits
	released chan struct{} // closed once the manager is back to Detached
}

// Manager owns the single serial session. All state changes go through
// Attach, Detach and the read loop's failure path.
type Manager struct {
	opener  serial.Opener
	sinks   []LineSink
	onEvent output.EventCallback
	logger  *slog.Logger

	mu      sync.Mutex
	state   State
	cur     *attachment
	settled chan struct{} // non-nil while Attaching
	lastErr error
	closed  bool

	generation atomic.Uint64

	// writeMu serializes writers; the read loop never takes it
	writeMu sync.Mutex
}

// NewManager creates a detached session manager
func NewManager(cfg ManagerConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		opener:  cfg.Opener,
		sinks:   cfg.Sinks,
		onEvent: cfg.OnEvent,
		logger:  logger,
		state:   StateDetached,
	}
}

// Attach opens device at baudRate and starts the read loop. It returns once
// the port is open; it does not wait for data.
func (m *Manager) Attach(device string, baudRate int) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	if m.state != StateDetached {
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("%w: session is %s", ErrPortBusy, state)
	}
	if device == "" {
		m.mu.Unlock()
		return &PortOpenError{Port: device, BaudRate: baudRate, Reason: "port is required"}
	}
	if !serial.ValidBaudRate(baudRate) {
		m.mu.Unlock()
		return &PortOpenError{
			Port:     device,
			BaudRate: baudRate,
			Reason:   fmt.Sprintf("unsupported baud rate %d (supported: %s)", baudRate, serial.BaudRateList()),
		}
	}

	settled := make(chan struct{})
	m.state = StateAttaching
	m.settled = settled
	m.mu.Unlock()

	m.logger.Info("Opening serial port", "device", device, "baud", baudRate)
	port, err := m.opener.Open(device, baudRate)

	m.mu.Lock()
	m.settled = nil
	close(settled)

	if err != nil {
		openErr := &PortOpenError{
			Port:     device,
			BaudRate: baudRate,
			Reason:   serial.DescribeOpenError(err),
			Err:      err,
		}
		m.state = StateDetached
		m.lastErr = openErr
		m.mu.Unlock()

		m.logger.Warn("Failed to open serial port", "device", device, "baud", baudRate, "error", err)
		return openErr
	}

	a := &attachment{
		gen:        m.generation.Add(1),
		port:       serial.NewPortWithStats(port),
		device:     device,
		baudRate:   baudRate,
		attachedAt: time.Now(),
		done:       make(chan struct{}),
		released:   make(chan struct{}),
	}
	m.cur = a
	m.state = StateAttached
	m.lastErr = nil
	go m.readLoop(a)
	m.mu.Unlock()

	m.logger.Info("Serial attached", "device", device, "baud", baudRate, "generation", a.gen)
	m.emitEvent(output.Event{
		Type:    output.EventAttached,
		Device:  device,
		Message: "serial session attached",
		Details: map[string]any{"baudrate": baudRate, "generation": a.gen},
	})
	return nil
}

// Detach stops the read loop and closes the port. Detaching an already
// detached session succeeds. A detach racing an attach waits for the attach
// to settle and then detaches whatever it produced.
func (m *Manager) Detach() error {
	m.mu.Lock()
	for {
		switch m.state {
		case StateDetached:
			m.mu.Unlock()
			return nil

		case StateAttaching:
			ch := m.settled
			m.mu.Unlock()
			<-ch
			m.mu.Lock()

		case StateDetaching:
			ch := m.cur.released
			m.mu.Unlock()
			<-ch
			m.mu.Lock()

		case StateAttached:
			a := m.cur
			m.state = StateDetaching
			m.mu.Unlock()
			m.stop(a)
			return nil
		}
	}
}

// stop tears down a. Caller must have moved the state to Detaching.
func (m *Manager) stop(a *attachment) {
	a.stopping.Store(true)
	if err := a.port.Close(); err != nil {
		m.logger.Warn("Error closing serial port", "device", a.device, "error", err)
	}
	<-a.done

	m.mu.Lock()
	if m.cur == a {
		m.cur = nil
		m.state = StateDetached
	}
	m.mu.Unlock()
	close(a.released)

	bytesRead, bytesWritten, linesRead := a.port.Stats()
	m.logger.Info("Serial detached",
		"device", a.device,
		"generation", a.gen,
		"lines_read", linesRead,
		"bytes_read", bytesRead,
		"bytes_written", bytesWritten)
	m.emitEvent(output.Event{
		Type:    output.EventDetached,
		Device:  a.device,
		Message: "serial session detached",
		Details: map[string]any{"generation": a.gen, "lines_read": linesRead},
	})
}

// Write sends data to the attached device, optionally followed by "\n"
func (m *Manager) Write(data []byte, appendNewline bool) error {
	m.mu.Lock()
	if m.state != StateAttached || m.cur == nil {
		m.mu.Unlock()
		return ErrNotAttached
	}
	a := m.cur
	m.mu.Unlock()

	payload := make([]byte, 0, len(data)+1)
	payload = append(payload, data...)
	if appendNewline {
		payload = append(payload, '\n')
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if a.stopping.Load() {
		return ErrNotAttached
	}
	if _, err := a.port.Write(payload); err != nil {
		if a.stopping.Load() {
			return ErrNotAttached
		}
		return &WriteError{Port: a.device, Err: err}
	}

	m.logger.Debug("Wrote to serial", "device", a.device, "bytes", len(payload))
	return nil
}

// readLoop reads until the port is closed or fails. A read returning no data
// and no error is a timeout.
func (m *Manager) readLoop(a *attachment) {
	defer close(a.done)

	buf := make([]byte, readBufferSize)
	var pending []byte

	for {
		n, err := a.port.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			pending = m.drainLines(a, pending)
		}

		if err != nil {
			if a.stopping.Load() {
				return
			}
			if len(pending) > 0 {
				m.emitLine(a, pending)
			}
			m.fail(a, err)
			return
		}

		if n == 0 && a.stopping.Load() {
			return
		}
	}
}

// drainLines emits every complete line in pending and returns the remainder
func (m *Manager) drainLines(a *attachment, pending []byte) []byte {
	rest := pending
	for {
		i := bytes.IndexByte(rest, '\n')
		if i < 0 {
			break
		}
		m.emitLine(a, rest[:i])
		rest = rest[i+1:]
	}

	for len(rest) > MaxLineLength {
		cut := splitPoint(rest)
		m.emitLine(a, rest[:cut])
		rest = rest[cut:]
	}

	n := copy(pending, rest)
	return pending[:n]
}

// emitLine decodes raw and hands it to the sinks unless the attachment is stale
func (m *Manager) emitLine(a *attachment, raw []byte) {
	raw = bytes.TrimSuffix(raw, []byte("\r"))

	for len(raw) > MaxLineLength {
		cut := splitPoint(raw)
		m.emitLine(a, raw[:cut])
		raw = raw[cut:]
	}

	if a.gen != m.generation.Load() || a.stopping.Load() {
		return
	}

	a.port.LineRead()
	m.publish(stream.NewLine(strings.ToValidUTF8(string(raw), "\uFFFD")))
}

// fail forces the session to Detached after an unrecoverable read error
func (m *Manager) fail(a *attachment, err error) {
	m.mu.Lock()
	if m.cur != a || m.state != StateAttached {
		m.mu.Unlock()
		return
	}
	failure := &ReadFailure{Port: a.device, Generation: a.gen, At: time.Now(), Err: err}
	// Published before the state drops so no later attach can receive it
	m.publish(stream.NewLine(ErrorLinePrefix + err.Error()))
	m.cur = nil
	m.state = StateDetached
	m.lastErr = failure
	m.mu.Unlock()

	a.stopping.Store(true)
	_ = a.port.Close()
	close(a.released)

	m.logger.Error("Serial read failed, session detached",
		"device", a.device,
		"generation", a.gen,
		"error", err)

	m.emitEvent(output.Event{
		Type:    output.EventReadFailure,
		Device:  a.device,
		Message: err.Error(),
		Details: map[string]any{"generation": a.gen},
	})
}

func (m *Manager) publish(line stream.Line) {
	for _, sink := range m.sinks {
		sink.Publish(line)
	}
}

func (m *Manager) emitEvent(ev output.Event) {
	if m.onEvent != nil {
		m.onEvent(ev)
	}
}

// State returns the current lifecycle state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastError returns the error that ended the most recent attach attempt or
// session, or nil
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Info returns a snapshot of the session
func (m *Manager) Info() Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	info := Info{
		State:      m.state,
		Generation: m.generation.Load(),
		LastError:  m.lastErr,
	}
	if a := m.cur; a != nil {
		info.Port = a.device
		info.BaudRate = a.baudRate
		info.AttachedAt = a.attachedAt
		info.BytesRead, _, info.LinesRead = a.port.Stats()
	}
	return info
}

// Shutdown rejects further attaches and detaches the current session
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	_ = m.Detach()
	m.logger.Info("Session manager shut down")
}

// splitPoint picks a cut at or below MaxLineLength that does not split a
// UTF-8 sequence
func splitPoint(b []byte) int {
	if len(b) <= MaxLineLength {
		return len(b)
	}
	cut := MaxLineLength
	for i := cut; i > cut-utf8.UTFMax && i > 0; i-- {
		if utf8.RuneStart(b[i]) {
			return i
		}
	}
	return cut
}
