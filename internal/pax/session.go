package pax

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openpax/paxctl/internal/ble"
	"github.com/openpax/paxctl/internal/pax/crypto"
	"github.com/openpax/paxctl/internal/pax/protocol"
)

// ExpectedManufacturer is the Device Information manufacturer string every
// supported unit reports.
const ExpectedManufacturer = "PAX Labs, Inc"

// Options configures session behavior.
type Options struct {
	ConnectTimeout time.Duration // per connection attempt
	MaxRetries     int           // reconnect attempts before giving up
	BackoffInitial time.Duration // delay before the second reconnect attempt
	BackoffMax     time.Duration // backoff cap
	EventBuffer    int           // capacity of the Events channel
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		ConnectTimeout: 15 * time.Second,
		MaxRetries:     5,
		BackoffInitial: 500 * time.Millisecond,
		BackoffMax:     8 * time.Second,
		EventBuffer:    32,
	}
}

// DeviceInfo holds the identity strings read from the Device Information
// service during the connect handshake.
type DeviceInfo struct {
	Manufacturer string
	Model        string
	Serial       string
	HardwareRev  string
	SoftwareRev  string
}

// Notification is one entry on the session's observability stream: either a
// decoded frame (Frame != nil) or a connection status transition.
type Notification struct {
	Frame  protocol.Event
	Status ConnectionStatus
}

// Session owns one device's BLE connection and mirrored state. The transport
// handle is exclusively the session's; commands may be sent concurrently and
// are serialized at the write boundary.
type Session struct {
	adapter ble.Adapter
	address string
	opts    Options

	// writeMu serializes characteristic writes; the peripheral cannot
	// handle overlapping writes.
	writeMu sync.Mutex

	mu           sync.Mutex
	conn         ble.Connection
	writeChar    ble.Characteristic
	readChar     ble.Characteristic
	key          []byte
	info         DeviceInfo
	state        State
	stateChanged chan struct{} // closed and replaced on every state change
	closed       bool

	reconnecting atomic.Bool
	events       chan Notification
}

// NewSession creates a session for the device at address. The session starts
// disconnected; call Connect.
func NewSession(adapter ble.Adapter, address string, opts Options) *Session {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 15 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 5
	}
	if opts.BackoffInitial <= 0 {
		opts.BackoffInitial = 500 * time.Millisecond
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = 8 * time.Second
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 32
	}
	return &Session{
		adapter:      adapter,
		address:      address,
		opts:         opts,
		stateChanged: make(chan struct{}),
		events:       make(chan Notification, opts.EventBuffer),
	}
}

// Connect establishes the BLE connection, performs the identification
// handshake, and subscribes to notifications. On failure the session is left
// disconnected.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state.Status != StatusDisconnected {
		status := s.state.Status
		s.mu.Unlock()
		return fmt.Errorf("pax: connect while %s", status)
	}
	s.setStatusLocked(StatusConnecting)
	s.mu.Unlock()
	s.emitStatus(StatusConnecting)

	if err := s.adapter.Enable(); err != nil {
		s.setStatus(StatusDisconnected)
		return fmt.Errorf("%w: enable adapter: %v", ErrTransportFailure, err)
	}

	cctx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	defer cancel()

	conn, err := s.adapter.Connect(cctx, s.address)
	if err != nil {
		s.setStatus(StatusDisconnected)
		if cctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrConnectTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrTransportFailure, err)
	}

	if err := s.attach(conn); err != nil {
		conn.Disconnect()
		s.setStatus(StatusDisconnected)
		return err
	}

	s.setStatus(StatusConnected)
	slog.Info("[pax] connected", "address", s.address, "model", s.Info().Model)

	// Prime the state model; the device answers with one notification per
	// requested attribute.
	if err := s.SendCommand(protocol.StatusRequestCommand{Attributes: protocol.AllStatusAttributes}); err != nil {
		slog.Warn("[pax] initial status request failed", "error", err)
	}
	return nil
}

// attach runs the handshake on a fresh connection: read the device identity
// (first connect only), derive the packet key, discover the Pax
// characteristics, and subscribe to notifications.
func (s *Session) attach(conn ble.Connection) error {
	s.mu.Lock()
	needInfo := s.key == nil
	s.mu.Unlock()

	if needInfo {
		info, err := readDeviceInfo(conn)
		if err != nil {
			return fmt.Errorf("%w: device info: %v", ErrTransportFailure, err)
		}
		if info.Manufacturer != ExpectedManufacturer {
			return fmt.Errorf("%w: manufacturer %q", ErrWrongManufacturer, info.Manufacturer)
		}
		key, err := crypto.DeriveDeviceKey(info.Serial)
		if err != nil {
			return fmt.Errorf("%w: derive key: %v", ErrTransportFailure, err)
		}
		s.mu.Lock()
		s.info = info
		s.key = key
		s.mu.Unlock()
	}

	writeChar, err := conn.DiscoverCharacteristic(ble.PaxServiceUUID, ble.PaxWriteCharUUID)
	if err != nil {
		return fmt.Errorf("%w: discover write characteristic: %v", ErrTransportFailure, err)
	}
	readChar, err := conn.DiscoverCharacteristic(ble.PaxServiceUUID, ble.PaxReadCharUUID)
	if err != nil {
		return fmt.Errorf("%w: discover read characteristic: %v", ErrTransportFailure, err)
	}
	notifyChar, err := conn.DiscoverCharacteristic(ble.PaxServiceUUID, ble.PaxNotifyCharUUID)
	if err != nil {
		return fmt.Errorf("%w: discover notify characteristic: %v", ErrTransportFailure, err)
	}

	// The notify characteristic is a doorbell: the payload itself is
	// fetched from the read characteristic.
	if err := notifyChar.Subscribe(func([]byte) { s.handleNotify() }); err != nil {
		return fmt.Errorf("%w: subscribe: %v", ErrTransportFailure, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.writeChar = writeChar
	s.readChar = readChar
	s.mu.Unlock()

	conn.OnDisconnect(s.handleDrop)
	return nil
}

// handleNotify is the single consumer of incoming frames: fetch, decrypt,
// decode, apply. Nothing here is fatal to the session.
func (s *Session) handleNotify() {
	s.mu.Lock()
	readChar := s.readChar
	key := s.key
	s.mu.Unlock()
	if readChar == nil || key == nil {
		return
	}

	packet, err := readChar.Read()
	if err != nil {
		slog.Warn("[pax] read characteristic failed", "error", err)
		return
	}

	plain, err := crypto.DecryptPacket(key, packet)
	if err != nil {
		slog.Warn("[pax] undecryptable packet", "len", len(packet), "error", err)
		s.emit(Notification{Frame: protocol.UnknownEvent{Raw: packet}})
		return
	}

	ev := protocol.Decode(plain)
	if u, ok := ev.(protocol.UnknownEvent); ok {
		slog.Debug("[pax] unknown frame", "type", byte(u.Type), "len", len(u.Raw))
	}

	s.mu.Lock()
	s.state = s.state.apply(ev)
	s.broadcastLocked()
	s.mu.Unlock()

	s.emit(Notification{Frame: ev})
}

// SendCommand encodes, encrypts, and writes a command frame. Commands do not
// wait for a confirmation notification; pair with AwaitState to confirm an
// effect took hold.
func (s *Session) SendCommand(cmd protocol.Command) error {
	frame, err := cmd.Encode()
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state.Status != StatusConnected || s.writeChar == nil {
		s.mu.Unlock()
		return ErrNotConnected
	}
	writeChar := s.writeChar
	key := s.key
	s.mu.Unlock()

	packet, err := crypto.EncryptPacket(key, frame)
	if err != nil {
		return fmt.Errorf("pax: encrypt command: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := writeChar.Write(packet); err != nil {
		// One immediate retry on an otherwise healthy connection.
		if err2 := writeChar.Write(packet); err2 != nil {
			return fmt.Errorf("%w: %v", ErrWriteFailed, err2)
		}
	}
	return nil
}

// AwaitState blocks until the device state satisfies pred or ctx expires.
// The wait is a lease: abandoning it never affects session internals.
func (s *Session) AwaitState(ctx context.Context, pred func(State) bool) error {
	for {
		s.mu.Lock()
		snapshot := s.state.clone()
		changed := s.stateChanged
		closed := s.closed
		s.mu.Unlock()

		if pred(snapshot) {
			return nil
		}
		if closed {
			return ErrClosed
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrAwaitTimeout, ctx.Err())
		}
	}
}

// CurrentState returns a snapshot of the last-known device state.
func (s *Session) CurrentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Info returns the identity read during the connect handshake. Zero until
// the first successful Connect.
func (s *Session) Info() DeviceInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// Events exposes decoded frames (including Unknown ones) and connection
// status transitions. Entries are dropped, not blocked on, when the buffer
// is full.
func (s *Session) Events() <-chan Notification {
	return s.events
}

// Close tears the session down. Idempotent; the session always ends
// disconnected.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.conn = nil
	s.writeChar = nil
	s.readChar = nil
	s.setStatusLocked(StatusDisconnected)
	s.mu.Unlock()

	if conn != nil {
		conn.Disconnect()
	}
	s.emitStatus(StatusDisconnected)
	return nil
}

// handleDrop reacts to an unexpected transport-level disconnect. At most one
// reconnect loop runs at a time.
func (s *Session) handleDrop() {
	if !s.reconnecting.CompareAndSwap(false, true) {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.reconnecting.Store(false)
		return
	}
	s.conn = nil
	s.writeChar = nil
	s.readChar = nil
	s.setStatusLocked(StatusReconnecting)
	s.mu.Unlock()

	s.emitStatus(StatusReconnecting)
	slog.Warn("[pax] connection dropped, reconnecting", "address", s.address)
	go s.reconnectLoop()
}

// reconnectLoop makes bounded, strictly sequential reconnect attempts with
// exponential backoff. Device state accumulated before the drop is kept.
func (s *Session) reconnectLoop() {
	defer s.reconnecting.Store(false)

	for attempt := 1; attempt <= s.opts.MaxRetries; attempt++ {
		if attempt > 1 {
			delay := backoffDelay(attempt-2, s.opts.BackoffInitial, s.opts.BackoffMax)
			slog.Info("[pax] reconnect backoff", "attempt", attempt, "delay", delay)
			time.Sleep(delay)
		}

		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), s.opts.ConnectTimeout)
		conn, err := s.adapter.Connect(ctx, s.address)
		cancel()
		if err != nil {
			slog.Warn("[pax] reconnect failed", "attempt", attempt, "error", err)
			continue
		}

		if err := s.attach(conn); err != nil {
			conn.Disconnect()
			slog.Warn("[pax] reconnect handshake failed", "attempt", attempt, "error", err)
			continue
		}

		s.setStatus(StatusConnected)
		slog.Info("[pax] reconnected", "address", s.address, "attempt", attempt)

		if err := s.SendCommand(protocol.StatusRequestCommand{Attributes: protocol.AllStatusAttributes}); err != nil {
			slog.Warn("[pax] status request after reconnect failed", "error", err)
		}
		return
	}

	// Retry budget spent: settle in Disconnected and say so. Callers watch
	// the status, this is never silent.
	slog.Error("[pax] reconnect attempts exhausted", "address", s.address, "attempts", s.opts.MaxRetries)
	s.setStatus(StatusDisconnected)
}

// backoffDelay returns initial<<attempt capped at max.
func backoffDelay(attempt int, initial, max time.Duration) time.Duration {
	if attempt > 30 {
		return max
	}
	delay := initial << uint(attempt)
	if delay > max || delay <= 0 {
		return max
	}
	return delay
}

func (s *Session) setStatus(status ConnectionStatus) {
	s.mu.Lock()
	changed := s.setStatusLocked(status)
	s.mu.Unlock()
	if changed {
		s.emitStatus(status)
	}
}

// setStatusLocked updates the lifecycle state and wakes waiters. Caller
// holds mu.
func (s *Session) setStatusLocked(status ConnectionStatus) bool {
	if s.state.Status == status {
		return false
	}
	s.state.Status = status
	s.broadcastLocked()
	return true
}

// broadcastLocked wakes every AwaitState waiter. Caller holds mu.
func (s *Session) broadcastLocked() {
	close(s.stateChanged)
	s.stateChanged = make(chan struct{})
}

func (s *Session) emitStatus(status ConnectionStatus) {
	s.emit(Notification{Status: status})
}

func (s *Session) emit(n Notification) {
	select {
	case s.events <- n:
	default:
		slog.Warn("[pax] event buffer full, dropping notification")
	}
}

// readDeviceInfo reads the standard Device Information characteristics.
func readDeviceInfo(conn ble.Connection) (DeviceInfo, error) {
	var info DeviceInfo
	fields := []struct {
		uuid string
		dst  *string
	}{
		{ble.ManufacturerCharUUID, &info.Manufacturer},
		{ble.ModelNumberCharUUID, &info.Model},
		{ble.SerialNumberCharUUID, &info.Serial},
		{ble.HardwareRevCharUUID, &info.HardwareRev},
		{ble.SoftwareRevCharUUID, &info.SoftwareRev},
	}
	for _, f := range fields {
		char, err := conn.DiscoverCharacteristic(ble.DeviceInfoServiceUUID, f.uuid)
		if err != nil {
			return DeviceInfo{}, err
		}
		val, err := char.Read()
		if err != nil {
			return DeviceInfo{}, err
		}
		*f.dst = string(val)
	}
	return info, nil
}
