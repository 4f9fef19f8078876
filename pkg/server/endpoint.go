package server

import (
	"bufio"
	"bytes"
	"net"
	"sync"
	"sync/atomic"

	"github.com/derekjr/chatrelay/pkg/protocol"
)

// Endpoint lifecycle states.
const (
	StateUnregistered int32 = iota
	StateRegistered
	StateClosing
)

// Endpoint owns one accepted connection: the socket, a buffered reader
// sized to the maximum frame, and the handle once registered. Writes are
// serialized so concurrent fan-out from other connections' goroutines
// cannot interleave partial frames.
type Endpoint struct {
	id    uint64
	conn  net.Conn
	r     *bufio.Reader
	state atomic.Int32

	writeMu sync.Mutex

	mu     sync.RWMutex
	handle string

	closeOnce sync.Once
	closeErr  error
}

// NewEndpoint wraps an accepted connection. The endpoint starts in the
// unregistered state.
func NewEndpoint(id uint64, conn net.Conn) *Endpoint {
	return &Endpoint{
		id:   id,
		conn: conn,
		r:    bufio.NewReaderSize(conn, protocol.MaxFrameSize),
	}
}

// ID returns the endpoint's watched-set identifier.
func (e *Endpoint) ID() uint64 { return e.id }

// RemoteAddr returns the peer address for logging.
func (e *Endpoint) RemoteAddr() net.Addr { return e.conn.RemoteAddr() }

// State returns the current lifecycle state.
func (e *Endpoint) State() int32 { return e.state.Load() }

// Register stores the owned handle and moves the endpoint to the
// registered state.
func (e *Endpoint) Register(handle string) {
	e.mu.Lock()
	e.handle = handle
	e.mu.Unlock()
	e.state.Store(StateRegistered)
}

// Handle returns the registered handle, or "unregistered" before the
// handshake completes.
func (e *Endpoint) Handle() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.handle == "" {
		return "unregistered"
	}
	return e.handle
}

// ReadFrame reads exactly one PDU. Only the dispatcher's goroutine for
// this endpoint calls it.
func (e *Endpoint) ReadFrame() (*protocol.Frame, error) {
	return protocol.DecodeFrame(e.r)
}

// Deliver writes one PDU with the given flag and payload.
func (e *Endpoint) Deliver(flag uint8, payload []byte) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return protocol.EncodeFrame(e.conn, &protocol.Frame{Flag: flag, Payload: payload})
}

// DeliverBatch writes a sequence of PDUs as one uninterruptible unit. A
// list response uses it so entries cannot interleave with concurrent
// fan-out to the same client.
func (e *Endpoint) DeliverBatch(frames []*protocol.Frame) error {
	var buf bytes.Buffer
	for _, f := range frames {
		if err := protocol.EncodeFrame(&buf, f); err != nil {
			return err
		}
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	_, err := e.conn.Write(buf.Bytes())
	return err
}

// Close shuts down the socket and moves the endpoint to the closing state.
// It is safe to call from any goroutine and more than once.
func (e *Endpoint) Close() error {
	e.closeOnce.Do(func() {
		e.state.Store(StateClosing)
		e.closeErr = e.conn.Close()
	})
	return e.closeErr
}
