package client

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/derekjr/chatrelay/pkg/protocol"
)

// ErrClosed is returned by Send after the connection shut down.
var ErrClosed = errors.New("connection closed")

// Connection is the client side of a relay link. A reader goroutine
// decodes PDUs into the Incoming channel and a writer goroutine drains
// the outgoing queue, so callers never touch the socket directly.
type Connection struct {
	addr string

	mu        sync.RWMutex
	conn      net.Conn
	connected bool

	incoming chan *protocol.Frame
	outgoing chan *protocol.Frame
	errs     chan error

	stats  *Stats
	logger logrus.FieldLogger

	shutdown  chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Dial connects to a relay server at host:port.
func Dial(addr string) (*Connection, error) {
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	return NewConnection(conn), nil
}

// NewConnection wraps an established transport and starts the reader
// and writer goroutines.
func NewConnection(conn net.Conn) *Connection {
	c := &Connection{
		addr:      conn.RemoteAddr().String(),
		conn:      conn,
		connected: true,
		incoming:  make(chan *protocol.Frame, 100),
		outgoing:  make(chan *protocol.Frame, 100),
		errs:      make(chan error, 10),
		stats:     NewStats(),
		logger:    logrus.StandardLogger(),
		shutdown:  make(chan struct{}),
	}
	c.wg.Add(2)
	go c.readLoop()
	go c.writeLoop()
	return c
}

// SetLogger replaces the logger used for wire-level debug events.
func (c *Connection) SetLogger(logger logrus.FieldLogger) {
	c.logger = logger
}

// Addr returns the remote address this connection was dialed to.
func (c *Connection) Addr() string {
	return c.addr
}

// Stats returns the traffic counters for this connection.
func (c *Connection) Stats() *Stats {
	return c.stats
}

// IsConnected reports whether the link is still up.
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Incoming returns the channel of PDUs decoded from the server. It is
// closed when the connection shuts down.
func (c *Connection) Incoming() <-chan *protocol.Frame {
	return c.incoming
}

// Errors returns the channel of transport errors.
func (c *Connection) Errors() <-chan error {
	return c.errs
}

// Send queues a PDU for transmission.
func (c *Connection) Send(flag uint8, payload []byte) error {
	frame := &protocol.Frame{Flag: flag, Payload: payload}
	select {
	case c.outgoing <- frame:
		return nil
	case <-c.shutdown:
		return ErrClosed
	}
}

// SendMessage encodes a protocol message and queues it.
func (c *Connection) SendMessage(flag uint8, msg interface{ Encode() ([]byte, error) }) error {
	payload, err := msg.Encode()
	if err != nil {
		return err
	}
	return c.Send(flag, payload)
}

// Close tears the connection down and waits for both loops to stop.
// Safe to call more than once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.shutdown)
		c.mu.Lock()
		c.connected = false
		if c.conn != nil {
			c.conn.Close()
		}
		c.mu.Unlock()
		c.wg.Wait()
	})
}

func (c *Connection) readLoop() {
	defer c.wg.Done()
	defer close(c.incoming)

	reader := &countingReader{r: c.conn, stats: c.stats}
	for {
		frame, err := protocol.DecodeFrame(reader)
		if err != nil {
			if errors.Is(err, protocol.ErrPeerClosed) {
				c.logger.Debug("server closed the connection")
			} else {
				c.logger.WithError(err).Debug("read failed")
			}
			c.reportError(err)
			c.markDisconnected()
			return
		}

		c.stats.RecordFrameReceived(frame)
		c.logger.WithFields(logrus.Fields{
			"flag": protocol.FlagName(frame.Flag),
			"len":  len(frame.Payload),
		}).Debug("recv")

		select {
		case c.incoming <- frame:
		case <-c.shutdown:
			return
		}
	}
}

func (c *Connection) writeLoop() {
	defer c.wg.Done()

	writer := &countingWriter{w: c.conn, stats: c.stats}
	for {
		select {
		case frame := <-c.outgoing:
			if err := protocol.EncodeFrame(writer, frame); err != nil {
				c.logger.WithError(err).Debug("write failed")
				c.reportError(err)
				c.markDisconnected()
				return
			}
			c.stats.RecordFrameSent(frame)
			c.logger.WithFields(logrus.Fields{
				"flag": protocol.FlagName(frame.Flag),
				"len":  len(frame.Payload),
			}).Debug("send")
		case <-c.shutdown:
			return
		}
	}
}

func (c *Connection) reportError(err error) {
	select {
	case c.errs <- err:
	default:
	}
}

func (c *Connection) markDisconnected() {
	c.mu.Lock()
	c.connected = false
	if c.conn != nil {
		c.conn.Close()
	}
	c.mu.Unlock()
}

// countingReader feeds wire bytes into the stats counters.
type countingReader struct {
	r     io.Reader
	stats *Stats
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		cr.stats.RecordReceived(n)
	}
	return n, err
}

type countingWriter struct {
	w     io.Writer
	stats *Stats
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	if n > 0 {
		cw.stats.RecordSent(n)
	}
	return n, err
}
