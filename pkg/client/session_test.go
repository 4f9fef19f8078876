package client

import (
	"bytes"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/derekjr/chatrelay/pkg/protocol"
)

// pipeSession wires a Session to the near end of a net.Pipe and hands
// the far end to the test, which plays the server.
func pipeSession(t *testing.T, handle string) (*Session, net.Conn) {
	t.Helper()
	near, far := net.Pipe()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	conn := NewConnection(near)
	conn.SetLogger(logger)
	t.Cleanup(conn.Close)

	session := NewSession(conn, handle)
	session.SetOutput(io.Discard)
	session.SetLogger(logger)
	return session, far
}

func serverExpect(t *testing.T, conn net.Conn, wantFlag uint8) *protocol.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	frame, err := protocol.DecodeFrame(conn)
	require.NoError(t, err)
	require.Equal(t, wantFlag, frame.Flag, "expected %s, got %s",
		protocol.FlagName(wantFlag), protocol.FlagName(frame.Flag))
	return frame
}

func serverSend(t *testing.T, conn net.Conn, flag uint8, payload []byte) {
	t.Helper()
	require.NoError(t, protocol.EncodeFrame(conn, &protocol.Frame{Flag: flag, Payload: payload}))
}

func TestSessionRegisterConfirmed(t *testing.T) {
	session, server := pipeSession(t, "Alice")

	done := make(chan error, 1)
	go func() { done <- session.Register() }()

	frame := serverExpect(t, server, protocol.FlagClientInit)
	var reg protocol.RegisterMessage
	require.NoError(t, reg.Decode(frame.Payload))
	assert.Equal(t, "Alice", reg.Handle)

	serverSend(t, server, protocol.FlagConfirmHandle, nil)
	require.NoError(t, <-done)
}

func TestSessionRegisterRejected(t *testing.T) {
	session, server := pipeSession(t, "Alice")

	done := make(chan error, 1)
	go func() { done <- session.Register() }()

	serverExpect(t, server, protocol.FlagClientInit)
	serverSend(t, server, protocol.FlagErrorInit, nil)

	assert.ErrorIs(t, <-done, ErrHandleRejected)
}

func TestSessionRegisterRejectsBadHandleLocally(t *testing.T) {
	session, _ := pipeSession(t, "9lives")
	assert.ErrorIs(t, session.Register(), ErrInvalidHandleForm)
}

func TestSessionSendDirectWireFormat(t *testing.T) {
	session, server := pipeSession(t, "Alice")

	require.NoError(t, session.SendDirect([]string{"Bob"}, "hi"))

	frame := serverExpect(t, server, protocol.FlagDirect)
	assert.Equal(t, []byte{
		0x05, 0x41, 0x6c, 0x69, 0x63, 0x65,
		0x01,
		0x03, 0x42, 0x6f, 0x62,
		0x68, 0x69, 0x00,
	}, frame.Payload)
}

// Long text is split into several PDUs, each repeating the full
// destination header and carrying its own terminator.
func TestSessionSendDirectSegments(t *testing.T) {
	session, server := pipeSession(t, "Alice")

	text := strings.Repeat("x", maxSegmentText+50)
	require.NoError(t, session.SendDirect([]string{"Bob", "Carol"}, text))

	var rejoined []byte
	for i := 0; i < 2; i++ {
		frame := serverExpect(t, server, protocol.FlagDirect)
		var msg protocol.DirectMessage
		require.NoError(t, msg.Decode(frame.Payload))
		assert.Equal(t, "Alice", msg.Sender)
		assert.Equal(t, []string{"Bob", "Carol"}, msg.Destinations)
		assert.LessOrEqual(t, len(msg.Text), protocol.MaxTextSize)
		require.NotEmpty(t, msg.Text)
		assert.EqualValues(t, 0, msg.Text[len(msg.Text)-1])
		rejoined = append(rejoined, msg.Text[:len(msg.Text)-1]...)
	}
	assert.Equal(t, text, string(rejoined))
}

func TestSessionSendBroadcast(t *testing.T) {
	session, server := pipeSession(t, "Alice")

	require.NoError(t, session.SendBroadcast("hi"))

	frame := serverExpect(t, server, protocol.FlagBroadcast)
	var msg protocol.BroadcastMessage
	require.NoError(t, msg.Decode(frame.Payload))
	assert.Equal(t, "Alice", msg.Sender)
	assert.Equal(t, []byte{'h', 'i', 0}, msg.Text)
}

func TestSessionRequestList(t *testing.T) {
	session, server := pipeSession(t, "Alice")

	var out bytes.Buffer
	session.SetOutput(&out)

	done := make(chan error, 1)
	go func() { done <- session.RequestList() }()

	serverExpect(t, server, protocol.FlagListReq)

	countPayload, err := (&protocol.ListCountMessage{Count: 2}).Encode()
	require.NoError(t, err)
	serverSend(t, server, protocol.FlagListCount, countPayload)
	for _, handle := range []string{"Alice", "Bob"} {
		entryPayload, err := (&protocol.ListEntryMessage{Handle: handle}).Encode()
		require.NoError(t, err)
		serverSend(t, server, protocol.FlagListEntry, entryPayload)
	}
	serverSend(t, server, protocol.FlagListEnd, nil)

	require.NoError(t, <-done)
	output := out.String()
	assert.Contains(t, output, "Number of clients: 2")
	assert.Contains(t, output, "Alice")
	assert.Contains(t, output, "Bob")
}

// A wrong flag in place of a list entry breaks the sub-protocol.
func TestSessionRequestListDeviation(t *testing.T) {
	session, server := pipeSession(t, "Alice")

	done := make(chan error, 1)
	go func() { done <- session.RequestList() }()

	serverExpect(t, server, protocol.FlagListReq)

	countPayload, err := (&protocol.ListCountMessage{Count: 1}).Encode()
	require.NoError(t, err)
	serverSend(t, server, protocol.FlagListCount, countPayload)
	serverSend(t, server, protocol.FlagBroadcast, []byte{0x01, 0x41, 0x68, 0x69, 0x00})

	assert.ErrorIs(t, <-done, ErrListProtocol)
}

func TestSessionExit(t *testing.T) {
	session, server := pipeSession(t, "Alice")

	done := make(chan error, 1)
	go func() { done <- session.Exit() }()

	serverExpect(t, server, protocol.FlagExit)
	serverSend(t, server, protocol.FlagExitAck, nil)

	require.NoError(t, <-done)
}

// Chat traffic already in flight when the exit is sent is printed, not
// treated as a protocol violation.
func TestSessionExitToleratesInFlightChat(t *testing.T) {
	session, server := pipeSession(t, "Alice")

	var out bytes.Buffer
	session.SetOutput(&out)

	done := make(chan error, 1)
	go func() { done <- session.Exit() }()

	serverExpect(t, server, protocol.FlagExit)
	serverSend(t, server, protocol.FlagBroadcast, []byte{0x03, 0x42, 0x6f, 0x62, 0x68, 0x69, 0x00})
	serverSend(t, server, protocol.FlagExitAck, nil)

	require.NoError(t, <-done)
	assert.Contains(t, out.String(), "Bob")
}

func TestSessionHandleFramePrintsTraffic(t *testing.T) {
	session, _ := pipeSession(t, "Alice")

	var out bytes.Buffer
	session.SetOutput(&out)

	require.NoError(t, session.handleFrame(&protocol.Frame{
		Flag:    protocol.FlagBroadcast,
		Payload: []byte{0x03, 0x42, 0x6f, 0x62, 0x68, 0x69, 0x00},
	}))
	assert.Contains(t, out.String(), "Bob")
	assert.Contains(t, out.String(), "hi")

	out.Reset()
	require.NoError(t, session.handleFrame(&protocol.Frame{
		Flag:    protocol.FlagErrorDest,
		Payload: []byte{0x05, 0x43, 0x61, 0x72, 0x6f, 0x6c},
	}))
	assert.Contains(t, out.String(), "Carol")
	assert.Contains(t, out.String(), "does not exist")
}

func TestSessionHandleFrameUnknownFlagIgnored(t *testing.T) {
	session, _ := pipeSession(t, "Alice")
	assert.NoError(t, session.handleFrame(&protocol.Frame{Flag: 0x42}))
}

func TestSessionHandleFrameUnsolicitedListEntry(t *testing.T) {
	session, _ := pipeSession(t, "Alice")
	err := session.handleFrame(&protocol.Frame{Flag: protocol.FlagListEnd})
	assert.ErrorIs(t, err, ErrListProtocol)
}

func TestSessionExecuteStatusIsLocal(t *testing.T) {
	session, _ := pipeSession(t, "Alice")

	var out bytes.Buffer
	session.SetOutput(&out)

	done, err := session.Execute("%S")
	require.NoError(t, err)
	assert.False(t, done)
	assert.Contains(t, out.String(), "Connection statistics")
}

func TestSessionExecuteRewritesNaturalLanguage(t *testing.T) {
	session, server := pipeSession(t, "Alice")

	var out bytes.Buffer
	session.SetOutput(&out)

	done := make(chan struct{})
	go func() {
		defer close(done)
		finished, err := session.Execute("broadcast hello everyone")
		assert.NoError(t, err)
		assert.False(t, finished)
	}()

	frame := serverExpect(t, server, protocol.FlagBroadcast)
	var msg protocol.BroadcastMessage
	require.NoError(t, msg.Decode(frame.Payload))
	assert.Equal(t, []byte("hello everyone\x00"), msg.Text)

	<-done
	assert.Contains(t, out.String(), "converted command")
}

// endlessLines yields the same line over and over without ever
// blocking, standing in for an interactive input source.
type endlessLines string

func (e endlessLines) Read(p []byte) (int, error) {
	return copy(p, e), nil
}

// When the server drops the connection, Run must return and take the
// input-reading goroutine down with it.
func TestSessionRunStopsInputReaderOnServerClose(t *testing.T) {
	defer leaktest.CheckTimeout(t, 2*time.Second)()

	session, server := pipeSession(t, "Alice")

	errc := make(chan error, 1)
	go func() { errc <- session.Run(endlessLines("%s\n")) }()

	require.NoError(t, server.Close())
	assert.ErrorIs(t, <-errc, ErrServerClosed)

	session.conn.Close()
}
