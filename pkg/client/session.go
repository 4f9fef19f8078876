package client

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/derekjr/chatrelay/pkg/protocol"
)

var (
	// ErrHandleRejected means the server refused the registration,
	// either a duplicate handle or a malformed one.
	ErrHandleRejected = errors.New("handle rejected by server")

	// ErrServerClosed means the server dropped the link.
	ErrServerClosed = errors.New("server closed the connection")

	// ErrListProtocol means the list response deviated from the
	// count/entries/end sequence.
	ErrListProtocol = errors.New("malformed list response")

	errResponseTimeout = errors.New("timed out waiting for server response")
)

const responseTimeout = 10 * time.Second

// Session drives one registered connection: it owns the command loop,
// prints incoming traffic, and runs the request/response exchanges.
type Session struct {
	conn     *Connection
	handle   string
	out      io.Writer
	rewriter *Rewriter
	logger   logrus.FieldLogger
}

func NewSession(conn *Connection, handle string) *Session {
	return &Session{
		conn:     conn,
		handle:   handle,
		out:      os.Stdout,
		rewriter: NewRewriter(),
		logger:   logrus.StandardLogger(),
	}
}

func (s *Session) SetOutput(w io.Writer) {
	s.out = w
}

func (s *Session) SetLogger(logger logrus.FieldLogger) {
	s.logger = logger
}

// Handle returns the handle this session registered under.
func (s *Session) Handle() string {
	return s.handle
}

// Register sends the registration PDU and waits for the verdict.
func (s *Session) Register() error {
	if err := ValidateHandle(s.handle); err != nil {
		return err
	}
	if err := s.conn.SendMessage(protocol.FlagClientInit, &protocol.RegisterMessage{Handle: s.handle}); err != nil {
		return err
	}

	frame, err := s.nextFrame()
	if err != nil {
		return err
	}
	switch frame.Flag {
	case protocol.FlagConfirmHandle:
		fmt.Fprintln(s.out, RenderSuccess("registered as "+s.handle))
		return nil
	case protocol.FlagErrorInit:
		return fmt.Errorf("%w: %s", ErrHandleRejected, s.handle)
	default:
		return fmt.Errorf("unexpected registration reply %s", protocol.FlagName(frame.Flag))
	}
}

// Run reads command lines from input until exit or connection loss.
// It returns nil after a clean exit exchange.
func (s *Session) Run(input io.Reader) error {
	lines := make(chan string)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(input)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
	}()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				// stdin EOF behaves like %E.
				return s.Exit()
			}
			done, err := s.Execute(line)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		case frame, ok := <-s.conn.Incoming():
			if !ok {
				return ErrServerClosed
			}
			if err := s.handleFrame(frame); err != nil {
				return err
			}
		}
	}
}

// Execute runs one input line. Lines not starting with '%' are passed
// through the natural-language rewriter first. The returned bool is
// true after a completed exit exchange.
func (s *Session) Execute(line string) (bool, error) {
	if trimmed := strings.TrimSpace(line); trimmed == "" {
		return false, nil
	} else if trimmed[0] != '%' {
		rewritten, err := s.rewriter.Rewrite(trimmed)
		if err != nil {
			fmt.Fprintln(s.out, RenderError(err.Error()))
			return false, nil
		}
		fmt.Fprintln(s.out, RenderInfo("converted command: "+rewritten))
		line = rewritten
	}

	cmd, err := ParseCommand(line)
	if err != nil {
		fmt.Fprintln(s.out, RenderError(err.Error()))
		return false, nil
	}

	switch cmd.Kind {
	case CmdDirect:
		return false, s.SendDirect(cmd.Destinations, cmd.Text)
	case CmdBroadcast:
		return false, s.SendBroadcast(cmd.Text)
	case CmdList:
		return false, s.RequestList()
	case CmdStatus:
		fmt.Fprintln(s.out, RenderStats(s.conn.Stats().Snapshot()))
		return false, nil
	case CmdExit:
		return true, s.Exit()
	default:
		fmt.Fprintln(s.out, RenderError("invalid command"))
		return false, nil
	}
}

// SendDirect sends text to the named handles, splitting it into as
// many PDUs as the per-PDU text limit requires. Each PDU repeats the
// full destination header.
func (s *Session) SendDirect(dests []string, text string) error {
	for _, seg := range segmentText(text) {
		msg := &protocol.DirectMessage{
			Sender:       s.handle,
			Destinations: dests,
			Text:         seg,
		}
		if err := s.conn.SendMessage(protocol.FlagDirect, msg); err != nil {
			return err
		}
	}
	return nil
}

// SendBroadcast sends text to every other connected client, segmented
// like a direct message.
func (s *Session) SendBroadcast(text string) error {
	for _, seg := range segmentText(text) {
		msg := &protocol.BroadcastMessage{Sender: s.handle, Text: seg}
		if err := s.conn.SendMessage(protocol.FlagBroadcast, msg); err != nil {
			return err
		}
	}
	return nil
}

// RequestList runs the three-phase list exchange: one count PDU, then
// exactly count entry PDUs, then the end marker. Any deviation is an
// error and the caller is expected to close the connection.
func (s *Session) RequestList() error {
	if err := s.conn.Send(protocol.FlagListReq, nil); err != nil {
		return err
	}

	frame, err := s.nextFrame()
	if err != nil {
		return err
	}
	if frame.Flag != protocol.FlagListCount {
		return fmt.Errorf("%w: expected count, got %s", ErrListProtocol, protocol.FlagName(frame.Flag))
	}
	var count protocol.ListCountMessage
	if err := count.Decode(frame.Payload); err != nil {
		return fmt.Errorf("%w: %v", ErrListProtocol, err)
	}
	fmt.Fprintln(s.out, RenderInfo(fmt.Sprintf("Number of clients: %d", count.Count)))

	for i := uint32(0); i < count.Count; i++ {
		frame, err := s.nextFrame()
		if err != nil {
			return err
		}
		if frame.Flag != protocol.FlagListEntry {
			return fmt.Errorf("%w: expected entry, got %s", ErrListProtocol, protocol.FlagName(frame.Flag))
		}
		var entry protocol.ListEntryMessage
		if err := entry.Decode(frame.Payload); err != nil {
			return fmt.Errorf("%w: %v", ErrListProtocol, err)
		}
		fmt.Fprintln(s.out, RenderInfo("  "+entry.Handle))
	}

	frame, err = s.nextFrame()
	if err != nil {
		return err
	}
	if frame.Flag != protocol.FlagListEnd || len(frame.Payload) != 0 {
		return fmt.Errorf("%w: expected end marker, got %s", ErrListProtocol, protocol.FlagName(frame.Flag))
	}
	return nil
}

// Exit sends the exit PDU and waits for the acknowledgment. Chat
// traffic still in flight is printed while waiting.
func (s *Session) Exit() error {
	if err := s.conn.Send(protocol.FlagExit, nil); err != nil {
		return err
	}

	for {
		frame, err := s.nextFrame()
		if err != nil {
			return err
		}
		switch frame.Flag {
		case protocol.FlagExitAck:
			fmt.Fprintln(s.out, RenderSuccess("exit acknowledged"))
			return nil
		case protocol.FlagDirect, protocol.FlagBroadcast:
			if err := s.handleFrame(frame); err != nil {
				return err
			}
		default:
			return fmt.Errorf("expected exit acknowledgment, got %s", protocol.FlagName(frame.Flag))
		}
	}
}

// handleFrame prints one asynchronous PDU from the server.
func (s *Session) handleFrame(frame *protocol.Frame) error {
	switch frame.Flag {
	case protocol.FlagDirect:
		var msg protocol.DirectMessage
		if err := msg.Decode(frame.Payload); err != nil {
			s.logger.WithError(err).Warn("dropping malformed direct message")
			return nil
		}
		fmt.Fprintln(s.out, RenderMessage(msg.Sender, msg.Text))
	case protocol.FlagBroadcast:
		var msg protocol.BroadcastMessage
		if err := msg.Decode(frame.Payload); err != nil {
			s.logger.WithError(err).Warn("dropping malformed broadcast")
			return nil
		}
		fmt.Fprintln(s.out, RenderMessage(msg.Sender, msg.Text))
	case protocol.FlagErrorDest:
		var msg protocol.DestErrorMessage
		if err := msg.Decode(frame.Payload); err != nil {
			s.logger.WithError(err).Warn("dropping malformed destination error")
			return nil
		}
		fmt.Fprintln(s.out, RenderError(fmt.Sprintf("client with handle %s does not exist", msg.Handle)))
	case protocol.FlagListCount, protocol.FlagListEntry, protocol.FlagListEnd:
		// List PDUs outside a list exchange break the sub-protocol.
		return fmt.Errorf("%w: unsolicited %s", ErrListProtocol, protocol.FlagName(frame.Flag))
	default:
		s.logger.WithField("flag", protocol.FlagName(frame.Flag)).Warn("ignoring unknown flag")
	}
	return nil
}

// nextFrame waits for the next PDU from the server.
func (s *Session) nextFrame() (*protocol.Frame, error) {
	select {
	case frame, ok := <-s.conn.Incoming():
		if !ok {
			return nil, ErrServerClosed
		}
		return frame, nil
	case <-time.After(responseTimeout):
		return nil, errResponseTimeout
	}
}
