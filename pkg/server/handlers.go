package server

import (
	"errors"

	"github.com/derekjr/chatrelay/pkg/protocol"
)

// register runs the handshake: the first PDU on a fresh connection must be
// a CLIENT_INIT with a well-formed, unclaimed handle. It reports whether
// the endpoint reached the registered state; on false the caller closes
// the connection.
func (s *Server) register(ep *Endpoint) bool {
	frame, err := ep.ReadFrame()
	if err != nil {
		if !errors.Is(err, protocol.ErrPeerClosed) {
			s.log.Debugf("endpoint %d handshake read error: %v", ep.ID(), err)
		}
		return false
	}

	// Anything other than CLIENT_INIT before registration closes the
	// connection without a response.
	if frame.Flag != protocol.FlagClientInit {
		s.log.Warnf("endpoint %d sent flag %d (%s) before registering",
			ep.ID(), frame.Flag, protocol.FlagName(frame.Flag))
		return false
	}

	// A payload inconsistent with its declared lengths gets the same
	// ERROR_INIT as a rejected handle before the connection closes.
	var reg protocol.RegisterMessage
	if err := reg.Decode(frame.Payload); err != nil {
		s.log.Warnf("endpoint %d sent malformed registration: %v", ep.ID(), err)
		ep.Deliver(protocol.FlagErrorInit, nil)
		return false
	}

	if err := s.directory.Add(reg.Handle, ep); err != nil {
		s.log.Infof("endpoint %d registration of %q rejected: %v", ep.ID(), reg.Handle, err)
		ep.Deliver(protocol.FlagErrorInit, nil)
		return false
	}

	if err := ep.Deliver(protocol.FlagConfirmHandle, nil); err != nil {
		s.log.Warnf("endpoint %d confirm write failed: %v", ep.ID(), err)
		return false
	}

	ep.Register(reg.Handle)
	if s.metrics != nil {
		s.metrics.RecordRegistered(s.directory.Len())
		s.metrics.RecordDelivered(protocol.FlagConfirmHandle)
	}
	s.log.Infof("registered %q (endpoint %d, %s)", reg.Handle, ep.ID(), ep.RemoteAddr())
	return true
}

// handleBroadcast forwards the payload unchanged to every registered
// endpoint except the sender, in directory enumeration order. Malformed
// packets are dropped with a log and no response.
func (s *Server) handleBroadcast(ep *Endpoint, frame *protocol.Frame) {
	var msg protocol.BroadcastMessage
	if err := msg.Decode(frame.Payload); err != nil {
		s.dropPacket(ep, "broadcast", err)
		return
	}

	fanout := 0
	for _, entry := range s.directory.Snapshot() {
		if entry.Endpoint.ID() == ep.ID() {
			continue
		}
		if err := entry.Endpoint.Deliver(protocol.FlagBroadcast, frame.Payload); err != nil {
			s.closeEndpoint(entry.Endpoint, err)
			continue
		}
		fanout++
		if s.metrics != nil {
			s.metrics.RecordDelivered(protocol.FlagBroadcast)
		}
	}

	if s.metrics != nil {
		s.metrics.ObserveFanout(fanout)
	}
	s.log.Debugf("broadcast from %q forwarded to %d endpoints", msg.Sender, fanout)
}

// handleDirect forwards the whole original payload to each named
// destination in order, answering the sender with ERROR_DEST for each
// destination that is not registered.
func (s *Server) handleDirect(ep *Endpoint, frame *protocol.Frame) {
	var msg protocol.DirectMessage
	if err := msg.Decode(frame.Payload); err != nil {
		s.dropPacket(ep, "direct message", err)
		return
	}

	for _, dest := range msg.Destinations {
		target, ok := s.directory.Lookup(dest)
		if !ok {
			s.sendDestError(ep, dest)
			continue
		}
		if err := target.Deliver(protocol.FlagDirect, frame.Payload); err != nil {
			s.closeEndpoint(target, err)
			continue
		}
		if s.metrics != nil {
			s.metrics.RecordDelivered(protocol.FlagDirect)
		}
	}
}

// handleListRequest answers with the three-phase list sub-protocol:
// LIST_COUNT, one LIST_ENTRY per handle, LIST_END. All frames come from
// one directory snapshot and go out as a single batch, so the count always
// matches the entries and nothing interleaves between them.
func (s *Server) handleListRequest(ep *Endpoint) {
	snapshot := s.directory.Snapshot()

	frames := make([]*protocol.Frame, 0, len(snapshot)+2)

	countPayload, err := (&protocol.ListCountMessage{Count: uint32(len(snapshot))}).Encode()
	if err != nil {
		s.log.Errorf("list count encode: %v", err)
		return
	}
	frames = append(frames, &protocol.Frame{Flag: protocol.FlagListCount, Payload: countPayload})

	for _, entry := range snapshot {
		entryPayload, err := (&protocol.ListEntryMessage{Handle: entry.Handle}).Encode()
		if err != nil {
			s.log.Errorf("list entry encode for %q: %v", entry.Handle, err)
			return
		}
		frames = append(frames, &protocol.Frame{Flag: protocol.FlagListEntry, Payload: entryPayload})
	}

	frames = append(frames, &protocol.Frame{Flag: protocol.FlagListEnd})

	if err := ep.DeliverBatch(frames); err != nil {
		s.closeEndpoint(ep, err)
		return
	}
	if s.metrics != nil {
		for _, f := range frames {
			s.metrics.RecordDelivered(f.Flag)
		}
	}
}

// handleExit acknowledges the exit request. The caller returns from the
// dispatch loop afterwards, and teardown releases the directory entry and
// the socket.
func (s *Server) handleExit(ep *Endpoint) {
	if err := ep.Deliver(protocol.FlagExitAck, nil); err != nil {
		s.log.Debugf("%s exit ack write failed: %v", ep.Handle(), err)
		return
	}
	if s.metrics != nil {
		s.metrics.RecordDelivered(protocol.FlagExitAck)
	}
	s.log.Infof("%s exited", ep.Handle())
}

// sendDestError tells the sender that a destination handle is not
// registered (flag 7).
func (s *Server) sendDestError(ep *Endpoint, dest string) {
	payload, err := (&protocol.DestErrorMessage{Handle: dest}).Encode()
	if err != nil {
		s.log.Errorf("dest error encode for %q: %v", dest, err)
		return
	}
	if err := ep.Deliver(protocol.FlagErrorDest, payload); err != nil {
		s.closeEndpoint(ep, err)
		return
	}
	if s.metrics != nil {
		s.metrics.RecordDelivered(protocol.FlagErrorDest)
	}
}

// dropPacket logs and counts a malformed packet. Length inconsistencies
// never produce a response; the endpoint stays registered.
func (s *Server) dropPacket(ep *Endpoint, kind string, err error) {
	s.log.Warnf("dropping malformed %s from %s: %v", kind, ep.Handle(), err)
	if s.metrics != nil {
		s.metrics.RecordDropped()
	}
}
