package client

import (
	"sync/atomic"
	"time"

	"github.com/derekjr/chatrelay/pkg/protocol"
)

// Stats tracks per-connection traffic counters. Byte counts are wire
// bytes including PDU headers; message counts cover chat traffic only
// (direct and broadcast PDUs), not control frames.
type Stats struct {
	start time.Time

	bytesSent        atomic.Uint64
	bytesReceived    atomic.Uint64
	messagesSent     atomic.Uint64
	messagesReceived atomic.Uint64
}

func NewStats() *Stats {
	return &Stats{start: time.Now()}
}

func (s *Stats) RecordSent(n int) {
	s.bytesSent.Add(uint64(n))
}

func (s *Stats) RecordReceived(n int) {
	s.bytesReceived.Add(uint64(n))
}

func (s *Stats) RecordFrameSent(f *protocol.Frame) {
	if isChatFrame(f) {
		s.messagesSent.Add(1)
	}
}

func (s *Stats) RecordFrameReceived(f *protocol.Frame) {
	if isChatFrame(f) {
		s.messagesReceived.Add(1)
	}
}

func isChatFrame(f *protocol.Frame) bool {
	return f.Flag == protocol.FlagBroadcast || f.Flag == protocol.FlagDirect
}

// Uptime returns the time elapsed since the connection was opened.
func (s *Stats) Uptime() time.Duration {
	return time.Since(s.start)
}

// StatsSnapshot is a point-in-time copy of the counters.
type StatsSnapshot struct {
	Uptime           time.Duration
	BytesSent        uint64
	BytesReceived    uint64
	MessagesSent     uint64
	MessagesReceived uint64
}

// Snapshot reads all counters at once.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Uptime:           s.Uptime(),
		BytesSent:        s.bytesSent.Load(),
		BytesReceived:    s.bytesReceived.Load(),
		MessagesSent:     s.messagesSent.Load(),
		MessagesReceived: s.messagesReceived.Load(),
	}
}
