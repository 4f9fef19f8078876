package client

import (
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/creachadair/taskgroup"
	"github.com/sirupsen/logrus"

	"github.com/derekjr/chatrelay/pkg/protocol"
)

// SimulationConfig drives a scripted multi-client load run against one
// server.
type SimulationConfig struct {
	Addr         string
	Clients      int
	MessagesEach int
	Logger       logrus.FieldLogger
}

const defaultSimMessages = 30

// RunSimulation connects Clients scripted clients, each registering as
// simclient_<i>, exchanging MessagesEach natural-language commands
// through the rewriter, and then exiting cleanly. It returns the first
// client error, if any.
func RunSimulation(cfg SimulationConfig) error {
	if cfg.Clients < 1 {
		return fmt.Errorf("simulation needs at least one client, got %d", cfg.Clients)
	}
	if cfg.MessagesEach <= 0 {
		cfg.MessagesEach = defaultSimMessages
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	handles := make([]string, cfg.Clients)
	for i := range handles {
		handles[i] = fmt.Sprintf("simclient_%d", i)
	}

	g := taskgroup.New(nil)
	for i := 0; i < cfg.Clients; i++ {
		id := i
		g.Go(func() error {
			return runSimClient(cfg, id, handles, logger.WithField("sim_client", handles[id]))
		})
	}
	return g.Wait()
}

// simPhrase picks the next scripted utterance. A solo run has no peer
// to message, so every turn is a broadcast.
func simPhrase(rng *rand.Rand, handles []string, id int) string {
	if len(handles) < 2 || rng.Intn(2) == 0 {
		return "broadcast good morning from " + handles[id]
	}
	peer := handles[id]
	for peer == handles[id] {
		peer = handles[rng.Intn(len(handles))]
	}
	return "send a message to " + peer + " hello from " + handles[id]
}

func runSimClient(cfg SimulationConfig, id int, handles []string, logger logrus.FieldLogger) error {
	conn, err := Dial(cfg.Addr)
	if err != nil {
		return fmt.Errorf("%s: %w", handles[id], err)
	}
	defer conn.Close()
	conn.SetLogger(logger)

	session := NewSession(conn, handles[id])
	session.SetOutput(io.Discard)
	session.SetLogger(logger)

	if err := session.Register(); err != nil {
		return fmt.Errorf("%s: %w", handles[id], err)
	}
	logger.Info("registered")

	// Let the other clients finish registering before traffic starts.
	time.Sleep(2 * time.Second)

	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)))
	rewriter := NewRewriter()

	// The session loop is not running, so a drainer keeps incoming
	// traffic from backing up while this client only sends. It also
	// watches for the exit acknowledgment.
	ack := make(chan struct{}, 1)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for frame := range conn.Incoming() {
			if frame.Flag == protocol.FlagExitAck {
				select {
				case ack <- struct{}{}:
				default:
				}
			}
		}
	}()

	for i := 0; i < cfg.MessagesEach; i++ {
		time.Sleep(time.Duration(100+rng.Intn(400)) * time.Millisecond)

		phrase := simPhrase(rng, handles, id)
		command, err := rewriter.Rewrite(phrase)
		if err != nil {
			return fmt.Errorf("%s: rewrite %q: %w", handles[id], phrase, err)
		}

		cmd, err := ParseCommand(command)
		if err != nil {
			return fmt.Errorf("%s: parse %q: %w", handles[id], command, err)
		}
		switch cmd.Kind {
		case CmdDirect:
			err = session.SendDirect(cmd.Destinations, cmd.Text)
		case CmdBroadcast:
			err = session.SendBroadcast(cmd.Text)
		}
		if err != nil {
			return fmt.Errorf("%s: send: %w", handles[id], err)
		}
	}

	if err := conn.Send(protocol.FlagExit, nil); err != nil {
		return fmt.Errorf("%s: exit: %w", handles[id], err)
	}
	select {
	case <-ack:
	case <-time.After(responseTimeout):
		logger.Warn("no exit acknowledgment before timeout")
	}

	conn.Close()
	<-drained

	snap := conn.Stats().Snapshot()
	logger.WithFields(logrus.Fields{
		"sent_bytes": snap.BytesSent,
		"recv_bytes": snap.BytesReceived,
		"sent_msgs":  snap.MessagesSent,
		"recv_msgs":  snap.MessagesReceived,
	}).Info("simulation client done")
	return nil
}
