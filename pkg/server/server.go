package server

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/derekjr/chatrelay/pkg/protocol"
)

// Server is the chat router: it accepts connections, runs the registration
// handshake, and forwards PDUs between registered endpoints. It holds no
// conversation state and persists nothing.
type Server struct {
	config    Config
	log       logrus.FieldLogger
	directory *Directory
	metrics   *Metrics

	listener      net.Listener
	wsServer      *http.Server
	metricsServer *http.Server

	epMu      sync.Mutex
	endpoints map[uint64]*Endpoint
	nextID    atomic.Uint64

	shutdown chan struct{}
	wg       sync.WaitGroup
}

// NewServer creates a server with the given configuration. Logging defaults
// to the standard logrus logger; metrics are off until SetMetrics.
func NewServer(config Config) *Server {
	return &Server{
		config:    config,
		log:       logrus.StandardLogger(),
		directory: NewDirectory(),
		endpoints: make(map[uint64]*Endpoint),
		shutdown:  make(chan struct{}),
	}
}

// SetLogger replaces the server's logger.
func (s *Server) SetLogger(log logrus.FieldLogger) {
	s.log = log
}

// SetMetrics attaches Prometheus metrics to the server.
func (s *Server) SetMetrics(m *Metrics) {
	s.metrics = m
}

// Directory exposes the handle directory.
func (s *Server) Directory() *Directory {
	return s.directory
}

// Addr returns the TCP listen address, useful when the configured port was
// 0 and the kernel picked one.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start binds the listeners and begins accepting connections.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.TCPPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	s.log.Infof("TCP listener on %s", listener.Addr())

	if s.config.WSPort != 0 {
		if err := s.startWebSocket(); err != nil {
			s.listener.Close()
			return err
		}
	}
	if s.config.MetricsAddr != "" {
		s.startMetricsServer()
	}

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop closes the listeners, disconnects every endpoint, and waits for all
// connection goroutines to finish.
func (s *Server) Stop() error {
	close(s.shutdown)

	if s.listener != nil {
		s.listener.Close()
	}
	if s.wsServer != nil {
		s.wsServer.Close()
	}
	if s.metricsServer != nil {
		s.metricsServer.Close()
	}

	s.epMu.Lock()
	for _, ep := range s.endpoints {
		ep.Close()
	}
	s.epMu.Unlock()

	s.wg.Wait()
	return nil
}

func (s *Server) startMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	s.metricsServer = &http.Server{Addr: s.config.MetricsAddr, Handler: mux}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.log.Infof("metrics endpoint on %s/metrics", s.config.MetricsAddr)
		if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Errorf("metrics server: %v", err)
		}
	}()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
				s.log.Errorf("accept: %v", err)
				continue
			}
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// handleConnection owns one endpoint from accept to teardown: the
// registration handshake first, then the per-PDU dispatch loop. Per-endpoint
// errors terminate the connection, never the server.
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
	}

	ep := NewEndpoint(s.nextID.Add(1), conn)
	s.trackEndpoint(ep)
	defer s.releaseEndpoint(ep)

	s.log.Debugf("connection from %s (endpoint %d)", ep.RemoteAddr(), ep.ID())

	if !s.register(ep) {
		return
	}

	for {
		frame, err := ep.ReadFrame()
		if err != nil {
			if errors.Is(err, protocol.ErrPeerClosed) {
				s.log.Infof("%s disconnected", ep.Handle())
			} else {
				s.log.Warnf("%s read error: %v", ep.Handle(), err)
			}
			return
		}

		if s.metrics != nil {
			s.metrics.RecordReceived(frame.Flag)
		}

		switch frame.Flag {
		case protocol.FlagBroadcast:
			s.handleBroadcast(ep, frame)
		case protocol.FlagDirect:
			s.handleDirect(ep, frame)
		case protocol.FlagListReq:
			s.handleListRequest(ep)
		case protocol.FlagExit:
			s.handleExit(ep)
			return
		default:
			// Forbidden or unknown flags after registration are logged
			// and ignored; the endpoint stays registered.
			s.log.Warnf("%s sent unexpected flag %d (%s), ignoring",
				ep.Handle(), frame.Flag, protocol.FlagName(frame.Flag))
		}
	}
}

// trackEndpoint adds the endpoint to the watched set.
func (s *Server) trackEndpoint(ep *Endpoint) {
	s.epMu.Lock()
	s.endpoints[ep.ID()] = ep
	count := len(s.endpoints)
	s.epMu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordConnections(count)
	}
}

// releaseEndpoint removes the endpoint from the watched set and the
// directory and closes the socket. Every control path out of
// handleConnection funnels through here, so socket, directory entry, and
// watched-set entry are always released together.
func (s *Server) releaseEndpoint(ep *Endpoint) {
	if handle, ok := s.directory.RemoveEndpoint(ep.ID()); ok {
		s.log.Debugf("removed %q from directory", handle)
		if s.metrics != nil {
			s.metrics.RecordRegistered(s.directory.Len())
		}
	}

	s.epMu.Lock()
	delete(s.endpoints, ep.ID())
	count := len(s.endpoints)
	s.epMu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordConnections(count)
	}

	ep.Close()
}

// closeEndpoint force-closes a peer whose socket failed during fan-out.
// Its own goroutine notices the closed socket and runs the teardown.
func (s *Server) closeEndpoint(ep *Endpoint, reason error) {
	s.log.Warnf("closing %s: %v", ep.Handle(), reason)
	ep.Close()
}

// ConnectionCount reports the size of the watched set, including
// endpoints that have not completed registration.
func (s *Server) ConnectionCount() int {
	s.epMu.Lock()
	defer s.epMu.Unlock()
	return len(s.endpoints)
}
