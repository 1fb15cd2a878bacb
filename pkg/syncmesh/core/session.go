package core

import (
	"encoding/binary"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jabolina/syncmesh/pkg/syncmesh/definition"
	"github.com/jabolina/syncmesh/pkg/syncmesh/types"
)

// SessionState is the per-peer session lifecycle (spec.md §4.4).
type SessionState uint8

const (
	Disconnected SessionState = iota
	Connecting
	Connected
	Closing
	Failed
)

// connectProbeTimeout and retryBackoff implement the "1-second probe
// followed by retries every 5 seconds" connect policy of spec.md §5.
const (
	connectProbeTimeout = time.Second
	retryBackoff        = 5 * time.Second
)

// SessionListener receives callbacks from a Session as frames arrive or the
// session's lifecycle changes. The server role implements this with a
// ProtocolEngine; the client role implements it with a SyncOrchestrator's
// reply handler.
type SessionListener interface {
	HandleEnvelope(session *Session, env *types.SyncEnvelope)
	HandleFailure(session *Session, planned bool)
}

// Session is a per-peer TCP session: connect-with-retry, framed read/write,
// an attribute bag, and a planned-close flag. Single-writer, single-reader:
// writes are serialized through a channel, and exactly one goroutine reads.
type Session struct {
	PeerId   types.NodeId
	Address  string
	Initiated bool

	// CorrelationID tags every log line this session emits, since PeerId is
	// still types.UnknownNode for an accepted connection until the startup
	// handshake resolves it.
	CorrelationID string

	mutex             sync.Mutex
	state             SessionState
	conn              net.Conn
	listener          SessionListener
	log               definition.Logger
	invoker           Invoker
	writeCh           chan writeRequest
	closeOnce         sync.Once
	done              chan struct{}

	// Attributes feeding the startup handshake (spec.md §4.4, §4.5).
	StartupStateAtOpen bool
	PlannedClose       bool
	PeerMember         *types.Member

	// ExchangeLock serializes client-initiated request/response rounds
	// against this session: a SyncOrchestrator holds it for the duration
	// of one logical exchange so only one caller at a time swaps the
	// session's listener (see SetListener).
	ExchangeLock sync.Mutex

	// OnFrameWritten/OnFrameRead/OnConnectRetry are optional metrics hooks
	// wired up by SessionRegistry; nil-safe.
	OnFrameWritten func()
	OnFrameRead    func()
	OnConnectRetry func()
}

type writeRequest struct {
	data []byte
	errc chan error
}

// NewClientSession creates a session that will actively dial address.
// startupAtOpen records this node's own startup state at the moment the
// session was opened (spec.md §4.4/§4.5 step 2), not the remote peer's.
func NewClientSession(peerId types.NodeId, address string, listener SessionListener, log definition.Logger, invoker Invoker, startupAtOpen bool) *Session {
	return &Session{
		PeerId:             peerId,
		Address:            address,
		Initiated:          true,
		StartupStateAtOpen: startupAtOpen,
		CorrelationID:      uuid.NewString(),
		state:              Disconnected,
		listener:           listener,
		log:                log,
		invoker:            invoker,
		writeCh:            make(chan writeRequest, 16),
		done:               make(chan struct{}),
	}
}

// NewServerSession wraps an already-accepted connection. startupAtOpen is
// this node's own startup state at accept time, same meaning as in
// NewClientSession.
func NewServerSession(peerId types.NodeId, conn net.Conn, listener SessionListener, log definition.Logger, invoker Invoker, startupAtOpen bool) *Session {
	s := &Session{
		PeerId:             peerId,
		Address:            conn.RemoteAddr().String(),
		StartupStateAtOpen: startupAtOpen,
		CorrelationID:      uuid.NewString(),
		state:              Connected,
		conn:               conn,
		listener:           listener,
		log:                log,
		invoker:            invoker,
		writeCh:            make(chan writeRequest, 16),
		done:               make(chan struct{}),
	}
	s.invoker.Spawn(s.writeLoop)
	s.invoker.Spawn(s.readLoop)
	return s
}

// Open starts the client connect-with-retry loop. The first attempt is
// eager; afterwards failures retry on a fixed 5s backoff.
func (s *Session) Open() {
	s.mutex.Lock()
	s.state = Connecting
	s.mutex.Unlock()
	s.invoker.Spawn(s.connectLoop)
}

func (s *Session) connectLoop() {
	first := true
	for {
		select {
		case <-s.done:
			return
		default:
		}

		dialer := net.Dialer{Timeout: connectProbeTimeout}
		conn, err := dialer.Dial("tcp", s.Address)
		if err != nil {
			s.log.Warnf("session %d [%s]: connect to %s failed: %v", s.PeerId, s.CorrelationID, s.Address, err)
			if !first && s.OnConnectRetry != nil {
				s.OnConnectRetry()
			}
			first = false
			select {
			case <-s.done:
				return
			case <-time.After(retryBackoff):
				continue
			}
		}

		s.mutex.Lock()
		s.conn = conn
		s.state = Connected
		s.mutex.Unlock()

		s.invoker.Spawn(s.writeLoop)
		s.readLoop()
		return
	}
}

func (s *Session) State() SessionState {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state
}

// Publish writes one framed envelope. Safe for concurrent callers; writes
// are serialized per session through writeCh.
func (s *Session) Publish(env *types.SyncEnvelope) error {
	payload := EncodeEnvelope(env)
	errc := make(chan error, 1)
	select {
	case s.writeCh <- writeRequest{data: payload, errc: errc}:
	case <-s.done:
		return io.ErrClosedPipe
	}
	select {
	case err := <-errc:
		return err
	case <-s.done:
		return io.ErrClosedPipe
	}
}

func (s *Session) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case req := <-s.writeCh:
			err := s.writeFrame(req.data)
			req.errc <- err
			if err != nil {
				s.fail(false)
				return
			}
		}
	}
}

func (s *Session) writeFrame(payload []byte) error {
	s.mutex.Lock()
	conn := s.conn
	s.mutex.Unlock()
	if conn == nil {
		return io.ErrClosedPipe
	}
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(payload)))
	if _, err := conn.Write(header); err != nil {
		return err
	}
	_, err := conn.Write(payload)
	if err == nil && s.OnFrameWritten != nil {
		s.OnFrameWritten()
	}
	return err
}

func (s *Session) readLoop() {
	for {
		s.mutex.Lock()
		conn := s.conn
		s.mutex.Unlock()
		if conn == nil {
			return
		}

		header := make([]byte, 4)
		if _, err := io.ReadFull(conn, header); err != nil {
			s.handleReadError(err)
			return
		}
		length := binary.BigEndian.Uint32(header)
		body := make([]byte, length)
		if _, err := io.ReadFull(conn, body); err != nil {
			s.handleReadError(err)
			return
		}

		env, err := DecodeEnvelope(body)
		if err != nil {
			s.log.Errorf("session %d [%s]: malformed frame: %v", s.PeerId, s.CorrelationID, err)
			continue
		}
		if s.OnFrameRead != nil {
			s.OnFrameRead()
		}
		s.mutex.Lock()
		listener := s.listener
		s.mutex.Unlock()
		if listener != nil {
			listener.HandleEnvelope(s, env)
		}
	}
}

// SetListener swaps the session's current listener, returning the previous
// one. A SyncOrchestrator claims a session for the duration of a single
// exchange this way, then restores the server-side ProtocolEngine listener
// (or nil) once the exchange terminates.
func (s *Session) SetListener(listener SessionListener) SessionListener {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	prev := s.listener
	s.listener = listener
	return prev
}

func (s *Session) handleReadError(err error) {
	select {
	case <-s.done:
		return
	default:
	}
	s.mutex.Lock()
	planned := s.PlannedClose
	s.mutex.Unlock()
	if err != io.EOF {
		s.log.Warnf("session %d [%s]: read error: %v", s.PeerId, s.CorrelationID, err)
	}
	s.fail(planned)
}

// fail transitions the session to Failed and, unless the close was
// planned, notifies the listener.
func (s *Session) fail(planned bool) {
	s.mutex.Lock()
	s.state = Failed
	listener := s.listener
	s.mutex.Unlock()
	s.closeConn()
	if !planned && listener != nil {
		listener.HandleFailure(s, planned)
	}
}

// Close closes the session. planned suppresses the failure callback to the
// listener, per spec.md §3's "a closure marked planned suppresses callback
// notification".
func (s *Session) Close(planned bool) {
	s.mutex.Lock()
	s.PlannedClose = planned
	s.state = Closing
	s.mutex.Unlock()
	s.closeOnce.Do(func() { close(s.done) })
	s.closeConn()
	s.mutex.Lock()
	s.state = Disconnected
	s.mutex.Unlock()
}

func (s *Session) closeConn() {
	s.mutex.Lock()
	conn := s.conn
	s.conn = nil
	s.mutex.Unlock()
	if conn != nil {
		conn.Close()
	}
}
