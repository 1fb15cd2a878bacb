package core

import (
	"fmt"
	"sync"

	"github.com/jabolina/syncmesh/pkg/syncmesh/definition"
	"github.com/jabolina/syncmesh/pkg/syncmesh/types"
)

// SessionRegistry owns every Session the local node has open, keyed by
// peer id. Client sessions are created on demand; server-accepted
// sessions are registered once the peer's id is known from its first
// envelope.
type SessionRegistry struct {
	mutex    sync.Mutex
	sessions map[types.NodeId]*Session
	log      definition.Logger
	invoker  Invoker
	metrics  *Metrics
}

// NewSessionRegistry builds an empty registry.
func NewSessionRegistry(log definition.Logger, invoker Invoker, metrics *Metrics) *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[types.NodeId]*Session),
		log:      log,
		invoker:  invoker,
		metrics:  metrics,
	}
}

func (r *SessionRegistry) wireMetrics(s *Session) {
	s.OnFrameWritten = r.metrics.observeFrameWritten
	s.OnFrameRead = r.metrics.observeFrameRead
	s.OnConnectRetry = r.metrics.observeConnectRetry
}

// GetOrCreate returns the existing session for id, or dials a new one using
// the first address in member.SyncAddresses. startupAtOpen is this node's
// own startup state at the moment the session is opened.
func (r *SessionRegistry) GetOrCreate(member types.Member, startupAtOpen bool) (*Session, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if s, ok := r.sessions[member.Id]; ok && s.State() != Failed && s.State() != Disconnected {
		return s, nil
	}
	if len(member.SyncAddresses) == 0 {
		return nil, fmt.Errorf("syncmesh: member %d has no known sync address", member.Id)
	}
	addr := member.SyncAddresses[0].String()
	s := NewClientSession(member.Id, addr, nil, r.log, r.invoker, startupAtOpen)
	r.wireMetrics(s)
	s.Open()
	r.sessions[member.Id] = s
	return s, nil
}

// Register stores an already-constructed session (typically a
// server-accepted one) under id.
func (r *SessionRegistry) Register(id types.NodeId, s *Session) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.wireMetrics(s)
	r.sessions[id] = s
}

// Get returns the session for id, if any.
func (r *SessionRegistry) Get(id types.NodeId) (*Session, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove drops the session for id from the registry.
func (r *SessionRegistry) Remove(id types.NodeId) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	delete(r.sessions, id)
}
