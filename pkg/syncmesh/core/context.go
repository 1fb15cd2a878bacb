package core

import (
	"sync/atomic"

	"github.com/jabolina/syncmesh/pkg/syncmesh/definition"
	"github.com/jabolina/syncmesh/pkg/syncmesh/types"
)

// RingFallback is the best-effort broadcast transport collaborator
// (spec.md §6). Context.Fallback holds one, but no code path in the core
// calls Broadcast on it.
type RingFallback interface {
	Broadcast(publication types.Publication) error
}

// Context is the shared, arena-style state every ProtocolEngine and
// SyncOrchestrator instance operates against. Per the "Cyclic ownership"
// design note (spec.md §9), the top-level cluster owns this Context and
// every Session/store it references; nested ring orchestrators hold only
// this same pointer, never private copies.
type Context struct {
	SelfId          types.NodeId
	Members         *types.MemberStore
	Awareness       *types.AwarenessStore
	Sessions        *SessionRegistry
	Publications    *PublicationRegistry
	Log             definition.Logger
	Invoker         Invoker
	Metrics         *Metrics
	DefaultPolicy   types.DispatchPolicy
	Fallback        RingFallback
	SharedKey       string

	inStartup int32 // atomic bool
}

// InStartup reports whether this node has not yet completed its first
// cluster sync (spec.md §5 Startup handshake).
func (c *Context) InStartup() bool {
	return atomic.LoadInt32(&c.inStartup) != 0
}

// SetInStartup updates the startup flag. Cluster.Publish clears it once its
// first sync returns, whether or not that sync succeeded; no membership sync
// runs at startup to clear it earlier.
func (c *Context) SetInStartup(v bool) {
	var i int32
	if v {
		i = 1
	}
	atomic.StoreInt32(&c.inStartup, i)
}

// LocalMember returns this node's own stored Member record, creating a
// minimal VALID one if it has not been materialized yet.
func (c *Context) LocalMember() types.Member {
	if m, ok := c.Members.Get(c.SelfId); ok {
		return m
	}
	return types.Member{
		Id:       c.SelfId,
		State:    types.StateValid,
		AwareIds: types.NewIdSet(c.SelfId),
	}
}
