package core

import (
	"github.com/jabolina/syncmesh/pkg/syncmesh/types"
)

// ProtocolEngine is the server-side handler for incoming SyncEnvelopes
// (spec.md §4.5). One ProtocolEngine serves every accepted session.
type ProtocolEngine struct {
	ctx        *Context
	membership *MembershipSyncHandler
}

// NewProtocolEngine builds an engine bound to ctx.
func NewProtocolEngine(ctx *Context) *ProtocolEngine {
	return &ProtocolEngine{ctx: ctx, membership: NewMembershipSyncHandler(ctx)}
}

// HandleEnvelope implements SessionListener: it is invoked by a session's
// read loop for every inbound frame while this engine is the session's
// listener.
func (e *ProtocolEngine) HandleEnvelope(session *Session, env *types.SyncEnvelope) {
	reply := e.process(session, env)
	if reply == nil {
		return
	}
	if err := session.Publish(reply); err != nil {
		e.ctx.Log.Warnf("protocol engine: failed replying to %d: %v", env.SenderId, err)
	}
	if reply.Type == types.TypeOk || reply.Type == types.TypeBothStartup || reply.Type == types.TypeBadKey ||
		reply.Type == types.TypeBadSeq || reply.Type == types.TypeNotValidEdge || reply.Type == types.TypeFailedRing {
		session.Close(true)
	}
}

// HandleFailure implements SessionListener: a server-accepted session that
// dies is simply dropped from the registry.
func (e *ProtocolEngine) HandleFailure(session *Session, planned bool) {
	if !planned {
		e.ctx.Log.Warnf("protocol engine: session %d failed", session.PeerId)
	}
	e.ctx.Sessions.Remove(session.PeerId)
}

// process implements the 9-step procedure of spec.md §4.5, returning the
// reply envelope to send, or nil to send nothing (only when m is itself
// TYPE_OK, step 1).
func (e *ProtocolEngine) process(session *Session, m *types.SyncEnvelope) *types.SyncEnvelope {
	e.ctx.Metrics.observeMessage(m.SyncMode)

	// Step 1: m.type == TYPE_OK closes cleanly, no reply.
	if m.Type == types.TypeOk {
		session.Close(true)
		return nil
	}

	// Step 2: both sides in startup defer to the fallback transport.
	if m.InStartup && session.StartupStateAtOpen {
		return bareReply(e.ctx.SelfId, types.TypeBothStartup)
	}

	// Step 3: reserved/bad message types or out-of-range sequence.
	if m.Type == types.TypeBadId || m.Type == types.TypeBadSeq || m.Type == types.TypeFailedRing ||
		m.Type == types.TypeFullCheck || m.Type == types.TypeStartupCheck || m.Sequence > types.SeqMax {
		return bareReply(e.ctx.SelfId, types.TypeBadSeq)
	}

	// Step 4: first message of a session sets initiated and checks keyChain.
	if !session.Initiated {
		session.Initiated = true
	}
	local := e.ctx.LocalMember()
	if keyChainIntersects(m.KeyChain, local.KeyChain) {
		return bareReply(e.ctx.SelfId, types.TypeBadKey)
	}

	// Step 5: resolve the peer Member.
	peer, known := e.ctx.Members.Get(m.SenderId)
	if !known || peer.State == types.StateInvalid {
		if m.SyncMode != types.SyncCluster {
			return bareReply(e.ctx.SelfId, types.TypeNotValidEdge)
		}
		// Membership probes/assertions are how an unknown peer becomes known;
		// SYNC_CLUSTER content is allowed through to the membership handler.
	}

	// Step 6: DOWN peers are reachable again only through membership sync.
	if known && peer.State == types.StateDown {
		downgraded := peer
		downgraded.State = types.StateDeleted
		e.ctx.Members.Update(downgraded)
	}

	session.PeerId = m.SenderId
	e.ctx.Sessions.Register(m.SenderId, session)

	// Step 7: dispatch per sync mode.
	var outgoing []types.SyncContent
	switch m.SyncMode {
	case types.SyncMessage:
		outgoing = e.handleMessageContents(session, m)
	case types.SyncCluster:
		outgoing = e.handleClusterContents(session, m)
	}

	// Step 8: ring variants forward to the rest of the ring before replying.
	if m.SyncType.IsRing() && len(outgoing) > 0 {
		outgoing = e.forwardRing(m, outgoing)
	}

	// Step 9: reply TYPE_OK if nothing to say, else TYPE_CHECK.
	if len(outgoing) == 0 {
		return &types.SyncEnvelope{SenderId: e.ctx.SelfId, Type: types.TypeOk, Sequence: 0, SyncMode: m.SyncMode, SyncType: m.SyncType}
	}
	reply := &types.SyncEnvelope{
		SenderId: e.ctx.SelfId,
		Type:     types.TypeCheck,
		Sequence: m.Sequence + 1,
		SyncMode: m.SyncMode,
		SyncType: m.SyncType,
		Contents: outgoing,
	}
	if m.SyncType.IsRing() && m.Sequence == 0 {
		reply.ExpectedIds = e.ctx.Members.Snapshot().AliveIds()
	}
	return reply
}

func bareReply(self types.NodeId, t types.MessageType) *types.SyncEnvelope {
	return &types.SyncEnvelope{SenderId: self, Type: t, Sequence: types.SeqMax}
}

func keyChainIntersects(remote []string, local []string) bool {
	if len(remote) == 0 || len(local) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(local))
	for _, k := range local {
		set[k] = struct{}{}
	}
	for _, k := range remote {
		if _, ok := set[k]; ok {
			return true
		}
	}
	return false
}

func (e *ProtocolEngine) handleMessageContents(session *Session, m *types.SyncEnvelope) []types.SyncContent {
	var outgoing []types.SyncContent
	for _, c := range m.Contents {
		aware := c.AwareIds.Union(types.NewIdSet(e.ctx.SelfId))
		e.ctx.Awareness.Update(keyOfContent(c.Key), c.Version, aware)

		if c.Payload == nil {
			continue
		}

		channel, factory, ok := e.resolveFactory(c)
		if !ok {
			e.ctx.Log.Warnf("protocol engine: no publication type registered for channel %s", channel)
			outgoing = append(outgoing, types.SyncContent{Key: c.Key, Version: 0})
			continue
		}
		pub := factory()
		if err := pub.Deserialize(c.Payload); err != nil {
			e.ctx.Log.Errorf("protocol engine: failed deserializing %s: %v", c.Key, err)
			outgoing = append(outgoing, types.SyncContent{Key: c.Key, Version: 0})
			continue
		}

		cb, ok := e.ctx.Publications.CallbackFor(channel)
		if !ok {
			continue
		}
		out := make(chan types.Publication, 4)
		done := make(chan struct{})
		go func() {
			defer close(done)
			cb(session, pub, aware, out)
		}()
		go func() { <-done; close(out) }()
		for resp := range out {
			payload, err := resp.Serialize()
			if err != nil {
				e.ctx.Log.Errorf("protocol engine: failed serializing response for %s: %v", resp.Key(), err)
				continue
			}
			outgoing = append(outgoing, types.SyncContent{
				Key:      contentKeyFor(resp),
				Version:  resp.Version(),
				AwareIds: e.ctx.Awareness.GetAware(resp.Key(), resp.Version()),
				Payload:  payload,
			})
		}
	}
	return outgoing
}

// resolveFactory maps a SyncMessage content to its registered channel; the
// channel travels alongside the content's key via a "\x00" separator chosen
// by the orchestrator when it builds outgoing contents for non-membership
// publications (see orchestrator.go contentKeyFor).
func (e *ProtocolEngine) resolveFactory(c types.SyncContent) (string, PublicationFactory, bool) {
	channel := channelOfContentKey(c.Key)
	f, ok := e.ctx.Publications.FactoryFor(channel)
	return channel, f, ok
}

func (e *ProtocolEngine) handleClusterContents(session *Session, m *types.SyncEnvelope) []types.SyncContent {
	var outgoing []types.SyncContent
	for _, c := range m.Contents {
		aware := c.AwareIds.Union(types.NewIdSet(e.ctx.SelfId))
		e.ctx.Awareness.Update(c.Key, c.Version, aware)
		if c.Payload == nil {
			continue
		}
		pub := &types.MembershipPublication{}
		if err := pub.Deserialize(c.Payload); err != nil {
			e.ctx.Log.Errorf("protocol engine: failed deserializing membership content: %v", err)
			continue
		}
		out := make(chan types.Publication, 4)
		done := make(chan struct{})
		go func() {
			defer close(done)
			e.membership.Handle(session, pub, aware, m.ExpectedIds, m.SenderId, out)
		}()
		go func() { <-done; close(out) }()
		for resp := range out {
			payload, err := resp.Serialize()
			if err != nil {
				continue
			}
			mp := resp.(*types.MembershipPublication)
			outgoing = append(outgoing, types.SyncContent{
				Key:      c.Key,
				Version:  mp.Ver,
				AwareIds: e.ctx.Members.Snapshot().AliveIds(),
				Payload:  payload,
			})
		}
	}
	return outgoing
}

// forwardRing implements step 8: spawn a nested SyncOrchestrator excluding
// {senderId, selfId} to propagate content to the rest of the ring, waiting
// for its SyncResult map and mapping results back into outgoing contents.
func (e *ProtocolEngine) forwardRing(m *types.SyncEnvelope, outgoing []types.SyncContent) []types.SyncContent {
	exclude := types.NewIdSet(m.SenderId, e.ctx.SelfId)
	orchestrator := NewSyncOrchestrator(e.ctx)

	pubs := make([]types.Publication, 0, len(outgoing))
	byKey := make(map[string]types.SyncContent, len(outgoing))
	for _, c := range outgoing {
		byKey[c.Key] = c
		pubs = append(pubs, &opaqueRingPublication{content: c})
	}

	results, err := orchestrator.syncWithSelector(pubs, m.SyncType, TargetSelector{Exclude: exclude})
	if err != nil {
		e.ctx.Log.Warnf("protocol engine: ring forward failed: %v", err)
		var failed []types.SyncContent
		for _, c := range outgoing {
			failed = append(failed, types.SyncContent{Key: c.Key, Version: 0})
		}
		return failed
	}

	var mapped []types.SyncContent
	for key, orig := range byKey {
		res, ok := results[key]
		if !ok || !res.Successful {
			mapped = append(mapped, types.SyncContent{Key: key, Version: 0, AwareIds: failedAwareUnion(res)})
			continue
		}
		mapped = append(mapped, types.SyncContent{
			Key:      key,
			Version:  orig.Version,
			AwareIds: res.Synced,
			Payload:  orig.Payload,
		})
	}
	return mapped
}

func failedAwareUnion(res *types.SyncResult) *types.IdSet {
	if res == nil {
		return types.NewIdSet()
	}
	return res.Failed
}

// opaqueRingPublication wraps an already-built SyncContent so it can be
// round-tripped through SyncOrchestrator's publication-oriented API during
// ring forwarding, without re-deserializing/re-serializing its payload.
type opaqueRingPublication struct {
	content types.SyncContent
}

func (o *opaqueRingPublication) Serialize() ([]byte, error) { return o.content.Payload, nil }
func (o *opaqueRingPublication) Deserialize([]byte) error   { return nil }
func (o *opaqueRingPublication) Key() string                { return o.content.Key }
func (o *opaqueRingPublication) Channel() string             { return "__ring_forward__" }
func (o *opaqueRingPublication) Version() int64              { return o.content.Version }

// RawWireKey marks opaqueRingPublication as already carrying its final
// on-wire SyncContent.Key: contentsFor must forward it verbatim instead of
// re-applying the channel-prefixing convention, since the key was already
// prefixed (or not, for membership content) by whoever produced it the
// first time this content was built.
func (o *opaqueRingPublication) RawWireKey() string { return o.content.Key }
