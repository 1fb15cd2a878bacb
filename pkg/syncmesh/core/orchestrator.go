package core

import (
	"errors"
	"strings"
	"time"

	"github.com/jabolina/syncmesh/pkg/syncmesh/types"
)

// exchangeTimeout bounds a single request/reply round trip over a claimed
// session before the target is treated as failed for this sync.
const exchangeTimeout = 5 * time.Second

// SyncOrchestrator is the client-side driver that pushes one or more
// Publications to a set of targets under a DispatchPolicy, following the
// 7-step procedure of spec.md §4.7.
type SyncOrchestrator struct {
	ctx *Context
}

// NewSyncOrchestrator builds an orchestrator bound to ctx.
func NewSyncOrchestrator(ctx *Context) *SyncOrchestrator {
	return &SyncOrchestrator{ctx: ctx}
}

// Sync publishes every publication under policy to the valid members of the
// cluster, minus the local node, and returns one SyncResult per publication
// key.
func (o *SyncOrchestrator) Sync(publications []types.Publication, policy types.DispatchPolicy) (map[string]*types.SyncResult, error) {
	return o.syncWithSelector(publications, policy, TargetSelector{Exclude: types.NewIdSet(o.ctx.SelfId)})
}

// syncWithSelector is Sync with an explicit target selector, used directly
// by ring forwarding (ProtocolEngine.forwardRing) to exclude the sender and
// self rather than just self.
func (o *SyncOrchestrator) syncWithSelector(publications []types.Publication, policy types.DispatchPolicy, selector TargetSelector) (map[string]*types.SyncResult, error) {
	if len(publications) == 0 {
		return nil, types.ErrEmptyPublicationList
	}
	o.ctx.Metrics.observeSyncAttempt(policy)

	// Step 1: resolve targets against the current valid snapshot. DELETED
	// members are still broadcast via the membership probe/Each path
	// (membership_handler.go) but never receive routed publications.
	snapshot := o.ctx.Members.Snapshot()
	targets := selector.SelectTargets(snapshot.ValidIds())

	results := make(map[string]*types.SyncResult, len(publications))
	for _, p := range publications {
		results[p.Key()] = types.NewSyncResult()
	}

	if targets.IsEmpty() {
		for _, r := range results {
			r.Successful = true // nothing to sync against is vacuously satisfied
		}
		return results, nil
	}

	// Step 2: balance variants group publications by their exact unaware
	// target set (spec.md §4.7.1); plain variants use one group of all pubs
	// against the full target set.
	var groups []*unawareGroup
	if policy.IsBalance() {
		grouped := GroupByUnaware(targets, publications, func(p types.Publication) *types.IdSet {
			return o.ctx.Awareness.GetAware(p.Key(), p.Version())
		})
		for _, g := range grouped {
			groups = append(groups, g)
		}
	} else {
		groups = []*unawareGroup{{unaware: targets, pubs: publications}}
	}

	for _, g := range groups {
		if g.unaware.IsEmpty() {
			for _, p := range g.pubs {
				results[p.Key()].Successful = true
			}
			continue
		}
		o.syncGroup(g, policy, results)
	}

	overallSuccess := true
	for _, p := range publications {
		r := results[p.Key()]
		r.Successful = EvaluateSuccess(policy, targets.Size(), r.Synced, r.Failed)
		o.ctx.Metrics.observeSyncResult(r.Successful)
		if !r.Successful {
			overallSuccess = false
		}
	}
	if !overallSuccess && policy.IsRing() {
		return results, types.NewProtocolError(types.KindFailedRing, nil)
	}
	return results, nil
}

// syncGroup dispatches g's publications to g.unaware, per policy's topology
// (ring: first target only, relying on ProtocolEngine.forwardRing on that
// target to reach the rest; unicast/one-of: every target directly).
func (o *SyncOrchestrator) syncGroup(g *unawareGroup, policy types.DispatchPolicy, results map[string]*types.SyncResult) {
	targetIds := g.unaware.ToSlice()
	if policy.IsRing() {
		if len(targetIds) == 0 {
			return
		}
		targetIds = targetIds[:1]
	}

	type outcome struct {
		id  types.NodeId
		env *types.SyncEnvelope
		err error
	}
	outcomes := make(chan outcome, len(targetIds))

	for _, id := range targetIds {
		id := id
		o.ctx.Invoker.Spawn(func() {
			env, err := o.dispatchOne(id, g.pubs, policy)
			outcomes <- outcome{id: id, env: env, err: err}
		})
	}

	for range targetIds {
		out := <-outcomes
		if out.err != nil {
			o.ctx.Log.Warnf("orchestrator: sync to %d failed: %v", out.id, out.err)
			for _, p := range g.pubs {
				results[p.Key()].Failed.Add(out.id)
			}
			continue
		}
		o.applyReply(out.id, out.env, g.pubs, results)
	}
}

// dispatchOne runs the request/reply exchange against one target: send the
// contents, read the peer's reply, and if it answered TYPE_CHECK with
// further contents of its own (e.g. a balance-variant ack or a ring-forward
// result) send a closing TYPE_OK, bounded by SEQ_MAX.
func (o *SyncOrchestrator) dispatchOne(target types.NodeId, pubs []types.Publication, policy types.DispatchPolicy) (*types.SyncEnvelope, error) {
	member, ok := o.ctx.Members.Get(target)
	if !ok {
		return nil, errors.New("syncmesh: unknown target member")
	}
	session, err := o.ctx.Sessions.GetOrCreate(member, o.ctx.InStartup())
	if err != nil {
		return nil, err
	}

	mode, contents, err := contentsFor(o.ctx, pubs)
	if err != nil {
		return nil, err
	}

	local := o.ctx.LocalMember()
	env := &types.SyncEnvelope{
		SenderId:  o.ctx.SelfId,
		Type:      types.TypeCheck,
		Sequence:  0,
		InStartup: o.ctx.InStartup(),
		SyncMode:  mode,
		SyncType:  policy,
		KeyChain:  local.KeyChain,
		Contents:  contents,
	}

	var last *types.SyncEnvelope
	for env.Sequence < types.SeqMax {
		reply, err := exchange(session, env)
		if err != nil {
			return nil, err
		}
		last = reply
		switch reply.Type {
		case types.TypeOk:
			return reply, nil
		case types.TypeCheck:
			if len(reply.Contents) == 0 {
				return reply, nil
			}
			env = &types.SyncEnvelope{
				SenderId:  o.ctx.SelfId,
				Type:      types.TypeOk,
				Sequence:  reply.Sequence + 1,
				InStartup: o.ctx.InStartup(),
				SyncMode:  mode,
				SyncType:  policy,
			}
			return reply, session.Publish(env)
		default:
			return nil, types.NewProtocolError(kindForMessageType(reply.Type), nil)
		}
	}
	return last, nil
}

func kindForMessageType(t types.MessageType) types.ErrorKind {
	switch t {
	case types.TypeBadKey:
		return types.KindBadKey
	case types.TypeBadSeq:
		return types.KindBadSequence
	case types.TypeBadId:
		return types.KindBadId
	case types.TypeNotValidEdge:
		return types.KindNotValidEdge
	case types.TypeBothStartup:
		return types.KindBothStartup
	case types.TypeFailedRing:
		return types.KindFailedRing
	default:
		return types.KindTransportError
	}
}

// applyReply folds one target's reply contents into the accumulating
// per-key SyncResults: a content with a payload or the "already have"
// signal (version > 0) marks the target synced; the failure signal
// (version == 0, payload nil) marks it failed.
func (o *SyncOrchestrator) applyReply(target types.NodeId, env *types.SyncEnvelope, pubs []types.Publication, results map[string]*types.SyncResult) {
	acked := make(map[string]bool, len(env.Contents))
	for _, c := range env.Contents {
		key := keyOfContent(c.Key)
		acked[key] = true
		r, ok := results[key]
		if !ok {
			continue
		}
		if c.IsFailure() {
			r.Failed.Add(target)
			continue
		}
		r.Synced.Add(target)
		o.ctx.Awareness.Update(key, c.Version, types.NewIdSet(target, o.ctx.SelfId))
	}
	for _, p := range pubs {
		if !acked[p.Key()] {
			results[p.Key()].Synced.Add(target)
		}
	}
}

// replyListener is a one-shot SessionListener that funnels the next
// envelope (or failure) from a session into a channel, for exchange's
// synchronous request/reply round trip.
type replyListener struct {
	envelopes chan *types.SyncEnvelope
	failed    chan struct{}
}

func newReplyListener() *replyListener {
	return &replyListener{envelopes: make(chan *types.SyncEnvelope, 1), failed: make(chan struct{})}
}

func (r *replyListener) HandleEnvelope(_ *Session, env *types.SyncEnvelope) {
	select {
	case r.envelopes <- env:
	default:
	}
}

func (r *replyListener) HandleFailure(_ *Session, _ bool) {
	select {
	case <-r.failed:
	default:
		close(r.failed)
	}
}

// exchange claims session's listener for the duration of one request/reply
// round trip (spec.md §4.4's per-session ExchangeLock), publishes env, and
// waits for the peer's reply.
func exchange(session *Session, env *types.SyncEnvelope) (*types.SyncEnvelope, error) {
	session.ExchangeLock.Lock()
	defer session.ExchangeLock.Unlock()

	listener := newReplyListener()
	prev := session.SetListener(listener)
	defer session.SetListener(prev)

	if err := session.Publish(env); err != nil {
		return nil, types.NewProtocolError(types.KindTransportError, err)
	}

	select {
	case reply := <-listener.envelopes:
		return reply, nil
	case <-listener.failed:
		return nil, types.NewProtocolError(types.KindTransportError, errors.New("session failed mid-exchange"))
	case <-time.After(exchangeTimeout):
		return nil, types.NewProtocolError(types.KindTransportError, errors.New("exchange timed out"))
	}
}

// contentKeySeparator joins a publication's channel and key into the single
// string SyncContent.Key carries on the wire, since SYNC_MESSAGE envelopes
// must let the receiving ProtocolEngine recover which registered channel a
// content belongs to without a dedicated wire field.
const contentKeySeparator = "\x00"

func contentKeyFor(p types.Publication) string {
	return p.Channel() + contentKeySeparator + p.Key()
}

// channelOfContentKey recovers the channel half of a wire key built by
// contentKeyFor. Membership contents never pass through this path.
func channelOfContentKey(wireKey string) string {
	channel, _, found := strings.Cut(wireKey, contentKeySeparator)
	if !found {
		return wireKey
	}
	return channel
}

// keyOfContent recovers the publication key half, for matching a reply
// content back to the SyncResult keyed by Publication.Key().
func keyOfContent(wireKey string) string {
	_, key, found := strings.Cut(wireKey, contentKeySeparator)
	if !found {
		return wireKey
	}
	return key
}

// rawWireKeyed is implemented by publications (e.g. opaqueRingPublication)
// that already carry their final SyncContent.Key and must not be
// re-prefixed by contentKeyFor.
type rawWireKeyed interface {
	RawWireKey() string
}

// contentsFor builds the outgoing SyncContent list for pubs, detecting the
// membership-vs-message sync mode from the concrete publication type.
func contentsFor(ctx *Context, pubs []types.Publication) (types.SyncMode, []types.SyncContent, error) {
	mode := types.SyncMessage
	contents := make([]types.SyncContent, 0, len(pubs))
	for _, p := range pubs {
		wireKey := contentKeyFor(p)
		if raw, ok := p.(rawWireKeyed); ok {
			wireKey = raw.RawWireKey()
		} else if _, ok := p.(*types.MembershipPublication); ok {
			mode = types.SyncCluster
			wireKey = p.Key()
		}
		payload, err := p.Serialize()
		if err != nil {
			return mode, nil, err
		}
		contents = append(contents, types.SyncContent{
			Key:      wireKey,
			Version:  p.Version(),
			AwareIds: ctx.Awareness.GetAware(p.Key(), p.Version()),
			Payload:  payload,
		})
	}
	return mode, contents, nil
}
