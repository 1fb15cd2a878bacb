package core

import "github.com/jabolina/syncmesh/pkg/syncmesh/types"

// MembershipSyncHandler is the built-in handler the ProtocolEngine calls
// directly whenever an envelope's SyncMode is SYNC_CLUSTER (spec.md §4.6),
// instead of a registered ChannelCallback. It merges the remote membership
// view into the local MemberStore using (id, version, command) semantics.
type MembershipSyncHandler struct {
	ctx *Context
}

// NewMembershipSyncHandler builds a handler bound to ctx.
func NewMembershipSyncHandler(ctx *Context) *MembershipSyncHandler {
	return &MembershipSyncHandler{ctx: ctx}
}

// Handle processes one membership publication. Unlike ChannelCallback it
// also takes the enclosing envelope's expectedIds (used to seed the awareIds
// of a member created fresh) and its senderId.
func (h *MembershipSyncHandler) Handle(session *Session, publication types.Publication, awareIds *types.IdSet, expectedIds *types.IdSet, senderId types.NodeId, out chan<- types.Publication) {
	in, ok := publication.(*types.MembershipPublication)
	if !ok {
		h.ctx.Log.Errorf("membership handler received non-membership publication %T", publication)
		return
	}

	if in.Id == types.UnknownNode {
		h.handleProbe(out)
		return
	}

	local, exists := h.ctx.Members.Get(in.Id)
	if !exists {
		h.createFresh(in, expectedIds)
		out <- types.MembershipPublicationFromMember(h.mustGet(in.Id), types.Ok)
		return
	}

	switch in.Command {
	case types.GiveThis:
		out <- types.MembershipPublicationFromMember(local, replyCommandFor(local))
	case types.DelThis:
		h.handleDelThis(in, local, senderId, out)
	case types.TakeThis, types.Ok, types.RcptThis:
		h.handleAssert(in, local, senderId, out)
	default:
		h.ctx.Log.Warnf("membership handler: unknown command %v from %d", in.Command, in.Id)
	}
}

func (h *MembershipSyncHandler) mustGet(id types.NodeId) types.Member {
	m, _ := h.ctx.Members.Get(id)
	return m
}

// handleProbe answers a handshake probe (Id == -1, spec.md §4.6) with one
// content per local member, without mutating any state.
func (h *MembershipSyncHandler) handleProbe(out chan<- types.Publication) {
	h.ctx.Members.Each(func(m types.Member) {
		out <- types.MembershipPublicationFromMember(m, replyCommandFor(m))
	})
}

func replyCommandFor(m types.Member) types.MembershipCommand {
	if m.State == types.StateDeleted {
		return types.DelThis
	}
	return types.TakeThis
}

func (h *MembershipSyncHandler) createFresh(in *types.MembershipPublication, expectedIds *types.IdSet) {
	aware := types.NewIdSet(h.ctx.SelfId)
	if expectedIds != nil {
		aware = aware.Union(expectedIds)
	}
	h.ctx.Members.Update(in.ToMember(aware))
}

func (h *MembershipSyncHandler) handleDelThis(in *types.MembershipPublication, local types.Member, senderId types.NodeId, out chan<- types.Publication) {
	if local.State != types.StateDeleted {
		switch {
		case in.Ver > local.LastModified:
			updated := local.Clone()
			updated.State = types.StateDeleted
			updated.LastModified = in.Ver
			updated.AwareIds = updated.AwareIds.Union(types.NewIdSet(h.ctx.SelfId, senderId))
			h.ctx.Members.Update(updated)
			out <- types.MembershipPublicationFromMember(h.mustGet(in.Id), types.Ok)
		case in.Ver < local.LastModified:
			out <- types.MembershipPublicationFromMember(local, replyCommandFor(local))
		default:
			h.unionAware(in.Id, senderId)
			out <- types.MembershipPublicationFromMember(h.mustGet(in.Id), types.Ok)
		}
		return
	}
	// already invalid locally: union aware-sets, reply OK.
	h.unionAware(in.Id, senderId)
	out <- types.MembershipPublicationFromMember(h.mustGet(in.Id), types.Ok)
}

func (h *MembershipSyncHandler) handleAssert(in *types.MembershipPublication, local types.Member, senderId types.NodeId, out chan<- types.Publication) {
	switch {
	case in.Ver == local.LastModified:
		if in.Command == types.TakeThis {
			// TAKE_THIS at equal version only confirms self's own awareness;
			// the sender is added to aware-sets only on OK/RCPT_THIS.
			h.unionSelf(in.Id)
			h.clearScheduled(in.Id)
		} else {
			h.unionAware(in.Id, senderId)
		}
		if in.Command == types.RcptThis {
			out <- types.MembershipPublicationFromMember(h.mustGet(in.Id), replyCommandFor(h.mustGet(in.Id)))
		}
	case in.Ver > local.LastModified && in.Command == types.TakeThis:
		updated := in.ToMember(local.AwareIds.Union(types.NewIdSet(h.ctx.SelfId, senderId)))
		updated.KeyChain = local.KeyChain
		h.ctx.Members.Update(updated)
		out <- types.MembershipPublicationFromMember(h.mustGet(in.Id), types.Ok)
	case in.Ver > local.LastModified:
		out <- types.MembershipPublicationFromMember(local, types.GiveThis)
	default: // in.Ver < local.LastModified
		out <- types.MembershipPublicationFromMember(local, replyCommandFor(local))
	}
}

func (h *MembershipSyncHandler) unionAware(id types.NodeId, senderId types.NodeId) {
	local, ok := h.ctx.Members.Get(id)
	if !ok {
		return
	}
	updated := local
	updated.AwareIds = local.AwareIds.Union(types.NewIdSet(h.ctx.SelfId, senderId))
	h.ctx.Members.Update(updated)
}

// unionSelf adds only this node to id's aware-set, without the sender.
func (h *MembershipSyncHandler) unionSelf(id types.NodeId) {
	local, ok := h.ctx.Members.Get(id)
	if !ok {
		return
	}
	updated := local
	updated.AwareIds = local.AwareIds.Union(types.NewIdSet(h.ctx.SelfId))
	h.ctx.Members.Update(updated)
}

func (h *MembershipSyncHandler) clearScheduled(id types.NodeId) {
	local, ok := h.ctx.Members.Get(id)
	if !ok || !local.Scheduled {
		return
	}
	updated := local
	updated.Scheduled = false
	h.ctx.Members.Update(updated)
}
