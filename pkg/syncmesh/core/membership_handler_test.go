package core

import (
	"testing"

	"github.com/jabolina/syncmesh/pkg/syncmesh/definition"
	"github.com/jabolina/syncmesh/pkg/syncmesh/types"
)

func newTestContext(selfId types.NodeId) *Context {
	ctx := &Context{
		SelfId:       selfId,
		Members:      types.NewMemberStore(),
		Awareness:    types.NewAwarenessStore(),
		Publications: NewPublicationRegistry(),
		Log:          definition.NewDefaultLogger("test"),
		Invoker:      InvokerInstance(),
	}
	ctx.Sessions = NewSessionRegistry(ctx.Log, ctx.Invoker, nil)
	return ctx
}

func drain(out chan types.Publication) []*types.MembershipPublication {
	var got []*types.MembershipPublication
	for p := range out {
		got = append(got, p.(*types.MembershipPublication))
	}
	return got
}

func TestMembershipSyncHandler_ProbeRepliesWithEveryLocalMember(t *testing.T) {
	ctx := newTestContext(1)
	ctx.Members.Update(types.Member{Id: 1, State: types.StateValid, LastModified: 1})
	ctx.Members.Update(types.Member{Id: 2, State: types.StateDeleted, LastModified: 1})
	h := NewMembershipSyncHandler(ctx)

	out := make(chan types.Publication, 4)
	h.Handle(nil, &types.MembershipPublication{Id: types.UnknownNode}, nil, nil, 2, out)
	close(out)

	replies := drain(out)
	if len(replies) != 2 {
		t.Fatalf("expected one reply per local member, got %d", len(replies))
	}
	for _, r := range replies {
		if r.Id == 2 && r.Command != types.DelThis {
			t.Fatalf("deleted member should reply DEL_THIS, got %v", r.Command)
		}
		if r.Id == 1 && r.Command != types.TakeThis {
			t.Fatalf("valid member should reply TAKE_THIS, got %v", r.Command)
		}
	}
}

func TestMembershipSyncHandler_CreatesFreshMemberWhenUnknown(t *testing.T) {
	ctx := newTestContext(1)
	h := NewMembershipSyncHandler(ctx)

	out := make(chan types.Publication, 1)
	in := &types.MembershipPublication{Id: 5, Ver: 10, Command: types.TakeThis}
	h.Handle(nil, in, types.NewIdSet(), nil, 2, out)
	close(out)

	if _, ok := ctx.Members.Get(5); !ok {
		t.Fatalf("expected member 5 to be created")
	}
	replies := drain(out)
	if len(replies) != 1 || replies[0].Command != types.Ok {
		t.Fatalf("expected a single OK reply, got %+v", replies)
	}
}

func TestMembershipSyncHandler_NewerTakeThisReplaces(t *testing.T) {
	ctx := newTestContext(1)
	ctx.Members.Update(types.Member{Id: 5, LastModified: 1, State: types.StateValid, AwareIds: types.NewIdSet(1)})
	h := NewMembershipSyncHandler(ctx)

	out := make(chan types.Publication, 1)
	in := &types.MembershipPublication{Id: 5, Ver: 2, Command: types.TakeThis}
	h.Handle(nil, in, types.NewIdSet(), nil, 2, out)
	close(out)

	got, _ := ctx.Members.Get(5)
	if got.LastModified != 2 {
		t.Fatalf("expected member updated to version 2, got %d", got.LastModified)
	}
	replies := drain(out)
	if len(replies) != 1 || replies[0].Command != types.Ok {
		t.Fatalf("expected OK ack reply, got %+v", replies)
	}
}

func TestMembershipSyncHandler_StaleTakeThisRepliesLocalRecord(t *testing.T) {
	ctx := newTestContext(1)
	ctx.Members.Update(types.Member{Id: 5, LastModified: 10, State: types.StateValid, AwareIds: types.NewIdSet(1)})
	h := NewMembershipSyncHandler(ctx)

	out := make(chan types.Publication, 1)
	in := &types.MembershipPublication{Id: 5, Ver: 2, Command: types.TakeThis}
	h.Handle(nil, in, types.NewIdSet(), nil, 2, out)
	close(out)

	replies := drain(out)
	if len(replies) != 1 || replies[0].Command != replyCommandFor(mustGetHelper(ctx, 5)) {
		t.Fatalf("expected a local-state reply for stale update, got %+v", replies)
	}
}

func mustGetHelper(ctx *Context, id types.NodeId) types.Member {
	m, _ := ctx.Members.Get(id)
	return m
}
