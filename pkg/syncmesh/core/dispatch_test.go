package core

import (
	"testing"

	"github.com/jabolina/syncmesh/pkg/syncmesh/types"
)

func TestEvaluateSuccess_PlainMajority(t *testing.T) {
	synced := types.NewIdSet(1, 2, 3)
	failed := types.NewIdSet(4)
	if !EvaluateSuccess(types.UnicastPlain, 4, synced, failed) {
		t.Fatalf("expected success when synced outnumber failed")
	}
}

func TestEvaluateSuccess_PlainAllFailed(t *testing.T) {
	synced := types.NewIdSet()
	failed := types.NewIdSet(1, 2)
	if EvaluateSuccess(types.UnicastPlain, 2, synced, failed) {
		t.Fatalf("expected failure when every target failed")
	}
}

func TestEvaluateSuccess_Quorum(t *testing.T) {
	// 3 targets: quorum succeeds while fewer than half the targets failed,
	// or once a strict majority synced.
	synced := types.NewIdSet(1, 2)
	failed := types.NewIdSet(3)
	if !EvaluateSuccess(types.UnicastQuorum, 3, synced, failed) {
		t.Fatalf("expected quorum success with 2/3 synced")
	}

	synced = types.NewIdSet(1)
	failed = types.NewIdSet(2, 3)
	if EvaluateSuccess(types.UnicastQuorum, 3, synced, failed) {
		t.Fatalf("expected quorum failure with 1/3 synced, 2/3 failed")
	}
}

func TestEvaluateSuccess_OneOf(t *testing.T) {
	if !EvaluateSuccess(types.OneOf, 3, types.NewIdSet(1), types.NewIdSet()) {
		t.Fatalf("one-of should succeed with a single sync and no failures")
	}
	if EvaluateSuccess(types.OneOf, 3, types.NewIdSet(1), types.NewIdSet(2)) {
		t.Fatalf("one-of should fail once any target fails")
	}
}

func TestTargetSelector_IncludeAndExclude(t *testing.T) {
	alive := types.NewIdSet(1, 2, 3, 4)

	include := TargetSelector{Include: types.NewIdSet(2, 3)}
	if got := include.SelectTargets(alive); !got.Equals(types.NewIdSet(2, 3)) {
		t.Fatalf("include selection = %v, want {2,3}", got.ToSlice())
	}

	exclude := TargetSelector{Exclude: types.NewIdSet(1)}
	if got := exclude.SelectTargets(alive); !got.Equals(types.NewIdSet(2, 3, 4)) {
		t.Fatalf("exclude selection = %v, want {2,3,4}", got.ToSlice())
	}
}

func TestGroupByUnaware_ExactMatchGrouping(t *testing.T) {
	targets := types.NewIdSet(1, 2, 3)
	p1 := &types.UserPublication{Chan: "c", Key_: "k1"}
	p2 := &types.UserPublication{Chan: "c", Key_: "k2"}
	p3 := &types.UserPublication{Chan: "c", Key_: "k3"}

	aware := map[string]*types.IdSet{
		"k1": types.NewIdSet(1),
		"k2": types.NewIdSet(1),
		"k3": types.NewIdSet(2),
	}

	groups := GroupByUnaware(targets, []types.Publication{p1, p2, p3}, func(p types.Publication) *types.IdSet {
		return aware[p.Key()]
	})

	if len(groups) != 2 {
		t.Fatalf("expected 2 distinct unaware groups, got %d", len(groups))
	}
	for _, g := range groups {
		if g.unaware.Equals(types.NewIdSet(2, 3)) && len(g.pubs) != 2 {
			t.Fatalf("k1/k2 group should hold 2 publications, got %d", len(g.pubs))
		}
		if g.unaware.Equals(types.NewIdSet(1, 3)) && len(g.pubs) != 1 {
			t.Fatalf("k3 group should hold 1 publication, got %d", len(g.pubs))
		}
	}
}
