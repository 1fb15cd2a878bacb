package core

import "github.com/jabolina/syncmesh/pkg/syncmesh/types"

// TargetSelector narrows the live cluster snapshot down to the peers a
// publish call should address, per spec.md §4.3's target-selection rules.
type TargetSelector struct {
	// Include, if non-nil, is intersected with the alive snapshot.
	Include *types.IdSet
	// Exclude, if non-nil, is subtracted from the alive snapshot.
	Exclude *types.IdSet
}

// SelectTargets applies the include/exclude rule against alive.
func (sel TargetSelector) SelectTargets(alive *types.IdSet) *types.IdSet {
	switch {
	case sel.Include != nil:
		return alive.Intersect(sel.Include)
	case sel.Exclude != nil:
		return alive.Subtract(sel.Exclude)
	default:
		return alive.Clone()
	}
}

// BalanceFilter further restricts targets, per publication, to peers whose
// aware-set does not yet contain the message.
func BalanceFilter(targets *types.IdSet, aware *types.IdSet) *types.IdSet {
	return targets.Subtract(aware)
}

// EvaluateSuccess applies the policy's success predicate for one key given
// the final synced/failed sets observed against the original target count.
func EvaluateSuccess(policy types.DispatchPolicy, targetCount int, synced, failed *types.IdSet) bool {
	s, f := synced.Size(), failed.Size()

	if policy.IsQuorum() {
		if 2*f < targetCount {
			return true
		}
		return 2*s > targetCount
	}

	if policy.IsOneOf() {
		return f == 0 && s > 0
	}

	if s > f {
		return true
	}
	return f < targetCount
}

// GroupByUnaware groups publications by their exact unaware-target set, for
// the balance dispatch variant (spec.md §4.7.1). Keeps the open-question
// resolution of exact-match grouping (no subset merging).
func GroupByUnaware(targets *types.IdSet, pubs []types.Publication, awareOf func(types.Publication) *types.IdSet) map[string]*unawareGroup {
	groups := make(map[string]*unawareGroup)
	for _, p := range pubs {
		unaware := BalanceFilter(targets, awareOf(p))
		key := unaware.HashKey()
		g, ok := groups[key]
		if !ok {
			g = &unawareGroup{unaware: unaware}
			groups[key] = g
		}
		g.pubs = append(g.pubs, p)
	}
	return groups
}

type unawareGroup struct {
	unaware *types.IdSet
	pubs    []types.Publication
}
