// Package ring provides the default RingFallback collaborator.
package ring

import (
	"github.com/jabolina/syncmesh/pkg/syncmesh/core"
	"github.com/jabolina/syncmesh/pkg/syncmesh/definition"
	"github.com/jabolina/syncmesh/pkg/syncmesh/types"
)

// LoopbackFallback is the built-in, best-effort RingFallback: it
// re-publishes over the same cluster using a RING dispatch against the
// current valid members, logging failures rather than surfacing them,
// per spec.md §6 ("RingFallback failures are purely informational").
type LoopbackFallback struct {
	ctx *core.Context
	log definition.Logger
}

// NewLoopbackFallback builds a fallback bound to ctx.
func NewLoopbackFallback(ctx *core.Context, log definition.Logger) *LoopbackFallback {
	return &LoopbackFallback{ctx: ctx, log: log}
}

// Broadcast re-publishes publication over a fresh ring sync, swallowing any
// error beyond a warning log: the fallback is a collaborator of last
// resort, not a guaranteed-delivery channel.
func (f *LoopbackFallback) Broadcast(publication types.Publication) error {
	orchestrator := core.NewSyncOrchestrator(f.ctx)
	_, err := orchestrator.Sync([]types.Publication{publication}, types.RingPlain)
	if err != nil {
		f.log.Warnf("ring fallback: broadcast of %s failed: %v", publication.Key(), err)
	}
	return nil
}
