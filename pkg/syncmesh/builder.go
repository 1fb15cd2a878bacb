// Package syncmesh is the library's external surface: a builder that wires
// together the core package's Context, ProtocolEngine and SyncOrchestrator
// behind a small Cluster API, plus the publication type registry.
package syncmesh

import (
	"fmt"
	"net"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jabolina/syncmesh/pkg/syncmesh/core"
	"github.com/jabolina/syncmesh/pkg/syncmesh/definition"
	"github.com/jabolina/syncmesh/pkg/syncmesh/ring"
	"github.com/jabolina/syncmesh/pkg/syncmesh/types"
)

// buildRequirements accumulates the builder's fields. Its zero value is
// invalid: Get() validates it in one pass per the "Mutable enum-keyed
// state-machine flag" design note (spec.md §9), rather than the teacher's
// panic-per-setter style.
type buildRequirements struct {
	selfId        types.NodeId
	listenAddress string
	selfAddress   types.Address
	sharedKey     string
	keyChain      []string
	peers         []peerSeed
	defaultPolicy types.DispatchPolicy
	policySet     bool
	log           definition.Logger
	registry      prometheus.Registerer
	publications  []publicationSeed
	callbacks     map[string]core.ChannelCallback
	fallback      core.RingFallback
}

type peerSeed struct {
	id      types.NodeId
	address types.Address
}

type publicationSeed struct {
	channel string
	factory core.PublicationFactory
}

// ClusterBuilder assembles a Cluster. Every setter returns the builder for
// chaining; validation happens once, in Get().
type ClusterBuilder struct {
	req buildRequirements
}

// NewClusterBuilder starts a builder for node id, listening on listenAddress.
func NewClusterBuilder(id types.NodeId, listenAddress string) *ClusterBuilder {
	return &ClusterBuilder{req: buildRequirements{
		selfId:        id,
		listenAddress: listenAddress,
		callbacks:     make(map[string]core.ChannelCallback),
	}}
}

// WithSelfAddress sets the address peers should use to dial this node back.
func (b *ClusterBuilder) WithSelfAddress(addr types.Address) *ClusterBuilder {
	b.req.selfAddress = addr
	return b
}

// WithSharedKey sets this node's key, stored as the local member's Key and
// in Context.SharedKey. Inbound envelopes are not checked against it.
func (b *ClusterBuilder) WithSharedKey(key string) *ClusterBuilder {
	b.req.sharedKey = key
	return b
}

// WithKeyChain sets this node's chain of prior (superseded) keys. An inbound
// envelope whose key chain shares any entry with it is answered with
// TYPE_BAD_KEY.
func (b *ClusterBuilder) WithKeyChain(chain []string) *ClusterBuilder {
	b.req.keyChain = chain
	return b
}

// WithPeer registers a peer known at startup.
func (b *ClusterBuilder) WithPeer(id types.NodeId, addr types.Address) *ClusterBuilder {
	b.req.peers = append(b.req.peers, peerSeed{id: id, address: addr})
	return b
}

// WithDefaultPolicy sets the dispatch policy used when Cluster.Publish does
// not receive an explicit override.
func (b *ClusterBuilder) WithDefaultPolicy(policy types.DispatchPolicy) *ClusterBuilder {
	b.req.defaultPolicy = policy
	b.req.policySet = true
	return b
}

// WithLogger overrides the default logrus-backed logger.
func (b *ClusterBuilder) WithLogger(log definition.Logger) *ClusterBuilder {
	b.req.log = log
	return b
}

// WithMetricsRegistry overrides the prometheus registerer metrics publish
// to (defaults to prometheus.DefaultRegisterer).
func (b *ClusterBuilder) WithMetricsRegistry(registry prometheus.Registerer) *ClusterBuilder {
	b.req.registry = registry
	return b
}

// WithRingFallback overrides the default ring.LoopbackFallback.
func (b *ClusterBuilder) WithRingFallback(fallback core.RingFallback) *ClusterBuilder {
	b.req.fallback = fallback
	return b
}

// RegisterPublicationType associates channel with the factory used to
// deserialize incoming SYNC_MESSAGE payloads on it (spec.md §9's
// registered-factory instantiation, never reflection).
func (b *ClusterBuilder) RegisterPublicationType(channel string, factory core.PublicationFactory) *ClusterBuilder {
	b.req.publications = append(b.req.publications, publicationSeed{channel: channel, factory: factory})
	return b
}

// RegisterCallback associates channel with the callback invoked once an
// incoming publication on it has been deserialized.
func (b *ClusterBuilder) RegisterCallback(channel string, cb core.ChannelCallback) *ClusterBuilder {
	b.req.callbacks[channel] = cb
	return b
}

// Get validates the accumulated requirements and builds a Cluster. It does
// not start the listener; call Cluster.Start for that.
func (b *ClusterBuilder) Get() (*Cluster, error) {
	req := b.req
	var missing []string
	if req.selfId == types.UnknownNode {
		missing = append(missing, "node id")
	}
	if req.listenAddress == "" {
		missing = append(missing, "listen address")
	}
	if req.selfAddress == (types.Address{}) {
		missing = append(missing, "self address")
	}
	if !req.policySet {
		missing = append(missing, "default dispatch policy")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %v", types.ErrBuilderIncomplete, missing)
	}

	if req.log == nil {
		req.log = definition.NewDefaultLogger(fmt.Sprintf("syncmesh-%d", req.selfId))
	}
	if req.registry == nil {
		req.registry = prometheus.DefaultRegisterer
	}

	ctx := &core.Context{
		SelfId:        req.selfId,
		Members:       types.NewMemberStore(),
		Awareness:     types.NewAwarenessStore(),
		Publications:  core.NewPublicationRegistry(),
		Log:           req.log,
		Invoker:       core.InvokerInstance(),
		Metrics:       core.NewMetrics(req.registry),
		DefaultPolicy: req.defaultPolicy,
		SharedKey:     req.sharedKey,
	}
	ctx.Sessions = core.NewSessionRegistry(req.log, ctx.Invoker, ctx.Metrics)
	ctx.SetInStartup(true)

	ctx.Members.Update(types.Member{
		Id:            req.selfId,
		SyncAddresses: []types.Address{req.selfAddress},
		Key:           req.sharedKey,
		KeyChain:      req.keyChain,
		State:         types.StateValid,
		AwareIds:      types.NewIdSet(req.selfId),
	})
	for _, p := range req.peers {
		ctx.Members.Update(types.Member{
			Id:            p.id,
			SyncAddresses: []types.Address{p.address},
			State:         types.StateValid,
			AwareIds:      types.NewIdSet(req.selfId),
		})
	}

	if req.fallback != nil {
		ctx.Fallback = req.fallback
	} else {
		ctx.Fallback = ring.NewLoopbackFallback(ctx, req.log)
	}

	for _, p := range req.publications {
		ctx.Publications.RegisterType(p.channel, p.factory)
	}
	for channel, cb := range req.callbacks {
		ctx.Publications.RegisterCallback(channel, cb)
	}

	return &Cluster{
		ctx:           ctx,
		listenAddress: req.listenAddress,
		engine:        core.NewProtocolEngine(ctx),
	}, nil
}

// Cluster is the running library surface: it owns the TCP listener and
// exposes Publish for submitting new publications to the cluster.
type Cluster struct {
	ctx           *core.Context
	listenAddress string
	listener      net.Listener
	engine        *core.ProtocolEngine
}

// Start begins accepting inbound peer connections. Each accepted
// connection becomes a server Session whose listener is this cluster's
// ProtocolEngine.
func (c *Cluster) Start() error {
	ln, err := net.Listen("tcp", c.listenAddress)
	if err != nil {
		return fmt.Errorf("syncmesh: listen on %s: %w", c.listenAddress, err)
	}
	c.listener = ln
	c.ctx.Invoker.Spawn(c.acceptLoop)
	return nil
}

func (c *Cluster) acceptLoop() {
	for {
		conn, err := c.listener.Accept()
		if err != nil {
			return
		}
		core.NewServerSession(types.UnknownNode, conn, c.engine, c.ctx.Log, c.ctx.Invoker, c.ctx.InStartup())
	}
}

// Publish submits publications for synchronization under policy, used as
// given (the zero value is UnicastPlain). Use Cluster.PublishDefault for the
// cluster's configured default.
func (c *Cluster) Publish(publications []types.Publication, policy types.DispatchPolicy) (map[string]*types.SyncResult, error) {
	orchestrator := core.NewSyncOrchestrator(c.ctx)
	results, err := orchestrator.Sync(publications, policy)
	c.ctx.SetInStartup(false)
	return results, err
}

// PublishDefault submits publications under the cluster's default policy.
func (c *Cluster) PublishDefault(publications []types.Publication) (map[string]*types.SyncResult, error) {
	return c.Publish(publications, c.ctx.DefaultPolicy)
}

// Stop closes the listener and every session held in the session registry
// under a known member's id. Accepted connections that have not yet sent an
// envelope are not in the registry and are not closed here.
func (c *Cluster) Stop() error {
	if c.listener != nil {
		if err := c.listener.Close(); err != nil {
			return err
		}
	}
	c.ctx.Members.Each(func(m types.Member) {
		if s, ok := c.ctx.Sessions.Get(m.Id); ok {
			s.Close(true)
		}
	})
	return nil
}

// LocalMember returns this node's own stored Member record.
func (c *Cluster) LocalMember() types.Member {
	return c.ctx.LocalMember()
}

// Snapshot returns the current cluster membership view.
func (c *Cluster) Snapshot() types.ClusterSnapshot {
	return c.ctx.Members.Snapshot()
}
