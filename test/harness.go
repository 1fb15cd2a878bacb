// Package test mirrors the teacher's test/testing.go: multi-node cluster
// harness helpers shared by package-level and fuzzy convergence tests.
package test

import (
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jabolina/syncmesh/pkg/syncmesh"
	"github.com/jabolina/syncmesh/pkg/syncmesh/core"
	"github.com/jabolina/syncmesh/pkg/syncmesh/types"
)

// NodeCluster is a set of syncmesh.Cluster instances wired as a full mesh
// of known peers, all listening on loopback.
type NodeCluster struct {
	T        *testing.T
	Clusters []*syncmesh.Cluster
}

func freePort(t *testing.T) int {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed reserving a free port: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

// EchoChannel is the "demo" channel name used throughout the harness.
const EchoChannel = "demo"

// CreateCluster builds size nodes, each aware of every other node's
// address, registers the demo echo channel on every node, and starts every
// listener.
func CreateCluster(size int, policy types.DispatchPolicy, t *testing.T) *NodeCluster {
	addresses := make([]types.Address, size)
	for i := 0; i < size; i++ {
		addresses[i] = types.Address{IP: "127.0.0.1", Port: uint32(freePort(t))}
	}

	nc := &NodeCluster{T: t}
	for i := 0; i < size; i++ {
		received := make(chan *types.UserPublication, 16)
		builder := syncmesh.NewClusterBuilder(types.NodeId(i), addresses[i].String()).
			WithSelfAddress(addresses[i]).
			WithDefaultPolicy(policy).
			WithMetricsRegistry(prometheus.NewRegistry()).
			RegisterPublicationType(EchoChannel, func() types.Publication { return &types.UserPublication{} }).
			RegisterCallback(EchoChannel, echoCallback(received))
		for j := 0; j < size; j++ {
			if j == i {
				continue
			}
			builder = builder.WithPeer(types.NodeId(j), addresses[j])
		}
		cluster, err := builder.Get()
		if err != nil {
			t.Fatalf("failed building node %d: %v", i, err)
		}
		if err := cluster.Start(); err != nil {
			t.Fatalf("failed starting node %d: %v", i, err)
		}
		nc.Clusters = append(nc.Clusters, cluster)
	}
	// give every listener a moment to be dial-able before returning.
	time.Sleep(50 * time.Millisecond)
	return nc
}

// echoCallback acknowledges every incoming demo publication by writing it
// to received; it never emits a response content of its own.
func echoCallback(received chan<- *types.UserPublication) core.ChannelCallback {
	return func(_ *core.Session, publication types.Publication, _ *types.IdSet, _ chan<- types.Publication) {
		up, ok := publication.(*types.UserPublication)
		if !ok {
			return
		}
		select {
		case received <- up:
		default:
		}
	}
}

// Off stops every node in the cluster.
func (c *NodeCluster) Off() {
	for _, cluster := range c.Clusters {
		_ = cluster.Stop()
	}
}

// WaitThisOrTimeout runs fn in a goroutine and reports whether it finished
// before timeout, same shape as the teacher's helper.
func WaitThisOrTimeout(fn func(), timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// NewDemoPublication builds a publication on the demo echo channel.
func NewDemoPublication(key string, version int64, value string) *types.UserPublication {
	return types.NewUserPublication(EchoChannel, key, version, []byte(value))
}
