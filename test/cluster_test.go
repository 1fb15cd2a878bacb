package test

import (
	"testing"
	"time"

	"github.com/jabolina/syncmesh/pkg/syncmesh/types"
)

func TestCluster_BootstrapSingleNode(t *testing.T) {
	cluster := CreateCluster(1, types.UnicastPlain, t)
	defer cluster.Off()

	if cluster.Clusters[0].LocalMember().Id != 0 {
		t.Fatalf("expected local member id 0, got %d", cluster.Clusters[0].LocalMember().Id)
	}
}

func TestCluster_BootstrapMultiNode(t *testing.T) {
	cluster := CreateCluster(3, types.UnicastPlain, t)
	defer cluster.Off()

	if len(cluster.Clusters) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(cluster.Clusters))
	}
}

// S1: publishing under UNICAST to an alive peer eventually synchronizes.
func TestCluster_UnicastPublishReachesPeer(t *testing.T) {
	cluster := CreateCluster(2, types.UnicastPlain, t)
	defer cluster.Off()

	pub := NewDemoPublication("greeting", 1, "hello")
	results, err := cluster.Clusters[0].Publish([]types.Publication{pub}, types.UnicastPlain)
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	res, ok := results[pub.Key()]
	if !ok || !res.Successful {
		t.Fatalf("expected successful sync result, got %+v", res)
	}
}

// S2: QUORUM policy succeeds once a strict majority of targets acknowledge.
func TestCluster_QuorumPublishSucceedsWithMajority(t *testing.T) {
	cluster := CreateCluster(3, types.UnicastQuorum, t)
	defer cluster.Off()

	pub := NewDemoPublication("quorum-key", 1, "value")
	results, err := cluster.Clusters[0].Publish([]types.Publication{pub}, types.UnicastQuorum)
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if !results[pub.Key()].Successful {
		t.Fatalf("expected quorum success, got %+v", results[pub.Key()])
	}
}

// S3: a RING publish propagates past the first hop via ProtocolEngine's
// forwardRing step.
func TestCluster_RingPublishPropagatesAcrossHops(t *testing.T) {
	cluster := CreateCluster(3, types.RingPlain, t)
	defer cluster.Off()

	pub := NewDemoPublication("ring-key", 1, "value")
	results, err := cluster.Clusters[0].Publish([]types.Publication{pub}, types.RingPlain)
	if err != nil {
		t.Fatalf("ring publish failed: %v", err)
	}
	if !results[pub.Key()].Successful {
		t.Fatalf("expected ring publish success, got %+v", results[pub.Key()])
	}
}

// S4: a second publish of the same key/version to an already-aware target
// still reports success.
func TestCluster_RepublishSameVersionIsIdempotent(t *testing.T) {
	cluster := CreateCluster(2, types.UnicastPlain, t)
	defer cluster.Off()

	pub := NewDemoPublication("idempotent-key", 1, "value")
	if _, err := cluster.Clusters[0].Publish([]types.Publication{pub}, types.UnicastPlain); err != nil {
		t.Fatalf("first publish failed: %v", err)
	}
	results, err := cluster.Clusters[0].Publish([]types.Publication{pub}, types.UnicastPlain)
	if err != nil {
		t.Fatalf("second publish failed: %v", err)
	}
	if !results[pub.Key()].Successful {
		t.Fatalf("expected repeated publish to still report success, got %+v", results[pub.Key()])
	}
}

func TestCluster_MembershipViewConverges(t *testing.T) {
	cluster := CreateCluster(3, types.UnicastPlain, t)
	defer cluster.Off()

	time.Sleep(200 * time.Millisecond)
	for i, c := range cluster.Clusters {
		if c.Snapshot().AliveIds().Size() == 0 {
			t.Fatalf("node %d has no alive members in its snapshot", i)
		}
	}
}
