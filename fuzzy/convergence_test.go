package fuzzy

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/jabolina/syncmesh/pkg/syncmesh/types"
	"github.com/jabolina/syncmesh/test"
)

// Test_SequentialPublishes mirrors the teacher's Test_SequentialCommands:
// publish the alphabet one key at a time and verify every publish reports
// success, with no leaked goroutines once the cluster is torn down.
func Test_SequentialPublishes(t *testing.T) {
	cluster := test.CreateCluster(3, types.UnicastPlain, t)
	defer func() {
		if !test.WaitThisOrTimeout(cluster.Off, 10*time.Second) {
			t.Error("failed shutdown cluster")
		}
		goleak.VerifyNone(t)
	}()

	alphabet := "abcdefghijklmnopqrstuvwxyz"
	for i, letter := range alphabet {
		pub := test.NewDemoPublication("alphabet", int64(i+1), string(letter))
		results, err := cluster.Clusters[0].Publish([]types.Publication{pub}, types.UnicastPlain)
		if err != nil {
			t.Errorf("publish %q failed: %v", letter, err)
			continue
		}
		if !results[pub.Key()].Successful {
			t.Errorf("publish %q did not succeed: %+v", letter, results[pub.Key()])
		}
	}
}

// Test_ConcurrentPublishes mirrors the teacher's Test_ConcurrentCommands:
// fire every letter concurrently from the same node and require every
// publish to eventually report success.
func Test_ConcurrentPublishes(t *testing.T) {
	cluster := test.CreateCluster(3, types.UnicastPlain, t)
	defer func() {
		if !test.WaitThisOrTimeout(cluster.Off, 10*time.Second) {
			t.Error("failed shutdown cluster")
		}
		goleak.VerifyNone(t)
	}()

	alphabet := "abcdefghijklmnopqrstuvwxyz"
	group := sync.WaitGroup{}
	errs := make(chan error, len(alphabet))

	for i, letter := range alphabet {
		group.Add(1)
		go func(idx int, val string) {
			defer group.Done()
			pub := test.NewDemoPublication("concurrent", int64(idx+1), val)
			results, err := cluster.Clusters[0].Publish([]types.Publication{pub}, types.UnicastPlain)
			if err != nil {
				errs <- err
				return
			}
			if !results[pub.Key()].Successful {
				errs <- fmt.Errorf("publish %q did not succeed: %+v", val, results[pub.Key()])
			}
		}(i, string(letter))
	}

	if !test.WaitThisOrTimeout(group.Wait, 10*time.Second) {
		t.Fatalf("not every publish finished within the timeout")
	}
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("concurrent publish failed: %v", err)
		}
	}
}
