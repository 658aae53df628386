// Package integration exercises spec.md's six end-to-end scenarios against
// a real three-node pkg/cluster Raft group instead of the fake collaborator
// registrations pkg/activity's own scenario tests use, so the whole stack —
// leader election, membership polling, lease granting over a transport,
// quorum admission — is driven together at least once.
package integration

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/warden/pkg/activity"
	"github.com/cuemby/warden/pkg/cluster"
)

// clusterFixture wires three real Raft nodes, one activity.Coordinator per
// node, and a shared LocalTransport carrying Grant calls between their
// Agents — the same collaborator wiring cmd/wardenctl's node_run.go uses,
// minus the HTTP admin surface.
type clusterFixture struct {
	ids          []activity.NodeID
	nodes        map[activity.NodeID]*cluster.Node
	coordinators map[activity.NodeID]*activity.Coordinator
	agents       map[activity.NodeID]*cluster.Agent
	transport    *cluster.LocalTransport
}

func newClusterFixture(t *testing.T, basePort int) *clusterFixture {
	log := zerolog.Nop()
	ids := []activity.NodeID{"n1", "n2", "n3"}
	addrs := map[activity.NodeID]string{
		"n1": fmt.Sprintf("127.0.0.1:%d", basePort),
		"n2": fmt.Sprintf("127.0.0.1:%d", basePort+1),
		"n3": fmt.Sprintf("127.0.0.1:%d", basePort+2),
	}

	f := &clusterFixture{
		ids:          ids,
		nodes:        make(map[activity.NodeID]*cluster.Node),
		coordinators: make(map[activity.NodeID]*activity.Coordinator),
		agents:       make(map[activity.NodeID]*cluster.Agent),
		transport:    cluster.NewLocalTransport(),
	}

	for _, id := range ids {
		node, err := cluster.NewNode(cluster.Config{ID: string(id), BindAddr: addrs[id], DataDir: t.TempDir()})
		require.NoError(t, err)
		f.nodes[id] = node
	}

	require.NoError(t, f.nodes["n1"].Bootstrap())

	// The join handler's AddVoter only succeeds on the leader, so wait for
	// n1 to win its own election before the others join.
	require.Eventually(t, func() bool {
		return f.nodes["n1"].IsLeader()
	}, 10*time.Second, 50*time.Millisecond, "n1 never became leader of its own bootstrapped cluster")

	joinSrv := httptest.NewServer(f.nodes["n1"].JoinHandler())
	t.Cleanup(joinSrv.Close)
	require.NoError(t, f.nodes["n2"].Join(joinSrv.URL))
	require.NoError(t, f.nodes["n3"].Join(joinSrv.URL))

	require.Eventually(t, func() bool {
		servers, err := f.nodes["n1"].GetClusterServers()
		return err == nil && len(servers) == 3
	}, 10*time.Second, 50*time.Millisecond, "all three nodes never joined the Raft configuration")

	ctx, cancel := context.WithCancel(context.Background())

	for _, id := range ids {
		coord := activity.New(activity.Config{SelfNode: id, Logger: log})
		f.coordinators[id] = coord

		agent := cluster.NewAgent(id, coord, log)
		require.NoError(t, agent.Start())
		f.agents[id] = agent
		f.transport.Register(id, agent)

		node := f.nodes[id]
		acquirer := cluster.NewAcquirer(cluster.AcquirerConfig{
			Node:          id,
			Coordinator:   coord,
			Transport:     f.transport,
			TTLSeconds:    5,
			GrantInterval: 20 * time.Millisecond,
			Logger:        log,
		})
		go acquirer.Run(ctx, node.LeaderCh(), func() []activity.NodeID { return node.CurrentMembers() })
		go cluster.NewMembershipWatcher(node, coord, 20*time.Millisecond, log).Run(ctx)
	}

	t.Cleanup(func() {
		cancel()
		for _, id := range ids {
			f.agents[id].Stop()
			f.coordinators[id].Close()
			_ = f.nodes[id].Shutdown()
		}
	})

	return f
}

// leader returns the node ID and Coordinator of whichever node currently
// holds Raft leadership. Nothing in these scenarios forces a leadership
// change, so it is always n1, but it's found dynamically rather than
// assumed.
func (f *clusterFixture) leader(t *testing.T) (activity.NodeID, *activity.Coordinator) {
	for _, id := range f.ids {
		if f.nodes[id].IsLeader() {
			return id, f.coordinators[id]
		}
	}
	t.Fatal("no node in the fixture is currently Raft leader")
	return "", nil
}

func TestClusterScenarios(t *testing.T) {
	t.Run("1_HappyPath", func(t *testing.T) {
		f := newClusterFixture(t, 18101)
		_, leaderCoord := f.leader(t)

		var result int
		require.Eventually(t, func() bool {
			err := leaderCoord.RunActivity(context.Background(), "x", "x", activity.Leader(), activity.Majority(),
				activity.Options{QuorumTimeout: 200 * time.Millisecond, Timeout: 400 * time.Millisecond},
				func(ctx context.Context) error { result = 42; return nil })
			return err == nil
		}, 5*time.Second, 50*time.Millisecond, "majority quorum was never satisfied across the real cluster")
		assert.Equal(t, 42, result)
	})

	t.Run("2_QuorumTimeout", func(t *testing.T) {
		f := newClusterFixture(t, 18111)
		leaderID, leaderCoord := f.leader(t)

		// Cut off every peer but the leader itself: majority over three
		// quorum-nodes requires two held leases, and only the self-granted
		// one is ever reachable now.
		for _, id := range f.ids {
			if id != leaderID {
				f.transport.Unregister(id)
			}
		}

		require.Eventually(t, func() bool {
			start := time.Now()
			err := leaderCoord.RunActivity(context.Background(), "x", "x", activity.Leader(), activity.Majority(),
				activity.Options{QuorumTimeout: 50 * time.Millisecond, Timeout: 200 * time.Millisecond},
				func(ctx context.Context) error { return nil })
			var noQuorum *activity.NoQuorumError
			return errors.As(err, &noQuorum) && time.Since(start) < time.Second
		}, 5*time.Second, 50*time.Millisecond, "majority never stopped being satisfiable once peers were cut off")
	})

	t.Run("3_UnsafeTimeout", func(t *testing.T) {
		f := newClusterFixture(t, 18121)
		leaderID, leaderCoord := f.leader(t)

		for _, id := range f.ids {
			if id != leaderID {
				f.transport.Unregister(id)
			}
		}

		var ran bool
		require.Eventually(t, func() bool {
			err := leaderCoord.RunActivity(context.Background(), "x", "x", activity.Leader(), activity.Majority(),
				activity.Options{Unsafe: true, QuorumTimeout: 50 * time.Millisecond, Timeout: 500 * time.Millisecond},
				func(ctx context.Context) error { ran = true; return nil })
			return err == nil
		}, 5*time.Second, 50*time.Millisecond, "unsafe admission never succeeded on the local lease alone")
		assert.True(t, ran)
	})

	t.Run("4_QuorumLossMidActivity", func(t *testing.T) {
		f := newClusterFixture(t, 18131)
		leaderID, leaderCoord := f.leader(t)
		var lostPeer activity.NodeID
		for _, id := range f.ids {
			if id != leaderID {
				lostPeer = id
				break
			}
		}

		errCh := make(chan error, 1)
		admitted := make(chan struct{})
		go func() {
			err := leaderCoord.RunActivity(context.Background(), "x", "x", activity.Leader(), activity.Majority(),
				activity.Options{QuorumTimeout: 3 * time.Second, Timeout: 10 * time.Second},
				func(ctx context.Context) error {
					close(admitted)
					<-ctx.Done()
					return nil
				})
			errCh <- err
		}()

		select {
		case <-admitted:
		case <-time.After(5 * time.Second):
			t.Fatal("activity never admitted under full majority")
		}

		f.transport.Unregister(lostPeer)

		var failed *activity.ActivityFailedError
		select {
		case err := <-errCh:
			require.ErrorAs(t, err, &failed)
		case <-time.After(5 * time.Second):
			t.Fatal("activity never terminated after losing a peer's lease")
		}
		assert.Equal(t, activity.ReasonQuorumLost, failed.Reason.Kind)
		assert.Equal(t, lostPeer, failed.Reason.Node)
	})

	t.Run("5_DomainConflict", func(t *testing.T) {
		f := newClusterFixture(t, 18141)
		_, leaderCoord := f.leader(t)

		blockCh := make(chan struct{})
		tok1 := activity.ActivityToken{Lease: activity.Leader(), Domain: "rebalance", DomainToken: "tok-r1", Name: []string{"r1"}}
		worker1, err := leaderCoord.StartActivity(context.Background(), tok1, activity.Follower(), activity.Options{}, func(ctx context.Context) error {
			<-blockCh
			return nil
		})
		require.NoError(t, err)

		tok2 := activity.ActivityToken{Lease: activity.Leader(), Domain: "rebalance", DomainToken: "tok-r2", Name: []string{"r2"}}
		_, err = leaderCoord.StartActivity(context.Background(), tok2, activity.Follower(), activity.Options{}, func(ctx context.Context) error {
			return nil
		})
		var conflict *activity.DomainConflictError
		require.ErrorAs(t, err, &conflict)

		close(blockCh)
		select {
		case <-worker1.Done():
		case <-time.After(2 * time.Second):
			t.Fatal("worker1 never finished")
		}
	})

	t.Run("6_AgentDeath", func(t *testing.T) {
		f := newClusterFixture(t, 18151)
		leaderID, leaderCoord := f.leader(t)

		errCh := make(chan error, 1)
		admitted := make(chan struct{})
		go func() {
			err := leaderCoord.RunActivity(context.Background(), "a", "a", activity.Leader(), activity.Follower(),
				activity.Options{QuorumTimeout: 3 * time.Second, Timeout: 10 * time.Second},
				func(ctx context.Context) error {
					close(admitted)
					<-ctx.Done()
					return nil
				})
			errCh <- err
		}()

		select {
		case <-admitted:
		case <-time.After(5 * time.Second):
			t.Fatal("activity never admitted under a local lease")
		}

		f.agents[leaderID].Stop()

		var failed *activity.ActivityFailedError
		select {
		case err := <-errCh:
			require.ErrorAs(t, err, &failed)
		case <-time.After(2 * time.Second):
			t.Fatal("activity never terminated after its node's agent died")
		}
		assert.Equal(t, activity.ReasonLocalLeaseExpired, failed.Reason.Kind)
	})
}
