package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/warden/pkg/activity"
	"github.com/cuemby/warden/pkg/cluster"
)

// demoNode is a single-process, single-node cluster used by the activity
// subcommands to give their demo bodies something real to run against
// without requiring an operator to stand up a full multi-node cluster
// first. It bootstraps its own Raft group, grants itself a lease, and
// tears everything down on Close.
type demoNode struct {
	node     *cluster.Node
	coord    *activity.Coordinator
	agent    *cluster.Agent
	acquirer *cluster.Acquirer
	cancel   context.CancelFunc
}

// startDemoNode boots a bootstrap-only single-node cluster rooted at
// dataDir and blocks until this node has both become Raft leader and
// granted itself a local lease, so a RunActivity call issued immediately
// afterward under Leader()/Follower() admits without waiting.
func startDemoNode(dataDir, id string, logger zerolog.Logger) (*demoNode, error) {
	node, err := cluster.NewNode(cluster.Config{ID: id, BindAddr: "127.0.0.1:0", DataDir: dataDir})
	if err != nil {
		return nil, fmt.Errorf("failed to create demo node: %v", err)
	}
	if err := node.Bootstrap(); err != nil {
		return nil, fmt.Errorf("failed to bootstrap demo node: %v", err)
	}

	coord := activity.New(activity.Config{
		SelfNode: activity.NodeID(id),
		Logger:   logger,
	})

	transport := cluster.NewLocalTransport()
	agent := cluster.NewAgent(activity.NodeID(id), coord, logger)
	if err := agent.Start(); err != nil {
		coord.Close()
		return nil, fmt.Errorf("failed to start demo lease agent: %v", err)
	}
	transport.Register(activity.NodeID(id), agent)

	acquirer := cluster.NewAcquirer(cluster.AcquirerConfig{
		Node:          activity.NodeID(id),
		Coordinator:   coord,
		Transport:     transport,
		GrantInterval: 200 * time.Millisecond,
		Logger:        logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go acquirer.Run(ctx, node.LeaderCh(), func() []activity.NodeID { return node.CurrentMembers() })
	go cluster.NewMembershipWatcher(node, coord, 200*time.Millisecond, logger).Run(ctx)

	d := &demoNode{node: node, coord: coord, agent: agent, acquirer: acquirer, cancel: cancel}

	if err := d.waitUntilLeaseHeld(10 * time.Second); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// waitUntilLeaseHeld retries a RunActivity probe under Leader() and
// Follower() until it succeeds, meaning leadership was won and the
// self-grant went through.
func (d *demoNode) waitUntilLeaseHeld(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		err := d.coord.RunActivity(context.Background(), "warden.demo.readiness", "probe",
			activity.Leader(), activity.Follower(),
			activity.Options{QuorumTimeout: 200 * time.Millisecond, Timeout: 400 * time.Millisecond, Quiet: true},
			func(ctx context.Context) error { return nil })
		if err == nil {
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return fmt.Errorf("timed out waiting for demo node to grant itself a leader lease")
}

// Close tears down the demo cluster and coordinator.
func (d *demoNode) Close() {
	d.cancel()
	d.coord.Close()
	_ = d.node.Shutdown()
}
