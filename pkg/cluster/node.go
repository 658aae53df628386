package cluster

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"

	"github.com/cuemby/warden/pkg/activity"
)

// Node wraps a Raft instance used purely for leader election and
// membership agreement among the nodes running an activity.Coordinator.
type Node struct {
	id       string
	bindAddr string
	dataDir  string

	raft *raft.Raft
	fsm  *inertFSM
}

// Config holds configuration for creating a Node.
type Config struct {
	ID       string
	BindAddr string
	DataDir  string
}

// NewNode creates a Node. Call Bootstrap or Join to actually start Raft.
func NewNode(cfg Config) (*Node, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %v", err)
	}
	return &Node{
		id:       cfg.ID,
		bindAddr: cfg.BindAddr,
		dataDir:  cfg.DataDir,
		fsm:      newInertFSM(),
	}, nil
}

// raftConfig returns the tuned raft.Config shared by Bootstrap and Join.
// Timeouts are reduced from hashicorp/raft's WAN-oriented defaults for
// sub-10s failover on a LAN-local cluster: heartbeats every ~250ms,
// elections completing in ~500ms-1s.
func (n *Node) raftConfig() *raft.Config {
	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(n.id)
	config.HeartbeatTimeout = 500 * time.Millisecond
	config.ElectionTimeout = 500 * time.Millisecond
	config.CommitTimeout = 50 * time.Millisecond
	config.LeaderLeaseTimeout = 250 * time.Millisecond
	return config
}

func (n *Node) newRaft(config *raft.Config) (*raft.Raft, raft.ServerAddress, error) {
	addr, err := net.ResolveTCPAddr("tcp", n.bindAddr)
	if err != nil {
		return nil, "", fmt.Errorf("failed to resolve bind address: %v", err)
	}
	transport, err := raft.NewTCPTransport(n.bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create transport: %v", err)
	}
	snapshotStore, err := raft.NewFileSnapshotStore(n.dataDir, 2, os.Stderr)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create snapshot store: %v", err)
	}
	logStore, err := raftboltdb.NewBoltStore(filepath.Join(n.dataDir, "raft-log.db"))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create log store: %v", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(n.dataDir, "raft-stable.db"))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create stable store: %v", err)
	}
	r, err := raft.NewRaft(config, n.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create raft: %v", err)
	}
	return r, transport.LocalAddr(), nil
}

// Bootstrap initializes a new single-node Raft cluster.
func (n *Node) Bootstrap() error {
	config := n.raftConfig()
	r, localAddr, err := n.newRaft(config)
	if err != nil {
		return err
	}
	n.raft = r

	configuration := raft.Configuration{
		Servers: []raft.Server{{ID: config.LocalID, Address: localAddr}},
	}
	future := n.raft.BootstrapCluster(configuration)
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to bootstrap cluster: %v", err)
	}
	return nil
}

// Join starts this node's Raft instance without bootstrapping a
// configuration and registers it with an existing leader over the
// cluster's plain HTTP join endpoint (see JoinHandler). This package
// carries no wire protocol of its own for cluster state, consistent with
// pkg/activity's lease protocol: membership changes are a local HTTP call
// away, not a custom binary RPC.
func (n *Node) Join(leaderJoinAddr string) error {
	config := n.raftConfig()
	r, _, err := n.newRaft(config)
	if err != nil {
		return err
	}
	n.raft = r

	if err := postJoinRequest(leaderJoinAddr, n.id, n.bindAddr); err != nil {
		return fmt.Errorf("failed to join cluster via %s: %v", leaderJoinAddr, err)
	}
	return nil
}

// AddVoter adds a new node to the Raft cluster. Only the leader can do
// this.
func (n *Node) AddVoter(id, address string) error {
	if n.raft == nil {
		return fmt.Errorf("raft not initialized")
	}
	if !n.IsLeader() {
		return fmt.Errorf("not the leader, current leader: %s", n.LeaderAddr())
	}
	future := n.raft.AddVoter(raft.ServerID(id), raft.ServerAddress(address), 0, 10*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to add voter: %v", err)
	}
	return nil
}

// RemoveServer removes a node from the Raft cluster. Only the leader can
// do this.
func (n *Node) RemoveServer(id string) error {
	if n.raft == nil {
		return fmt.Errorf("raft not initialized")
	}
	if !n.IsLeader() {
		return fmt.Errorf("not the leader")
	}
	future := n.raft.RemoveServer(raft.ServerID(id), 0, 10*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to remove server: %v", err)
	}
	return nil
}

// GetClusterServers returns the current Raft configuration's server list.
func (n *Node) GetClusterServers() ([]raft.Server, error) {
	if n.raft == nil {
		return nil, fmt.Errorf("raft not initialized")
	}
	future := n.raft.GetConfiguration()
	if err := future.Error(); err != nil {
		return nil, fmt.Errorf("failed to get configuration: %v", err)
	}
	return future.Configuration().Servers, nil
}

// CurrentMembers returns the current voter set as activity.NodeID values,
// satisfying activity.MembershipSource.
func (n *Node) CurrentMembers() []activity.NodeID {
	servers, err := n.GetClusterServers()
	if err != nil {
		return nil
	}
	out := make([]activity.NodeID, 0, len(servers))
	for _, s := range servers {
		out = append(out, activity.NodeID(s.ID))
	}
	return out
}

// IsLeader returns true if this node is the current Raft leader.
func (n *Node) IsLeader() bool {
	if n.raft == nil {
		return false
	}
	return n.raft.State() == raft.Leader
}

// LeaderAddr returns the bind address of the current Raft leader.
func (n *Node) LeaderAddr() string {
	if n.raft == nil {
		return ""
	}
	return string(n.raft.Leader())
}

// LeaderCh returns the channel raft uses to signal leadership
// transitions: true when this node becomes leader, false when it steps
// down. Acquirer uses this to start and stop per-peer grant loops.
func (n *Node) LeaderCh() <-chan bool {
	if n.raft == nil {
		ch := make(chan bool)
		close(ch)
		return ch
	}
	return n.raft.LeaderCh()
}

// GetRaftStats returns a snapshot of Raft statistics for metrics
// collection and the /health endpoint.
func (n *Node) GetRaftStats() map[string]interface{} {
	if n.raft == nil {
		return nil
	}
	return map[string]interface{}{
		"state":          n.raft.State().String(),
		"last_log_index": n.raft.LastIndex(),
		"applied_index":  n.raft.AppliedIndex(),
		"leader":         string(n.raft.Leader()),
	}
}

// Shutdown gracefully stops the Raft instance.
func (n *Node) Shutdown() error {
	if n.raft == nil {
		return nil
	}
	future := n.raft.Shutdown()
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to shutdown raft: %v", err)
	}
	return nil
}
