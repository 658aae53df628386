package cluster

import (
	"context"
	"fmt"
	"sync"

	"github.com/cuemby/warden/pkg/activity"
)

// Transport carries an Acquirer's Grant calls to a remote peer's Agent.
// Only an in-process implementation ships here — per the coordinator's
// "no wire protocol" scope, a real deployment plugs in gRPC, HTTP, or
// raft's own RPC layer without any change to Acquirer or Agent.
type Transport interface {
	Grant(ctx context.Context, peer activity.NodeID, holder activity.LeaseHolder, ttl int64) error
	Renew(ctx context.Context, peer activity.NodeID, holder activity.LeaseHolder, ttl int64) error
}

// LocalTransport routes Grant calls directly to in-process Agents,
// keyed by node ID. Used for single-binary demos and tests where every
// peer's Agent lives in the same process.
type LocalTransport struct {
	mu     sync.RWMutex
	agents map[activity.NodeID]*Agent
}

// NewLocalTransport creates an empty LocalTransport.
func NewLocalTransport() *LocalTransport {
	return &LocalTransport{agents: make(map[activity.NodeID]*Agent)}
}

// Register makes agent reachable as node under this transport.
func (t *LocalTransport) Register(node activity.NodeID, agent *Agent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.agents[node] = agent
}

// Unregister removes node from this transport.
func (t *LocalTransport) Unregister(node activity.NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.agents, node)
}

// Grant implements Transport by calling the target node's Agent directly.
func (t *LocalTransport) Grant(ctx context.Context, peer activity.NodeID, holder activity.LeaseHolder, ttlSeconds int64) error {
	t.mu.RLock()
	agent, ok := t.agents[peer]
	t.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no local agent registered for peer %s", peer)
	}
	return agent.Grant(ctx, holder, ttlSeconds)
}

// Renew implements Transport by calling the target node's Agent directly.
func (t *LocalTransport) Renew(ctx context.Context, peer activity.NodeID, holder activity.LeaseHolder, ttlSeconds int64) error {
	t.mu.RLock()
	agent, ok := t.agents[peer]
	t.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no local agent registered for peer %s", peer)
	}
	return agent.Renew(holder, ttlSeconds)
}
