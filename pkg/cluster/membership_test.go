package cluster

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/warden/pkg/activity"
)

func newBootstrappedTestNode(t *testing.T, id string) *Node {
	node, err := NewNode(Config{ID: id, BindAddr: "127.0.0.1:0", DataDir: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, node.Bootstrap())
	t.Cleanup(func() { _ = node.Shutdown() })
	return node
}

func TestMembershipWatcherPushesInitialMembers(t *testing.T) {
	node := newBootstrappedTestNode(t, "n1")
	c := activity.New(activity.Config{SelfNode: "n1", Logger: zerolog.Nop()})
	t.Cleanup(c.Close)

	watcher := NewMembershipWatcher(node, c, 20*time.Millisecond, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go watcher.Run(ctx)

	require.Eventually(t, func() bool {
		members := c.QuorumNodes()
		return len(members) == 1 && members[0] == "n1"
	}, 2*time.Second, 20*time.Millisecond)
}

func TestMembershipWatcherSkipsPushWhenUnchanged(t *testing.T) {
	node := newBootstrappedTestNode(t, "n1")
	c := activity.New(activity.Config{SelfNode: "n1", Logger: zerolog.Nop()})
	t.Cleanup(c.Close)

	watcher := NewMembershipWatcher(node, c, 10*time.Millisecond, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go watcher.Run(ctx)

	require.Eventually(t, func() bool {
		return len(c.QuorumNodes()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Force a fresh membership write the watcher's own poll could
	// overwrite if it ever re-pushed an identical set.
	require.NoError(t, c.UpdateMembership([]activity.NodeID{"n1", "placeholder"}))
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, []activity.NodeID{"n1", "placeholder"}, c.QuorumNodes())
}
