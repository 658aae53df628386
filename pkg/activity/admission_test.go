package activity

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitForQuorumImmediateAdmission(t *testing.T) {
	c, _ := newTestCoordinator(t, "n1")
	require.NoError(t, c.RegisterAgent("agent-1", make(chan struct{})))
	require.NoError(t, c.RegisterAcquirer("acq-1", make(chan struct{})))
	require.NoError(t, c.LocalLeaseGranted("agent-1", LeaseHolder{Node: "n1", Epoch: EpochToken("e1")}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := c.waitForQuorum(ctx, Leader(), Follower(), Options{})
	assert.NoError(t, err)
}

func TestWaitForQuorumDeferredUntilLeaseAcquired(t *testing.T) {
	c, _ := newTestCoordinator(t, "n1")
	require.NoError(t, c.RegisterAgent("agent-1", make(chan struct{})))
	require.NoError(t, c.RegisterAcquirer("acq-1", make(chan struct{})))
	require.NoError(t, c.UpdateMembership([]NodeID{"n1", "n2", "n3"}))
	require.NoError(t, c.LocalLeaseGranted("agent-1", LeaseHolder{Node: "n1", Epoch: EpochToken("e1")}))
	require.NoError(t, c.LeaseAcquired("acq-1", "n1"))

	resultCh := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		resultCh <- c.waitForQuorum(ctx, Leader(), Majority(), Options{QuorumTimeout: 3 * time.Second, Timeout: 4 * time.Second})
	}()

	// Not admitted yet: only 1 of 3 leases. Give the goroutine a moment to
	// register as deferred, then complete the majority.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, c.LeaseAcquired("acq-1", "n2"))

	select {
	case err := <-resultCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("deferred admission never resolved")
	}
}

func TestWaitForQuorumQuorumTimeoutReturnsNoQuorumError(t *testing.T) {
	c, _ := newTestCoordinator(t, "n1")
	require.NoError(t, c.RegisterAgent("agent-1", make(chan struct{})))
	require.NoError(t, c.RegisterAcquirer("acq-1", make(chan struct{})))
	require.NoError(t, c.UpdateMembership([]NodeID{"n1", "n2", "n3"}))
	require.NoError(t, c.LocalLeaseGranted("agent-1", LeaseHolder{Node: "n1", Epoch: EpochToken("e1")}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	start := time.Now()
	err := c.waitForQuorum(ctx, Leader(), Majority(), Options{QuorumTimeout: 50 * time.Millisecond, Timeout: 5 * time.Second})
	elapsed := time.Since(start)
	var noQuorum *NoQuorumError
	require.ErrorAs(t, err, &noQuorum)
	assert.Less(t, elapsed, 500*time.Millisecond, "no-quorum must fail at quorumTimeout, not wait out the much longer Timeout backstop")
}

func TestWaitForQuorumUnsafeFailsOnQuorumTimeoutWhenDegradedPredicateAlsoFails(t *testing.T) {
	c, _ := newTestCoordinator(t, "n1")
	require.NoError(t, c.RegisterAgent("agent-1", make(chan struct{})))
	require.NoError(t, c.RegisterAcquirer("acq-1", make(chan struct{})))
	require.NoError(t, c.UpdateMembership([]NodeID{"n1", "n2", "n3"}))
	// No local lease granted: even the degraded unsafe predicate (have_lease
	// still required) can never hold, so this must fail at quorumTimeout
	// exactly like a non-unsafe caller, not wait for the Timeout backstop.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	start := time.Now()
	err := c.waitForQuorum(ctx, Leader(), Majority(), Options{Unsafe: true, QuorumTimeout: 50 * time.Millisecond, Timeout: 5 * time.Second})
	elapsed := time.Since(start)
	var noQuorum *NoQuorumError
	require.ErrorAs(t, err, &noQuorum)
	assert.Less(t, elapsed, 500*time.Millisecond, "unsafe admission that still fails its degraded predicate must fail at quorumTimeout too")
}

func TestWaitForQuorumUnsafeAdmitsOnQuorumTimeout(t *testing.T) {
	c, _ := newTestCoordinator(t, "n1")
	require.NoError(t, c.RegisterAgent("agent-1", make(chan struct{})))
	require.NoError(t, c.RegisterAcquirer("acq-1", make(chan struct{})))
	require.NoError(t, c.UpdateMembership([]NodeID{"n1", "n2", "n3"}))
	require.NoError(t, c.LocalLeaseGranted("agent-1", LeaseHolder{Node: "n1", Epoch: EpochToken("e1")}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := c.waitForQuorum(ctx, Leader(), Majority(), Options{Unsafe: true, QuorumTimeout: 50 * time.Millisecond, Timeout: 1 * time.Second})
	assert.NoError(t, err, "unsafe admission should succeed once have_lease and requires-leader-ok hold, regardless of have_quorum")
}

func TestWaitForQuorumBypassAdmitsImmediately(t *testing.T) {
	sink := &recordingSink{}
	c := New(Config{
		SelfNode: "n1",
		Events:   sink,
		Bypass:   StaticBypass(true),
		Logger:   zerolog.Nop(),
	})
	t.Cleanup(c.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	// No lease, no quorum nodes, no acquirer: bypass mode admits anyway.
	err := c.waitForQuorum(ctx, Leader(), Majority(), Options{})
	assert.NoError(t, err)
}

func TestWaitForQuorumContextCancellation(t *testing.T) {
	c, _ := newTestCoordinator(t, "n1")

	ctx, cancel := context.WithCancel(context.Background())
	resultCh := make(chan error, 1)
	go func() {
		resultCh <- c.waitForQuorum(ctx, Leader(), Majority(), Options{QuorumTimeout: 5 * time.Second, Timeout: 10 * time.Second})
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-resultCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("wait_for_quorum did not observe context cancellation")
	}
}
