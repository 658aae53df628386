package activity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func leaseSnapshot(self NodeID, hasLocal bool, localFrom NodeID, acquirer bool, remote []NodeID, quorumNodes []NodeID) snapshot {
	leases := make(map[NodeID]struct{})
	for _, n := range remote {
		leases[n] = struct{}{}
	}
	var lh LeaseHolder
	if hasLocal {
		lh = LeaseHolder{Node: localFrom, Epoch: EpochToken("e1")}
	}
	return snapshot{
		selfNode:           self,
		hasLocalLease:      hasLocal,
		localLease:         lh,
		acquirerRegistered: acquirer,
		remoteLeases:       leases,
		quorumNodes:        quorumNodes,
	}
}

func TestHaveLease(t *testing.T) {
	tests := []struct {
		name string
		req  LeaseRequirement
		s    snapshot
		want bool
	}{
		{
			name: "leader sentinel satisfied when local lease self-held and acquirer registered",
			req:  Leader(),
			s:    leaseSnapshot("n1", true, "n1", true, nil, nil),
			want: true,
		},
		{
			name: "leader sentinel fails without acquirer",
			req:  Leader(),
			s:    leaseSnapshot("n1", true, "n1", false, nil, nil),
			want: false,
		},
		{
			name: "leader sentinel fails when local lease held by a different node's perspective",
			req:  Leader(),
			s:    leaseSnapshot("n1", true, "n2", true, nil, nil),
			want: false,
		},
		{
			name: "exact lease matches holder",
			req:  ExactLease(LeaseHolder{Node: "n1", Epoch: EpochToken("e1")}),
			s:    leaseSnapshot("n1", true, "n1", false, nil, nil),
			want: true,
		},
		{
			name: "exact lease fails on epoch mismatch",
			req:  ExactLease(LeaseHolder{Node: "n1", Epoch: EpochToken("stale")}),
			s:    leaseSnapshot("n1", true, "n1", false, nil, nil),
			want: false,
		},
		{
			name: "no local lease never satisfies any requirement",
			req:  Leader(),
			s:    leaseSnapshot("n1", false, "", true, nil, nil),
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, haveLease(tt.req, tt.s))
		})
	}
}

func TestHaveQuorum(t *testing.T) {
	tests := []struct {
		name string
		q    Quorum
		s    snapshot
		want bool
	}{
		{
			name: "follower never requires remote leases",
			q:    Follower(),
			s:    leaseSnapshot("n1", false, "", false, nil, []NodeID{"n1", "n2", "n3"}),
			want: true,
		},
		{
			name: "all satisfied when every quorum node holds a remote lease",
			q:    All(),
			s:    leaseSnapshot("n1", true, "n1", true, []NodeID{"n1", "n2", "n3"}, []NodeID{"n1", "n2", "n3"}),
			want: true,
		},
		{
			name: "all fails if one quorum node missing",
			q:    All(),
			s:    leaseSnapshot("n1", true, "n1", true, []NodeID{"n1", "n2"}, []NodeID{"n1", "n2", "n3"}),
			want: false,
		},
		{
			name: "majority over 3 nodes satisfied by 2",
			q:    Majority(),
			s:    leaseSnapshot("n1", true, "n1", true, []NodeID{"n1", "n2"}, []NodeID{"n1", "n2", "n3"}),
			want: true,
		},
		{
			name: "majority over 3 nodes fails on exactly 1 (not strictly more than half)",
			q:    Majority(),
			s:    leaseSnapshot("n1", true, "n1", true, []NodeID{"n1"}, []NodeID{"n1", "n2", "n3"}),
			want: false,
		},
		{
			name: "majority over 2 nodes requires both, not just 1",
			q:    Majority(),
			s:    leaseSnapshot("n1", true, "n1", true, []NodeID{"n1"}, []NodeID{"n1", "n2"}),
			want: false,
		},
		{
			name: "majority over 1 node is satisfied by that single lease",
			q:    Majority(),
			s:    leaseSnapshot("n1", true, "n1", true, []NodeID{"n1"}, []NodeID{"n1"}),
			want: true,
		},
		{
			name: "majority over an empty node set can never be satisfied",
			q:    Majority(),
			s:    leaseSnapshot("n1", true, "n1", true, nil, nil),
			want: false,
		},
		{
			name: "explicit node set ignores current quorum-node set",
			q:    MajorityOf("n4", "n5"),
			s:    leaseSnapshot("n1", true, "n1", true, []NodeID{"n4", "n5"}, []NodeID{"n1", "n2", "n3"}),
			want: true,
		},
		{
			name: "list is a conjunction of sub-expressions",
			q:    And(Follower(), MajorityOf("n4", "n5")),
			s:    leaseSnapshot("n1", true, "n1", true, []NodeID{"n4", "n5"}, nil),
			want: true,
		},
		{
			name: "list fails if any sub-expression fails",
			q:    And(Follower(), MajorityOf("n4", "n5")),
			s:    leaseSnapshot("n1", true, "n1", true, nil, nil),
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, haveQuorum(tt.q, tt.s))
		})
	}
}

func TestQuorumRequiresLeader(t *testing.T) {
	assert.False(t, quorumRequiresLeader(Follower()))
	assert.True(t, quorumRequiresLeader(All()))
	assert.True(t, quorumRequiresLeader(Majority()))
	assert.False(t, quorumRequiresLeader(And(Follower(), Follower())))
	assert.True(t, quorumRequiresLeader(And(Follower(), Majority())))
}

func TestRequiresLeaderOk(t *testing.T) {
	leaderSnap := leaseSnapshot("n1", true, "n1", true, nil, nil)
	nonLeaderSnap := leaseSnapshot("n1", true, "n2", false, nil, nil)

	assert.True(t, requiresLeaderOk(Follower(), nonLeaderSnap), "follower never requires leadership")
	assert.True(t, requiresLeaderOk(Majority(), leaderSnap))
	assert.False(t, requiresLeaderOk(Majority(), nonLeaderSnap))
}

func TestAdmittedAndAdmitUnsafe(t *testing.T) {
	// Leader, acquirer registered, quorum not yet reached.
	s := leaseSnapshot("n1", true, "n1", true, []NodeID{"n1"}, []NodeID{"n1", "n2", "n3"})

	assert.False(t, admitted(Leader(), Majority(), s), "only 1 of 3 remote leases held")
	assert.True(t, admitUnsafe(Leader(), Majority(), s), "unsafe ignores have_quorum entirely")

	notLeader := leaseSnapshot("n1", true, "n2", false, nil, []NodeID{"n1", "n2", "n3"})
	assert.False(t, admitUnsafe(Leader(), Majority(), notLeader), "unsafe still needs have_lease and requires-leader-ok")
}
