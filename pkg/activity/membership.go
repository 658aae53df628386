package activity

// MembershipSource supplies the coordinator with the current cluster
// membership list, e.g. a *cluster.MembershipWatcher backed by
// raft.Raft.GetConfiguration(). The coordinator only ever reads this
// through UpdateMembership; it does not poll it directly.
type MembershipSource interface {
	CurrentMembers() []NodeID
}

// UpdateMembership installs a new quorum-node set, per spec.md §4.6. This
// changes the denominator every unscoped `all`/`majority` quorum
// expression is evaluated against, so every live activity using one is
// re-checked immediately: a membership shrink can turn a previously-held
// majority into a lost one without any lease itself changing.
func (c *Coordinator) UpdateMembership(nodes []NodeID) error {
	return c.send(func() {
		c.quorumNodes = append([]NodeID{}, nodes...)
		c.publish("membership.changed", "cluster quorum-node set changed", nil)
		c.terminateLosingQuorum(TerminationReason{Kind: ReasonQuorumLost})
	})
}

// QuorumNodes returns the coordinator's current quorum-node set.
func (c *Coordinator) QuorumNodes() []NodeID {
	var out []NodeID
	_ = c.send(func() {
		out = append([]NodeID{}, c.quorumNodes...)
	})
	return out
}
