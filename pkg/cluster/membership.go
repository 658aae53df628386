package cluster

import (
	"context"
	"reflect"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/warden/pkg/activity"
)

// MembershipWatcher polls a Node's Raft configuration on an interval and
// feeds the resulting voter list to a coordinator's UpdateMembership
// whenever it changes — the concrete source of spec.md §4.6's
// "membership events."
type MembershipWatcher struct {
	node        *Node
	coordinator *activity.Coordinator
	interval    time.Duration
	log         zerolog.Logger
}

// NewMembershipWatcher creates a MembershipWatcher polling node every
// interval (defaulting to 2s if non-positive) and pushing changes into
// coordinator.
func NewMembershipWatcher(node *Node, coordinator *activity.Coordinator, interval time.Duration, log zerolog.Logger) *MembershipWatcher {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &MembershipWatcher{
		node:        node,
		coordinator: coordinator,
		interval:    interval,
		log:         log.With().Str("component", "membership_watcher").Logger(),
	}
}

// Run polls until ctx is canceled, pushing an UpdateMembership call each
// time the voter set changes.
func (w *MembershipWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var last []activity.NodeID
	poll := func() {
		current := w.node.CurrentMembers()
		if reflect.DeepEqual(current, last) {
			return
		}
		last = current
		if err := w.coordinator.UpdateMembership(current); err != nil {
			w.log.Warn().Err(err).Msg("failed to push membership update")
			return
		}
		w.log.Info().Int("members", len(current)).Msg("quorum-node set changed")
	}

	poll()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			poll()
		}
	}
}
