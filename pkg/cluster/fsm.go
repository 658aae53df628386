package cluster

import (
	"io"

	"github.com/hashicorp/raft"
)

// inertFSM is the Raft finite state machine this package installs. Raft
// here exists only to elect a leader and agree on membership; no cluster
// or activity state is ever replicated through its log, so Apply has
// nothing to do. A real command would only ever be a membership change,
// which raft itself already handles outside the FSM via AddVoter /
// RemoveServer.
type inertFSM struct{}

func newInertFSM() *inertFSM { return &inertFSM{} }

func (f *inertFSM) Apply(log *raft.Log) interface{} { return nil }

func (f *inertFSM) Snapshot() (raft.FSMSnapshot, error) { return inertSnapshot{}, nil }

func (f *inertFSM) Restore(rc io.ReadCloser) error { return rc.Close() }

type inertSnapshot struct{}

func (inertSnapshot) Persist(sink raft.SnapshotSink) error { return sink.Close() }

func (inertSnapshot) Release() {}
