package activity

import (
	"bytes"
	"context"
	"time"
)

// NodeID identifies a cluster node participating in leader-lease quorum.
type NodeID string

// EpochToken is the opaque byte string a lease grant carries, issued by
// whichever node granted the lease. Equality is structural, not identity.
type EpochToken []byte

// LeaseHolder is the (node, epoch-token) pair identifying a specific lease
// grant.
type LeaseHolder struct {
	Node  NodeID
	Epoch EpochToken
}

// Equal reports whether two lease holders name the same grant.
func (h LeaseHolder) Equal(other LeaseHolder) bool {
	return h.Node == other.Node && bytes.Equal(h.Epoch, other.Epoch)
}

// IsZero reports whether h is the zero value, used to represent "no lease
// currently held."
func (h LeaseHolder) IsZero() bool {
	return h.Node == "" && len(h.Epoch) == 0
}

// LeaseRequirement is the value carried in an Activity or ActivityToken's
// "lease" field: either the sentinel Leader(), or a specific lease holder
// fencing the activity to the epoch it was admitted under.
type LeaseRequirement struct {
	leader bool
	holder LeaseHolder
}

// Leader returns the sentinel lease requirement: "whatever lease this node
// currently holds as leader," re-evaluated at admission time rather than
// fenced to one epoch.
func Leader() LeaseRequirement { return LeaseRequirement{leader: true} }

// ExactLease fences a requirement to one specific (node, epoch) grant. Used
// by nested activities so a rotated epoch cannot silently re-admit them.
func ExactLease(h LeaseHolder) LeaseRequirement { return LeaseRequirement{holder: h} }

// IsLeaderSentinel reports whether this requirement is the Leader()
// sentinel rather than a fenced lease holder.
func (r LeaseRequirement) IsLeaderSentinel() bool { return r.leader }

// Holder returns the fenced lease holder. Only meaningful when
// IsLeaderSentinel is false.
func (r LeaseRequirement) Holder() LeaseHolder { return r.holder }

func (r LeaseRequirement) String() string {
	if r.leader {
		return "leader"
	}
	return string(r.holder.Node)
}

// QuorumKind tags the variant of a Quorum expression.
type QuorumKind int

const (
	// QuorumAll requires every node in scope to hold a remote lease.
	QuorumAll QuorumKind = iota
	// QuorumMajority requires strictly more than half the nodes in scope.
	QuorumMajority
	// QuorumFollower imposes no remote requirement; only the local lease
	// must exist.
	QuorumFollower
	// QuorumList is the conjunction of its List elements.
	QuorumList
)

// Quorum is the recursive quorum expression from the specification: all,
// majority, follower, either restricted to an explicit node set, or a list
// of sub-expressions evaluated as a conjunction.
type Quorum struct {
	Kind  QuorumKind
	Nodes []NodeID // explicit node set; nil means "use the current quorum-node set"
	List  []Quorum // only populated for QuorumList
}

// All returns the `all` quorum expression over the coordinator's current
// quorum-node set.
func All() Quorum { return Quorum{Kind: QuorumAll} }

// Majority returns the `majority` quorum expression over the coordinator's
// current quorum-node set.
func Majority() Quorum { return Quorum{Kind: QuorumMajority} }

// Follower returns the `follower` quorum expression: local lease only.
func Follower() Quorum { return Quorum{Kind: QuorumFollower} }

// AllOf returns `{all, nodes}` over an explicit node set.
func AllOf(nodes ...NodeID) Quorum { return Quorum{Kind: QuorumAll, Nodes: nodes} }

// MajorityOf returns `{majority, nodes}` over an explicit node set.
func MajorityOf(nodes ...NodeID) Quorum { return Quorum{Kind: QuorumMajority, Nodes: nodes} }

// And returns the conjunction of the given quorum expressions.
func And(exprs ...Quorum) Quorum { return Quorum{Kind: QuorumList, List: exprs} }

// DomainToken is the opaque identifier distinguishing one activity-tree
// within a domain from a competing tree in the same domain.
type DomainToken string

// Options are the per-activity knobs enumerated in the specification.
type Options struct {
	// QuorumTimeout bounds how long admission waits for the quorum
	// predicate before giving up (or falling back to Unsafe admission).
	// Zero means "use the default" (15s, or 2s when Unsafe is set).
	QuorumTimeout time.Duration
	// Timeout is a backstop bounding the caller's total wait; in practice
	// QuorumTimeout is what resolves a no-quorum failure, so Timeout only
	// matters if a request is somehow still pending past it. Zero means
	// QuorumTimeout+5s.
	Timeout time.Duration
	// Quiet suppresses the log line emitted on normal termination.
	Quiet bool
	// Unsafe permits admission on quorum-timeout if the local-lease and
	// requires-leader preconditions still hold. Inheritable to nested
	// activities: a child of an unsafe parent is always unsafe, and setting
	// Unsafe to false on the child does not override that. A child of a
	// safe parent may set Unsafe itself.
	Unsafe bool
}

func (o Options) quorumTimeout() time.Duration {
	if o.QuorumTimeout > 0 {
		return o.QuorumTimeout
	}
	if o.Unsafe {
		return defaultUnsafeQuorumTimeout
	}
	return defaultQuorumTimeout
}

func (o Options) timeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return o.quorumTimeout() + defaultTimeoutSlack
}

const (
	defaultQuorumTimeout       = 15 * time.Second
	defaultUnsafeQuorumTimeout = 2 * time.Second
	defaultTimeoutSlack        = 5 * time.Second
)

// ActivityToken is the context propagated into an activity's execution so
// nested activities can re-enter the coordinator correctly. It is stored in
// a context.Context via WithToken and retrieved via TokenFromContext.
type ActivityToken struct {
	// Lease is the requirement the outer activity was admitted under. For
	// nested calls this fences admission to the exact epoch the tree
	// started under, preventing a resurrected activity from running
	// silently under a rotated lease.
	Lease LeaseRequirement
	// Domain every nested call under this token must match.
	Domain string
	// DomainToken identifies this activity-tree within Domain.
	DomainToken DomainToken
	// Name is the path of nested activity names from the tree root.
	Name []string
	// Inherited carries the single inheritable option (Unsafe) down to
	// nested activities.
	Inherited InheritedOptions
}

// InheritedOptions is the subset of Options propagated to nested
// activities without the child having to re-specify them.
type InheritedOptions struct {
	Unsafe bool
}

// Child returns the token a nested activity named name should carry,
// applying the inheritance and domain-matching rules from the
// specification. It does not itself register anything with the
// coordinator.
func (t ActivityToken) Child(domainToken DomainToken, name string, opts Options) (ActivityToken, Options) {
	merged := opts
	if t.Inherited.Unsafe && !opts.Unsafe {
		// A child may not be safe when the parent is unsafe; an explicit
		// Unsafe: false on the child is overridden here.
		merged.Unsafe = true
	}
	return ActivityToken{
		Lease:       t.Lease,
		Domain:      t.Domain,
		DomainToken: domainToken,
		Name:        append(append([]string{}, t.Name...), name),
		Inherited:   InheritedOptions{Unsafe: merged.Unsafe},
	}, merged
}

type tokenKey struct{}

// WithToken installs an activity token into ctx for propagation into
// nested coordinator calls made from within an activity body.
func WithToken(ctx context.Context, tok ActivityToken) context.Context {
	return context.WithValue(ctx, tokenKey{}, tok)
}

// TokenFromContext retrieves the activity token installed by WithToken, if
// any.
func TokenFromContext(ctx context.Context) (ActivityToken, bool) {
	tok, ok := ctx.Value(tokenKey{}).(ActivityToken)
	return tok, ok
}

// Activity is the registry record for one live activity.
type Activity struct {
	Worker      *Worker
	Domain      string
	DomainToken DomainToken
	Name        []string
	Lease       LeaseRequirement
	Quorum      Quorum
	Options     Options

	// external is set for activities adopted via RegisterProcess, whose
	// exit the coordinator observes through a caller-supplied Done channel
	// rather than a Worker it created itself.
	external *ExternalWorker

	// bypassed records that this activity was admitted through the
	// bypass shortcut rather than an actually-satisfied Lease/Quorum. Per
	// spec.md §8, its body runs to completion regardless of later lease
	// state, so the collaborator-death and lease-change sweeps skip it.
	bypassed bool

	// pendingReason records why the coordinator is terminating this
	// activity, set just before Terminate is called. It lets the monitor
	// goroutine report the coordinator's own reason on removal even for
	// external workers whose exit error the coordinator never sees.
	pendingReason *TerminationReason
}

// terminate requests that the activity's worker unwind, recording reason so
// the eventual removal step reports it regardless of whether the worker is
// coordinator-spawned or externally adopted.
func (a *Activity) terminate(reason TerminationReason) {
	if a.pendingReason != nil {
		return // already terminating
	}
	a.pendingReason = &reason
	if a.external != nil {
		a.external.Terminate(&terminationError{reason: reason})
		return
	}
	a.Worker.Terminate(&terminationError{reason: reason})
}

// done returns the channel the coordinator watches to learn this activity's
// worker has exited.
func (a *Activity) done() <-chan struct{} {
	if a.external != nil {
		return a.external.Done
	}
	return a.Worker.Done()
}
