package activity

import (
	"fmt"
)

// NoQuorumError is returned synchronously when wait_for_quorum's timeout
// elapses without the admission predicate becoming satisfied (and, for
// unsafe callers, without the degraded predicate becoming satisfied
// either).
type NoQuorumError struct {
	RequiredLease       LeaseRequirement
	RequiredQuorum      Quorum
	ObservedLocalLease  LeaseHolder
	ObservedHasLocal    bool
	ObservedRemoteNodes []NodeID
}

func (e *NoQuorumError) Error() string {
	return fmt.Sprintf("no quorum: required lease=%s, observed local lease present=%v, observed remote leases=%v",
		e.RequiredLease, e.ObservedHasLocal, e.ObservedRemoteNodes)
}

// DomainConflictError is returned when a start/register request's domain
// matches a live activity's domain but the domain-token differs.
type DomainConflictError struct {
	RequestedDomain string
	RequestedToken  DomainToken
	ExistingToken   DomainToken
	ExistingName    []string
}

func (e *DomainConflictError) Error() string {
	return fmt.Sprintf("domain conflict: domain %q already has live activity %v under token %q, requested token %q",
		e.RequestedDomain, e.ExistingName, e.ExistingToken, e.RequestedToken)
}

// WrongIdentityError describes a collaborator call that does not come from
// the worker currently registered for that role. The coordinator's lease
// event methods (LeaseAcquired, LeaseLost, LocalLeaseGranted,
// LocalLeaseExpired) log it and drop the event; they do not return it to
// the caller.
type WrongIdentityError struct {
	Role     string // "agent" or "acquirer"
	Supplied string
	Expected string
}

func (e *WrongIdentityError) Error() string {
	return fmt.Sprintf("wrong %s identity: supplied %q, expected %q", e.Role, e.Supplied, e.Expected)
}

// SlotOccupiedError is returned by RegisterAgent/RegisterAcquirer when the
// slot already holds a live registration.
type SlotOccupiedError struct {
	Role     string
	Expected string
}

func (e *SlotOccupiedError) Error() string {
	return fmt.Sprintf("%s already registered as %q", e.Role, e.Expected)
}

// NonLocalFunctionError is returned by StartActivity and RegisterProcess
// when the token's domain token is empty. Nothing in this package ships an
// activity body to another node, so it is not returned for that case.
type NonLocalFunctionError struct {
	Detail string
}

func (e *NonLocalFunctionError) Error() string {
	return "non-local function disallowed: " + e.Detail
}

// DomainMismatchError is returned when a nested coordinator call's domain
// does not match the domain recorded in the caller's activity token.
type DomainMismatchError struct {
	TokenDomain string
	Requested   string
}

func (e *DomainMismatchError) Error() string {
	return fmt.Sprintf("nested activity domain %q does not match parent token domain %q", e.Requested, e.TokenDomain)
}

// TerminationReason identifies why a live activity was forcibly shut down.
type TerminationReason struct {
	// Kind is one of "local-lease-expired", "leader-process-died", or
	// "quorum-lost".
	Kind string
	// Node is populated for quorum-lost, naming the node whose lease was
	// lost.
	Node NodeID
}

func (r TerminationReason) String() string {
	if r.Node != "" {
		return fmt.Sprintf("%s(%s)", r.Kind, r.Node)
	}
	return r.Kind
}

const (
	ReasonLocalLeaseExpired = "local-lease-expired"
	ReasonLeaderProcessDied = "leader-process-died"
	ReasonQuorumLost        = "quorum-lost"
)

// ActivityFailedError is the structured value RunActivity returns when its
// activity was started and then forcibly terminated due to precondition
// loss. Worker exits for any other reason are returned as-is, unwrapped.
type ActivityFailedError struct {
	Domain string
	Name   []string
	Reason TerminationReason
}

func (e *ActivityFailedError) Error() string {
	return fmt.Sprintf("activity %s%v failed: %s", e.Domain, e.Name, e.Reason)
}

// asTerminationReason extracts a TerminationReason from a worker exit error
// produced by the coordinator's own forced-termination path, if any.
func asTerminationReason(err error) (TerminationReason, bool) {
	tr, ok := err.(*terminationError)
	if !ok {
		return TerminationReason{}, false
	}
	return tr.reason, true
}

// terminationError wraps a TerminationReason as the cancellation cause
// passed to Worker.Terminate.
type terminationError struct {
	reason TerminationReason
}

func (e *terminationError) Error() string { return e.reason.String() }
