package activity

import (
	"context"

	"github.com/google/uuid"
)

// RunActivity is the ergonomic entry point wrapping StartActivity: it
// mints a token (or derives a nested one from ctx), blocks until the
// activity's body returns or is forcibly terminated, and translates a
// coordinator-initiated termination into *ActivityFailedError so callers
// can distinguish "my own code failed" from "a precondition was lost out
// from under me."
//
// If ctx already carries an ActivityToken (this call is happening from
// inside another activity's body), domain must match the parent's domain
// exactly — a nested call cannot switch domains — and the new activity
// inherits the parent's fenced lease and Unsafe setting rather than
// re-deriving them, per spec.md §4.8.
func (c *Coordinator) RunActivity(ctx context.Context, domain, name string, lease LeaseRequirement, quorum Quorum, opts Options, fn func(ctx context.Context) error) error {
	tok, opts, err := c.buildToken(ctx, domain, name, lease, opts)
	if err != nil {
		return err
	}

	worker, err := c.StartActivity(ctx, tok, quorum, opts, fn)
	if err != nil {
		return err
	}

	select {
	case <-worker.Done():
		return translateExit(tok, worker.Err())
	case <-ctx.Done():
		worker.Terminate(ctx.Err())
		<-worker.Done()
		return translateExit(tok, worker.Err())
	}
}

func (c *Coordinator) buildToken(ctx context.Context, domain, name string, lease LeaseRequirement, opts Options) (ActivityToken, Options, error) {
	if parent, ok := TokenFromContext(ctx); ok {
		if parent.Domain != domain {
			return ActivityToken{}, opts, &DomainMismatchError{TokenDomain: parent.Domain, Requested: domain}
		}
		child, mergedOpts := parent.Child(parent.DomainToken, name, opts)
		child.Lease = parent.Lease
		return child, mergedOpts, nil
	}
	return ActivityToken{
		Lease:       lease,
		Domain:      domain,
		DomainToken: DomainToken(uuid.NewString()),
		Name:        []string{name},
		Inherited:   InheritedOptions{Unsafe: opts.Unsafe},
	}, opts, nil
}

func translateExit(tok ActivityToken, err error) error {
	if err == nil {
		return nil
	}
	if reason, ok := asTerminationReason(err); ok {
		return &ActivityFailedError{Domain: tok.Domain, Name: tok.Name, Reason: reason}
	}
	return err
}
