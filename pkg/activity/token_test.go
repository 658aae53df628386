package activity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunActivityHappyPath(t *testing.T) {
	c, _ := newTestCoordinator(t, "n1")
	grantSelfLeaderWithQuorum(t, c, []NodeID{"n1"})

	var got string
	err := c.RunActivity(context.Background(), "dom", "a", Leader(), Follower(), Options{}, func(ctx context.Context) error {
		got = "ran"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ran", got)
}

func TestRunActivityTranslatesForcedTermination(t *testing.T) {
	c, _ := newTestCoordinator(t, "n1")
	grantSelfLeaderWithQuorum(t, c, []NodeID{"n1"})

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.RunActivity(context.Background(), "dom", "a", Leader(), Follower(), Options{}, func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		})
	}()

	require.NoError(t, c.LocalLeaseExpired("agent-1", LeaseHolder{Node: "n1", Epoch: EpochToken("e1")}))

	err := <-errCh
	var failed *ActivityFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, ReasonLocalLeaseExpired, failed.Reason.Kind)
	assert.Equal(t, "dom", failed.Domain)
}

func TestRunActivityNestedInheritsDomainAndLease(t *testing.T) {
	c, _ := newTestCoordinator(t, "n1")
	grantSelfLeaderWithQuorum(t, c, []NodeID{"n1"})

	var nestedRan bool
	err := c.RunActivity(context.Background(), "dom", "parent", Leader(), Follower(), Options{}, func(ctx context.Context) error {
		return c.RunActivity(ctx, "dom", "child", Leader(), Follower(), Options{}, func(ctx context.Context) error {
			nestedRan = true
			tok, ok := TokenFromContext(ctx)
			require.True(t, ok)
			assert.Equal(t, []string{"parent", "child"}, tok.Name)
			return nil
		})
	})
	require.NoError(t, err)
	assert.True(t, nestedRan)
}

func TestRunActivityNestedDomainMismatchRejected(t *testing.T) {
	c, _ := newTestCoordinator(t, "n1")
	grantSelfLeaderWithQuorum(t, c, []NodeID{"n1"})

	err := c.RunActivity(context.Background(), "dom", "parent", Leader(), Follower(), Options{}, func(ctx context.Context) error {
		return c.RunActivity(ctx, "other-dom", "child", Leader(), Follower(), Options{}, func(ctx context.Context) error {
			return nil
		})
	})
	var mismatch *DomainMismatchError
	require.ErrorAs(t, err, &mismatch)
}

func TestRunActivityUnsafeInheritanceIsOneWay(t *testing.T) {
	parent := ActivityToken{Lease: Leader(), Domain: "dom", DomainToken: "tok", Name: []string{"parent"}, Inherited: InheritedOptions{Unsafe: true}}

	child, merged := parent.Child("tok", "child", Options{Unsafe: false})
	assert.True(t, merged.Unsafe, "a child cannot be safer than an unsafe parent")
	assert.True(t, child.Inherited.Unsafe)

	stricterParent := ActivityToken{Inherited: InheritedOptions{Unsafe: false}}
	_, merged2 := stricterParent.Child("tok", "child", Options{Unsafe: true})
	assert.True(t, merged2.Unsafe, "a child of a safe parent may still opt into Unsafe itself")
}
