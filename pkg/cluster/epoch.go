package cluster

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/cuemby/warden/pkg/activity"
	"github.com/cuemby/warden/pkg/metrics"
)

// EpochIssuer mints opaque epoch tokens for lease grants. Unlike this
// codebase's join tokens, an epoch has no expiry of its own: it is retired
// only when its holder grants a new one, never by a clock.
type EpochIssuer struct {
	node activity.NodeID
}

// NewEpochIssuer creates an EpochIssuer that stamps tokens as minted by
// node.
func NewEpochIssuer(node activity.NodeID) *EpochIssuer {
	return &EpochIssuer{node: node}
}

// Issue mints a fresh epoch token and wraps it in a LeaseHolder naming this
// issuer as the node.
func (e *EpochIssuer) Issue() (activity.LeaseHolder, error) {
	tok, err := randomEpoch()
	if err != nil {
		return activity.LeaseHolder{}, fmt.Errorf("failed to issue epoch: %v", err)
	}
	metrics.EpochRotationsTotal.Inc()
	return activity.LeaseHolder{Node: e.node, Epoch: tok}, nil
}

func randomEpoch() (activity.EpochToken, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return activity.EpochToken(b), nil
}

func encodeEpoch(t activity.EpochToken) string { return hex.EncodeToString(t) }

func decodeEpoch(s string) (activity.EpochToken, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return activity.EpochToken(b), nil
}
