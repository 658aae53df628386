package cluster

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/warden/pkg/activity"
	"github.com/cuemby/warden/pkg/metrics"
)

// Acquirer implements the coordinator's lease-acquirer collaborator role.
// While this node is Raft leader it runs one grant loop per quorum peer
// (including itself — spec.md's majority scenarios count a self-granted
// lease among the remote lease set), each calling that peer's Agent.Grant
// once over a Transport, then Agent.Renew on every tick (falling back to a
// fresh Grant when a renew is rejected), and reporting the result back to
// the coordinator. Losing leadership cancels every grant loop and
// unregisters from the coordinator, which is how the coordinator observes
// acquirer death.
type Acquirer struct {
	node        activity.NodeID
	coordinator *activity.Coordinator
	transport   Transport
	issuer      *EpochIssuer
	log         zerolog.Logger

	ttlSeconds    int64
	grantInterval time.Duration

	mu       sync.Mutex
	identity string
	done     chan struct{}
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// AcquirerConfig configures a new Acquirer.
type AcquirerConfig struct {
	Node          activity.NodeID
	Coordinator   *activity.Coordinator
	Transport     Transport
	TTLSeconds    int64
	GrantInterval time.Duration
	Logger        zerolog.Logger
}

// NewAcquirer creates an Acquirer from cfg, defaulting TTL and grant
// interval if unset.
func NewAcquirer(cfg AcquirerConfig) *Acquirer {
	ttl := cfg.TTLSeconds
	if ttl <= 0 {
		ttl = 10
	}
	interval := cfg.GrantInterval
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &Acquirer{
		node:          cfg.Node,
		coordinator:   cfg.Coordinator,
		transport:     cfg.Transport,
		issuer:        NewEpochIssuer(cfg.Node),
		ttlSeconds:    ttl,
		grantInterval: interval,
		log:           cfg.Logger.With().Str("component", "acquirer").Str("node", string(cfg.Node)).Logger(),
	}
}

// Run watches leaderCh, starting a grant term on every true and tearing it
// down on every false, until ctx is canceled. peers is called fresh at the
// start of each term so membership changes since the last term are picked
// up; mid-term membership changes reach the coordinator separately via
// MembershipWatcher.
func (a *Acquirer) Run(ctx context.Context, leaderCh <-chan bool, peers func() []activity.NodeID) {
	for {
		select {
		case <-ctx.Done():
			a.stopTerm()
			return
		case isLeader, ok := <-leaderCh:
			if !ok {
				a.stopTerm()
				return
			}
			if isLeader {
				a.startTerm(ctx, peers())
			} else {
				a.stopTerm()
			}
		}
	}
}

func (a *Acquirer) startTerm(parent context.Context, peerList []activity.NodeID) {
	a.mu.Lock()
	if a.done != nil {
		a.mu.Unlock()
		return // already running a term
	}
	identity := fmt.Sprintf("acquirer-%s-%d", a.node, time.Now().UnixNano())
	done := make(chan struct{})
	termCtx, cancel := context.WithCancel(parent)
	a.identity = identity
	a.done = done
	a.cancel = cancel
	a.mu.Unlock()

	if err := a.coordinator.RegisterAcquirer(identity, done); err != nil {
		a.log.Error().Err(err).Msg("failed to register acquirer")
		cancel()
		a.mu.Lock()
		a.done = nil
		a.cancel = nil
		a.mu.Unlock()
		return
	}
	a.log.Info().Int("peers", len(peerList)).Msg("acquirer started grant term")

	for _, peer := range peerList {
		peer := peer
		a.wg.Add(1)
		metrics.GrantLoopsActive.Inc()
		go func() {
			defer a.wg.Done()
			defer metrics.GrantLoopsActive.Dec()
			a.grantLoop(termCtx, identity, peer)
		}()
	}

	go func() {
		a.wg.Wait()
		close(done)
	}()
}

func (a *Acquirer) stopTerm() {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.done = nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// grantLoop grants peer a fresh epoch once at the start of a term and
// renews that same epoch every grantInterval thereafter, until termCtx is
// canceled, reporting LeaseAcquired/LeaseLost to the coordinator as the
// lease is won or dropped. A renew failure (the peer's agent expired the
// grant, or this is the very first tick) falls back to issuing a fresh
// epoch rather than leaving the peer unleased until the next tick.
func (a *Acquirer) grantLoop(termCtx context.Context, identity string, peer activity.NodeID) {
	ticker := time.NewTicker(a.grantInterval)
	defer ticker.Stop()

	held := false
	var holder activity.LeaseHolder
	for {
		var err error
		if held {
			err = a.transport.Renew(termCtx, peer, holder, a.ttlSeconds)
		}
		if !held || err != nil {
			var issueErr error
			holder, issueErr = a.issuer.Issue()
			if issueErr != nil {
				a.log.Error().Err(issueErr).Msg("failed to issue epoch")
				err = issueErr
			} else {
				err = a.transport.Grant(termCtx, peer, holder, a.ttlSeconds)
			}
		}

		if err != nil {
			if held {
				held = false
				_ = a.coordinator.LeaseLost(identity, peer)
			}
			a.log.Debug().Err(err).Str("peer", string(peer)).Msg("grant failed")
		} else if !held {
			held = true
			_ = a.coordinator.LeaseAcquired(identity, peer)
		}

		select {
		case <-termCtx.Done():
			if held {
				_ = a.coordinator.LeaseLost(identity, peer)
			}
			return
		case <-ticker.C:
		}
	}
}
