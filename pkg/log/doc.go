/*
Package log provides structured logging for Warden using zerolog.

The log package wraps zerolog to give every component of the coordinator,
its Raft collaborators, and the CLI a common JSON- or console-formatted
logger, with helpers for attaching the node, domain, and activity-name
context fields that show up throughout pkg/activity and pkg/cluster.

# Usage

Initializing the logger:

	import "github.com/cuemby/warden/pkg/log"

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Component and context loggers:

	nodeLog := log.WithNodeID("n1")
	nodeLog.Info().Msg("node joined cluster")

	domainLog := log.WithDomain("warden.bucket")
	domainLog.Warn().Msg("quorum lost mid-activity")

	activityLog := log.WithActivity([]string{"compact", "sweep"})
	activityLog.Debug().Msg("nested activity started")

# Design

A single package-level Logger, set once by Init and read from everywhere
else, mirrors how pkg/activity's Coordinator is handed a zerolog.Logger at
construction rather than reaching for a global on every log line — callers
that already hold a Coordinator-scoped logger should keep using it instead
of the package global, which exists mainly for cmd/wardenctl's own top-level
logging before any coordinator exists.

# See Also

  - Zerolog: https://github.com/rs/zerolog
  - pkg/activity for the Coordinator's own logger field
*/
package log
