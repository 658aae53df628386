package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/warden/pkg/activity"
	"github.com/cuemby/warden/pkg/cluster"
	"github.com/cuemby/warden/pkg/events"
	"github.com/cuemby/warden/pkg/log"
	"github.com/cuemby/warden/pkg/metrics"
)

var nodeRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a warden cluster node",
	Long: `Boots a Raft-backed cluster node, registers its lease agent and
acquirer with a fresh coordinator, and serves /health, /ready, /metrics,
and the Raft join endpoint over HTTP.`,
	RunE: runNode,
}

func init() {
	nodeCmd.AddCommand(nodeRunCmd)

	nodeRunCmd.Flags().String("id", "node-1", "Unique node ID")
	nodeRunCmd.Flags().String("raft-addr", "127.0.0.1:7946", "Address for Raft transport")
	nodeRunCmd.Flags().String("http-addr", "127.0.0.1:8080", "Address for /health, /ready, /metrics, /join")
	nodeRunCmd.Flags().StringSlice("peers", nil, "Comma-separated http-addr of an existing node to join through; empty bootstraps a new cluster")
	nodeRunCmd.Flags().String("data-dir", "./warden-data", "Data directory for Raft and bucket state")
	nodeRunCmd.Flags().Int("compat-version", 1, "This node's cluster compat version")
	nodeRunCmd.Flags().Int("compat-threshold", 0, "Bypass mode activates automatically while compat-version is below this threshold; 0 disables the check")
	nodeRunCmd.Flags().Bool("disable-new-orchestration", false, "Force bypass mode: admit every activity without checking leases or quorum, for a rolling upgrade across an incompatible version boundary")
	nodeRunCmd.Flags().String("config", "", "Optional YAML file supplying defaults for any flag not explicitly set")
}

func runNode(cmd *cobra.Command, args []string) error {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		cfg, err := loadFileConfig(path)
		if err != nil {
			return err
		}
		applyFileDefaults(cmd, cfg)
	}

	id, _ := cmd.Flags().GetString("id")
	raftAddr, _ := cmd.Flags().GetString("raft-addr")
	httpAddr, _ := cmd.Flags().GetString("http-addr")
	peers, _ := cmd.Flags().GetStringSlice("peers")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	compatVersion, _ := cmd.Flags().GetInt("compat-version")
	compatThreshold, _ := cmd.Flags().GetInt("compat-threshold")
	disableNewOrchestration, _ := cmd.Flags().GetBool("disable-new-orchestration")

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	nodeLog := log.WithNodeID(id)

	nodeLog.Info().
		Str("raft_addr", raftAddr).
		Str("http_addr", httpAddr).
		Int("compat_version", compatVersion).
		Int("compat_threshold", compatThreshold).
		Bool("disable_new_orchestration", disableNewOrchestration).
		Msg("starting warden node")

	node, err := cluster.NewNode(cluster.Config{ID: id, BindAddr: raftAddr, DataDir: dataDir})
	if err != nil {
		return fmt.Errorf("failed to create node: %v", err)
	}

	if len(peers) == 0 {
		if err := node.Bootstrap(); err != nil {
			return fmt.Errorf("failed to bootstrap cluster: %v", err)
		}
		nodeLog.Info().Msg("bootstrapped new cluster")
	} else {
		joinAddr := strings.TrimSpace(peers[0])
		if err := node.Join(fmt.Sprintf("http://%s/join", joinAddr)); err != nil {
			return fmt.Errorf("failed to join cluster via %s: %v", joinAddr, err)
		}
		nodeLog.Info().Str("via", joinAddr).Msg("joined existing cluster")
	}

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	bypass := activity.OrBypass{
		activity.StaticBypass(disableNewOrchestration),
		activity.NewCompatVersionBypass(compatVersion, compatThreshold),
	}

	coord := activity.New(activity.Config{
		SelfNode: activity.NodeID(id),
		Bypass:   bypass,
		Events:   broker,
		Logger:   nodeLog,
	})
	defer coord.Close()

	transport := cluster.NewLocalTransport()
	agent := cluster.NewAgent(activity.NodeID(id), coord, nodeLog)
	if err := agent.Start(); err != nil {
		return fmt.Errorf("failed to start lease agent: %v", err)
	}
	defer agent.Stop()
	transport.Register(activity.NodeID(id), agent)

	acquirer := cluster.NewAcquirer(cluster.AcquirerConfig{
		Node:        activity.NodeID(id),
		Coordinator: coord,
		Transport:   transport,
		Logger:      nodeLog,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go acquirer.Run(ctx, node.LeaderCh(), func() []activity.NodeID { return node.CurrentMembers() })
	go cluster.NewMembershipWatcher(node, coord, 0, nodeLog).Run(ctx)
	go cluster.NewMetricsCollector(node, 0).Run(ctx)

	metrics.RegisterComponent("raft", true, "")
	metrics.RegisterComponent("cluster", true, "")

	mux := http.NewServeMux()
	mux.HandleFunc("/health", metrics.InstrumentHandler("health", metrics.HealthHandler()))
	mux.HandleFunc("/ready", metrics.InstrumentHandler("ready", metrics.ReadyHandler()))
	mux.HandleFunc("/live", metrics.InstrumentHandler("live", metrics.LivenessHandler()))
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/join", metrics.InstrumentHandler("join", node.JoinHandler()))

	srv := &http.Server{Addr: httpAddr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		nodeLog.Info().Msg("shutting down")
	case err := <-errCh:
		nodeLog.Error().Err(err).Msg("http server failed")
	}

	_ = srv.Close()
	cancel()
	if err := node.Shutdown(); err != nil {
		return fmt.Errorf("failed to shut down raft: %v", err)
	}
	return nil
}
