package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "wardenctl",
	Short: "Warden - cluster leader-activity coordinator",
	Long: `Warden gates administrative activities on a node holding a valid
lease from the current cluster leader plus a quorum of remote nodes
acknowledging that leader's authority, and supervises those activities,
cancelling them the moment either precondition stops holding.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"wardenctl version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.AddCommand(nodeCmd)
	rootCmd.AddCommand(activityCmd)
}

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Manage a warden cluster node",
}

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Run demo activities gated by the coordinator",
}
