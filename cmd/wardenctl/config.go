package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// fileConfig is the optional YAML file layered under node run's flags,
// mirroring the teacher's WarrenResource-over-flags layering in apply.go:
// the file supplies defaults, and any flag the caller actually typed wins.
type fileConfig struct {
	ID                      string   `yaml:"id"`
	RaftAddr                string   `yaml:"raftAddr"`
	HTTPAddr                string   `yaml:"httpAddr"`
	Peers                   []string `yaml:"peers"`
	DataDir                 string   `yaml:"dataDir"`
	CompatVersion           int      `yaml:"compatVersion"`
	CompatThreshold         int      `yaml:"compatThreshold"`
	DisableNewOrchestration bool     `yaml:"disableNewOrchestration"`
}

func loadFileConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %v", err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %v", err)
	}
	return &cfg, nil
}

// applyFileDefaults overwrites any flag on cmd that the caller did not
// explicitly set with the corresponding value from the file, provided the
// file actually supplies a non-zero value for it.
func applyFileDefaults(cmd *cobra.Command, cfg *fileConfig) {
	setIfUnchanged(cmd, "id", cfg.ID)
	setIfUnchanged(cmd, "raft-addr", cfg.RaftAddr)
	setIfUnchanged(cmd, "http-addr", cfg.HTTPAddr)
	setIfUnchanged(cmd, "data-dir", cfg.DataDir)
	setIntIfUnchanged(cmd, "compat-version", cfg.CompatVersion)
	setIntIfUnchanged(cmd, "compat-threshold", cfg.CompatThreshold)
	if len(cfg.Peers) > 0 && !cmd.Flags().Changed("peers") {
		_ = cmd.Flags().Set("peers", joinCommaList(cfg.Peers))
	}
	if cfg.DisableNewOrchestration && !cmd.Flags().Changed("disable-new-orchestration") {
		_ = cmd.Flags().Set("disable-new-orchestration", "true")
	}
}

func setIfUnchanged(cmd *cobra.Command, name, value string) {
	if value == "" || cmd.Flags().Changed(name) {
		return
	}
	_ = cmd.Flags().Set(name, value)
}

// setIntIfUnchanged mirrors setIfUnchanged for int flags. A zero value is
// treated as "not supplied by the file" — both compat-version and
// compat-threshold's meaningful range starts above zero.
func setIntIfUnchanged(cmd *cobra.Command, name string, value int) {
	if value == 0 || cmd.Flags().Changed(name) {
		return
	}
	_ = cmd.Flags().Set(name, strconv.Itoa(value))
}

func joinCommaList(items []string) string {
	out := ""
	for i, s := range items {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}
