package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// bootstrapConfig is the static half of configuration: values needed before
// the database opens, kept in <data-dir>/config.yaml. Everything dynamic
// lives in the sqlite config KV.
type bootstrapConfig struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	SmallModel string `yaml:"small_model"`
	Workdir    string `yaml:"workdir"`
	Addr       string `yaml:"addr"`
	Verbose    bool   `yaml:"verbose"`
	JSONLogs   bool   `yaml:"json_logs"`
}

func loadBootstrap(path string) (*bootstrapConfig, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &bootstrapConfig{}, nil
	}
	if err != nil {
		return nil, err
	}
	var cfg bootstrapConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// applyBootstrap overlays file values beneath explicit flags: anything set
// on the command line wins over the file.
func applyBootstrap(cmd *cobra.Command) error {
	cfg, err := loadBootstrap(filepath.Join(alterDir(), "config.yaml"))
	if err != nil {
		return err
	}

	root := cmd.Root().PersistentFlags()
	if cfg.Provider != "" && !root.Changed("provider") {
		providerName = cfg.Provider
	}
	if cfg.Model != "" && !root.Changed("model") {
		modelName = cfg.Model
	}
	if cfg.SmallModel != "" && !root.Changed("small-model") {
		smallModel = cfg.SmallModel
	}
	if cfg.Workdir != "" && !root.Changed("workdir") {
		workdir = cfg.Workdir
	}
	if cfg.Verbose && !root.Changed("verbose") {
		verbose = true
	}
	if cfg.JSONLogs && !root.Changed("json-logs") {
		jsonLogs = true
	}
	// addr only exists on serve.
	if cfg.Addr != "" && cmd.Flags().Lookup("addr") != nil && !cmd.Flags().Changed("addr") {
		addr = cfg.Addr
	}
	return nil
}
