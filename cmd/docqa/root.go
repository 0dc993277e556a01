package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"docqa/internal/config"
	"docqa/internal/logger"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logJSON    bool
}

// RootCmd builds the docqa command tree.
func RootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "docqa",
		Short:         "Grounded question answering over your documents",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to YAML config file (default ./config.yaml or ~/.config/docqa/config.yaml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	root.PersistentFlags().BoolVar(&opts.logJSON, "log-json", false, "Emit logs as JSON")

	root.AddCommand(
		serveCmd(opts),
		ingestCmd(opts),
		askCmd(opts),
		queryCmd(opts),
		docsCmd(opts),
	)
	return root
}

func (o *rootOptions) loadConfig() (*config.AppConfig, error) {
	if o.configPath != "" {
		return config.Load(o.configPath)
	}
	cfg, _, err := config.LoadDefault()
	return cfg, err
}

// setup loads config, installs the logger and assembles the components.
// The returned context carries the logger.
func (o *rootOptions) setup(ctx context.Context) (context.Context, *app, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return ctx, nil, fmt.Errorf("load config: %w", err)
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logJSON {
		cfg.Log.JSON = true
	}

	logCfg := logger.DefaultConfig()
	logCfg.Level = logger.ParseLevel(cfg.Log.Level)
	logCfg.JSON = cfg.Log.JSON
	logCfg.Output = os.Stderr
	log := logger.NewLogger(logCfg)
	logger.SetDefault(log)
	ctx = logger.ContextWithLogger(ctx, log)

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return ctx, nil, err
	}
	return ctx, a, nil
}
